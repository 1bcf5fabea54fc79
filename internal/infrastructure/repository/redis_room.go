package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/tracing"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	fieldConnected  = "connected"
	fieldOwnerToken = "ownerToken"
	fieldCreatedAt  = "createdAt"

	defaultAdmitRetries = 16
)

var errAdmitContention = errors.New("admission kept conflicting with concurrent writers")

// extendScript adds ARGV[1] ms to the key's expiry, capped at ARGV[2] ms. A
// lifetime already above the cap is left alone. Returns -2 for a missing key.
var extendScript = redis.NewScript(`
local ttl = redis.call('PTTL', KEYS[1])
if ttl == -2 then
	return -2
end
if ttl < 0 then
	ttl = 0
end
local limit = tonumber(ARGV[2])
local next = math.min(ttl + tonumber(ARGV[1]), math.max(limit, ttl))
redis.call('PEXPIRE', KEYS[1], next)
return next
`)

// RedisRoomRepository stores each room as the hash meta:{roomId}. The key's
// expiry is the room TTL.
type RedisRoomRepository struct {
	client       redis.UniversalClient
	tracer       trace.Tracer
	admitRetries int
}

func NewRedisRoomRepository(client redis.UniversalClient, tracer trace.Tracer, admitRetries int) *RedisRoomRepository {
	if admitRetries <= 0 {
		admitRetries = defaultAdmitRetries
	}
	return &RedisRoomRepository{
		client:       client,
		tracer:       tracer,
		admitRetries: admitRetries,
	}
}

func metaKey(roomID string) string {
	return "meta:" + roomID
}

// storeError keeps domain outcomes as they are and marks everything else as
// a store fault.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrRoomFull),
		errors.Is(err, domain.ErrRoomAlreadyExists),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
}

func decodeMeta(roomID string, fields map[string]string) (*domain.RoomMeta, error) {
	meta := &domain.RoomMeta{
		RoomID:     roomID,
		OwnerToken: fields[fieldOwnerToken],
	}

	if err := json.Unmarshal([]byte(fields[fieldConnected]), &meta.ConnectedTokens); err != nil {
		return nil, fmt.Errorf("decode %s of room %s: %w", fieldConnected, roomID, err)
	}
	if meta.ConnectedTokens == nil {
		meta.ConnectedTokens = []string{}
	}

	if raw := fields[fieldCreatedAt]; raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode %s of room %s: %w", fieldCreatedAt, roomID, err)
		}
		meta.CreatedAt = time.Unix(secs, 0).UTC()
	}

	return meta, nil
}

func encodeConnected(tokens []string) (string, error) {
	if tokens == nil {
		tokens = []string{}
	}
	b, err := json.Marshal(tokens)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *RedisRoomRepository) Create(ctx context.Context, meta *domain.RoomMeta) (err error) {
	ctx, span := r.tracer.Start(ctx, "roomRepository.Create")
	defer func() { tracing.End(span, err, "room created") }()

	if meta == nil || meta.RoomID == "" || meta.TTL <= 0 {
		return domain.ErrInvalidInput
	}

	span.SetAttributes(
		tracing.RoomID(meta.RoomID),
		attribute.Int64("room.ttl_ms", meta.TTL.Milliseconds()),
	)

	connected, err := encodeConnected(meta.ConnectedTokens)
	if err != nil {
		return err
	}

	key := metaKey(meta.RoomID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return domain.ErrRoomAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldConnected, connected,
				fieldOwnerToken, meta.OwnerToken,
				fieldCreatedAt, strconv.FormatInt(meta.CreatedAt.Unix(), 10),
			)
			pipe.PExpire(ctx, key, meta.TTL)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrRoomAlreadyExists
	}
	return storeError(err)
}

func (r *RedisRoomRepository) Get(ctx context.Context, roomID string) (meta *domain.RoomMeta, err error) {
	ctx, span := r.tracer.Start(ctx, "roomRepository.Get")
	defer func() { tracing.End(span, err, "room loaded") }()

	span.SetAttributes(tracing.RoomID(roomID))

	key := metaKey(roomID)
	var (
		fieldsCmd *redis.MapStringStringCmd
		ttlCmd    *redis.DurationCmd
	)
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		fieldsCmd = pipe.HGetAll(ctx, key)
		ttlCmd = pipe.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}

	fields := fieldsCmd.Val()
	if len(fields) == 0 {
		return nil, domain.ErrRoomNotFound
	}

	meta, err = decodeMeta(roomID, fields)
	if err != nil {
		return nil, storeError(err)
	}
	meta.TTL = max(ttlCmd.Val(), 0)

	span.SetAttributes(attribute.Int("room.members_count", len(meta.ConnectedTokens)))
	return meta, nil
}

// Admit runs RoomMeta.Admit as an optimistic transaction: the hash is read
// under WATCH and written back in MULTI/EXEC. A concurrent writer aborts EXEC
// and the whole read-decide-write is retried. The expiry read under WATCH is
// re-applied in the same transaction so a write can never resurrect a key
// without a TTL.
func (r *RedisRoomRepository) Admit(ctx context.Context, roomID, presented, candidate string) (adm domain.Admission, err error) {
	ctx, span := r.tracer.Start(ctx, "roomRepository.Admit")
	defer func() { tracing.End(span, err, "admission decided") }()

	span.SetAttributes(
		tracing.RoomID(roomID),
		tracing.TokenPresented(presented),
	)

	key := metaKey(roomID)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return domain.ErrRoomNotFound
		}

		ttl, err := tx.PTTL(ctx, key).Result()
		if err != nil {
			return err
		}
		if ttl == -2 {
			return domain.ErrRoomNotFound
		}

		meta, err := decodeMeta(roomID, fields)
		if err != nil {
			return err
		}

		adm, err = meta.Admit(presented, candidate)
		if err != nil {
			return err
		}
		if !adm.Minted {
			return nil
		}

		connected, err := encodeConnected(meta.ConnectedTokens)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldConnected, connected, fieldOwnerToken, meta.OwnerToken)
			if ttl > 0 {
				pipe.PExpire(ctx, key, ttl)
			}
			return nil
		})
		return err
	}

	for attempt := 1; attempt <= r.admitRetries; attempt++ {
		adm = domain.Admission{}
		err = r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			span.AddEvent("admission.retry", trace.WithAttributes(attribute.Int("attempt", attempt)))
			continue
		}
		if err != nil {
			return domain.Admission{}, storeError(err)
		}

		span.SetAttributes(
			attribute.Bool("admission.minted", adm.Minted),
			attribute.Bool("admission.owner", adm.IsOwner),
		)
		return adm, nil
	}

	return domain.Admission{}, storeError(errAdmitContention)
}

func (r *RedisRoomRepository) TTL(ctx context.Context, roomID string) (ttl time.Duration, err error) {
	ctx, span := r.tracer.Start(ctx, "roomRepository.TTL")
	defer func() { tracing.End(span, err, "ttl read") }()

	span.SetAttributes(tracing.RoomID(roomID))

	ttl, err = r.client.PTTL(ctx, metaKey(roomID)).Result()
	if err != nil {
		return 0, storeError(err)
	}

	switch {
	case ttl == -2:
		return 0, domain.ErrRoomNotFound
	case ttl < 0:
		// A meta key without expiry is never written by this repository.
		return 0, nil
	}

	return ttl, nil
}

func (r *RedisRoomRepository) ExtendTTL(ctx context.Context, roomID string, by, limit time.Duration) (ttl time.Duration, err error) {
	ctx, span := r.tracer.Start(ctx, "roomRepository.ExtendTTL")
	defer func() { tracing.End(span, err, "ttl extended") }()

	span.SetAttributes(
		tracing.RoomID(roomID),
		attribute.Int64("ttl.extend_ms", by.Milliseconds()),
		attribute.Int64("ttl.limit_ms", limit.Milliseconds()),
	)

	if by <= 0 {
		return 0, domain.ErrInvalidInput
	}

	res, err := extendScript.Run(ctx, r.client, []string{metaKey(roomID)},
		by.Milliseconds(), limit.Milliseconds(),
	).Int64()
	if err != nil {
		return 0, storeError(err)
	}
	if res == -2 {
		return 0, domain.ErrRoomNotFound
	}

	return time.Duration(res) * time.Millisecond, nil
}

func (r *RedisRoomRepository) Delete(ctx context.Context, roomID string) (err error) {
	ctx, span := r.tracer.Start(ctx, "roomRepository.Delete")
	defer func() { tracing.End(span, err, "room deleted") }()

	span.SetAttributes(tracing.RoomID(roomID))

	n, err := r.client.Del(ctx, metaKey(roomID)).Result()
	if err != nil {
		return storeError(err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}

	return nil
}
