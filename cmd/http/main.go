package main

import (
	"context"
	"expvar"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/hilthontt/burner/internal/application/gate"
	"github.com/hilthontt/burner/internal/application/rooms"
	"github.com/hilthontt/burner/internal/domain"
	"github.com/hilthontt/burner/internal/infrastructure/configs"
	"github.com/hilthontt/burner/internal/infrastructure/events"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/messaging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
	"github.com/hilthontt/burner/internal/infrastructure/persistence/db"
	"github.com/hilthontt/burner/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/burner/internal/infrastructure/repository"
	"github.com/hilthontt/burner/internal/infrastructure/tracing"
	"github.com/hilthontt/burner/internal/infrastructure/ws"
	"github.com/hilthontt/burner/internal/presentation/api"
	"github.com/hilthontt/burner/internal/presentation/handler/health"
	roomHandler "github.com/hilthontt/burner/internal/presentation/handler/rooms"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName     = "burner-http"
	janitorInterval = time.Minute
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	configPath, err := configs.ResolveConfigPath(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	cfg, err := configs.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.LoggerConfig{
		FilePath: cfg.Logger.FilePath,
		Encoding: cfg.Logger.Encoding,
		Level:    cfg.Logger.Level,
		Logger:   cfg.Logger.Logger,
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(tracing.Config{
		ServiceName: serviceName,
		Environment: cfg.Tracing.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		Enabled:     cfg.Tracing.Enabled,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Fatal(logging.General, logging.Startup, "failed to initialize the tracer", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
	defer shutdownTracer(context.Background())

	m := metrics.New()
	checks := map[string]health.Check{}

	// Room store
	var (
		roomStore domain.RoomRepository
		rlCache   ratelimiter.GetterSetter
	)
	switch cfg.Store.Driver {
	case configs.StoreDriverRedis:
		redisClient, err := newRedisClient(cfg.Redis)
		if err != nil {
			logger.Fatal(logging.Redis, logging.Startup, "invalid redis configuration", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal(logging.Redis, logging.Startup, "redis is unreachable", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}

		roomStore = repository.NewRedisRoomRepository(redisClient, tracing.GetTracer(serviceName), cfg.Store.AdmitRetries)
		rlCache = ratelimiter.NewRedis(redisClient)
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}

	default:
		memoryStore := repository.NewMemoryRoomRepository()
		go memoryStore.RunJanitor(ctx, janitorInterval)
		roomStore = memoryStore

		logger.Warn(logging.General, logging.Startup, "using the in-memory room store; state is lost on restart", nil)
	}

	// Room events, optional
	var publisher events.RoomEvents = events.NopPublisher{}
	if cfg.RabbitMQ.URI != "" {
		rabbitmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ.URI, logger)
		if err != nil {
			logger.Fatal(logging.RabbitMQ, logging.Startup, "failed to connect to rabbitmq", map[logging.ExtraKey]any{
				logging.ErrorMessage: err.Error(),
			})
		}
		defer rabbitmq.Close()
		publisher = events.NewRoomPublisher(rabbitmq)

		if cfg.Mongo.URI != "" {
			mongo, err := db.ConnectMongo(ctx, db.MongoConfig{
				URI:      cfg.Mongo.URI,
				Database: cfg.Mongo.Database,
				AppName:  serviceName,
			}, logger)
			if err != nil {
				logger.Fatal(logging.MongoDB, logging.Startup, "failed to connect to mongodb", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
			defer mongo.Close(context.Background())

			auditRepository := repository.NewRoomAuditLogRepository(mongo.Database())
			if err := auditRepository.EnsureIndexes(ctx); err != nil {
				logger.Warn(logging.MongoDB, logging.Startup, "failed to ensure audit log indexes", map[logging.ExtraKey]any{
					logging.ErrorMessage: err.Error(),
				})
			}
			checks["mongodb"] = mongo.Ping

			roomConsumer := events.NewRoomConsumer(rabbitmq, auditRepository, logger)
			go func() {
				if err := roomConsumer.Listen(ctx); err != nil {
					logger.Error(logging.RabbitMQ, logging.Consume, "room consumer stopped", map[logging.ExtraKey]any{
						logging.ErrorMessage: err.Error(),
					})
				}
			}()
		}
	}

	// Relay
	core := ws.NewCore(logger, m)
	go core.Run(ctx)

	service := rooms.NewService(rooms.Config{
		DefaultTTL:           cfg.Room.DefaultTTL,
		MaxTTL:               cfg.Room.MaxTTL,
		MaxExtension:         cfg.Room.MaxExtension,
		OwnerOnlyDestroy:     cfg.Relay.OwnerOnlyDestroy,
		OperationTimeout:     cfg.Store.OperationTimeout,
		MaxMessagesPerSecond: cfg.Relay.MaxMessagesPerSecond,
	}, roomStore, core, publisher, m, logger)

	watcher := rooms.NewTTLWatcher(service, cfg.Relay.TTLSyncInterval)
	go watcher.Run(ctx)

	roomGate := gate.New(roomStore, publisher, m, logger, cfg.Store.OperationTimeout)

	rl := ratelimiter.New(ratelimiter.Options{
		MaxRatePerSecond: cfg.RateLimiter.MaxRatePerSecond,
		MaxBurst:         cfg.RateLimiter.MaxBurst,
		Cache:            rlCache,
		CacheTTL:         cfg.RateLimiter.CacheTTL,
		SourceHeaderKey:  cfg.RateLimiter.SourceHeaderKey,
	})

	rh := roomHandler.NewHandler(service, core, logger, cfg.HTTP.AllowedOrigins, ws.ClientOptions{
		SendBuffer:     cfg.Relay.SendBuffer,
		MaxMessageSize: cfg.Relay.MaxMessageSize,
	})
	app := api.NewApplication(*cfg, rh, health.NewHandler(checks), roomGate, m.Handler(), logger, rl)

	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	if err := app.Run(ctx, app.Mount()); err != nil {
		logger.Error(logging.General, logging.Shutdown, "server stopped with error", map[logging.ExtraKey]any{
			logging.ErrorMessage: err.Error(),
		})
	}
}

func newRedisClient(cfg configs.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		return redis.NewClient(opts), nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
