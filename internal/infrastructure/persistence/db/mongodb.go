package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	RoomAuditLogsCollection = "room_audit_logs"

	DefaultDatabase          = "burner"
	DefaultConnectionTimeout = 20 * time.Second
	disconnectTimeout        = 10 * time.Second
)

type MongoConfig struct {
	URI               string
	Database          string
	AppName           string
	ConnectionTimeout time.Duration
}

// Mongo is a connected client bound to the audit database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// ConnectMongo dials and pings the primary; a Mongo that is returned is
// reachable.
func ConnectMongo(ctx context.Context, cfg MongoConfig, logger logging.Logger) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongodb URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = DefaultConnectionTimeout
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(cfg.ConnectionTimeout).
		SetConnectTimeout(cfg.ConnectionTimeout)
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	m := &Mongo{client: client, db: client.Database(cfg.Database)}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectionTimeout)
	defer cancel()
	if err := m.Ping(pingCtx); err != nil {
		_ = m.Close(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	logger.Info(logging.MongoDB, logging.Startup, "connected to mongodb", map[logging.ExtraKey]any{
		"Database": cfg.Database,
	})
	return m, nil
}

func (m *Mongo) Database() *mongo.Database {
	return m.db
}

// Ping checks the primary. It doubles as the readiness check.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, disconnectTimeout)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from mongodb: %w", err)
	}
	return nil
}
