package configs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Store.Driver != StoreDriverMemory {
		t.Errorf("store.driver = %q", cfg.Store.Driver)
	}
	if cfg.Room.DefaultTTL != 10*time.Minute {
		t.Errorf("room.default_ttl = %v", cfg.Room.DefaultTTL)
	}
	if cfg.Relay.TTLSyncInterval != time.Second {
		t.Errorf("relay.ttl_sync_interval = %v", cfg.Relay.TTLSyncInterval)
	}
	if cfg.HTTP.Port != 5000 {
		t.Errorf("http.port = %d", cfg.HTTP.Port)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: redis
redis:
  addr: localhost:6379
room:
  default_ttl: 5m
  max_ttl: 1h
relay:
  owner_only_destroy: true
`)
	t.Setenv("ROOM_DEFAULT_TTL", "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Store.Driver != StoreDriverRedis || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("store = %+v, redis = %+v", cfg.Store, cfg.Redis)
	}
	if cfg.Room.DefaultTTL != 2*time.Minute {
		t.Errorf("env override ignored: default_ttl = %v", cfg.Room.DefaultTTL)
	}
	if cfg.Room.MaxTTL != time.Hour {
		t.Errorf("room.max_ttl = %v", cfg.Room.MaxTTL)
	}
	if !cfg.Relay.OwnerOnlyDestroy {
		t.Error("relay.owner_only_destroy not read from file")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := map[string]struct {
		body string
		want string
	}{
		"redis without address": {"store:\n  driver: redis\n", "redis.url or redis.addr"},
		"unknown driver":        {"store:\n  driver: etcd\n", "store.driver: must be one of: redis, memory"},
		"unknown logger":        {"logger:\n  logger: logrus\n", "logger.logger: must be one of: zap, zerolog, nop"},
		"max below default":     {"room:\n  default_ttl: 1h\n  max_ttl: 10m\n", "room.max_ttl"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	t.Setenv("BURNER_CONFIG", "/from/env.yaml")

	got, err := ResolveConfigPath([]string{"--config", "/from/flag.yaml"})
	if err != nil || got != "/from/flag.yaml" {
		t.Fatalf("flag: got %q, %v", got, err)
	}

	got, err = ResolveConfigPath(nil)
	if err != nil || got != "/from/env.yaml" {
		t.Fatalf("env: got %q, %v", got, err)
	}

	if _, err := ResolveConfigPath([]string{"--bogus"}); err == nil {
		t.Fatal("expected an error for an unknown flag")
	}
}
