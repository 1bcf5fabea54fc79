package configs

import (
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/burner/internal/infrastructure/env"
	"github.com/hilthontt/burner/internal/infrastructure/validate"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	StoreDriverRedis  = "redis"
	StoreDriverMemory = "memory"
)

type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	RateLimiter RateLimiterConfig `koanf:"rateLimiter"`
	Store       StoreConfig       `koanf:"store"`
	Redis       RedisConfig       `koanf:"redis"`
	Room        RoomConfig        `koanf:"room"`
	Relay       RelayConfig       `koanf:"relay"`
	RabbitMQ    RabbitMQConfig    `koanf:"rabbitmq"`
	Mongo       MongoConfig       `koanf:"mongo"`
	Tracing     TracingConfig     `koanf:"tracing"`
	Logger      LoggerConfig      `koanf:"logger"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           uint16        `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
	SecureCookies  bool          `koanf:"secure_cookies"`
}

type RateLimiterConfig struct {
	MaxRatePerSecond int           `koanf:"maxRatePerSecond"`
	MaxBurst         int           `koanf:"maxBurst"`
	CacheTTL         time.Duration `koanf:"cacheTTL"`
	SourceHeaderKey  string        `koanf:"sourceHeaderKey"`
}

type StoreConfig struct {
	Driver           string        `koanf:"driver"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	AdmitRetries     int           `koanf:"admit_retries"`
}

type RedisConfig struct {
	URL      string `koanf:"url"`
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RoomConfig struct {
	DefaultTTL   time.Duration `koanf:"default_ttl"`
	MaxTTL       time.Duration `koanf:"max_ttl"`
	MaxExtension time.Duration `koanf:"max_extension"`
}

type RelayConfig struct {
	TTLSyncInterval      time.Duration `koanf:"ttl_sync_interval"`
	OwnerOnlyDestroy     bool          `koanf:"owner_only_destroy"`
	SendBuffer           int           `koanf:"send_buffer"`
	MaxMessageSize       int64         `koanf:"max_message_size"`
	MaxMessagesPerSecond int           `koanf:"max_messages_per_second"`
}

type RabbitMQConfig struct {
	URI string `koanf:"uri"`
}

type MongoConfig struct {
	URI      string `koanf:"uri"`
	Database string `koanf:"database"`
}

type TracingConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Environment string  `koanf:"environment"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

type LoggerConfig struct {
	Logger   string `koanf:"logger"`
	Level    string `koanf:"level"`
	Encoding string `koanf:"encoding"`
	FilePath string `koanf:"file_path"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load from YAML file if it exists
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Field("store.driver", validate.OneOf(StoreDriverRedis, StoreDriverMemory))(c.Store.Driver); err != nil {
		return err
	}
	if c.Store.Driver == StoreDriverRedis && c.Redis.URL == "" && c.Redis.Addr == "" {
		return errors.New("redis.url or redis.addr is required for the redis store")
	}
	if err := validate.Field("logger.logger", validate.OneOf("zap", "zerolog", "nop"))(c.Logger.Logger); err != nil {
		return err
	}

	if c.Room.DefaultTTL <= 0 {
		return errors.New("room.default_ttl must be positive")
	}
	if c.Room.MaxTTL < c.Room.DefaultTTL {
		return errors.New("room.max_ttl must be at least room.default_ttl")
	}
	if c.Room.MaxExtension <= 0 {
		return errors.New("room.max_extension must be positive")
	}
	if c.Relay.TTLSyncInterval <= 0 {
		return errors.New("relay.ttl_sync_interval must be positive")
	}

	return nil
}

func applyDefaults(k *koanf.Koanf) {
	// HTTP defaults
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 5000)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})
	setDefault(k, "http.secure_cookies", false)

	// Rate limiter defaults
	setDefault(k, "rateLimiter.maxRatePerSecond", 10)
	setDefault(k, "rateLimiter.maxBurst", 20)
	setDefault(k, "rateLimiter.cacheTTL", 5*time.Minute)
	setDefault(k, "rateLimiter.sourceHeaderKey", "X-Forwarded-For")

	// Store defaults
	setDefault(k, "store.driver", StoreDriverMemory)
	setDefault(k, "store.operation_timeout", 2*time.Second)
	setDefault(k, "store.admit_retries", 16)
	setDefault(k, "redis.db", 0)

	// Room lifetime defaults
	setDefault(k, "room.default_ttl", 10*time.Minute)
	setDefault(k, "room.max_ttl", 24*time.Hour)
	setDefault(k, "room.max_extension", time.Hour)

	// Relay defaults
	setDefault(k, "relay.ttl_sync_interval", time.Second)
	setDefault(k, "relay.owner_only_destroy", false)
	setDefault(k, "relay.send_buffer", 64)
	setDefault(k, "relay.max_message_size", 32768)
	setDefault(k, "relay.max_messages_per_second", 20)

	setDefault(k, "mongo.database", "burner")
	setDefault(k, "tracing.enabled", false)
	setDefault(k, "tracing.endpoint", "http://localhost:4318/v1/traces")
	setDefault(k, "tracing.environment", "development")
	setDefault(k, "tracing.sample_ratio", 1.0)

	setDefault(k, "logger.logger", "zap")
	setDefault(k, "logger.level", "info")
	setDefault(k, "logger.encoding", "json")
	setDefault(k, "logger.file_path", "")
}

func applyEnvOverrides(k *koanf.Koanf) {
	// HTTP config from env
	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if readTimeout := env.GetInt("HTTP_READ_TIMEOUT_SECONDS", 0); readTimeout > 0 {
		k.Set("http.read_timeout", time.Duration(readTimeout)*time.Second)
	}
	if writeTimeout := env.GetInt("HTTP_WRITE_TIMEOUT_SECONDS", 0); writeTimeout > 0 {
		k.Set("http.write_timeout", time.Duration(writeTimeout)*time.Second)
	}
	if env.GetString("ENVIRONMENT", "") == "production" {
		k.Set("http.secure_cookies", true)
	}

	// Rate limiter config from env
	if maxRate := env.GetInt("RATE_LIMIT_MAX_RATE_PER_SECOND", 0); maxRate > 0 {
		k.Set("rateLimiter.maxRatePerSecond", maxRate)
	}
	if maxBurst := env.GetInt("RATE_LIMIT_MAX_BURST", 0); maxBurst > 0 {
		k.Set("rateLimiter.maxBurst", maxBurst)
	}
	if sourceKey := env.GetString("RATE_LIMIT_SOURCE_HEADER_KEY", ""); sourceKey != "" {
		k.Set("rateLimiter.sourceHeaderKey", sourceKey)
	}

	// Store config from env
	if driver := env.GetString("STORE_DRIVER", ""); driver != "" {
		k.Set("store.driver", driver)
	}
	if timeout := env.GetDuration("STORE_OPERATION_TIMEOUT", 0); timeout > 0 {
		k.Set("store.operation_timeout", timeout)
	}
	if url := env.GetString("REDIS_URL", ""); url != "" {
		k.Set("redis.url", url)
	}
	if addr := env.GetString("REDIS_ADDR", ""); addr != "" {
		k.Set("redis.addr", addr)
	}
	if password := env.GetString("REDIS_PASSWORD", ""); password != "" {
		k.Set("redis.password", password)
	}

	// Room and relay config from env
	if ttl := env.GetDuration("ROOM_DEFAULT_TTL", 0); ttl > 0 {
		k.Set("room.default_ttl", ttl)
	}
	if ttl := env.GetDuration("ROOM_MAX_TTL", 0); ttl > 0 {
		k.Set("room.max_ttl", ttl)
	}
	if interval := env.GetDuration("RELAY_TTL_SYNC_INTERVAL", 0); interval > 0 {
		k.Set("relay.ttl_sync_interval", interval)
	}
	if ownerOnly := env.GetString("RELAY_OWNER_ONLY_DESTROY", ""); ownerOnly != "" {
		k.Set("relay.owner_only_destroy", env.GetBool("RELAY_OWNER_ONLY_DESTROY", false))
	}

	// Optional collaborators
	if uri := env.GetString("RABBITMQ_URI", ""); uri != "" {
		k.Set("rabbitmq.uri", uri)
	}
	if uri := env.GetString("MONGODB_URI", ""); uri != "" {
		k.Set("mongo.uri", uri)
	}
	if database := env.GetString("MONGODB_DATABASE", ""); database != "" {
		k.Set("mongo.database", database)
	}
	if endpoint := env.GetString("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""); endpoint != "" {
		k.Set("tracing.enabled", true)
		k.Set("tracing.endpoint", endpoint)
	}

	// Logger config from env
	if logger := env.GetString("LOGGER_LOGGER", ""); logger != "" {
		k.Set("logger.logger", logger)
	}
	if level := env.GetString("LOGGER_LEVEL", ""); level != "" {
		k.Set("logger.level", level)
	}
	if encoding := env.GetString("LOGGER_ENCODING", ""); encoding != "" {
		k.Set("logger.encoding", encoding)
	}
	if filePath := env.GetString("LOGGER_FILE_PATH", ""); filePath != "" {
		k.Set("logger.file_path", filePath)
	}
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
