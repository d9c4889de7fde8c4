// Package config provides configuration loading and management for OrderBus.
// It supports loading configuration from YAML files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// StorageMode represents the storage backend mode.
type StorageMode string

const (
	// StorageModeMemory uses in-memory implementations for the queue and all stores.
	StorageModeMemory StorageMode = "memory"
	// StorageModeStorage uses real backends (Redis, PostgreSQL, Kafka).
	StorageModeStorage StorageMode = "storage"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeStorage
}

// Config represents the complete application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Queue     QueueConfig     `yaml:"queue"`
	Worker    WorkerConfig    `yaml:"worker"`
	Processor ProcessorConfig `yaml:"processor"`
	Redis     RedisConfig     `yaml:"redis"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode" env:"ORDERBUS_STORAGE_MODE"`
}

// UseMemory returns true if in-memory storage should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseStorage returns true if real storage backends should be used.
func (c *StorageConfig) UseStorage() bool {
	return c.Mode == StorageModeStorage
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"ORDERBUS_SERVER_HOST"`
	Port         int           `yaml:"port" env:"ORDERBUS_SERVER_PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// QueueConfig holds the settings of the order queue.
type QueueConfig struct {
	// Name accepts QUEUE_NAME for compatibility with existing deployments.
	Name             string        `yaml:"name" env:"ORDERBUS_QUEUE_NAME,QUEUE_NAME"`
	LockDuration     time.Duration `yaml:"lock_duration" env:"ORDERBUS_QUEUE_LOCK_DURATION"`
	MaxDeliveryCount int           `yaml:"max_delivery_count" env:"ORDERBUS_QUEUE_MAX_DELIVERY_COUNT"`
}

// WorkerConfig holds the delivery loop settings.
type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency" env:"ORDERBUS_WORKER_CONCURRENCY"`
	BatchSize   int           `yaml:"batch_size"`
	MaxWait     time.Duration `yaml:"max_wait"`
	RetryBudget int           `yaml:"retry_budget"`
	BaseBackoff time.Duration `yaml:"base_backoff"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// ProcessorConfig holds order processing settings.
type ProcessorConfig struct {
	// DiscountPercent is applied to every order when set, e.g. "10" or "2.5".
	DiscountPercent string `yaml:"discount_percent" env:"ORDERBUS_DISCOUNT_PERCENT"`
	DedupCacheSize  int    `yaml:"dedup_cache_size"`

	// ProcessedTTL is how long a processed order id stays in the ledger.
	ProcessedTTL time.Duration `yaml:"processed_ttl"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host      string `yaml:"host" env:"ORDERBUS_REDIS_HOST"`
	Port      int    `yaml:"port" env:"ORDERBUS_REDIS_PORT"`
	Password  string `yaml:"password" env:"ORDERBUS_REDIS_PASSWORD"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `yaml:"host" env:"ORDERBUS_POSTGRES_HOST"`
	Port         int    `yaml:"port" env:"ORDERBUS_POSTGRES_PORT"`
	User         string `yaml:"user" env:"ORDERBUS_POSTGRES_USER"`
	Password     string `yaml:"password" env:"ORDERBUS_POSTGRES_PASSWORD"`
	Database     string `yaml:"database" env:"ORDERBUS_POSTGRES_DATABASE"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int32  `yaml:"max_open_conns"`
	MaxIdleConns int32  `yaml:"max_idle_conns"`
}

// KafkaConfig holds the settings of the order notification topic.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" env:"ORDERBUS_KAFKA_BROKERS" env-separator:","`
	Topic   string   `yaml:"topic" env:"ORDERBUS_KAFKA_TOPIC"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level" env:"ORDERBUS_LOG_LEVEL"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from the specified YAML file path, then applies
// environment overrides and defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	// Clean the path to prevent path traversal attacks
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from environment variables and defaults only.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := finish(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func finish(cfg *Config) error {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}

	applyDefaults(cfg)

	if !cfg.Storage.Mode.IsValid() {
		return fmt.Errorf("invalid storage mode %q", cfg.Storage.Mode)
	}
	return nil
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}

	// Queue defaults
	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "order-processing-queue"
	}
	if cfg.Queue.LockDuration == 0 {
		cfg.Queue.LockDuration = 30 * time.Second
	}
	if cfg.Queue.MaxDeliveryCount == 0 {
		cfg.Queue.MaxDeliveryCount = 10
	}

	// Worker defaults
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = 4
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.MaxWait == 0 {
		cfg.Worker.MaxWait = 5 * time.Second
	}
	if cfg.Worker.RetryBudget == 0 {
		cfg.Worker.RetryBudget = 5
	}
	if cfg.Worker.BaseBackoff == 0 {
		cfg.Worker.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.Worker.MaxBackoff == 0 {
		cfg.Worker.MaxBackoff = 5 * time.Second
	}

	// Processor defaults
	if cfg.Processor.DedupCacheSize == 0 {
		cfg.Processor.DedupCacheSize = 10000
	}
	if cfg.Processor.ProcessedTTL == 0 {
		cfg.Processor.ProcessedTTL = 7 * 24 * time.Hour
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "orderbus"
	}

	// Postgres defaults
	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.Postgres.MaxOpenConns == 0 {
		cfg.Postgres.MaxOpenConns = 25
	}
	if cfg.Postgres.MaxIdleConns == 0 {
		cfg.Postgres.MaxIdleConns = 5
	}

	// Kafka defaults
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "orderbus-processed-orders"
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns the connection URL used by the migration runner.
func (c *PostgresConfig) MigrationURL() string {
	return fmt.Sprintf(
		"pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
