// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Dictionary, Postgres, Kafka, Redis, Follower, etc.).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	Follower   FollowerConfig   `yaml:"follower"`
	Logging    LoggingConfig    `yaml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	MaxBodyBytes    int64         `yaml:"maxBodyBytes"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimit is the number of write requests per minute allowed for each
	// API key, or each client address when no key is sent; 0 disables
	// limiting.
	RateLimit   int      `yaml:"rateLimit"`
	CORSOrigins []string `yaml:"corsOrigins"`
	// RequireAPIKey protects the write endpoints with keys stored in
	// PostgreSQL.
	RequireAPIKey bool `yaml:"requireApiKey"`
}

// DictionaryConfig controls how dictionary files are located, ordered and
// locked.
type DictionaryConfig struct {
	// DataDir is the directory served by the HTTP API.
	DataDir string `yaml:"dataDir"`
	// DefaultEncoding is used when "add" creates a missing dictionary. Empty
	// means missing dictionaries are an error.
	DefaultEncoding string `yaml:"defaultEncoding"`
	// Collation is "binary" or a BCP 47 tag; "ru" by default.
	Collation string `yaml:"collation"`
	// LockBackend is "local" or "redis".
	LockBackend string        `yaml:"lockBackend"`
	LockTTL     time.Duration `yaml:"lockTTL"`
	LockWait    time.Duration `yaml:"lockWait"`
	FileMode    uint32        `yaml:"fileMode"`
}

// PostgresConfig holds PostgreSQL connection parameters for the audit log.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
	// HandlerAttempts bounds how often the follower retries one event
	// before giving up and exiting.
	HandlerAttempts int `yaml:"handlerAttempts"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DictionaryChanges string `yaml:"dictionaryChanges"`
}

// RedisConfig holds Redis connection parameters used by the lock backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"poolSize"`
	KeyPrefix string `yaml:"keyPrefix"`
	// LabelCacheTTL enables the detection label cache when positive.
	LabelCacheTTL    time.Duration `yaml:"labelCacheTTL"`
	LabelCachePrefix string        `yaml:"labelCachePrefix"`
}

// FollowerConfig controls the change-event follower.
type FollowerConfig struct {
	MirrorDir string `yaml:"mirrorDir"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls span logging for dictionary operations.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server and, for one-shot CLI
// runs, the Pushgateway.
type MetricsConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Port           int    `yaml:"port"`
	PushGatewayURL string `yaml:"pushGatewayUrl"`
	JobName        string `yaml:"jobName"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration without reading files or the
// environment.
func Default() *Config {
	return defaultConfig()
}

// Validate checks the values that cannot be corrected later.
func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Dictionary.DefaultEncoding) {
	case "", "utf8", "utf-8", "windows1251", "windows-1251", "cp1251":
	default:
		errs = append(errs, fmt.Errorf("dictionary.defaultEncoding: unsupported value %q", c.Dictionary.DefaultEncoding))
	}
	switch c.Dictionary.LockBackend {
	case "local", "redis":
	default:
		errs = append(errs, fmt.Errorf("dictionary.lockBackend: must be \"local\" or \"redis\", got %q", c.Dictionary.LockBackend))
	}
	if c.Dictionary.LockTTL <= 0 {
		errs = append(errs, errors.New("dictionary.lockTTL: must be positive"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers: required when kafka is enabled"))
	}
	if c.Server.RequireAPIKey && !c.Postgres.Enabled {
		errs = append(errs, errors.New("server.requireApiKey: requires postgres.enabled"))
	}
	if c.Redis.LabelCacheTTL < 0 {
		errs = append(errs, errors.New("redis.labelCacheTTL: must not be negative"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimit: must not be negative: %d", c.Server.RateLimit))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port: out of range: %d", c.Server.Port))
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with defaults suitable for local use.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodyBytes:    16 << 20,
			RequestTimeout:  20 * time.Second,
			RateLimit:       120,
		},
		Dictionary: DictionaryConfig{
			DataDir:     "dictionaries",
			Collation:   "ru",
			LockBackend: "local",
			LockTTL:     30 * time.Second,
			LockWait:    10 * time.Second,
			FileMode:    0o644,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "morphdict",
			User:            "morphdict",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "morphdict-follower",
			Topics: KafkaTopics{
				DictionaryChanges: "dictionary-changes",
			},
			HandlerAttempts: 5,
		},
		Redis: RedisConfig{
			Addr:             "localhost:6379",
			PoolSize:         10,
			KeyPrefix:        "morphdict:lock:",
			LabelCachePrefix: "morphdict:label:",
		},
		Follower: FollowerConfig{
			MirrorDir: "mirror",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			JobName: "morphdict",
		},
	}
}

// applyEnvOverrides reads MD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MD_DICTIONARY_DATA_DIR"); v != "" {
		cfg.Dictionary.DataDir = v
	}
	if v := os.Getenv("MD_DICTIONARY_DEFAULT_ENCODING"); v != "" {
		cfg.Dictionary.DefaultEncoding = v
	}
	if v := os.Getenv("MD_DICTIONARY_COLLATION"); v != "" {
		cfg.Dictionary.Collation = v
	}
	if v := os.Getenv("MD_DICTIONARY_LOCK_BACKEND"); v != "" {
		cfg.Dictionary.LockBackend = v
	}
	if v := os.Getenv("MD_POSTGRES_ENABLED"); v != "" {
		cfg.Postgres.Enabled = parseBool(v, cfg.Postgres.Enabled)
	}
	if v := os.Getenv("MD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MD_KAFKA_ENABLED"); v != "" {
		cfg.Kafka.Enabled = parseBool(v, cfg.Kafka.Enabled)
	}
	if v := os.Getenv("MD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MD_REDIS_LABEL_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.LabelCacheTTL = d
		}
	}
	if v := os.Getenv("MD_SERVER_REQUIRE_API_KEY"); v != "" {
		cfg.Server.RequireAPIKey = parseBool(v, cfg.Server.RequireAPIKey)
	}
	if v := os.Getenv("MD_FOLLOWER_MIRROR_DIR"); v != "" {
		cfg.Follower.MirrorDir = v
	}
	if v := os.Getenv("MD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MD_METRICS_PUSHGATEWAY_URL"); v != "" {
		cfg.Metrics.PushGatewayURL = v
	}
}

func parseBool(v string, fallback bool) bool {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
