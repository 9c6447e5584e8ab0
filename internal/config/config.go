package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds runtime configuration for ratingpart.
type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Log          LogConfig          `yaml:"log"`
	Server       ServerConfig       `yaml:"server"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Worker       WorkerConfig       `yaml:"worker"`
}

// DatabaseConfig describes how to reach the relational store.
type DatabaseConfig struct {
	Driver        string `yaml:"driver"` // "postgres" or "sqlite"
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Name          string `yaml:"name"`
	AdminDatabase string `yaml:"admin_database"` // used by bootstrap
	SSLMode       string `yaml:"sslmode"`
	// Path is the database file for the sqlite driver.
	Path string `yaml:"path"`
	// BusyTimeout bounds how long sqlite waits on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PartitioningConfig holds the naming convention shared by partitioners and inserts.
type PartitioningConfig struct {
	RatingsTable     string `yaml:"ratings_table"`
	RangePrefix      string `yaml:"range_prefix"`
	RoundRobinPrefix string `yaml:"rrobin_prefix"`
	CounterTable     string `yaml:"counter_table"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	Metrics     bool   `yaml:"metrics"`
	MaxBodySize int64  `yaml:"max_body_size"`
}

// KafkaConfig configures the streaming rating feed.
type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	GroupID      string        `yaml:"group_id"`
	Scheme       string        `yaml:"scheme"` // default scheme for messages without one
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// WorkerConfig configures the insert worker pool.
type WorkerConfig struct {
	Workers      int           `yaml:"workers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	QueueSize    int           `yaml:"queue_size"`
}

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:        DriverPostgres,
			Host:          "localhost",
			Port:          5432,
			User:          "postgres",
			Name:          "dds_assgn1",
			AdminDatabase: "postgres",
			SSLMode:       "disable",
			Path:          "ratings.db",
			BusyTimeout:   5 * time.Second,
		},
		Partitioning: PartitioningConfig{
			RatingsTable:     "ratings",
			RangePrefix:      "range_part",
			RoundRobinPrefix: "rrobin_part",
			CounterTable:     "round_robin_counter",
		},
		Log: LogConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Addr:        ":8080",
			Metrics:     true,
			MaxBodySize: 1 << 20,
		},
		Kafka: KafkaConfig{
			Brokers:      []string{"localhost:9092"},
			Topic:        "ratings",
			GroupID:      "ratingpart",
			Scheme:       "roundrobin",
			MaxRetries:   3,
			RetryBackoff: 100 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
		},
		Worker: WorkerConfig{
			Workers:      4,
			BatchSize:    50,
			BatchTimeout: 100 * time.Millisecond,
			QueueSize:    1000,
		},
	}
}

// Load reads a yaml config file on top of Default and applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides fields from RATINGPART_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	str("RATINGPART_DB_DRIVER", &c.Database.Driver)
	str("RATINGPART_DB_HOST", &c.Database.Host)
	str("RATINGPART_DB_USER", &c.Database.User)
	str("RATINGPART_DB_PASSWORD", &c.Database.Password)
	str("RATINGPART_DB_NAME", &c.Database.Name)
	str("RATINGPART_DB_PATH", &c.Database.Path)
	str("RATINGPART_LOG_LEVEL", &c.Log.Level)
	str("RATINGPART_SERVER_ADDR", &c.Server.Addr)
	str("RATINGPART_KAFKA_TOPIC", &c.Kafka.Topic)

	if v, ok := lookup("RATINGPART_DB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid RATINGPART_DB_PORT %q: %w", v, err)
		}
		c.Database.Port = port
	}

	if v, ok := lookup("RATINGPART_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = strings.Split(v, ",")
	}

	return nil
}

// Validate checks the configuration for logical consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Host == "" {
			return errors.New("database host is required")
		}
		if c.Database.Name == "" {
			return errors.New("database name is required")
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be one of: postgres, sqlite)", c.Database.Driver)
	}

	names := map[string]string{
		"ratings_table": c.Partitioning.RatingsTable,
		"range_prefix":  c.Partitioning.RangePrefix,
		"rrobin_prefix": c.Partitioning.RoundRobinPrefix,
		"counter_table": c.Partitioning.CounterTable,
	}
	for field, name := range names {
		if !identifierPattern.MatchString(name) {
			return fmt.Errorf("partitioning %s %q is not a valid identifier", field, name)
		}
	}

	if strings.HasPrefix(c.Partitioning.RangePrefix, c.Partitioning.RoundRobinPrefix) ||
		strings.HasPrefix(c.Partitioning.RoundRobinPrefix, c.Partitioning.RangePrefix) {
		return errors.New("range and round-robin prefixes must not overlap")
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("at least one kafka broker is required")
		}
		if c.Kafka.Topic == "" {
			return errors.New("kafka topic is required")
		}
	}

	if c.Worker.Workers < 0 || c.Worker.BatchSize < 0 {
		return errors.New("worker counts cannot be negative")
	}

	return nil
}
