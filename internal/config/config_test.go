package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, "range_part", cfg.Partitioning.RangePrefix)
	require.Equal(t, "rrobin_part", cfg.Partitioning.RoundRobinPrefix)
	require.Equal(t, "round_robin_counter", cfg.Partitioning.CounterTable)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ratingpart.yaml")
	data := `
database:
  driver: sqlite
  path: /tmp/movies.db
  busy_timeout: 2s
partitioning:
  ratings_table: movie_ratings
log:
  level: debug
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
  topic: movie-ratings
worker:
  workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DriverSQLite, cfg.Database.Driver)
	require.Equal(t, "/tmp/movies.db", cfg.Database.Path)
	require.Equal(t, 2*time.Second, cfg.Database.BusyTimeout)
	require.Equal(t, "movie_ratings", cfg.Partitioning.RatingsTable)
	require.Equal(t, "range_part", cfg.Partitioning.RangePrefix)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, 8, cfg.Worker.Workers)
	require.Equal(t, 50, cfg.Worker.BatchSize)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RATINGPART_DB_HOST":       "db.internal",
		"RATINGPART_DB_PORT":       "6543",
		"RATINGPART_DB_PASSWORD":   "secret",
		"RATINGPART_KAFKA_BROKERS": "a:9092,b:9092",
		"RATINGPART_LOG_LEVEL":     "warn",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	require.Equal(t, "db.internal", cfg.Database.Host)
	require.Equal(t, 6543, cfg.Database.Port)
	require.Equal(t, "secret", cfg.Database.Password)
	require.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	require.Equal(t, "warn", cfg.Log.Level)

	env["RATINGPART_DB_PORT"] = "not-a-port"
	require.Error(t, Default().applyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without host", func(c *Config) { c.Database.Host = "" }},
		{"sqlite without path", func(c *Config) {
			c.Database.Driver = DriverSQLite
			c.Database.Path = ""
		}},
		{"bad table identifier", func(c *Config) { c.Partitioning.RatingsTable = "ratings; DROP TABLE x" }},
		{"uppercase prefix", func(c *Config) { c.Partitioning.RangePrefix = "Range" }},
		{"overlapping prefixes", func(c *Config) {
			c.Partitioning.RangePrefix = "part"
			c.Partitioning.RoundRobinPrefix = "part_rr"
		}},
		{"kafka without topic", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Topic = ""
		}},
		{"negative workers", func(c *Config) { c.Worker.Workers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
