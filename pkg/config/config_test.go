package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "data/index", cfg.Indexer.DataDir)
	assert.Equal(t, 4, cfg.Indexer.Workers)
	assert.Equal(t, "module-ingest", cfg.Kafka.Topics.ModuleIngest)
	assert.Equal(t, 15*time.Second, cfg.Search.RefreshInterval)
	assert.Empty(t, cfg.Postgres.Host)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
indexer:
  dataDir: /var/lib/classindex
  workers: 2
  selectors:
    - "*:file:*.clazz"
search:
  defaultLimit: 10
  maxResults: 50
`), 0644))

	t.Setenv("CI_INDEXER_WORKERS", "8")
	t.Setenv("CI_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CI_SEARCH_REFRESH_INTERVAL", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/var/lib/classindex", cfg.Indexer.DataDir)
	assert.Equal(t, 8, cfg.Indexer.Workers)
	assert.Equal(t, []string{"*:file:*.clazz"}, cfg.Indexer.Selectors)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 2*time.Second, cfg.Search.RefreshInterval)
	// values absent from the file keep their defaults
	assert.Equal(t, "data/containers", cfg.Indexer.ContainerRoot)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no workers", func(c *Config) { c.Indexer.Workers = 0 }},
		{"no module size", func(c *Config) { c.Indexer.MaxModuleSize = 0 }},
		{"no data dir", func(c *Config) { c.Indexer.DataDir = "" }},
		{"limit above max", func(c *Config) { c.Search.DefaultLimit = c.Search.MaxResults + 1 }},
		{"no refresh interval", func(c *Config) { c.Search.RefreshInterval = 0 }},
		{"negative rate limit", func(c *Config) { c.Server.RateLimit = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	p.Host = "db"
	assert.Equal(t, "host=db port=5432 user=classindex password= dbname=classindex sslmode=disable", p.DSN())
}
