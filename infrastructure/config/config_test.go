package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	domainconfig "github.com/woragis/woragis-sub002/domain/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, EventsLog, cfg.Events.Publisher)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.False(t, cfg.Domain.DedupeConnections)
	assert.False(t, cfg.Domain.ScrubDanglingOnDelete)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "staging")
	t.Setenv("PORT", "9000")
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/canvas")
	t.Setenv("DEDUPE_CONNECTIONS", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ServerAddress)
	assert.Equal(t, StoragePostgres, cfg.Storage.Backend)
	assert.True(t, cfg.Domain.DedupeConnections)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
}

func TestLoad_FileOverlayThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
server_address: ":7000"
storage:
  backend: dynamodb
  table_name: canvas-table
http:
  read_timeout: 3s
domain:
  scrub_dangling_on_delete: true
  max_connections_per_node: 42
`)
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("TABLE_NAME", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ServerAddress)
	assert.Equal(t, StorageDynamoDB, cfg.Storage.Backend)
	assert.Equal(t, "from-env", cfg.Storage.TableName)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	assert.True(t, cfg.Domain.ScrubDanglingOnDelete)
	assert.Equal(t, 42, cfg.Domain.MaxConnectionsPerNode)
	assert.Equal(t, "New Idea", cfg.Domain.DefaultTitle, "unset keys keep the preset")
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "unknown storage backend"},
		{"postgres without url", func(c *Config) { c.Storage.Backend = StoragePostgres }, "DATABASE_URL"},
		{"eventbridge without bus", func(c *Config) {
			c.Events.Publisher = EventsEventBridge
			c.Events.EventBusName = ""
		}, "EVENT_BUS_NAME"},
		{"production without secret", func(c *Config) {
			c.Environment = "production"
			c.Storage.Backend = StorageDynamoDB
		}, "JWT_SECRET"},
		{"bad domain", func(c *Config) { c.Domain.MaxNodesPerIdea = 0 }, "domain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults("development")
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDomainFile_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "domain:\n  max_nodes_per_idea: -1\n")

	_, err := LoadDomainFile(path, "development")
	assert.Error(t, err)
}

func TestWatcher_HotSwapsDomainConfig(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "domain:\n  dedupe_connections: false\n")
	holder := domainconfig.NewHolder(domainconfig.DefaultDomainConfig())

	w := NewWatcher(path, "development", holder, zap.NewNop())
	w.debounce = 10 * time.Millisecond
	reloaded := make(chan *domainconfig.DomainConfig, 1)
	w.OnReload(func(c *domainconfig.DomainConfig) {
		select {
		case reloaded <- c:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register before writing.
	require.Eventually(t, func() bool {
		writeFile(t, path, "domain:\n  dedupe_connections: true\n  scrub_dangling_on_delete: true\n")
		select {
		case c := <-reloaded:
			return c.DedupeConnections
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.True(t, holder.Current().DedupeConnections)
	assert.True(t, holder.Current().ScrubDanglingOnDelete)

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_KeepsPreviousOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "domain: [not, a, map]\n")
	holder := domainconfig.NewHolder(nil)

	w := NewWatcher(path, "development", holder, zap.NewNop())
	w.reload()

	assert.Equal(t, *domainconfig.DefaultDomainConfig(), *holder.Current())
}
