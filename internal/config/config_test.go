package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gibster/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("GIBSTER_API", "https://gibster.example.com/")

	yamlContent := `
app:
  environment: production
api:
  base_url: "${GIBSTER_API}"
session:
  backend: memory
sync:
  poll_interval: 2s
  max_attempts: 10
notify:
  telegram:
    bot_token: "token"
    chat_id: 42
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://gibster.example.com", cfg.API.BaseURL)
	assert.True(t, cfg.App.IsProduction())
	assert.Equal(t, BackendMemory, cfg.Session.Backend)
	assert.Equal(t, 2*time.Second, cfg.Sync.PollInterval)
	assert.Equal(t, 10, cfg.Sync.MaxAttempts)
	assert.Equal(t, models.DefaultPollTimeout, cfg.Sync.Timeout)
	assert.True(t, cfg.Notify.Telegram.Enabled())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.API.BaseURL)
	assert.Equal(t, BackendSQLite, cfg.Session.Backend)
	assert.False(t, cfg.App.IsProduction())
	assert.False(t, cfg.Notify.Telegram.Enabled())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("api: [unclosed"), 0o644))

	_, err := Load(configPath)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{}
		c.applyDefaults()
		c.Session.Backend = BackendMemory
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: true},
		{name: "ftp base url", mutate: func(c *Config) { c.API.BaseURL = "ftp://host" }, wantErr: true},
		{
			name: "production over http",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.API.BaseURL = "http://gibster.example.com"
			},
			wantErr: true,
		},
		{
			name: "production over https",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.API.BaseURL = "https://gibster.example.com"
			},
		},
		{name: "unknown backend", mutate: func(c *Config) { c.Session.Backend = "etcd" }, wantErr: true},
		{name: "redis without address", mutate: func(c *Config) { c.Session.Backend = BackendRedis }, wantErr: true},
		{
			name: "failover with address",
			mutate: func(c *Config) {
				c.Session.Backend = BackendFailover
				c.Redis.Address = "localhost:6379"
			},
		},
		{name: "zero attempts", mutate: func(c *Config) { c.Sync.MaxAttempts = -1 }, wantErr: true},
		{name: "negative reload delay", mutate: func(c *Config) { c.Sync.ReloadDelay = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, models.DefaultStartupDelay, cfg.Sync.StartupDelay)
	assert.Equal(t, models.DefaultPollInterval, cfg.Sync.PollInterval)
	assert.Equal(t, models.DefaultPollMaxAttempts, cfg.Sync.MaxAttempts)
	assert.Equal(t, models.DefaultHistoryEvery, cfg.Sync.HistoryEvery)
	assert.Equal(t, models.DefaultFailureThreshold, cfg.Sync.FailureThreshold)
	assert.Equal(t, models.DefaultReloadDelay, cfg.Sync.ReloadDelay)
	assert.Equal(t, models.DefaultHistoryLimit, cfg.Sync.HistoryLimit)
	assert.Equal(t, models.DefaultTokenKey, cfg.Session.TokenKey)
	assert.Equal(t, models.TokenCookieMaxAge, cfg.Session.RedisTTL)
	assert.Equal(t, ":8090", cfg.Web.Addr)
	assert.Zero(t, cfg.API.RateLimit.Burst)

	cfg.API.RateLimit.RPS = 5
	cfg.applyDefaults()
	assert.Equal(t, 1, cfg.API.RateLimit.Burst)
}

func TestPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	assert.Equal(t, DefaultConfigPath, Path())

	t.Setenv("CONFIG_PATH", "/etc/gibster.yaml")
	assert.Equal(t, "/etc/gibster.yaml", Path())
}
