package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gibster/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "configs/config.yaml"
	DefaultBaseURL    = "http://localhost:8000"
)

// Session storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendFailover = "failover"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	API        APIConfig        `yaml:"api"`
	Session    SessionConfig    `yaml:"session"`
	Sync       SyncConfig       `yaml:"sync"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Notify     NotifyConfig     `yaml:"notify"`
	Web        WebConfig        `yaml:"web"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// IsProduction reports whether cookies must carry the Secure attribute.
func (a AppConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(a.Environment))
	return env == "production" || env == "prod"
}

type APIConfig struct {
	BaseURL   string             `yaml:"base_url"`
	Timeout   time.Duration      `yaml:"timeout"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type SessionConfig struct {
	Backend    string        `yaml:"backend"`
	SQLitePath string        `yaml:"sqlite_path"`
	TokenKey   string        `yaml:"token_key"`
	CookieName string        `yaml:"cookie_name"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
}

type SyncConfig struct {
	StartupDelay     time.Duration `yaml:"startup_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	MaxAttempts      int           `yaml:"max_attempts"`
	Timeout          time.Duration `yaml:"timeout"`
	HistoryEvery     int           `yaml:"history_every"`
	FailureThreshold int           `yaml:"failure_threshold"`
	ReloadDelay      time.Duration `yaml:"reload_delay"`
	HistoryLimit     int           `yaml:"history_limit"`
	HistoryRefresh   time.Duration `yaml:"history_refresh"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Debug    bool   `yaml:"debug"`
}

// Enabled reports whether terminal-state notifications are configured.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != 0
}

type WebConfig struct {
	Addr string `yaml:"addr"`
}

type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Path returns the config path from CONFIG_PATH or the default location.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultConfigPath
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// без файла работаем на значениях по умолчанию
	case err != nil:
		return nil, err
	default:
		// Предварительная замена переменных окружения в YAML
		expandedData := []byte(os.ExpandEnv(string(data)))
		if err := yaml.Unmarshal(expandedData, &config); err != nil {
			return nil, err
		}
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("api base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.App.IsProduction() && u.Scheme != "https" {
		return errors.New("api base_url must use https in production")
	}

	switch c.Session.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Session.SQLitePath == "" {
			return errors.New("session sqlite_path is required for sqlite backend")
		}
	case BackendRedis, BackendFailover:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis address is required for %s backend", c.Session.Backend)
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}

	return c.Sync.Validate()
}

// Validate checks the polling parameters for consistency.
func (s SyncConfig) Validate() error {
	if s.PollInterval <= 0 {
		return errors.New("sync poll_interval must be positive")
	}
	if s.MaxAttempts <= 0 {
		return errors.New("sync max_attempts must be positive")
	}
	if s.Timeout <= 0 {
		return errors.New("sync timeout must be positive")
	}
	if s.FailureThreshold <= 0 {
		return errors.New("sync failure_threshold must be positive")
	}
	if s.HistoryLimit <= 0 {
		return errors.New("sync history_limit must be positive")
	}
	if s.StartupDelay < 0 || s.ReloadDelay < 0 || s.HistoryRefresh < 0 {
		return errors.New("sync delays must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "gibster"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}

	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.RateLimit.RPS > 0 && c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 1
	}

	if c.Session.Backend == "" {
		c.Session.Backend = BackendSQLite
	}
	if c.Session.SQLitePath == "" {
		c.Session.SQLitePath = defaultSessionPath()
	}
	if c.Session.TokenKey == "" {
		c.Session.TokenKey = models.DefaultTokenKey
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = models.DefaultTokenCookieName
	}
	if c.Session.RedisTTL == 0 {
		c.Session.RedisTTL = models.TokenCookieMaxAge
	}

	c.Sync.applyDefaults()

	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8090"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

func (s *SyncConfig) applyDefaults() {
	if s.StartupDelay == 0 {
		s.StartupDelay = models.DefaultStartupDelay
	}
	if s.PollInterval == 0 {
		s.PollInterval = models.DefaultPollInterval
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = models.DefaultPollMaxAttempts
	}
	if s.Timeout == 0 {
		s.Timeout = models.DefaultPollTimeout
	}
	if s.HistoryEvery == 0 {
		s.HistoryEvery = models.DefaultHistoryEvery
	}
	if s.FailureThreshold == 0 {
		s.FailureThreshold = models.DefaultFailureThreshold
	}
	if s.ReloadDelay == 0 {
		s.ReloadDelay = models.DefaultReloadDelay
	}
	if s.HistoryLimit == 0 {
		s.HistoryLimit = models.DefaultHistoryLimit
	}
	if s.HistoryRefresh == 0 {
		s.HistoryRefresh = 30 * time.Second
	}
}

// DefaultSync returns the polling parameters with every default applied.
func DefaultSync() SyncConfig {
	var s SyncConfig
	s.applyDefaults()
	return s
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "gibster-session.db"
	}
	return dir + string(os.PathSeparator) + "gibster" + string(os.PathSeparator) + "session.db"
}
