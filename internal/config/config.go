package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Environment string `yaml:"environment"`
		InstanceID  string `yaml:"instance_id"`
	} `yaml:"app"`

	HTTP struct {
		Port           int      `yaml:"port"`
		AdminAPIKey    string   `yaml:"admin_api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		TTLSeconds int `yaml:"ttl_seconds"`
	} `yaml:"cache"`

	Store StoreConfig `yaml:"store"`

	Telegram TelegramConfig `yaml:"telegram"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Audit struct {
		RetentionDays int  `yaml:"retention_days"`
		ExportOnStart bool `yaml:"export_on_start"`
	} `yaml:"audit"`
}

// BackupConfig controls periodic copies of the sqlite file.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// StoreConfig describes where and how the store schedule is evaluated.
type StoreConfig struct {
	Timezone           string `yaml:"timezone"`
	HoursFile          string `yaml:"hours_file"`
	HoursReloadSeconds int    `yaml:"hours_reload_seconds"`
	RetryDelaySeconds  int    `yaml:"retry_delay_seconds"`
	MaxSleepHours      int    `yaml:"max_sleep_hours"`
}

// TelegramConfig configures manager notifications.
type TelegramConfig struct {
	BotToken       string          `yaml:"bot_token"`
	ManagerChatIDs []int64         `yaml:"manager_chat_ids"`
	RateLimit      float64         `yaml:"rate_limit"`
	RetryDelays    []time.Duration `yaml:"retry_delays"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if _, err = cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Environment == "" {
		c.App.Environment = "production"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/pizzeria.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.Backup.IntervalHours <= 0 {
		c.Backup.IntervalHours = 24
	}
	if c.Store.Timezone == "" {
		c.Store.Timezone = "Local"
	}
	if c.Store.HoursFile == "" {
		c.Store.HoursFile = "configs/hours.yaml"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 365
	}
}

// IsDevelopment reports whether debug logging should be enabled.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// Location returns the store time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Store.Timezone)
	if err != nil {
		return nil, fmt.Errorf("store.timezone %q: %w", c.Store.Timezone, err)
	}
	return loc, nil
}

// RetryDelay is how long the monitor waits after a failed load.
func (c *Config) RetryDelay() time.Duration {
	if c.Store.RetryDelaySeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Store.RetryDelaySeconds) * time.Second
}

// MaxSleep caps a single monitor timer.
func (c *Config) MaxSleep() time.Duration {
	if c.Store.MaxSleepHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Store.MaxSleepHours) * time.Hour
}

// HoursReloadInterval is the polling interval of the hours file watcher.
func (c *Config) HoursReloadInterval() time.Duration {
	if c.Store.HoursReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Store.HoursReloadSeconds) * time.Second
}

// CacheTTL is zero when snapshot caching is disabled.
func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}
