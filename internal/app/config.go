package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the process configuration, read from config.yaml, a .env file,
// POSTBOX_* environment variables and flags, in increasing precedence.
type Config struct {
	HTTP   HTTPConfig   `mapstructure:"http"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Log    LogConfig    `mapstructure:"log"`
	OTel   OTelConfig   `mapstructure:"otel"`
	Limits LimitsConfig `mapstructure:"limits"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StoreConfig struct {
	// Driver is one of memory, postgres, pgx or mongo.
	Driver   string        `mapstructure:"driver"`
	DSN      string        `mapstructure:"dsn"`
	Database string        `mapstructure:"database"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// ConnectAttempts bounds the startup retries.
	ConnectAttempts int `mapstructure:"connect_attempts"`
}

type RedisConfig struct {
	// URL enables Redis when set, e.g. redis://localhost:6379/0.
	URL      string        `mapstructure:"url"`
	Cache    bool          `mapstructure:"cache"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Events   bool          `mapstructure:"events"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type OTelConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type LimitsConfig struct {
	MaxSubjectLength   int `mapstructure:"max_subject_length"`
	MaxContentSize     int `mapstructure:"max_content_size"`
	MaxRecipients      int `mapstructure:"max_recipients"`
	MaxConcurrentSends int `mapstructure:"max_concurrent_sends"`
}

var drivers = []string{"memory", "postgres", "pgx", "mongo"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.database", "postbox")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.connect_attempts", 5)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.cache", true)
	v.SetDefault("redis.cache_ttl", 5*time.Minute)
	v.SetDefault("redis.events", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.service_name", "postbox")
	v.SetDefault("limits.max_subject_length", 0)
	v.SetDefault("limits.max_content_size", 0)
	v.SetDefault("limits.max_recipients", 0)
	v.SetDefault("limits.max_concurrent_sends", 0)
}

// newViper prepares a viper instance bound to the POSTBOX_ environment.
func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("POSTBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the optional config file and .env, then decodes v.
func loadConfig(v *viper.Viper, file string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/postbox")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	known := false
	for _, d := range drivers {
		if d == c.Store.Driver {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("store.driver must be one of %s, got %q", strings.Join(drivers, ", "), c.Store.Driver)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
	}
	return nil
}
