// Package config loads service configuration from a YAML file and GYM_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment overrides. A double underscore separates
// nesting levels: GYM_DATABASE__URL sets database.url.
const EnvPrefix = "GYM_"

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	Subscriptions SubscriptionsConfig `koanf:"subscriptions"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	MetricsPort     int           `koanf:"metrics_port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig contains storage settings.
type DatabaseConfig struct {
	Driver          string        `koanf:"driver"`
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// RedisConfig contains the optional sweep lock backend. An empty URL
// disables the distributed lock.
type RedisConfig struct {
	URL             string        `koanf:"url"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig contains token verification settings.
type JWTConfig struct {
	SecretKey string `koanf:"secret_key"`
	Issuer    string `koanf:"issuer"`
}

// CORSConfig contains CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SubscriptionsConfig contains engine settings.
type SubscriptionsConfig struct {
	MinPeriod     time.Duration `koanf:"min_period"`
	RenewalPeriod time.Duration `koanf:"renewal_period"`
	StoreTimeout  time.Duration `koanf:"store_timeout"`
	Sweep         SweepConfig   `koanf:"sweep"`
}

// SweepConfig contains expiration sweep settings.
type SweepConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Interval      time.Duration `koanf:"interval"`
	Timeout       time.Duration `koanf:"timeout"`
	Timezone      string        `koanf:"timezone"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	LockKey       string        `koanf:"lock_key"`
	LockTTL       time.Duration `koanf:"lock_ttl"`
}

// Default returns the configuration used for keys absent from file and env.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MetricsPort:     9090,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          DriverPostgres,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  10 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Redis: RedisConfig{
			ConnectTimeout:  5 * time.Second,
			ConnectAttempts: 3,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			Issuer: "gym-subscriptions",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Subscriptions: SubscriptionsConfig{
			MinPeriod:     30 * 24 * time.Hour,
			RenewalPeriod: 30 * 24 * time.Hour,
			StoreTimeout:  5 * time.Second,
			Sweep: SweepConfig{
				Enabled:  true,
				Interval: time.Minute,
				Timezone: "UTC",
				LockKey:  "subscriptions:sweep",
				LockTTL:  5 * time.Minute,
			},
		},
	}
}

// Load reads configuration. path may be empty, in which case only defaults
// and environment variables are used.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey maps GYM_SUBSCRIPTIONS__SWEEP__LOCK_TTL to subscriptions.sweep.lock_ttl.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("server.metrics_port %d out of range", c.Server.MetricsPort))
	}

	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be %s or %s", c.Database.Driver, DriverPostgres, DriverMemory))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be json or text", c.Log.Format))
	}

	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}

	s := c.Subscriptions
	if s.MinPeriod <= 0 {
		errs = append(errs, errors.New("subscriptions.min_period must be positive"))
	}
	if s.RenewalPeriod <= 0 {
		errs = append(errs, errors.New("subscriptions.renewal_period must be positive"))
	}
	if s.StoreTimeout < 0 {
		errs = append(errs, errors.New("subscriptions.store_timeout must not be negative"))
	}
	if s.Sweep.Enabled {
		if s.Sweep.Interval < time.Second {
			errs = append(errs, errors.New("subscriptions.sweep.interval must be at least 1s"))
		}
		if _, err := time.LoadLocation(s.Sweep.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("subscriptions.sweep.timezone: %w", err))
		}
		if s.Sweep.RatePerSecond < 0 {
			errs = append(errs, errors.New("subscriptions.sweep.rate_per_second must not be negative"))
		}
		if c.Redis.URL != "" && s.Sweep.LockTTL <= 0 {
			errs = append(errs, errors.New("subscriptions.sweep.lock_ttl must be positive when redis is configured"))
		}
	}

	return errors.Join(errs...)
}

// Location returns the sweep time zone. Validate guarantees it loads.
func (c SweepConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
