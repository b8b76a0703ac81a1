// Package config loads polyref runtime configuration from a YAML file and
// POLYREF_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/polyref/internal/schema"
)

// Sentinel errors returned by Validate.
var (
	ErrDriverUnknown = errors.New("unknown database driver")
	ErrDSNEmpty      = errors.New("database dsn is empty")
	ErrRegistryEmpty = errors.New("registry directory is empty")
)

const (
	configFileName = "polyref"
	configFileType = "yaml"
	envPrefix      = "POLYREF"

	KeyDriver   = "database.driver"
	KeyDSN      = "database.dsn"
	KeyPrefix   = "database.prefix"
	KeyRegistry = "registry"
	KeyLogLevel = "log.level"
	KeyLogFmt   = "log.format"
	KeyKindTTL  = "cache.kind_ttl"

	defaultDriver   = "sqlite3"
	defaultDSN      = "polyref.db"
	defaultRegistry = "registry"
	defaultKindTTL  = 5 * time.Minute
)

// Drivers maps each accepted database.driver value to its SQL dialect.
var Drivers = map[string]schema.Dialect{
	"sqlite3":  schema.SQLite,
	"sqlite":   schema.SQLite,
	"mysql":    schema.MySQL,
	"postgres": schema.Postgres,
}

// Database selects and addresses the backing database.
type Database struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Prefix string `mapstructure:"prefix"`
}

// Log configures the CLI's slog handler.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "text" | "json"
}

// Cache configures in-process memoisation.
type Cache struct {
	KindTTL time.Duration `mapstructure:"kind_ttl"`
}

// Config is the complete runtime configuration.
type Config struct {
	Database Database `mapstructure:"database"`
	Registry string   `mapstructure:"registry"`
	Log      Log      `mapstructure:"log"`
	Cache    Cache    `mapstructure:"cache"`
}

// Load reads polyref.yaml from path, or searches the working directory
// when path is empty. A missing file is not an error; defaults and
// environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault(KeyDriver, defaultDriver)
	v.SetDefault(KeyDSN, defaultDSN)
	v.SetDefault(KeyPrefix, "")
	v.SetDefault(KeyRegistry, defaultRegistry)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFmt, "text")
	v.SetDefault(KeyKindTTL, defaultKindTTL)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration can open a database and find the
// registry.
func (c *Config) Validate() error {
	if _, ok := Drivers[c.Database.Driver]; !ok {
		return fmt.Errorf("%w: %q", ErrDriverUnknown, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return ErrDSNEmpty
	}
	if strings.TrimSpace(c.Registry) == "" {
		return ErrRegistryEmpty
	}
	return nil
}

// Dialect returns the SQL dialect of the configured driver.
func (c *Config) Dialect() schema.Dialect {
	return Drivers[c.Database.Driver]
}

// LogLevel parses log.level, falling back to info.
func (c *Config) LogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
