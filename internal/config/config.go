// Package config loads tasksync settings with viper: defaults, then a
// config file (TOML, YAML or JSON), then TASKSYNC_* environment variables.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TASKSYNC_REMOTE_DRIVER.
const EnvPrefix = "TASKSYNC"

// Remote repository drivers.
const (
	DriverSQLite    = "sqlite"
	DriverPostgres  = "postgres"
	DriverDocuments = "documents"
	DriverRedis     = "redis"
)

// Config is the resolved configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

type RemoteConfig struct {
	// Driver is sqlite, postgres or documents.
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite, a directory for documents and a
	// connection string for postgres. Empty means a default under DataDir.
	DSN string `mapstructure:"dsn"`
}

type CacheConfig struct {
	// Driver is sqlite or redis.
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	RedisAddr   string `mapstructure:"redis_addr"`
	RedisPrefix string `mapstructure:"redis_prefix"`
}

type AuthConfig struct {
	// Secret signs session tokens. Empty means a generated key kept in
	// DataDir/auth.key.
	Secret     string        `mapstructure:"secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
}

type LogConfig struct {
	// File enables rotating file logs when set.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

type DashboardConfig struct {
	Port int `mapstructure:"port"`
}

// DefaultDataDir is $XDG_DATA_HOME/tasksync or ~/.local/share/tasksync.
func DefaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tasksync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".local", "share", "tasksync")
}

// DefaultConfigDir is where the config file is searched first.
func DefaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "tasksync")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("remote.driver", DriverSQLite)
	v.SetDefault("remote.dsn", "")
	v.SetDefault("cache.driver", DriverSQLite)
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_prefix", "tasksync:tasks:")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.access_ttl", time.Hour)
	v.SetDefault("auth.refresh_ttl", 30*24*time.Hour)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("dashboard.port", 8090)
}

// NewViper returns a viper instance with defaults and environment binding.
// configFile, when set, is the only file considered.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}
	return v
}

// Load reads the config file if there is one and resolves the result.
// A missing file is fine unless it was named explicitly.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return Decode(v)
}

// Decode resolves the settings already held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks driver names and required fields.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch c.Remote.Driver {
	case DriverSQLite, DriverDocuments:
	case DriverPostgres:
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown remote.driver %q (want sqlite, postgres or documents)", c.Remote.Driver)
	}
	switch c.Cache.Driver {
	case DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown cache.driver %q (want sqlite or redis)", c.Cache.Driver)
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port %d out of range", c.Dashboard.Port)
	}
	return nil
}

// RemoteDSN is the remote location with defaults under DataDir applied.
func (c *Config) RemoteDSN() string {
	if c.Remote.DSN != "" {
		return c.Remote.DSN
	}
	if c.Remote.Driver == DriverDocuments {
		return filepath.Join(c.DataDir, "documents")
	}
	return filepath.Join(c.DataDir, "remote.db")
}

// CachePath is the SQLite cache file.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.DataDir, "cache.db")
}

// UsersPath is the SQLite database holding local accounts.
func (c *Config) UsersPath() string {
	return filepath.Join(c.DataDir, "users.db")
}

// SessionPath is the signed-in session file.
func (c *Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

// AuthSecret returns Auth.Secret, or the key in DataDir/auth.key,
// generating it on first use.
func (c *Config) AuthSecret() (string, error) {
	if c.Auth.Secret != "" {
		return c.Auth.Secret, nil
	}

	path := filepath.Join(c.DataDir, "auth.key")
	data, err := os.ReadFile(path)
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read auth key: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate auth key: %w", err)
	}
	secret := hex.EncodeToString(buf)

	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(secret+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write auth key: %w", err)
	}
	return secret, nil
}
