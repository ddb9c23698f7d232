package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// fileLayout mirrors the config file. Durations are strings so the file
// reads "1h0m0s" rather than nanoseconds.
type fileLayout struct {
	DataDir string `toml:"data_dir"`
	Remote  struct {
		Driver string `toml:"driver"`
		DSN    string `toml:"dsn"`
	} `toml:"remote"`
	Cache struct {
		Driver      string `toml:"driver"`
		Path        string `toml:"path"`
		RedisAddr   string `toml:"redis_addr"`
		RedisPrefix string `toml:"redis_prefix"`
	} `toml:"cache"`
	Auth struct {
		Secret     string `toml:"secret"`
		AccessTTL  string `toml:"access_ttl"`
		RefreshTTL string `toml:"refresh_ttl"`
	} `toml:"auth"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
	} `toml:"log"`
	Dashboard struct {
		Port int `toml:"port"`
	} `toml:"dashboard"`
}

func layoutOf(c *Config) fileLayout {
	var f fileLayout
	f.DataDir = c.DataDir
	f.Remote.Driver = c.Remote.Driver
	f.Remote.DSN = c.Remote.DSN
	f.Cache.Driver = c.Cache.Driver
	f.Cache.Path = c.Cache.Path
	f.Cache.RedisAddr = c.Cache.RedisAddr
	f.Cache.RedisPrefix = c.Cache.RedisPrefix
	f.Auth.Secret = c.Auth.Secret
	f.Auth.AccessTTL = c.Auth.AccessTTL.String()
	f.Auth.RefreshTTL = c.Auth.RefreshTTL.String()
	f.Log.File = c.Log.File
	f.Log.MaxSizeMB = c.Log.MaxSizeMB
	f.Log.MaxBackups = c.Log.MaxBackups
	f.Dashboard.Port = c.Dashboard.Port
	return f
}

// Defaults returns the configuration with nothing but defaults applied.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	c, err := Decode(v)
	if err != nil {
		// Defaults always validate.
		panic(err)
	}
	return c
}

// WriteFile writes c as TOML to path. It refuses to overwrite an existing
// file unless force is set.
func WriteFile(path string, c *Config, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(layoutOf(c)); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return f.Close()
}

// Render returns c as TOML text.
func Render(c *Config) (string, error) {
	data, err := toml.Marshal(layoutOf(c))
	if err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	return string(data), nil
}
