// Package config loads the lockbox configuration from a YAML file in the
// lockbox home directory, creating a commented default on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/forest6511/lockbox/pkg/vault"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyVaultPath   = "vault_path"
	cfgKeyListenAddr  = "listen_addr"
	cfgKeyIdleTimeout = "idle_timeout_seconds"

	// DefaultListenAddr binds the web gateway to loopback only.
	DefaultListenAddr = "127.0.0.1:8422"

	// DefaultIdleTimeoutSeconds is the session idle expiry.
	DefaultIdleTimeoutSeconds = 90
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# lockbox configuration

# Vault file location (optional; a vault in the working directory or the
# home default is used when unset, and --vault overrides everything)
# vault_path:

# Web gateway bind address. Keep this on loopback.
listen_addr: 127.0.0.1:8422

# Seconds of inactivity before a web session expires.
idle_timeout_seconds: 90
`

// Config holds the loaded settings.
type Config struct {
	VaultPath          string `yaml:"vault_path"`
	ListenAddr         string `yaml:"listen_addr"`
	IdleTimeoutSeconds int    `yaml:"idle_timeout_seconds"`
}

// IdleTimeout returns the session idle expiry as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// DefaultDir returns the lockbox home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return vault.HomeDirName
	}
	return filepath.Join(home, vault.HomeDirName)
}

// Load reads config.yaml from dir, creating the directory and a commented
// default file on first run. A missing or empty file yields defaults.
func Load(dir string) (*Config, error) {
	if err := os.MkdirAll(dir, vault.DirMode); err != nil {
		return nil, fmt.Errorf("config: failed to create config dir: %w", err)
	}
	if err := ensureDefaultFile(dir); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault(cfgKeyListenAddr, DefaultListenAddr)
	v.SetDefault(cfgKeyIdleTimeout, DefaultIdleTimeoutSeconds)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: failed to read config: %w", err)
		}
	}

	cfg := &Config{
		VaultPath:          v.GetString(cfgKeyVaultPath),
		ListenAddr:         v.GetString(cfgKeyListenAddr),
		IdleTimeoutSeconds: v.GetInt(cfgKeyIdleTimeout),
	}
	if cfg.IdleTimeoutSeconds <= 0 {
		cfg.IdleTimeoutSeconds = DefaultIdleTimeoutSeconds
	}
	return cfg, nil
}

func ensureDefaultFile(dir string) error {
	path := filepath.Join(dir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("config: failed to stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
