package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendKeychain = "keychain"
	BackendRemote   = "remote"
)

// Config holds persistent configuration loaded from ~/.secretkit/config.yaml.
// Paths left empty default to files next to the config file.
type Config struct {
	Backend           string  `yaml:"backend"`
	VaultPath         string  `yaml:"vault_path"`
	IdentityFile      string  `yaml:"identity_file"`
	SocketPath        string  `yaml:"socket_path"`
	AuditLog          string  `yaml:"audit_log"`
	DefaultCollection string  `yaml:"default_collection"`
	LogLevel          string  `yaml:"log_level"`
	RateLimit         float64 `yaml:"rate_limit"`
}

// DefaultPath returns the default config file path: ~/.secretkit/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".secretkit", "config.yaml")
}

// Load reads a YAML config file from path and fills in defaults. If the
// file does not exist, or holds nothing but comments, the defaults alone
// are returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults(dir string) {
	if c.Backend == "" {
		c.Backend = BackendFile
	}
	if c.VaultPath == "" {
		c.VaultPath = filepath.Join(dir, "vault.age")
	}
	if c.IdentityFile == "" {
		c.IdentityFile = filepath.Join(dir, "identity.txt")
	}
	if c.SocketPath == "" {
		c.SocketPath = filepath.Join(dir, "secretd.sock")
	}
	if c.AuditLog == "" {
		c.AuditLog = filepath.Join(dir, "audit.log")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the backend and log level.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendFile, BackendKeychain, BackendRemote:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
