// Package config provides configuration loading from YAML files, the system
// keyring, and environment variables. Environment variables take precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

const (
	// KeychainService is the keyring service name for fpdeck secrets.
	KeychainService = "fpdeck"

	// Keyring account names for each secret.
	KeyStorageKey       = "storage-key"
	KeyPostgresPassword = "postgres-password"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds the full application configuration, assembled from YAML + keyring + env.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	Storage  StorageConfig `yaml:"storage"`
	Virtual  VirtualConfig `yaml:"virtual"`
	Matcher  MatcherConfig `yaml:"matcher"`
	Workers  int           `yaml:"workers"`
	Server   ServerConfig  `yaml:"server"`
}

// StorageConfig selects where enrolled prints are kept on the host.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
	DSN     string `yaml:"dsn"`

	SealKey          string `yaml:"-"` // base64, from keyring
	PostgresPassword string `yaml:"-"`
}

// VirtualConfig configures the virtual image sensor.
type VirtualConfig struct {
	Socket       string `yaml:"socket"`
	EnrollStages int    `yaml:"enroll_stages"`
	Storage      bool   `yaml:"storage"`
	Capacity     int    `yaml:"capacity"`
	Enlarge      int    `yaml:"enlarge"`
}

// MatcherConfig tunes minutiae comparison.
type MatcherConfig struct {
	Threshold   int `yaml:"threshold"`
	MinMinutiae int `yaml:"min_minutiae"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fpdeck")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	if p := os.Getenv("FPDECK_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Storage: StorageConfig{
			Backend: BackendFile,
			Dir:     filepath.Join(DefaultConfigDir(), "prints"),
		},
		Virtual: VirtualConfig{
			Socket:       filepath.Join(os.TempDir(), "fpdeck-virtual.sock"),
			EnrollStages: 5,
		},
		Matcher: MatcherConfig{
			Threshold:   40,
			MinMinutiae: 10,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7780",
		},
	}
}

// Load assembles configuration from the default YAML file + keyring +
// environment variables. A missing file is not an error.
func Load() (*Config, error) {
	return LoadFile(DefaultConfigPath())
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	// 1. YAML file
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	// 2. Keyring secrets (ignore errors, the keyring may not be populated)
	if key, err := keyring.Get(KeychainService, KeyStorageKey); err == nil {
		cfg.Storage.SealKey = key
	}
	if pw, err := keyring.Get(KeychainService, KeyPostgresPassword); err == nil {
		cfg.Storage.PostgresPassword = pw
	}

	// 3. Environment variables override everything
	if v := os.Getenv("FPDECK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FPDECK_STORAGE_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("FPDECK_POSTGRES_DSN"); v != "" {
		cfg.Storage.DSN = v
		cfg.Storage.Backend = BackendPostgres
	}
	if v := os.Getenv("FPDECK_VIRTUAL_SOCKET"); v != "" {
		cfg.Virtual.Socket = v
	}
	if v := os.Getenv("FPDECK_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}

	return cfg, nil
}

// PostgresDSN returns the configured DSN with the keyring password added
// when the DSN doesn't carry one.
func (c *Config) PostgresDSN() string {
	dsn := c.Storage.DSN
	if c.Storage.PostgresPassword == "" || strings.Contains(dsn, "password=") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return dsn
	}
	return strings.TrimSpace(dsn + " password=" + c.Storage.PostgresPassword)
}

// Validate reports the first setting that can't be used.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case BackendPostgres:
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Virtual.EnrollStages < 1 {
		return fmt.Errorf("virtual.enroll_stages must be positive, got %d", c.Virtual.EnrollStages)
	}
	if c.Virtual.Capacity < 0 {
		return fmt.Errorf("virtual.capacity must not be negative, got %d", c.Virtual.Capacity)
	}
	if c.Virtual.Enlarge < 0 {
		return fmt.Errorf("virtual.enlarge must not be negative, got %d", c.Virtual.Enlarge)
	}
	if c.Matcher.Threshold < 0 || c.Matcher.MinMinutiae < 0 {
		return errors.New("matcher settings must not be negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// WriteConfigFile writes the non-secret portion of config to the YAML file.
func WriteConfigFile(cfg *Config) error {
	path := DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// SetKeychainSecret stores a secret in the system keyring.
func SetKeychainSecret(account, value string) error {
	// Delete first to avoid "already exists" errors on update
	_ = keyring.Delete(KeychainService, account)
	return keyring.Set(KeychainService, account, value)
}

// GetKeychainSecret retrieves a secret from the system keyring.
func GetKeychainSecret(account string) (string, error) {
	return keyring.Get(KeychainService, account)
}
