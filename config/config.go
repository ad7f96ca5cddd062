// Package config loads the vaultctl configuration file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/devdasx/satryn-sub001/backup"
	"github.com/devdasx/satryn-sub001/kdf"
	"github.com/devdasx/satryn-sub001/keystore"
	"github.com/devdasx/satryn-sub001/vault"
	"gopkg.in/yaml.v3"
)

// Keystore backends
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendSSM    = "ssm"
)

// Config holds the vaultctl configuration
type Config struct {
	// LogLevel is a zerolog level name
	LogLevel string `yaml:"log_level"`

	Keystore KeystoreConfig `yaml:"keystore"`
	Vault    VaultConfig    `yaml:"vault"`
	Backup   BackupConfig   `yaml:"backup"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// KeystoreConfig selects and configures the secure storage backend
type KeystoreConfig struct {
	Backend   string             `yaml:"backend"`
	CacheSize int                `yaml:"cache_size"`
	SQLite    SQLiteConfig       `yaml:"sqlite"`
	SSM       keystore.SSMConfig `yaml:"ssm"`
}

// SQLiteConfig holds the file backend settings
type SQLiteConfig struct {
	Path string `yaml:"path"`

	// KeyEnv names the environment variable holding the hex-encoded
	// 32-byte at-rest key. Empty disables at-rest sealing.
	KeyEnv string `yaml:"key_env"`
}

// VaultConfig holds the vault settings
type VaultConfig struct {
	KDF                 string `yaml:"kdf"`
	CosignerCapacity    int    `yaml:"cosigner_capacity"`
	BiometricDeviceOnly bool   `yaml:"biometric_device_only"`
}

// BackupConfig configures where exported backups are shipped. S3 is the
// primary sink when a bucket is set; NATS is always secondary.
type BackupConfig struct {
	S3   backup.S3Config   `yaml:"s3"`
	NATS backup.NATSConfig `yaml:"nats"`
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LoadConfig loads configuration from a YAML file. A missing file yields
// the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Keystore: KeystoreConfig{
			Backend:   BackendSQLite,
			CacheSize: 256,
			SQLite: SQLiteConfig{
				Path:   "vault.db",
				KeyEnv: "VAULT_DB_KEY",
			},
			SSM: keystore.SSMConfig{
				Region: "us-east-1",
				Prefix: "/vault",
			},
		},
		Vault: VaultConfig{
			KDF:                 string(kdf.SchemeSHA256),
			CosignerCapacity:    vault.DefaultCosignerCapacity,
			BiometricDeviceOnly: true,
		},
		Backup: BackupConfig{
			S3: backup.S3Config{
				Region:    "us-east-1",
				KeyPrefix: "backups/",
			},
			NATS: backup.NATSConfig{
				Subject:       "vault.backups",
				ReconnectWait: 2000,
				MaxReconnects: -1,
			},
		},
	}
}

// Validate rejects settings the vault cannot run with
func (c *Config) Validate() error {
	switch c.Keystore.Backend {
	case BackendMemory, BackendSQLite, BackendSSM:
	default:
		return fmt.Errorf("unknown keystore backend %q", c.Keystore.Backend)
	}
	if c.Keystore.Backend == BackendSQLite && c.Keystore.SQLite.Path == "" {
		return fmt.Errorf("keystore.sqlite.path is required")
	}
	if _, err := kdf.ForScheme(c.Vault.KDF); err != nil {
		return err
	}
	if c.Vault.CosignerCapacity < 0 {
		return fmt.Errorf("vault.cosigner_capacity must not be negative")
	}
	return nil
}

// VaultConfig converts the file settings to a vault.Config
func (c *Config) VaultConfig() vault.Config {
	cfg := vault.DefaultConfig()
	if c.Vault.KDF != "" {
		cfg.KDF = kdf.Scheme(c.Vault.KDF)
	}
	if c.Vault.CosignerCapacity > 0 {
		cfg.CosignerCapacity = c.Vault.CosignerCapacity
	}
	cfg.BiometricPolicy = keystore.AccessPolicy{ThisDeviceOnlyWhenUnlocked: c.Vault.BiometricDeviceOnly}
	return cfg
}

// AtRestKey reads the SQLite at-rest key from the configured environment
// variable. An unset variable means no key.
func (c *Config) AtRestKey() ([]byte, error) {
	if c.Keystore.SQLite.KeyEnv == "" {
		return nil, nil
	}
	raw := os.Getenv(c.Keystore.SQLite.KeyEnv)
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not hex: %w", c.Keystore.SQLite.KeyEnv, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must hold 32 bytes, got %d", c.Keystore.SQLite.KeyEnv, len(key))
	}
	return key, nil
}
