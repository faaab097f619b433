// Package config handles configuration loading for the gateway.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive values
// like database credentials and the key-sealing secret to be injected at
// runtime.
//
// # Configuration Sections
//
//   - ebics: Protocol client settings (timeout, key size, certificate validity)
//   - storage: Database connection (MongoDB URI, database name)
//   - keys: Private-key sealing secret
//
// # Example Configuration
//
//	ebics:
//	  timeout: 30s
//	  keySize: 2048
//	  certificateValidityDays: 365
//
//	storage:
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: ebics_gateway
//
//	keys:
//	  sealingSecret: ${KEY_SEALING_SECRET}
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure
type Config struct {
	EBICS   EBICSConfig   `yaml:"ebics"`
	Storage StorageConfig `yaml:"storage"`
	Keys    KeysConfig    `yaml:"keys"`
}

// EBICSConfig holds protocol client settings
type EBICSConfig struct {
	// Timeout bounds each HTTP round trip to the bank
	Timeout time.Duration `yaml:"timeout"`

	// KeySize is the RSA modulus size for generated key pairs
	KeySize int `yaml:"keySize"`

	// CertificateValidityDays is the lifetime of generated self-signed
	// certificates
	CertificateValidityDays int `yaml:"certificateValidityDays"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// KeysConfig holds private-key sealing settings
type KeysConfig struct {
	// SealingSecret is the master secret from which per-certificate
	// sealing keys are derived. Required for storing private keys.
	SealingSecret string `yaml:"sealingSecret"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.EBICS.Timeout == 0 {
		c.EBICS.Timeout = 30 * time.Second
	}
	if c.EBICS.KeySize == 0 {
		c.EBICS.KeySize = 2048
	}
	if c.EBICS.CertificateValidityDays == 0 {
		c.EBICS.CertificateValidityDays = 365
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "ebics_gateway"
	}
}

func (c *Config) validate() error {
	if c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("storage.mongodb.uri is required")
	}

	switch c.EBICS.KeySize {
	case 2048, 3072, 4096:
		// Valid sizes
	default:
		return fmt.Errorf("ebics.keySize must be 2048, 3072 or 4096, got %d", c.EBICS.KeySize)
	}

	if c.EBICS.CertificateValidityDays < 0 {
		return fmt.Errorf("ebics.certificateValidityDays must be positive")
	}

	return nil
}
