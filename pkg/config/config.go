/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/ssargent/freyjadoc/pkg/compression"
	"github.com/ssargent/freyjadoc/pkg/fieldindex"
	"github.com/ssargent/freyjadoc/pkg/schema"
)

// Config represents the freyjadoc configuration
type Config struct {
	DataDir     string       `yaml:"data_dir"`
	Port        int          `yaml:"port"`
	Bind        string       `yaml:"bind"`
	Security    Security     `yaml:"security"`
	Logging     Logging      `yaml:"logging"`
	Compression Compression  `yaml:"compression"`
	Cache       Cache        `yaml:"cache"`
	Types       []TypeConfig `yaml:"types,omitempty"`
}

// Security contains security-related configuration
type Security struct {
	// APIKey guards the write routes. Empty disables the check.
	APIKey string `yaml:"api_key"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level"`
}

// Compression selects the codec for stored blobs
type Compression struct {
	Algorithm string `yaml:"algorithm"`
	Level     int    `yaml:"level"`
	Threshold int    `yaml:"threshold"`
}

// Cache contains blob cache configuration
type Cache struct {
	Enabled bool `yaml:"enabled"`
}

// TypeConfig declares a document type
type TypeConfig struct {
	Name        string        `yaml:"name"`
	Compression *Compression  `yaml:"compression,omitempty"`
	Fields      []FieldConfig `yaml:"fields"`
}

// FieldConfig declares one field of a document type
type FieldConfig struct {
	ID   uint32 `yaml:"id"`
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Port:    8080,
		Bind:    "127.0.0.1",
		Logging: Logging{
			Level: "info",
		},
		Compression: Compression{
			Algorithm: "zstd",
			Level:     3,
			Threshold: compression.DefaultThreshold,
		},
		Cache: Cache{
			Enabled: true,
		},
	}
}

// SampleTypes is the type list written by BootstrapConfig
func SampleTypes() []TypeConfig {
	return []TypeConfig{{
		Name: "note",
		Fields: []FieldConfig{
			{ID: 1, Name: "title", Type: "string"},
			{ID: 2, Name: "body", Type: "string"},
			{ID: 3, Name: "tags", Type: "any"},
			{ID: 4, Name: "pinned", Type: "bool"},
		},
	}}
}

// LoadConfig loads configuration from the specified path
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, errors.Newf("config file does not exist: %s", configPath)
	}

	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "invalid config path")
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path with secure permissions
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}

	return nil
}

// GenerateSecureKey generates a cryptographically secure random key
func GenerateSecureKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", errors.Wrap(err, "failed to generate secure key")
	}
	return hex.EncodeToString(bytes), nil
}

// BootstrapConfig creates a new configuration with a generated API key and
// the sample types
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}
	config.Types = SampleTypes()

	apiKey, err := GenerateSecureKey(32) // 256 bits
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate API key")
	}
	config.Security.APIKey = apiKey

	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save bootstrap config")
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./freyjadoc.yaml"
	}

	// For Linux/macOS, use ~/.config/freyjadoc/config.yaml
	configDir := filepath.Join(homeDir, ".config", "freyjadoc")
	return filepath.Join(configDir, "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}

func (c Compression) config() (compression.Config, error) {
	t, err := compression.ParseType(c.Algorithm)
	if err != nil {
		return compression.Config{}, err
	}
	return compression.Config{Type: t, Level: c.Level, Threshold: c.Threshold}, nil
}

// CompressionConfig returns the blob compression settings
func (c *Config) CompressionConfig() (compression.Config, error) {
	return c.Compression.config()
}

// StructTypes builds the declared document types
func (c *Config) StructTypes() ([]*schema.StructType, error) {
	types := make([]*schema.StructType, 0, len(c.Types))
	for _, tc := range c.Types {
		fields := make([]schema.Field, 0, len(tc.Fields))
		for _, fc := range tc.Fields {
			dt, ok := schema.TypeByName(fc.Type)
			if !ok {
				return nil, errors.Newf("type %s: field %s has unknown type %q", tc.Name, fc.Name, fc.Type)
			}
			fields = append(fields, schema.Field{ID: fieldindex.FieldID(fc.ID), Name: fc.Name, Type: dt})
		}
		st, err := schema.NewStructType(tc.Name, fields...)
		if err != nil {
			return nil, err
		}
		if tc.Compression != nil {
			cfg, err := tc.Compression.config()
			if err != nil {
				return nil, errors.Wrapf(err, "type %s", tc.Name)
			}
			st.SetCompression(cfg)
		}
		types = append(types, st)
	}
	return types, nil
}
