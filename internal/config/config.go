package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPinEnv is used when provider.pkcs11.pin_env is not set.
const DefaultPinEnv = "RSAKIT_PKCS11_PIN"

// LoadConfig loads configuration from YAML file and applies environment overrides
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to configuration
func applyEnvOverrides(cfg *Config) {
	if backend := os.Getenv("RSAKIT_BACKEND"); backend != "" {
		cfg.Provider.Backend = backend
	}
	if lib := os.Getenv("RSAKIT_PKCS11_LIB"); lib != "" {
		cfg.Provider.PKCS11.ModulePath = lib
	}
	if label := os.Getenv("RSAKIT_PKCS11_TOKEN"); label != "" {
		cfg.Provider.PKCS11.TokenLabel = label
	}

	if level := os.Getenv("RSAKIT_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("RSAKIT_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}
}

// validateConfig validates the configuration and fills in defaults
func validateConfig(cfg *Config) error {
	switch cfg.Provider.Backend {
	case "software":
		// No further parameters.
	case "pkcs11":
		if cfg.Provider.PKCS11.ModulePath == "" {
			return fmt.Errorf("provider.pkcs11.module_path is required")
		}
		if cfg.Provider.PKCS11.TokenLabel == "" {
			return fmt.Errorf("provider.pkcs11.token_label is required")
		}
		// PIN is provided via an environment variable, not in config
		if cfg.Provider.PKCS11.PinEnv == "" {
			cfg.Provider.PKCS11.PinEnv = DefaultPinEnv
		}
	case "":
		return fmt.Errorf("provider.backend is required")
	default:
		return fmt.Errorf("provider.backend must be 'software' or 'pkcs11', got '%s'", cfg.Provider.Backend)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info" // default
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json" // default
	}
	if cfg.Logging.File.Path != "" {
		if cfg.Logging.File.MaxSizeMB <= 0 {
			cfg.Logging.File.MaxSizeMB = 100
		}
		if cfg.Logging.File.MaxBackups < 0 {
			return fmt.Errorf("logging.file.max_backups cannot be negative")
		}
	}

	return nil
}
