package config

// Config represents the complete application configuration
type Config struct {
	Provider ProviderConfig `yaml:"provider"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ProviderConfig selects and parameterizes the cryptographic backend
type ProviderConfig struct {
	Backend string       `yaml:"backend"` // "software" or "pkcs11"
	PKCS11  PKCS11Config `yaml:"pkcs11"`
}

// PKCS11Config defines the PKCS#11 module and token to use
type PKCS11Config struct {
	ModulePath string `yaml:"module_path"`
	TokenLabel string `yaml:"token_label"`
	// PinEnv names the environment variable holding the user PIN;
	// the PIN itself never appears in the config file
	PinEnv string `yaml:"pin_env"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level"`  // debug, info, warn, error
	Format string        `yaml:"format"` // json, text
	File   FileLogConfig `yaml:"file"`
}

// FileLogConfig enables rotating file output when Path is set
type FileLogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}
