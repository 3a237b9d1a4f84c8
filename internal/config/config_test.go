package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigSoftware(t *testing.T) {
	path := writeConfig(t, `
provider:
  backend: software
logging:
  level: debug
  format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Provider.Backend != "software" {
		t.Errorf("Backend = %q, want software", cfg.Provider.Backend)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
}

func TestLoadConfigPKCS11Defaults(t *testing.T) {
	path := writeConfig(t, `
provider:
  backend: pkcs11
  pkcs11:
    module_path: /usr/lib/softhsm/libsofthsm2.so
    token_label: rsakit-test
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Provider.PKCS11.PinEnv != DefaultPinEnv {
		t.Errorf("PinEnv = %q, want %q", cfg.Provider.PKCS11.PinEnv, DefaultPinEnv)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging defaults = %+v, want info/json", cfg.Logging)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing backend",
			content: "logging:\n  level: info\n",
			wantErr: "provider.backend is required",
		},
		{
			name:    "unknown backend",
			content: "provider:\n  backend: tpm\n",
			wantErr: "must be 'software' or 'pkcs11'",
		},
		{
			name:    "pkcs11 without module path",
			content: "provider:\n  backend: pkcs11\n  pkcs11:\n    token_label: t\n",
			wantErr: "module_path is required",
		},
		{
			name:    "pkcs11 without token label",
			content: "provider:\n  backend: pkcs11\n  pkcs11:\n    module_path: /x.so\n",
			wantErr: "token_label is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("LoadConfig() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
provider:
  backend: software
`)

	t.Setenv("RSAKIT_BACKEND", "pkcs11")
	t.Setenv("RSAKIT_PKCS11_LIB", "/opt/hsm/lib.so")
	t.Setenv("RSAKIT_PKCS11_TOKEN", "prod-token")
	t.Setenv("RSAKIT_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Provider.Backend != "pkcs11" {
		t.Errorf("Backend = %q, want pkcs11", cfg.Provider.Backend)
	}
	if cfg.Provider.PKCS11.ModulePath != "/opt/hsm/lib.so" {
		t.Errorf("ModulePath = %q", cfg.Provider.PKCS11.ModulePath)
	}
	if cfg.Provider.PKCS11.TokenLabel != "prod-token" {
		t.Errorf("TokenLabel = %q", cfg.Provider.PKCS11.TokenLabel)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Logging.Level)
	}
}
