package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// VaultProvider resolves named secrets. Implementations must never log
// the resolved value.
type VaultProvider interface {
	Secret(name string) (string, error)
}

// EnvVault resolves secrets from the process environment, optionally
// pre-loading a dotenv file.
type EnvVault struct{}

// NewEnvVault loads the dotenv file at path (when non-empty and
// present) and returns an environment-backed vault.
func NewEnvVault(path string) (*EnvVault, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return nil, fmt.Errorf("load env file %s: %w", path, err)
			}
		}
	}
	return &EnvVault{}, nil
}

// Secret returns the value of the named environment variable.
func (v *EnvVault) Secret(name string) (string, error) {
	val, ok := os.LookupEnv(name)
	if !ok || val == "" {
		return "", fmt.Errorf("secret %s not set", name)
	}
	return val, nil
}

// ResolveSecret expands a "vault:NAME" reference through the provider;
// any other value is returned as-is. Used for config fields that may
// hold either a literal (development) or a vault reference.
func ResolveSecret(vault VaultProvider, value string) (string, error) {
	if name, ok := strings.CutPrefix(value, "vault:"); ok {
		return vault.Secret(name)
	}
	return value, nil
}
