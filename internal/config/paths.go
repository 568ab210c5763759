package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	AppName           = "gdocs-mcp"
	DefaultClientName = "default"
)

var errInvalidClientName = errors.New("invalid client name")

// Dir returns the configuration directory ($XDG_CONFIG_HOME/gdocs-mcp on Linux).
func Dir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("GDOCS_MCP_CONFIG_DIR")); dir != "" {
		return dir, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}

	return filepath.Join(base, AppName), nil
}

func EnsureDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("ensure config dir: %w", err)
	}

	return dir, nil
}

func ConfigPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "config.json"), nil
}

// NormalizeClientName lowercases and validates an OAuth client name.
func NormalizeClientName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return DefaultClientName, nil
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' && r != '.' {
			return "", fmt.Errorf("%w: %q", errInvalidClientName, name)
		}
	}

	return name, nil
}

// ClientCredentialsPath returns credentials.json for the default client and
// credentials-<client>.json otherwise.
func ClientCredentialsPath(client string) (string, error) {
	client, err := NormalizeClientName(client)
	if err != nil {
		return "", err
	}

	dir, err := Dir()
	if err != nil {
		return "", err
	}

	if client == DefaultClientName {
		return filepath.Join(dir, "credentials.json"), nil
	}

	return filepath.Join(dir, "credentials-"+client+".json"), nil
}

// ServiceAccountPath is where a service-account key for email is stored.
func ServiceAccountPath(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", errors.New("missing email")
	}

	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "sa-"+email+".json"), nil
}

func KeyringDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "keyring"), nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}

	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}
