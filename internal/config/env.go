package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvAccount         = "GDOCS_MCP_ACCOUNT"
	EnvClient          = "GDOCS_MCP_CLIENT"
	EnvKeyringBackend  = "GDOCS_MCP_KEYRING_BACKEND"
	EnvKeyringPassword = "GDOCS_MCP_KEYRING_PASSWORD" //nolint:gosec // env var name
	EnvLogLevel        = "GDOCS_MCP_LOG_LEVEL"
	EnvEnvFile         = "GDOCS_MCP_ENV_FILE"
)

// LoadDotEnv loads KEY=value pairs from path without overriding variables
// that are already set. A missing default file is not an error; a missing
// explicitly requested file is.
func LoadDotEnv(path string) error {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = strings.TrimSpace(os.Getenv(EnvEnvFile))
		explicit = path != ""
	}

	if path == "" {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("load env file %s: %w", path, err)
	}

	return nil
}
