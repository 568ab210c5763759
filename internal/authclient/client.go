// Package authclient picks which stored OAuth client an account uses.
package authclient

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/steipete/gdocs-mcp/internal/config"
)

type ctxKey struct{}

var readConfig = config.ReadConfig

// WithClient records an explicit --client choice on ctx.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(client))
}

func ClientOverrideFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

// ResolveClient returns the normalized client name for email. Precedence:
// context override, GDOCS_MCP_CLIENT, default_client in the config file, then
// "default". The email is accepted for future per-account mappings.
func ResolveClient(ctx context.Context, _ string) (string, error) {
	if v := ClientOverrideFromContext(ctx); v != "" {
		return config.NormalizeClientName(v)
	}

	if v := strings.TrimSpace(os.Getenv(config.EnvClient)); v != "" {
		return config.NormalizeClientName(v)
	}

	cfg, err := readConfig()
	if err != nil {
		return "", fmt.Errorf("read config: %w", err)
	}

	return config.NormalizeClientName(cfg.DefaultClient)
}
