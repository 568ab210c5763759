package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
	"github.com/steipete/gdocs-mcp/internal/secrets"
	"github.com/steipete/gdocs-mcp/internal/ui"
)

const strFile = "file"

type AuthKeyringCmd struct {
	Backend string `arg:"" optional:"" name:"backend" help:"Keyring backend: auto|keychain|file"`
}

func (c *AuthKeyringCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)
	path, _ := config.ConfigPath()

	backend := strings.ToLower(strings.TrimSpace(c.Backend))

	// No args: show current config.
	if backend == "" {
		info, err := secrets.ResolveKeyringBackendInfo()
		if err != nil {
			return err
		}

		if outfmt.IsJSON(ctx) {
			return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
				"keyring_backend": info.Value,
				"source":          info.Source,
				"path":            path,
			})
		}
		u.Out().Printf("path\t%s", path)
		u.Out().Printf("keyring_backend\t%s", info.Value)
		u.Out().Printf("source\t%s", info.Source)
		return nil
	}

	if backend == "default" {
		backend = "auto"
	}
	switch backend {
	case "auto", "keychain", strFile:
	default:
		return usage(fmt.Sprintf("invalid backend: %q (expected auto, keychain, or file)", c.Backend))
	}

	if err := dryRunExit(ctx, flags, "auth.keyring.set", map[string]any{
		"path":            path,
		"keyring_backend": backend,
	}); err != nil {
		return err
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Set("keyring_backend", backend); err != nil {
		return usage(err.Error())
	}
	if err := config.WriteConfig(cfg); err != nil {
		return err
	}

	human := !outfmt.IsJSON(ctx) && !outfmt.IsPlain(ctx)

	// Env var wins; warn so it doesn't look "broken".
	if v := strings.TrimSpace(os.Getenv(config.EnvKeyringBackend)); v != "" && human {
		u.Err().Printf("NOTE: %s=%s overrides config.json", config.EnvKeyringBackend, v)
	}

	if backend == strFile && human {
		switch {
		case strings.TrimSpace(os.Getenv(config.EnvKeyringPassword)) != "":
			u.Err().Printf("%s found in environment.", config.EnvKeyringPassword)
		case !term.IsTerminal(int(os.Stdin.Fd())): //nolint:gosec // fd fits in int
			u.Err().Printf("NOTE: file keyring backend in non-interactive context requires %s", config.EnvKeyringPassword)
		default:
			u.Err().Printf("Hint: set %s for non-interactive use (MCP hosts, CI)", config.EnvKeyringPassword)
		}
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"written":         true,
			"path":            path,
			"keyring_backend": backend,
		})
	}
	u.Out().Printf("written\ttrue")
	u.Out().Printf("path\t%s", path)
	u.Out().Printf("keyring_backend\t%s", backend)
	return nil
}
