package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/steipete/gdocs-mcp/internal/authclient"
	"github.com/steipete/gdocs-mcp/internal/config"
)

var errNoAccount = errors.New("missing --account (or " + config.EnvAccount + "); run 'gdocs-mcp login <email>' first")

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// requireAccount resolves the account email: --account (which also reads
// GDOCS_MCP_ACCOUNT), then default_account in the config file, then the
// keyring default for the client, then the only stored token if exactly one
// exists.
func requireAccount(flags *RootFlags) (string, error) {
	if flags != nil {
		if v := normalizeEmail(flags.Account); v != "" {
			return v, nil
		}
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		return "", err
	}
	if v := normalizeEmail(cfg.DefaultAccount); v != "" {
		return v, nil
	}

	clientOverride := ""
	if flags != nil {
		clientOverride = flags.Client
	}
	client, err := config.NormalizeClientName(firstNonEmpty(clientOverride, cfg.DefaultClient))
	if err != nil {
		return "", usage(err.Error())
	}

	store, err := openSecretsStore()
	if err != nil {
		return "", newUsageError(errNoAccount)
	}

	if v, err := store.GetDefaultAccount(client); err == nil && strings.TrimSpace(v) != "" {
		return normalizeEmail(v), nil
	}

	tokens, err := store.ListTokens()
	if err == nil {
		var only string
		count := 0
		for _, tok := range tokens {
			if tok.Client != "" && tok.Client != client {
				continue
			}
			only = tok.Email
			count++
		}
		if count == 1 {
			return normalizeEmail(only), nil
		}
	}

	return "", newUsageError(errNoAccount)
}

func resolveClientForEmail(email string, flags *RootFlags) (string, error) {
	override := ""
	if flags != nil {
		override = flags.Client
	}
	ctx := authclient.WithClient(context.Background(), override)
	return authclient.ResolveClient(ctx, email)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
