package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
	"github.com/steipete/gdocs-mcp/internal/ui"
)

// AuthServiceAccountCmd manages per-account service account keys. A stored key
// takes precedence over OAuth tokens and impersonates the account through
// domain-wide delegation.
type AuthServiceAccountCmd struct {
	Set    AuthServiceAccountSetCmd    `cmd:"" name:"set" help:"Store a service account key for impersonation"`
	Unset  AuthServiceAccountUnsetCmd  `cmd:"" name:"unset" help:"Remove stored service account key"`
	Status AuthServiceAccountStatusCmd `cmd:"" name:"status" help:"Show stored service account key status"`
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	ClientID    string `json:"client_id"`
	PrivateKey  string `json:"private_key"`
}

var errNotServiceAccount = errors.New("invalid service account JSON: expected type=service_account with a private_key")

func parseServiceAccountJSON(data []byte) (serviceAccountKey, error) {
	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return serviceAccountKey{}, fmt.Errorf("invalid service account JSON: %w", err)
	}
	if key.Type != "service_account" || strings.TrimSpace(key.PrivateKey) == "" {
		return serviceAccountKey{}, errNotServiceAccount
	}
	key.ClientEmail = strings.TrimSpace(key.ClientEmail)
	key.ClientID = strings.TrimSpace(key.ClientID)
	return key, nil
}

type AuthServiceAccountSetCmd struct {
	Email string `arg:"" name:"email" help:"Workspace user email to impersonate"`
	Key   string `name:"key" required:"" help:"Path to service account JSON key file"`
}

func (c *AuthServiceAccountSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	email := normalizeEmail(c.Email)
	if email == "" {
		return usage("empty email")
	}

	keyPath, err := config.ExpandPath(strings.TrimSpace(c.Key))
	if err != nil {
		return err
	}
	if keyPath == "" {
		return usage("empty key path")
	}

	data, err := os.ReadFile(keyPath) //nolint:gosec // user-provided path
	if err != nil {
		return fmt.Errorf("read service account key: %w", err)
	}

	key, err := parseServiceAccountJSON(data)
	if err != nil {
		return usage(err.Error())
	}

	destPath, err := config.ServiceAccountPath(email)
	if err != nil {
		return err
	}

	if err := dryRunExit(ctx, flags, "auth.service_account.set", map[string]any{
		"email":        email,
		"dest_path":    destPath,
		"client_email": key.ClientEmail,
	}); err != nil {
		return err
	}

	if _, err := config.EnsureDir(); err != nil {
		return err
	}
	if err := os.WriteFile(destPath, data, 0o600); err != nil {
		return fmt.Errorf("write service account: %w", err)
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"stored":       true,
			"email":        email,
			"path":         destPath,
			"client_email": key.ClientEmail,
			"client_id":    key.ClientID,
		})
	}
	u.Out().Printf("email\t%s", email)
	u.Out().Printf("path\t%s", destPath)
	if key.ClientEmail != "" {
		u.Out().Printf("client_email\t%s", key.ClientEmail)
	}
	return nil
}

type AuthServiceAccountUnsetCmd struct {
	Email string `arg:"" name:"email" help:"Impersonated user email"`
}

func (c *AuthServiceAccountUnsetCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	email := normalizeEmail(c.Email)
	if email == "" {
		return usage("empty email")
	}

	path, err := config.ServiceAccountPath(email)
	if err != nil {
		return err
	}

	if err := confirmDestructive(ctx, flags, fmt.Sprintf("remove stored service account for %s", email)); err != nil {
		return err
	}

	deleted := true
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("remove service account: %w", err)
		}
		deleted = false
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"deleted": deleted,
			"email":   email,
			"path":    path,
		})
	}
	u.Out().Printf("deleted\t%t", deleted)
	u.Out().Printf("email\t%s", email)
	u.Out().Printf("path\t%s", path)
	return nil
}

type AuthServiceAccountStatusCmd struct {
	Email string `arg:"" name:"email" help:"Impersonated user email"`
}

func (c *AuthServiceAccountStatusCmd) Run(ctx context.Context) error {
	u := ui.FromContext(ctx)

	email := normalizeEmail(c.Email)
	if email == "" {
		return usage("empty email")
	}

	path, err := config.ServiceAccountPath(email)
	if err != nil {
		return err
	}

	var key serviceAccountKey
	data, err := os.ReadFile(path) //nolint:gosec // stored in user config dir
	exists := err == nil
	switch {
	case exists:
		if key, err = parseServiceAccountJSON(data); err != nil {
			return err
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("read service account: %w", err)
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"email":        email,
			"path":         path,
			"exists":       exists,
			"client_email": key.ClientEmail,
			"client_id":    key.ClientID,
		})
	}
	u.Out().Printf("email\t%s", email)
	u.Out().Printf("path\t%s", path)
	u.Out().Printf("exists\t%t", exists)
	if key.ClientEmail != "" {
		u.Out().Printf("client_email\t%s", key.ClientEmail)
	}
	return nil
}
