package googleapi

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/steipete/gdocs-mcp/internal/config"
)

var newServiceAccountTokenSource = func(ctx context.Context, keyJSON []byte, subject string, scopes []string) (oauth2.TokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(keyJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}

	cfg.Subject = subject

	return cfg.TokenSource(ctx), nil
}

// tokenSourceForServiceAccountScopes returns ok=false when no key is stored for
// email. With a key, email is impersonated through domain-wide delegation.
func tokenSourceForServiceAccountScopes(ctx context.Context, email string, scopes []string) (oauth2.TokenSource, string, bool, error) {
	path, err := config.ServiceAccountPath(email)
	if err != nil {
		return nil, "", false, err
	}

	keyJSON, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", false, nil
		}

		return nil, "", false, fmt.Errorf("read service account key: %w", err)
	}

	ts, err := newServiceAccountTokenSource(ctx, keyJSON, email, scopes)
	if err != nil {
		return nil, "", false, err
	}

	return ts, path, true, nil
}
