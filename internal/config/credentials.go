package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

type ClientCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// CredentialsMissingError is returned when no OAuth client has been configured.
type CredentialsMissingError struct {
	Path  string
	Cause error
}

func (e *CredentialsMissingError) Error() string {
	return fmt.Sprintf("oauth client credentials missing (%s); run: gdocs-mcp auth credentials <client_secret.json>", e.Path)
}

func (e *CredentialsMissingError) Unwrap() error { return e.Cause }

var errInvalidClientCredentials = errors.New("invalid oauth client credentials (expected an \"installed\" or \"web\" client JSON)")

type googleClientJSON struct {
	Installed *ClientCredentials `json:"installed"`
	Web       *ClientCredentials `json:"web"`
	ClientCredentials
}

// ParseGoogleOAuthClientJSON accepts the client JSON downloaded from the
// Google Cloud console, or a flat {client_id, client_secret} object.
func ParseGoogleOAuthClientJSON(data []byte) (ClientCredentials, error) {
	var raw googleClientJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientCredentials{}, fmt.Errorf("decode credentials: %w", err)
	}

	var c ClientCredentials

	switch {
	case raw.Installed != nil:
		c = *raw.Installed
	case raw.Web != nil:
		c = *raw.Web
	default:
		c = raw.ClientCredentials
	}

	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)

	if c.ClientID == "" || c.ClientSecret == "" {
		return ClientCredentials{}, errInvalidClientCredentials
	}

	return c, nil
}

func ReadClientCredentialsFor(client string) (ClientCredentials, error) {
	path, err := ClientCredentialsPath(client)
	if err != nil {
		return ClientCredentials{}, err
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path
	if err != nil {
		if os.IsNotExist(err) {
			return ClientCredentials{}, &CredentialsMissingError{Path: path, Cause: err}
		}

		return ClientCredentials{}, fmt.Errorf("read credentials: %w", err)
	}

	return ParseGoogleOAuthClientJSON(data)
}

// WriteClientCredentialsFor stores normalized credentials for client.
func WriteClientCredentialsFor(client string, c ClientCredentials) (string, error) {
	if _, err := EnsureDir(); err != nil {
		return "", err
	}

	path, err := ClientCredentialsPath(client)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write credentials: %w", err)
	}

	return path, nil
}
