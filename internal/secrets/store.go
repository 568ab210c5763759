package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"golang.org/x/term"

	"github.com/steipete/gdocs-mcp/internal/config"
)

// Store persists OAuth refresh tokens per (client, email).
type Store interface {
	Keys() ([]string, error)
	SetToken(client string, email string, tok Token) error
	GetToken(client string, email string) (Token, error)
	DeleteToken(client string, email string) error
	ListTokens() ([]Token, error)
	GetDefaultAccount(client string) (string, error)
	SetDefaultAccount(client string, email string) error
}

type KeyringStore struct {
	ring keyring.Keyring
}

type Token struct {
	Client       string    `json:"client,omitempty"`
	Email        string    `json:"email"`
	Services     []string  `json:"services,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
	RefreshToken string    `json:"-"`
}

type storedToken struct {
	RefreshToken string    `json:"refresh_token"`
	Services     []string  `json:"services,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

const (
	tokenKeyPrefix    = "token:"
	defaultAccountKey = "default_account"
)

var (
	errMissingEmail        = errors.New("missing email")
	errMissingRefreshToken = errors.New("missing refresh token")
	errNoTTY               = errors.New("no TTY available for keyring file backend password prompt")
	errInvalidBackend      = errors.New("invalid keyring backend")
)

var openKeyringFunc = openKeyring

func OpenDefault() (Store, error) {
	ring, err := openKeyringFunc()
	if err != nil {
		return nil, err
	}

	return &KeyringStore{ring: ring}, nil
}

// KeyringBackendInfo records the selected backend and where the choice came from.
type KeyringBackendInfo struct {
	Value  string
	Source string
}

// ResolveKeyringBackendInfo picks the backend from the environment, then the
// config file, then "auto".
func ResolveKeyringBackendInfo() (KeyringBackendInfo, error) {
	if v := strings.ToLower(strings.TrimSpace(os.Getenv(config.EnvKeyringBackend))); v != "" {
		return KeyringBackendInfo{Value: v, Source: "env"}, nil
	}

	cfg, err := config.ReadConfig()
	if err != nil {
		return KeyringBackendInfo{}, err
	}

	if cfg.KeyringBackend != "" {
		return KeyringBackendInfo{Value: cfg.KeyringBackend, Source: "config"}, nil
	}

	return KeyringBackendInfo{Value: "auto", Source: "default"}, nil
}

func allowedBackends(info KeyringBackendInfo) ([]keyring.BackendType, error) {
	switch info.Value {
	case "", "auto":
		return nil, nil
	case "keychain":
		return []keyring.BackendType{keyring.KeychainBackend}, nil
	case "file":
		return []keyring.BackendType{keyring.FileBackend}, nil
	}

	return nil, fmt.Errorf("%w %q (expected auto, keychain or file)", errInvalidBackend, info.Value)
}

func openKeyring() (keyring.Keyring, error) {
	info, err := ResolveKeyringBackendInfo()
	if err != nil {
		return nil, err
	}

	backends, err := allowedBackends(info)
	if err != nil {
		return nil, err
	}

	dir, err := config.KeyringDir()
	if err != nil {
		return nil, err
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              config.AppName,
		AllowedBackends:          backends,
		KeychainTrustApplication: runtime.GOOS == "darwin",
		FileDir:                  dir,
		FilePasswordFunc: fileKeyringPasswordFuncFrom(
			os.Getenv(config.EnvKeyringPassword),
			term.IsTerminal(int(os.Stdin.Fd())), //nolint:gosec // fd fits in int
		),
	})
	if err != nil {
		return nil, wrapKeychainError(fmt.Errorf("open keyring: %w", err))
	}

	return ring, nil
}

func fileKeyringPasswordFuncFrom(password string, isTTY bool) keyring.PromptFunc {
	if password != "" {
		return keyring.FixedStringPrompt(password)
	}

	if isTTY {
		return keyring.TerminalPrompt
	}

	return func(string) (string, error) {
		return "", fmt.Errorf("%w; set %s", errNoTTY, config.EnvKeyringPassword)
	}
}

// wrapKeychainError adds a hint for the macOS "keychain locked" failure
// (errSecInteractionNotAllowed, -25308).
func wrapKeychainError(err error) error {
	if err == nil || runtime.GOOS != "darwin" {
		return err
	}

	if strings.Contains(err.Error(), "-25308") {
		return fmt.Errorf("%w (keychain is locked; unlock it or use the file backend)", err)
	}

	return err
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func tokenKey(client, email string) string {
	return tokenKeyPrefix + client + ":" + email
}

func defaultAccountKeyForClient(client string) string {
	return defaultAccountKey + ":" + client
}

// ParseTokenKey splits "token:<client>:<email>". Keys without a client name
// belong to the default client.
func ParseTokenKey(k string) (client string, email string, ok bool) {
	rest, found := strings.CutPrefix(k, tokenKeyPrefix)
	if !found || rest == "" {
		return "", "", false
	}

	if c, e, hasClient := strings.Cut(rest, ":"); hasClient {
		if c == "" || e == "" {
			return "", "", false
		}

		return c, e, true
	}

	return config.DefaultClientName, rest, true
}

func (s *KeyringStore) Keys() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, wrapKeychainError(err)
	}

	return keys, nil
}

func (s *KeyringStore) SetToken(client string, email string, tok Token) error {
	email = normalize(email)
	if email == "" {
		return errMissingEmail
	}

	if tok.RefreshToken == "" {
		return errMissingRefreshToken
	}

	client, err := config.NormalizeClientName(client)
	if err != nil {
		return err
	}

	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(storedToken{
		RefreshToken: tok.RefreshToken,
		Services:     tok.Services,
		Scopes:       tok.Scopes,
		CreatedAt:    tok.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}

	return s.set(tokenKey(client, email), payload)
}

func (s *KeyringStore) GetToken(client string, email string) (Token, error) {
	email = normalize(email)
	if email == "" {
		return Token{}, errMissingEmail
	}

	client, err := config.NormalizeClientName(client)
	if err != nil {
		return Token{}, err
	}

	item, err := s.ring.Get(tokenKey(client, email))
	if err != nil {
		return Token{}, wrapKeychainError(err)
	}

	var st storedToken
	if err := json.Unmarshal(item.Data, &st); err != nil {
		return Token{}, fmt.Errorf("decode token: %w", err)
	}

	return Token{
		Client:       client,
		Email:        email,
		Services:     st.Services,
		Scopes:       st.Scopes,
		CreatedAt:    st.CreatedAt,
		RefreshToken: st.RefreshToken,
	}, nil
}

func (s *KeyringStore) DeleteToken(client string, email string) error {
	email = normalize(email)
	if email == "" {
		return errMissingEmail
	}

	client, err := config.NormalizeClientName(client)
	if err != nil {
		return err
	}

	if err := s.ring.Remove(tokenKey(client, email)); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return wrapKeychainError(err)
	}

	return nil
}

func (s *KeyringStore) ListTokens() ([]Token, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}

	var out []Token

	for _, k := range keys {
		client, email, ok := ParseTokenKey(k)
		if !ok {
			continue
		}

		tok, err := s.GetToken(client, email)
		if err != nil {
			return nil, fmt.Errorf("read token %s: %w", k, err)
		}

		out = append(out, tok)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Client != out[j].Client {
			return out[i].Client < out[j].Client
		}

		return out[i].Email < out[j].Email
	})

	return out, nil
}

func (s *KeyringStore) GetDefaultAccount(client string) (string, error) {
	client, err := config.NormalizeClientName(client)
	if err != nil {
		return "", err
	}

	item, err := s.ring.Get(defaultAccountKeyForClient(client))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}

		return "", wrapKeychainError(err)
	}

	return string(item.Data), nil
}

func (s *KeyringStore) SetDefaultAccount(client string, email string) error {
	email = normalize(email)
	if email == "" {
		return errMissingEmail
	}

	client, err := config.NormalizeClientName(client)
	if err != nil {
		return err
	}

	return s.set(defaultAccountKeyForClient(client), []byte(email))
}

func (s *KeyringStore) set(key string, data []byte) error {
	if err := s.ring.Set(keyring.Item{
		Key:   key,
		Data:  data,
		Label: config.AppName,
	}); err != nil {
		return wrapKeychainError(err)
	}

	return nil
}
