package secrets

import (
	"errors"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"

	"github.com/steipete/gdocs-mcp/internal/config"
)

var errTestKeychain = errors.New("test -25308 error")

func TestKeyringStore_ListDeleteDefault(t *testing.T) {
	store := &KeyringStore{ring: keyring.NewArrayKeyring(nil)}
	client := config.DefaultClientName

	for _, tok := range []Token{
		{Email: "c@d.com", RefreshToken: "rt2", Services: []string{"docs"}},
		{Email: "a@b.com", RefreshToken: "rt1", Services: []string{"docs", "drive"}},
	} {
		if err := store.SetToken(client, tok.Email, tok); err != nil {
			t.Fatalf("SetToken: %v", err)
		}
	}

	if err := store.SetToken("work", "a@b.com", Token{RefreshToken: "rt3"}); err != nil {
		t.Fatalf("SetToken work: %v", err)
	}

	tokens, err := store.ListTokens()
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}

	if len(tokens) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(tokens))
	}

	if tokens[0].Email != "a@b.com" || tokens[0].Client != "default" || tokens[2].Client != "work" {
		t.Fatalf("unexpected order: %+v", tokens)
	}

	if tokens[0].RefreshToken != "rt1" || tokens[0].CreatedAt.IsZero() || len(tokens[0].Services) != 2 {
		t.Fatalf("unexpected token: %+v", tokens[0])
	}

	if err := store.DeleteToken(client, "a@b.com"); err != nil {
		t.Fatalf("DeleteToken: %v", err)
	}

	if _, err := store.GetToken(client, "a@b.com"); err == nil {
		t.Fatalf("expected error for deleted token")
	}

	if err := store.DeleteToken(client, "a@b.com"); err != nil {
		t.Fatalf("deleting a missing token should succeed: %v", err)
	}

	if err := store.SetDefaultAccount(client, "A@B.com"); err != nil {
		t.Fatalf("SetDefaultAccount: %v", err)
	}

	if def, err := store.GetDefaultAccount(client); err != nil || def != "a@b.com" {
		t.Fatalf("GetDefaultAccount: %q %v", def, err)
	}

	if def, err := store.GetDefaultAccount("work"); err != nil || def != "" {
		t.Fatalf("expected no default for work client, got %q err=%v", def, err)
	}
}

func TestParseTokenKey(t *testing.T) {
	if client, email, ok := ParseTokenKey("token:a@b.com"); !ok || email != "a@b.com" || client != config.DefaultClientName {
		t.Fatalf("unexpected parse: client=%q email=%q ok=%v", client, email, ok)
	}

	if client, email, ok := ParseTokenKey("token:org:a@b.com"); !ok || email != "a@b.com" || client != "org" {
		t.Fatalf("unexpected parse: client=%q email=%q ok=%v", client, email, ok)
	}

	for _, k := range []string{"nope", "token:", "token::a@b.com", "default_account:default"} {
		if _, _, ok := ParseTokenKey(k); ok {
			t.Fatalf("expected invalid token key %q", k)
		}
	}
}

func TestAllowedBackends(t *testing.T) {
	for _, v := range []string{"", "auto", "keychain", "file"} {
		if _, err := allowedBackends(KeyringBackendInfo{Value: v}); err != nil {
			t.Fatalf("%q allowed: %v", v, err)
		}
	}

	if _, err := allowedBackends(KeyringBackendInfo{Value: "vault"}); !errors.Is(err, errInvalidBackend) {
		t.Fatalf("expected invalid backend, got %v", err)
	}
}

func TestResolveKeyringBackendInfo(t *testing.T) {
	t.Setenv("GDOCS_MCP_CONFIG_DIR", t.TempDir())
	t.Setenv(config.EnvKeyringBackend, "")

	info, err := ResolveKeyringBackendInfo()
	if err != nil || info.Value != "auto" || info.Source != "default" {
		t.Fatalf("default: %+v %v", info, err)
	}

	if err := config.WriteConfig(config.File{KeyringBackend: "file"}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}

	info, err = ResolveKeyringBackendInfo()
	if err != nil || info.Value != "file" || info.Source != "config" {
		t.Fatalf("config: %+v %v", info, err)
	}

	t.Setenv(config.EnvKeyringBackend, " Keychain ")

	info, err = ResolveKeyringBackendInfo()
	if err != nil || info.Value != "keychain" || info.Source != "env" {
		t.Fatalf("env: %+v %v", info, err)
	}
}

func TestWrapKeychainError(t *testing.T) {
	wrapped := wrapKeychainError(errTestKeychain)
	if runtime.GOOS == "darwin" {
		if !errors.Is(wrapped, errTestKeychain) || !strings.Contains(wrapped.Error(), "keychain is locked") {
			t.Fatalf("expected wrapped keychain error, got: %v", wrapped)
		}

		return
	}

	if wrapped != errTestKeychain { //nolint:errorlint // identity check
		t.Fatalf("expected passthrough error, got: %v", wrapped)
	}
}

func TestFileKeyringPasswordFuncFrom(t *testing.T) {
	fn := fileKeyringPasswordFuncFrom("pw", false)
	if got, err := fn("prompt"); err != nil || got != "pw" {
		t.Fatalf("expected password, got %q err=%v", got, err)
	}

	fn = fileKeyringPasswordFuncFrom("", false)
	if _, err := fn("prompt"); !errors.Is(err, errNoTTY) {
		t.Fatalf("expected no TTY error, got: %v", err)
	}
}

func TestKeyringStoreValidation(t *testing.T) {
	store := &KeyringStore{ring: keyring.NewArrayKeyring(nil)}
	client := config.DefaultClientName

	if err := store.SetToken(client, " ", Token{RefreshToken: "rt"}); !errors.Is(err, errMissingEmail) {
		t.Fatalf("expected missing email, got %v", err)
	}

	if err := store.SetToken(client, "a@b.com", Token{}); !errors.Is(err, errMissingRefreshToken) {
		t.Fatalf("expected missing refresh token, got %v", err)
	}

	if err := store.DeleteToken(client, " "); !errors.Is(err, errMissingEmail) {
		t.Fatalf("expected missing email, got %v", err)
	}

	if err := store.SetDefaultAccount(client, " "); !errors.Is(err, errMissingEmail) {
		t.Fatalf("expected missing email, got %v", err)
	}

	if err := store.SetToken("bad/name", "a@b.com", Token{RefreshToken: "rt"}); err == nil {
		t.Fatalf("expected invalid client name error")
	}
}

func TestOpenDefaultError(t *testing.T) {
	origOpen := openKeyringFunc

	t.Cleanup(func() { openKeyringFunc = origOpen })

	openKeyringFunc = func() (keyring.Keyring, error) {
		return nil, errTestKeychain
	}

	if _, err := OpenDefault(); !errors.Is(err, errTestKeychain) {
		t.Fatalf("expected error, got %v", err)
	}
}

func TestKeyringStoreWritesSetLabel(t *testing.T) {
	ring := keyring.NewArrayKeyring(nil)
	store := &KeyringStore{ring: ring}
	client := config.DefaultClientName

	if err := store.SetToken(client, "A@B.COM", Token{RefreshToken: "rt", CreatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("SetToken: %v", err)
	}

	if err := store.SetDefaultAccount(client, "A@B.COM"); err != nil {
		t.Fatalf("SetDefaultAccount: %v", err)
	}

	for _, k := range []string{tokenKey(client, "a@b.com"), defaultAccountKeyForClient(client)} {
		it, err := ring.Get(k)
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}

		if it.Label != config.AppName {
			t.Fatalf("expected label %q for key %q, got %q", config.AppName, k, it.Label)
		}

		if strings.Contains(string(it.Data), "A@B.COM") {
			t.Fatalf("expected normalized email in %q", k)
		}
	}
}
