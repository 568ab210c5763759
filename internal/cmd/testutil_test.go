package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"
	"testing"

	"github.com/99designs/keyring"
	"github.com/alecthomas/kong"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/googleauth"
	"github.com/steipete/gdocs-mcp/internal/secrets"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = orig
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func captureStderr(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stderr
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stderr = w

	fn()

	_ = w.Close()
	os.Stderr = orig
	b, _ := io.ReadAll(r)
	_ = r.Close()
	return string(b)
}

func withStdin(t *testing.T, input string, fn func()) {
	t.Helper()

	orig := os.Stdin
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdin = r

	_, _ = io.WriteString(w, input)
	_ = w.Close()

	fn()

	_ = r.Close()
	os.Stdin = orig
}

func runKong(t *testing.T, cmd any, args []string, ctx context.Context, flags *RootFlags) (err error) {
	t.Helper()

	parser, err := kong.New(
		cmd,
		kong.Vars(kong.Vars{
			"auth_services": googleauth.UserServiceCSV(),
		}),
		kong.Writers(io.Discard, io.Discard),
		kong.Exit(func(code int) { panic(exitPanic{code: code}) }),
	)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if ep, ok := r.(exitPanic); ok {
				if ep.code == 0 {
					err = nil
					return
				}
				err = &ExitError{Code: ep.code, Err: errors.New("exited")}
				return
			}
			panic(r)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if ctx != nil {
		kctx.BindTo(ctx, (*context.Context)(nil))
	}
	if flags == nil {
		flags = &RootFlags{}
	}
	kctx.Bind(flags)

	return kctx.Run()
}

// isolateConfig points the config dir at a temp dir and clears env that would
// leak the developer's setup into a test.
func isolateConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("GDOCS_MCP_CONFIG_DIR", dir)
	t.Setenv(config.EnvAccount, "")
	t.Setenv(config.EnvClient, "")
	t.Setenv(config.EnvKeyringBackend, "")
	t.Setenv(config.EnvEnvFile, "")
	t.Setenv("GDOCS_MCP_AUTO_JSON", "")
	t.Setenv("GDOCS_MCP_JSON", "")
	t.Setenv("GDOCS_MCP_PLAIN", "")
	return dir
}

type memSecretsStore struct {
	tokens   map[string]secrets.Token
	defaults map[string]string
}

func newMemSecretsStore() *memSecretsStore {
	return &memSecretsStore{tokens: map[string]secrets.Token{}, defaults: map[string]string{}}
}

func useMemSecretsStore(t *testing.T, store *memSecretsStore) {
	t.Helper()

	orig := openSecretsStore
	t.Cleanup(func() { openSecretsStore = orig })
	openSecretsStore = func() (secrets.Store, error) { return store, nil }
}

func (s *memSecretsStore) key(client, email string) string {
	return client + ":" + normalizeEmail(email)
}

func (s *memSecretsStore) Keys() ([]string, error) {
	out := make([]string, 0, len(s.tokens))
	for k := range s.tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memSecretsStore) SetToken(client, email string, tok secrets.Token) error {
	tok.Client = client
	tok.Email = normalizeEmail(email)
	s.tokens[s.key(client, email)] = tok
	return nil
}

func (s *memSecretsStore) GetToken(client, email string) (secrets.Token, error) {
	tok, ok := s.tokens[s.key(client, email)]
	if !ok {
		return secrets.Token{}, keyring.ErrKeyNotFound
	}
	return tok, nil
}

func (s *memSecretsStore) DeleteToken(client, email string) error {
	if _, ok := s.tokens[s.key(client, email)]; !ok {
		return keyring.ErrKeyNotFound
	}
	delete(s.tokens, s.key(client, email))
	return nil
}

func (s *memSecretsStore) ListTokens() ([]secrets.Token, error) {
	keys, _ := s.Keys()
	out := make([]secrets.Token, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.tokens[k])
	}
	return out, nil
}

func (s *memSecretsStore) GetDefaultAccount(client string) (string, error) {
	return s.defaults[client], nil
}

func (s *memSecretsStore) SetDefaultAccount(client, email string) error {
	s.defaults[client] = normalizeEmail(email)
	return nil
}
