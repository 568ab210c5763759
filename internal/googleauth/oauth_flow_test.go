package googleauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"

	"github.com/steipete/gdocs-mcp/internal/config"
)

func useTempManualStatePath(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	orig := manualStateDirFn

	t.Cleanup(func() { manualStateDirFn = orig })

	manualStateDirFn = func() (string, error) { return dir, nil }

	return dir
}

func oauth2EndpointForTest(base string) oauth2.Endpoint {
	return oauth2.Endpoint{
		AuthURL:   base + "/auth",
		TokenURL:  base + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// stubOAuth swaps the credential reader, the endpoint and the state
// generator. The returned server answers token exchanges and userinfo.
func stubOAuth(t *testing.T, refreshToken string) *httptest.Server {
	t.Helper()

	origRead := readClientCredentials
	origEndpoint := oauthEndpoint
	origState := randomStateFn
	origRedirect := loopbackRedirectFn
	origUserinfo := userinfoOptions

	t.Cleanup(func() {
		readClientCredentials = origRead
		oauthEndpoint = origEndpoint
		randomStateFn = origState
		loopbackRedirectFn = origRedirect
		userinfoOptions = origUserinfo
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/token":
			_ = r.ParseForm()
			if r.Form.Get("grant_type") == "authorization_code" && r.Form.Get("code") != "good-code" {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})

				return
			}

			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": refreshToken,
			})
		case strings.HasSuffix(r.URL.Path, "/userinfo"):
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			_ = json.NewEncoder(w).Encode(map[string]any{"email": "User@Example.com"})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	readClientCredentials = func(string) (config.ClientCredentials, error) {
		return config.ClientCredentials{ClientID: "id", ClientSecret: "secret"}, nil
	}
	oauthEndpoint = oauth2EndpointForTest(srv.URL)
	randomStateFn = func() (string, error) { return "state1", nil }
	loopbackRedirectFn = func(context.Context) (string, error) {
		return "http://127.0.0.1:9004/oauth2/callback", nil
	}
	userinfoOptions = []option.ClientOption{option.WithEndpoint(srv.URL + "/")}

	return srv
}

func TestManualAuthURL_ReusesState(t *testing.T) {
	useTempManualStatePath(t)
	stubOAuth(t, "rt")

	calls := 0
	randomStateFn = func() (string, error) {
		calls++
		return "state" + string(rune('0'+calls)), nil
	}

	opts := AuthorizeOptions{Scopes: []string{"s2", "s1"}, Manual: true}

	res1, err := ManualAuthURL(context.Background(), opts)
	if err != nil {
		t.Fatalf("ManualAuthURL: %v", err)
	}

	opts.Scopes = []string{"s1", "s2"}

	res2, err := ManualAuthURL(context.Background(), opts)
	if err != nil {
		t.Fatalf("ManualAuthURL second: %v", err)
	}

	if authURLParam(t, res1.URL, "state") != "state1" || authURLParam(t, res2.URL, "state") != "state1" {
		t.Fatalf("expected reused state: %s / %s", res1.URL, res2.URL)
	}

	if res1.StateReused || !res2.StateReused {
		t.Fatalf("unexpected reuse flags: %v %v", res1.StateReused, res2.StateReused)
	}

	if calls != 1 {
		t.Fatalf("expected one state generated, got %d", calls)
	}

	if got := authURLParam(t, res1.URL, "access_type"); got != "offline" {
		t.Fatalf("expected offline access, got %q", got)
	}
}

func TestManualAuthURL_ExpiredStateIsReplaced(t *testing.T) {
	dir := useTempManualStatePath(t)
	stubOAuth(t, "rt")

	opts := AuthorizeOptions{Scopes: []string{"s1"}}
	if _, err := ManualAuthURL(context.Background(), opts); err != nil {
		t.Fatalf("ManualAuthURL: %v", err)
	}

	origNow := manualStateNowFn

	t.Cleanup(func() { manualStateNowFn = origNow })

	manualStateNowFn = func() time.Time { return time.Now().Add(manualStateTTL + time.Minute) }

	res, err := ManualAuthURL(context.Background(), opts)
	if err != nil {
		t.Fatalf("ManualAuthURL: %v", err)
	}

	if res.StateReused {
		t.Fatalf("expected a fresh state after expiry")
	}

	entries, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(entries) != 1 {
		t.Fatalf("expected one state file, got %v", entries)
	}
}

func TestAuthorize_ManualTwoStep(t *testing.T) {
	dir := useTempManualStatePath(t)
	stubOAuth(t, "refresh-1")

	opts := AuthorizeOptions{Scopes: []string{"s1"}, Manual: true}
	if _, err := ManualAuthURL(context.Background(), opts); err != nil {
		t.Fatalf("ManualAuthURL: %v", err)
	}

	opts.AuthURL = "http://127.0.0.1:9004/oauth2/callback?code=good-code&state=state1"

	rt, err := Authorize(context.Background(), opts)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}

	if rt != "refresh-1" {
		t.Fatalf("unexpected refresh token %q", rt)
	}

	if _, err := os.Stat(filepath.Join(dir, "state1.json")); !os.IsNotExist(err) {
		t.Fatalf("expected state cleared, stat err=%v", err)
	}
}

func TestAuthorize_ManualPrompt(t *testing.T) {
	useTempManualStatePath(t)
	stubOAuth(t, "refresh-2")

	origPrompt := promptLineFn

	t.Cleanup(func() { promptLineFn = origPrompt })

	promptLineFn = func(context.Context, string) (string, error) {
		return "http://127.0.0.1:9004/oauth2/callback?code=good-code&state=state1\n", nil
	}

	rt, err := Authorize(context.Background(), AuthorizeOptions{Scopes: []string{"s1"}, Manual: true})
	if err != nil || rt != "refresh-2" {
		t.Fatalf("Authorize: %q %v", rt, err)
	}
}

func TestAuthorize_RedirectErrors(t *testing.T) {
	useTempManualStatePath(t)
	stubOAuth(t, "")

	opts := AuthorizeOptions{Scopes: []string{"s1"}}
	if _, err := ManualAuthURL(context.Background(), opts); err != nil {
		t.Fatalf("ManualAuthURL: %v", err)
	}

	tests := []struct {
		name    string
		authURL string
		scopes  []string
		want    error
	}{
		{"no code", "http://127.0.0.1:9004/oauth2/callback?state=state1", nil, errMissingCode},
		{"denied", "http://127.0.0.1:9004/oauth2/callback?error=access_denied", nil, errAuthorization},
		{"unknown state", "http://127.0.0.1:9004/oauth2/callback?code=c&state=other", nil, errManualStateMissing},
		{"no state", "http://127.0.0.1:9004/oauth2/callback?code=c", nil, errManualStateMissing},
		{"wrong port", "http://127.0.0.1:9999/oauth2/callback?code=good-code&state=state1", nil, errStateMismatch},
		{"scope change", "http://127.0.0.1:9004/oauth2/callback?code=good-code&state=state1", []string{"s2"}, errStateMismatch},
		{"relative", "/oauth2/callback?code=c", nil, errInvalidRedirectURL},
		{"no refresh token", "http://127.0.0.1:9004/oauth2/callback?code=good-code&state=state1", nil, errNoRefreshToken},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := opts
			o.AuthURL = tc.authURL

			if tc.scopes != nil {
				o.Scopes = tc.scopes
			}

			if _, err := Authorize(context.Background(), o); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthorize_Loopback(t *testing.T) {
	stubOAuth(t, "refresh-3")

	origOpen := openBrowserFn

	t.Cleanup(func() { openBrowserFn = origOpen })

	openBrowserFn = func(authURL string) error {
		u, err := url.Parse(authURL)
		if err != nil {
			return err
		}

		q := u.Query()
		cb := q.Get("redirect_uri") + "?code=good-code&state=" + q.Get("state")

		go func() {
			resp, err := http.Get(cb) //nolint:noctx // test callback
			if err == nil {
				_ = resp.Body.Close()
			}
		}()

		return nil
	}

	rt, err := Authorize(context.Background(), AuthorizeOptions{Scopes: []string{"s1"}, Timeout: 10 * time.Second})
	if err != nil || rt != "refresh-3" {
		t.Fatalf("Authorize: %q %v", rt, err)
	}
}

func TestAuthorize_LoopbackStateMismatch(t *testing.T) {
	stubOAuth(t, "rt")

	origOpen := openBrowserFn

	t.Cleanup(func() { openBrowserFn = origOpen })

	openBrowserFn = func(authURL string) error {
		u, _ := url.Parse(authURL)

		go func() {
			resp, err := http.Get(u.Query().Get("redirect_uri") + "?code=good-code&state=forged") //nolint:noctx // test callback
			if err == nil {
				_ = resp.Body.Close()
			}
		}()

		return nil
	}

	if _, err := Authorize(context.Background(), AuthorizeOptions{Scopes: []string{"s1"}, Timeout: 10 * time.Second}); !errors.Is(err, errStateMismatch) {
		t.Fatalf("expected state mismatch, got %v", err)
	}
}

func TestAuthorize_MissingScopes(t *testing.T) {
	if _, err := Authorize(context.Background(), AuthorizeOptions{}); !errors.Is(err, errMissingScopes) {
		t.Fatalf("expected missing scopes, got %v", err)
	}
}

func TestEmailForRefreshToken(t *testing.T) {
	stubOAuth(t, "rt")

	email, err := EmailForRefreshToken(context.Background(), "", []string{"email"}, "rt")
	if err != nil {
		t.Fatalf("EmailForRefreshToken: %v", err)
	}

	if email != "user@example.com" {
		t.Fatalf("unexpected email %q", email)
	}
}

func authURLParam(t *testing.T, rawURL, key string) string {
	t.Helper()

	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse auth URL: %v", err)
	}

	return parsed.Query().Get(key)
}
