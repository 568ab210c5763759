package googleauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/input"
)

type AuthorizeOptions struct {
	Scopes       []string
	Client       string
	Manual       bool
	ForceConsent bool
	Timeout      time.Duration
	// AuthURL is the redirect URL pasted back in the second step of a
	// headless authorization.
	AuthURL string
}

type ManualAuthURLResult struct {
	URL         string
	StateReused bool
}

const callbackPath = "/oauth2/callback"

var (
	readClientCredentials = config.ReadClientCredentialsFor
	openBrowserFn         = openBrowser
	oauthEndpoint         = google.Endpoint
	randomStateFn         = randomState
	loopbackRedirectFn    = loopbackRedirectURI
	promptLineFn          = input.PromptLine
	userinfoOptions       []option.ClientOption
)

var (
	errAuthorization      = errors.New("authorization error")
	errInvalidRedirectURL = errors.New("invalid redirect URL")
	errMissingCode        = errors.New("missing code")
	errMissingScopes      = errors.New("missing scopes")
	errNoRefreshToken     = errors.New("no refresh token received; try again with --force-consent")
	errManualStateMissing = errors.New("manual auth state missing or expired; run the first step again")
	errStateMismatch      = errors.New("state mismatch")
	errNoEmail            = errors.New("userinfo response has no email")
)

// Authorize runs the OAuth consent flow and returns a refresh token. The
// default flow serves a loopback callback and opens the browser; Manual prints
// the URL and reads the redirect URL from the terminal (or from AuthURL).
func Authorize(ctx context.Context, opts AuthorizeOptions) (string, error) {
	if len(opts.Scopes) == 0 {
		return "", errMissingScopes
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	cfg, err := oauthConfig(opts)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if strings.TrimSpace(opts.AuthURL) != "" {
		return exchangeRedirect(ctx, opts, cfg, opts.AuthURL)
	}

	if opts.Manual {
		return authorizeManual(ctx, opts, cfg)
	}

	return authorizeLoopback(ctx, opts, cfg)
}

func oauthConfig(opts AuthorizeOptions) (oauth2.Config, error) {
	creds, err := readClientCredentials(opts.Client)
	if err != nil {
		return oauth2.Config{}, err
	}

	return oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     oauthEndpoint,
		Scopes:       opts.Scopes,
	}, nil
}

// ManualAuthURL is the first step of a headless authorization. Repeated calls
// with the same client and scopes reuse the pending state.
func ManualAuthURL(ctx context.Context, opts AuthorizeOptions) (ManualAuthURLResult, error) {
	if len(opts.Scopes) == 0 {
		return ManualAuthURLResult{}, errMissingScopes
	}

	cfg, err := oauthConfig(opts)
	if err != nil {
		return ManualAuthURLResult{}, err
	}

	st, reused, err := pendingManualState(ctx, opts)
	if err != nil {
		return ManualAuthURLResult{}, err
	}

	cfg.RedirectURL = st.RedirectURI

	return ManualAuthURLResult{
		URL:         cfg.AuthCodeURL(st.State, authURLParams(opts.ForceConsent)...),
		StateReused: reused,
	}, nil
}

func pendingManualState(ctx context.Context, opts AuthorizeOptions) (manualState, bool, error) {
	st, ok, err := newestManualState(opts.Client, opts.Scopes, opts.ForceConsent)
	if err != nil || ok {
		return st, ok, err
	}

	redirect, err := loopbackRedirectFn(ctx)
	if err != nil {
		return manualState{}, false, err
	}

	state, err := randomStateFn()
	if err != nil {
		return manualState{}, false, err
	}

	st = manualState{
		State:        state,
		Client:       opts.Client,
		Scopes:       opts.Scopes,
		ForceConsent: opts.ForceConsent,
		RedirectURI:  redirect,
	}

	if err := saveManualState(st); err != nil {
		return manualState{}, false, err
	}

	return st, false, nil
}

func authorizeManual(ctx context.Context, opts AuthorizeOptions, cfg oauth2.Config) (string, error) {
	res, err := ManualAuthURL(ctx, opts)
	if err != nil {
		return "", err
	}

	fmt.Fprintln(os.Stderr, "Visit this URL to authorize:")
	fmt.Fprintln(os.Stderr, res.URL)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "The browser will land on a loopback URL that does not load.")
	fmt.Fprintln(os.Stderr, "Copy that URL from the address bar and paste it here.")

	line, err := promptLineFn(ctx, "Redirect URL: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("authorization canceled: %w", context.Canceled)
		}

		return "", fmt.Errorf("read redirect url: %w", err)
	}

	return exchangeRedirect(ctx, opts, cfg, line)
}

// exchangeRedirect validates the pasted redirect URL against the stored state
// and trades its code for a token.
func exchangeRedirect(ctx context.Context, opts AuthorizeOptions, cfg oauth2.Config, raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse redirect url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("parse redirect url: %w", errInvalidRedirectURL)
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("%w: %s", errAuthorization, e)
	}

	code := q.Get("code")
	if code == "" {
		return "", errMissingCode
	}

	st, ok, err := lookupManualState(q.Get("state"))
	if err != nil {
		if errors.Is(err, errEmptyManualState) {
			return "", errManualStateMissing
		}

		return "", err
	}

	if !ok {
		return "", errManualStateMissing
	}

	if !st.matches(opts.Client, opts.Scopes, opts.ForceConsent) || st.RedirectURI != u.Scheme+"://"+u.Host+u.EscapedPath() {
		return "", errStateMismatch
	}

	cfg.RedirectURL = st.RedirectURI

	rt, err := exchange(ctx, cfg, code)
	if err != nil {
		return "", err
	}

	_ = clearManualState(st.State)

	return rt, nil
}

func exchange(ctx context.Context, cfg oauth2.Config, code string) (string, error) {
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}

	if tok.RefreshToken == "" {
		return "", errNoRefreshToken
	}

	return tok.RefreshToken, nil
}

func authorizeLoopback(ctx context.Context, opts AuthorizeOptions, cfg oauth2.Config) (string, error) {
	state, err := randomStateFn()
	if err != nil {
		return "", err
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("listen for callback: %w", err)
	}

	defer func() { _ = ln.Close() }()

	cfg.RedirectURL = fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	report := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		switch {
		case q.Get("error") != "":
			report(fmt.Errorf("%w: %s", errAuthorization, q.Get("error")))
			renderPage(w, http.StatusOK, "Authorization canceled", "You can close this window.")
		case q.Get("state") != state:
			report(errStateMismatch)
			renderPage(w, http.StatusBadRequest, "Authorization failed", "State mismatch. Please try again.")
		case q.Get("code") == "":
			report(errMissingCode)
			renderPage(w, http.StatusBadRequest, "Authorization failed", "Missing authorization code. Please try again.")
		default:
			select {
			case codeCh <- q.Get("code"):
			default:
			}

			renderPage(w, http.StatusOK, "Authorized", "gdocs-mcp is connected. You can close this window.")
		}
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			report(err)
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := cfg.AuthCodeURL(state, authURLParams(opts.ForceConsent)...)

	fmt.Fprintln(os.Stderr, "Opening browser for authorization. If it does not open, visit:")
	fmt.Fprintln(os.Stderr, authURL)
	_ = openBrowserFn(authURL)

	select {
	case code := <-codeCh:
		return exchange(ctx, cfg, code)
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("authorization canceled: %w", ctx.Err())
	}
}

// EmailForRefreshToken resolves the account a refresh token belongs to.
func EmailForRefreshToken(ctx context.Context, client string, scopes []string, refreshToken string) (string, error) {
	cfg, err := oauthConfig(AuthorizeOptions{Client: client, Scopes: scopes})
	if err != nil {
		return "", err
	}

	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, userinfoOptions...)

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetch userinfo: %w", err)
	}

	if info.Email == "" {
		return "", errNoEmail
	}

	return strings.ToLower(info.Email), nil
}

func loopbackRedirectURI(ctx context.Context) (string, error) {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return "", fmt.Errorf("reserve redirect port: %w", err)
	}

	defer func() { _ = ln.Close() }()

	return fmt.Sprintf("http://%s%s", ln.Addr().String(), callbackPath), nil
}

func authURLParams(forceConsent bool) []oauth2.AuthCodeOption {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}

	if forceConsent {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"))
	}

	return opts
}

func randomState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body{font-family:system-ui,sans-serif;max-width:32rem;margin:4rem auto;color:#202124}</style>
</head><body><h1>{{.Title}}</h1><p>{{.Message}}</p></body></html>
`))

func renderPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, struct{ Title, Message string }{title, message})
}
