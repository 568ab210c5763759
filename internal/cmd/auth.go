package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/steipete/gdocs-mcp/internal/authclient"
	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/googleauth"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
	"github.com/steipete/gdocs-mcp/internal/secrets"
	"github.com/steipete/gdocs-mcp/internal/ui"
)

var (
	openSecretsStore     = secrets.OpenDefault
	authorizeGoogle      = googleauth.Authorize
	fetchAuthorizedEmail = googleauth.EmailForRefreshToken
	manualAuthURL        = googleauth.ManualAuthURL
)

const (
	authTypeOAuth          = "oauth"
	authTypeServiceAccount = "service_account"
)

type AuthCmd struct {
	Credentials AuthCredentialsCmd    `cmd:"" name:"credentials" help:"Manage OAuth client credentials"`
	Add         AuthAddCmd            `cmd:"" name:"add" help:"Authorize and store a refresh token"`
	Services    AuthServicesCmd       `cmd:"" name:"services" help:"List supported auth services and scopes"`
	List        AuthListCmd           `cmd:"" name:"list" help:"List stored accounts"`
	Status      AuthStatusCmd         `cmd:"" name:"status" help:"Show auth configuration and keyring backend"`
	Keyring     AuthKeyringCmd        `cmd:"" name:"keyring" help:"Configure keyring backend"`
	Remove      AuthRemoveCmd         `cmd:"" name:"remove" help:"Remove a stored refresh token"`
	ServiceAcct AuthServiceAccountCmd `cmd:"" name:"service-account" help:"Configure a service account (Workspace only; domain-wide delegation)"`
}

type AuthCredentialsCmd struct {
	Set  AuthCredentialsSetCmd  `cmd:"" default:"withargs" help:"Store OAuth client credentials"`
	List AuthCredentialsListCmd `cmd:"" name:"list" help:"List stored OAuth client credentials"`
}

type AuthCredentialsSetCmd struct {
	Path string `arg:"" name:"credentials" help:"Path to credentials.json or '-' for stdin"`
}

func (c *AuthCredentialsSetCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	client, err := config.NormalizeClientName(authclient.ClientOverrideFromContext(ctx))
	if err != nil {
		return usage(err.Error())
	}

	var b []byte
	if c.Path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		var inPath string
		inPath, err = config.ExpandPath(c.Path)
		if err != nil {
			return err
		}
		b, err = os.ReadFile(inPath) //nolint:gosec // user-provided path
	}
	if err != nil {
		return err
	}

	creds, err := config.ParseGoogleOAuthClientJSON(b)
	if err != nil {
		return err
	}

	if err := dryRunExit(ctx, flags, "auth.credentials.set", map[string]any{"client": client}); err != nil {
		return err
	}

	outPath, err := config.WriteClientCredentialsFor(client, creds)
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"saved":  true,
			"path":   outPath,
			"client": client,
		})
	}
	u.Out().Printf("path\t%s", outPath)
	u.Out().Printf("client\t%s", client)
	return nil
}

type AuthCredentialsListCmd struct{}

type credentialsEntry struct {
	Client  string `json:"client"`
	Path    string `json:"path"`
	Default bool   `json:"default"`
}

func (c *AuthCredentialsListCmd) Run(ctx context.Context) error {
	u := ui.FromContext(ctx)

	entries, err := listClientCredentials()
	if err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"clients": entries})
	}
	if len(entries) == 0 {
		u.Err().Println("No OAuth client credentials stored")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Client, e.Path})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"CLIENT", "PATH"}, rows)
}

// listClientCredentials scans the config dir for credentials.json and
// credentials-<client>.json files.
func listClientCredentials() ([]credentialsEntry, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}

	matches, err := filepath.Glob(filepath.Join(dir, "credentials*.json"))
	if err != nil {
		return nil, err
	}

	entries := make([]credentialsEntry, 0, len(matches))
	for _, path := range matches {
		base := strings.TrimSuffix(filepath.Base(path), ".json")
		client := config.DefaultClientName
		if name, ok := strings.CutPrefix(base, "credentials-"); ok {
			client = name
		} else if base != "credentials" {
			continue
		}
		entries = append(entries, credentialsEntry{
			Client:  client,
			Path:    path,
			Default: client == config.DefaultClientName,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Client < entries[j].Client })
	return entries, nil
}

type AuthAddCmd struct {
	Email        string        `arg:"" name:"email" help:"Email"`
	Manual       bool          `name:"manual" help:"Browserless auth flow (paste redirect URL)"`
	Remote       bool          `name:"remote" help:"Remote/server-friendly manual flow (print URL, then exchange code)"`
	Step         int           `name:"step" help:"Remote auth step: 1=print URL, 2=exchange code"`
	AuthURL      string        `name:"auth-url" help:"Redirect URL from browser (required for --remote --step 2)"`
	Timeout      time.Duration `name:"timeout" help:"Authorization timeout (manual flows default to 5m)"`
	ForceConsent bool          `name:"force-consent" help:"Force consent screen to obtain a refresh token"`
	ServicesCSV  string        `name:"services" help:"Services to authorize: all or comma-separated ${auth_services}" default:"all"`
	MakeDefault  bool          `name:"default" help:"Make this the default account for the client"`
}

func (c *AuthAddCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	email := normalizeEmail(c.Email)
	if email == "" {
		return usage("empty email")
	}

	client, err := authclient.ResolveClient(ctx, email)
	if err != nil {
		return err
	}

	services, err := parseAuthServices(c.ServicesCSV)
	if err != nil {
		return err
	}

	scopes, err := googleauth.ScopesForServices(services)
	if err != nil {
		return err
	}

	authURL := strings.TrimSpace(c.AuthURL)
	if c.Step != 0 && c.Step != 1 && c.Step != 2 {
		return usage("step must be 1 or 2")
	}
	if c.Step != 0 && !c.Remote {
		return usage("--step requires --remote")
	}

	manual := c.Manual || c.Remote || authURL != ""

	if c.Remote {
		step := c.Step
		if step == 0 {
			step = 1
			if authURL != "" {
				step = 2
			}
		}
		switch step {
		case 1:
			if authURL != "" {
				return usage("remote step 1 does not accept --auth-url")
			}
			result, manualErr := manualAuthURL(ctx, googleauth.AuthorizeOptions{
				Scopes:       scopes,
				Client:       client,
				Manual:       true,
				ForceConsent: c.ForceConsent,
			})
			if manualErr != nil {
				return manualErr
			}
			if outfmt.IsJSON(ctx) {
				return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
					"auth_url":     result.URL,
					"state_reused": result.StateReused,
				})
			}
			u.Out().Printf("auth_url\t%s", result.URL)
			u.Out().Printf("state_reused\t%t", result.StateReused)
			u.Err().Println("Run again with --remote --step 2 --auth-url <redirect-url>")
			return nil
		case 2:
			if authURL == "" {
				return usage("remote step 2 requires --auth-url")
			}
		}
	}

	timeout := c.Timeout
	if timeout == 0 && manual {
		timeout = 5 * time.Minute
	}

	serviceNames := make([]string, 0, len(services))
	for _, svc := range services {
		serviceNames = append(serviceNames, string(svc))
	}
	sort.Strings(serviceNames)

	if err := dryRunExit(ctx, flags, "auth.add", map[string]any{
		"email":         email,
		"client":        client,
		"services":      serviceNames,
		"scopes":        scopes,
		"manual":        c.Manual,
		"remote":        c.Remote,
		"step":          c.Step,
		"force_consent": c.ForceConsent,
	}); err != nil {
		return err
	}

	store, err := openSecretsStore()
	if err != nil {
		return fmt.Errorf("open keyring: %w", err)
	}

	refreshToken, err := authorizeGoogle(ctx, googleauth.AuthorizeOptions{
		Scopes:       scopes,
		Client:       client,
		Manual:       manual,
		ForceConsent: c.ForceConsent,
		Timeout:      timeout,
		AuthURL:      authURL,
	})
	if err != nil {
		return err
	}

	authorizedEmail, err := fetchAuthorizedEmail(ctx, client, scopes, refreshToken)
	if err != nil {
		return fmt.Errorf("fetch authorized email: %w", err)
	}
	if normalizeEmail(authorizedEmail) != email {
		return fmt.Errorf("authorized as %s, expected %s", authorizedEmail, email)
	}

	if err := store.SetToken(client, email, secrets.Token{
		Client:       client,
		Email:        email,
		Services:     serviceNames,
		Scopes:       scopes,
		CreatedAt:    time.Now().UTC(),
		RefreshToken: refreshToken,
	}); err != nil {
		return err
	}

	isDefault := c.MakeDefault
	if !isDefault {
		current, _ := store.GetDefaultAccount(client)
		isDefault = strings.TrimSpace(current) == ""
	}
	if isDefault {
		if err := store.SetDefaultAccount(client, email); err != nil {
			return err
		}
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"stored":   true,
			"email":    email,
			"services": serviceNames,
			"client":   client,
			"default":  isDefault,
		})
	}
	u.Out().Printf("email\t%s", email)
	u.Out().Printf("services\t%s", strings.Join(serviceNames, ","))
	u.Out().Printf("client\t%s", client)
	u.Out().Printf("default\t%t", isDefault)
	return nil
}

type AuthServicesCmd struct{}

func (c *AuthServicesCmd) Run(ctx context.Context) error {
	type entry struct {
		Service string   `json:"service"`
		Scopes  []string `json:"scopes"`
	}

	services := googleauth.UserServices()
	entries := make([]entry, 0, len(services))
	for _, svc := range services {
		scopes, err := googleauth.Scopes(svc)
		if err != nil {
			return err
		}
		entries = append(entries, entry{Service: string(svc), Scopes: scopes})
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"services": entries})
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Service, strings.Join(e.Scopes, ",")})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"SERVICE", "SCOPES"}, rows)
}

type AuthListCmd struct{}

func (c *AuthListCmd) Run(ctx context.Context) error {
	u := ui.FromContext(ctx)

	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	tokens, err := store.ListTokens()
	if err != nil {
		return err
	}

	type entry struct {
		Email     string   `json:"email"`
		Client    string   `json:"client"`
		Services  []string `json:"services,omitempty"`
		CreatedAt string   `json:"created_at,omitempty"`
		Default   bool     `json:"default"`
	}

	defaults := map[string]string{}
	entries := make([]entry, 0, len(tokens))
	for _, tok := range tokens {
		def, ok := defaults[tok.Client]
		if !ok {
			def, _ = store.GetDefaultAccount(tok.Client)
			defaults[tok.Client] = def
		}
		created := ""
		if !tok.CreatedAt.IsZero() {
			created = tok.CreatedAt.UTC().Format(time.RFC3339)
		}
		entries = append(entries, entry{
			Email:     tok.Email,
			Client:    tok.Client,
			Services:  tok.Services,
			CreatedAt: created,
			Default:   normalizeEmail(def) == normalizeEmail(tok.Email),
		})
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{"accounts": entries})
	}
	if len(entries) == 0 {
		u.Err().Println("No stored accounts; run 'gdocs-mcp login <email>'")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		def := ""
		if e.Default {
			def = "*"
		}
		rows = append(rows, []string{e.Email, e.Client, strings.Join(e.Services, ","), e.CreatedAt, def})
	}
	return outfmt.WriteTable(ctx, os.Stdout, []string{"EMAIL", "CLIENT", "SERVICES", "CREATED", "DEFAULT"}, rows)
}

type AuthStatusCmd struct{}

func (c *AuthStatusCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	configPath, err := config.ConfigPath()
	if err != nil {
		return err
	}
	configExists := fileExists(configPath)

	backendInfo, err := secrets.ResolveKeyringBackendInfo()
	if err != nil {
		return err
	}

	var (
		account            string
		client             string
		credentialsPath    string
		credentialsExists  bool
		authPreferred      string
		serviceAccountPath string
	)

	if a, accErr := requireAccount(flags); accErr == nil {
		account = a
		client, err = resolveClientForEmail(account, flags)
		if err != nil {
			return err
		}
		if p, pathErr := config.ClientCredentialsPath(client); pathErr == nil {
			credentialsPath = p
			credentialsExists = fileExists(p)
		}
		authPreferred = authTypeOAuth
		if p, pathErr := config.ServiceAccountPath(account); pathErr == nil && fileExists(p) {
			serviceAccountPath = p
			authPreferred = authTypeServiceAccount
		}
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"config": map[string]any{
				"path":   configPath,
				"exists": configExists,
			},
			"keyring": map[string]any{
				"backend": backendInfo.Value,
				"source":  backendInfo.Source,
			},
			"account": map[string]any{
				"email":                account,
				"client":               client,
				"credentials_path":     credentialsPath,
				"credentials_exists":   credentialsExists,
				"auth_preferred":       authPreferred,
				"service_account_path": serviceAccountPath,
			},
		})
	}

	u.Out().Printf("config_path\t%s", configPath)
	u.Out().Printf("config_exists\t%t", configExists)
	u.Out().Printf("keyring_backend\t%s", backendInfo.Value)
	u.Out().Printf("keyring_backend_source\t%s", backendInfo.Source)
	if account == "" {
		u.Err().Println("No account resolved; run 'gdocs-mcp login <email>'")
		return nil
	}
	u.Out().Printf("account\t%s", account)
	u.Out().Printf("client\t%s", client)
	u.Out().Printf("credentials_path\t%s", credentialsPath)
	u.Out().Printf("credentials_exists\t%t", credentialsExists)
	u.Out().Printf("auth_preferred\t%s", authPreferred)
	if serviceAccountPath != "" {
		u.Out().Printf("service_account_path\t%s", serviceAccountPath)
	}
	return nil
}

type AuthRemoveCmd struct {
	Email string `arg:"" name:"email" help:"Email"`
}

func (c *AuthRemoveCmd) Run(ctx context.Context, flags *RootFlags) error {
	u := ui.FromContext(ctx)

	email := normalizeEmail(c.Email)
	if email == "" {
		return usage("empty email")
	}

	if err := confirmDestructive(ctx, flags, fmt.Sprintf("remove stored token for %s", email)); err != nil {
		return err
	}

	client, err := resolveClientForEmail(email, flags)
	if err != nil {
		return err
	}

	store, err := openSecretsStore()
	if err != nil {
		return err
	}
	if err := store.DeleteToken(client, email); err != nil {
		return err
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(ctx, os.Stdout, map[string]any{
			"deleted": true,
			"email":   email,
			"client":  client,
		})
	}
	u.Out().Printf("deleted\ttrue")
	u.Out().Printf("email\t%s", email)
	u.Out().Printf("client\t%s", client)
	return nil
}

var errNoServices = errors.New("no services selected")

func parseAuthServices(servicesCSV string) ([]googleauth.Service, error) {
	trimmed := strings.ToLower(strings.TrimSpace(servicesCSV))
	if trimmed == "user" {
		trimmed = "all"
	}

	services, err := googleauth.ParseServices(trimmed)
	if err != nil {
		return nil, usage(err.Error())
	}
	if len(services) == 0 {
		return nil, usage(errNoServices.Error())
	}
	return services, nil
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
