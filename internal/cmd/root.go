package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/steipete/gdocs-mcp/internal/authclient"
	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/errfmt"
	"github.com/steipete/gdocs-mcp/internal/googleauth"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
	"github.com/steipete/gdocs-mcp/internal/secrets"
	"github.com/steipete/gdocs-mcp/internal/ui"
)

const (
	colorNever = "never"
	strTrue    = "true"
)

type RootFlags struct {
	Color   string `help:"Color output: auto|always|never" default:"${color}"`
	Account string `help:"Google account email used for Docs and Drive calls" aliases:"acct" short:"a" default:"${account}"`
	Client  string `help:"OAuth client name (selects stored credentials + token bucket)" default:"${client}"`
	JSON    bool   `help:"Output JSON to stdout (best for scripting)" default:"${json}" aliases:"machine" short:"j"`
	Plain   bool   `help:"Output stable, parseable text to stdout (TSV; no colors)" default:"${plain}" aliases:"tsv" short:"p"`
	Select  string `name:"select" aliases:"pick" help:"In JSON mode, select comma-separated fields"`
	DryRun  bool   `help:"Do not make changes; print intended actions and exit successfully" aliases:"noop,preview" short:"n"`
	Force   bool   `help:"Skip confirmations for destructive commands" aliases:"yes" short:"y"`
	NoInput bool   `help:"Never prompt; fail instead (useful for CI)" aliases:"non-interactive"`
	Verbose bool   `help:"Enable verbose logging" short:"v"`
}

type CLI struct {
	RootFlags `embed:""`

	Version kong.VersionFlag `help:"Print version and exit"`

	Serve ServeCmd `cmd:"" help:"Run the MCP server (stdio by default)"`

	Login  AuthAddCmd    `cmd:"" name:"login" help:"Authorize and store a refresh token (alias for 'auth add')"`
	Logout AuthRemoveCmd `cmd:"" name:"logout" help:"Remove a stored refresh token (alias for 'auth remove')"`
	Status AuthStatusCmd `cmd:"" name:"status" aliases:"st" help:"Show auth/config status (alias for 'auth status')"`

	Auth       AuthCmd      `cmd:"" help:"Auth and credentials"`
	Docs       DocsCmd      `cmd:"" aliases:"doc" help:"Read and edit Google Docs from the command line"`
	Tools      ToolsCmd     `cmd:"" help:"Describe the MCP tools the server exposes"`
	Config     ConfigCmd    `cmd:"" help:"Manage configuration"`
	ExitCodes  ExitCodesCmd `cmd:"" name:"exit-codes" aliases:"exitcodes" help:"Print stable exit codes"`
	VersionCmd VersionCmd   `cmd:"" name:"version" help:"Print version"`
}

type exitPanic struct{ code int }

func Execute(args []string) (err error) {
	if err := config.LoadDotEnv(""); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, errfmt.Format(err))
		return &ExitError{Code: exitCodeConfig, Err: err}
	}

	parser, cli, err := newParser(helpDescription())
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
		parsedErr := wrapParseError(err)
		_, _ = fmt.Fprintln(os.Stderr, errfmt.Format(parsedErr))
		return parsedErr
	}

	// Logs always go to stderr: in stdio mode stdout carries the protocol.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cli.Verbose, os.Getenv(config.EnvLogLevel)),
	})))

	// Opt-in agent mode: default to JSON when stdout is not a terminal.
	if envBool("GDOCS_MCP_AUTO_JSON") && !cli.JSON && !cli.Plain && !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		cli.JSON = true
	}

	mode, err := outfmt.FromFlags(cli.JSON, cli.Plain)
	if err != nil {
		return newUsageError(err)
	}

	ctx := context.Background()
	ctx = outfmt.WithMode(ctx, mode)
	ctx = outfmt.WithSelect(ctx, splitCommaList(cli.Select))
	ctx = authclient.WithClient(ctx, cli.Client)

	uiColor := cli.Color
	if outfmt.IsJSON(ctx) || outfmt.IsPlain(ctx) {
		uiColor = colorNever
	}

	u, err := ui.New(ui.Options{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Color:  uiColor,
	})
	if err != nil {
		return newUsageError(err)
	}
	ctx = ui.WithUI(ctx, u)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(&cli.RootFlags)

	err = kctx.Run()
	if err == nil {
		return nil
	}
	// Some commands intentionally exit early with success.
	if ExitCode(err) == 0 {
		return nil
	}
	err = stableExitCode(err)

	if msg := strings.TrimSpace(errfmt.Format(err)); msg != "" {
		u.Err().Error(msg)
	}
	return err
}

// logLevel picks debug for --verbose, then GDOCS_MCP_LOG_LEVEL, then warn.
func logLevel(verbose bool, env string) slog.Level {
	if verbose {
		return slog.LevelDebug
	}

	var lvl slog.Level
	if env = strings.TrimSpace(env); env != "" && lvl.UnmarshalText([]byte(env)) == nil {
		return lvl
	}

	return slog.LevelWarn
}

func wrapParseError(err error) error {
	if err == nil {
		return nil
	}
	var parseErr *kong.ParseError
	if errors.As(err, &parseErr) {
		return &ExitError{Code: exitCodeUsage, Err: parseErr}
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch v {
	case "1", strTrue, "yes", "y", "on":
		return true
	default:
		return false
	}
}

func boolString(v bool) string {
	return strconv.FormatBool(v)
}

func newParser(description string) (*kong.Kong, *CLI, error) {
	envMode := outfmt.FromEnv()
	vars := kong.Vars{
		"auth_services": googleauth.UserServiceCSV(),
		"account":       envOr(config.EnvAccount, ""),
		"color":         envOr("GDOCS_MCP_COLOR", "auto"),
		"client":        envOr(config.EnvClient, ""),
		"json":          boolString(envMode.JSON),
		"plain":         boolString(envMode.Plain),
		"version":       VersionString(),
	}

	cli := &CLI{}
	parser, err := kong.New(
		cli,
		kong.Name(config.AppName),
		kong.Description(description),
		kong.Vars(vars),
		kong.Writers(os.Stdout, os.Stderr),
		kong.Exit(func(code int) { panic(exitPanic{code: code}) }),
	)
	if err != nil {
		return nil, nil, err
	}
	return parser, cli, nil
}

func helpDescription() string {
	desc := "MCP server and CLI for batched Google Docs editing, comments and Drive files"

	configPath, err := config.ConfigPath()
	configLine := "unknown"
	if err != nil {
		configLine = fmt.Sprintf("error: %v", err)
	} else if configPath != "" {
		configLine = configPath
	}

	backendInfo, err := secrets.ResolveKeyringBackendInfo()
	var backendLine string
	if err != nil {
		backendLine = fmt.Sprintf("error: %v", err)
	} else if backendInfo.Value != "" {
		backendLine = fmt.Sprintf("%s (source: %s)", backendInfo.Value, backendInfo.Source)
	}

	return fmt.Sprintf("%s\n\nConfig:\n  file: %s\n  keyring backend: %s", desc, configLine, backendLine)
}

// newUsageError wraps errors in a way main() can map to exit code 2.
func newUsageError(err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: exitCodeUsage, Err: err}
}

func usage(msg string) error {
	return newUsageError(errors.New(msg))
}

func splitCommaList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\t' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
