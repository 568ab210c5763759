package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/99designs/keyring"
	ggoogleapi "google.golang.org/api/googleapi"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/docsedit"
	gdapi "github.com/steipete/gdocs-mcp/internal/googleapi"
	"github.com/steipete/gdocs-mcp/internal/outfmt"
)

const (
	// Exit code 0 is success.
	// Exit code 1 is generic failure.

	exitCodeUsage            = 2
	exitCodeAuthRequired     = 4
	exitCodeNotFound         = 5
	exitCodePermissionDenied = 6
	exitCodeRateLimited      = 7
	exitCodeRetryable        = 8
	exitCodeConfig           = 10

	// 130 is the conventional "interrupted" exit code (SIGINT / Ctrl-C).
	exitCodeCancelled = 130
)

// ExitError carries the process exit status for err. A nil Err with Code 0
// marks a deliberate early success (dry runs).
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps err to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return 1
}

// stableExitCode wraps common/expected failure modes in ExitError so callers can
// branch on exit status without needing to parse human-oriented stderr.
func stableExitCode(err error) error {
	if err == nil {
		return nil
	}

	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return &ExitError{Code: exitCodeCancelled, Err: err}
	}

	if docsedit.IsValidation(err) {
		return &ExitError{Code: exitCodeUsage, Err: err}
	}

	if docsedit.IsNotFound(err) {
		return &ExitError{Code: exitCodeNotFound, Err: err}
	}

	var authErr *gdapi.AuthRequiredError
	if errors.As(err, &authErr) {
		return &ExitError{Code: exitCodeAuthRequired, Err: err}
	}

	var credErr *config.CredentialsMissingError
	if errors.As(err, &credErr) {
		return &ExitError{Code: exitCodeConfig, Err: err}
	}

	if errors.Is(err, keyring.ErrKeyNotFound) {
		return &ExitError{Code: exitCodeAuthRequired, Err: err}
	}

	var gerr *ggoogleapi.Error
	if errors.As(err, &gerr) {
		if code := googleAPIExitCode(gerr); code != 1 {
			return &ExitError{Code: code, Err: err}
		}
	}

	var cbErr *gdapi.CircuitBreakerError
	if errors.As(err, &cbErr) {
		return &ExitError{Code: exitCodeRetryable, Err: err}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &ExitError{Code: exitCodeRetryable, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ExitError{Code: exitCodeRetryable, Err: err}
	}

	return err
}

func googleAPIExitCode(err *ggoogleapi.Error) int {
	if err == nil {
		return 1
	}

	reason := ""
	if len(err.Errors) > 0 {
		reason = strings.TrimSpace(strings.ToLower(err.Errors[0].Reason))
	}

	switch err.Code {
	case 401:
		return exitCodeAuthRequired
	case 403:
		if isQuotaOrRateLimitReason(reason) {
			return exitCodeRateLimited
		}
		return exitCodePermissionDenied
	case 404:
		return exitCodeNotFound
	case 429:
		return exitCodeRateLimited
	default:
		if err.Code >= 500 {
			return exitCodeRetryable
		}
	}

	return 1
}

func isQuotaOrRateLimitReason(reason string) bool {
	switch strings.TrimSpace(strings.ToLower(reason)) {
	case "ratelimitexceeded",
		"userratelimitexceeded",
		"quotaexceeded",
		"dailylimitexceeded",
		"resourceexhausted":
		return true
	default:
		return false
	}
}

type ExitCodesCmd struct{}

func (c *ExitCodesCmd) Run(ctx context.Context) error {
	codes := map[string]int{
		"ok":                0,
		"error":             1,
		"usage":             exitCodeUsage,
		"auth_required":     exitCodeAuthRequired,
		"not_found":         exitCodeNotFound,
		"permission_denied": exitCodePermissionDenied,
		"rate_limited":      exitCodeRateLimited,
		"retryable":         exitCodeRetryable,
		"config":            exitCodeConfig,
		"cancelled":         exitCodeCancelled,
	}

	if outfmt.IsJSON(ctx) {
		return outfmt.WriteJSON(outfmt.WithSelect(ctx, nil), os.Stdout, map[string]any{"exit_codes": codes})
	}

	keys := make([]string, 0, len(codes))
	for k := range codes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return codes[keys[i]] < codes[keys[j]] })

	sep := ": "
	if outfmt.IsPlain(ctx) {
		sep = "\t"
	}
	for _, k := range keys {
		_, _ = os.Stdout.WriteString(k + sep + strconv.Itoa(codes[k]) + "\n")
	}
	return nil
}
