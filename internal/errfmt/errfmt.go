// Package errfmt renders errors for humans on stderr.
package errfmt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	gapi "google.golang.org/api/googleapi"

	"github.com/steipete/gdocs-mcp/internal/config"
	"github.com/steipete/gdocs-mcp/internal/googleapi"
)

// UserFacingError replaces the message of Cause with a hint written for the
// person running the command.
type UserFacingError struct {
	Message string
	Cause   error
}

func (e *UserFacingError) Error() string { return e.Message }
func (e *UserFacingError) Unwrap() error { return e.Cause }

func NewUserFacingError(message string, cause error) error {
	return &UserFacingError{Message: message, Cause: cause}
}

func Format(err error) string {
	if err == nil {
		return ""
	}

	var ufe *UserFacingError
	if errors.As(err, &ufe) {
		return ufe.Message
	}

	var pe *kong.ParseError
	if errors.As(err, &pe) {
		return fmt.Sprintf("%v (run with --help for usage)", pe)
	}

	var are *googleapi.AuthRequiredError
	if errors.As(err, &are) {
		return are.Error()
	}

	var cme *config.CredentialsMissingError
	if errors.As(err, &cme) {
		return cme.Error()
	}

	var ge *gapi.Error
	if errors.As(err, &ge) {
		return formatGoogleError(err, ge)
	}

	return err.Error()
}

func formatGoogleError(err error, ge *gapi.Error) string {
	msg := strings.TrimSpace(ge.Message)
	if msg == "" {
		return err.Error()
	}

	reasons := make([]string, 0, len(ge.Errors))
	for _, it := range ge.Errors {
		if it.Reason != "" {
			reasons = append(reasons, it.Reason)
		}
	}

	out := fmt.Sprintf("Google API error (%d): %s", ge.Code, msg)
	if len(reasons) > 0 {
		out += " [" + strings.Join(reasons, ", ") + "]"
	}

	switch ge.Code {
	case 401:
		out += "\nhint: the stored token may be revoked; run: gdocs-mcp auth add <email> --force-consent"
	case 403:
		out += "\nhint: check that the account can edit the document and that the Docs and Drive APIs are enabled for the OAuth client"
	}

	return out
}
