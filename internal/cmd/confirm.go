package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/steipete/gdocs-mcp/internal/input"
)

var promptLine = input.PromptLine

// confirmDestructive asks before action runs. --dry-run reports the action and
// exits, --force skips the prompt and --no-input turns it into a usage error.
func confirmDestructive(ctx context.Context, flags *RootFlags, action string) error {
	if err := dryRunExit(ctx, flags, action, nil); err != nil {
		return err
	}

	if flags != nil && flags.Force {
		return nil
	}

	if flags != nil && flags.NoInput {
		return usage(fmt.Sprintf("refusing to %s without --force (non-interactive)", action))
	}

	answer, err := promptLine(ctx, fmt.Sprintf("Proceed to %s? [y/N]: ", action))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &ExitError{Code: 1, Err: errors.New("cancelled")}
		}
		return err
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return nil
	default:
		return &ExitError{Code: 1, Err: errors.New("cancelled")}
	}
}
