package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/steipete/gdocs-mcp/internal/config"
)

// resolveInlineOrFileBytes reads flags that take JSON, such as --ops, without
// forcing callers to shell-escape it.
//
// Supported forms:
//   - literal: '{"a":1}'
//   - stdin:   '-'
//   - file:    '@path/to/file.json'
//   - stdin:   '@-'
func resolveInlineOrFileBytes(spec string) ([]byte, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	readStdin := func() ([]byte, error) {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, err
		}
		return b, nil
	}

	switch {
	case spec == "-":
		return readStdin()
	case strings.HasPrefix(spec, "@"):
		path := strings.TrimSpace(strings.TrimPrefix(spec, "@"))
		if path == "" {
			return nil, fmt.Errorf("empty @file reference")
		}
		if path == "-" {
			return readStdin()
		}
		path, err := config.ExpandPath(path)
		if err != nil {
			return nil, err
		}
		b, err := os.ReadFile(path) //nolint:gosec // user-provided path
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return []byte(spec), nil
	}
}
