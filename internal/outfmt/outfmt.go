// Package outfmt carries the CLI output mode through a context and writes
// JSON or tab-separated output.
package outfmt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

type Mode struct {
	JSON  bool
	Plain bool
}

var errConflictingModes = errors.New("invalid output mode (cannot combine --json and --plain)")

func FromFlags(jsonOut bool, plainOut bool) (Mode, error) {
	if jsonOut && plainOut {
		return Mode{}, errConflictingModes
	}

	return Mode{JSON: jsonOut, Plain: plainOut}, nil
}

// FromEnv reads GDOCS_MCP_JSON and GDOCS_MCP_PLAIN.
func FromEnv() Mode {
	return Mode{
		JSON:  envBool("GDOCS_MCP_JSON"),
		Plain: envBool("GDOCS_MCP_PLAIN"),
	}
}

type ctxKey struct{}

func WithMode(ctx context.Context, mode Mode) context.Context {
	return context.WithValue(ctx, ctxKey{}, mode)
}

func FromContext(ctx context.Context) Mode {
	m, _ := ctx.Value(ctxKey{}).(Mode)
	return m
}

func IsJSON(ctx context.Context) bool  { return FromContext(ctx).JSON }
func IsPlain(ctx context.Context) bool { return FromContext(ctx).Plain }

type selectKey struct{}

// WithSelect projects JSON output to the given dot paths.
func WithSelect(ctx context.Context, fields []string) context.Context {
	return context.WithValue(ctx, selectKey{}, fields)
}

func WriteJSON(ctx context.Context, w io.Writer, v any) error {
	if fields, _ := ctx.Value(selectKey{}).([]string); len(fields) > 0 {
		projected, err := project(v, fields)
		if err != nil {
			return fmt.Errorf("select fields: %w", err)
		}

		v = projected
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// WriteTable writes tab-separated rows. Plain mode skips the header and
// alignment so the output stays machine-readable.
func WriteTable(ctx context.Context, w io.Writer, header []string, rows [][]string) error {
	if IsPlain(ctx) {
		for _, r := range rows {
			if _, err := fmt.Fprintln(w, strings.Join(r, "\t")); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}

		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(header) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	}

	for _, r := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(r, "\t"))
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

func project(v any, fields []string) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}

	if list, ok := generic.([]any); ok {
		out := make([]any, 0, len(list))
		for _, it := range list {
			out = append(out, projectItem(it, fields))
		}

		return out, nil
	}

	return projectItem(generic, fields), nil
}

func projectItem(v any, fields []string) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if val, ok := getAtPath(m, f); ok {
			out[f] = val
		}
	}

	return out
}

func getAtPath(v any, path string) (any, bool) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false
	}

	cur := v

	for seg := range strings.SplitSeq(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				return nil, false
			}

			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, false
			}

			cur = c[i]
		default:
			return nil, false
		}
	}

	return cur, true
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	}

	return false
}
