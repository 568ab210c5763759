package cmd

import (
	"strings"
	"testing"
)

func TestAutoJSON_Version_DefaultsToJSONWhenEnabled(t *testing.T) {
	isolateConfig(t)
	t.Setenv("GDOCS_MCP_AUTO_JSON", "1")

	out := captureStdout(t, func() {
		_ = captureStderr(t, func() {
			if err := Execute([]string{"version"}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
		})
	})

	if !strings.HasPrefix(strings.TrimSpace(out), "{") || !strings.Contains(out, `"version"`) {
		t.Fatalf("expected json output, got: %q", out)
	}
}

func TestAutoJSON_Version_RespectsExplicitPlainFlag(t *testing.T) {
	isolateConfig(t)
	t.Setenv("GDOCS_MCP_AUTO_JSON", "1")

	out := captureStdout(t, func() {
		_ = captureStderr(t, func() {
			if err := Execute([]string{"--plain", "version"}); err != nil {
				t.Fatalf("Execute: %v", err)
			}
		})
	})

	if strings.Contains(out, `"version"`) || !strings.HasPrefix(out, "0.") {
		t.Fatalf("expected text output (not json), got: %q", out)
	}
}
