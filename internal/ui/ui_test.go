package ui

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNew_NeverColor(t *testing.T) {
	var out, errOut bytes.Buffer

	u, err := New(Options{Stdout: &out, Stderr: &errOut, Color: "never"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u.Out().Successf("applied %d requests", 3)
	u.Err().Error("boom")

	if out.String() != "applied 3 requests\n" || errOut.String() != "boom\n" {
		t.Fatalf("unexpected output: %q %q", out.String(), errOut.String())
	}

	if u.Out().Dim("id") != "id" {
		t.Fatalf("expected no styling")
	}
}

func TestNew_AlwaysColor(t *testing.T) {
	var out bytes.Buffer

	u, err := New(Options{Stdout: &out, Stderr: &out, Color: "always"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	u.Out().Successf("ok")

	if !strings.Contains(out.String(), "\x1b[") {
		t.Fatalf("expected ANSI escape, got %q", out.String())
	}
}

func TestNew_InvalidColor(t *testing.T) {
	if _, err := New(Options{Color: "rainbow"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestContext(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected nil UI")
	}

	u, _ := New(Options{Color: "never"})
	if FromContext(WithUI(context.Background(), u)) != u {
		t.Fatalf("expected UI from context")
	}
}
