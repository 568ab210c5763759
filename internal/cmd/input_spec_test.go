package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/steipete/gdocs-mcp/internal/docsedit"
)

const opsPayload = `{"operations":[
  {"type":"insert_text","text":"Hi","index":1},
  {"type":"replace_all_text","find_text":"draft","replace_text":"final"},
  {"type":"merge_table_cells","table_start_index":4,"column_span":2}
]}`

func decodeOps(t *testing.T, raw []byte) []docsedit.Operation {
	t.Helper()

	inputs, err := docsedit.DecodeOperations(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ops, err := docsedit.ParseOperations(inputs, "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return ops
}

func TestResolveOps_Inline(t *testing.T) {
	got, err := resolveInlineOrFileBytes(`  [{"type":"insert_page_break","index":3}] `)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	ops := decodeOps(t, got)
	if len(ops) != 1 || ops[0].(docsedit.InsertPageBreak).Index != 3 {
		t.Fatalf("unexpected ops: %#v", ops)
	}
}

func TestResolveOps_WrappedFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "ops.json")
	if err := os.WriteFile(p, []byte(opsPayload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := resolveInlineOrFileBytes("@" + p)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	ops := decodeOps(t, got)
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	if got := docsedit.Summary(ops); got != "1 insert_text, 1 replace_all_text, 1 merge_table_cells" {
		t.Fatalf("summary: %q", got)
	}
	if m := ops[2].(docsedit.MergeTableCells); m.Cell.TableStart != 4 || m.RowSpan != 1 || m.ColumnSpan != 2 {
		t.Fatalf("merge: %+v", m)
	}
}

func TestResolveOps_HomeRelativeFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if err := os.WriteFile(filepath.Join(home, "ops.json"), []byte(opsPayload), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := resolveInlineOrFileBytes("@~/ops.json")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(decodeOps(t, got)) != 3 {
		t.Fatalf("unexpected payload: %q", got)
	}
}

func TestResolveOps_Stdin(t *testing.T) {
	for _, spec := range []string{"-", "@-"} {
		withStdin(t, opsPayload, func() {
			got, err := resolveInlineOrFileBytes(spec)
			if err != nil {
				t.Fatalf("%s: resolve: %v", spec, err)
			}
			if ops := decodeOps(t, got); len(ops) != 3 {
				t.Fatalf("%s: expected 3 ops, got %d", spec, len(ops))
			}
		})
	}
}

func TestResolveOps_Errors(t *testing.T) {
	if _, err := resolveInlineOrFileBytes("@ "); err == nil {
		t.Fatal("expected error for empty @file reference")
	}
	if _, err := resolveInlineOrFileBytes("@" + filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}

	got, err := resolveInlineOrFileBytes("   ")
	if err != nil || got != nil {
		t.Fatalf("blank spec: got %q, %v", got, err)
	}
	if _, err := docsedit.DecodeOperations(bytes.NewReader(got)); !docsedit.IsValidation(err) {
		t.Fatalf("blank payload: expected ValidationError, got %v", err)
	}
}
