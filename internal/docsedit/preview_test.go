package docsedit

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"google.golang.org/api/docs/v1"
)

func TestPreviewRequests_InsertThenDelete(t *testing.T) {
	snap := NewSnapshot(conclusionDoc())
	reqs, err := Translate([]Operation{
		InsertText{Text: "Hello ", Index: 1},
		DeleteRange{Start: 7, End: 17},
	}, snap)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	p, err := PreviewRequests(snap, "", reqs)
	if err != nil {
		t.Fatalf("PreviewRequests: %v", err)
	}

	if !strings.HasPrefix(p.Before, "Intro\nConclusion one.\n") {
		t.Fatalf("unexpected before text %q", p.Before)
	}
	if !strings.HasPrefix(p.After, "Hello Intro\n one.\n") {
		t.Fatalf("unexpected after text %q", p.After)
	}
	want := []TextChange{{Op: "insert", Text: "Hello "}, {Op: "delete", Text: "Conclusion"}}
	if !reflect.DeepEqual(p.Changes, want) {
		t.Fatalf("changes: got %+v want %+v", p.Changes, want)
	}
	if got := p.Render(5); got != "{+Hello +}Intro\n[-Conclusion-] one.…" {
		t.Fatalf("render: %q", got)
	}
}

func TestPreviewRequests_KeepsIndicesAcrossStructure(t *testing.T) {
	snap := NewSnapshot(conclusionDoc())

	// The table occupies [23,26) before its cell text; "two" sits at [37,40).
	reqs, err := Translate([]Operation{
		InsertText{Text: "😀", Index: 1},
		DeleteRange{Start: 37, End: 40},
		ApplyTextStyle{Target: ExplicitRange{Start: 1, End: 3}, Style: TextStyle{Bold: Some(true)}},
		InsertPageBreak{Index: 43},
	}, snap)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	p, err := PreviewRequests(snap, "", reqs)
	if err != nil {
		t.Fatalf("PreviewRequests: %v", err)
	}
	if !strings.HasPrefix(p.After, "😀Intro\n") {
		t.Fatalf("unexpected after %q", p.After)
	}
	if !strings.Contains(p.After, "Conclusion .\n·"+pageBreakGlyph+"\nConclusion three") {
		t.Fatalf("unexpected after %q", p.After)
	}
	if utf16Len(p.After) != utf16Len(p.Before)+2-3+2 {
		t.Fatalf("length mismatch: before %d after %d", utf16Len(p.Before), utf16Len(p.After))
	}
}

func TestPreviewRequests_IgnoresOtherTabs(t *testing.T) {
	snap := NewSnapshot(&docs.Document{Tabs: []*docs.Tab{
		{TabProperties: &docs.TabProperties{TabId: "t.0", Title: "One"}, DocumentTab: &docs.DocumentTab{Body: &docs.Body{Content: []*docs.StructuralElement{para(1, "a\n")}}}},
		{TabProperties: &docs.TabProperties{TabId: "t.1", Title: "Two"}, DocumentTab: &docs.DocumentTab{Body: &docs.Body{Content: []*docs.StructuralElement{para(1, "b\n")}}}},
	}})
	reqs := []*docs.Request{
		{InsertText: &docs.InsertTextRequest{Text: "x", Location: &docs.Location{Index: 1, TabId: "t.1"}}},
		{InsertTable: &docs.InsertTableRequest{Rows: 1, Columns: 1, Location: &docs.Location{Index: 1, TabId: "t.0"}}},
	}

	p, err := PreviewRequests(snap, "two", reqs)
	if err != nil {
		t.Fatalf("PreviewRequests: %v", err)
	}
	if p.TabID != "t.1" || p.After != "xb\n" {
		t.Fatalf("unexpected preview %+v", p)
	}

	if _, err := PreviewRequests(snap, "missing", reqs); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if got := (Preview{Before: "a", After: "a"}).Render(3); got != "(no text changes)" {
		t.Fatalf("render: %q", got)
	}
}

func TestPreviewRequests_SectionBreakAndReplaceAll(t *testing.T) {
	snap := NewSnapshot(conclusionDoc())
	reqs, err := Translate([]Operation{
		InsertSectionBreak{Index: 7},
		ReplaceAllText{Find: "conclusion", Replace: "End"},
		ReplaceAllText{Find: "intro", Replace: "Nope", MatchCase: true},
	}, snap)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}

	p, err := PreviewRequests(snap, "", reqs)
	if err != nil {
		t.Fatalf("PreviewRequests: %v", err)
	}

	if !strings.HasPrefix(p.After, "Intro\n\n"+structuralGlyph+"End one.\n") {
		t.Fatalf("unexpected after text %q", p.After)
	}
	if strings.Count(p.After, "End") != 3 || strings.Contains(p.After, "Conclusion") || strings.Contains(p.After, "Nope") {
		t.Fatalf("replacements not applied: %q", p.After)
	}
}

func TestEnginePreview_DoesNotSubmit(t *testing.T) {
	svc := &fakeService{doc: conclusionDoc()}
	e := NewEngine(svc)

	reqs, p, err := e.Preview(context.Background(), "doc1", "", []Operation{
		ApplyTextStyle{Target: TextSearch{Text: "Conclusion", Instance: 2}, Style: TextStyle{Italic: Some(true)}},
		InsertText{Text: "!", Index: 59},
	})
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(reqs) != 2 || svc.calls() != 0 {
		t.Fatalf("expected 2 requests and no batch, got %d / %d", len(reqs), svc.calls())
	}
	if len(p.Changes) != 1 || p.Changes[0] != (TextChange{Op: "insert", Text: "!"}) {
		t.Fatalf("unexpected changes %+v", p.Changes)
	}
}
