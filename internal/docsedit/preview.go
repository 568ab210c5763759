package docsedit

import (
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/sergi/go-diff/diffmatchpatch"
	"google.golang.org/api/docs/v1"
)

// Placeholders stand in for content that has no text of its own so that
// document indices line up in the simulated body.
const (
	structuralGlyph = "·"
	objectGlyph     = "￼"
	pageBreakGlyph  = "↡"
)

// TextChange is one edit in a Preview, in document order.
type TextChange struct {
	Op   string `json:"op"`
	Text string `json:"text"`
}

// Preview is the expected plain-text effect of a batch on one tab.
type Preview struct {
	TabID   string       `json:"tab_id,omitempty"`
	Before  string       `json:"-"`
	After   string       `json:"-"`
	Changes []TextChange `json:"changes"`
}

// PreviewRequests simulates reqs against the tab body and diffs the result.
// Only length-changing requests affect the text; styles, bullets and named
// ranges leave it as is. Requests aimed at other tabs are skipped.
func PreviewRequests(snap *Snapshot, tabID string, reqs []*docs.Request) (Preview, error) {
	tab, err := snap.Tab(tabID)
	if err != nil {
		return Preview{}, err
	}
	body := newUnitBuffer(tab)
	before := body.String()
	for _, req := range reqs {
		body.apply(req, tab.ID)
	}
	after := body.String()

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(before, after, false))
	p := Preview{TabID: tab.ID, Before: before, After: after, Changes: []TextChange{}}
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			p.Changes = append(p.Changes, TextChange{Op: "insert", Text: d.Text})
		case diffmatchpatch.DiffDelete:
			p.Changes = append(p.Changes, TextChange{Op: "delete", Text: d.Text})
		}
	}
	return p, nil
}

// Render prints the diff inline: deletions as [-text-], insertions as
// {+text+}, unchanged runs shortened to contextChars characters on each side.
func (p Preview) Render(contextChars int) string {
	if p.Before == p.After {
		return "(no text changes)"
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffCleanupSemantic(dmp.DiffMain(p.Before, p.After, false))
	var b strings.Builder
	for i, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			b.WriteString("{+" + d.Text + "+}")
		case diffmatchpatch.DiffDelete:
			b.WriteString("[-" + d.Text + "-]")
		default:
			b.WriteString(elide(d.Text, contextChars, i > 0, i < len(diffs)-1))
		}
	}
	return b.String()
}

func elide(s string, n int, keepHead, keepTail bool) string {
	r := []rune(s)
	if n < 0 || len(r) <= 2*n {
		return s
	}
	var head, tail string
	if keepHead {
		head = string(r[:n])
	}
	if keepTail {
		tail = string(r[len(r)-n:])
	}
	return head + "…" + tail
}

// unitBuffer holds one string per UTF-16 code unit, indexed by document
// position. The second unit of a surrogate pair is an empty string.
type unitBuffer struct {
	units []string
}

func newUnitBuffer(tab *TabContent) *unitBuffer {
	n := max(tab.EndIndex, 1)
	b := &unitBuffer{units: make([]string, n)}
	for i := range b.units {
		b.units[i] = structuralGlyph
	}
	b.units[0] = ""
	for _, seg := range tab.Segments {
		pos := seg.Start
		for _, r := range seg.Text {
			for _, u := range toUnits(r) {
				if pos >= 0 && pos < int64(len(b.units)) {
					b.units[pos] = u
				}
				pos++
			}
		}
	}
	return b
}

func toUnits(r rune) []string {
	if utf16.RuneLen(r) == 2 {
		return []string{string(r), ""}
	}
	return []string{string(r)}
}

func textUnits(s string) []string {
	var out []string
	for _, r := range s {
		out = append(out, toUnits(r)...)
	}
	return out
}

func (b *unitBuffer) String() string {
	return strings.Join(b.units, "")
}

func (b *unitBuffer) insert(at int64, units []string) {
	at = min(max(at, 1), int64(len(b.units)))
	tail := append([]string(nil), b.units[at:]...)
	b.units = append(append(b.units[:at], units...), tail...)
}

func (b *unitBuffer) remove(start, end int64) {
	start = min(max(start, 1), int64(len(b.units)))
	end = min(max(end, start), int64(len(b.units)))
	b.units = append(b.units[:start], b.units[end:]...)
}

func repeatUnits(glyph string, n int64) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = glyph
	}
	return out
}

func (b *unitBuffer) apply(req *docs.Request, tabID string) {
	at := func(loc *docs.Location) (int64, bool) {
		if loc == nil || (loc.TabId != "" && loc.TabId != tabID) {
			return 0, false
		}
		return loc.Index, true
	}
	switch {
	case req.InsertText != nil:
		if i, ok := at(req.InsertText.Location); ok {
			b.insert(i, textUnits(req.InsertText.Text))
		}
	case req.DeleteContentRange != nil:
		r := req.DeleteContentRange.Range
		if r != nil && (r.TabId == "" || r.TabId == tabID) {
			b.remove(r.StartIndex, r.EndIndex)
		}
	case req.InsertTable != nil:
		if i, ok := at(req.InsertTable.Location); ok {
			size := TableSize(req.InsertTable.Rows, req.InsertTable.Columns)
			b.insert(i, append([]string{"\n"}, repeatUnits(structuralGlyph, size-1)...))
		}
	case req.InsertPageBreak != nil:
		if i, ok := at(req.InsertPageBreak.Location); ok {
			b.insert(i, []string{pageBreakGlyph, "\n"})
		}
	case req.InsertInlineImage != nil:
		if i, ok := at(req.InsertInlineImage.Location); ok {
			b.insert(i, []string{objectGlyph})
		}
	case req.CreateFootnote != nil:
		if i, ok := at(req.CreateFootnote.Location); ok {
			b.insert(i, []string{objectGlyph})
		}
	case req.InsertSectionBreak != nil:
		if i, ok := at(req.InsertSectionBreak.Location); ok {
			b.insert(i, []string{"\n", structuralGlyph})
		}
	case req.ReplaceAllText != nil:
		r := req.ReplaceAllText
		if r.TabsCriteria != nil && !slices.Contains(r.TabsCriteria.TabIds, tabID) {
			return
		}
		if r.ContainsText != nil {
			b.replaceAll(textUnits(r.ContainsText.Text), textUnits(r.ReplaceText), r.ContainsText.MatchCase)
		}
	}
	// Table row, column and merge changes are not simulated.
}

func (b *unitBuffer) replaceAll(find, repl []string, matchCase bool) {
	if len(find) == 0 {
		return
	}
	eq := func(x, y string) bool {
		if matchCase {
			return x == y
		}
		return strings.EqualFold(x, y)
	}
	out := b.units[:1:1]
	for i := 1; i < len(b.units); {
		if i+len(find) <= len(b.units) && slices.EqualFunc(b.units[i:i+len(find)], find, eq) {
			out = append(out, repl...)
			i += len(find)
			continue
		}
		out = append(out, b.units[i])
		i++
	}
	b.units = out
}
