package docsedit

import (
	"sort"
	"strings"

	"google.golang.org/api/docs/v1"
)

// Snapshot is a read-only view of a fetched document used to resolve
// search and paragraph targets. It never changes during a batch.
type Snapshot struct {
	DocumentID string
	Title      string
	RevisionID string
	Tabs       []*TabContent
}

// TabContent holds the text runs and paragraph spans of one tab body,
// in document order.
type TabContent struct {
	ID         string
	Title      string
	Segments   []Segment
	Paragraphs []Range
	EndIndex   int64
}

// Segment is a text run and the document index of its first code unit.
type Segment struct {
	Text  string
	Start int64
}

// NewSnapshot indexes doc. Documents fetched with tab content produce one
// TabContent per tab (child tabs included); legacy documents produce a
// single unnamed tab from the top-level body.
func NewSnapshot(doc *docs.Document) *Snapshot {
	s := &Snapshot{}
	if doc == nil {
		return s
	}
	s.DocumentID = doc.DocumentId
	s.Title = doc.Title
	s.RevisionID = doc.RevisionId

	if len(doc.Tabs) == 0 {
		s.Tabs = append(s.Tabs, indexBody("", "", doc.Body))
		return s
	}
	for _, tab := range flattenTabs(doc.Tabs) {
		var id, title string
		if tab.TabProperties != nil {
			id = tab.TabProperties.TabId
			title = tab.TabProperties.Title
		}
		var body *docs.Body
		if tab.DocumentTab != nil {
			body = tab.DocumentTab.Body
		}
		s.Tabs = append(s.Tabs, indexBody(id, title, body))
	}
	return s
}

// Tab returns the tab matching id (exact ID, then case-insensitive title).
// An empty id selects the first tab.
func (s *Snapshot) Tab(id string) (*TabContent, error) {
	if s == nil || len(s.Tabs) == 0 {
		return nil, notFoundf("document has no content")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return s.Tabs[0], nil
	}
	for _, tab := range s.Tabs {
		if tab.ID == id {
			return tab, nil
		}
	}
	lower := strings.ToLower(id)
	for _, tab := range s.Tabs {
		if strings.ToLower(tab.Title) == lower {
			return tab, nil
		}
	}
	return nil, notFoundf("tab not found: %s", id)
}

// Length is the number of addressable positions in the tab body.
// Valid range ends satisfy end <= Length()+1.
func (t *TabContent) Length() int64 {
	if t.EndIndex <= 1 {
		return 0
	}
	return t.EndIndex - 1
}

// Text returns the concatenated text of all runs.
func (t *TabContent) Text() string {
	var b strings.Builder
	for _, seg := range t.Segments {
		b.WriteString(seg.Text)
	}
	return b.String()
}

// FindText returns the span of the instance-th (1-based) occurrence of text.
// Matches are literal, case-sensitive and non-overlapping. A match whose
// characters are not contiguous in the document (for example one that spans
// an inline object) is skipped.
func (t *TabContent) FindText(text string, instance int) (Range, bool) {
	if text == "" || instance < 1 {
		return Range{}, false
	}

	starts := make([]int, len(t.Segments))
	var b strings.Builder
	for i, seg := range t.Segments {
		starts[i] = b.Len()
		b.WriteString(seg.Text)
	}
	full := b.String()
	want := utf16Len(text)

	found := 0
	pos := 0
	for pos <= len(full)-len(text) {
		i := strings.Index(full[pos:], text)
		if i < 0 {
			break
		}
		at := pos + i
		r, ok := t.mapBytes(starts, at, at+len(text))
		if !ok || r.Len() != want {
			pos = at + 1
			continue
		}
		found++
		if found == instance {
			return r, true
		}
		pos = at + len(text)
	}
	return Range{}, false
}

// mapBytes converts a byte span of the concatenated text into document indices.
func (t *TabContent) mapBytes(starts []int, from, to int) (Range, bool) {
	first := sort.Search(len(starts), func(i int) bool {
		return starts[i]+len(t.Segments[i].Text) > from
	})
	last := sort.Search(len(starts), func(i int) bool {
		return starts[i]+len(t.Segments[i].Text) >= to
	})
	if first >= len(starts) || last >= len(starts) {
		return Range{}, false
	}
	s, e := t.Segments[first], t.Segments[last]
	return Range{
		Start: s.Start + utf16Len(s.Text[:from-starts[first]]),
		End:   e.Start + utf16Len(e.Text[:to-starts[last]]),
	}, true
}

// ParagraphAt returns the span of the paragraph containing offset.
func (t *TabContent) ParagraphAt(offset int64) (Range, bool) {
	for _, p := range t.Paragraphs {
		if p.Start <= offset && offset < p.End {
			return p, true
		}
	}
	return Range{}, false
}

func indexBody(id, title string, body *docs.Body) *TabContent {
	tc := &TabContent{ID: id, Title: title}
	if body == nil {
		return tc
	}
	for _, el := range body.Content {
		tc.addElement(el)
		if el != nil && el.EndIndex > tc.EndIndex {
			tc.EndIndex = el.EndIndex
		}
	}
	return tc
}

func (t *TabContent) addElement(el *docs.StructuralElement) {
	if el == nil {
		return
	}
	switch {
	case el.Paragraph != nil:
		t.Paragraphs = append(t.Paragraphs, Range{Start: el.StartIndex, End: el.EndIndex})
		for _, pe := range el.Paragraph.Elements {
			if pe == nil || pe.TextRun == nil || pe.TextRun.Content == "" {
				continue
			}
			t.Segments = append(t.Segments, Segment{Text: pe.TextRun.Content, Start: pe.StartIndex})
		}
	case el.Table != nil:
		for _, row := range el.Table.TableRows {
			for _, cell := range row.TableCells {
				for _, content := range cell.Content {
					t.addElement(content)
				}
			}
		}
	}
}

func flattenTabs(tabs []*docs.Tab) []*docs.Tab {
	var result []*docs.Tab
	for _, tab := range tabs {
		if tab == nil {
			continue
		}
		result = append(result, tab)
		if len(tab.ChildTabs) > 0 {
			result = append(result, flattenTabs(tab.ChildTabs)...)
		}
	}
	return result
}
