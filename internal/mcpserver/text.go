package mcpserver

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"google.golang.org/api/docs/v1"
)

// documentTabs returns every tab in document order, child tabs included.
// Documents fetched without tab content yield one synthetic tab wrapping
// the top-level body.
func documentTabs(doc *docs.Document) []*docs.Tab {
	if doc == nil {
		return nil
	}

	if len(doc.Tabs) == 0 {
		return []*docs.Tab{{
			TabProperties: &docs.TabProperties{Title: doc.Title},
			DocumentTab:   &docs.DocumentTab{Body: doc.Body},
		}}
	}

	return flattenTabs(doc.Tabs)
}

func flattenTabs(tabs []*docs.Tab) []*docs.Tab {
	var out []*docs.Tab

	for _, tab := range tabs {
		if tab == nil {
			continue
		}

		out = append(out, tab)
		out = append(out, flattenTabs(tab.ChildTabs)...)
	}

	return out
}

// findTab looks a tab up by ID, then by case-insensitive title. An empty
// query selects the first tab.
func findTab(tabs []*docs.Tab, query string) *docs.Tab {
	query = strings.TrimSpace(query)
	if query == "" {
		if len(tabs) == 0 {
			return nil
		}

		return tabs[0]
	}

	for _, tab := range tabs {
		if tab.TabProperties != nil && tab.TabProperties.TabId == query {
			return tab
		}
	}

	for _, tab := range tabs {
		if tab.TabProperties != nil && strings.EqualFold(tab.TabProperties.Title, query) {
			return tab
		}
	}

	return nil
}

func tabBody(tab *docs.Tab) *docs.Body {
	if tab == nil || tab.DocumentTab == nil {
		return nil
	}

	return tab.DocumentTab.Body
}

// bodyText flattens body to plain text: table cells are separated by tabs
// and rows by newlines. With maxBytes > 0 the output is cut at a rune
// boundary and truncated is set.
func bodyText(body *docs.Body, maxBytes int64) (text string, truncated bool) {
	if body == nil {
		return "", false
	}

	var buf bytes.Buffer

	for _, el := range body.Content {
		if !appendElementText(&buf, maxBytes, el) {
			return buf.String(), true
		}
	}

	return buf.String(), false
}

func appendElementText(buf *bytes.Buffer, maxBytes int64, el *docs.StructuralElement) bool {
	if el == nil {
		return true
	}

	switch {
	case el.Paragraph != nil:
		for _, p := range el.Paragraph.Elements {
			if p == nil || p.TextRun == nil {
				continue
			}

			if !appendLimited(buf, maxBytes, p.TextRun.Content) {
				return false
			}
		}
	case el.Table != nil:
		for rowIdx, row := range el.Table.TableRows {
			if rowIdx > 0 && !appendLimited(buf, maxBytes, "\n") {
				return false
			}

			for cellIdx, cell := range row.TableCells {
				if cellIdx > 0 && !appendLimited(buf, maxBytes, "\t") {
					return false
				}

				for _, content := range cell.Content {
					if !appendElementText(buf, maxBytes, content) {
						return false
					}
				}
			}
		}
	case el.TableOfContents != nil:
		for _, content := range el.TableOfContents.Content {
			if !appendElementText(buf, maxBytes, content) {
				return false
			}
		}
	}

	return true
}

func appendLimited(buf *bytes.Buffer, maxBytes int64, s string) bool {
	if maxBytes <= 0 {
		buf.WriteString(s)
		return true
	}

	remaining := int(maxBytes) - buf.Len()
	if remaining <= 0 {
		return s == ""
	}

	if len(s) <= remaining {
		buf.WriteString(s)
		return true
	}

	cut := s[:remaining]
	for cut != "" && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}

	buf.WriteString(cut)

	return false
}

// tabInfo is the metadata of one tab.
type tabInfo struct {
	ID           string `json:"id,omitempty"`
	Title        string `json:"title"`
	Index        int64  `json:"index"`
	NestingLevel int64  `json:"nesting_level,omitempty"`
	ParentTabID  string `json:"parent_tab_id,omitempty"`
	Characters   *int   `json:"characters,omitempty"`
}

func newTabInfo(tab *docs.Tab) tabInfo {
	info := tabInfo{Title: "(untitled)"}

	if p := tab.TabProperties; p != nil {
		info.ID = p.TabId
		info.Index = p.Index
		info.NestingLevel = p.NestingLevel
		info.ParentTabID = p.ParentTabId

		if p.Title != "" {
			info.Title = p.Title
		}
	}

	return info
}
