package docsedit

import "strings"

// Kind names an operation variant. The values double as the wire
// discriminant accepted by ParseOperation.
type Kind string

const (
	KindInsertText          Kind = "insert_text"
	KindDeleteRange         Kind = "delete_range"
	KindApplyTextStyle      Kind = "apply_text_style"
	KindApplyParagraphStyle Kind = "apply_paragraph_style"
	KindInsertTable         Kind = "insert_table"
	KindInsertPageBreak     Kind = "insert_page_break"
	KindInsertImage         Kind = "insert_image_from_url"
	KindCreateBulletList    Kind = "create_bullet_list"
	KindInsertFootnote      Kind = "insert_footnote"
	KindCreateNamedRange    Kind = "create_named_range"
	KindDeleteNamedRange    Kind = "delete_named_range"
	KindReplaceAllText      Kind = "replace_all_text"
	KindInsertSectionBreak  Kind = "insert_section_break"
	KindInsertTableRow      Kind = "insert_table_row"
	KindDeleteTableRow      Kind = "delete_table_row"
	KindInsertTableColumn   Kind = "insert_table_column"
	KindDeleteTableColumn   Kind = "delete_table_column"
	KindMergeTableCells     Kind = "merge_table_cells"
	KindUnmergeTableCells   Kind = "unmerge_table_cells"
	KindTableCellStyle      Kind = "update_table_cell_style"
)

// Kinds lists every supported operation in a stable order.
var Kinds = []Kind{
	KindInsertText,
	KindDeleteRange,
	KindApplyTextStyle,
	KindApplyParagraphStyle,
	KindInsertTable,
	KindInsertPageBreak,
	KindInsertImage,
	KindCreateBulletList,
	KindInsertFootnote,
	KindCreateNamedRange,
	KindDeleteNamedRange,
	KindReplaceAllText,
	KindInsertSectionBreak,
	KindInsertTableRow,
	KindDeleteTableRow,
	KindInsertTableColumn,
	KindDeleteTableColumn,
	KindMergeTableCells,
	KindUnmergeTableCells,
	KindTableCellStyle,
}

// Operation is one user-level edit. Offsets are expressed against the
// document as it was before the batch started.
type Operation interface {
	Kind() Kind
}

type InsertText struct {
	Text  string
	Index int64
	TabID string
}

type DeleteRange struct {
	Start int64
	End   int64
	TabID string
}

type ApplyTextStyle struct {
	Target Target
	Style  TextStyle
	TabID  string
}

type ApplyParagraphStyle struct {
	Target Target
	Style  ParagraphStyle
	TabID  string
}

type InsertTable struct {
	Rows    int64
	Columns int64
	Index   int64
	TabID   string
}

type InsertPageBreak struct {
	Index int64
	TabID string
}

type InsertImage struct {
	URL    string
	Index  int64
	Width  Opt[float64]
	Height Opt[float64]
	TabID  string
}

// CreateBulletList turns the paragraphs overlapping [Start, End) into a list.
// Preset is a bullet glyph preset name; an empty value means an unordered list.
type CreateBulletList struct {
	Start  int64
	End    int64
	Preset string
	TabID  string
}

type InsertFootnote struct {
	Index int64
	TabID string
}

type CreateNamedRange struct {
	Name  string
	Start int64
	End   int64
	TabID string
}

// DeleteNamedRange removes named ranges by ID or by name; exactly one is set.
type DeleteNamedRange struct {
	ID    string
	Name  string
	TabID string
}

// ReplaceAllText replaces every match of Find. An empty TabID means every tab.
type ReplaceAllText struct {
	Find      string
	Replace   string
	MatchCase bool
	TabID     string
}

// InsertSectionBreak starts a new section at Index. SectionType is
// CONTINUOUS or NEXT_PAGE.
type InsertSectionBreak struct {
	Index       int64
	SectionType string
	TabID       string
}

// TableCell addresses a cell by 0-based row and column within the table
// whose start index is TableStart.
type TableCell struct {
	TableStart int64
	Row        int64
	Column     int64
}

type InsertTableRow struct {
	Cell  TableCell
	Below bool
	TabID string
}

type DeleteTableRow struct {
	Cell  TableCell
	TabID string
}

type InsertTableColumn struct {
	Cell  TableCell
	Right bool
	TabID string
}

type DeleteTableColumn struct {
	Cell  TableCell
	TabID string
}

// MergeTableCells merges the RowSpan x ColumnSpan block whose top-left cell is Cell.
type MergeTableCells struct {
	Cell       TableCell
	RowSpan    int64
	ColumnSpan int64
	TabID      string
}

type UnmergeTableCells struct {
	Cell       TableCell
	RowSpan    int64
	ColumnSpan int64
	TabID      string
}

// UpdateTableCellStyle styles the RowSpan x ColumnSpan block at Cell.
type UpdateTableCellStyle struct {
	Cell       TableCell
	RowSpan    int64
	ColumnSpan int64
	Style      CellStyle
	TabID      string
}

func (InsertText) Kind() Kind          { return KindInsertText }
func (DeleteRange) Kind() Kind         { return KindDeleteRange }
func (ApplyTextStyle) Kind() Kind      { return KindApplyTextStyle }
func (ApplyParagraphStyle) Kind() Kind { return KindApplyParagraphStyle }
func (InsertTable) Kind() Kind         { return KindInsertTable }
func (InsertPageBreak) Kind() Kind     { return KindInsertPageBreak }
func (InsertImage) Kind() Kind         { return KindInsertImage }
func (CreateBulletList) Kind() Kind    { return KindCreateBulletList }
func (InsertFootnote) Kind() Kind      { return KindInsertFootnote }
func (CreateNamedRange) Kind() Kind    { return KindCreateNamedRange }
func (DeleteNamedRange) Kind() Kind    { return KindDeleteNamedRange }
func (ReplaceAllText) Kind() Kind      { return KindReplaceAllText }
func (InsertSectionBreak) Kind() Kind  { return KindInsertSectionBreak }
func (InsertTableRow) Kind() Kind      { return KindInsertTableRow }
func (DeleteTableRow) Kind() Kind      { return KindDeleteTableRow }
func (InsertTableColumn) Kind() Kind   { return KindInsertTableColumn }
func (DeleteTableColumn) Kind() Kind   { return KindDeleteTableColumn }
func (MergeTableCells) Kind() Kind     { return KindMergeTableCells }
func (UnmergeTableCells) Kind() Kind   { return KindUnmergeTableCells }

func (UpdateTableCellStyle) Kind() Kind { return KindTableCellStyle }

// Target selects the span a style operation applies to.
type Target interface {
	needsSnapshot() bool
}

// ExplicitRange is a literal [Start, End) span.
type ExplicitRange struct {
	Start int64
	End   int64
}

// TextSearch selects the Instance-th (1-based) literal, case-sensitive match of Text.
type TextSearch struct {
	Text     string
	Instance int
}

// ContainingParagraph selects the whole paragraph that contains Offset.
type ContainingParagraph struct {
	Offset int64
}

func (ExplicitRange) needsSnapshot() bool       { return false }
func (TextSearch) needsSnapshot() bool          { return true }
func (ContainingParagraph) needsSnapshot() bool { return true }

// Range is a resolved half-open span in document indices.
type Range struct {
	Start int64
	End   int64
}

func (r Range) Len() int64 { return r.End - r.Start }

func (r Range) shift(by int64) Range { return Range{Start: r.Start + by, End: r.End + by} }

// NeedsSnapshot reports whether translating ops requires the current document
// content: a target must be resolved, a range end must be checked against the
// length of its tab, or the batch names more than one tab and drift has to be
// kept per resolved tab.
func NeedsSnapshot(ops []Operation) bool {
	tabs := make(map[string]struct{})
	for _, op := range ops {
		switch o := op.(type) {
		case ApplyTextStyle, ApplyParagraphStyle, DeleteRange, CreateBulletList, CreateNamedRange:
			return true
		case DeleteNamedRange, nil:
			continue
		case ReplaceAllText:
			// Without a tab it already covers every tab.
			if strings.TrimSpace(o.TabID) == "" {
				continue
			}
		}
		tabs[strings.TrimSpace(tabOf(op))] = struct{}{}
	}
	return len(tabs) > 1
}

func tabOf(op Operation) string {
	switch o := op.(type) {
	case InsertText:
		return o.TabID
	case DeleteRange:
		return o.TabID
	case ApplyTextStyle:
		return o.TabID
	case ApplyParagraphStyle:
		return o.TabID
	case InsertTable:
		return o.TabID
	case InsertPageBreak:
		return o.TabID
	case InsertImage:
		return o.TabID
	case CreateBulletList:
		return o.TabID
	case InsertFootnote:
		return o.TabID
	case CreateNamedRange:
		return o.TabID
	case DeleteNamedRange:
		return o.TabID
	case ReplaceAllText:
		return o.TabID
	case InsertSectionBreak:
		return o.TabID
	case InsertTableRow:
		return o.TabID
	case DeleteTableRow:
		return o.TabID
	case InsertTableColumn:
		return o.TabID
	case DeleteTableColumn:
		return o.TabID
	case MergeTableCells:
		return o.TabID
	case UnmergeTableCells:
		return o.TabID
	case UpdateTableCellStyle:
		return o.TabID
	}
	return ""
}
