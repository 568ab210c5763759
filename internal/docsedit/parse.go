package docsedit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
)

// OperationInput is the flat wire form of an operation. Type selects the
// variant; only the fields that variant uses may be set.
type OperationInput struct {
	Type string `json:"type" jsonschema:"operation type: insert_text, delete_range, apply_text_style, apply_paragraph_style, insert_table, insert_page_break, insert_image_from_url, create_bullet_list, insert_footnote, create_named_range, delete_named_range, replace_all_text, insert_section_break, insert_table_row, delete_table_row, insert_table_column, delete_table_column, merge_table_cells, unmerge_table_cells or update_table_cell_style"`

	TabID string `json:"tab_id,omitempty" jsonschema:"tab to edit; defaults to the batch tab or the first tab"`

	Text       *string `json:"text,omitempty" jsonschema:"text to insert (insert_text)"`
	Index      *int64  `json:"index,omitempty" jsonschema:"1-based insertion index"`
	StartIndex *int64  `json:"start_index,omitempty" jsonschema:"1-based inclusive start of a range"`
	EndIndex   *int64  `json:"end_index,omitempty" jsonschema:"exclusive end of a range"`

	TextToFind           *string `json:"text_to_find,omitempty" jsonschema:"style the Nth literal, case-sensitive match of this text instead of an index range"`
	MatchInstance        *int    `json:"match_instance,omitempty" jsonschema:"which match of text_to_find to use (1-based, default 1)"`
	IndexWithinParagraph *int64  `json:"index_within_paragraph,omitempty" jsonschema:"style the whole paragraph containing this index (apply_paragraph_style)"`

	Bold            *bool    `json:"bold,omitempty"`
	Italic          *bool    `json:"italic,omitempty"`
	Underline       *bool    `json:"underline,omitempty"`
	Strikethrough   *bool    `json:"strikethrough,omitempty"`
	FontSize        *float64 `json:"font_size,omitempty" jsonschema:"font size in points"`
	FontFamily      *string  `json:"font_family,omitempty"`
	ForegroundColor *string  `json:"foreground_color,omitempty" jsonschema:"text color as #RRGGBB"`
	BackgroundColor *string  `json:"background_color,omitempty" jsonschema:"highlight color as #RRGGBB"`
	LinkURL         *string  `json:"link_url,omitempty" jsonschema:"link target URL or #bookmark; empty removes the link"`

	Alignment      *string  `json:"alignment,omitempty" jsonschema:"START, CENTER, END or JUSTIFIED"`
	IndentStart    *float64 `json:"indent_start,omitempty" jsonschema:"left indent in points"`
	IndentEnd      *float64 `json:"indent_end,omitempty" jsonschema:"right indent in points"`
	SpaceAbove     *float64 `json:"space_above,omitempty" jsonschema:"space above in points"`
	SpaceBelow     *float64 `json:"space_below,omitempty" jsonschema:"space below in points"`
	NamedStyleType *string  `json:"named_style_type,omitempty" jsonschema:"NORMAL_TEXT, TITLE, SUBTITLE or HEADING_1 to HEADING_6"`
	KeepWithNext   *bool    `json:"keep_with_next,omitempty"`

	Rows    *int64 `json:"rows,omitempty"`
	Columns *int64 `json:"columns,omitempty"`

	ImageURL *string  `json:"image_url,omitempty" jsonschema:"publicly reachable image URL (insert_image)"`
	Width    *float64 `json:"width,omitempty" jsonschema:"image width in points"`
	Height   *float64 `json:"height,omitempty" jsonschema:"image height in points"`

	ListType *string `json:"list_type,omitempty" jsonschema:"UNORDERED, ORDERED, CHECKBOX or a bullet preset name (create_bullet_list)"`

	Name         *string `json:"name,omitempty" jsonschema:"named range name"`
	NamedRangeID *string `json:"named_range_id,omitempty"`

	FindText    *string `json:"find_text,omitempty" jsonschema:"text to replace (replace_all_text)"`
	ReplaceText *string `json:"replace_text,omitempty" jsonschema:"replacement text, may be empty (replace_all_text)"`
	MatchCase   *bool   `json:"match_case,omitempty" jsonschema:"case-sensitive matching for replace_all_text (default true)"`

	SectionType *string `json:"section_type,omitempty" jsonschema:"CONTINUOUS (default) or NEXT_PAGE (insert_section_break)"`

	TableStartIndex *int64 `json:"table_start_index,omitempty" jsonschema:"start index of the table (table operations)"`
	RowIndex        *int64 `json:"row_index,omitempty" jsonschema:"0-based row of the cell (default 0)"`
	ColumnIndex     *int64 `json:"column_index,omitempty" jsonschema:"0-based column of the cell (default 0)"`
	InsertBelow     *bool  `json:"insert_below,omitempty" jsonschema:"insert the row below the cell instead of above"`
	InsertRight     *bool  `json:"insert_right,omitempty" jsonschema:"insert the column right of the cell instead of left"`
	RowSpan         *int64 `json:"row_span,omitempty" jsonschema:"rows covered starting at the cell (default 1)"`
	ColumnSpan      *int64 `json:"column_span,omitempty" jsonschema:"columns covered starting at the cell (default 1)"`

	PaddingTop        *float64 `json:"padding_top,omitempty" jsonschema:"cell padding in points"`
	PaddingBottom     *float64 `json:"padding_bottom,omitempty"`
	PaddingLeft       *float64 `json:"padding_left,omitempty"`
	PaddingRight      *float64 `json:"padding_right,omitempty"`
	BorderTopColor    *string  `json:"border_top_color,omitempty" jsonschema:"cell border color as #RRGGBB; set together with the width"`
	BorderTopWidth    *float64 `json:"border_top_width,omitempty" jsonschema:"cell border width in points"`
	BorderBottomColor *string  `json:"border_bottom_color,omitempty"`
	BorderBottomWidth *float64 `json:"border_bottom_width,omitempty"`
	BorderLeftColor   *string  `json:"border_left_color,omitempty"`
	BorderLeftWidth   *float64 `json:"border_left_width,omitempty"`
	BorderRightColor  *string  `json:"border_right_color,omitempty"`
	BorderRightWidth  *float64 `json:"border_right_width,omitempty"`
}

var textStyleKeys = []string{
	"bold", "italic", "underline", "strikethrough", "font_size", "font_family",
	"foreground_color", "background_color", "link_url",
}

var paragraphStyleKeys = []string{
	"alignment", "indent_start", "indent_end", "space_above", "space_below",
	"named_style_type", "keep_with_next",
}

var cellKeys = []string{"table_start_index", "row_index", "column_index"}

var cellStyleKeys = []string{
	"background_color", "padding_top", "padding_bottom", "padding_left", "padding_right",
	"border_top_color", "border_top_width", "border_bottom_color", "border_bottom_width",
	"border_left_color", "border_left_width", "border_right_color", "border_right_width",
}

var kindAliases = map[string]Kind{
	"delete_text":  KindDeleteRange,
	"insert_image": KindInsertImage,
}

var allowedKeys = map[Kind][]string{
	KindInsertText:          {"text", "index"},
	KindDeleteRange:         {"start_index", "end_index"},
	KindApplyTextStyle:      append([]string{"start_index", "end_index", "text_to_find", "match_instance"}, textStyleKeys...),
	KindApplyParagraphStyle: append([]string{"start_index", "end_index", "text_to_find", "match_instance", "index_within_paragraph"}, paragraphStyleKeys...),
	KindInsertTable:         {"rows", "columns", "index"},
	KindInsertPageBreak:     {"index"},
	KindInsertImage:         {"image_url", "index", "width", "height"},
	KindCreateBulletList:    {"start_index", "end_index", "list_type"},
	KindInsertFootnote:      {"index"},
	KindCreateNamedRange:    {"name", "start_index", "end_index"},
	KindDeleteNamedRange:    {"name", "named_range_id"},
	KindReplaceAllText:      {"find_text", "replace_text", "match_case"},
	KindInsertSectionBreak:  {"index", "section_type"},
	KindInsertTableRow:      slices.Concat(cellKeys, []string{"insert_below"}),
	KindDeleteTableRow:      cellKeys,
	KindInsertTableColumn:   slices.Concat(cellKeys, []string{"insert_right"}),
	KindDeleteTableColumn:   cellKeys,
	KindMergeTableCells:     slices.Concat(cellKeys, []string{"row_span", "column_span"}),
	KindUnmergeTableCells:   slices.Concat(cellKeys, []string{"row_span", "column_span"}),
	KindTableCellStyle:      slices.Concat(cellKeys, []string{"row_span", "column_span"}, cellStyleKeys),
}

// ParseOperations converts wire inputs into typed operations. Operations
// without a tab use defaultTabID. The first malformed input fails the
// whole batch with an *OperationError wrapping a *ValidationError.
func ParseOperations(in []OperationInput, defaultTabID string) ([]Operation, error) {
	ops := make([]Operation, 0, len(in))
	for i, raw := range in {
		op, err := ParseOperation(raw, defaultTabID)
		if err != nil {
			return nil, &OperationError{Index: i, Kind: Kind(strings.TrimSpace(raw.Type)), Err: err}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// ParseOperation converts a single wire input.
func ParseOperation(in OperationInput, defaultTabID string) (Operation, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(in.Type)))
	if alias, ok := kindAliases[string(kind)]; ok {
		kind = alias
	}
	allowed, ok := allowedKeys[kind]
	if !ok {
		if kind == "" {
			return nil, validationf("operation type is required")
		}
		return nil, validationf("unknown operation type %q", in.Type)
	}
	if extra := unexpectedKeys(in.setKeys(), allowed); len(extra) > 0 {
		return nil, validationf("%s does not accept: %s", kind, strings.Join(extra, ", "))
	}

	tab := strings.TrimSpace(in.TabID)
	if tab == "" {
		tab = defaultTabID
	}

	switch kind {
	case KindInsertText:
		if in.Text == nil {
			return nil, validationf("text is required")
		}
		idx, err := required("index", in.Index)
		if err != nil {
			return nil, err
		}
		return InsertText{Text: *in.Text, Index: idx, TabID: tab}, nil

	case KindDeleteRange:
		start, end, err := requiredRange(in)
		if err != nil {
			return nil, err
		}
		return DeleteRange{Start: start, End: end, TabID: tab}, nil

	case KindApplyTextStyle:
		style := in.textStyle()
		if style.IsEmpty() {
			return nil, validationf("at least one text style field is required")
		}
		target, err := in.target(false)
		if err != nil {
			return nil, err
		}
		return ApplyTextStyle{Target: target, Style: style, TabID: tab}, nil

	case KindApplyParagraphStyle:
		style := in.paragraphStyle()
		if style.IsEmpty() {
			return nil, validationf("at least one paragraph style field is required")
		}
		target, err := in.target(true)
		if err != nil {
			return nil, err
		}
		return ApplyParagraphStyle{Target: target, Style: style, TabID: tab}, nil

	case KindInsertTable:
		rows, err := required("rows", in.Rows)
		if err != nil {
			return nil, err
		}
		cols, err := required("columns", in.Columns)
		if err != nil {
			return nil, err
		}
		idx, err := required("index", in.Index)
		if err != nil {
			return nil, err
		}
		return InsertTable{Rows: rows, Columns: cols, Index: idx, TabID: tab}, nil

	case KindInsertPageBreak:
		idx, err := required("index", in.Index)
		if err != nil {
			return nil, err
		}
		return InsertPageBreak{Index: idx, TabID: tab}, nil

	case KindInsertImage:
		url, err := required("image_url", in.ImageURL)
		if err != nil {
			return nil, err
		}
		idx, err := required("index", in.Index)
		if err != nil {
			return nil, err
		}
		return InsertImage{URL: url, Index: idx, Width: OptFrom(in.Width), Height: OptFrom(in.Height), TabID: tab}, nil

	case KindCreateBulletList:
		start, end, err := requiredRange(in)
		if err != nil {
			return nil, err
		}
		var preset string
		if in.ListType != nil {
			preset = *in.ListType
		}
		return CreateBulletList{Start: start, End: end, Preset: preset, TabID: tab}, nil

	case KindInsertFootnote:
		idx, err := required("index", in.Index)
		if err != nil {
			return nil, err
		}
		return InsertFootnote{Index: idx, TabID: tab}, nil

	case KindCreateNamedRange:
		name, err := required("name", in.Name)
		if err != nil {
			return nil, err
		}
		start, end, err := requiredRange(in)
		if err != nil {
			return nil, err
		}
		return CreateNamedRange{Name: name, Start: start, End: end, TabID: tab}, nil

	case KindDeleteNamedRange:
		op := DeleteNamedRange{TabID: tab}
		if in.NamedRangeID != nil {
			op.ID = strings.TrimSpace(*in.NamedRangeID)
		}
		if in.Name != nil {
			op.Name = *in.Name
		}
		if (op.ID == "") == (op.Name == "") {
			return nil, validationf("exactly one of named_range_id or name is required")
		}
		return op, nil

	case KindReplaceAllText:
		find, err := required("find_text", in.FindText)
		if err != nil {
			return nil, err
		}
		if find == "" {
			return nil, validationf("find_text must not be empty")
		}
		op := ReplaceAllText{Find: find, MatchCase: true, TabID: tab}
		if in.ReplaceText != nil {
			op.Replace = *in.ReplaceText
		}
		if in.MatchCase != nil {
			op.MatchCase = *in.MatchCase
		}
		return op, nil

	case KindInsertSectionBreak:
		idx, err := required("index", in.Index)
		if err != nil {
			return nil, err
		}
		var t string
		if in.SectionType != nil {
			t = *in.SectionType
		}
		return InsertSectionBreak{Index: idx, SectionType: t, TabID: tab}, nil

	case KindInsertTableRow, KindDeleteTableRow, KindInsertTableColumn, KindDeleteTableColumn,
		KindMergeTableCells, KindUnmergeTableCells, KindTableCellStyle:
		return in.tableOperation(kind, tab)
	}
	return nil, validationf("unknown operation type %q", in.Type)
}

// DecodeOperations reads a JSON array of operations, rejecting unknown fields.
func DecodeOperations(r io.Reader) ([]OperationInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, validationf("no operations provided")
	}
	// Accept either a bare array or {"operations": [...]}.
	if data[0] == '{' {
		var wrapped struct {
			Operations json.RawMessage `json:"operations"`
		}
		if err := strictUnmarshal(data, &wrapped); err != nil {
			return nil, validationf("decode operations: %v", err)
		}
		data = wrapped.Operations
	}
	var out []OperationInput
	if err := strictUnmarshal(data, &out); err != nil {
		return nil, validationf("decode operations: %v", err)
	}
	return out, nil
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}

func (in OperationInput) target(allowParagraph bool) (Target, error) {
	hasRange := in.StartIndex != nil || in.EndIndex != nil
	hasSearch := in.TextToFind != nil
	hasPara := in.IndexWithinParagraph != nil

	n := 0
	for _, b := range []bool{hasRange, hasSearch, hasPara} {
		if b {
			n++
		}
	}
	switch {
	case n == 0 && allowParagraph:
		return nil, validationf("one of start_index/end_index, text_to_find or index_within_paragraph is required")
	case n == 0:
		return nil, validationf("either start_index/end_index or text_to_find is required")
	case n > 1:
		return nil, validationf("start_index/end_index, text_to_find and index_within_paragraph are mutually exclusive")
	}
	if in.MatchInstance != nil && !hasSearch {
		return nil, validationf("match_instance requires text_to_find")
	}

	switch {
	case hasSearch:
		instance := 1
		if in.MatchInstance != nil {
			instance = *in.MatchInstance
		}
		if *in.TextToFind == "" {
			return nil, validationf("text_to_find must not be empty")
		}
		if instance < 1 {
			return nil, validationf("match_instance must be >= 1, got %d", instance)
		}
		return TextSearch{Text: *in.TextToFind, Instance: instance}, nil
	case hasPara:
		return ContainingParagraph{Offset: *in.IndexWithinParagraph}, nil
	}
	start, end, err := requiredRange(in)
	if err != nil {
		return nil, err
	}
	return ExplicitRange{Start: start, End: end}, nil
}

func (in OperationInput) tableOperation(kind Kind, tab string) (Operation, error) {
	start, err := required("table_start_index", in.TableStartIndex)
	if err != nil {
		return nil, err
	}
	cell := TableCell{TableStart: start, Row: valueOr(in.RowIndex, 0), Column: valueOr(in.ColumnIndex, 0)}
	rows, cols := valueOr(in.RowSpan, 1), valueOr(in.ColumnSpan, 1)

	switch kind {
	case KindInsertTableRow:
		return InsertTableRow{Cell: cell, Below: valueOr(in.InsertBelow, false), TabID: tab}, nil
	case KindDeleteTableRow:
		return DeleteTableRow{Cell: cell, TabID: tab}, nil
	case KindInsertTableColumn:
		return InsertTableColumn{Cell: cell, Right: valueOr(in.InsertRight, false), TabID: tab}, nil
	case KindDeleteTableColumn:
		return DeleteTableColumn{Cell: cell, TabID: tab}, nil
	case KindMergeTableCells:
		return MergeTableCells{Cell: cell, RowSpan: rows, ColumnSpan: cols, TabID: tab}, nil
	case KindUnmergeTableCells:
		return UnmergeTableCells{Cell: cell, RowSpan: rows, ColumnSpan: cols, TabID: tab}, nil
	}

	style := in.cellStyle()
	if style.IsEmpty() {
		return nil, validationf("at least one cell style field is required")
	}
	return UpdateTableCellStyle{Cell: cell, RowSpan: rows, ColumnSpan: cols, Style: style, TabID: tab}, nil
}

func (in OperationInput) cellStyle() CellStyle {
	return CellStyle{
		BackgroundColor: OptFrom(in.BackgroundColor),
		PaddingTop:      OptFrom(in.PaddingTop),
		PaddingBottom:   OptFrom(in.PaddingBottom),
		PaddingLeft:     OptFrom(in.PaddingLeft),
		PaddingRight:    OptFrom(in.PaddingRight),
		BorderTop:       CellBorder{Color: OptFrom(in.BorderTopColor), Width: OptFrom(in.BorderTopWidth)},
		BorderBottom:    CellBorder{Color: OptFrom(in.BorderBottomColor), Width: OptFrom(in.BorderBottomWidth)},
		BorderLeft:      CellBorder{Color: OptFrom(in.BorderLeftColor), Width: OptFrom(in.BorderLeftWidth)},
		BorderRight:     CellBorder{Color: OptFrom(in.BorderRightColor), Width: OptFrom(in.BorderRightWidth)},
	}
}

func (in OperationInput) textStyle() TextStyle {
	return TextStyle{
		Bold:            OptFrom(in.Bold),
		Italic:          OptFrom(in.Italic),
		Underline:       OptFrom(in.Underline),
		Strikethrough:   OptFrom(in.Strikethrough),
		FontSize:        OptFrom(in.FontSize),
		FontFamily:      OptFrom(in.FontFamily),
		ForegroundColor: OptFrom(in.ForegroundColor),
		BackgroundColor: OptFrom(in.BackgroundColor),
		Link:            OptFrom(in.LinkURL),
	}
}

func (in OperationInput) paragraphStyle() ParagraphStyle {
	return ParagraphStyle{
		Alignment:      OptFrom(in.Alignment),
		IndentStart:    OptFrom(in.IndentStart),
		IndentEnd:      OptFrom(in.IndentEnd),
		SpaceAbove:     OptFrom(in.SpaceAbove),
		SpaceBelow:     OptFrom(in.SpaceBelow),
		NamedStyleType: OptFrom(in.NamedStyleType),
		KeepWithNext:   OptFrom(in.KeepWithNext),
	}
}

func (in OperationInput) setKeys() []string {
	set := map[string]bool{
		"text":                   in.Text != nil,
		"index":                  in.Index != nil,
		"start_index":            in.StartIndex != nil,
		"end_index":              in.EndIndex != nil,
		"text_to_find":           in.TextToFind != nil,
		"match_instance":         in.MatchInstance != nil,
		"index_within_paragraph": in.IndexWithinParagraph != nil,
		"bold":                   in.Bold != nil,
		"italic":                 in.Italic != nil,
		"underline":              in.Underline != nil,
		"strikethrough":          in.Strikethrough != nil,
		"font_size":              in.FontSize != nil,
		"font_family":            in.FontFamily != nil,
		"foreground_color":       in.ForegroundColor != nil,
		"background_color":       in.BackgroundColor != nil,
		"link_url":               in.LinkURL != nil,
		"alignment":              in.Alignment != nil,
		"indent_start":           in.IndentStart != nil,
		"indent_end":             in.IndentEnd != nil,
		"space_above":            in.SpaceAbove != nil,
		"space_below":            in.SpaceBelow != nil,
		"named_style_type":       in.NamedStyleType != nil,
		"keep_with_next":         in.KeepWithNext != nil,
		"rows":                   in.Rows != nil,
		"columns":                in.Columns != nil,
		"image_url":              in.ImageURL != nil,
		"width":                  in.Width != nil,
		"height":                 in.Height != nil,
		"list_type":              in.ListType != nil,
		"name":                   in.Name != nil,
		"named_range_id":         in.NamedRangeID != nil,
		"find_text":              in.FindText != nil,
		"replace_text":           in.ReplaceText != nil,
		"match_case":             in.MatchCase != nil,
		"section_type":           in.SectionType != nil,
		"table_start_index":      in.TableStartIndex != nil,
		"row_index":              in.RowIndex != nil,
		"column_index":           in.ColumnIndex != nil,
		"insert_below":           in.InsertBelow != nil,
		"insert_right":           in.InsertRight != nil,
		"row_span":               in.RowSpan != nil,
		"column_span":            in.ColumnSpan != nil,
		"padding_top":            in.PaddingTop != nil,
		"padding_bottom":         in.PaddingBottom != nil,
		"padding_left":           in.PaddingLeft != nil,
		"padding_right":          in.PaddingRight != nil,
		"border_top_color":       in.BorderTopColor != nil,
		"border_top_width":       in.BorderTopWidth != nil,
		"border_bottom_color":    in.BorderBottomColor != nil,
		"border_bottom_width":    in.BorderBottomWidth != nil,
		"border_left_color":      in.BorderLeftColor != nil,
		"border_left_width":      in.BorderLeftWidth != nil,
		"border_right_color":     in.BorderRightColor != nil,
		"border_right_width":     in.BorderRightWidth != nil,
	}
	keys := make([]string, 0, len(set))
	for k, ok := range set {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func unexpectedKeys(set, allowed []string) []string {
	ok := make(map[string]bool, len(allowed))
	for _, k := range allowed {
		ok[k] = true
	}
	var extra []string
	for _, k := range set {
		if !ok[k] {
			extra = append(extra, k)
		}
	}
	return extra
}

func required[T any](name string, p *T) (T, error) {
	if p == nil {
		var zero T
		return zero, validationf("%s is required", name)
	}
	return *p, nil
}

func valueOr[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func requiredRange(in OperationInput) (int64, int64, error) {
	start, err := required("start_index", in.StartIndex)
	if err != nil {
		return 0, 0, err
	}
	end, err := required("end_index", in.EndIndex)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// Summary counts operations by kind, e.g. "3 insert_text, 1 insert_table".
func Summary(ops []Operation) string {
	counts := map[Kind]int{}
	for _, op := range ops {
		counts[op.Kind()]++
	}
	var parts []string
	for _, k := range Kinds {
		if n := counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return strings.Join(parts, ", ")
}
