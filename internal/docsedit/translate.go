package docsedit

import (
	"maps"
	"strings"

	"google.golang.org/api/docs/v1"
)

const maxNamedRangeName = 256

// State is carried from one operation to the next while translating a batch.
// Each tab is its own content stream, so drift is tracked per tab. Tabs are
// keyed by their resolved ID when a snapshot is available, and by the tab ID
// as given otherwise, with "" standing for the first tab.
type State struct {
	drift map[string]int64
	// opaque holds tabs whose length changed by an amount that cannot be
	// derived from the operation alone; allTabs marks every tab.
	opaque map[string]struct{}
}

const allTabs = "*"

// Drift is the net change in length of tab caused by the operations
// translated so far. It is added to every explicit offset in that tab.
func (s State) Drift(tab string) int64 { return s.drift[tab] }

// Shifted reports whether any earlier operation changed the length or the
// text of tab. Targets resolved against the snapshot are rejected in such a
// tab because the snapshot no longer describes the content they would hit.
func (s State) Shifted(tab string) bool {
	_, one := s.drift[tab]
	_, all := s.drift[allTabs]
	return one || all || s.Opaque(tab)
}

// Opaque reports whether tab changed by an unknown amount, after which no
// offset in it can be translated.
func (s State) Opaque(tab string) bool {
	_, one := s.opaque[tab]
	_, all := s.opaque[allTabs]
	return one || all
}

func (s State) add(tab string, delta int64) State {
	if delta == 0 {
		return s
	}
	next := maps.Clone(s.drift)
	if next == nil {
		next = make(map[string]int64, 1)
	}
	next[tab] += delta
	return State{drift: next, opaque: s.opaque}
}

// touch records that tab was edited without a change in length.
func (s State) touch(tab string) State {
	if _, ok := s.drift[tab]; ok {
		return s
	}
	next := maps.Clone(s.drift)
	if next == nil {
		next = make(map[string]int64, 1)
	}
	next[tab] = 0
	return State{drift: next, opaque: s.opaque}
}

func (s State) markOpaque(tab string) State {
	next := maps.Clone(s.opaque)
	if next == nil {
		next = make(map[string]struct{}, 1)
	}
	next[tab] = struct{}{}
	return State{drift: s.drift, opaque: next}
}

// Translate converts a batch into document requests, one per operation.
// It fails on the first invalid operation; the error is an *OperationError.
func Translate(ops []Operation, snap *Snapshot) ([]*docs.Request, error) {
	var (
		st   State
		reqs = make([]*docs.Request, 0, len(ops))
	)
	for i, op := range ops {
		next, out, err := Step(st, op, snap)
		if err != nil {
			return nil, wrapOp(i, op, err)
		}
		st = next
		reqs = append(reqs, out...)
	}
	return reqs, nil
}

// TranslateOne translates a single operation as a batch of one.
func TranslateOne(op Operation, snap *Snapshot) ([]*docs.Request, error) {
	_, reqs, err := Step(State{}, op, snap)
	if err != nil {
		return nil, wrapOp(0, op, err)
	}
	return reqs, nil
}

func wrapOp(i int, op Operation, err error) error {
	oe := &OperationError{Index: i, Err: err}
	if op != nil {
		oe.Kind = op.Kind()
	}
	return oe
}

// Step translates one operation given the state left by its predecessors
// and returns the updated state.
func Step(st State, op Operation, snap *Snapshot) (State, []*docs.Request, error) {
	var (
		req    *docs.Request
		delta  int64
		opaque bool
	)

	key, err := streamKey(op, snap)
	if err != nil {
		return st, nil, err
	}
	if positioned(op) && st.Opaque(key) {
		return st, nil, validationf("operations with indexes cannot follow a table structure change or a length-changing replace_all_text in the same tab; split the batch so the document is fetched again")
	}
	drift := st.Drift(key)

	switch o := op.(type) {
	case InsertText:
		if err = checkIndex(o.Index); err != nil {
			break
		}
		req = &docs.Request{InsertText: &docs.InsertTextRequest{
			Text:     o.Text,
			Location: docsLocation(o.Index+drift, o.TabID),
		}}
		delta = utf16Len(o.Text)

	case DeleteRange:
		if err = checkSpan(o.Start, o.End, snap, o.TabID); err != nil {
			break
		}
		req = &docs.Request{DeleteContentRange: &docs.DeleteContentRangeRequest{
			Range: docsRange(Range{Start: o.Start, End: o.End}.shift(drift), o.TabID),
		}}
		delta = -(o.End - o.Start)

	case ApplyTextStyle:
		var (
			r     Range
			tabID string
		)
		// Style problems are reported before the target is looked up.
		if _, _, err = textStyleFields(o.Style); err != nil {
			break
		}
		if r, tabID, err = resolveTarget(st, key, o.Target, snap, o.TabID); err != nil {
			break
		}
		req, err = BuildTextStyle(r, tabID, o.Style)

	case ApplyParagraphStyle:
		var (
			r     Range
			tabID string
		)
		if _, _, err = paragraphStyleFields(o.Style); err != nil {
			break
		}
		target := o.Target
		if ts, ok := target.(TextSearch); ok {
			// A searched phrase styles the whole paragraph it starts in.
			if r, _, err = resolveTarget(st, key, ts, snap, o.TabID); err != nil {
				break
			}
			target = ContainingParagraph{Offset: r.Start}
		}
		if r, tabID, err = resolveTarget(st, key, target, snap, o.TabID); err != nil {
			break
		}
		req, err = BuildParagraphStyle(r, tabID, o.Style)

	case InsertTable:
		if err = checkIndex(o.Index); err != nil {
			break
		}
		if o.Rows < 1 || o.Columns < 1 {
			err = validationf("table needs at least one row and one column, got %dx%d", o.Rows, o.Columns)
			break
		}
		req = &docs.Request{InsertTable: &docs.InsertTableRequest{
			Rows:     o.Rows,
			Columns:  o.Columns,
			Location: docsLocation(o.Index+drift, o.TabID),
		}}
		delta = TableSize(o.Rows, o.Columns)

	case InsertPageBreak:
		if err = checkIndex(o.Index); err != nil {
			break
		}
		req = &docs.Request{InsertPageBreak: &docs.InsertPageBreakRequest{
			Location: docsLocation(o.Index+drift, o.TabID),
		}}
		delta = 2

	case InsertImage:
		if err = checkIndex(o.Index); err != nil {
			break
		}
		if strings.TrimSpace(o.URL) == "" {
			err = validationf("image url must not be empty")
			break
		}
		var size *docs.Size
		if size, err = imageSize(o.Width, o.Height); err != nil {
			break
		}
		req = &docs.Request{InsertInlineImage: &docs.InsertInlineImageRequest{
			Uri:        strings.TrimSpace(o.URL),
			Location:   docsLocation(o.Index+drift, o.TabID),
			ObjectSize: size,
		}}
		delta = 1

	case CreateBulletList:
		if err = checkSpan(o.Start, o.End, snap, o.TabID); err != nil {
			break
		}
		req = &docs.Request{CreateParagraphBullets: &docs.CreateParagraphBulletsRequest{
			BulletPreset: BulletPreset(o.Preset),
			Range:        docsRange(Range{Start: o.Start, End: o.End}.shift(drift), o.TabID),
		}}

	case InsertFootnote:
		if err = checkIndex(o.Index); err != nil {
			break
		}
		req = &docs.Request{CreateFootnote: &docs.CreateFootnoteRequest{
			Location: docsLocation(o.Index+drift, o.TabID),
		}}
		delta = 1

	case CreateNamedRange:
		if n := utf16Len(o.Name); n < 1 || n > maxNamedRangeName {
			err = validationf("named range name must be 1-%d characters", maxNamedRangeName)
			break
		}
		if err = checkSpan(o.Start, o.End, snap, o.TabID); err != nil {
			break
		}
		req = &docs.Request{CreateNamedRange: &docs.CreateNamedRangeRequest{
			Name:  o.Name,
			Range: docsRange(Range{Start: o.Start, End: o.End}.shift(drift), o.TabID),
		}}

	case DeleteNamedRange:
		if (o.ID == "") == (o.Name == "") {
			err = validationf("exactly one of named range id or name is required")
			break
		}
		dr := &docs.DeleteNamedRangeRequest{NamedRangeId: o.ID, Name: o.Name}
		if o.TabID != "" {
			dr.TabsCriteria = &docs.TabsCriteria{TabIds: []string{o.TabID}}
		}
		req = &docs.Request{DeleteNamedRange: dr}

	case ReplaceAllText:
		if o.Find == "" {
			err = validationf("text to replace must not be empty")
			break
		}
		rr := &docs.ReplaceAllTextRequest{
			ContainsText: &docs.SubstringMatchCriteria{Text: o.Find, MatchCase: o.MatchCase},
			ReplaceText:  o.Replace,
		}
		if key != allTabs {
			rr.TabsCriteria = &docs.TabsCriteria{TabIds: []string{key}}
		}
		if o.Replace == "" {
			rr.ForceSendFields = []string{"ReplaceText"}
		}
		req = &docs.Request{ReplaceAllText: rr}
		opaque = utf16Len(o.Find) != utf16Len(o.Replace)
		st = st.touch(key)

	case InsertSectionBreak:
		if err = checkIndex(o.Index); err != nil {
			break
		}
		var t string
		if t, err = sectionType(o.SectionType); err != nil {
			break
		}
		req = &docs.Request{InsertSectionBreak: &docs.InsertSectionBreakRequest{
			Location:    docsLocation(o.Index+drift, o.TabID),
			SectionType: t,
		}}
		delta = 2

	case InsertTableRow:
		if err = checkCell(o.Cell); err != nil {
			break
		}
		req = &docs.Request{InsertTableRow: &docs.InsertTableRowRequest{
			TableCellLocation: docsCell(o.Cell, drift, o.TabID),
			InsertBelow:       o.Below,
		}}
		opaque = true

	case DeleteTableRow:
		if err = checkCell(o.Cell); err != nil {
			break
		}
		req = &docs.Request{DeleteTableRow: &docs.DeleteTableRowRequest{
			TableCellLocation: docsCell(o.Cell, drift, o.TabID),
		}}
		opaque = true

	case InsertTableColumn:
		if err = checkCell(o.Cell); err != nil {
			break
		}
		req = &docs.Request{InsertTableColumn: &docs.InsertTableColumnRequest{
			TableCellLocation: docsCell(o.Cell, drift, o.TabID),
			InsertRight:       o.Right,
		}}
		opaque = true

	case DeleteTableColumn:
		if err = checkCell(o.Cell); err != nil {
			break
		}
		req = &docs.Request{DeleteTableColumn: &docs.DeleteTableColumnRequest{
			TableCellLocation: docsCell(o.Cell, drift, o.TabID),
		}}
		opaque = true

	case MergeTableCells:
		if err = checkCell(o.Cell); err != nil {
			break
		}
		if err = checkSpans(o.RowSpan, o.ColumnSpan); err != nil {
			break
		}
		if o.RowSpan*o.ColumnSpan < 2 {
			err = validationf("merging needs at least two cells")
			break
		}
		req = &docs.Request{MergeTableCells: &docs.MergeTableCellsRequest{
			TableRange: docsTableRange(o.Cell, o.RowSpan, o.ColumnSpan, drift, o.TabID),
		}}
		opaque = true

	case UnmergeTableCells:
		if err = checkCell(o.Cell); err != nil {
			break
		}
		if err = checkSpans(o.RowSpan, o.ColumnSpan); err != nil {
			break
		}
		req = &docs.Request{UnmergeTableCells: &docs.UnmergeTableCellsRequest{
			TableRange: docsTableRange(o.Cell, o.RowSpan, o.ColumnSpan, drift, o.TabID),
		}}
		opaque = true

	case UpdateTableCellStyle:
		var (
			style  *docs.TableCellStyle
			fields []string
		)
		if style, fields, err = cellStyleFields(o.Style); err != nil {
			break
		}
		if err = checkCell(o.Cell); err != nil {
			break
		}
		if err = checkSpans(o.RowSpan, o.ColumnSpan); err != nil {
			break
		}
		req = &docs.Request{UpdateTableCellStyle: &docs.UpdateTableCellStyleRequest{
			TableRange:     docsTableRange(o.Cell, o.RowSpan, o.ColumnSpan, drift, o.TabID),
			TableCellStyle: style,
			Fields:         strings.Join(fields, ","),
		}}

	case nil:
		err = validationf("missing operation")

	default:
		err = validationf("unsupported operation %T", op)
	}

	if err != nil {
		return st, nil, err
	}
	if opaque {
		return st.markOpaque(key), []*docs.Request{req}, nil
	}
	return st.add(key, delta), []*docs.Request{req}, nil
}

// positioned reports whether op carries document indexes.
func positioned(op Operation) bool {
	switch op.(type) {
	case nil, DeleteNamedRange, ReplaceAllText:
		return false
	}
	return true
}

// streamKey names the content stream op edits. Named range deletion is not
// tied to one stream and never changes length; replace_all_text without a
// tab edits every stream.
func streamKey(op Operation, snap *Snapshot) (string, error) {
	switch o := op.(type) {
	case nil, DeleteNamedRange:
		return "", nil
	case ReplaceAllText:
		if strings.TrimSpace(o.TabID) == "" {
			return allTabs, nil
		}
	}
	tabID := strings.TrimSpace(tabOf(op))
	if snap == nil {
		return tabID, nil
	}
	tab, err := snap.Tab(tabID)
	if err != nil {
		return "", err
	}
	return tab.ID, nil
}

// resolveTarget resolves a style target and applies the drift of its tab.
// Only explicit ranges can follow a length-changing operation in the same tab.
func resolveTarget(st State, key string, target Target, snap *Snapshot, tabID string) (Range, string, error) {
	if target != nil && target.needsSnapshot() {
		if st.Shifted(key) {
			return Range{}, "", validationf("text or paragraph targets cannot follow an operation that changes the length of the same tab in this batch; split the batch so the document is fetched again")
		}
		r, err := Resolve(target, snap, tabID)
		if err != nil {
			return Range{}, "", err
		}
		tab, err := snap.Tab(tabID)
		if err != nil {
			return Range{}, "", err
		}
		return r, tab.ID, nil
	}
	r, err := Resolve(target, snap, tabID)
	if err != nil {
		return Range{}, "", err
	}
	return r.shift(st.Drift(key)), tabID, nil
}

// TableSize is the number of index positions an inserted rows x cols table
// occupies, including the newline inserted in front of it.
func TableSize(rows, cols int64) int64 {
	return 2 + rows*(1+2*cols)
}

// BulletPreset maps a list type to a bullet glyph preset. Unknown values
// are passed through so callers can name any preset the service accepts.
func BulletPreset(listType string) string {
	switch strings.ToUpper(strings.TrimSpace(listType)) {
	case "", "UNORDERED", "BULLET", "BULLETS":
		return "BULLET_DISC_CIRCLE_SQUARE"
	case "ORDERED", "NUMBERED":
		return "NUMBERED_DECIMAL_ALPHA_ROMAN"
	case "CHECKBOX", "CHECKLIST":
		return "BULLET_CHECKBOX"
	}
	return strings.ToUpper(strings.TrimSpace(listType))
}

func imageSize(width, height Opt[float64]) (*docs.Size, error) {
	w, hasW := width.Get()
	h, hasH := height.Get()
	if !hasW && !hasH {
		return nil, nil
	}
	size := &docs.Size{}
	if hasW {
		if w <= 0 {
			return nil, validationf("image width must be > 0, got %v", w)
		}
		size.Width = points(w)
	}
	if hasH {
		if h <= 0 {
			return nil, validationf("image height must be > 0, got %v", h)
		}
		size.Height = points(h)
	}
	return size, nil
}
