package docsedit

// Resolve turns a target into a concrete span of the snapshot's tab.
// An explicit range must satisfy 1 <= start < end <= length+1; the engine
// always fetches a snapshot for batches that carry one.
func Resolve(target Target, snap *Snapshot, tabID string) (Range, error) {
	switch t := target.(type) {
	case ExplicitRange:
		if err := checkSpan(t.Start, t.End, snap, tabID); err != nil {
			return Range{}, err
		}
		return Range{Start: t.Start, End: t.End}, nil

	case TextSearch:
		if t.Text == "" {
			return Range{}, validationf("text to find must not be empty")
		}
		if t.Instance < 1 {
			return Range{}, validationf("match instance must be >= 1, got %d", t.Instance)
		}
		tab, err := requireTab(snap, tabID)
		if err != nil {
			return Range{}, err
		}
		r, ok := tab.FindText(t.Text, t.Instance)
		if !ok {
			return Range{}, notFoundf("instance %d of %q not found", t.Instance, t.Text)
		}
		return r, nil

	case ContainingParagraph:
		if t.Offset < 1 {
			return Range{}, validationf("paragraph offset must be >= 1, got %d", t.Offset)
		}
		tab, err := requireTab(snap, tabID)
		if err != nil {
			return Range{}, err
		}
		r, ok := tab.ParagraphAt(t.Offset)
		if !ok {
			return Range{}, notFoundf("no paragraph contains index %d", t.Offset)
		}
		return r, nil

	case nil:
		return Range{}, validationf("missing target")
	}
	return Range{}, validationf("unsupported target %T", target)
}

func requireTab(snap *Snapshot, tabID string) (*TabContent, error) {
	if snap == nil {
		return nil, validationf("target requires the current document content")
	}
	return snap.Tab(tabID)
}

func checkRange(start, end int64) error {
	if start < 1 {
		return validationf("start index must be >= 1, got %d", start)
	}
	if end <= start {
		return validationf("end index %d must be greater than start index %d", end, start)
	}
	return nil
}

// checkSpan validates [start, end) and, given a snapshot, that end does not
// run past the end of the tab.
func checkSpan(start, end int64, snap *Snapshot, tabID string) error {
	if err := checkRange(start, end); err != nil {
		return err
	}
	if snap == nil {
		return nil
	}
	tab, err := snap.Tab(tabID)
	if err != nil {
		return err
	}
	if limit := tab.Length() + 1; end > limit {
		return validationf("end index %d is beyond the end of the tab (%d)", end, limit)
	}
	return nil
}

func checkIndex(index int64) error {
	if index < 1 {
		return validationf("index must be >= 1, got %d", index)
	}
	return nil
}
