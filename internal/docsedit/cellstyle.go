package docsedit

import (
	"strings"

	"google.golang.org/api/docs/v1"
)

// CellBorder is one side of a cell border. Color and width are set together.
type CellBorder struct {
	Color Opt[string]
	Width Opt[float64]
}

func (b CellBorder) isSet() bool { return b.Color.IsSet() || b.Width.IsSet() }

// CellStyle is a table cell style intent. Magnitudes are points.
type CellStyle struct {
	BackgroundColor Opt[string]
	PaddingTop      Opt[float64]
	PaddingBottom   Opt[float64]
	PaddingLeft     Opt[float64]
	PaddingRight    Opt[float64]
	BorderTop       CellBorder
	BorderBottom    CellBorder
	BorderLeft      CellBorder
	BorderRight     CellBorder
}

func (s CellStyle) IsEmpty() bool {
	return !s.BackgroundColor.IsSet() && !s.PaddingTop.IsSet() && !s.PaddingBottom.IsSet() &&
		!s.PaddingLeft.IsSet() && !s.PaddingRight.IsSet() && !s.BorderTop.isSet() &&
		!s.BorderBottom.isSet() && !s.BorderLeft.isSet() && !s.BorderRight.isSet()
}

func cellStyleFields(s CellStyle) (*docs.TableCellStyle, []string, error) {
	style := &docs.TableCellStyle{}
	var fields []string

	if v, ok := s.BackgroundColor.Get(); ok {
		c, err := optionalColor(v)
		if err != nil {
			return nil, nil, err
		}
		style.BackgroundColor = c
		fields = append(fields, "backgroundColor")
	}

	paddings := []struct {
		name string
		v    Opt[float64]
		dst  **docs.Dimension
	}{
		{"paddingTop", s.PaddingTop, &style.PaddingTop},
		{"paddingBottom", s.PaddingBottom, &style.PaddingBottom},
		{"paddingLeft", s.PaddingLeft, &style.PaddingLeft},
		{"paddingRight", s.PaddingRight, &style.PaddingRight},
	}
	for _, p := range paddings {
		v, ok := p.v.Get()
		if !ok {
			continue
		}
		if v < 0 {
			return nil, nil, validationf("%s must be >= 0, got %v", p.name, v)
		}
		*p.dst = points(v)
		fields = append(fields, p.name)
	}

	borders := []struct {
		name string
		b    CellBorder
		dst  **docs.TableCellBorder
	}{
		{"borderTop", s.BorderTop, &style.BorderTop},
		{"borderBottom", s.BorderBottom, &style.BorderBottom},
		{"borderLeft", s.BorderLeft, &style.BorderLeft},
		{"borderRight", s.BorderRight, &style.BorderRight},
	}
	for _, b := range borders {
		if !b.b.isSet() {
			continue
		}
		color, hasColor := b.b.Color.Get()
		width, hasWidth := b.b.Width.Get()
		if !hasColor || !hasWidth {
			return nil, nil, validationf("%s needs both a color and a width", b.name)
		}
		if width < 0 {
			return nil, nil, validationf("%s width must be >= 0, got %v", b.name, width)
		}
		c, err := optionalColor(color)
		if err != nil {
			return nil, nil, err
		}
		*b.dst = &docs.TableCellBorder{Color: c, Width: points(width), DashStyle: "SOLID"}
		fields = append(fields, b.name)
	}

	if len(fields) == 0 {
		return nil, nil, validationf("cell style has no fields set")
	}
	return style, fields, nil
}

func checkCell(c TableCell) error {
	if c.TableStart < 1 {
		return validationf("table start index must be >= 1, got %d", c.TableStart)
	}
	if c.Row < 0 || c.Column < 0 {
		return validationf("row and column indexes must be >= 0, got %d and %d", c.Row, c.Column)
	}
	return nil
}

func checkSpans(rows, cols int64) error {
	if rows < 1 || cols < 1 {
		return validationf("row and column spans must be >= 1, got %d and %d", rows, cols)
	}
	return nil
}

func docsCell(c TableCell, drift int64, tabID string) *docs.TableCellLocation {
	return &docs.TableCellLocation{
		TableStartLocation: docsLocation(c.TableStart+drift, tabID),
		RowIndex:           c.Row,
		ColumnIndex:        c.Column,
	}
}

func docsTableRange(c TableCell, rows, cols, drift int64, tabID string) *docs.TableRange {
	return &docs.TableRange{
		TableCellLocation: docsCell(c, drift, tabID),
		RowSpan:           rows,
		ColumnSpan:        cols,
	}
}

var sectionTypes = map[string]bool{
	"CONTINUOUS": true,
	"NEXT_PAGE":  true,
}

func sectionType(v string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(v))
	if t == "" {
		return "CONTINUOUS", nil
	}
	if !sectionTypes[t] {
		return "", validationf("invalid section type %q (expected CONTINUOUS or NEXT_PAGE)", v)
	}
	return t, nil
}
