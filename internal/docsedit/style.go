package docsedit

import (
	"strconv"
	"strings"

	"google.golang.org/api/docs/v1"
)

// TextStyle is a character-level style intent. Only set fields are sent.
type TextStyle struct {
	Bold            Opt[bool]
	Italic          Opt[bool]
	Underline       Opt[bool]
	Strikethrough   Opt[bool]
	FontSize        Opt[float64]
	FontFamily      Opt[string]
	ForegroundColor Opt[string]
	BackgroundColor Opt[string]
	// Link is a URL, or "#bookmark" for an in-document bookmark.
	// An empty string removes an existing link.
	Link Opt[string]
}

func (s TextStyle) IsEmpty() bool {
	return !s.Bold.IsSet() && !s.Italic.IsSet() && !s.Underline.IsSet() &&
		!s.Strikethrough.IsSet() && !s.FontSize.IsSet() && !s.FontFamily.IsSet() &&
		!s.ForegroundColor.IsSet() && !s.BackgroundColor.IsSet() && !s.Link.IsSet()
}

// ParagraphStyle is a paragraph-level style intent. Magnitudes are points.
type ParagraphStyle struct {
	Alignment      Opt[string]
	IndentStart    Opt[float64]
	IndentEnd      Opt[float64]
	SpaceAbove     Opt[float64]
	SpaceBelow     Opt[float64]
	NamedStyleType Opt[string]
	KeepWithNext   Opt[bool]
}

func (s ParagraphStyle) IsEmpty() bool {
	return !s.Alignment.IsSet() && !s.IndentStart.IsSet() && !s.IndentEnd.IsSet() &&
		!s.SpaceAbove.IsSet() && !s.SpaceBelow.IsSet() && !s.NamedStyleType.IsSet() &&
		!s.KeepWithNext.IsSet()
}

var alignments = map[string]string{
	"START":     "START",
	"LEFT":      "START",
	"CENTER":    "CENTER",
	"END":       "END",
	"RIGHT":     "END",
	"JUSTIFIED": "JUSTIFIED",
	"JUSTIFY":   "JUSTIFIED",
}

var namedStyleTypes = map[string]bool{
	"NORMAL_TEXT": true,
	"TITLE":       true,
	"SUBTITLE":    true,
	"HEADING_1":   true,
	"HEADING_2":   true,
	"HEADING_3":   true,
	"HEADING_4":   true,
	"HEADING_5":   true,
	"HEADING_6":   true,
}

// BuildTextStyle returns an updateTextStyle request for r. The field mask
// lists exactly the set fields, in a fixed order.
func BuildTextStyle(r Range, tabID string, s TextStyle) (*docs.Request, error) {
	style, fields, err := textStyleFields(s)
	if err != nil {
		return nil, err
	}
	return &docs.Request{UpdateTextStyle: &docs.UpdateTextStyleRequest{
		Range:     docsRange(r, tabID),
		TextStyle: style,
		Fields:    strings.Join(fields, ","),
	}}, nil
}

// BuildParagraphStyle returns an updateParagraphStyle request for r.
func BuildParagraphStyle(r Range, tabID string, s ParagraphStyle) (*docs.Request, error) {
	style, fields, err := paragraphStyleFields(s)
	if err != nil {
		return nil, err
	}
	return &docs.Request{UpdateParagraphStyle: &docs.UpdateParagraphStyleRequest{
		Range:          docsRange(r, tabID),
		ParagraphStyle: style,
		Fields:         strings.Join(fields, ","),
	}}, nil
}

func textStyleFields(s TextStyle) (*docs.TextStyle, []string, error) {
	if s.IsEmpty() {
		return nil, nil, validationf("text style sets no fields")
	}
	style := &docs.TextStyle{}
	var fields []string

	setBool := func(o Opt[bool], mask, field string, dst *bool) {
		v, ok := o.Get()
		if !ok {
			return
		}
		*dst = v
		fields = append(fields, mask)
		if !v {
			style.ForceSendFields = append(style.ForceSendFields, field)
		}
	}
	setBool(s.Bold, "bold", "Bold", &style.Bold)
	setBool(s.Italic, "italic", "Italic", &style.Italic)
	setBool(s.Underline, "underline", "Underline", &style.Underline)
	setBool(s.Strikethrough, "strikethrough", "Strikethrough", &style.Strikethrough)

	if v, ok := s.FontSize.Get(); ok {
		if v <= 0 {
			return nil, nil, validationf("font size must be > 0, got %v", v)
		}
		style.FontSize = points(v)
		fields = append(fields, "fontSize")
	}
	if v, ok := s.FontFamily.Get(); ok {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil, validationf("font family must not be empty")
		}
		style.WeightedFontFamily = &docs.WeightedFontFamily{FontFamily: v}
		fields = append(fields, "weightedFontFamily")
	}
	if v, ok := s.ForegroundColor.Get(); ok {
		c, err := optionalColor(v)
		if err != nil {
			return nil, nil, err
		}
		style.ForegroundColor = c
		fields = append(fields, "foregroundColor")
	}
	if v, ok := s.BackgroundColor.Get(); ok {
		c, err := optionalColor(v)
		if err != nil {
			return nil, nil, err
		}
		style.BackgroundColor = c
		fields = append(fields, "backgroundColor")
	}
	if v, ok := s.Link.Get(); ok {
		v = strings.TrimSpace(v)
		switch {
		case v == "":
			// Leaving Link nil with "link" in the mask clears it.
		case strings.HasPrefix(v, "#"):
			style.Link = &docs.Link{BookmarkId: v[1:]}
		default:
			style.Link = &docs.Link{Url: v}
		}
		fields = append(fields, "link")
	}
	return style, fields, nil
}

func paragraphStyleFields(s ParagraphStyle) (*docs.ParagraphStyle, []string, error) {
	if s.IsEmpty() {
		return nil, nil, validationf("paragraph style sets no fields")
	}
	style := &docs.ParagraphStyle{}
	var fields []string

	if v, ok := s.Alignment.Get(); ok {
		a, known := alignments[strings.ToUpper(strings.TrimSpace(v))]
		if !known {
			return nil, nil, validationf("invalid alignment %q (expected START, CENTER, END or JUSTIFIED)", v)
		}
		style.Alignment = a
		fields = append(fields, "alignment")
	}

	magnitudes := []struct {
		opt  Opt[float64]
		mask string
		dst  **docs.Dimension
	}{
		{s.IndentStart, "indentStart", &style.IndentStart},
		{s.IndentEnd, "indentEnd", &style.IndentEnd},
		{s.SpaceAbove, "spaceAbove", &style.SpaceAbove},
		{s.SpaceBelow, "spaceBelow", &style.SpaceBelow},
	}
	for _, m := range magnitudes {
		v, ok := m.opt.Get()
		if !ok {
			continue
		}
		if v < 0 {
			return nil, nil, validationf("%s must be >= 0, got %v", m.mask, v)
		}
		*m.dst = points(v)
		fields = append(fields, m.mask)
	}

	if v, ok := s.NamedStyleType.Get(); ok {
		name := strings.ToUpper(strings.TrimSpace(v))
		if !namedStyleTypes[name] {
			return nil, nil, validationf("invalid named style type %q", v)
		}
		style.NamedStyleType = name
		fields = append(fields, "namedStyleType")
	}
	if v, ok := s.KeepWithNext.Get(); ok {
		style.KeepWithNext = v
		if !v {
			style.ForceSendFields = append(style.ForceSendFields, "KeepWithNext")
		}
		fields = append(fields, "keepWithNext")
	}
	return style, fields, nil
}

func points(v float64) *docs.Dimension {
	d := &docs.Dimension{Magnitude: v, Unit: "PT"}
	if v == 0 {
		d.ForceSendFields = []string{"Magnitude"}
	}
	return d
}

func optionalColor(hex string) (*docs.OptionalColor, error) {
	rgb, err := ParseHexColor(hex)
	if err != nil {
		return nil, err
	}
	return &docs.OptionalColor{Color: &docs.Color{RgbColor: rgb}}, nil
}

// ParseHexColor parses "#RRGGBB", "RRGGBB" or the "#RGB" shorthand into
// components in [0, 1].
func ParseHexColor(hex string) (*docs.RgbColor, error) {
	raw := strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(raw) == 3 {
		raw = string([]byte{raw[0], raw[0], raw[1], raw[1], raw[2], raw[2]})
	}
	if len(raw) != 6 {
		return nil, validationf("invalid color %q (expected #RRGGBB)", hex)
	}
	v, err := strconv.ParseUint(raw, 16, 24)
	if err != nil {
		return nil, validationf("invalid color %q (expected #RRGGBB)", hex)
	}
	return &docs.RgbColor{
		Red:             float64((v>>16)&0xFF) / 255,
		Green:           float64((v>>8)&0xFF) / 255,
		Blue:            float64(v&0xFF) / 255,
		ForceSendFields: []string{"Red", "Green", "Blue"},
	}, nil
}

func docsRange(r Range, tabID string) *docs.Range {
	return &docs.Range{StartIndex: r.Start, EndIndex: r.End, TabId: tabID}
}

func docsLocation(index int64, tabID string) *docs.Location {
	return &docs.Location{Index: index, TabId: tabID}
}
