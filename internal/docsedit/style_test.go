package docsedit

import (
	"math"
	"slices"
	"testing"
)

func TestBuildTextStyle_FieldMaskOrder(t *testing.T) {
	req, err := BuildTextStyle(Range{Start: 2, End: 9}, "t.1", TextStyle{
		Link:            Some("https://example.com"),
		ForegroundColor: Some("#FF8000"),
		FontSize:        Some(14.0),
		Bold:            Some(false),
		FontFamily:      Some("Roboto"),
	})
	if err != nil {
		t.Fatalf("BuildTextStyle: %v", err)
	}
	u := req.UpdateTextStyle
	if u.Fields != "bold,fontSize,weightedFontFamily,foregroundColor,link" {
		t.Fatalf("fields: %q", u.Fields)
	}
	if u.Range.StartIndex != 2 || u.Range.EndIndex != 9 || u.Range.TabId != "t.1" {
		t.Fatalf("range: %+v", u.Range)
	}
	if u.TextStyle.Bold || !slices.Contains(u.TextStyle.ForceSendFields, "Bold") {
		t.Fatalf("bold=false must be sent explicitly: %+v", u.TextStyle)
	}
	if u.TextStyle.FontSize.Magnitude != 14 || u.TextStyle.FontSize.Unit != "PT" {
		t.Fatalf("font size: %+v", u.TextStyle.FontSize)
	}
	if u.TextStyle.WeightedFontFamily.FontFamily != "Roboto" {
		t.Fatalf("font family: %+v", u.TextStyle.WeightedFontFamily)
	}
	if u.TextStyle.Link.Url != "https://example.com" {
		t.Fatalf("link: %+v", u.TextStyle.Link)
	}
}

func TestBuildTextStyle_LinkVariants(t *testing.T) {
	req, err := BuildTextStyle(Range{1, 2}, "", TextStyle{Link: Some("#h.abc")})
	if err != nil {
		t.Fatalf("bookmark: %v", err)
	}
	if req.UpdateTextStyle.TextStyle.Link.BookmarkId != "h.abc" {
		t.Fatalf("bookmark link: %+v", req.UpdateTextStyle.TextStyle.Link)
	}

	req, err = BuildTextStyle(Range{1, 2}, "", TextStyle{Link: Some("")})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if req.UpdateTextStyle.TextStyle.Link != nil || req.UpdateTextStyle.Fields != "link" {
		t.Fatalf("clearing a link should send only the mask: %+v", req.UpdateTextStyle)
	}
}

func TestBuildParagraphStyle(t *testing.T) {
	req, err := BuildParagraphStyle(Range{Start: 1, End: 10}, "", ParagraphStyle{
		KeepWithNext:   Some(false),
		NamedStyleType: Some("title"),
		SpaceBelow:     Some(0.0),
		IndentStart:    Some(36.0),
		Alignment:      Some("justify"),
	})
	if err != nil {
		t.Fatalf("BuildParagraphStyle: %v", err)
	}
	u := req.UpdateParagraphStyle
	if u.Fields != "alignment,indentStart,spaceBelow,namedStyleType,keepWithNext" {
		t.Fatalf("fields: %q", u.Fields)
	}
	ps := u.ParagraphStyle
	if ps.Alignment != "JUSTIFIED" || ps.NamedStyleType != "TITLE" {
		t.Fatalf("enums: %+v", ps)
	}
	if ps.IndentStart.Magnitude != 36 || ps.IndentStart.Unit != "PT" {
		t.Fatalf("indent: %+v", ps.IndentStart)
	}
	if !slices.Contains(ps.SpaceBelow.ForceSendFields, "Magnitude") {
		t.Fatalf("zero magnitude must be sent: %+v", ps.SpaceBelow)
	}
	if !slices.Contains(ps.ForceSendFields, "KeepWithNext") {
		t.Fatalf("keepWithNext=false must be sent: %+v", ps)
	}
}

func TestBuildStyle_EmptyIntent(t *testing.T) {
	if _, err := BuildTextStyle(Range{1, 2}, "", TextStyle{}); !IsValidation(err) {
		t.Fatalf("text: expected ValidationError, got %v", err)
	}
	if _, err := BuildParagraphStyle(Range{1, 2}, "", ParagraphStyle{}); !IsValidation(err) {
		t.Fatalf("paragraph: expected ValidationError, got %v", err)
	}
}

func TestParseHexColor(t *testing.T) {
	cases := []struct {
		in      string
		r, g, b float64
	}{
		{"#FF8000", 1, 128.0 / 255, 0},
		{"ff8000", 1, 128.0 / 255, 0},
		{"#000000", 0, 0, 0},
		{"#abc", 0xaa / 255.0, 0xbb / 255.0, 0xcc / 255.0},
	}
	for _, tc := range cases {
		c, err := ParseHexColor(tc.in)
		if err != nil {
			t.Fatalf("ParseHexColor(%q): %v", tc.in, err)
		}
		if !near(c.Red, tc.r) || !near(c.Green, tc.g) || !near(c.Blue, tc.b) {
			t.Fatalf("ParseHexColor(%q) = %v,%v,%v", tc.in, c.Red, c.Green, c.Blue)
		}
	}

	for _, bad := range []string{"", "#", "#12345", "#1234567", "#GG0000", "red"} {
		if _, err := ParseHexColor(bad); !IsValidation(err) {
			t.Fatalf("ParseHexColor(%q): expected ValidationError, got %v", bad, err)
		}
	}
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
