package timeparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyDate       = errors.New("empty date")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyDateTime   = errors.New("empty date/time")
	ErrInvalidDateTime = errors.New("invalid date/time")
	ErrEmptySince      = errors.New("empty since value")
	ErrInvalidSince    = errors.New("invalid since value")
)

// ParsedDateTime represents a parsed time expression and whether the input
// carried an explicit clock component.
type ParsedDateTime struct {
	Time    time.Time
	HasTime bool
}

// ParseDate parses a strict date in YYYY-MM-DD format.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptyDate
	}

	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}

	return t, nil
}

// ParseDateTimeOrDate accepts RFC3339 (with or without fractional seconds),
// an ISO-8601 numeric offset (-0800), YYYY-MM-DD, and local date-times
// without a zone.
func ParseDateTimeOrDate(value string, loc *time.Location) (ParsedDateTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ParsedDateTime{}, ErrEmptyDateTime
	}

	if loc == nil {
		loc = time.Local
	}

	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05-0700"} {
		if t, err := time.Parse(layout, value); err == nil {
			return ParsedDateTime{Time: t, HasTime: true}, nil
		}
	}

	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return ParsedDateTime{Time: t}, nil
	}

	for _, layout := range []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	} {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ParsedDateTime{Time: t, HasTime: true}, nil
		}
	}

	return ParsedDateTime{}, fmt.Errorf("%w: %q", ErrInvalidDateTime, value)
}

// ParseSince turns a "modified after" filter into an absolute UTC time.
// Supported: Go durations (36h), whole days (7d), YYYY-MM-DD and the
// layouts of ParseDateTimeOrDate.
func ParseSince(value string, now time.Time, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrEmptySince
	}

	if d, err := time.ParseDuration(value); err == nil {
		return now.Add(-d).UTC(), nil
	}

	if days, ok := strings.CutSuffix(value, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil && n >= 0 {
			return DaysBack(now, n), nil
		}
	}

	if t, err := ParseDate(value); err == nil {
		return t.UTC(), nil
	}

	if parsed, err := ParseDateTimeOrDate(value, loc); err == nil {
		return parsed.Time.UTC(), nil
	}

	return time.Time{}, fmt.Errorf("%w: %q (try: 7d, 36h, 2026-01-05 or an RFC3339 time)", ErrInvalidSince, value)
}

// DaysBack is now minus n calendar days, in UTC.
func DaysBack(now time.Time, n int) time.Time {
	return now.AddDate(0, 0, -n).UTC()
}

// FormatQueryTime renders t the way Drive search queries expect it.
func FormatQueryTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
