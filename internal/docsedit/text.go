package docsedit

import "unicode/utf16"

// utf16Len returns the length of s in UTF-16 code units, the unit Docs
// indices are measured in.
func utf16Len(s string) int64 {
	if s == "" {
		return 0
	}
	return int64(len(utf16.Encode([]rune(s))))
}
