package textutil

import "strings"

// ExtractBetween returns the substring of `s` after the first
// occurrence of `before` and up to the following occurrence of `after`.
// An empty `after` extends the slice to the end of the string. The
// second return value is false when `before` is absent.
func ExtractBetween(s, before, after string) (string, bool) {
	start := strings.Index(s, before)
	if start == -1 {
		return "", false
	}
	start += len(before)

	if after == "" {
		return s[start:], true
	}
	end := strings.Index(s[start:], after)
	if end == -1 {
		return s[start:], true
	}
	return s[start : start+end], true
}

// TruncateRunes hard-limits `s` to `max` runes. When the limit is
// exceeded the marker is appended and counts against the limit, so the
// result is always exactly `max` runes long in the truncated case.
func TruncateRunes(s string, max int, marker string) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	markerRunes := []rune(marker)
	if len(markerRunes) >= max {
		return string(markerRunes[:max])
	}
	return string(runes[:max-len(markerRunes)]) + marker
}
