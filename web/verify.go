package web

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const maxTextLength = 100

var allowedSafeSymbols = map[rune]bool{
	'_': true,
	'-': true,
	'.': true,
	'&': true,
	'\'': true,
	' ': true,
}

// isSafeText accepts letters, digits and a few harmless symbols.
func isSafeText(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !allowedSafeSymbols[r] {
			return false
		}
	}
	return true
}

// verifyLabel checks short user-supplied labels like expense categories.
func verifyLabel(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && len([]rune(s)) <= maxTextLength && isSafeText(s)
}

// verifySearch allows an empty query.
func verifySearch(s string) bool {
	return len([]rune(s)) <= maxTextLength && isSafeText(s)
}

// parseTime reads RFC 3339, a plain YYYY-MM-DD date or a JavaScript
// millisecond timestamp.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	if unixMilli, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(unixMilli).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q: want RFC 3339, YYYY-MM-DD or epoch milliseconds", s)
}

// parseOptionalTime maps nil and "" to nil.
func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
