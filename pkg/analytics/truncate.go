package analytics

import "unicode/utf8"

// TruncateString shortens s to at most maxRunes runes. A maxRunes of zero
// or less disables truncation.
func TruncateString(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	i := 0
	for pos := range s {
		if i == maxRunes {
			return s[:pos]
		}
		i++
	}
	return s
}
