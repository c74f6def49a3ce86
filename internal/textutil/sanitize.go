package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes name safe to use as a file name stem. Path
// separators, colons and asterisks become dashes; quotes, wildcards, angle
// brackets, pipes and control characters are dropped.
func SanitizeFileName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*':
			return '-'
		case '?', '"', '<', '>', '|':
			return -1
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return strings.TrimSpace(name)
}
