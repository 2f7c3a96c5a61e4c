// Package normalize turns captured text into the single-line form used for matching.
package normalize

import (
	"strings"
	"unicode"
)

// Text trims the input, joins its lines with a single space and collapses every
// remaining run of whitespace into one ASCII space.
func Text(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	lines := strings.Split(raw, "\n")
	for i, ln := range lines {
		lines[i] = strings.TrimSpace(ln)
	}
	joined := strings.Join(lines, " ")

	var b strings.Builder
	b.Grow(len(joined))
	space := false
	for _, r := range joined {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
				space = true
			}
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
