package protocol

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// SanitizeName folds a client-supplied display name to a printable,
// NFKC-normalized form of at most PlayerNameLen runes. An empty result falls
// back to fallback.
func SanitizeName(raw, fallback string) string {
	folded := norm.NFKC.String(width.Fold.String(raw))

	var b strings.Builder
	count := 0
	lastSpace := true
	for _, r := range folded {
		if count == PlayerNameLen {
			break
		}
		if unicode.IsSpace(r) {
			if lastSpace {
				continue
			}
			r = ' '
			lastSpace = true
		} else {
			if !unicode.IsPrint(r) {
				continue
			}
			lastSpace = false
		}
		b.WriteRune(r)
		count++
	}

	name := strings.TrimRight(b.String(), " ")
	if name == "" {
		return fallback
	}
	return name
}
