package utils

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText trims surrounding whitespace and converts s to Unicode NFC,
// so visually identical input is stored byte-identical.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
