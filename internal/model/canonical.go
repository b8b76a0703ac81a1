package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var lower = cases.Lower(language.Und)

// CanonicalTypeID normalises an entity type id: surrounding whitespace is
// trimmed, the string is NFC normalised and lower-cased.
func CanonicalTypeID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return lower.String(norm.NFC.String(s))
}
