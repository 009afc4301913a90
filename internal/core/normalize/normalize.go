// Package normalize turns raw identifier and name strings into comparable
// forms. The empty string always means "absent" and never matches anything.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// PrimaryID keeps letters and digits only, uppercased.
func PrimaryID(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// SecondaryID keeps digits only.
func SecondaryID(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Name case-folds, drops punctuation and symbols, and collapses whitespace.
func Name(s string) string {
	s = folder.String(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Locality joins normalized city and state. Both must be present.
func Locality(city, state string) string {
	c, st := Name(city), Name(state)
	if c == "" || st == "" {
		return ""
	}
	return c + "," + st
}
