package domain

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	slugMaxLen   = 20
	slugFallback = "usuario"
)

// Slug lower-cases name, folds accents, strips everything that is not an
// ASCII letter or digit, and truncates to 20 characters. "Juan Pérez"
// becomes "juanperez".
func Slug(name string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == slugMaxLen {
				break
			}
		}
	}
	if b.Len() == 0 {
		return slugFallback
	}
	return b.String()
}

// ArchiveID is the identity of the n-th completed cart of a user named name.
func ArchiveID(name string, n int) string {
	return Slug(name) + "-compra" + strconv.Itoa(n)
}

// DisambiguatedArchiveID is used when ArchiveID is already owned by a
// different user with the same slug.
func DisambiguatedArchiveID(name string, n int, userID string) string {
	suffix := Slug(userID)
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return ArchiveID(name, n) + "-" + suffix
}
