// Package people provides person identity normalization shared by the face
// sources. The photo app stores person names in mixed formats (slugs, display
// names with diacritics), so lookups normalize both sides to a common key.
package people

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics strips diacritical marks from a string (e.g. "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeKey normalizes a person name or slug for comparison: lowercase,
// no diacritics, dashes and underscores replaced by spaces, collapsed
// whitespace. "jan-novak" and "Jan Novák" normalize to the same key.
func NormalizeKey(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return strings.Join(strings.Fields(name), " ")
}
