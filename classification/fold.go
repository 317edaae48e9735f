package classification

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold приводит строку к нижнему регистру и убирает диакритику:
// "Itaú Unibanco" -> "itau unibanco".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// foldKey дополнительно схлопывает пробелы, используется для сравнения имен групп
func foldKey(s string) string {
	return strings.Join(strings.Fields(Fold(s)), " ")
}
