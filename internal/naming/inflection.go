package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/jinzhu/inflection"
)

// Pluralize converts a singular word to its plural form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Pluralize(word string) string {
	if override, ok := lookupOverride(n.config.PluralOverrides, word); ok {
		return override
	}
	return inflection.Plural(word)
}

// Singularize converts a plural word to its singular form.
// Checks custom overrides first, then falls back to the inflection library.
func (n *Namer) Singularize(word string) string {
	if override, ok := lookupOverride(n.config.SingularOverrides, word); ok {
		return override
	}
	return inflection.Singular(word)
}

// lookupOverride matches word exactly, then case-insensitively. A
// case-insensitive match keeps the capitalization of word's first letter so
// "Foot" maps through a "foot" override to "Feet".
func lookupOverride(overrides map[string]string, word string) (string, bool) {
	if len(overrides) == 0 || word == "" {
		return "", false
	}
	if override, ok := overrides[word]; ok {
		return override, true
	}
	lower := strings.ToLower(word)
	for from, to := range overrides {
		if strings.ToLower(from) != lower || to == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(word)
		if unicode.IsUpper(first) {
			r, size := utf8.DecodeRuneInString(to)
			return string(unicode.ToUpper(r)) + to[size:], true
		}
		return to, true
	}
	return "", false
}
