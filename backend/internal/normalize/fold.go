package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	trailingAcronym = regexp.MustCompile(`^(.*?)\s*\(\s*([A-Za-z][A-Za-z0-9\-&]{1,11})\s*\)\s*$`)
	spaceRun        = regexp.MustCompile(`\s+`)
)

// Fold produces the lookup key of a name: NFC, lower case, hyphens and
// underscores as spaces, other punctuation removed, whitespace collapsed.
func Fold(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-' || r == '_' || r == '/' || unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '&':
			b.WriteString(" and ")
		}
	}
	return strings.TrimSpace(spaceRun.ReplaceAllString(b.String(), " "))
}

// Clean tidies a raw extracted name for display and storage: NFC, trimmed,
// inner whitespace collapsed, wrapping quotes removed.
func Clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
	s = strings.Trim(s, "\"'`“”‘’.,;:")
	return strings.TrimSpace(s)
}

// SplitAcronym separates "Resource-Based View (RBV)" into its long form and
// acronym. ok is false when there is no trailing parenthetical.
func SplitAcronym(s string) (long, acronym string, ok bool) {
	m := trailingAcronym.FindStringSubmatch(s)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return s, "", false
	}
	return strings.TrimSpace(m[1]), m[2], true
}

// Initialism returns the upper-case initials of a multi-word name,
// "Technology Acceptance Model" -> "TAM". Single words yield "".
func Initialism(s string) string {
	words := strings.Fields(Fold(s))
	if len(words) < 2 {
		return ""
	}
	var b strings.Builder
	for _, w := range words {
		if w == "of" || w == "the" || w == "and" || w == "in" || w == "for" {
			continue
		}
		r := []rune(w)
		b.WriteRune(unicode.ToUpper(r[0]))
	}
	if b.Len() < 2 {
		return ""
	}
	return b.String()
}
