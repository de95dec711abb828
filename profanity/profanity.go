// Package profanity matches configured terms in chat messages, including common leetspeak and
// separator obfuscations (w0rd, w-o-r-d, w_0 r d).
package profanity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Category classifies a matched term.
type Category string

const CategoryRacialSlur Category = "Racial slur"

// MatchKind tells whether the term matched verbatim or through obfuscation.
type MatchKind string

const (
	Exact      MatchKind = "exact"
	Obfuscated MatchKind = "obfuscated"
)

// Match describes the first term found in a message.
type Match struct {
	Term     string
	Kind     MatchKind
	Category Category
}

// lookalikes maps a letter to the characters commonly substituted for it.
var lookalikes = map[rune]string{
	'a': "a@4",
	'e': "e3",
	'i': "i1!",
	'o': "o0",
	's': "s5$",
	't': "t7",
}

const separator = `[\s\-_]*`

type compiledTerm struct {
	term       string
	exact      *regexp.Regexp
	obfuscated *regexp.Regexp
}

// Detector holds the precompiled patterns for a term list. It is safe for concurrent use.
type Detector struct {
	terms    []compiledTerm
	category Category
}

// NewDetector compiles patterns for each non-blank term. Terms are matched case-insensitively.
func NewDetector(terms []string) *Detector {
	d := &Detector{category: CategoryRacialSlur}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		d.terms = append(d.terms, compiledTerm{
			term:       t,
			exact:      regexp.MustCompile(`\b` + regexp.QuoteMeta(t) + `\b`),
			obfuscated: regexp.MustCompile(obfuscatedPattern(t)),
		})
	}
	return d
}

// Len returns the number of compiled terms.
func (d *Detector) Len() int { return len(d.terms) }

// obfuscatedPattern builds a pattern allowing look-alike substitutions per letter and separators
// between letters. Any non-alphanumeric character counts as a boundary so a leading or trailing
// symbol substitution (e.g. "$hit") still matches.
func obfuscatedPattern(term string) string {
	var parts []string
	for _, r := range term {
		if alts, ok := lookalikes[r]; ok {
			parts = append(parts, "["+regexp.QuoteMeta(alts)+"]")
			continue
		}
		if unicode.IsSpace(r) {
			continue
		}
		parts = append(parts, regexp.QuoteMeta(string(r)))
	}
	return `(?:^|[^a-z0-9])` + strings.Join(parts, separator) + `(?:$|[^a-z0-9])`
}

// Normalize lower-cases content and strips combining marks so accented look-alikes (é, ö) compare
// equal to their base letters.
func Normalize(content string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, content)
	if err != nil {
		out = content
	}
	return strings.ToLower(out)
}

// Check returns the first matching term. Terms are tried in configuration order, exact before
// obfuscated.
func (d *Detector) Check(content string) (Match, bool) {
	if len(d.terms) == 0 || strings.TrimSpace(content) == "" {
		return Match{}, false
	}
	text := Normalize(content)
	for _, t := range d.terms {
		if t.exact.MatchString(text) {
			return Match{Term: t.term, Kind: Exact, Category: d.category}, true
		}
		if t.obfuscated.MatchString(text) {
			return Match{Term: t.term, Kind: Obfuscated, Category: d.category}, true
		}
	}
	return Match{}, false
}
