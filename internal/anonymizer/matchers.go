package anonymizer

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"
)

// Matcher finds one category of sensitive value in a text, replaces each
// occurrence with its token and records the token in the mapping.
type Matcher interface {
	Label() Label
	Apply(text string, m *Mapping) (string, error)
}

// matchTimeout bounds a single regex scan. The patterns are linear on real
// documents; the limit only guards against pathological input.
const matchTimeout = 5 * time.Second

// regexMatcher replaces every match of re with a token.
type regexMatcher struct {
	label Label
	re    *regexp2.Regexp

	// accept, if set, can veto a match; vetoed matches stay as they are.
	accept func(match string) bool
	// split, if set, separates the value to tokenize from trailing text that
	// must stay outside the token.
	split func(match string) (value, rest string)
}

func (rm *regexMatcher) Label() Label { return rm.label }

func (rm *regexMatcher) Apply(text string, m *Mapping) (string, error) {
	return rm.re.ReplaceFunc(text, func(match regexp2.Match) string {
		found := match.String()
		if rm.accept != nil && !rm.accept(found) {
			return found
		}
		value, rest := found, ""
		if rm.split != nil {
			value, rest = rm.split(found)
		}
		token := MakePlaceholder(rm.label, value)
		m.record(token, value)
		return token + rest
	}, -1, -1)
}

func mustCompile(expr string, opts regexp2.RegexOptions) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, opts)
	re.MatchTimeout = matchTimeout
	return re
}

// newKeywordMatcher builds a single alternation over words, longest first,
// so "Orange Mobile" wins over "Orange" and a keyword never matches inside a
// token emitted for a longer one. Keywords must not touch another letter:
// "Orangeade" does not contain the keyword "Orange".
func newKeywordMatcher(words []string) (Matcher, error) {
	if len(words) == 0 {
		return noopMatcher(LabelKeyword), nil
	}
	sorted := longestFirst(words)
	alts := make([]string, len(sorted))
	for i, w := range sorted {
		alts[i] = regexp2.Escape(w)
	}
	expr := `(?<![A-Za-z])(?:` + strings.Join(alts, "|") + `)(?![A-Za-z])`
	re, err := regexp2.Compile(expr, regexp2.IgnoreCase)
	if err != nil {
		return nil, fmt.Errorf("compile keyword pattern: %w", err)
	}
	re.MatchTimeout = matchTimeout
	return &regexMatcher{label: LabelKeyword, re: re}, nil
}

type noopMatcher Label

func (n noopMatcher) Label() Label { return Label(n) }

func (n noopMatcher) Apply(text string, _ *Mapping) (string, error) { return text, nil }

// Street, optional number, postcode and city, e.g.
// "Avenue Louise 54, 1050 Bruxelles" or "Rue Neuve, 1000 Bruxelles".
var addressMatcher = &regexMatcher{
	label: LabelAddress,
	re: mustCompile(
		`\b\p{Lu}\p{Ll}+(?:\s\p{Lu}\p{Ll}+)?(?:,?\s+\d+[a-z]?)?\s*,\s*\d{4}\s+\p{Lu}\p{Ll}+(?:-\p{Lu}\p{Ll}+)*\b`,
		regexp2.None),
}

// International numbers (+32 / 0032 prefix) and Belgian/French local
// numbers in 2-3 digit groups ("0800 35 757", "02 123 45 67", "0475.12.34.56").
var phoneMatcher = &regexMatcher{
	label: LabelPhone,
	re: mustCompile(
		`(?<!\d)(?:\+|00)\d{1,3}[\s\-]?(?:\d{1,2}[\s\-]?){4,6}\d{2,4}(?!\d)`+
			`|\b0\d{1,3}(?:[ .\-]\d{2,3}){2,4}\b`+
			`|\b0\d{8,9}\b`,
		regexp2.None),
	accept: func(match string) bool {
		if !strings.HasPrefix(match, "0") || strings.HasPrefix(match, "00") {
			return true
		}
		// short local groupings are dates or references, not phone numbers
		return countDigits(match) >= 9
	},
}

var dateMatcher = &regexMatcher{
	label: LabelDate,
	re:    mustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`, regexp2.None),
}

// Token hashes follow an underscore, a word character, so \b never fires
// inside a token and earlier tokens are left alone.
var numberMatcher = &regexMatcher{
	label: LabelNumber,
	re:    mustCompile(`\b\d+\b`, regexp2.None),
}

// Capitalized phrase on one line ending in a legal-entity suffix.
// A trailing comma stays outside the token.
var companyMatcher = &regexMatcher{
	label: LabelCompany,
	re: mustCompile(
		`\b\p{Lu}[\w \t'\-.&]*[ \t]+(?i:s\.a\.|(?:sas|sarl|srl|inc|ltd|llc|sprl|asbl|gmbh|nv|bvba)\b),?`,
		regexp2.None),
	split: func(match string) (string, string) {
		if strings.HasSuffix(match, ",") {
			return strings.TrimRight(match, ", "), ","
		}
		return match, ""
	},
}

// fixedMatchers run after the keyword matcher, in this order.
var fixedMatchers = []Matcher{
	addressMatcher,
	phoneMatcher,
	dateMatcher,
	numberMatcher,
	companyMatcher,
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
