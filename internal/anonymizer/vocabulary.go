package anonymizer

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Vocabulary is an immutable list of keywords always anonymized as MOTCLE,
// on top of the words a caller supplies per request.
type Vocabulary struct {
	words []string
}

// NewVocabulary builds a vocabulary from words. Blank entries are dropped and
// case-insensitive duplicates collapse onto their first spelling.
func NewVocabulary(words ...string) Vocabulary {
	return Vocabulary{words: dedupe(words)}
}

// Words returns a copy of the vocabulary's keywords.
func (v Vocabulary) Words() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}

// Len reports the number of keywords.
func (v Vocabulary) Len() int { return len(v.words) }

// With returns a new vocabulary holding v's keywords followed by extra.
// v itself is left untouched.
func (v Vocabulary) With(extra ...string) Vocabulary {
	all := make([]string, 0, len(v.words)+len(extra))
	all = append(all, v.words...)
	all = append(all, extra...)
	return NewVocabulary(all...)
}

// defaultWords is the built-in commercial vocabulary: brand and product
// names, free-phone prefixes and numbers that identify the advertiser.
var defaultWords = []string{
	"Smart Data", "VOO", "Orange Mobile",
	"Go Light", "Go Plus", "Go Intense", "Go Extreme",
	"Avenue", "Diane Ickowicz", "d'Orange",
	"0800 35 757", "0800 355 32", "5000", "0800",
	"Fiber", "Start Fiber", "Zen Fiber", "Giga Fiber",
	"Sosh", "Telenet", "Proximus", "Zen", "Giga",
	"hey!", "B2B", "Love & Home", "Home", "Love",
	"Orange Satellite", "Nordnet", "satellite",
	"IT Roumanie", "Flybox", "Soho",
	"terminaison coaxiale", "coaxiale",
	"Orange SA", "MyOrange", "ORANGE Belgium",
	"My Orange", "Orange Thank You", "Orange",
}

// DefaultVocabulary returns the built-in vocabulary.
func DefaultVocabulary() Vocabulary {
	return NewVocabulary(defaultWords...)
}

func dedupe(words []string) []string {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		key := strings.ToLower(w)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, w)
	}
	return out
}

// longestFirst returns words sorted by descending length, ties broken
// lexically so the order is stable across runs.
func longestFirst(words []string) []string {
	out := make([]string, len(words))
	copy(out, words)
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(out[i]), utf8.RuneCountInString(out[j])
		if li != lj {
			return li > lj
		}
		return out[i] < out[j]
	})
	return out
}
