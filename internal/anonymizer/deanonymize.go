package anonymizer

import (
	"fmt"
	"strings"
)

// DeanonymizeText replaces every token of m found in text with its original
// value. Tokens are tried longest first and the output is never rescanned,
// so a restored value cannot be expanded again. Tokens unknown to m are
// left as they are.
func DeanonymizeText(text string, m *Mapping) string {
	if text == "" || m.Len() == 0 {
		return text
	}
	tokens := longestFirst(m.Tokens())
	pairs := make([]string, 0, 2*len(tokens))
	for _, tok := range tokens {
		pairs = append(pairs, tok, m.values[tok])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// DeanonymizeValue restores every string leaf of v. Object keys, array order
// and non-string leaves are kept unchanged.
func DeanonymizeValue(v Value, m *Mapping) Value {
	if m.Len() == 0 {
		return v
	}
	return v.Map(func(s string) string { return DeanonymizeText(s, m) })
}

// DeanonymizeJSON parses a JSON document, restores its string leaves and
// encodes it again, keeping key order.
func DeanonymizeJSON(data []byte, m *Mapping) ([]byte, error) {
	v, err := ParseJSON(data)
	if err != nil {
		return nil, fmt.Errorf("deanonymize json: %w", err)
	}
	return DeanonymizeValue(v, m).MarshalJSON()
}
