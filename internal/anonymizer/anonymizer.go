// Package anonymizer replaces commercially and personally identifying values
// in text with deterministic tokens and restores them afterwards.
//
// A pass runs an ordered pipeline of matchers over the text:
//  1. keywords (built-in vocabulary plus the caller's words)
//  2. postal addresses
//  3. phone numbers
//  4. dates
//  5. bare numbers
//  6. company names ending in a legal-entity suffix
//
// Each match becomes a token such as "[TEL_3f9a01]" and is recorded in the
// pass's Mapping. The order matters: later matchers see the tokens emitted by
// earlier ones and must not re-match them.
//
// Usage:
//
//	a := anonymizer.New(anonymizer.DefaultVocabulary())
//	anon, mapping, err := a.Anonymize(text, []string{"Samsung"})
//	// send anon to the model
//	restored := anonymizer.DeanonymizeText(reply, mapping)
package anonymizer

import (
	"fmt"
	"strings"
	"time"

	"docguard/internal/metrics"
)

// Anonymizer holds the vocabulary applied on every pass. It carries no
// per-request state and is safe for concurrent use.
type Anonymizer struct {
	vocab   Vocabulary
	extra   func() []string  // nil = no runtime keywords
	metrics *metrics.Metrics // nil = no metrics
}

// Option configures an Anonymizer.
type Option func(*Anonymizer)

// WithMetrics records latency and token counts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Anonymizer) { a.metrics = m }
}

// WithExtraWords adds the keywords returned by words to every pass. words is
// called once per pass and must return a snapshot the caller will not mutate.
func WithExtraWords(words func() []string) Option {
	return func(a *Anonymizer) { a.extra = words }
}

// New creates an Anonymizer that always anonymizes the words of vocab.
func New(vocab Vocabulary, opts ...Option) *Anonymizer {
	a := &Anonymizer{vocab: vocab}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Vocabulary returns the vocabulary the anonymizer was built with.
func (a *Anonymizer) Vocabulary() Vocabulary { return a.vocab }

// Pipeline returns the matchers for one pass, in application order.
// words are anonymized as keywords alongside the vocabulary and any
// runtime keywords.
func (a *Anonymizer) Pipeline(words []string) ([]Matcher, error) {
	vocab := a.vocab
	if a.extra != nil {
		vocab = vocab.With(a.extra()...)
	}
	kw, err := newKeywordMatcher(vocab.With(words...).words)
	if err != nil {
		return nil, err
	}
	pipeline := make([]Matcher, 0, len(fixedMatchers)+1)
	pipeline = append(pipeline, kw)
	pipeline = append(pipeline, fixedMatchers...)
	return pipeline, nil
}

// Anonymize replaces every sensitive value found in text with its token.
// It returns the anonymized text and the mapping needed to restore it.
// The same value (ignoring case) always yields the same token.
func (a *Anonymizer) Anonymize(text string, words []string) (string, *Mapping, error) {
	start := time.Now()
	mapping := NewMapping()
	if text == "" {
		return text, mapping, nil
	}

	pipeline, err := a.Pipeline(words)
	if err != nil {
		return "", nil, err
	}
	for _, m := range pipeline {
		text, err = m.Apply(text, mapping)
		if err != nil {
			return "", nil, fmt.Errorf("anonymize %s: %w", m.Label(), err)
		}
	}

	if a.metrics != nil {
		a.metrics.RecordAnonLatency(time.Since(start))
		for _, tok := range mapping.Tokens() {
			a.metrics.RecordToken(string(tokenLabel(tok)))
		}
	}
	return text, mapping, nil
}

// Restore is DeanonymizeText with restored tokens counted in metrics.
func (a *Anonymizer) Restore(text string, m *Mapping) string {
	if a.metrics != nil {
		a.metrics.TokensRestored.Add(int64(countTokens(text, m)))
	}
	return DeanonymizeText(text, m)
}

// RestoreValue is DeanonymizeValue with restored tokens counted in metrics.
func (a *Anonymizer) RestoreValue(v Value, m *Mapping) Value {
	if a.metrics == nil {
		return DeanonymizeValue(v, m)
	}
	return v.Map(func(s string) string { return a.Restore(s, m) })
}

// RestoreJSON is DeanonymizeJSON with restored tokens counted in metrics.
func (a *Anonymizer) RestoreJSON(data []byte, m *Mapping) ([]byte, error) {
	out, err := DeanonymizeJSON(data, m)
	if err != nil {
		return nil, err
	}
	if a.metrics != nil {
		a.metrics.TokensRestored.Add(int64(countTokens(string(data), m)))
	}
	return out, nil
}

// tokenLabel extracts LABEL from "[LABEL_hash]".
func tokenLabel(token string) Label {
	inner := strings.TrimSuffix(strings.TrimPrefix(token, "["), "]")
	if i := strings.LastIndexByte(inner, '_'); i > 0 {
		return Label(inner[:i])
	}
	return Label(inner)
}

func countTokens(text string, m *Mapping) int {
	n := 0
	for _, tok := range m.Tokens() {
		n += strings.Count(text, tok)
	}
	return n
}
