package anonymizer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Mapping records token → original value for one anonymization pass.
// Entries keep the order in which each token was first produced.
//
// A Mapping is filled by a single Anonymize call and only read afterwards;
// it is not safe for concurrent writes.
type Mapping struct {
	order  []string
	values map[string]string
}

// NewMapping returns an empty mapping.
func NewMapping() *Mapping {
	return &Mapping{values: make(map[string]string)}
}

// record stores token → original unless token is already known.
// Reports whether a new entry was added.
func (m *Mapping) record(token, original string) bool {
	if _, ok := m.values[token]; ok {
		return false
	}
	m.values[token] = original
	m.order = append(m.order, token)
	return true
}

// Add stores token → original unless token is already known.
// Used to rebuild a mapping sent back by a client.
func (m *Mapping) Add(token, original string) {
	m.record(token, original)
}

// Get returns the original value for token.
func (m *Mapping) Get(token string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m.values[token]
	return v, ok
}

// Len returns the number of entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.order)
}

// Tokens returns the tokens in first-occurrence order.
func (m *Mapping) Tokens() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Map returns a plain map copy of the entries.
func (m *Mapping) Map() map[string]string {
	out := make(map[string]string, m.Len())
	if m == nil {
		return out
	}
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the mapping as a JSON object in insertion order.
func (m *Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, tok := range m.Tokens() {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(tok)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(m.values[tok])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping key order.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	v, err := ParseJSON(data)
	if err != nil {
		return err
	}
	if v.Kind() != KindObject {
		return fmt.Errorf("mapping: expected JSON object, got %s", v.Kind())
	}
	*m = *NewMapping()
	for _, f := range v.Fields() {
		if f.Value.Kind() != KindString {
			return fmt.Errorf("mapping: value for %q is %s, want string", f.Key, f.Value.Kind())
		}
		m.record(f.Key, f.Value.Str())
	}
	return nil
}
