// Package metrics provides lightweight, lock-minimal performance counters
// for the document service.
//
// Counters use sync/atomic so hot paths (request handling, token issuing)
// incur no mutex contention. Latency statistics use a single mutex per
// dimension; they are updated at most once per document or model call.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// knownLabels lists every token label the anonymizer can emit.
// Used to pre-populate the per-label counter map in New() so Snapshot() can
// iterate a fixed set without racing on map writes.
var knownLabels = []string{
	"MOTCLE", "ADRESSE", "TEL", "DATE", "NUMERO", "ENTR",
}

// Metrics holds all runtime counters for a running service instance.
// The zero value is NOT valid for the per-label token counters; use New().
type Metrics struct {
	// Request counters
	RequestsTotal   atomic.Int64
	RequestsExtract atomic.Int64 // extraction batches (extract, compare, generate)
	RequestsFailed  atomic.Int64 // requests answered with a 4xx/5xx status

	// Document counters
	DocumentsParsed atomic.Int64
	ParseErrors     atomic.Int64

	// Token volume
	TokensIssued   atomic.Int64
	TokensRestored atomic.Int64

	// Per-label issued counters.
	// The map is written only in New(); concurrent reads are safe without a lock.
	tokensByLabel map[string]*atomic.Int64

	// Model calls
	ModelCalls  atomic.Int64
	ModelErrors atomic.Int64

	// Latency statistics (mutex-guarded because they accumulate floats)
	anonMu   sync.Mutex
	anonStat latencyStats

	modelMu   sync.Mutex
	modelStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded and the per-label
// counter map pre-populated.
func New() *Metrics {
	m := &Metrics{
		startTime:     time.Now(),
		tokensByLabel: make(map[string]*atomic.Int64, len(knownLabels)),
	}
	for _, l := range knownLabels {
		m.tokensByLabel[l] = new(atomic.Int64)
	}
	return m
}

// RecordToken counts one newly issued token. Unknown labels still count
// towards the total but get no per-label entry.
func (m *Metrics) RecordToken(label string) {
	m.TokensIssued.Add(1)
	if c, ok := m.tokensByLabel[label]; ok {
		c.Add(1)
	}
}

// RecordAnonLatency records the duration of one anonymization pass.
func (m *Metrics) RecordAnonLatency(d time.Duration) {
	m.anonMu.Lock()
	m.anonStat.record(float64(d.Microseconds()) / 1000.0)
	m.anonMu.Unlock()
}

// RecordModelLatency records the round-trip time of one model call.
func (m *Metrics) RecordModelLatency(d time.Duration) {
	m.modelMu.Lock()
	m.modelStat.record(float64(d.Microseconds()) / 1000.0)
	m.modelMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.anonMu.Lock()
	anon := m.anonStat.snapshot()
	m.anonMu.Unlock()

	m.modelMu.Lock()
	model := m.modelStat.snapshot()
	m.modelMu.Unlock()

	byLabel := make(map[string]int64, len(m.tokensByLabel))
	for l, c := range m.tokensByLabel {
		if n := c.Load(); n > 0 {
			byLabel[l] = n
		}
	}

	start := m.startTime
	if start.IsZero() {
		start = time.Now()
	}

	return Snapshot{
		Requests: RequestSnapshot{
			Total:   m.RequestsTotal.Load(),
			Extract: m.RequestsExtract.Load(),
			Failed:  m.RequestsFailed.Load(),
		},
		Documents: DocumentSnapshot{
			Parsed: m.DocumentsParsed.Load(),
			Errors: m.ParseErrors.Load(),
		},
		Tokens: TokenSnapshot{
			Issued:   m.TokensIssued.Load(),
			Restored: m.TokensRestored.Load(),
			ByLabel:  byLabel,
		},
		Model: ModelSnapshot{
			Calls:  m.ModelCalls.Load(),
			Errors: m.ModelErrors.Load(),
		},
		Latency: LatencyGroup{
			AnonymizationMs: anon,
			ModelMs:         model,
		},
		UptimeSecs: time.Since(start).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Requests   RequestSnapshot  `json:"requests"`
	Documents  DocumentSnapshot `json:"documents"`
	Tokens     TokenSnapshot    `json:"tokens"`
	Model      ModelSnapshot    `json:"model"`
	Latency    LatencyGroup     `json:"latency"`
	UptimeSecs float64          `json:"uptimeSecs"`
}

// RequestSnapshot holds request-level counters.
type RequestSnapshot struct {
	Total   int64 `json:"total"`
	Extract int64 `json:"extract"`
	Failed  int64 `json:"failed"`
}

// DocumentSnapshot holds parser counters.
type DocumentSnapshot struct {
	Parsed int64 `json:"parsed"`
	Errors int64 `json:"errors"`
}

// TokenSnapshot holds token volume.
type TokenSnapshot struct {
	Issued   int64 `json:"issued"`
	Restored int64 `json:"restored"`

	// Only labels with non-zero counts appear.
	ByLabel map[string]int64 `json:"byLabel,omitempty"`
}

// ModelSnapshot holds model call counters.
type ModelSnapshot struct {
	Calls  int64 `json:"calls"`
	Errors int64 `json:"errors"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	AnonymizationMs LatencySnapshot `json:"anonymizationMs"`
	ModelMs         LatencySnapshot `json:"modelMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
