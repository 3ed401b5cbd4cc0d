// Package management provides a lightweight HTTP API for runtime inspection
// of the running service and for the operator vocabulary.
//
// Endpoints:
//
//	GET  /status             - service health, model and vocabulary sizes
//	GET  /metrics            - counters and latency snapshot
//	GET  /vocabulary         - built-in and operator keywords
//	POST /vocabulary/add     - add an operator keyword {"word":"Acme Telecom"}
//	POST /vocabulary/remove  - remove an operator keyword {"word":"Acme Telecom"}
//
// Operator keywords are anonymized on top of the built-in vocabulary from
// the next request on, and survive restarts.
package management

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"docguard/internal/anonymizer"
	"docguard/internal/config"
	"docguard/internal/extractor"
	"docguard/internal/logger"
	"docguard/internal/metrics"
)

// maxWordLen bounds an operator keyword, in runes.
const maxWordLen = 100

// ErrInvalidWord is returned for keywords that are empty, too long,
// contain control characters or token brackets, or overlap the extractor's
// document separator.
var ErrInvalidWord = errors.New("invalid keyword")

// VocabularyRegistry holds the operator keywords. Words are unique ignoring
// case; the latest spelling wins. Changes are written through to the store.
type VocabularyRegistry struct {
	mu    sync.RWMutex
	words map[string]string // lower-cased → spelling
	store WordStore
	log   *logger.Logger
}

// NewVocabularyRegistry loads the registry from store. A nil store keeps
// the words in memory.
func NewVocabularyRegistry(store WordStore, log *logger.Logger) (*VocabularyRegistry, error) {
	if store == nil {
		store = NewMemoryStore()
	}
	stored, err := store.Load()
	if err != nil {
		return nil, err
	}
	r := &VocabularyRegistry{
		words: make(map[string]string, len(stored)),
		store: store,
		log:   log,
	}
	for _, w := range stored {
		r.words[strings.ToLower(w)] = w
	}
	if log != nil && len(stored) > 0 {
		log.Infof("vocabulary_load", "%d operator keywords", len(stored))
	}
	return r, nil
}

// Has reports whether word is registered, ignoring case.
func (r *VocabularyRegistry) Has(word string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.words[strings.ToLower(strings.TrimSpace(word))]
	return ok
}

// Add registers word and persists it. It returns the normalized word.
func (r *VocabularyRegistry) Add(word string) (string, error) {
	word = strings.TrimSpace(word)
	if !validWord(word) {
		return "", ErrInvalidWord
	}
	key := strings.ToLower(word)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Put(key, word); err != nil {
		return "", err
	}
	r.words[key] = word
	return word, nil
}

// Remove unregisters word, ignoring case. It reports whether it was present.
func (r *VocabularyRegistry) Remove(word string) (bool, error) {
	key := strings.ToLower(strings.TrimSpace(word))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.words[key]; !ok {
		return false, nil
	}
	if err := r.store.Delete(key); err != nil {
		return false, err
	}
	delete(r.words, key)
	return true, nil
}

// Words returns a sorted snapshot of the operator keywords. It is the
// source passed to anonymizer.WithExtraWords.
func (r *VocabularyRegistry) Words() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.words))
	for k := range r.words {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = r.words[k]
	}
	return out
}

// Len returns the number of operator keywords.
func (r *VocabularyRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.words)
}

// Close closes the underlying store.
func (r *VocabularyRegistry) Close() error {
	return r.store.Close()
}

func validWord(w string) bool {
	if w == "" || utf8.RuneCountInString(w) > maxWordLen {
		return false
	}
	for _, c := range w {
		if unicode.IsControl(c) || c == '[' || c == ']' {
			return false
		}
	}
	return !extractor.SplitterConflict(w)
}

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	builtin   anonymizer.Vocabulary
	vocab     *VocabularyRegistry
	token     string           // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics // nil = no metrics
	log       *logger.Logger
}

// New creates a management server. builtin is the vocabulary the anonymizer
// was built with; m and log may be nil.
func New(cfg *config.Config, builtin anonymizer.Vocabulary, vocab *VocabularyRegistry, m *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		builtin:   builtin,
		vocab:     vocab,
		token:     cfg.ManagementToken,
		metrics:   m,
		log:       log,
	}
	if s.token != "" && log != nil {
		log.Info("auth", "bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/vocabulary", s.handleVocabulary)
	mux.HandleFunc("/vocabulary/add", s.handleAddWord)
	mux.HandleFunc("/vocabulary/remove", s.handleRemoveWord)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			if s.log != nil {
				s.log.Warnf("auth", "unauthorized access from %s to %s", r.RemoteAddr, r.URL.Path)
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status     string `json:"status"`
		Uptime     string `json:"uptime"`
		ServerPort int    `json:"serverPort"`
		Model      struct {
			Name    string `json:"name"`
			Enabled bool   `json:"enabled"`
		} `json:"model"`
		Vocabulary struct {
			Builtin  int `json:"builtin"`
			Operator int `json:"operator"`
		} `json:"vocabulary"`
	}

	resp := response{
		Status:     "running",
		Uptime:     time.Since(s.startTime).Round(time.Second).String(),
		ServerPort: s.cfg.ServerPort,
	}
	resp.Model.Name = s.cfg.GeminiModel
	resp.Model.Enabled = s.cfg.GeminiAPIKey != ""
	resp.Vocabulary.Builtin = s.builtin.Len()
	resp.Vocabulary.Operator = s.vocab.Len()

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVocabulary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{
		"builtin":  s.builtin.Words(),
		"operator": s.vocab.Words(),
	})
}

func (s *Server) handleAddWord(w http.ResponseWriter, r *http.Request) {
	word, ok := readWord(w, r)
	if !ok {
		return
	}
	added, err := s.vocab.Add(word)
	switch {
	case errors.Is(err, ErrInvalidWord):
		http.Error(w, "invalid keyword", http.StatusBadRequest)
		return
	case err != nil:
		if s.log != nil {
			s.log.Errorf("vocabulary_add", "store: %v", err)
		}
		http.Error(w, "could not persist keyword", http.StatusInternalServerError)
		return
	}
	if s.log != nil {
		s.log.Infof("vocabulary_add", "%d operator keywords", s.vocab.Len())
	}
	writeJSON(w, http.StatusOK, map[string]string{"added": added})
}

func (s *Server) handleRemoveWord(w http.ResponseWriter, r *http.Request) {
	word, ok := readWord(w, r)
	if !ok {
		return
	}
	removed, err := s.vocab.Remove(word)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("vocabulary_remove", "store: %v", err)
		}
		http.Error(w, "could not persist keyword", http.StatusInternalServerError)
		return
	}
	if !removed {
		http.Error(w, "unknown keyword", http.StatusNotFound)
		return
	}
	if s.log != nil {
		s.log.Infof("vocabulary_remove", "%d operator keywords", s.vocab.Len())
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": strings.TrimSpace(word)})
}

// readWord decodes {"word":"..."} from a POST body, answering the request
// itself when it is malformed.
func readWord(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return "", false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1024)
	var req struct {
		Word string `json:"word"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Word) == "" {
		http.Error(w, "invalid request: need {\"word\":\"...\"}", http.StatusBadRequest)
		return "", false
	}
	return req.Word, true
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HTTPServer returns the management server bound to cfg.ManagementAddr().
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ManagementAddr(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
