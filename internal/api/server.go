// Package api is the public HTTP surface of the service.
//
// Endpoints:
//
//	POST /api/extract          - multipart doc1[], doc2[] → {"docs":[...],"mapping":{...}}
//	POST /api/compare          - multipart text1|doc1, text2|doc2 → {"result":{...}}
//	POST /api/generate_design  - multipart copy → restored HTML
//	POST /api/anonymize        - JSON {"text":...} → {"text":...,"mapping":{...}}
//	POST /api/deanonymize      - JSON {"text"|"data":...,"mapping":{...}}
//	GET  /health
//
// Errors are answered as {"error": message} with the status code of the
// failure. Model failures answer 502.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"docguard/internal/anonymizer"
	"docguard/internal/extractor"
	"docguard/internal/logger"
	"docguard/internal/metrics"
	"docguard/internal/service"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Options wires the server. Comparator and Generator are nil when no model
// is configured; their endpoints then answer 503.
type Options struct {
	Extractor    *extractor.Coordinator
	Anonymizer   *anonymizer.Anonymizer
	Comparator   *service.Comparator
	Generator    *service.Generator
	TemplatesDir string
	MaxUpload    int64 // bytes per request body; 0 = 16 MiB
	Log          *logger.Logger
	Metrics      *metrics.Metrics
}

// Server handles the public API.
type Server struct {
	extractor    *extractor.Coordinator
	anon         *anonymizer.Anonymizer
	comparator   *service.Comparator
	generator    *service.Generator
	templatesDir string
	maxUpload    int64
	log          *logger.Logger
	metrics      *metrics.Metrics
}

// New creates a Server.
func New(opts Options) *Server {
	if opts.MaxUpload <= 0 {
		opts.MaxUpload = 16 << 20
	}
	if opts.Log == nil {
		opts.Log = logger.New("API", "error")
	}
	return &Server{
		extractor:    opts.Extractor,
		anon:         opts.Anonymizer,
		comparator:   opts.Comparator,
		generator:    opts.Generator,
		templatesDir: opts.TemplatesDir,
		maxUpload:    opts.MaxUpload,
		log:          opts.Log,
		metrics:      opts.Metrics,
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/api", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Post("/compare", s.handleCompare)
		r.Post("/generate_design", s.handleGenerateDesign)
		r.Post("/anonymize", s.handleAnonymize)
		r.Post("/deanonymize", s.handleDeanonymize)
	})
	return r
}

type ctxKey struct{}

// requestMiddleware tags the request with an id, counts it and logs its
// outcome. Bodies are never logged.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		reqLog := s.log.WithRequest(id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqLog))

		if s.metrics != nil {
			s.metrics.RequestsTotal.Add(1)
		}
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status >= 400 && s.metrics != nil {
			s.metrics.RequestsFailed.Add(1)
		}
		reqLog.Infof("request_done", "%s %s %d %s", r.Method, r.URL.Path, status, time.Since(start).Round(time.Millisecond))
	})
}

// requestLog returns the request-scoped logger.
func (s *Server) requestLog(r *http.Request) *logger.Logger {
	if l, ok := r.Context().Value(ctxKey{}).(*logger.Logger); ok {
		return l
	}
	return s.log
}

// writeError answers err with the status it maps to.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var f *extractor.Failure
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &f):
		writeJSON(w, f.StatusCode, errorBody(f.Message))
	case errors.As(err, &tooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("Request body too large"))
	case errors.Is(err, service.ErrUnknownComparison):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, service.ErrModel):
		s.requestLog(r).Errorf("model_failed", "%v", err)
		writeJSON(w, http.StatusBadGateway, errorBody("Model call failed"))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorBody("Request cancelled or timed out"))
	default:
		s.requestLog(r).Errorf("internal_error", "%v", err)
		writeJSON(w, http.StatusInternalServerError, errorBody("Internal error"))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
