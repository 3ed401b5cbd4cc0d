// Package extractor turns batches of uploaded documents into anonymized
// texts that share a single token mapping.
//
// Every document of a batch is parsed, the texts are joined with a reserved
// separator, anonymized in one pass and split apart again. A value that
// appears in two documents therefore gets the same token in both, which is
// what lets a model compare them without seeing the value itself.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"docguard/internal/anonymizer"
	"docguard/internal/logger"
	"docguard/internal/metrics"
	"docguard/internal/parser"
)

// Splitter separates documents inside the joined text. No document may
// contain it, and no caller keyword may match inside or across it (see
// SplitterConflict). The built-in matchers never match its characters.
const Splitter = "---|#SPLITTER#|---"

// SplitterConflict reports whether word, as a case-insensitive keyword,
// could match inside Splitter or across one of its ends.
func SplitterConflict(word string) bool {
	w := strings.ToLower(strings.TrimSpace(word))
	if w == "" {
		return false
	}
	sep := strings.ToLower(Splitter)
	if strings.Contains(sep, w) || strings.Contains(w, sep) {
		return true
	}
	for k := 1; k < len(sep) && k < len(w); k++ {
		if strings.HasSuffix(w, sep[:k]) || strings.HasPrefix(w, sep[len(sep)-k:]) {
			return true
		}
	}
	return false
}

// maxParallelGroups bounds concurrent group parsing. Image groups call the
// vision model, so this also bounds concurrent model calls per batch.
const maxParallelGroups = 4

// Failure is a caller-facing error carrying the HTTP status to answer with.
type Failure struct {
	StatusCode int
	Message    string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%d: %s", f.StatusCode, f.Message)
}

func failf(status int, format string, args ...any) *Failure {
	return &Failure{StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// Parser extracts the text of one file.
type Parser interface {
	Parse(ctx context.Context, f parser.File) (string, error)
}

// Anonymizer runs one anonymization pass.
type Anonymizer interface {
	Anonymize(text string, words []string) (string, *anonymizer.Mapping, error)
}

// Request is one extraction batch. Each group is one logical document made
// of one or more files (e.g. the pages of a scan), in order.
type Request struct {
	Groups [][]parser.File
	// Words are anonymized as keywords on top of the vocabulary.
	Words []string
	// ParseHTML extracts the visible text of HTML files; when false the
	// markup is kept as is.
	ParseHTML bool
}

// Batch is the result of a successful extraction: one anonymized text per
// group, in request order, and the mapping shared by all of them.
type Batch struct {
	Docs    []string
	Mapping *anonymizer.Mapping
}

// Coordinator validates, parses, joins, anonymizes and splits batches.
// It holds no per-request state and is safe for concurrent use.
type Coordinator struct {
	parser  Parser
	anon    Anonymizer
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a Coordinator. log and m may be nil.
func New(p Parser, a Anonymizer, log *logger.Logger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{parser: p, anon: a, log: log, metrics: m}
}

// Extract parses every group of req and anonymizes the texts jointly.
// Validation and parse problems are returned as *Failure; no partial batch
// is ever returned.
func (c *Coordinator) Extract(ctx context.Context, req Request) (*Batch, error) {
	if c.metrics != nil {
		c.metrics.RequestsExtract.Add(1)
	}
	texts, err := c.Collect(ctx, req)
	if err != nil {
		return nil, err
	}
	return c.ExtractText(texts, req.Words)
}

// Collect validates and parses every group of req without anonymizing,
// returning one text per group in request order. Callers that mix parsed
// files with raw text pass the result to ExtractText.
func (c *Coordinator) Collect(ctx context.Context, req Request) ([]string, error) {
	if err := validate(req.Groups); err != nil {
		return nil, err
	}

	texts := make([]string, len(req.Groups))
	errs := make([]error, len(req.Groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelGroups)
	for i, group := range req.Groups {
		g.Go(func() error {
			texts[i], errs[i] = c.parseGroup(gctx, group, req.ParseHTML)
			return errs[i]
		})
	}
	if err := g.Wait(); err != nil {
		return nil, firstFailure(ctx, errs, err)
	}
	return texts, nil
}

// ExtractText anonymizes already extracted texts jointly, one per document.
func (c *Coordinator) ExtractText(texts []string, words []string) (*Batch, error) {
	if len(texts) == 0 {
		return nil, failf(http.StatusBadRequest, "No text provided")
	}
	for i, text := range texts {
		if strings.Contains(text, Splitter) {
			return nil, failf(http.StatusUnprocessableEntity,
				"Document %d contains the reserved separator %q", i+1, Splitter)
		}
	}

	for _, w := range words {
		if SplitterConflict(w) {
			return nil, failf(http.StatusBadRequest,
				"Keyword %q conflicts with the document separator", w)
		}
	}

	anon, mapping, err := c.anon.Anonymize(strings.Join(texts, Splitter), words)
	if err != nil {
		if c.log != nil {
			c.log.Errorf("anonymize_failed", "%d documents: %v", len(texts), err)
		}
		return nil, failf(http.StatusInternalServerError, "Anonymization failed")
	}

	docs := strings.Split(anon, Splitter)
	if len(docs) != len(texts) {
		if c.log != nil {
			c.log.Errorf("split_mismatch", "joined %d documents, split into %d", len(texts), len(docs))
		}
		return nil, failf(http.StatusInternalServerError,
			"Anonymized batch split into %d documents, expected %d", len(docs), len(texts))
	}

	if c.log != nil {
		c.log.Infof("batch_done", "%d documents, %d tokens", len(docs), mapping.Len())
	}
	return &Batch{Docs: docs, Mapping: mapping}, nil
}

// validate rejects empty batches and disallowed types before any parsing
// starts, reporting the first problem in input order. A disallowed type in
// a later group therefore wins over a parse error in an earlier one.
func validate(groups [][]parser.File) error {
	if len(groups) == 0 {
		return failf(http.StatusBadRequest, "No files selected")
	}
	for _, group := range groups {
		named := 0
		for _, f := range group {
			if f.Name == "" {
				continue
			}
			named++
			if !parser.Allowed(f.ContentType) {
				return failf(http.StatusBadRequest,
					"File type not allowed: %s (MIME type: %s)", f.Name, f.ContentType)
			}
		}
		if named == 0 {
			return failf(http.StatusBadRequest, "No files selected")
		}
	}
	return nil
}

// parseGroup concatenates the texts of the group's files, each followed by
// a blank line, and trims the result.
func (c *Coordinator) parseGroup(ctx context.Context, group []parser.File, parseHTML bool) (string, error) {
	var sb strings.Builder
	for _, f := range group {
		if f.Name == "" {
			continue
		}

		var text string
		if parser.IsHTML(f.ContentType) && !parseHTML {
			text = string(f.Data)
		} else {
			var err error
			text, err = c.parser.Parse(ctx, f)
			switch {
			case errors.Is(err, parser.ErrUnsupportedType):
				return "", failf(http.StatusBadRequest,
					"Unsupported file type: %s (MIME type: %s)", f.Name, f.ContentType)
			case err != nil:
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return "", err
				}
				return "", failf(http.StatusUnprocessableEntity, "Could not read %s: %v", f.Name, err)
			}
		}

		if parser.IsImage(f.ContentType) {
			text = "{ image : " + text + "}"
		}
		sb.WriteString(text)
		sb.WriteString("\n\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// firstFailure picks the failure of the earliest group. Groups cancelled
// because a later group failed are skipped.
func firstFailure(ctx context.Context, errs []error, fallback error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return fallback
}
