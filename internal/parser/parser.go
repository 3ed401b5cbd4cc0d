// Package parser turns uploaded document bytes into plain text.
//
// Parsers are selected by the file's declared MIME type:
//
//	PDF             text layer of every page
//	DOCX            paragraphs, then table rows as "cell | cell"
//	HTML            visible text, script and style dropped
//	PNG, JPEG       transcription by a Vision model
//
// All parsed text is NFC-normalized so accented characters typed or
// extracted in decomposed form match the anonymizer's patterns.
package parser

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"docguard/internal/logger"
	"docguard/internal/metrics"
)

// MIME types accepted by the registry.
const (
	TypePDF        = "application/pdf"
	TypeDOCX       = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeHTML       = "text/html"
	TypeHTMLApp    = "application/html"
	TypePNG        = "image/png"
	TypeJPEG       = "image/jpeg"
	TypeJPEGLegacy = "image/jpg"
)

// ErrUnsupportedType is returned for MIME types no parser handles.
var ErrUnsupportedType = errors.New("unsupported file type")

// File is one uploaded file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Parser extracts plain text from one file.
type Parser interface {
	Parse(ctx context.Context, f File) (string, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(ctx context.Context, f File) (string, error)

// Parse calls fn(ctx, f).
func (fn ParserFunc) Parse(ctx context.Context, f File) (string, error) { return fn(ctx, f) }

// Vision transcribes the text visible in an image.
type Vision interface {
	ExtractImageText(ctx context.Context, data []byte, mimeType string) (string, error)
}

// Registry dispatches files to parsers by MIME type.
// It is read-only once built and safe for concurrent use.
type Registry struct {
	parsers map[string]Parser
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewRegistry returns a registry with the PDF, DOCX and HTML parsers.
// Image types are registered only when vision is non-nil.
func NewRegistry(vision Vision, log *logger.Logger, m *metrics.Metrics) *Registry {
	r := &Registry{
		parsers: make(map[string]Parser),
		log:     log,
		metrics: m,
	}
	r.Register(TypePDF, ParserFunc(parsePDF))
	r.Register(TypeDOCX, ParserFunc(parseDOCX))
	r.Register(TypeHTML, ParserFunc(parseHTML))
	r.Register(TypeHTMLApp, ParserFunc(parseHTML))
	if vision != nil {
		img := &imageParser{vision: vision}
		r.Register(TypePNG, img)
		r.Register(TypeJPEG, img)
		r.Register(TypeJPEGLegacy, img)
	}
	return r
}

// Register binds p to a MIME type, replacing any previous binding.
// Call it only while the registry is being set up.
func (r *Registry) Register(mimeType string, p Parser) {
	r.parsers[MediaType(mimeType)] = p
}

// Supports reports whether a parser is registered for contentType.
func (r *Registry) Supports(contentType string) bool {
	_, ok := r.parsers[MediaType(contentType)]
	return ok
}

// Parse extracts the text of f with the parser bound to its content type.
// The result is NFC-normalized and trimmed.
func (r *Registry) Parse(ctx context.Context, f File) (string, error) {
	p, ok := r.parsers[MediaType(f.ContentType)]
	if !ok {
		return "", fmt.Errorf("%s (%s): %w", f.Name, f.ContentType, ErrUnsupportedType)
	}

	start := time.Now()
	text, err := p.Parse(ctx, f)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ParseErrors.Add(1)
		}
		if r.log != nil {
			r.log.Warnf("parse_failed", "%s (%s): %v", f.Name, f.ContentType, err)
		}
		return "", fmt.Errorf("parse %s: %w", f.Name, err)
	}
	if r.metrics != nil {
		r.metrics.DocumentsParsed.Add(1)
	}
	if r.log != nil {
		r.log.Debugf("parse_done", "%s: %d bytes → %d chars in %s",
			f.Name, len(f.Data), len(text), time.Since(start).Round(time.Millisecond))
	}
	return strings.TrimSpace(norm.NFC.String(text)), nil
}

// MediaType lowercases contentType and strips its parameters
// ("text/html; charset=utf-8" → "text/html").
func MediaType(contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsImage reports whether contentType is one of the image types.
func IsImage(contentType string) bool {
	switch MediaType(contentType) {
	case TypePNG, TypeJPEG, TypeJPEGLegacy:
		return true
	}
	return false
}

// IsHTML reports whether contentType is one of the HTML types.
func IsHTML(contentType string) bool {
	switch MediaType(contentType) {
	case TypeHTML, TypeHTMLApp:
		return true
	}
	return false
}

// Allowed reports whether contentType is on the upload allow-list,
// whether or not a parser is currently registered for it.
func Allowed(contentType string) bool {
	switch MediaType(contentType) {
	case TypePDF, TypeDOCX, TypeHTML, TypeHTMLApp, TypePNG, TypeJPEG, TypeJPEGLegacy:
		return true
	}
	return false
}
