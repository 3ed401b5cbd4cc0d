package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docguard/internal/extractor"
	"docguard/internal/parser"
)

// maxMemory is the part of a multipart body kept in memory; the rest
// spills to temporary files.
const maxMemory = 8 << 20

// parseMultipart reads a multipart body bounded by s.maxUpload.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return tooLarge
		}
		return &extractor.Failure{StatusCode: http.StatusBadRequest, Message: "Expected a multipart/form-data body"}
	}
	return nil
}

// formFiles reads every file uploaded under field, in upload order.
func formFiles(r *http.Request, field string) ([]parser.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	files := make([]parser.File, 0, len(headers))
	for _, fh := range headers {
		f, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

func readFile(fh *multipart.FileHeader) (parser.File, error) {
	src, err := fh.Open()
	if err != nil {
		return parser.File{}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer src.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(src)
	if err != nil {
		return parser.File{}, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return parser.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// wordsField decodes the words_to_anonymize field, a JSON list of strings.
// A missing or empty field means no words.
func wordsField(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var words []string
	if err := json.Unmarshal([]byte(value), &words); err != nil {
		return nil, &extractor.Failure{
			StatusCode: http.StatusBadRequest,
			Message:    "words_to_anonymize must be a JSON list of strings",
		}
	}
	out := words[:0]
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out, nil
}

// designExamples loads every *.html file of dir, sorted by name, as raw
// HTML documents. A missing directory yields no examples.
func designExamples(dir string) ([]parser.File, error) {
	if dir == "" {
		return nil, nil
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.html"))
	if err != nil {
		return nil, fmt.Errorf("list design examples: %w", err)
	}
	sort.Strings(paths)
	files := make([]parser.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p) // #nosec G304 -- path from trusted config
		if err != nil {
			return nil, fmt.Errorf("read design example: %w", err)
		}
		files = append(files, parser.File{
			Name:        filepath.Base(p),
			ContentType: parser.TypeHTML,
			Data:        data,
		})
	}
	return files, nil
}
