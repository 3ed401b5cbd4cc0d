package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"docguard/internal/anonymizer"
	"docguard/internal/extractor"
	"docguard/internal/llm"
	"docguard/internal/parser"
)

func failure(status int, msg string) *extractor.Failure {
	return &extractor.Failure{StatusCode: status, Message: msg}
}

type batchResponse struct {
	Docs    []string            `json:"docs"`
	Mapping *anonymizer.Mapping `json:"mapping"`
}

// handleExtract anonymizes the doc1 and doc2 file lists jointly.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	words, err := wordsField(r.FormValue("words_to_anonymize"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	doc1, err := formFiles(r, "doc1")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc2, err := formFiles(r, "doc2")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(doc1) == 0 || len(doc2) == 0 {
		s.writeError(w, r, failure(http.StatusBadRequest, "Two files required for extraction"))
		return
	}

	batch, err := s.extractor.Extract(r.Context(), extractor.Request{
		Groups:    [][]parser.File{doc1, doc2},
		Words:     words,
		ParseHTML: true,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.requestLog(r).Infof("extract_done", "%d documents, %d tokens", len(batch.Docs), batch.Mapping.Len())
	writeJSON(w, http.StatusOK, batchResponse{Docs: batch.Docs, Mapping: batch.Mapping})
}

// handleCompare compares two documents, each given as typed text (textN)
// or uploaded files (docN). Both sides are anonymized in one pass whatever
// their mix, so the report is always fully restored.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if s.comparator == nil {
		s.writeError(w, r, failure(http.StatusServiceUnavailable, "Comparison services not available"))
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	words, err := wordsField(r.FormValue("words_to_anonymize"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	comparisonType := r.FormValue("comparison_type")
	if comparisonType == "" {
		comparisonType = llm.CompareCopyDesign
	}
	if !llm.ValidComparison(comparisonType) {
		s.writeError(w, r, failure(http.StatusBadRequest,
			"Unknown comparison_type, expected one of: "+strings.Join(llm.ComparisonTypes(), ", ")))
		return
	}

	texts := make([]string, 2)
	var groups [][]parser.File
	var fileSides []int
	for i, side := range []string{"1", "2"} {
		if text := strings.TrimSpace(r.FormValue("text" + side)); text != "" {
			texts[i] = text
			continue
		}
		files, err := formFiles(r, "doc"+side)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if len(files) == 0 {
			s.writeError(w, r, failure(http.StatusBadRequest, "Please provide either text1/text2 OR doc1/doc2 files"))
			return
		}
		groups = append(groups, files)
		fileSides = append(fileSides, i)
	}

	if len(groups) > 0 {
		parsed, err := s.extractor.Collect(r.Context(), extractor.Request{Groups: groups, ParseHTML: true})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		for j, i := range fileSides {
			texts[i] = parsed[j]
		}
	}

	batch, err := s.extractor.ExtractText(texts, words)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.comparator.Compare(r.Context(), comparisonType, batch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]anonymizer.Value{"result": report})
}

// handleGenerateDesign turns the uploaded copy into an HTML design, using
// the templates directory as examples. Examples are sent as raw markup.
func (s *Server) handleGenerateDesign(w http.ResponseWriter, r *http.Request) {
	if s.generator == nil {
		s.writeError(w, r, failure(http.StatusServiceUnavailable, "Generation service not available"))
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		s.writeError(w, r, err)
		return
	}
	copyFiles, err := formFiles(r, "copy")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(copyFiles) == 0 {
		s.writeError(w, r, failure(http.StatusBadRequest, "No file provided"))
		return
	}
	words, err := wordsField(r.FormValue("words_to_anonymize"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if gt := r.FormValue("generation_type"); gt != "" && gt != "design" {
		s.writeError(w, r, failure(http.StatusBadRequest, "Unknown generation_type: "+gt))
		return
	}
	language := r.FormValue("language")
	if language == "" {
		language = "FR"
	}

	examples, err := designExamples(s.templatesDir)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groups := make([][]parser.File, 0, len(examples)+1)
	for _, ex := range examples {
		groups = append(groups, []parser.File{ex})
	}
	groups = append(groups, copyFiles[:1])

	batch, err := s.extractor.Extract(r.Context(), extractor.Request{Groups: groups, Words: words})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	html, err := s.generator.Generate(r.Context(), batch, language)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

// handleAnonymize anonymizes one text.
func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string   `json:"text"`
		Words []string `json:"words_to_anonymize"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.writeError(w, r, failure(http.StatusBadRequest, "No text provided"))
		return
	}
	batch, err := s.extractor.ExtractText([]string{req.Text}, req.Words)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Text    string              `json:"text"`
		Mapping *anonymizer.Mapping `json:"mapping"`
	}{batch.Docs[0], batch.Mapping})
}

// handleDeanonymize restores a text or any JSON document with a mapping
// returned by an earlier call.
func (s *Server) handleDeanonymize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text    *string            `json:"text"`
		Data    json.RawMessage    `json:"data"`
		Mapping anonymizer.Mapping `json:"mapping"`
	}
	if !s.decodeJSON(w, r, &req) {
		return
	}

	switch {
	case len(req.Data) > 0:
		data, err := s.anon.RestoreJSON(req.Data, &req.Mapping)
		if err != nil {
			s.writeError(w, r, failure(http.StatusBadRequest, "data is not valid JSON"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]json.RawMessage{"data": data})
	case req.Text != nil:
		writeJSON(w, http.StatusOK, map[string]string{"text": s.anon.Restore(*req.Text, &req.Mapping)})
	default:
		s.writeError(w, r, failure(http.StatusBadRequest, "Provide text or data to restore"))
	}
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, r, failure(http.StatusBadRequest, "Invalid JSON body"))
		return false
	}
	return true
}
