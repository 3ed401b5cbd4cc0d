package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docguard/internal/anonymizer"
	"docguard/internal/extractor"
	"docguard/internal/llm"
	"docguard/internal/metrics"
	"docguard/internal/parser"
	"docguard/internal/service"
)

type fakeModel struct {
	text   string
	json   string
	err    error
	prompt string
}

func (f *fakeModel) GenerateText(_ context.Context, req llm.Request) (string, error) {
	f.prompt = req.Prompt
	return f.text, f.err
}

func (f *fakeModel) GenerateJSON(_ context.Context, req llm.Request, _ map[string]any) ([]byte, error) {
	f.prompt = req.Prompt
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.json), nil
}

type testEnv struct {
	srv     *Server
	model   *fakeModel
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T, withModel bool) *testEnv {
	t.Helper()
	m := metrics.New()
	anon := anonymizer.New(anonymizer.NewVocabulary("Orange"), anonymizer.WithMetrics(m))
	ext := extractor.New(parser.NewRegistry(nil, nil, m), anon, nil, m)

	env := &testEnv{metrics: m, model: &fakeModel{}}
	opts := Options{
		Extractor:    ext,
		Anonymizer:   anon,
		TemplatesDir: t.TempDir(),
		Metrics:      m,
	}
	if withModel {
		opts.Comparator = service.NewComparator(env.model, anon, nil)
		opts.Generator = service.NewGenerator(env.model, anon, nil)
	}
	env.srv = New(opts)
	return env
}

type part struct {
	field, filename, contentType, content string
}

func multipartBody(t *testing.T, fields map[string]string, parts ...part) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.filename))
		h.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(p.content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) post(t *testing.T, path string, fields map[string]string, parts ...part) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, fields, parts...)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("error body is not JSON: %s", w.Body.String())
	}
	return body["error"]
}

func html(field, name, content string) part {
	return part{field, name, parser.TypeHTML, content}
}

var tel = anonymizer.MakePlaceholder(anonymizer.LabelPhone, "0800 35 757")

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t, false)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestExtract_OK(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.post(t, "/api/extract",
		map[string]string{"words_to_anonymize": `["Giga Box"]`},
		html("doc1", "copy.html", "<p>Giga Box chez Orange : 0800 35 757</p>"),
		html("doc2", "design.html", "<h1>ORANGE</h1><p>Appelez le 0800 35 757</p>"),
	)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Docs    []string          `json:"docs"`
		Mapping map[string]string `json:"mapping"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(resp.Docs))
	}
	for i, doc := range resp.Docs {
		if strings.Contains(doc, "0800") || strings.Contains(strings.ToLower(doc), "orange") {
			t.Errorf("doc %d leaks a value: %q", i, doc)
		}
		if !strings.Contains(doc, tel) {
			t.Errorf("doc %d misses the shared phone token: %q", i, doc)
		}
	}
	if strings.Contains(resp.Docs[0], "Giga Box") {
		t.Errorf("caller word not anonymized: %q", resp.Docs[0])
	}
	if resp.Mapping[tel] != "0800 35 757" {
		t.Errorf("mapping[%s] = %q", tel, resp.Mapping[tel])
	}
	if env.metrics.RequestsExtract.Load() != 1 || env.metrics.RequestsTotal.Load() != 1 {
		t.Errorf("request counters not updated")
	}
}

func TestExtract_Failures(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
		parts  []part
		status int
		msg    string
	}{
		{
			name:   "one side missing",
			parts:  []part{html("doc1", "a.html", "<p>a</p>")},
			status: http.StatusBadRequest,
			msg:    "Two files required for extraction",
		},
		{
			name: "type not allowed",
			parts: []part{
				html("doc1", "a.html", "<p>a</p>"),
				{"doc2", "notes.txt", "text/plain", "hello"},
			},
			status: http.StatusBadRequest,
			msg:    "File type not allowed: notes.txt (MIME type: text/plain)",
		},
		{
			name: "image without a model",
			parts: []part{
				html("doc1", "a.html", "<p>a</p>"),
				{"doc2", "scan.png", parser.TypePNG, "\x89PNG"},
			},
			status: http.StatusBadRequest,
			msg:    "Unsupported file type: scan.png (MIME type: image/png)",
		},
		{
			name: "corrupt pdf",
			parts: []part{
				html("doc1", "a.html", "<p>a</p>"),
				{"doc2", "bad.pdf", parser.TypePDF, "%PDF-garbage"},
			},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "bad words",
			fields: map[string]string{"words_to_anonymize": `{"a":1}`},
			parts: []part{
				html("doc1", "a.html", "<p>a</p>"),
				html("doc2", "b.html", "<p>b</p>"),
			},
			status: http.StatusBadRequest,
			msg:    "words_to_anonymize must be a JSON list of strings",
		},
		{
			name: "sentinel in document",
			parts: []part{
				html("doc1", "a.html", "<p>a "+extractor.Splitter+" b</p>"),
				html("doc2", "b.html", "<p>b</p>"),
			},
			status: http.StatusUnprocessableEntity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, false)
			w := env.post(t, "/api/extract", tc.fields, tc.parts...)
			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.status, w.Body.String())
			}
			if tc.msg != "" && errorMessage(t, w) != tc.msg {
				t.Errorf("error = %q, want %q", errorMessage(t, w), tc.msg)
			}
			if env.metrics.RequestsFailed.Load() != 1 {
				t.Errorf("RequestsFailed = %d, want 1", env.metrics.RequestsFailed.Load())
			}
		})
	}
}

func TestExtract_NotMultipart(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.postJSON(t, "/api/extract", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestExtract_TooLarge(t *testing.T) {
	env := newTestEnv(t, false)
	env.srv.maxUpload = 512
	big := strings.Repeat("x", 4096)
	w := env.post(t, "/api/extract", nil,
		html("doc1", "a.html", big),
		html("doc2", "b.html", big))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d: %s", w.Code, w.Body.String())
	}
}

const semanticReport = `{"summary":"Le numéro %s est identique","similarity_score":97,` +
	`"semantic_analysis":{"conceptual_overlap":"forte","intent_similarity":"IDENTICAL","key_differences":[]}}`

func TestCompare_Modes(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
		parts  []part
	}{
		{
			name:   "text",
			fields: map[string]string{"text1": "Orange : 0800 35 757", "text2": "Appelez le 0800 35 757"},
		},
		{
			name: "files",
			parts: []part{
				html("doc1", "copy.html", "<p>Orange : 0800 35 757</p>"),
				html("doc2", "design.html", "<p>Appelez le 0800 35 757</p>"),
			},
		},
		{
			name:   "mixed",
			fields: map[string]string{"text1": "Orange : 0800 35 757"},
			parts:  []part{html("doc2", "design.html", "<p>Appelez le 0800 35 757</p>")},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, true)
			env.model.json = fmt.Sprintf(semanticReport, tel)
			fields := map[string]string{"comparison_type": llm.CompareSemantic}
			for k, v := range tc.fields {
				fields[k] = v
			}

			w := env.post(t, "/api/compare", fields, tc.parts...)
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
			}
			var resp struct {
				Result struct {
					Summary string `json:"summary"`
					Score   int    `json:"similarity_score"`
				} `json:"result"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Result.Summary != "Le numéro 0800 35 757 est identique" {
				t.Errorf("summary not restored: %q", resp.Result.Summary)
			}
			if resp.Result.Score != 97 {
				t.Errorf("score = %d", resp.Result.Score)
			}
			if strings.Contains(env.model.prompt, "0800 35 757") {
				t.Error("original value reached the model")
			}
			if strings.Count(env.model.prompt, tel) != 2 {
				t.Errorf("both sides should carry the same token: %q", env.model.prompt)
			}
		})
	}
}

func TestCompare_Failures(t *testing.T) {
	t.Run("no model", func(t *testing.T) {
		env := newTestEnv(t, false)
		w := env.post(t, "/api/compare", map[string]string{"text1": "a", "text2": "b"})
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
	t.Run("missing side", func(t *testing.T) {
		env := newTestEnv(t, true)
		w := env.post(t, "/api/compare", map[string]string{"text1": "a"})
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
		if msg := errorMessage(t, w); msg != "Please provide either text1/text2 OR doc1/doc2 files" {
			t.Errorf("error = %q", msg)
		}
	})
	t.Run("unknown type", func(t *testing.T) {
		env := newTestEnv(t, true)
		w := env.post(t, "/api/compare", map[string]string{"text1": "a", "text2": "b", "comparison_type": "factual"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", w.Code)
		}
	})
	t.Run("model error", func(t *testing.T) {
		env := newTestEnv(t, true)
		env.model.err = errors.New("quota exceeded")
		w := env.post(t, "/api/compare", map[string]string{"text1": "a", "text2": "b"})
		if w.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", w.Code)
		}
		if strings.Contains(w.Body.String(), "quota") {
			t.Error("model error details should not reach the caller")
		}
	})
}

func TestGenerateDesign(t *testing.T) {
	env := newTestEnv(t, true)
	dir := env.srv.templatesDir
	for name, content := range map[string]string{
		"b.html":     `<section style="color:#ff7900">Orange Zen</section>`,
		"a.html":     `<h1>Orange</h1>`,
		"ignore.txt": "not an example",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	kw := anonymizer.MakePlaceholder(anonymizer.LabelKeyword, "orange")
	env.model.text = "```html\n<h1>" + kw + "</h1><p>" + tel + "</p>\n```"

	w := env.post(t, "/api/generate_design",
		map[string]string{"language": "NL"},
		html("copy", "copy.html", "<p>Orange : appelez le 0800 35 757</p>"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != "<h1>Orange</h1><p>0800 35 757</p>" {
		t.Errorf("design = %q", got)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}

	p := env.model.prompt
	if !strings.Contains(p, "Example 1 :\n<h1>"+kw+"</h1>") {
		t.Errorf("a.html should be example 1, as raw markup: %q", p)
	}
	if !strings.Contains(p, "Example 2 :\n<section") || strings.Contains(p, "Example 3") {
		t.Errorf("unexpected examples: %q", p)
	}
	if !strings.Contains(p, "FLEMISH") || strings.Contains(p, "0800 35 757") {
		t.Errorf("unexpected prompt: %q", p)
	}
}

func TestGenerateDesign_Failures(t *testing.T) {
	env := newTestEnv(t, true)
	if w := env.post(t, "/api/generate_design", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no copy: expected 400, got %d", w.Code)
	}
	w := env.post(t, "/api/generate_design", map[string]string{"generation_type": "copy"},
		html("copy", "copy.html", "<p>x</p>"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown generation type: expected 400, got %d", w.Code)
	}

	noModel := newTestEnv(t, false)
	if w := noModel.post(t, "/api/generate_design", nil, html("copy", "c.html", "x")); w.Code != http.StatusServiceUnavailable {
		t.Errorf("no model: expected 503, got %d", w.Code)
	}
}

func TestAnonymizeDeanonymize_RoundTrip(t *testing.T) {
	env := newTestEnv(t, false)
	original := "Orange Mobile, appelez le 0800 35 757 avant le 01/12/2024."
	body, _ := json.Marshal(map[string]any{"text": original, "words_to_anonymize": []string{"Mobile"}})

	w := env.postJSON(t, "/api/anonymize", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("anonymize: %d %s", w.Code, w.Body.String())
	}
	var anon struct {
		Text    string          `json:"text"`
		Mapping json.RawMessage `json:"mapping"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &anon); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(anon.Text, "0800") || strings.Contains(anon.Text, "Mobile") {
		t.Fatalf("values leaked: %q", anon.Text)
	}

	req := fmt.Sprintf(`{"text":%q,"mapping":%s}`, anon.Text, anon.Mapping)
	w = env.postJSON(t, "/api/deanonymize", req)
	if w.Code != http.StatusOK {
		t.Fatalf("deanonymize: %d %s", w.Code, w.Body.String())
	}
	var restored map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &restored); err != nil {
		t.Fatal(err)
	}
	if restored["text"] != original {
		t.Errorf("round trip: got %q, want %q", restored["text"], original)
	}
}

func TestDeanonymize_Data(t *testing.T) {
	env := newTestEnv(t, false)
	req := `{"data":{"z":"` + tel + `","a":[1,"` + tel + ` !",null]},"mapping":{"` + tel + `":"0800 35 757"}}`
	w := env.postJSON(t, "/api/deanonymize", req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := `{"data":{"z":"0800 35 757","a":[1,"0800 35 757 !",null]}}`
	if got := strings.TrimSpace(w.Body.String()); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if env.metrics.TokensRestored.Load() != 2 {
		t.Errorf("TokensRestored = %d", env.metrics.TokensRestored.Load())
	}
}

func TestDeanonymize_BadRequests(t *testing.T) {
	cases := map[string]string{
		"not json":      `{`,
		"nothing":       `{"mapping":{}}`,
		"bad mapping":   `{"text":"x","mapping":{"[TEL_f00798]":1}}`,
		"mapping array": `{"text":"x","mapping":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, false)
			if w := env.postJSON(t, "/api/deanonymize", body); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

func TestWordsField(t *testing.T) {
	words, err := wordsField(` ["Giga", "  ", " Zen "] `)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(words, "|") != "Giga|Zen" {
		t.Errorf("words = %q", words)
	}
	if words, err := wordsField(""); err != nil || words != nil {
		t.Errorf("empty field: %v, %v", words, err)
	}
	if _, err := wordsField("Giga"); err == nil {
		t.Error("expected an error for a non-JSON value")
	}
}
