package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/genai"

	"docguard/internal/metrics"
)

// fakeGemini answers generateContent calls with a fixed text and records the
// last request body.
type fakeGemini struct {
	mu     sync.Mutex
	text   string
	status int
	path   string
	apiKey string
	body   map[string]any
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.path = r.URL.Path
	f.apiKey = r.Header.Get("x-goog-api-key")
	f.body = nil
	_ = json.Unmarshal(raw, &f.body)
	status, text := f.status, f.text
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
		return
	}
	resp := map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			},
		}},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, f *fakeGemini, m *metrics.Metrics) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), Config{APIKey: "test-key", BaseURL: srv.URL}, nil, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}, nil, nil); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestNew_DefaultModel(t *testing.T) {
	c := newTestClient(t, &fakeGemini{}, nil)
	if c.Model() != "gemini-2.0-flash" {
		t.Errorf("Model() = %q", c.Model())
	}
}

func TestGenerateText(t *testing.T) {
	f := &fakeGemini{text: "<html>[MOTCLE_fe01d6]</html>"}
	m := metrics.New()
	c := newTestClient(t, f, m)

	got, err := c.GenerateText(context.Background(), Request{
		System:      "be brief",
		Prompt:      "design for [MOTCLE_fe01d6]",
		Temperature: DesignTemperature,
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got != "<html>[MOTCLE_fe01d6]</html>" {
		t.Errorf("got %q", got)
	}
	if f.path != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("path = %q", f.path)
	}
	if f.apiKey != "test-key" {
		t.Errorf("api key header = %q", f.apiKey)
	}

	raw, _ := json.Marshal(f.body)
	for _, want := range []string{"design for [MOTCLE_fe01d6]", "be brief", `"responseMimeType":"text/plain"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("request body missing %s: %s", want, raw)
		}
	}

	s := m.Snapshot()
	if s.Model.Calls != 1 || s.Model.Errors != 0 {
		t.Errorf("model counters: %+v", s.Model)
	}
	if s.Latency.ModelMs.Count != 1 {
		t.Errorf("model latency count = %d", s.Latency.ModelMs.Count)
	}
}

func TestGenerateJSON(t *testing.T) {
	f := &fakeGemini{text: ` {"summary":"ok","similarity_score":90} `}
	c := newTestClient(t, f, nil)

	got, err := c.GenerateJSON(context.Background(), Request{Prompt: "compare"}, ComparisonSchema(CompareSemantic))
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if string(got) != `{"summary":"ok","similarity_score":90}` {
		t.Errorf("got %s", got)
	}

	raw, _ := json.Marshal(f.body)
	for _, want := range []string{`"responseMimeType":"application/json"`, `"responseSchema"`, `"CONTRADICTORY"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("request body missing %s: %s", want, raw)
		}
	}
}

func TestGenerateJSON_EmptyAnswer(t *testing.T) {
	c := newTestClient(t, &fakeGemini{text: "  "}, nil)
	got, err := c.GenerateJSON(context.Background(), Request{Prompt: "compare"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "{}" {
		t.Errorf("got %s, want {}", got)
	}
}

func TestGenerateJSON_InvalidAnswer(t *testing.T) {
	c := newTestClient(t, &fakeGemini{text: "not json"}, nil)
	if _, err := c.GenerateJSON(context.Background(), Request{Prompt: "compare"}, nil); err == nil {
		t.Fatal("expected an error for a non-JSON answer")
	}
}

func TestGenerate_APIError(t *testing.T) {
	m := metrics.New()
	c := newTestClient(t, &fakeGemini{status: http.StatusBadRequest}, m)
	if _, err := c.GenerateText(context.Background(), Request{Prompt: "x"}); err == nil {
		t.Fatal("expected an error")
	}
	if m.ModelErrors.Load() != 1 {
		t.Errorf("ModelErrors = %d, want 1", m.ModelErrors.Load())
	}
}

func TestExtractImageText(t *testing.T) {
	f := &fakeGemini{text: "\n Promo Orange 45 euros \n"}
	c := newTestClient(t, f, nil)

	got, err := c.ExtractImageText(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "image/png")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Promo Orange 45 euros" {
		t.Errorf("got %q", got)
	}
	raw, _ := json.Marshal(f.body)
	if !strings.Contains(string(raw), `"inlineData"`) || !strings.Contains(string(raw), `"image/png"`) {
		t.Errorf("image not sent inline: %s", raw)
	}
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(ComparisonSchema(CompareBriefCopy))
	if s.Type != genai.TypeObject {
		t.Fatalf("type = %q", s.Type)
	}
	if len(s.Required) != 4 {
		t.Errorf("required = %v", s.Required)
	}
	score := s.Properties["similarity_score"]
	if score == nil || score.Type != genai.TypeInteger || score.Minimum == nil || *score.Maximum != 100 {
		t.Errorf("similarity_score = %+v", score)
	}
	items := s.Properties["discrepancies"].Items
	if items == nil || len(items.Properties["severity"].Enum) != 3 {
		t.Errorf("discrepancies items = %+v", items)
	}
	if toGenaiSchema(nil) != nil {
		t.Error("nil schema should convert to nil")
	}
}

func TestResponseText(t *testing.T) {
	cases := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"no content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{
			"parts joined, thoughts skipped",
			&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []*genai.Part{
					{Text: "thinking", Thought: true},
					{Text: "<p>[MOTCLE_"},
					{Text: "abc123]</p>"},
				}},
			}}},
			"<p>[MOTCLE_abc123]</p>",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := responseText(c.resp); got != c.want {
				t.Errorf("responseText = %q, want %q", got, c.want)
			}
		})
	}
}
