// Package llm is the Gemini model client: plain text generation, JSON
// generation constrained by a response schema, and image transcription.
//
// The client never sees original values: callers hand it anonymized text and
// restore its output themselves.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"docguard/internal/logger"
	"docguard/internal/metrics"
)

// ErrNoAPIKey is returned by New when no API key is configured.
var ErrNoAPIKey = errors.New("gemini API key is required")

// Config configures a Client.
type Config struct {
	APIKey  string
	Model   string        // default gemini-2.0-flash
	Timeout time.Duration // per call; 0 = no limit beyond the caller's context
	BaseURL string        // overrides the API endpoint (tests, proxies)
}

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	Temperature float32

	// Image, if set, is sent after the prompt as inline data.
	Image     []byte
	ImageMIME string
}

// Client calls the Gemini API. It is safe for concurrent use.
type Client struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics
}

// New creates a Client. log and m may be nil.
func New(ctx context.Context, cfg Config, log *logger.Logger, m *metrics.Metrics) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Client{
		client:  client,
		model:   cfg.Model,
		timeout: cfg.Timeout,
		log:     log,
		metrics: m,
	}, nil
}

// Model returns the model name used for every call.
func (c *Client) Model() string { return c.model }

// GenerateText returns the model's plain-text answer. An empty answer is
// returned as "" without error.
func (c *Client) GenerateText(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req, &genai.GenerateContentConfig{
		ResponseMIMEType: "text/plain",
	})
}

// GenerateJSON returns the model's answer as raw JSON constrained by schema,
// a JSON-schema document ("type", "properties", "items", "enum", ...).
// An empty answer is returned as "{}".
func (c *Client) GenerateJSON(ctx context.Context, req Request, schema map[string]any) ([]byte, error) {
	text, err := c.generate(ctx, req, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(schema),
	})
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return []byte("{}"), nil
	}
	if !json.Valid([]byte(text)) {
		return nil, fmt.Errorf("model returned invalid JSON (%d bytes)", len(text))
	}
	return []byte(text), nil
}

// ExtractImageText transcribes the text visible in an image.
func (c *Client) ExtractImageText(ctx context.Context, data []byte, mimeType string) (string, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	text, err := c.GenerateText(ctx, Request{
		System:    ImageSystemInstruction,
		Prompt:    ImagePrompt,
		Image:     data,
		ImageMIME: mimeType,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Client) generate(ctx context.Context, req Request, config *genai.GenerateContentConfig) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	config.Temperature = genai.Ptr(req.Temperature)
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	parts := []*genai.Part{{Text: req.Prompt}}
	if len(req.Image) > 0 {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: req.Image, MIMEType: req.ImageMIME},
		})
	}
	contents := []*genai.Content{{Role: "user", Parts: parts}}

	if c.metrics != nil {
		c.metrics.ModelCalls.Add(1)
	}
	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordModelLatency(elapsed)
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.ModelErrors.Add(1)
		}
		if c.log != nil {
			c.log.Errorf("model_call", "%s failed after %s: %v", c.model, elapsed.Round(time.Millisecond), err)
		}
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	text := responseText(resp)
	if c.log != nil {
		c.log.Debugf("model_call", "%s answered %d chars in %s", c.model, len(text), elapsed.Round(time.Millisecond))
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate,
// skipping thought parts.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// toGenaiSchema converts a JSON-schema document to a Gemini schema.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}
	s := &genai.Schema{}

	if t, ok := schema["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schema["description"].(string); ok {
		s.Description = desc
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = toGenaiSchema(propMap)
			}
		}
	}
	s.Required = stringList(schema["required"])
	s.Enum = stringList(schema["enum"])
	s.PropertyOrdering = stringList(schema["propertyOrdering"])
	if items, ok := schema["items"].(map[string]any); ok {
		s.Items = toGenaiSchema(items)
	}
	if v, ok := number(schema["minimum"]); ok {
		s.Minimum = genai.Ptr(v)
	}
	if v, ok := number(schema["maximum"]); ok {
		s.Maximum = genai.Ptr(v)
	}
	return s
}

func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
