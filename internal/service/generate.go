package service

import (
	"context"
	"fmt"
	"strings"

	"docguard/internal/extractor"
	"docguard/internal/llm"
	"docguard/internal/logger"
)

// Generator asks the model for an HTML design of a copy document, shown a
// few example designs first.
type Generator struct {
	model   TextModel
	restore Restorer
	log     *logger.Logger
}

// NewGenerator creates a Generator. r and log may be nil.
func NewGenerator(model TextModel, r Restorer, log *logger.Logger) *Generator {
	return &Generator{model: model, restore: orPlain(r), log: log}
}

// Generate builds a design from b, whose last document is the copy and
// whose other documents are example designs, in order. language is a code
// for llm.DesignLanguage. The HTML is restored with b.Mapping.
func (g *Generator) Generate(ctx context.Context, b *extractor.Batch, language string) (string, error) {
	if b == nil || len(b.Docs) == 0 {
		return "", fmt.Errorf("%w: generate needs the copy document", ErrBatchShape)
	}
	last := len(b.Docs) - 1
	copyText, examples := b.Docs[last], b.Docs[:last]

	html, err := g.model.GenerateText(ctx, llm.Request{
		System:      llm.DesignSystemInstruction,
		Prompt:      llm.DesignPrompt(copyText, llm.FormatExamples(examples), llm.DesignLanguage(language)),
		Temperature: llm.DesignTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: generate: %w", ErrModel, err)
	}

	html = stripFence(html)
	if g.log != nil {
		g.log.Infof("design_done", "%d examples, %d chars", len(examples), len(html))
	}
	return g.restore.Restore(html, b.Mapping), nil
}

// stripFence removes a markdown code fence around the whole answer.
func stripFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	t = strings.TrimSuffix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	} else {
		t = strings.TrimPrefix(t, "```")
	}
	return strings.TrimSpace(t)
}
