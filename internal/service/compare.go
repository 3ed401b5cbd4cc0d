package service

import (
	"context"
	"fmt"

	"docguard/internal/anonymizer"
	"docguard/internal/extractor"
	"docguard/internal/llm"
	"docguard/internal/logger"
)

// Comparator asks the model for a structured comparison report of two
// documents and restores the report.
type Comparator struct {
	model   TextModel
	restore Restorer
	log     *logger.Logger
}

// NewComparator creates a Comparator. r and log may be nil.
func NewComparator(model TextModel, r Restorer, log *logger.Logger) *Comparator {
	return &Comparator{model: model, restore: orPlain(r), log: log}
}

// Compare compares the two documents of b, the first being the reference.
// The report follows llm.ComparisonSchema(comparisonType); every string in
// it is restored with b.Mapping. An empty model answer yields an empty
// object.
func (c *Comparator) Compare(ctx context.Context, comparisonType string, b *extractor.Batch) (anonymizer.Value, error) {
	if !llm.ValidComparison(comparisonType) {
		return anonymizer.Null(), fmt.Errorf("%w: %q", ErrUnknownComparison, comparisonType)
	}
	if b == nil || len(b.Docs) != 2 {
		n := 0
		if b != nil {
			n = len(b.Docs)
		}
		return anonymizer.Null(), fmt.Errorf("%w: compare needs 2, got %d", ErrBatchShape, n)
	}

	raw, err := c.model.GenerateJSON(ctx, llm.Request{
		System:      llm.CompareSystemInstruction,
		Prompt:      llm.ComparisonPrompt(comparisonType, b.Docs[0], b.Docs[1]),
		Temperature: llm.CompareTemperature,
	}, llm.ComparisonSchema(comparisonType))
	if err != nil {
		return anonymizer.Null(), fmt.Errorf("%w: compare: %w", ErrModel, err)
	}

	report, err := anonymizer.ParseJSON(raw)
	if err != nil {
		return anonymizer.Null(), fmt.Errorf("%w: compare: %w", ErrModel, err)
	}
	if c.log != nil {
		c.log.Infof("compare_done", "%s report, %d tokens in mapping", comparisonType, b.Mapping.Len())
	}
	return c.restore.RestoreValue(report, b.Mapping), nil
}
