// Package service runs the model-backed workflows on extracted batches:
// document comparison and design generation. Both send only anonymized text
// to the model and restore the answer with the batch mapping.
package service

import (
	"context"
	"errors"

	"docguard/internal/anonymizer"
	"docguard/internal/llm"
)

// ErrModel wraps every failure of the model call itself.
var ErrModel = errors.New("model call failed")

// ErrUnknownComparison is returned for an unsupported comparison type.
var ErrUnknownComparison = errors.New("unknown comparison type")

// ErrBatchShape is returned when a batch has the wrong number of documents.
var ErrBatchShape = errors.New("unexpected number of documents")

// TextModel is the generation capability the workflows need.
type TextModel interface {
	GenerateText(ctx context.Context, req llm.Request) (string, error)
	GenerateJSON(ctx context.Context, req llm.Request, schema map[string]any) ([]byte, error)
}

// Restorer puts original values back into model output.
type Restorer interface {
	Restore(text string, m *anonymizer.Mapping) string
	RestoreValue(v anonymizer.Value, m *anonymizer.Mapping) anonymizer.Value
}

// plainRestorer restores without recording metrics.
type plainRestorer struct{}

func (plainRestorer) Restore(text string, m *anonymizer.Mapping) string {
	return anonymizer.DeanonymizeText(text, m)
}

func (plainRestorer) RestoreValue(v anonymizer.Value, m *anonymizer.Mapping) anonymizer.Value {
	return anonymizer.DeanonymizeValue(v, m)
}

func orPlain(r Restorer) Restorer {
	if r == nil {
		return plainRestorer{}
	}
	return r
}
