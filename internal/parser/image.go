package parser

import (
	"context"
	"errors"
	"fmt"
)

var errEmptyImage = errors.New("empty image")

// imageParser sends the image to a vision model and returns its transcription.
type imageParser struct {
	vision Vision
}

func (p *imageParser) Parse(ctx context.Context, f File) (string, error) {
	if len(f.Data) == 0 {
		return "", errEmptyImage
	}
	text, err := p.vision.ExtractImageText(ctx, f.Data, MediaType(f.ContentType))
	if err != nil {
		// An interrupted call can surface as a plain transport error.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return "", fmt.Errorf("transcribe image: %w: %w", ctxErr, err)
		}
		return "", fmt.Errorf("transcribe image: %w", err)
	}
	return text, nil
}
