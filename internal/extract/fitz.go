package extract

import (
	"context"
	"fmt"

	"github.com/gen2brain/go-fitz"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type fitzExtractor struct{}

// NewFitzExtractor reads text through MuPDF. It copes with layouts and
// encodings the pure Go reader does not, so it serves as the fallback.
func NewFitzExtractor() Extractor {
	return fitzExtractor{}
}

func (fitzExtractor) Extract(ctx context.Context, data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", appErr.ErrExtraction, err)
	}
	defer doc.Close()

	texts := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := doc.Text(i)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", appErr.ErrExtraction, i+1, err)
		}
		texts = append(texts, text)
	}
	return assemble(texts), nil
}
