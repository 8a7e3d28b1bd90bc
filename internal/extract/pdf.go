package extract

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type pdfExtractor struct{}

// NewPDFExtractor reads text with the pure Go ledongthuc/pdf reader.
func NewPDFExtractor() Extractor {
	return pdfExtractor{}
}

func (pdfExtractor) Extract(ctx context.Context, data []byte) (*Document, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open pdf: %v", appErr.ErrExtraction, err)
	}
	total := r.NumPage()
	texts := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		fonts := make(map[string]*pdf.Font)
		for _, name := range page.Fonts() {
			font := page.Font(name)
			fonts[name] = &font
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", appErr.ErrExtraction, i, err)
		}
		texts = append(texts, text)
	}
	return assemble(texts), nil
}
