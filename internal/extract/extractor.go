package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/model"
)

// Document is the text of a PDF with the offset at which every page starts.
type Document struct {
	Text      string
	Pages     []model.PageBoundary
	PageCount int
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (*Document, error)
}

const pageSeparator = "\n\n"

// assemble cleans each page and joins them, recording page start offsets in the joined text.
func assemble(pageTexts []string) *Document {
	doc := &Document{PageCount: len(pageTexts)}
	var sb strings.Builder
	for i, text := range pageTexts {
		clean := strings.TrimSpace(CleanText(text))
		if clean == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(pageSeparator)
		}
		doc.Pages = append(doc.Pages, model.PageBoundary{Page: i + 1, Offset: sb.Len()})
		sb.WriteString(clean)
	}
	doc.Text = sb.String()
	return doc
}

type Entry struct {
	Name      string
	Extractor Extractor
}

type groupExtractor struct {
	items []Entry
}

// NewGroupExtractor tries each extractor in order. A result without text
// falls through to the next extractor; it is returned only when none does better.
func NewGroupExtractor(items []Entry) Extractor {
	if len(items) == 0 {
		return nil
	}
	return &groupExtractor{items: items}
}

func (g *groupExtractor) Extract(ctx context.Context, data []byte) (*Document, error) {
	var lastErr error
	var empty *Document
	for i, item := range g.items {
		if item.Extractor == nil {
			continue
		}
		doc, err := item.Extractor.Extract(ctx, data)
		if err != nil {
			lastErr = err
			logutil.GetLogger(ctx).Warn("extractor failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
			continue
		}
		if strings.TrimSpace(doc.Text) == "" {
			logutil.GetLogger(ctx).Warn("extractor returned no text", zap.Int("index", i), zap.String("name", item.Name), zap.Int("pages", doc.PageCount))
			empty = doc
			continue
		}
		return doc, nil
	}
	if empty != nil {
		return empty, nil
	}
	if lastErr == nil {
		return nil, fmt.Errorf("extractor not configured")
	}
	return nil, lastErr
}
