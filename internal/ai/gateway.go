package ai

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

const defaultEmbedBatchSize = 32

// EmbeddingGateway turns texts into vectors of one fixed dimension. The
// dimension is either configured or taken from the first successful response.
type EmbeddingGateway struct {
	embedder  IEmbedder
	batchSize int
	dimension atomic.Int64
}

func NewEmbeddingGateway(embedder IEmbedder, batchSize int, dimension int) *EmbeddingGateway {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	g := &EmbeddingGateway{embedder: embedder, batchSize: batchSize}
	if dimension > 0 {
		g.dimension.Store(int64(dimension))
	}
	return g
}

// Embed returns one document vector per text, in input order.
func (g *EmbeddingGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := g.embedBatch(ctx, texts[start:end], TaskRetrievalDocument)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (g *EmbeddingGateway) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.embedBatch(ctx, []string{text}, TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Dimension is 0 until it is configured or learned.
func (g *EmbeddingGateway) Dimension() int {
	return int(g.dimension.Load())
}

func (g *EmbeddingGateway) ModelName() string {
	if g.embedder == nil {
		return ""
	}
	return g.embedder.ModelName()
}

// embedBatch makes one call and retries it once on any failure.
func (g *EmbeddingGateway) embedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if g.embedder == nil {
		return nil, fmt.Errorf("%w: embedder not configured", appErr.ErrEmbeddingBackend)
	}
	vectors, err := g.try(ctx, texts, taskType)
	if err == nil {
		return vectors, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrEmbeddingBackend, ctx.Err())
	}
	logutil.GetLogger(ctx).Warn("embedding batch failed, retrying", zap.Int("batch", len(texts)), zap.Error(err))
	vectors, err = g.try(ctx, texts, taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", appErr.ErrEmbeddingBackend, err)
	}
	return vectors, nil
}

func (g *EmbeddingGateway) try(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	vectors, err := g.embedder.EmbedBatch(ctx, texts, taskType)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return nil, fmt.Errorf("empty vector at position %d", i)
		}
		dim := int64(len(v))
		if g.dimension.CompareAndSwap(0, dim) {
			continue
		}
		if want := g.dimension.Load(); want != dim {
			return nil, fmt.Errorf("vector dimension %d, expected %d", dim, want)
		}
	}
	return vectors, nil
}
