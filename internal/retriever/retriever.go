package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// LowRelevanceScore is the best raw score below which a retrieval counts as low relevance.
const LowRelevanceScore = 0.15

type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Query(ctx context.Context, paperID string, vector []float32, k int) ([]model.ScoredChunk, error)
}

type options struct {
	topK      int
	threshold float32
}

type Option func(*options)

func WithTopK(k int) Option {
	return func(o *options) {
		o.topK = k
	}
}

func WithThreshold(threshold float32) Option {
	return func(o *options) {
		o.threshold = threshold
	}
}

type Retriever struct {
	embedder QueryEmbedder
	index    Searcher
	cfg      config.RetrievalConfig
}

func New(embedder QueryEmbedder, index Searcher, cfg config.RetrievalConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = config.DefaultTopK
	}
	return &Retriever{embedder: embedder, index: index, cfg: cfg}
}

// Retrieve embeds question, takes the top k chunks of the paper and keeps
// those scoring at least the threshold. An empty survivor list is a normal
// result with IsRelevant false.
func (r *Retriever) Retrieve(ctx context.Context, question string, paperID string, opts ...Option) (*model.RetrievalResult, error) {
	o := options{topK: r.cfg.TopK, threshold: r.cfg.Threshold}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: question is empty", appErr.ErrInvalid)
	}
	if o.topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive", appErr.ErrInvalid)
	}
	query := question
	if r.cfg.QueryExpansion {
		query = ExpandQuery(question)
	}
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.index.Query(ctx, paperID, vector, o.topK)
	if err != nil {
		return nil, err
	}
	result := &model.RetrievalResult{
		PaperID: paperID,
		Query:   query,
		Chunks:  make([]model.ScoredChunk, 0, len(hits)),
	}
	var best float32
	if len(hits) > 0 {
		best = hits[0].Score
	}
	for _, hit := range hits {
		if hit.Score < o.threshold {
			continue
		}
		result.Chunks = append(result.Chunks, hit)
	}
	if len(result.Chunks) > 0 {
		result.Score = result.Chunks[0].Score
		result.IsRelevant = true
	}
	result.Tier = tierOf(best, len(hits) > 0, o.threshold)
	logutil.GetLogger(ctx).Debug("retrieval done",
		zap.String("paper_id", paperID),
		zap.Int("hits", len(hits)),
		zap.Int("kept", len(result.Chunks)),
		zap.Float32("best", best),
		zap.String("tier", string(result.Tier)),
	)
	return result, nil
}

// RetrievePair runs two independent retrievals; results are never merged or ranked against each other.
func (r *Retriever) RetrievePair(ctx context.Context, question string, paper1 string, paper2 string, opts ...Option) (*model.RetrievalResult, *model.RetrievalResult, error) {
	first, err := r.Retrieve(ctx, question, paper1, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve paper 1: %w", err)
	}
	second, err := r.Retrieve(ctx, question, paper2, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve paper 2: %w", err)
	}
	return first, second, nil
}

func tierOf(best float32, found bool, threshold float32) model.RelevanceTier {
	switch {
	case !found || best < LowRelevanceScore:
		return model.RelevanceLow
	case best < threshold:
		return model.RelevanceMedium
	default:
		return model.RelevanceHigh
	}
}
