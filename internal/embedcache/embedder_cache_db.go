package embedcache

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/model"
)

// Store persists embeddings keyed by model, task type and content hash.
type Store interface {
	GetMany(ctx context.Context, modelName, taskType string, contentHashes []string) (map[string][]float32, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

func (d *dbEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	logger := logutil.GetLogger(ctx)
	hashes := make([]string, len(texts))
	var modelName string
	for i, text := range texts {
		_, hashes[i], modelName = buildCacheKey(d.next.ModelName(), taskType, text)
	}
	out := make([][]float32, len(texts))
	cached, err := d.store.GetMany(ctx, modelName, taskType, hashes)
	if err != nil {
		logger.Warn("embedding cache lookup failed", zap.Error(err))
		cached = nil
	}
	for i, hash := range hashes {
		if v, ok := cached[hash]; ok {
			out[i] = v
		}
	}
	if len(cached) > 0 {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("hits", len(cached)), zap.Int("total", len(texts)))
	}
	now := time.Now().Unix()
	err = embedMisses(ctx, d.next, texts, taskType, out, func(i int, vec []float32) {
		if err := d.store.Save(ctx, &model.EmbeddingCache{
			ModelName:   modelName,
			TaskType:    taskType,
			ContentHash: hashes[i],
			Embedding:   vec,
			Ctime:       now,
		}); err != nil {
			logger.Warn("failed to cache embedding", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
