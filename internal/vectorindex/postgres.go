package vectorindex

import (
	"context"
	"fmt"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// ChunkStore is the persistence the postgres index delegates to; repo.ChunkRepo implements it.
type ChunkStore interface {
	UpsertChunk(ctx context.Context, paperID string, chunk *model.Chunk, vector []float32) error
	Seal(ctx context.Context, paperID string) error
	Search(ctx context.Context, paperID string, vector []float32, limit int) ([]model.ScoredChunk, error)
	Delete(ctx context.Context, paperID string) error
	Count(ctx context.Context, paperID string) (int, error)
}

type postgresIndex struct {
	store ChunkStore
}

// NewPostgres returns an index backed by pgvector, so collections survive restarts.
func NewPostgres(store ChunkStore) Index {
	return &postgresIndex{store: store}
}

func (p *postgresIndex) Upsert(ctx context.Context, paperID string, chunk *model.Chunk, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", appErr.ErrInvalid)
	}
	if err := p.store.UpsertChunk(ctx, paperID, chunk, vector); err != nil {
		return fmt.Errorf("upsert chunk %d of %s: %w", chunk.Index, paperID, err)
	}
	return nil
}

func (p *postgresIndex) Seal(ctx context.Context, paperID string) error {
	return p.store.Seal(ctx, paperID)
}

func (p *postgresIndex) Query(ctx context.Context, paperID string, vector []float32, k int) ([]model.ScoredChunk, error) {
	if k < 0 {
		k = 0
	}
	return p.store.Search(ctx, paperID, vector, k)
}

func (p *postgresIndex) Delete(ctx context.Context, paperID string) error {
	return p.store.Delete(ctx, paperID)
}

func (p *postgresIndex) Count(ctx context.Context, paperID string) (int, error) {
	return p.store.Count(ctx, paperID)
}
