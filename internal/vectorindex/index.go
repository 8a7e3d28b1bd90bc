package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/repo"
)

// Index holds one collection of embedded chunks per paper. A collection is
// building until Seal is called; only sealed collections answer queries.
type Index interface {
	Upsert(ctx context.Context, paperID string, chunk *model.Chunk, vector []float32) error
	Seal(ctx context.Context, paperID string) error
	// Query returns at most k chunks by descending cosine similarity, ties broken by chunk index.
	Query(ctx context.Context, paperID string, vector []float32, k int) ([]model.ScoredChunk, error)
	Delete(ctx context.Context, paperID string) error
	Count(ctx context.Context, paperID string) (int, error)
}

func New(cfg config.VectorIndexConfig, db *sql.DB) (Index, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres vector index requires a database")
		}
		return NewPostgres(repo.NewChunkRepo(db)), nil
	default:
		return nil, fmt.Errorf("unsupported vector index: %s", cfg.Type)
	}
}
