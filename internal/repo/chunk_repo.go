package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/paperqa/internal/model"
	"github.com/xxxsen/paperqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// ChunkRepo stores per-paper chunk collections with their pgvector embeddings.
// A collection row exists from the first chunk on; only sealed collections are searched.
type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) UpsertChunk(ctx context.Context, paperID string, chunk *model.Chunk, vector []float32) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	sqlStr, args := dbutil.Finalize(
		"INSERT INTO paper_collections (paper_id, sealed, ctime) VALUES (?, FALSE, ?) ON CONFLICT (paper_id) DO NOTHING",
		[]interface{}{paperID, time.Now().Unix()},
	)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize("SELECT sealed FROM paper_collections WHERE paper_id = ? FOR UPDATE", []interface{}{paperID})
	var sealed bool
	if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&sealed); err != nil {
		return err
	}
	if sealed {
		return appErr.ErrConflict
	}
	const upsert = `
		INSERT INTO paper_chunks (paper_id, chunk_index, content, token_count, page, section, start_offset, end_offset, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (paper_id, chunk_index) DO UPDATE SET
			content = EXCLUDED.content,
			token_count = EXCLUDED.token_count,
			page = EXCLUDED.page,
			section = EXCLUDED.section,
			start_offset = EXCLUDED.start_offset,
			end_offset = EXCLUDED.end_offset,
			embedding = EXCLUDED.embedding
	`
	if _, err := tx.ExecContext(ctx, upsert,
		paperID,
		chunk.Index,
		chunk.Text,
		chunk.TokenCount,
		chunk.Page,
		chunk.Section,
		chunk.Start,
		chunk.End,
		pgvector.NewVector(vector),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ChunkRepo) Seal(ctx context.Context, paperID string) error {
	sqlStr, args := dbutil.Finalize("UPDATE paper_collections SET sealed = TRUE WHERE paper_id = ?", []interface{}{paperID})
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrCollectionNotFound
	}
	return nil
}

// Search ranks the sealed collection of paperID by cosine similarity to vector.
func (r *ChunkRepo) Search(ctx context.Context, paperID string, vector []float32, limit int) ([]model.ScoredChunk, error) {
	if err := r.requireSealed(ctx, paperID); err != nil {
		return nil, err
	}
	const query = `
		SELECT chunk_index, content, token_count, page, section, start_offset, end_offset,
			1 - (embedding <=> $2) AS score
		FROM paper_chunks
		WHERE paper_id = $1
		ORDER BY score DESC, chunk_index ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, paperID, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.ScoredChunk, 0, limit)
	for rows.Next() {
		chunk := &model.Chunk{PaperID: paperID}
		var score float64
		if err := rows.Scan(&chunk.Index, &chunk.Text, &chunk.TokenCount, &chunk.Page, &chunk.Section,
			&chunk.Start, &chunk.End, &score); err != nil {
			return nil, err
		}
		chunk.ID = model.ChunkID(paperID, chunk.Index)
		items = append(items, model.ScoredChunk{Chunk: chunk, Score: float32(score)})
	}
	return items, rows.Err()
}

// Delete drops the collection; its chunks go with it through the foreign key cascade.
func (r *ChunkRepo) Delete(ctx context.Context, paperID string) error {
	sqlStr, args := dbutil.Finalize("DELETE FROM paper_collections WHERE paper_id = ?", []interface{}{paperID})
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrCollectionNotFound
	}
	return nil
}

func (r *ChunkRepo) Count(ctx context.Context, paperID string) (int, error) {
	if _, err := r.sealed(ctx, paperID); err != nil {
		return 0, err
	}
	sqlStr, args := dbutil.Finalize("SELECT COUNT(1) FROM paper_chunks WHERE paper_id = ?", []interface{}{paperID})
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ChunkRepo) requireSealed(ctx context.Context, paperID string) error {
	sealed, err := r.sealed(ctx, paperID)
	if err != nil {
		return err
	}
	if !sealed {
		return appErr.ErrCollectionNotFound
	}
	return nil
}

func (r *ChunkRepo) sealed(ctx context.Context, paperID string) (bool, error) {
	sqlStr, args := dbutil.Finalize("SELECT sealed FROM paper_collections WHERE paper_id = ?", []interface{}{paperID})
	var sealed bool
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&sealed); err != nil {
		if err == sql.ErrNoRows {
			return false, appErr.ErrCollectionNotFound
		}
		return false, err
	}
	return sealed, nil
}
