package repo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
	"github.com/xxxsen/paperqa/test/testutil"
)

func TestPaperRepoLifecycle(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	r := NewPaperRepo(conn)

	now := time.Now().Unix()
	paper := &model.Paper{ID: uuid.NewString(), Name: "survey", Filename: "survey.pdf", Status: model.PaperStatusChunking, Ctime: now, Mtime: now}
	defer func() { _ = r.Delete(ctx, paper.ID) }()
	require.NoError(t, r.Create(ctx, paper))
	require.ErrorIs(t, r.Create(ctx, paper), appErr.ErrConflict)

	paper.RawText = "Abstract\nbody"
	paper.Status = model.PaperStatusReady
	paper.ChunkCount = 4
	require.NoError(t, r.Update(ctx, paper))

	got, err := r.Get(ctx, paper.ID)
	require.NoError(t, err)
	require.Equal(t, model.PaperStatusReady, got.Status)
	require.Equal(t, "Abstract\nbody", got.RawText)
	require.Equal(t, 4, got.ChunkCount)

	ready, err := r.CountByStatus(ctx, model.PaperStatusReady)
	require.NoError(t, err)
	require.GreaterOrEqual(t, ready, 1)

	stale, err := r.ListStale(ctx, []model.PaperStatus{model.PaperStatusReady}, now+1)
	require.NoError(t, err)
	found := false
	for _, p := range stale {
		found = found || p.ID == paper.ID
	}
	require.True(t, found)

	require.NoError(t, r.Delete(ctx, paper.ID))
	_, err = r.Get(ctx, paper.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.ErrorIs(t, r.Delete(ctx, paper.ID), appErr.ErrNotFound)
}

func TestEmbeddingCacheRepo(t *testing.T) {
	conn, cleanup := testutil.OpenTestDB(t)
	defer cleanup()
	ctx := context.Background()
	r := NewEmbeddingCacheRepo(conn)

	hash := uuid.NewString()
	item := &model.EmbeddingCache{ModelName: "ollama/nomic-embed-text", TaskType: "RETRIEVAL_DOCUMENT", ContentHash: hash, Embedding: []float32{0.1, 0.2, 0.3}, Ctime: 100}
	require.NoError(t, r.Save(ctx, item))
	got, err := r.GetMany(ctx, item.ModelName, item.TaskType, []string{hash, "absent"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.InDeltaSlice(t, item.Embedding, got[hash], 1e-6)

	removed, err := r.DeleteBefore(ctx, 101)
	require.NoError(t, err)
	require.GreaterOrEqual(t, removed, int64(1))
	got, err = r.GetMany(ctx, item.ModelName, item.TaskType, []string{hash})
	require.NoError(t, err)
	require.Empty(t, got)
}
