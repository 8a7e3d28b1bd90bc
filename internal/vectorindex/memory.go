package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

type entry struct {
	chunk  model.Chunk
	vector []float32
}

type collection struct {
	sealed  bool
	dim     int
	entries map[int]entry
}

type memoryIndex struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func NewMemory() Index {
	return &memoryIndex{collections: make(map[string]*collection)}
}

func (m *memoryIndex) Upsert(ctx context.Context, paperID string, chunk *model.Chunk, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", appErr.ErrInvalid)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[paperID]
	if !ok {
		c = &collection{dim: len(vector), entries: make(map[int]entry)}
		m.collections[paperID] = c
	}
	if c.sealed {
		return fmt.Errorf("%w: collection %s is sealed", appErr.ErrConflict, paperID)
	}
	if len(vector) != c.dim {
		return fmt.Errorf("%w: vector dimension %d, collection uses %d", appErr.ErrInvalid, len(vector), c.dim)
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	c.entries[chunk.Index] = entry{chunk: *chunk, vector: vec}
	return nil
}

func (m *memoryIndex) Seal(ctx context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[paperID]
	if !ok {
		return appErr.ErrCollectionNotFound
	}
	c.sealed = true
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, paperID string, vector []float32, k int) ([]model.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[paperID]
	if !ok || !c.sealed {
		return nil, appErr.ErrCollectionNotFound
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("%w: query dimension %d, collection uses %d", appErr.ErrInvalid, len(vector), c.dim)
	}
	if k <= 0 {
		return []model.ScoredChunk{}, nil
	}
	scored := make([]model.ScoredChunk, 0, len(c.entries))
	for _, e := range c.entries {
		chunk := e.chunk
		scored = append(scored, model.ScoredChunk{Chunk: &chunk, Score: cosineSimilarity(vector, e.vector)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.Index < scored[j].Chunk.Index
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (m *memoryIndex) Delete(ctx context.Context, paperID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[paperID]; !ok {
		return appErr.ErrCollectionNotFound
	}
	delete(m.collections, paperID)
	return nil
}

func (m *memoryIndex) Count(ctx context.Context, paperID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[paperID]
	if !ok {
		return 0, appErr.ErrCollectionNotFound
	}
	return len(c.entries), nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
