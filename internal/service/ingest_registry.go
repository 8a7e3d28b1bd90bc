package service

import "sync"

// ingestRegistry tracks paper ids with an ingestion in flight. acquire is an
// atomic check-and-set, so at most one writer builds a given collection.
type ingestRegistry struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func newIngestRegistry() *ingestRegistry {
	return &ingestRegistry{inflight: make(map[string]struct{})}
}

func (r *ingestRegistry) acquire(paperID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.inflight[paperID]; ok {
		return false
	}
	r.inflight[paperID] = struct{}{}
	return true
}

func (r *ingestRegistry) release(paperID string) {
	r.mu.Lock()
	delete(r.inflight, paperID)
	r.mu.Unlock()
}
