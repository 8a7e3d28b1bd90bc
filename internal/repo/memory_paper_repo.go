package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/xxxsen/paperqa/internal/model"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// MemoryPaperRepo keeps papers in process memory. It backs the service when
// no database is configured; records are lost on restart.
type MemoryPaperRepo struct {
	mu     sync.RWMutex
	papers map[string]*model.Paper
}

func NewMemoryPaperRepo() *MemoryPaperRepo {
	return &MemoryPaperRepo{papers: make(map[string]*model.Paper)}
}

func (r *MemoryPaperRepo) Create(ctx context.Context, paper *model.Paper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.papers[paper.ID]; ok {
		return appErr.ErrConflict
	}
	cp := *paper
	r.papers[paper.ID] = &cp
	return nil
}

func (r *MemoryPaperRepo) Update(ctx context.Context, paper *model.Paper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.papers[paper.ID]
	if !ok {
		return appErr.ErrNotFound
	}
	cp := *paper
	cp.Ctime = old.Ctime
	r.papers[paper.ID] = &cp
	return nil
}

func (r *MemoryPaperRepo) Get(ctx context.Context, id string) (*model.Paper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paper, ok := r.papers[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *paper
	return &cp, nil
}

func (r *MemoryPaperRepo) List(ctx context.Context) ([]*model.Paper, error) {
	return r.filter(func(p *model.Paper) bool { return true }), nil
}

func (r *MemoryPaperRepo) ListStale(ctx context.Context, statuses []model.PaperStatus, before int64) ([]*model.Paper, error) {
	wanted := make(map[model.PaperStatus]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	return r.filter(func(p *model.Paper) bool {
		return wanted[p.Status] && p.Mtime < before
	}), nil
}

func (r *MemoryPaperRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.papers[id]; !ok {
		return appErr.ErrNotFound
	}
	delete(r.papers, id)
	return nil
}

func (r *MemoryPaperRepo) CountByStatus(ctx context.Context, status model.PaperStatus) (int, error) {
	return len(r.filter(func(p *model.Paper) bool { return p.Status == status })), nil
}

func (r *MemoryPaperRepo) filter(keep func(p *model.Paper) bool) []*model.Paper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]*model.Paper, 0, len(r.papers))
	for _, p := range r.papers {
		if !keep(p) {
			continue
		}
		cp := *p
		cp.RawText = ""
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Ctime != items[j].Ctime {
			return items[i].Ctime > items[j].Ctime
		}
		return items[i].ID < items[j].ID
	})
	return items
}
