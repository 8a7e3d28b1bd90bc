package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/paperqa/internal/config"
	appErr "github.com/xxxsen/paperqa/internal/pkg/errors"
)

// Manager owns the configured providers and the generation boundary:
// every prompt goes through Generate, which applies the timeout and maps
// failures to ErrGeneration.
type Manager struct {
	generator IGenerator
	embedder  IEmbedder
	providers map[string]IProvider
	timeout   time.Duration
}

func NewManager(cfg config.AIConfig) (*Manager, error) {
	providers := make(map[string]IProvider, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc.Type, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", pc.Name, err)
		}
		providers[pc.Name] = p
	}
	gens := make([]GeneratorEntry, 0, len(cfg.Generator))
	for _, ref := range cfg.Generator {
		p, ok := providers[ref.Provider]
		if !ok {
			return nil, fmt.Errorf("generator refers to unknown provider %s", ref.Provider)
		}
		gens = append(gens, GeneratorEntry{Name: ref.Provider + "/" + ref.Model, Generator: NewGenerator(p, ref.Model)})
	}
	embs := make([]EmbedderEntry, 0, len(cfg.Embedder))
	for _, ref := range cfg.Embedder {
		p, ok := providers[ref.Provider]
		if !ok {
			return nil, fmt.Errorf("embedder refers to unknown provider %s", ref.Provider)
		}
		embs = append(embs, EmbedderEntry{Name: ref.Provider + "/" + ref.Model, Embedder: NewEmbedder(p, ref.Model)})
	}
	m := NewManagerWith(NewGroupGenerator(gens), NewGroupEmbedder(embs), cfg.GenerationTimeout)
	m.providers = providers
	return m, nil
}

// NewManagerWith wires an already built generator and embedder. timeout is in seconds.
func NewManagerWith(gen IGenerator, emb IEmbedder, timeout int) *Manager {
	return &Manager{
		generator: gen,
		embedder:  emb,
		providers: map[string]IProvider{},
		timeout:   time.Duration(timeout) * time.Second,
	}
}

func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	if m.generator == nil {
		return "", fmt.Errorf("%w: generator not configured", appErr.ErrGeneration)
	}
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	resp, err := m.generator.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", appErr.ErrGeneration, err)
	}
	if strings.TrimSpace(resp) == "" {
		return "", fmt.Errorf("%w: empty ai response", appErr.ErrGeneration)
	}
	return resp, nil
}

func (m *Manager) Embedder() IEmbedder {
	return m.embedder
}

// ListModels returns the installed models of every provider able to list them.
func (m *Manager) ListModels(ctx context.Context) (map[string][]string, error) {
	out := make(map[string][]string)
	for name, p := range m.providers {
		lister, ok := p.(IModelLister)
		if !ok {
			continue
		}
		models, err := lister.ListModels(ctx)
		if err != nil {
			return nil, fmt.Errorf("list models of %s: %w", name, err)
		}
		out[name] = models
	}
	return out, nil
}

// Health reports "ok" or the failure for every provider that can be probed.
func (m *Manager) Health(ctx context.Context) map[string]string {
	out := make(map[string]string)
	for name, p := range m.providers {
		lister, ok := p.(IModelLister)
		if !ok {
			out[name] = "configured"
			continue
		}
		if _, err := lister.ListModels(ctx); err != nil {
			out[name] = err.Error()
			continue
		}
		out[name] = "ok"
	}
	return out
}
