package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeOllama struct {
	mu        sync.Mutex
	installed []string
	models    []string
	tagCalls  int
	generate  []ollamaGenerateRequest
}

func (f *fakeOllama) hasModel(name string) bool {
	for _, m := range f.installed {
		if m == name {
			return true
		}
	}
	return false
}

func (f *fakeOllama) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.URL.Path {
	case "/api/tags":
		f.tagCalls++
		out := ollamaTagsResponse{}
		for _, name := range f.installed {
			out.Models = append(out.Models, struct {
				Name string `json:"name"`
			}{Name: name})
		}
		_ = json.NewEncoder(w).Encode(out)
	case "/api/generate":
		var req ollamaGenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.generate = append(f.generate, req)
		f.models = append(f.models, req.Model)
		if !f.hasModel(req.Model) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model '` + req.Model + `' not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "  answer text \n"})
	case "/api/embed":
		var req ollamaEmbedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.models = append(f.models, req.Model)
		if !f.hasModel(req.Model) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		out := ollamaEmbedResponse{}
		for i := range req.Input {
			out.Embeddings = append(out.Embeddings, []float32{float32(i), 1})
		}
		_ = json.NewEncoder(w).Encode(out)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newOllama(t *testing.T, fake *fakeOllama) IProvider {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	p, err := NewProvider("ollama", map[string]interface{}{"base_url": srv.URL + "/"})
	require.NoError(t, err)
	return p
}

func TestOllamaGenerate(t *testing.T) {
	fake := &fakeOllama{installed: []string{"mistral:latest"}}
	p := newOllama(t, fake)
	text, err := p.Generate(context.Background(), "mistral:latest", "prompt")
	require.NoError(t, err)
	require.Equal(t, "  answer text \n", text)
	require.Len(t, fake.generate, 1)
	require.False(t, fake.generate[0].Stream)
	require.InDelta(t, 0.1, fake.generate[0].Options.Temperature, 1e-9)
	require.Equal(t, defaultOllamaNumPredict, fake.generate[0].Options.NumPredict)
}

func TestOllamaCorrectsModelPrefixOnce(t *testing.T) {
	fake := &fakeOllama{installed: []string{"nomic-embed-text:v1.5", "mistral:7b", "mistral:latest"}}
	p := newOllama(t, fake)

	_, err := p.Generate(context.Background(), "mistral", "first")
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "mistral", "second")
	require.NoError(t, err)
	require.Equal(t, []string{"mistral", "mistral:7b", "mistral:7b"}, fake.models)
	require.Equal(t, 1, fake.tagCalls)
}

func TestOllamaUnknownModel(t *testing.T) {
	fake := &fakeOllama{installed: []string{"llama3:latest"}}
	p := newOllama(t, fake)
	_, err := p.Generate(context.Background(), "mistral", "prompt")
	require.ErrorIs(t, err, ErrModelNotFound)
}

func TestOllamaEmbedBatch(t *testing.T) {
	fake := &fakeOllama{installed: []string{"nomic-embed-text:latest"}}
	p := newOllama(t, fake)
	vectors, err := p.Embed(context.Background(), "nomic-embed-text", []string{"a", "b", "c"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, []float32{2, 1}, vectors[2])
}

func TestOllamaListModels(t *testing.T) {
	fake := &fakeOllama{installed: []string{"a:latest", "b:latest"}}
	p := newOllama(t, fake)
	lister, ok := p.(IModelLister)
	require.True(t, ok)
	models, err := lister.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a:latest", "b:latest"}, models)
}

func TestOllamaUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	p, err := NewProvider("ollama", map[string]interface{}{"base_url": url})
	require.NoError(t, err)
	_, err = p.Generate(context.Background(), "mistral", "prompt")
	require.ErrorIs(t, err, ErrUnavailable)
}
