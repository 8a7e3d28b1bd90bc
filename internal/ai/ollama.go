package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	defaultOllamaBaseURL     = "http://localhost:11434"
	defaultOllamaTemperature = 0.1
	defaultOllamaNumPredict  = 1024
	defaultOllamaTimeout     = 120
)

type ollamaConfig struct {
	BaseURL     string   `json:"base_url"`
	Temperature *float64 `json:"temperature"`
	NumPredict  int      `json:"num_predict"`
	Timeout     int      `json:"timeout"`
}

type ollamaProvider struct {
	baseURL     string
	temperature float64
	numPredict  int
	client      *http.Client

	mu      sync.Mutex
	aliases map[string]string
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	var text string
	err := p.withModel(ctx, model, func(name string) error {
		reqBody := ollamaGenerateRequest{
			Model:  name,
			Prompt: prompt,
			Stream: false,
			Options: ollamaOptions{
				Temperature: p.temperature,
				NumPredict:  p.numPredict,
			},
		}
		var out ollamaGenerateResponse
		if err := p.do(ctx, http.MethodPost, "/api/generate", reqBody, &out); err != nil {
			return err
		}
		text = out.Response
		return nil
	})
	return text, err
}

// Embed ignores taskType; ollama embedding models take no task hint.
func (p *ollamaProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	var vectors [][]float32
	err := p.withModel(ctx, model, func(name string) error {
		var out ollamaEmbedResponse
		if err := p.do(ctx, http.MethodPost, "/api/embed", ollamaEmbedRequest{Model: name, Input: texts}, &out); err != nil {
			return err
		}
		vectors = out.Embeddings
		return nil
	})
	return vectors, err
}

func (p *ollamaProvider) ListModels(ctx context.Context) ([]string, error) {
	var out ollamaTagsResponse
	if err := p.do(ctx, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// withModel runs call with the resolved model name. When ollama reports the
// model as missing, the installed models are listed once and call is retried
// with the first one named model or model:<tag>; the match is remembered.
func (p *ollamaProvider) withModel(ctx context.Context, model string, call func(name string) error) error {
	name := p.resolve(model)
	err := call(name)
	if err == nil || !errors.Is(err, ErrModelNotFound) || name != model {
		return err
	}
	fixed, ferr := p.correctModel(ctx, model)
	if ferr != nil {
		return err
	}
	return call(fixed)
}

func (p *ollamaProvider) resolve(model string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if alias, ok := p.aliases[model]; ok {
		return alias
	}
	return model
}

func (p *ollamaProvider) correctModel(ctx context.Context, model string) (string, error) {
	models, err := p.ListModels(ctx)
	if err != nil {
		return "", err
	}
	for _, name := range models {
		if name != model && !strings.HasPrefix(name, model+":") {
			continue
		}
		p.mu.Lock()
		p.aliases[model] = name
		p.mu.Unlock()
		logutil.GetLogger(ctx).Info("ollama model name corrected", zap.String("configured", model), zap.String("installed", name))
		return name, nil
	}
	return "", fmt.Errorf("%w: %s (installed: %s)", ErrModelNotFound, model, strings.Join(models, ", "))
}

func (p *ollamaProvider) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(resp.Body)
		detail := strings.TrimSpace(string(msg))
		if resp.StatusCode == http.StatusNotFound && strings.Contains(strings.ToLower(detail), "not found") {
			return fmt.Errorf("%w: %s", ErrModelNotFound, detail)
		}
		return fmt.Errorf("ollama request failed: %s: %s", resp.Status, detail)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ollama response: %w", err)
	}
	return nil
}

func createOllamaFactory(args interface{}) (IProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	temperature := defaultOllamaTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	numPredict := cfg.NumPredict
	if numPredict <= 0 {
		numPredict = defaultOllamaNumPredict
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultOllamaTimeout
	}
	provider := &ollamaProvider{
		baseURL:     baseURL,
		temperature: temperature,
		numPredict:  numPredict,
		client:      &http.Client{Timeout: time.Duration(timeout) * time.Second},
		aliases:     make(map[string]string),
	}
	return provider, nil
}

func init() {
	Register("ollama", createOllamaFactory)
}
