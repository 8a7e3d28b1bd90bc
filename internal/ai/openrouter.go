package ai

import (
	"context"
	"fmt"
	"strings"
)

const defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

type openrouterConfig struct {
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url"`
	HTTPReferer string   `json:"http_referer"`
	XTitle      string   `json:"x_title"`
	Temperature *float64 `json:"temperature"`
}

type openrouterProvider struct {
	*openAICompatible
}

func (p *openrouterProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	return nil, fmt.Errorf("%w: openrouter serves no embedding models", ErrUnavailable)
}

func createOpenRouterFactory(args interface{}) (IProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	headers := map[string]string{}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	if v := strings.TrimSpace(cfg.XTitle); v != "" {
		headers["X-Title"] = v
	}
	provider := &openrouterProvider{openAICompatible: &openAICompatible{
		name:        "openrouter",
		apiKey:      strings.TrimSpace(cfg.APIKey),
		baseURL:     baseURL,
		temperature: cfg.Temperature,
		headers:     headers,
	}}
	return provider, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
}
