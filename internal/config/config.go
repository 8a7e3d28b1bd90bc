package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port          int               `json:"port"`
	LogConfig     logger.LogConfig  `json:"log_config"`
	Database      DatabaseConfig    `json:"database"`
	VectorIndex   VectorIndexConfig `json:"vector_index"`
	FileStore     FileStoreConfig   `json:"file_store"`
	AI            AIConfig          `json:"ai"`
	Embedding     EmbeddingConfig   `json:"embedding"`
	Chunk         ChunkConfig       `json:"chunk"`
	Retrieval     RetrievalConfig   `json:"retrieval"`
	Compare       CompareConfig     `json:"compare"`
	Upload        UploadConfig      `json:"upload"`
	Jobs          JobsConfig        `json:"jobs"`
	CORSAllowlist []string          `json:"cors_allowlist"`
	RateLimitMS   int               `json:"rate_limit_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

type VectorIndexConfig struct {
	Type string `json:"type"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ProviderConfig struct {
	Name string      `json:"name"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ModelRef struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type AIConfig struct {
	Providers         []ProviderConfig `json:"providers"`
	Generator         []ModelRef       `json:"generator"`
	Embedder          []ModelRef       `json:"embedder"`
	GenerationTimeout int              `json:"generation_timeout"`
	AnswerCacheSize   int              `json:"answer_cache_size"`
	AnswerCacheTTL    int              `json:"answer_cache_ttl"`
}

type EmbeddingCacheConfig struct {
	LRUSize       int  `json:"lru_size"`
	LRUTTLSeconds int  `json:"lru_ttl_seconds"`
	DB            bool `json:"db"`
}

type EmbeddingConfig struct {
	Dimension int                  `json:"dimension"`
	BatchSize int                  `json:"batch_size"`
	Cache     EmbeddingCacheConfig `json:"cache"`
}

type ChunkConfig struct {
	TargetSize int `json:"target_size"`
	Overlap    int `json:"overlap"`
}

type RetrievalConfig struct {
	TopK           int     `json:"top_k"`
	Threshold      float32 `json:"threshold"`
	QueryExpansion bool    `json:"query_expansion"`
}

type CompareConfig struct {
	MaxParallel int `json:"max_parallel"`
}

type UploadConfig struct {
	MaxBytes int64 `json:"max_bytes"`
}

type JobConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"`
}

type JobsConfig struct {
	EmbeddingCacheCleanup JobConfig `json:"embedding_cache_cleanup"`
	CacheMaxAgeDays       int       `json:"cache_max_age_days"`
	StaleIngestReaper     JobConfig `json:"stale_ingest_reaper"`
	StaleAfterMinutes     int       `json:"stale_after_minutes"`
}

const (
	DefaultChunkTargetSize = 512
	DefaultChunkOverlap    = 50
	DefaultTopK            = 5
	DefaultThreshold       = 0.3
	defaultOllamaBaseURL   = "http://localhost:11434"
)

func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{TargetSize: DefaultChunkTargetSize, Overlap: DefaultChunkOverlap}
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{TopK: DefaultTopK, Threshold: DefaultThreshold}
}

func Load(path string) (*Config, error) {
	envFile := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	cfg, err := decode(path, raw)
	if err != nil {
		return nil, err
	}
	cfg.fillAIDefaults()
	applyEnv(cfg)
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode reads JSON, or YAML for .yaml/.yml files; YAML is routed through JSON so both share the json tags.
// Chunk and retrieval settings start from their defaults so an explicit zero
// overlap or threshold survives decoding.
func decode(path string, raw []byte) (*Config, error) {
	cfg := Config{Chunk: DefaultChunkConfig(), Retrieval: DefaultRetrievalConfig()}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var tree map[string]interface{}
		if err := yaml.Unmarshal(raw, &tree); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		data, err := json.Marshal(tree)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		raw = data
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("PAPERQA_DB_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	overrides := map[string]map[string]string{
		"ollama": {
			"base_url": os.Getenv("PAPERQA_OLLAMA_BASE_URL"),
		},
		"gemini": {
			"api_key": os.Getenv("PAPERQA_GEMINI_API_KEY"),
		},
		"openai": {
			"api_key": os.Getenv("PAPERQA_OPENAI_API_KEY"),
		},
	}
	for i := range cfg.AI.Providers {
		p := &cfg.AI.Providers[i]
		values := overrides[strings.ToLower(p.Type)]
		for key, value := range values {
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			data, _ := p.Data.(map[string]interface{})
			if data == nil {
				data = map[string]interface{}{}
			}
			data[key] = value
			p.Data = data
		}
	}
	if v := strings.TrimSpace(os.Getenv("PAPERQA_OLLAMA_MODEL")); v != "" {
		for i := range cfg.AI.Generator {
			if cfg.providerType(cfg.AI.Generator[i].Provider) == "ollama" {
				cfg.AI.Generator[i].Model = v
			}
		}
	}
}

func (c *Config) providerType(name string) string {
	for _, p := range c.AI.Providers {
		if p.Name == name {
			return strings.ToLower(p.Type)
		}
	}
	return ""
}

func (c *Config) fillAIDefaults() {
	if len(c.AI.Providers) == 0 {
		c.AI.Providers = []ProviderConfig{{
			Name: "ollama",
			Type: "ollama",
			Data: map[string]interface{}{"base_url": defaultOllamaBaseURL},
		}}
	}
	if len(c.AI.Generator) == 0 {
		c.AI.Generator = []ModelRef{{Provider: c.AI.Providers[0].Name, Model: "mistral"}}
	}
	if len(c.AI.Embedder) == 0 {
		c.AI.Embedder = []ModelRef{{Provider: c.AI.Providers[0].Name, Model: "nomic-embed-text"}}
	}
}

func (c *Config) applyDefaults() error {
	if c.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if c.LogConfig.Level == "" {
		c.LogConfig.Level = "info"
	}
	if c.VectorIndex.Type == "" {
		c.VectorIndex.Type = "memory"
		if c.Database.Enabled() {
			c.VectorIndex.Type = "postgres"
		}
	}
	switch c.VectorIndex.Type {
	case "memory":
	case "postgres":
		if !c.Database.Enabled() {
			return fmt.Errorf("database is required for postgres vector index")
		}
	default:
		return fmt.Errorf("vector_index.type must be memory or postgres")
	}
	if c.FileStore.Type == "" {
		c.FileStore.Type = "local"
		if c.FileStore.Data == nil {
			c.FileStore.Data = map[string]interface{}{"dir": "uploads"}
		}
	}
	for _, ref := range append(append([]ModelRef{}, c.AI.Generator...), c.AI.Embedder...) {
		if c.providerType(ref.Provider) == "" {
			return fmt.Errorf("ai model %q refers to unknown provider %q", ref.Model, ref.Provider)
		}
		if strings.TrimSpace(ref.Model) == "" {
			return fmt.Errorf("ai model name is required for provider %q", ref.Provider)
		}
	}
	if c.AI.GenerationTimeout <= 0 {
		c.AI.GenerationTimeout = 120
	}
	if c.AI.AnswerCacheSize == 0 {
		c.AI.AnswerCacheSize = 1000
	}
	if c.AI.AnswerCacheTTL == 0 {
		c.AI.AnswerCacheTTL = 3600
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 32
	}
	if c.Embedding.Cache.DB && !c.Database.Enabled() {
		return fmt.Errorf("embedding.cache.db requires database")
	}
	if c.Chunk.TargetSize <= 0 {
		c.Chunk.TargetSize = DefaultChunkTargetSize
	}
	if c.Chunk.Overlap < 0 || c.Chunk.Overlap >= c.Chunk.TargetSize {
		return fmt.Errorf("chunk.overlap must be in [0, chunk.target_size)")
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = DefaultTopK
	}
	if c.Compare.MaxParallel <= 0 {
		c.Compare.MaxParallel = 4
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 50 * 1024 * 1024
	}
	if c.Jobs.EmbeddingCacheCleanup.Spec == "" {
		c.Jobs.EmbeddingCacheCleanup.Spec = "0 3 * * *"
	}
	if c.Jobs.CacheMaxAgeDays <= 0 {
		c.Jobs.CacheMaxAgeDays = 30
	}
	if c.Jobs.StaleIngestReaper.Spec == "" {
		c.Jobs.StaleIngestReaper.Spec = "*/10 * * * *"
	}
	if c.Jobs.StaleAfterMinutes <= 0 {
		c.Jobs.StaleAfterMinutes = 30
	}
	return nil
}
