package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/ai"
	"github.com/xxxsen/paperqa/internal/chunker"
	"github.com/xxxsen/paperqa/internal/config"
	"github.com/xxxsen/paperqa/internal/db"
	"github.com/xxxsen/paperqa/internal/embedcache"
	"github.com/xxxsen/paperqa/internal/extract"
	"github.com/xxxsen/paperqa/internal/filestore"
	"github.com/xxxsen/paperqa/internal/rag"
	"github.com/xxxsen/paperqa/internal/repo"
	"github.com/xxxsen/paperqa/internal/retriever"
	"github.com/xxxsen/paperqa/internal/service"
	"github.com/xxxsen/paperqa/internal/vectorindex"
)

type app struct {
	cfg        *config.Config
	db         *sql.DB
	ai         *ai.Manager
	papers     *service.PaperService
	embedCache *repo.EmbeddingCacheRepo
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", path))
	return cfg, nil
}

// openDB connects and migrates; tests replace it to avoid a live server.
var openDB = func(cfg config.DatabaseConfig) (*sql.DB, error) {
	conn, err := db.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return conn, nil
}

// buildApp wires every component. On failure anything already opened is closed.
func buildApp(cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	var papers service.PaperStore = repo.NewMemoryPaperRepo()
	if cfg.Database.Enabled() {
		conn, err := openDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = conn
		papers = repo.NewPaperRepo(conn)
		a.embedCache = repo.NewEmbeddingCacheRepo(conn)
	}

	manager, err := ai.NewManager(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai: %w", err)
	}
	a.ai = manager

	embedder := manager.Embedder()
	if cfg.Embedding.Cache.DB && a.embedCache != nil {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, a.embedCache)
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Embedding.Cache.LRUSize, time.Duration(cfg.Embedding.Cache.LRUTTLSeconds)*time.Second)
	gateway := ai.NewEmbeddingGateway(embedder, cfg.Embedding.BatchSize, cfg.Embedding.Dimension)

	index, err := vectorindex.New(cfg.VectorIndex, a.db)
	if err != nil {
		return nil, fmt.Errorf("init vector index: %w", err)
	}
	ck, err := chunker.New(cfg.Chunk)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	extractor := extract.NewGroupExtractor([]extract.Entry{
		{Name: "pdf", Extractor: extract.NewPDFExtractor()},
		{Name: "fitz", Extractor: extract.NewFitzExtractor()},
	})

	r := retriever.New(gateway, index, cfg.Retrieval)
	a.papers = service.NewPaperService(service.PaperServiceDeps{
		Papers:    papers,
		Files:     store,
		Extractor: extractor,
		Chunker:   ck,
		Embedder:  gateway,
		Index:     index,
		IndexType: cfg.VectorIndex.Type,
		Retriever: r,
		Generator: manager,
		Composer:  rag.NewComposer(manager, rag.WithAnswerCache(cfg.AI.AnswerCacheSize, time.Duration(cfg.AI.AnswerCacheTTL)*time.Second)),
		Compare:   rag.NewComparator(r, manager, cfg.Compare.MaxParallel),
		Backends:  manager,
	})
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}
