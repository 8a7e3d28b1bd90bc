package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/paperqa/internal/handler"
	"github.com/xxxsen/paperqa/internal/job"
	"github.com/xxxsen/paperqa/internal/middleware"
	"github.com/xxxsen/paperqa/internal/schedule"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "paperqa",
		Short: "question answering over research papers",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run paperqa server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	ingestCmd := &cobra.Command{
		Use:   "ingest <pdf>...",
		Short: "ingest PDF files and print their paper ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if cfg.VectorIndex.Type == "memory" {
				logutil.GetLogger(context.Background()).Warn("memory vector index: ingested papers are dropped when the command exits")
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return ingestFiles(cmd.Context(), a, args)
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "list models installed on the configured providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			models, err := a.ai.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			names := make([]string, 0, len(models))
			for name := range models {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				for _, m := range models[name] {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, m)
				}
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json or config.yaml")
	rootCmd.AddCommand(runCmd, ingestCmd, modelsCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func ingestFiles(ctx context.Context, a *app, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return err
		}
		paper, err := a.papers.Upload(ctx, filepath.Base(path), f, info.Size())
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Printf("%s\t%s\t%d chunks\n", paper.ID, path, paper.ChunkCount)
	}
	return nil
}

func runServer(a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_index", cfg.VectorIndex.Type),
		zap.String("file_store", cfg.FileStore.Type),
	)

	deps := handler.RouterDeps{
		Papers:      handler.NewPaperHandler(a.papers, cfg.Upload.MaxBytes),
		Health:      handler.NewHealthHandler(a.papers),
		RateLimitMS: cfg.RateLimitMS,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Jobs.EmbeddingCacheCleanup.Enabled && a.embedCache != nil {
		if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.embedCache, cfg.Jobs.CacheMaxAgeDays), cfg.Jobs.EmbeddingCacheCleanup.Spec); err != nil {
			return err
		}
	}
	if cfg.Jobs.StaleIngestReaper.Enabled {
		staleAfter := time.Duration(cfg.Jobs.StaleAfterMinutes) * time.Minute
		if err := scheduler.AddJob(job.NewStaleIngestReaperJob(a.papers, staleAfter), cfg.Jobs.StaleIngestReaper.Spec); err != nil {
			return err
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
