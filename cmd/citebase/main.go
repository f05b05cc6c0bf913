package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/Priyapatil1612/citebase/internal/ai"
	"github.com/Priyapatil1612/citebase/internal/chunker"
	"github.com/Priyapatil1612/citebase/internal/config"
	"github.com/Priyapatil1612/citebase/internal/embedcache"
	"github.com/Priyapatil1612/citebase/internal/fetch"
	"github.com/Priyapatil1612/citebase/internal/handler"
	"github.com/Priyapatil1612/citebase/internal/index"
	"github.com/Priyapatil1612/citebase/internal/job"
	"github.com/Priyapatil1612/citebase/internal/middleware"
	"github.com/Priyapatil1612/citebase/internal/repo"
	"github.com/Priyapatil1612/citebase/internal/schedule"
	"github.com/Priyapatil1612/citebase/internal/search"
	"github.com/Priyapatil1612/citebase/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "citebase",
		Short: "citebase research backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run citebase server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			db, err := repo.Open(cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := repo.ApplyMigrations(db); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, db)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func buildGenerator(cfg *config.Config) (ai.Generator, error) {
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	models := append([]config.ModelConfig{cfg.AI.Chat}, cfg.AI.ChatFallback...)
	entries := make([]ai.GeneratorEntry, 0, len(models))
	for _, m := range models {
		provider, err := ai.NewChatProvider(m.Provider, m.Args)
		if err != nil {
			return nil, fmt.Errorf("init chat provider %s: %w", m.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{
			Name:      m.Provider + "/" + m.Model,
			Generator: ai.NewGenerator(provider, m.Model, timeout),
		})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg *config.Config) (ai.Embedder, error) {
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	models := append([]config.ModelConfig{cfg.AI.Embedding}, cfg.AI.EmbeddingFallback...)
	entries := make([]ai.EmbedderEntry, 0, len(models))
	for _, m := range models {
		provider, err := ai.NewEmbedProvider(m.Provider, m.Args)
		if err != nil {
			return nil, fmt.Errorf("init embedding provider %s: %w", m.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     m.Provider + "/" + m.Model,
			Embedder: ai.NewEmbedder(provider, m.Model, cfg.AI.EmbedBatchSize, timeout),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if cfg.AI.CacheSize > 0 {
		embedder = embedcache.WrapLru(embedder, cfg.AI.CacheSize, time.Duration(cfg.AI.CacheTTLHours)*time.Hour)
	}
	return embedder, nil
}

func runServer(cfg *config.Config, db *sqlx.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore),
		zap.String("search_provider", cfg.Search.Provider),
	)

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return err
	}

	searcher, err := search.NewProvider(cfg.Search.Provider, cfg.Search.Args)
	if err != nil {
		return fmt.Errorf("init search provider: %w", err)
	}

	fetcher := fetch.New(fetch.Config{
		Timeout:    time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
		MaxRetries: cfg.Fetch.MaxRetries,
		RateLimit:  cfg.Fetch.RateLimitRPS,
		UserAgent:  cfg.Fetch.UserAgent,
		MinTextLen: cfg.Fetch.MinTextLen,
	})

	counter, err := chunker.NewTokenCounter(cfg.Research.TokenEncoding)
	if err != nil {
		return err
	}
	splitter := chunker.New(cfg.Research.ChunkSize, cfg.Research.ChunkOverlap, counter)

	var idx index.Index
	if cfg.VectorStore == "memory" {
		idx = index.NewMemoryIndex()
	} else {
		idx = index.NewPostgresIndex(db)
	}

	projectRepo := repo.NewProjectRepo(db)
	ingestService := service.NewIngestService(searcher, fetcher, splitter, embedder, idx, service.IngestConfig{
		MaxResults:     cfg.Search.MaxResults,
		MaxPages:       cfg.Research.MaxPages,
		PerDomain:      cfg.Research.PerDomain,
		MaxTotalChunks: cfg.Research.MaxTotalChunks,
		Workers:        cfg.Research.Workers,
	})
	answerService := service.NewAnswerService(embedder, generator, idx, service.AnswerConfig{
		TopK: cfg.Research.TopK,
	})
	projectService := service.NewProjectService(projectRepo, ingestService, answerService, idx)

	deps := handler.RouterDeps{
		Projects: handler.NewProjectHandler(projectService),
		Research: handler.NewResearchHandler(projectService),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			middleware.RateLimit(time.Second),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if cfg.Refresh.Enable {
		refreshJob := job.NewRefreshJob(projectRepo, projectService,
			time.Duration(cfg.Refresh.MaxAgeHours)*time.Hour, cfg.Refresh.Batch)
		if err := scheduler.AddJob(refreshJob, cfg.Refresh.Cron); err != nil {
			return fmt.Errorf("schedule refresh job: %w", err)
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
