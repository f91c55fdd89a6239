// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"canvas-imagegen/internal/config"
	"canvas-imagegen/internal/domain/ports/adapter"
	"canvas-imagegen/internal/infra/adapters/blob"
	"canvas-imagegen/internal/infra/adapters/imagegen"
	pg "canvas-imagegen/internal/infra/db/postgres"
	"canvas-imagegen/internal/infra/logging"
	"canvas-imagegen/internal/infra/metrics"
	red "canvas-imagegen/internal/infra/redis"
	"canvas-imagegen/internal/infra/web"
	"canvas-imagegen/internal/infra/worker"
	"canvas-imagegen/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop image service allowed)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 30*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)
	events := red.NewEvents(redisClient, logger)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	genRepo := pg.NewGenerationRepo(pool)
	userRepo := pg.NewUserRepo(pool)

	// ---- Storage ----
	store, err := blob.NewFileStore(cfg.Storage.Path, cfg.Storage.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	// ---- Image service (Gemini -> OpenAI -> noop in dev) ----
	imageSvc, err := buildImageService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("image service")
	}
	imageSvc = imagegen.NewLimitedImageService(imageSvc, cfg.Worker.Workers)

	// ---- Use cases ----
	enqueueUC := usecase.NewEnqueueUseCase(jobRepo, userRepo, rateLimiter, 10, time.Minute, logger)
	galleryUC := usecase.NewGalleryUseCase(genRepo, userRepo, logger)

	// ---- Worker pool + processor ----
	proc := worker.NewJobProcessor(jobRepo, genRepo, userRepo, imageSvc, store, events, locker, tm, worker.Config{
		StuckThreshold: cfg.Worker.StuckThreshold,
		CallTimeout:    cfg.AI.CallTimeout,
		FetchTimeout:   cfg.AI.FetchTimeout,
	}, logger)
	workerPool := worker.NewPool(cfg.Worker.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	submit := func() error {
		return workerPool.Submit(func(ctx context.Context) error {
			proc.ProcessOne(ctx)
			return nil
		})
	}

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.Web.WorkerSecret, cfg.Web.JWTHMACSecret)
	srv := web.NewServer(enqueueUC, galleryUC, auth, submit, logger)
	go func() {
		if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.Web.Port)); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
}

func buildImageService(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (adapter.ImageServiceAdapter, error) {
	if cfg.AI.GeminiKey != "" {
		svc, err := imagegen.NewGeminiAdapter(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.GeminiModel)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("model", cfg.AI.GeminiModel).Msg("image service: gemini")
		return svc, nil
	}
	if cfg.AI.OpenAIKey != "" {
		svc, err := imagegen.NewOpenAIAdapter(cfg.AI.OpenAIKey, cfg.AI.OpenAIModel)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("model", cfg.AI.OpenAIModel).Msg("image service: openai")
		return svc, nil
	}
	if cfg.Runtime.Dev {
		logger.Warn().Msg("no image provider configured, using noop service")
		return imagegen.NewNoopAdapter(), nil
	}
	return nil, fmt.Errorf("no image provider configured: set ai.gemini_key or ai.openai_key")
}
