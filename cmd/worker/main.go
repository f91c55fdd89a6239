// File: cmd/worker/main.go
// Standalone worker: claims and processes jobs on a fixed cadence, for
// deployments where processing runs separately from the API.
package main

import (
	"context"
	"errors"
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
	"canvas-imagegen/internal/infra/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop image service allowed)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	metrics.MustRegister()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 5)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	tm := pg.NewTxManager(pool)
	jobRepo := pg.NewJobRepo(pool, tm)
	genRepo := pg.NewGenerationRepo(pool)
	userRepo := pg.NewUserRepo(pool)

	store, err := blob.NewFileStore(cfg.Storage.Path, cfg.Storage.BaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("storage")
	}

	imageSvc, err := buildImageService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("image service")
	}

	proc := worker.NewJobProcessor(
		jobRepo, genRepo, userRepo, imageSvc, store,
		red.NewEvents(redisClient, logger),
		red.NewLocker(redisClient),
		tm,
		worker.Config{
			StuckThreshold: cfg.Worker.StuckThreshold,
			CallTimeout:    cfg.AI.CallTimeout,
			FetchTimeout:   cfg.AI.FetchTimeout,
		},
		logger,
	)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
		logger.Info().Msg("shutdown requested")
		cancel()
	}()

	interval := cfg.Worker.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if err := proc.Run(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped")
	}
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
