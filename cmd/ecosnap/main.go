package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ecosnap/ecosnap/internal/config"
	"github.com/ecosnap/ecosnap/internal/httpserver"
	"github.com/ecosnap/ecosnap/internal/llm"
	"github.com/ecosnap/ecosnap/internal/pipeline"
	"github.com/ecosnap/ecosnap/internal/ratelimit"
	"github.com/ecosnap/ecosnap/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize upload store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("upload store initialized")

	images, err := storage.NewDiskImageStore(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize image store")
	}

	governor := ratelimit.New(ratelimit.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MinInterval:   cfg.MinInterval,
		Quota:         cfg.Quota,
		Window:        cfg.QuotaWindow,
	})

	primary, err := llm.NewOpenRouterClient(llm.OpenRouterConfig{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.OpenRouterModel,
	}, governor)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize primary vision client")
	}
	log.Info().Msg("openrouter vision client initialized")

	// The fallback is resolved once at startup; a nil fallback means the
	// pipeline fails over to an immediate error instead.
	var fallback llm.Analyzer
	if cfg.OllamaEnabled {
		fallback = llm.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel)
		log.Info().Str("baseURL", cfg.OllamaBaseURL).Msg("ollama fallback enabled")
	} else {
		log.Info().Msg("no fallback provider configured")
	}

	orchestrator := pipeline.NewOrchestrator(store, primary, fallback)
	pool := pipeline.NewPool(orchestrator, cfg.Workers, cfg.QueueSize)

	handler := httpserver.New(store, images, pool, primary, fallback)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler,
	}

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pool.Start(ctx)
	})

	g.Go(func() error {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}
