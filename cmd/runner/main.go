package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sdqueue/internal/config"
	"sdqueue/internal/logging"
	"sdqueue/internal/queue"
	"sdqueue/internal/sdapi"
	"sdqueue/internal/telemetry"
	"sdqueue/internal/worker"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := queue.EnsureDirs(cfg.QueueDir, cfg.ArchiveDir, cfg.OutputDir); err != nil {
		logger.Fatal().Err(err).Msg("prepare directories")
	}
	st, err := queue.NewStore(cfg.QueueDir, cfg.ArchiveDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("open queue")
	}
	sink, err := worker.NewResultSink(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("init result sink")
	}

	sdLogger := logger.With().Str("component", "sdapi").Logger()
	client := sdapi.New(sdapi.Options{
		BaseURL:         cfg.SDBaseURL,
		GeneratePath:    cfg.SDGeneratePath,
		ProgressPath:    cfg.SDProgressPath,
		SubmitTimeout:   cfg.SDSubmitTimeout,
		ProgressTimeout: cfg.SDProgressTimeout,
		Logger:          &sdLogger,
	})
	processor := worker.NewProcessor(cfg, st, client, sink, logger)

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: telemetry.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	logger.Info().
		Str("queue", cfg.QueueDir).
		Str("archive", cfg.ArchiveDir).
		Str("outputs", cfg.OutputDir).
		Str("sd", cfg.SDBaseURL).
		Dur("scan_interval", cfg.ScanInterval).
		Msg("runner started")
	if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("runner stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	logger.Info().Msg("runner exited")
}
