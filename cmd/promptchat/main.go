package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"sdqueue/internal/chat"
	"sdqueue/internal/chatui"
	"sdqueue/internal/config"
	"sdqueue/internal/logging"
	"sdqueue/internal/queue"
)

func main() {
	cfg := config.Load()

	if !stdinIsTTY() {
		fmt.Fprintln(os.Stderr, "promptchat requires an interactive terminal (TTY)")
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create data dir: %v\n", err)
		os.Exit(1)
	}
	// The TUI owns stdout, so logs go to a file next to the queue.
	logPath := filepath.Join(cfg.DataDir, "promptchat.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger := logging.NewWithWriter(cfg.Env, logFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := queue.EnsureDirs(cfg.QueueDir, cfg.ArchiveDir, cfg.OutputDir); err != nil {
		logger.Fatal().Err(err).Msg("prepare directories")
	}
	st, err := queue.NewStore(cfg.QueueDir, cfg.ArchiveDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("open queue")
	}

	chatLogger := logger.With().Str("component", "chat").Logger()
	backend := chat.NewOllamaClient(chat.Options{
		BaseURL:     cfg.OllamaBaseURL,
		Model:       cfg.OllamaModel,
		Temperature: cfg.OllamaTemperature,
		Timeout:     cfg.ChatTimeout,
		Logger:      &chatLogger,
	})
	conv := chat.NewConversation(backend, chat.SystemPrompt)

	logger.Info().Str("model", backend.Model()).Str("queue", cfg.QueueDir).Msg("prompt chat started")
	if err := chatui.Run(ctx, conv, st, cfg.ChatTimeout, logger); err != nil {
		logger.Error().Err(err).Msg("chat ended with error")
		fmt.Fprintf(os.Stderr, "promptchat: %v\n", err)
		os.Exit(1)
	}
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
