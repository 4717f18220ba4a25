package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/itsflipper/PiepsLama/cmd/piepslama/log"
	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/config"
	"github.com/itsflipper/PiepsLama/internal/event"
	"github.com/itsflipper/PiepsLama/internal/game"
	"github.com/itsflipper/PiepsLama/internal/learning"
	"github.com/itsflipper/PiepsLama/internal/messenger"
	"github.com/itsflipper/PiepsLama/internal/planner"
	"github.com/itsflipper/PiepsLama/internal/queue"
	"github.com/itsflipper/PiepsLama/internal/recovery"
	"github.com/itsflipper/PiepsLama/internal/supervisor"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configDir := flag.String("config", "config", "configuration directory")
	flag.Parse()

	// .env is optional; real deployments export the secrets directly.
	_ = godotenv.Load()

	if err := config.Load(*configDir); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := config.Cfg

	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.FlushAndClose()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := botstate.NewManager(logger)

	client, err := game.NewClient(cfg.Bridge.URL,
		time.Duration(cfg.Bridge.ReconnectDelayMs)*time.Millisecond,
		time.Duration(cfg.Bridge.HandshakeTimeout)*time.Millisecond,
		logger)
	if err != nil {
		return fmt.Errorf("creating bridge client: %w", err)
	}

	learnings, err := learning.Open(cfg.Learning.DBPath, cfg.Learning.CategoryCapacity, cfg.Learning.EvictFraction, logger)
	if err != nil {
		return fmt.Errorf("opening learning store: %w", err)
	}

	recoveryEngine := recovery.NewEngine(learnings, cfg.Execution.MaxRetries,
		time.Duration(cfg.Execution.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Execution.BackoffMaxMs)*time.Millisecond,
		logger)

	llm := planner.NewClient(cfg.Planner.BaseURL, cfg.Planner.APIKey, cfg.Planner.Model,
		time.Duration(cfg.Planner.TimeoutMs)*time.Millisecond)
	plans := planner.New(llm, logger)

	manager := queue.NewManager(queue.Deps{
		Cfg:       cfg,
		State:     state,
		Executor:  client,
		World:     client.World,
		Validator: action.NewValidator(cfg.Execution.DefaultActionTimeoutMs),
		Planner:   plans,
		Learnings: learnings,
		Recovery:  recoveryEngine,
		Logger:    logger,
	})

	msgr := buildMessenger(cfg, logger)
	defer msgr.Close()

	translator := event.NewTranslator(cfg, state, logger)
	sup := supervisor.New(cfg, client, translator, manager, learnings, recoveryEngine, msgr, state, logger)

	logger.Info("PiepsLama starting", slog.String("bridge", cfg.Bridge.URL), slog.String("model", cfg.Planner.Model))

	err = sup.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Supervisor exited", slog.String("error", err.Error()))
		return err
	}
	logger.Info("PiepsLama stopped")
	return nil
}

// buildMessenger wires the enabled chat sinks; a sink that fails to start is
// skipped with a warning so the agent still runs.
func buildMessenger(cfg *config.Config, logger *slog.Logger) *messenger.Messenger {
	var sinks []messenger.Sink

	if cfg.Discord.Enabled {
		sink, err := messenger.NewDiscordSink(cfg.Discord.Token, cfg.Discord.ChannelID)
		if err != nil {
			logger.Warn("Discord sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if cfg.Telegram.Enabled {
		sink, err := messenger.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Warn("Telegram sink disabled", slog.String("error", err.Error()))
		} else {
			sinks = append(sinks, sink)
		}
	}

	return messenger.New(logger, sinks...)
}
