// Package supervisor owns the process lifecycle: it wires the bridge client,
// the event pipeline, the queue manager and the learning store together and
// runs them under one errgroup so any fatal failure tears everything down.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/config"
	"github.com/itsflipper/PiepsLama/internal/event"
	"github.com/itsflipper/PiepsLama/internal/game"
	"github.com/itsflipper/PiepsLama/internal/learning"
	"github.com/itsflipper/PiepsLama/internal/messenger"
	"github.com/itsflipper/PiepsLama/internal/queue"
	"github.com/itsflipper/PiepsLama/internal/recovery"
)

// watchdogInterval is how often the panic predicate is evaluated.
const watchdogInterval = 10 * time.Second

// Supervisor runs the agent. It sits between the dispatcher and the queue
// manager as the event processor, adding the side effects that are not queue
// transitions: chat command replies and outbound notifications.
type Supervisor struct {
	cfg        *config.Config
	logger     *slog.Logger
	client     *game.Client
	translator *event.Translator
	dispatcher *event.Dispatcher
	manager    *queue.Manager
	learnings  *learning.Store
	recovery   *recovery.Engine
	messenger  *messenger.Messenger
	state      *botstate.Manager
}

func New(
	cfg *config.Config,
	client *game.Client,
	translator *event.Translator,
	manager *queue.Manager,
	learnings *learning.Store,
	recoveryEngine *recovery.Engine,
	msgr *messenger.Messenger,
	state *botstate.Manager,
	logger *slog.Logger,
) *Supervisor {
	s := &Supervisor{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "supervisor")),
		client:     client,
		translator: translator,
		manager:    manager,
		learnings:  learnings,
		recovery:   recoveryEngine,
		messenger:  msgr,
		state:      state,
	}
	s.dispatcher = event.NewDispatcher(s, cfg.Dispatcher.MaxQueueDepth, cfg.StatusUpdateInterval(), logger)
	return s
}

// Run blocks until ctx is cancelled or a component fails fatally.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.client.Run(ctx)
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return s.learnings.Run(ctx)
	})

	g.Go(func() error {
		return s.dispatcher.Run(ctx)
	})

	g.Go(func() error {
		return s.pumpSignals(ctx)
	})

	g.Go(func() error {
		return s.watchdog(ctx)
	})

	s.manager.Start()
	s.messenger.Send(messenger.Notify(messenger.SeverityInfo, "Agent online", "connected to %s", s.cfg.Bridge.URL))

	err := g.Wait()

	s.manager.Shutdown()
	s.messenger.Send(messenger.Notify(messenger.SeverityInfo, "Agent offline", "shutting down"))
	return err
}

// pumpSignals is the single consumer of the bridge observation stream.
func (s *Supervisor) pumpSignals(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-s.client.Signals():
			if msg := s.translator.Translate(sig); msg != nil {
				s.dispatcher.Dispatch(*msg)
			}
		}
	}
}

// watchdog converts the accumulated-critical-errors predicate into a fatal
// supervisor error so external orchestration restarts the process.
func (s *Supervisor) watchdog(ctx context.Context) error {
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s.recovery.ShouldPanic() {
				s.messenger.Send(messenger.Notify(messenger.SeverityCritical,
					"Agent panic", "too many critical errors in the last minute, restarting"))
				return fmt.Errorf("too many critical errors, requesting restart")
			}
		}
	}
}

// ProcessEvent implements event.Processor. Notification and chat-reply side
// effects run first, then the event is handed to the queue manager.
func (s *Supervisor) ProcessEvent(msg event.Message) error {
	s.notify(msg)

	if msg.Type == event.TypeChatReceived {
		if text, _ := msg.Data.Details["message"].(string); strings.EqualFold(text, "!status") {
			s.replyStatus()
			return nil
		}
	}

	return s.manager.ProcessEvent(msg)
}

// notify forwards the notable events to the configured chat services.
func (s *Supervisor) notify(msg event.Message) {
	switch msg.Type {
	case event.TypeDeath:
		reason, _ := msg.Data.Details["reason"].(string)
		s.messenger.Send(messenger.Notify(messenger.SeverityCritical, "Agent died", "cause: %s", reason))
	case event.TypeDamageReceived:
		if msg.Response.ActionRequired == event.ActionInterrupt {
			snap := s.state.Snapshot()
			s.messenger.Send(messenger.Notify(messenger.SeverityWarning,
				"Emergency", "critical damage, health %d/20", snap.Health))
		}
	case event.TypeConnectionLost:
		s.messenger.Send(messenger.Notify(messenger.SeverityWarning, "Bridge connection lost", "execution paused"))
	case event.TypeConnectionBack:
		s.messenger.Send(messenger.Notify(messenger.SeverityInfo, "Bridge connection restored", "execution resumed"))
	case event.TypeChatReceived:
		if msg.Response.ActionRequired == event.ActionReset {
			s.messenger.Send(messenger.Notify(messenger.SeverityWarning, "Hard reset", "requested via chat"))
		}
	}
}

// replyStatus answers the in-game !status command with a one-line summary.
func (s *Supervisor) replyStatus() {
	snap := s.state.Snapshot()
	ms := s.manager.Status()

	queueName := string(ms.ActiveQueue)
	if queueName == "" {
		queueName = "none"
	}
	progress := ""
	if ms.Active != nil {
		progress = fmt.Sprintf(" [%d/%d %s]", ms.Active.CurrentIndex, ms.Active.QueueLength, ms.Active.State)
	}

	text := fmt.Sprintf("hp %d/20 food %d/20 | queue %s%s | goal: %s | actions ok/failed %d/%d",
		snap.Health, snap.Food, queueName, progress, orDash(snap.Goal), snap.ActionsExecuted, snap.ActionsFailed)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.client.Execute(ctx, "sendChat", map[string]any{"message": text}); err != nil {
		s.logger.Warn("Status reply failed", slog.String("error", err.Error()))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
