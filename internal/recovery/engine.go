package recovery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/itsflipper/PiepsLama/internal/learning"
)

// Strategy tells the caller what to do next. retry/retry_with_backoff drive
// another attempt of the same action; the abort/new-plan family are state
// machine transitions; emergency_mode and reconnect are signals handled by
// dedicated paths.
type Strategy string

const (
	StrategyRetry            Strategy = "retry"
	StrategyRetryWithBackoff Strategy = "retry_with_backoff"
	StrategyFallback         Strategy = "fallback"
	StrategyAbortAction      Strategy = "abort_action"
	StrategyAbortQueue       Strategy = "abort_queue"
	StrategyRequestNewPlan   Strategy = "request_new_plan"
	StrategyEmergencyMode    Strategy = "emergency_mode"
	StrategyReconnect        Strategy = "reconnect"
	StrategyIgnore           Strategy = "ignore"
)

// ErrorContext tells the engine where the error happened.
type ErrorContext struct {
	QueueType  string
	ActionName string
	Category   string // action catalog category, becomes the learning category
	Attempt    int    // 0-based attempt count for the failing action
}

// Result is the engine's verdict for one handled error.
type Result struct {
	Strategy       Strategy
	Classification Classification
	LearningWorthy bool
}

const (
	maxHistory      = 50
	repeatThreshold = 3
	repeatWindow    = 60 * time.Second
	panicThreshold  = 3
	panicWindow     = time.Minute
)

type historyEntry struct {
	code     string
	message  string
	severity Severity
	at       time.Time
}

// LearningSink receives anti-action learnings, best-effort.
type LearningSink interface {
	Add(queueType string, l learning.Learning)
}

// Engine classifies errors, selects recovery strategies and keeps a bounded
// rolling history for repeat-pattern detection and the panic predicate.
type Engine struct {
	logger     *slog.Logger
	learnings  LearningSink
	maxRetries int

	backoffInitial time.Duration
	backoffMax     time.Duration

	mu      sync.Mutex
	history []historyEntry
}

func NewEngine(learnings LearningSink, maxRetries int, backoffInitial, backoffMax time.Duration, logger *slog.Logger) *Engine {
	return &Engine{
		logger:         logger,
		learnings:      learnings,
		maxRetries:     maxRetries,
		backoffInitial: backoffInitial,
		backoffMax:     backoffMax,
	}
}

// NewBackOff returns a fresh exponential backoff sequence for one action's
// retry run: non-decreasing delays capped at the configured max, never
// expiring on elapsed time (the retry count bound is enforced separately).
func (e *Engine) NewBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.backoffInitial
	bo.MaxInterval = e.backoffMax
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// HandleError classifies err, records it, picks a strategy and emits an
// anti-action learning when the strategy is learning-worthy. It never fails:
// the worst outcome is an abort_action verdict.
func (e *Engine) HandleError(err error, ec ErrorContext) Result {
	classification := Classify(err)
	code, _ := errorCodeAndMessage(err)
	e.record(code, err.Error(), classification.Severity)

	strategy := defaultStrategyFor(classification)

	// Repeated similar failures mean the plan itself is wrong; stop retrying
	// the same action and ask for a new plan instead. A known pattern's
	// declared strategy still wins.
	if classification.Pattern == "" && e.similarCount(code, err.Error()) >= repeatThreshold {
		strategy = StrategyRequestNewPlan
	}

	// Bounded attempts: once retries are exhausted, escalate to giving up on
	// the action and learning from it.
	if (strategy == StrategyRetry || strategy == StrategyRetryWithBackoff) && ec.Attempt >= e.maxRetries {
		strategy = StrategyAbortAction
	}

	result := Result{
		Strategy:       strategy,
		Classification: classification,
		LearningWorthy: learningWorthy(strategy),
	}

	level := slog.LevelWarn
	if classification.Severity >= SeverityCritical {
		level = slog.LevelError
	}
	e.logger.Log(context.Background(), level, "Handled action error",
		slog.String("queue", ec.QueueType),
		slog.String("action", ec.ActionName),
		slog.String("error", err.Error()),
		slog.String("category", string(classification.Category)),
		slog.Int("severity", int(classification.Severity)),
		slog.String("strategy", string(strategy)),
		slog.Int("attempt", ec.Attempt))

	if result.LearningWorthy && e.learnings != nil && ec.ActionName != "" {
		e.learnings.Add(ec.QueueType, learning.Learning{
			Category:     ec.Category,
			LearningType: learning.TypeAntiAction,
			Content:      "avoid " + ec.ActionName + ": " + err.Error(),
			Confidence:   0.6,
			Context: map[string]any{
				"action":   ec.ActionName,
				"strategy": string(strategy),
				"category": string(classification.Category),
			},
		})
	}

	return result
}

// learningWorthy: the abort/new-plan family always teaches something;
// emergency_mode and reconnect are handled by dedicated paths and suppressed;
// plain retries are not learnings yet.
func learningWorthy(s Strategy) bool {
	switch s {
	case StrategyFallback, StrategyAbortAction, StrategyAbortQueue, StrategyRequestNewPlan:
		return true
	default:
		return false
	}
}

// ShouldPanic reports whether the agent accumulated enough critical errors
// recently that external orchestration should restart it.
func (e *Engine) ShouldPanic() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-panicWindow)
	critical := 0
	for _, h := range e.history {
		if h.severity >= SeverityCritical && h.at.After(cutoff) {
			critical++
		}
	}
	return critical >= panicThreshold
}

func (e *Engine) record(code, message string, severity Severity) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = append(e.history, historyEntry{code: code, message: message, severity: severity, at: time.Now()})
	if len(e.history) > maxHistory {
		e.history = e.history[len(e.history)-maxHistory:]
	}
}

// similarCount counts recent history entries with the same code or message.
func (e *Engine) similarCount(code, message string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().Add(-repeatWindow)
	count := 0
	for _, h := range e.history {
		if !h.at.After(cutoff) {
			continue
		}
		if (code != "" && h.code == code) || h.message == message {
			count++
		}
	}
	return count
}
