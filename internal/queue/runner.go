package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/recovery"
)

// behavior is what distinguishes the three contexts from each other. The
// runner drives the shared state machine; the behavior supplies plans,
// resolution/abort conditions and the failure policy.
type behavior interface {
	// acquirePlan fetches and validates the next plan. Called from Idle.
	acquirePlan(ctx context.Context) (action.Plan, error)
	// resolved is re-checked before every action; true completes the plan
	// immediately even with actions still queued.
	resolved() bool
	// abortCheck may abort the mission mid-execution (respawn budget/damage).
	abortCheck() (reason string, abort bool)
	// applyStrategy maps a recovery verdict onto a failure transition.
	applyStrategy(res recovery.Result) failureVerdict
	// perpetual contexts re-plan after exhausting a plan instead of
	// completing (standard); others call onComplete.
	perpetual() bool
	// onPlanDone is called when a plan finishes or aborts, before any
	// completion signal, so the behavior can record learnings.
	onPlanDone(success bool, reason string)
}

type failureVerdict int

const (
	verdictRetry failureVerdict = iota
	verdictRetryBackoff
	verdictFallback
	verdictSkip
	verdictAbort
	verdictReplan
)

// delay between failed plan-acquisition rounds so a broken planner is polled
// on a schedule, not in a tight loop.
const planRetryDelay = 5 * time.Second

// runner is the shared action-execution state machine. Exactly one goroutine
// (spawned by Start) mutates state; Pause/Resume/Stop flip flags under the
// mutex and the loop observes them between actions, so an in-flight action
// always settles before a pause takes effect.
type runner struct {
	queueType botstate.QueueType
	deps      Deps
	logger    *slog.Logger
	b         behavior

	mu    sync.Mutex
	cond  *sync.Cond
	state State
	plan  action.Plan
	index int

	pauseRequested bool
	stopRequested  bool

	cancelRun context.CancelFunc

	onComplete   func(success bool)
	completeOnce sync.Once
}

func newRunner(queueType botstate.QueueType, deps Deps, b behavior, onComplete func(success bool)) *runner {
	r := &runner{
		queueType:  queueType,
		deps:       deps,
		logger:     deps.Logger.With(slog.String("queue", string(queueType))),
		b:          b,
		state:      StateIdle,
		onComplete: onComplete,
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (r *runner) Type() botstate.QueueType {
	return r.queueType
}

func (r *runner) Status() ContextStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ContextStatus{
		State:        r.state,
		Goal:         r.plan.Goal,
		CurrentIndex: r.index,
		QueueLength:  len(r.plan.Actions),
	}
}

// Start launches the state machine goroutine. Idempotent: a second Start on
// a running context is a no-op.
func (r *runner) Start() {
	r.mu.Lock()
	if r.cancelRun != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancelRun = cancel
	r.mu.Unlock()

	go r.run(ctx)
}

// Pause lets the in-flight action settle and parks the loop before the next
// action. The pending action list survives for Resume.
func (r *runner) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pauseRequested || r.state == StateComplete || r.state == StateAborted {
		return
	}
	r.pauseRequested = true
	r.logger.Info("Context pause requested", slog.String("state", string(r.state)))
}

// Resume continues from the exact pending action list.
func (r *runner) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.pauseRequested {
		return
	}
	r.pauseRequested = false
	r.logger.Info("Context resumed", slog.Int("index", r.index), slog.Int("remaining", len(r.plan.Actions)-r.index))
	r.cond.Broadcast()
}

// Stop is the hard-cancel: it discards all context state and cancels any
// in-flight call.
func (r *runner) Stop() {
	r.mu.Lock()
	r.stopRequested = true
	r.pauseRequested = false
	cancel := r.cancelRun
	r.cond.Broadcast()
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// signalComplete invokes onComplete at most once.
func (r *runner) signalComplete(success bool) {
	r.completeOnce.Do(func() {
		if r.onComplete != nil {
			r.onComplete(success)
		}
	})
}

func (r *runner) run(ctx context.Context) {
	for {
		if r.stopped() {
			r.setState(StateAborted)
			return
		}
		r.waitWhilePaused()
		if r.stopped() {
			r.setState(StateAborted)
			return
		}

		plan, err := r.b.acquirePlan(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.setState(StateAborted)
				return
			}
			r.logger.Warn("Plan acquisition failed", slog.String("error", err.Error()))
			if !r.sleepInterruptible(ctx, planRetryDelay) {
				r.setState(StateAborted)
				return
			}
			continue
		}

		r.mu.Lock()
		r.plan = plan
		r.index = 0
		r.mu.Unlock()
		r.deps.State.SetGoal(plan.Goal, "")
		r.logger.Info("Plan accepted", slog.String("goal", plan.Goal), slog.Int("actions", len(plan.Actions)))

		outcome := r.executePlan(ctx)
		switch outcome {
		case planOutcomeStopped:
			r.setState(StateAborted)
			return
		case planOutcomeAborted:
			r.setState(StateAborted)
			r.signalComplete(false)
			return
		case planOutcomeDone:
			// Perpetual contexts re-plan until their condition (if any)
			// resolves; standard has no condition and cycles forever.
			if r.b.perpetual() && !r.b.resolved() {
				continue
			}
			r.setState(StateComplete)
			r.signalComplete(true)
			return
		}
	}
}

type planOutcome int

const (
	planOutcomeDone planOutcome = iota
	planOutcomeAborted
	planOutcomeStopped
)

// executePlan drives CheckCondition → ExecuteAction → HandleFailure over the
// current plan.
func (r *runner) executePlan(ctx context.Context) planOutcome {
	for {
		if r.stopped() {
			return planOutcomeStopped
		}
		r.waitWhilePaused()
		if r.stopped() {
			return planOutcomeStopped
		}

		r.setState(StateCheckCondition)

		if r.b.resolved() {
			r.logger.Info("Condition resolved, completing with actions still queued",
				slog.Int("remaining", r.remaining()))
			r.b.onPlanDone(true, "resolved")
			return planOutcomeDone
		}

		if reason, abort := r.b.abortCheck(); abort {
			r.logger.Warn("Mission aborted", slog.String("reason", reason))
			r.b.onPlanDone(false, reason)
			return planOutcomeAborted
		}

		r.mu.Lock()
		if r.index >= len(r.plan.Actions) {
			r.mu.Unlock()
			r.b.onPlanDone(true, "plan exhausted")
			return planOutcomeDone
		}
		act := r.plan.Actions[r.index]
		r.mu.Unlock()

		switch r.runAction(ctx, act) {
		case actionOutcomeSuccess:
			r.mu.Lock()
			r.index++
			r.mu.Unlock()
		case actionOutcomeSkip:
			r.mu.Lock()
			r.index++
			r.mu.Unlock()
		case actionOutcomeReplan:
			r.b.onPlanDone(false, "plan rejected mid-execution")
			if r.b.perpetual() {
				return planOutcomeDone
			}
			return planOutcomeAborted
		case actionOutcomeAbort:
			r.b.onPlanDone(false, "action failure escalated")
			return planOutcomeAborted
		case actionOutcomeStopped:
			return planOutcomeStopped
		}
	}
}

type actionOutcome int

const (
	actionOutcomeSuccess actionOutcome = iota
	actionOutcomeSkip
	actionOutcomeReplan
	actionOutcomeAbort
	actionOutcomeStopped
)

// runAction executes one action with retries, fallback replacement and the
// recovery engine's verdicts. Every attempt races the action's own timeout.
func (r *runner) runAction(ctx context.Context, act action.Action) actionOutcome {
	bo := r.deps.Recovery.NewBackOff()
	attempt := 0
	current := act

	for {
		if r.stopped() {
			return actionOutcomeStopped
		}

		r.setState(StateExecuteAction)
		err := r.executeOnce(ctx, current)
		if err == nil {
			r.deps.State.CountActionExecuted()
			return actionOutcomeSuccess
		}
		if ctx.Err() != nil {
			return actionOutcomeStopped
		}

		r.setState(StateHandleFailure)
		r.deps.State.CountActionFailed()

		spec, known := action.Catalog[current.ActionName]
		category := ""
		if known {
			category = string(spec.Category)
		}
		res := r.deps.Recovery.HandleError(err, recovery.ErrorContext{
			QueueType:  string(r.queueType),
			ActionName: current.ActionName,
			Category:   category,
			Attempt:    attempt,
		})

		switch r.b.applyStrategy(res) {
		case verdictRetry:
			attempt++
		case verdictRetryBackoff:
			attempt++
			if !r.sleepInterruptible(ctx, nextDelay(bo)) {
				return actionOutcomeStopped
			}
		case verdictFallback:
			if current.FallbackAction == "" {
				return actionOutcomeSkip
			}
			r.logger.Info("Replacing failed action with fallback",
				slog.String("action", current.ActionName),
				slog.String("fallback", current.FallbackAction))
			replacement := action.Action{
				ActionName:      current.FallbackAction,
				Parameters:      map[string]any{},
				SuccessCriteria: current.SuccessCriteria,
				TimeoutMs:       current.TimeoutMs,
				OriginalIndex:   current.OriginalIndex,
			}
			vr := r.deps.Validator.Validate(replacement, r.deps.World(), r.deps.State.Snapshot(), r.queueType == botstate.QueueEmergency)
			if !vr.IsValid {
				r.logger.Warn("Fallback action invalid, skipping", slog.String("reason", vr.Reason))
				return actionOutcomeSkip
			}
			replacement.Parameters = vr.ValidatedParams
			current = replacement
			current.FallbackAction = ""
			attempt = 0
			bo = r.deps.Recovery.NewBackOff()
		case verdictSkip:
			return actionOutcomeSkip
		case verdictReplan:
			return actionOutcomeReplan
		case verdictAbort:
			return actionOutcomeAbort
		}
	}
}

// executeOnce performs a single attempt bounded by the action's timeout.
func (r *runner) executeOnce(ctx context.Context, act action.Action) error {
	r.deps.State.SetExecutingAction(true, act.ActionName)
	defer r.deps.State.SetExecutingAction(false, "")

	actionCtx, cancel := context.WithTimeout(ctx, act.Timeout(r.deps.Cfg.DefaultActionTimeout()))
	defer cancel()

	_, err := r.deps.Executor.Execute(actionCtx, act.ActionName, act.Parameters)
	return err
}

func (r *runner) setState(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *runner) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopRequested
}

func (r *runner) remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.plan.Actions) - r.index
}

func (r *runner) waitWhilePaused() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.pauseRequested && !r.stopRequested {
		r.state = StatePaused
		r.cond.Wait()
	}
}

// sleepInterruptible sleeps unless the context is cancelled or the runner is
// stopped; returns false when interrupted. The stop watcher is released when
// the sleep ends so completed sleeps leave no goroutine behind.
func (r *runner) sleepInterruptible(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	sleepOver := false
	stopped := make(chan struct{})
	go func() {
		r.mu.Lock()
		for !r.stopRequested && !sleepOver {
			r.cond.Wait()
		}
		stop := r.stopRequested
		r.mu.Unlock()
		if stop {
			close(stopped)
		}
	}()
	defer func() {
		r.mu.Lock()
		sleepOver = true
		r.cond.Broadcast()
		r.mu.Unlock()
	}()

	select {
	case <-ctx.Done():
		return false
	case <-stopped:
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(bo backoff.BackOff) time.Duration {
	d := bo.NextBackOff()
	if d == backoff.Stop {
		return 0
	}
	return d
}

// recentFailureRing keeps the last few failure descriptions for planner
// context.
type recentFailureRing struct {
	mu    sync.Mutex
	items []string
	max   int
}

func newRecentFailureRing(max int) *recentFailureRing {
	return &recentFailureRing{max: max}
}

func (f *recentFailureRing) add(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, s)
	if len(f.items) > f.max {
		f.items = f.items[len(f.items)-f.max:]
	}
}

func (f *recentFailureRing) list() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.items...)
}
