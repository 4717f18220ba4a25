package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/learning"
	"github.com/itsflipper/PiepsLama/internal/planner"
	"github.com/itsflipper/PiepsLama/internal/recovery"
)

// standardBehavior is the default execution context: a perpetual plan →
// execute → re-plan cycle that only stops when preempted or reset.
type standardBehavior struct {
	deps     Deps
	logger   *slog.Logger
	failures *recentFailureRing
}

// NewStandard builds the standard context. onComplete fires only on abort;
// the standard cycle itself never completes.
func NewStandard(deps Deps, onComplete func(success bool)) Context {
	b := &standardBehavior{
		deps:     deps,
		logger:   deps.Logger.With(slog.String("queue", string(botstate.QueueStandard))),
		failures: newRecentFailureRing(5),
	}
	return newRunner(botstate.QueueStandard, deps, b, onComplete)
}

func (b *standardBehavior) acquirePlan(ctx context.Context) (action.Plan, error) {
	status := buildStatus(b.deps, b.failures.list())

	plan, err := b.deps.Planner.RequestPlan(ctx, status)
	if err != nil {
		return action.Plan{}, err
	}
	if plan.Empty() {
		return action.Plan{}, fmt.Errorf("planner returned an empty plan")
	}

	validated, err := b.deps.Validator.ValidateQueue(plan.Actions, b.deps.World(), b.deps.State.Snapshot(), false)
	if err != nil {
		// A rejected plan teaches the planner what not to produce; record it
		// and let the natural cycle ask again.
		b.failures.add("plan rejected: " + err.Error())
		b.deps.Learnings.Add(string(botstate.QueueStandard), learning.Learning{
			Category:     learning.CategoryPlanning,
			LearningType: learning.TypeAntiAction,
			Content:      "invalid plan: " + err.Error(),
			Confidence:   0.5,
		})
		return action.Plan{}, err
	}
	plan.Actions = validated
	return plan, nil
}

func (b *standardBehavior) resolved() bool {
	return false
}

func (b *standardBehavior) abortCheck() (string, bool) {
	return "", false
}

func (b *standardBehavior) applyStrategy(res recovery.Result) failureVerdict {
	switch res.Strategy {
	case recovery.StrategyRetry:
		return verdictRetry
	case recovery.StrategyRetryWithBackoff:
		return verdictRetryBackoff
	case recovery.StrategyFallback:
		return verdictFallback
	case recovery.StrategyIgnore:
		return verdictSkip
	case recovery.StrategyAbortAction:
		return verdictSkip
	case recovery.StrategyRequestNewPlan:
		return verdictReplan
	case recovery.StrategyAbortQueue, recovery.StrategyReconnect, recovery.StrategyEmergencyMode:
		return verdictReplan
	default:
		return verdictSkip
	}
}

func (b *standardBehavior) perpetual() bool {
	return true
}

func (b *standardBehavior) onPlanDone(success bool, reason string) {
	if success {
		snap := b.deps.State.Snapshot()
		if snap.Goal != "" {
			b.deps.Learnings.Add(string(botstate.QueueStandard), learning.Learning{
				Category:     learning.CategoryPlanning,
				LearningType: learning.TypeActionLearning,
				Content:      "completed goal: " + snap.Goal,
				Confidence:   0.7,
			})
		}
		return
	}
	b.failures.add(reason)
}

// buildStatus assembles the planner's status snapshot from the world view,
// the bot state and the top-ranked learnings.
func buildStatus(deps Deps, recentFailures []string) planner.StatusContext {
	world := deps.World()
	snap := deps.State.Snapshot()

	var lessons []string
	if top, err := deps.Learnings.GetTop(learning.TypeAntiAction, 5); err == nil {
		for _, l := range top {
			lessons = append(lessons, "AVOID: "+l.Content)
		}
	}
	if top, err := deps.Learnings.GetTop(learning.TypeActionLearning, 5); err == nil {
		for _, l := range top {
			lessons = append(lessons, l.Content)
		}
	}

	return planner.StatusContext{
		Health:         snap.Health,
		Food:           snap.Food,
		Position:       world.Position,
		TimeOfDay:      world.TimeOfDay,
		Weather:        world.Weather,
		Inventory:      world.Inventory,
		Goal:           snap.Goal,
		Learnings:      lessons,
		RecentFailures: recentFailures,
	}
}
