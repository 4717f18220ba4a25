package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/game"
	"github.com/itsflipper/PiepsLama/internal/learning"
	"github.com/itsflipper/PiepsLama/internal/planner"
	"github.com/itsflipper/PiepsLama/internal/recovery"
)

// respawnBehavior runs exactly one recovery mission after a death: a single
// planning round picks item recovery, base return or a fresh start, and the
// mission either completes or aborts. Item recovery races the item despawn
// timer and bails out on further damage.
type respawnBehavior struct {
	deps   Deps
	logger *slog.Logger

	strategy      planner.Strategy
	startHealth   int
	missionActive bool
}

// NewRespawn builds the respawn context for the death recorded in the bot
// state.
func NewRespawn(deps Deps, onComplete func(success bool)) Context {
	b := &respawnBehavior{
		deps:   deps,
		logger: deps.Logger.With(slog.String("queue", string(botstate.QueueRespawn))),
	}
	return newRunner(botstate.QueueRespawn, deps, b, onComplete)
}

func (b *respawnBehavior) acquirePlan(ctx context.Context) (action.Plan, error) {
	world := b.deps.World()
	snap := b.deps.State.Snapshot()
	b.startHealth = snap.Health

	death := b.buildDeathContext(world, snap)

	// One planning round. Anything that goes wrong from here on falls back
	// to the hardcoded fresh start so the agent always recovers somehow.
	strategy, plan, err := b.deps.Planner.RequestRespawnPlan(ctx, buildStatus(b.deps, nil), death)
	if err != nil {
		if ctx.Err() != nil {
			return action.Plan{}, err
		}
		b.logger.Warn("Respawn planning failed, falling back to fresh start", slog.String("error", err.Error()))
		strategy, plan = planner.StrategyFreshStart, freshStartPlan()
	}

	// Item recovery past the despawn window cannot succeed; downgrade before
	// wasting the trip.
	if strategy == planner.StrategyItemRecovery && death.ElapsedSecs > int(b.deps.Cfg.ItemRecoveryBudget().Seconds()) {
		b.logger.Warn("Item recovery window already expired, falling back to fresh start",
			slog.Int("elapsedSecs", death.ElapsedSecs))
		strategy, plan = planner.StrategyFreshStart, freshStartPlan()
	}

	validated, err := b.deps.Validator.ValidateQueue(plan.Actions, world, snap, false)
	if err != nil {
		b.logger.Warn("Respawn plan rejected, falling back to fresh start", slog.String("error", err.Error()))
		strategy, plan = planner.StrategyFreshStart, freshStartPlan()
		validated, err = b.deps.Validator.ValidateQueue(plan.Actions, world, snap, false)
		if err != nil {
			return action.Plan{}, err
		}
	}

	b.strategy = strategy
	b.missionActive = true
	plan.Actions = validated
	b.logger.Info("Respawn strategy chosen", slog.String("strategy", string(strategy)), slog.Int("actions", len(validated)))
	return plan, nil
}

func (b *respawnBehavior) buildDeathContext(world game.WorldSnapshot, snap botstate.Snapshot) planner.DeathContext {
	death := planner.DeathContext{Reason: "unknown"}
	if snap.LastDeath != nil {
		death.Position = game.Position(snap.LastDeath.Position)
		death.Reason = snap.LastDeath.Reason
		death.ElapsedSecs = int(time.Since(snap.LastDeath.DiedAt).Seconds())
		death.Distance = blockDistance(world.Position, death.Position)
	}
	if x, y, z, ok := b.deps.Learnings.LoadLocation(string(botstate.QueueRespawn), "base"); ok {
		death.KnownBase = &game.Position{X: x, Y: y, Z: z}
	}
	return death
}

func (b *respawnBehavior) resolved() bool {
	return false
}

// abortCheck enforces the item-recovery budget and the no-second-death rule:
// taking damage on the way to the death site means the route is too dangerous
// to finish.
func (b *respawnBehavior) abortCheck() (string, bool) {
	if !b.missionActive || b.strategy != planner.StrategyItemRecovery {
		return "", false
	}

	snap := b.deps.State.Snapshot()
	if snap.LastDeath != nil && time.Since(snap.LastDeath.DiedAt) > b.deps.Cfg.ItemRecoveryBudget() {
		return "item recovery budget exceeded", true
	}
	if snap.Health < b.startHealth {
		return fmt.Sprintf("took damage during item recovery (%d -> %d)", b.startHealth, snap.Health), true
	}
	return "", false
}

func (b *respawnBehavior) applyStrategy(res recovery.Result) failureVerdict {
	switch res.Strategy {
	case recovery.StrategyRetry:
		return verdictRetry
	case recovery.StrategyRetryWithBackoff:
		return verdictRetryBackoff
	case recovery.StrategyFallback:
		return verdictFallback
	case recovery.StrategyIgnore, recovery.StrategyAbortAction:
		return verdictSkip
	default:
		// There is no re-planning round after a death; escalation ends the
		// mission and hands control back to the standard cycle.
		return verdictAbort
	}
}

func (b *respawnBehavior) perpetual() bool {
	return false
}

func (b *respawnBehavior) onPlanDone(success bool, reason string) {
	if !b.missionActive {
		return
	}
	b.missionActive = false

	snap := b.deps.State.Snapshot()
	if success {
		b.deps.Learnings.Add(string(botstate.QueueRespawn), learning.Learning{
			Category:     learning.CategoryStrategy,
			LearningType: learning.TypeStrategic,
			Content:      fmt.Sprintf("respawn strategy %s succeeded after death by %s", b.strategy, deathReason(snap)),
			Confidence:   0.8,
		})
		if snap.LastDeath != nil {
			// Death sites mark danger; remember where this one was.
			p := snap.LastDeath.Position
			b.deps.Learnings.SaveLocation(string(botstate.QueueRespawn), "last_death", p.X, p.Y, p.Z)
		}
		if b.strategy != planner.StrategyItemRecovery {
			// Base return ends at the base; a fresh start makes wherever the
			// agent rebuilt the new safe point. Either way the mission's end
			// position is the current base fact.
			pos := b.deps.World().Position
			b.deps.Learnings.SaveLocation(string(botstate.QueueRespawn), "base", pos.X, pos.Y, pos.Z)
		}
		return
	}

	b.deps.Learnings.Add(string(botstate.QueueRespawn), learning.Learning{
		Category:     learning.CategoryStrategy,
		LearningType: learning.TypeAntiAction,
		Content:      fmt.Sprintf("respawn strategy %s failed: %s", b.strategy, reason),
		Confidence:   0.7,
	})
}

func deathReason(snap botstate.Snapshot) string {
	if snap.LastDeath == nil {
		return "unknown"
	}
	return snap.LastDeath.Reason
}

// freshStartPlan is the hardcoded minimal restart: gather wood near wherever
// the agent respawned, then pick up any drops. Crafting is left to the next
// standard cycle, which sees the gathered materials in the inventory.
func freshStartPlan() action.Plan {
	return action.Plan{
		Goal: "respawn recovery: fresh_start",
		Actions: []action.Action{
			{ActionName: "collectBlock", Parameters: map[string]any{"block": "oak_log", "count": 4}},
			{ActionName: "pickupItems", Parameters: map[string]any{"radius": 8}},
		},
	}
}

func blockDistance(a, b game.Position) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	dz := float64(a.Z - b.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}
