package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/game"
	"github.com/itsflipper/PiepsLama/internal/learning"
	"github.com/itsflipper/PiepsLama/internal/recovery"
)

// EmergencyKind selects which reflex set handles the emergency.
type EmergencyKind string

const (
	EmergencyDamage EmergencyKind = "damage"
	EmergencyHunger EmergencyKind = "hunger"
)

// reflexTopUpMin: a reflex plan shorter than this gets topped up by the
// planner; the reflex actions always execute first regardless.
const reflexTopUpMin = 2

// emergencyBehavior handles immediate survival threats. The first response
// is always a hardcoded reflex (zero planner latency); the planner is only
// consulted to top up short reflex plans. An emergency never aborts: it runs
// until its resolution condition holds.
type emergencyBehavior struct {
	deps    Deps
	logger  *slog.Logger
	kind    EmergencyKind
	trigger string

	toppedUp bool
}

// NewEmergency builds the emergency context for one trigger.
func NewEmergency(deps Deps, kind EmergencyKind, trigger string, onComplete func(success bool)) Context {
	b := &emergencyBehavior{
		deps:    deps,
		logger:  deps.Logger.With(slog.String("queue", string(botstate.QueueEmergency))),
		kind:    kind,
		trigger: trigger,
	}
	return newRunner(botstate.QueueEmergency, deps, b, onComplete)
}

func (b *emergencyBehavior) acquirePlan(ctx context.Context) (action.Plan, error) {
	world := b.deps.World()
	snap := b.deps.State.Snapshot()

	var reflex []action.Action
	switch b.kind {
	case EmergencyHunger:
		reflex = b.hungerReflex(world)
	default:
		reflex = b.damageReflex(world, snap)
	}

	if len(reflex) < reflexTopUpMin && !b.toppedUp {
		// One planner round per emergency. A failed or slow top-up must not
		// delay survival, so any error just leaves the reflex plan as-is.
		b.toppedUp = true
		if extra, err := b.deps.Planner.RequestEmergencyTopUp(ctx, buildStatus(b.deps, nil), b.trigger); err == nil {
			reflex = append(reflex, extra.Actions...)
		} else {
			b.logger.Warn("Emergency top-up failed, continuing with reflex only", slog.String("error", err.Error()))
		}
	}

	if len(reflex) == 0 {
		// Nothing applicable: hold position briefly and re-evaluate.
		reflex = []action.Action{{ActionName: "wait", Parameters: map[string]any{"durationMs": 1000}}}
	}

	validated, err := b.deps.Validator.ValidateQueue(reflex, world, snap, true)
	if err != nil {
		// Reflexes are built from observed inventory so rejection is rare;
		// fall back to the bare survival action rather than stalling.
		b.logger.Warn("Emergency plan rejected, degrading to flee", slog.String("error", err.Error()))
		validated, err = b.deps.Validator.ValidateQueue(
			[]action.Action{{ActionName: "flee", Parameters: map[string]any{}}}, world, snap, true)
		if err != nil {
			return action.Plan{}, err
		}
	}

	return action.Plan{Goal: "survive: " + b.trigger, Actions: validated}, nil
}

// damageReflex: heal if possible, then fight or flee depending on equipment
// and remaining health.
func (b *emergencyBehavior) damageReflex(world game.WorldSnapshot, snap botstate.Snapshot) []action.Action {
	cfg := b.deps.Cfg
	var out []action.Action

	if snap.Health <= cfg.Health.CriticalHealth && world.CountItem("golden_apple") > 0 {
		out = append(out, action.Action{
			ActionName: "consumeItem",
			Parameters: map[string]any{"item": "golden_apple"},
		})
	}

	hostiles := world.HostilesWithin(float64(cfg.Health.ThreatRadius))
	if len(hostiles) == 0 {
		return out
	}

	// Closest hostile first.
	sort.Slice(hostiles, func(i, j int) bool { return hostiles[i].Distance < hostiles[j].Distance })
	nearest := hostiles[0]

	if hasWeaponEquipped(world) && snap.Health > cfg.Health.FightHealthFloor {
		out = append(out, action.Action{
			ActionName: "attack",
			Parameters: map[string]any{"target": nearest.Name},
		})
	} else {
		out = append(out, action.Action{
			ActionName: "flee",
			Parameters: map[string]any{"distance": 24},
		})
	}
	return out
}

// hungerReflex eats the most nutritious food in the inventory.
func (b *emergencyBehavior) hungerReflex(world game.WorldSnapshot) []action.Action {
	best := ""
	bestValue := 0
	for _, it := range world.Inventory {
		if v, ok := action.FoodValues[it.Name]; ok && v > bestValue {
			best = it.Name
			bestValue = v
		}
	}
	if best == "" {
		return nil
	}
	return []action.Action{{
		ActionName: "consumeItem",
		Parameters: map[string]any{"item": best},
	}}
}

// resolved: the threat is over, not merely the plan finished.
func (b *emergencyBehavior) resolved() bool {
	snap := b.deps.State.Snapshot()
	world := b.deps.World()
	cfg := b.deps.Cfg

	switch b.kind {
	case EmergencyHunger:
		return snap.Food >= cfg.Health.RecoveredFood
	default:
		return snap.Health >= cfg.Health.RecoveredHealth &&
			len(world.HostilesWithin(float64(cfg.Health.ThreatRadius))) == 0
	}
}

func (b *emergencyBehavior) abortCheck() (string, bool) {
	return "", false
}

// applyStrategy: an emergency never aborts. Unrecoverable failures skip the
// action; the unresolved condition forces a fresh reflex round.
func (b *emergencyBehavior) applyStrategy(res recovery.Result) failureVerdict {
	switch res.Strategy {
	case recovery.StrategyRetry, recovery.StrategyRetryWithBackoff:
		// No backoff waits while in danger.
		return verdictRetry
	case recovery.StrategyFallback:
		return verdictFallback
	default:
		return verdictSkip
	}
}

func (b *emergencyBehavior) perpetual() bool {
	return true
}

func (b *emergencyBehavior) onPlanDone(success bool, reason string) {
	if !b.resolved() {
		return
	}
	snap := b.deps.State.Snapshot()
	b.deps.Learnings.Add(string(botstate.QueueEmergency), learning.Learning{
		Category:     "survival",
		LearningType: learning.TypeActionLearning,
		Content:      fmt.Sprintf("survived %s emergency (%s), health now %d", b.kind, b.trigger, snap.Health),
		Confidence:   0.8,
	})
}

// hasWeaponEquipped reports whether the main hand holds a sword or axe.
func hasWeaponEquipped(world game.WorldSnapshot) bool {
	main := world.Equipment.MainHand
	return strings.HasSuffix(main, "_sword") || strings.HasSuffix(main, "_axe")
}
