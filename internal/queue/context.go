// Package queue implements the queue-lifecycle orchestration: the three
// mutually-preemptive execution contexts (standard, emergency, respawn) and
// the manager that guarantees at most one of them is ever active.
package queue

import (
	"context"
	"log/slog"

	"github.com/itsflipper/PiepsLama/internal/action"
	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/config"
	"github.com/itsflipper/PiepsLama/internal/game"
	"github.com/itsflipper/PiepsLama/internal/learning"
	"github.com/itsflipper/PiepsLama/internal/planner"
	"github.com/itsflipper/PiepsLama/internal/recovery"
)

// State of a context's execution state machine.
type State string

const (
	StateIdle           State = "idle"
	StateCheckCondition State = "check_condition"
	StateExecuteAction  State = "execute_action"
	StateHandleFailure  State = "handle_failure"
	StatePaused         State = "paused"
	StateComplete       State = "complete"
	StateAborted        State = "aborted"
)

// Context is one execution context as seen by the manager.
type Context interface {
	Start()
	Pause()
	Resume()
	Stop()
	Type() botstate.QueueType
	Status() ContextStatus
}

// ContextStatus is the introspection snapshot of a context.
type ContextStatus struct {
	State        State
	Goal         string
	CurrentIndex int
	QueueLength  int
}

// Planner is the plan-acquisition surface consumed by the contexts.
type Planner interface {
	RequestPlan(ctx context.Context, status planner.StatusContext) (action.Plan, error)
	RequestEmergencyTopUp(ctx context.Context, status planner.StatusContext, trigger string) (action.Plan, error)
	RequestRespawnPlan(ctx context.Context, status planner.StatusContext, death planner.DeathContext) (planner.Strategy, action.Plan, error)
}

// LearningStore is the learning repository surface consumed by the contexts.
type LearningStore interface {
	Add(queueType string, l learning.Learning)
	GetTop(lt learning.LearningType, limit int) ([]learning.Learning, error)
	SaveLocation(queueType, name string, x, y, z int)
	LoadLocation(queueType, name string) (x, y, z int, ok bool)
}

// Deps bundles the collaborators shared by every context.
type Deps struct {
	Cfg       *config.Config
	State     *botstate.Manager
	Executor  game.Executor
	World     func() game.WorldSnapshot
	Validator *action.Validator
	Planner   Planner
	Learnings LearningStore
	Recovery  *recovery.Engine
	Logger    *slog.Logger
}
