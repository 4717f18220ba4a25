// Package botstate holds the single in-memory record of the agent's
// ephemeral state. Every component receives the same *Manager; all mutation
// goes through named setters that suppress no-op writes so unchanged values
// never trigger redundant logging or downstream reactions.
package botstate

import (
	"log/slog"
	"sync"
	"time"
)

// QueueType identifies which execution context owns the agent right now.
type QueueType string

const (
	QueueNone      QueueType = ""
	QueueStandard  QueueType = "standard"
	QueueEmergency QueueType = "emergency"
	QueueRespawn   QueueType = "respawn"
)

// Priority of each queue type; lower is more urgent.
const (
	PriorityEmergency = 1
	PriorityRespawn   = 2
	PriorityStandard  = 3
)

// Position is a block position in the world.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// DeathInfo captures where and why the agent last died.
type DeathInfo struct {
	Position Position
	Reason   string
	DiedAt   time.Time
}

// Snapshot is a point-in-time copy of the full state, safe to read without
// holding the manager's lock.
type Snapshot struct {
	IsExecutingAction bool
	CurrentAction     string

	InCombat      bool
	ContainerOpen bool
	IsSleeping    bool

	Paused      bool
	PauseReason string

	CurrentQueue         QueueType
	CurrentQueuePriority int

	Connected bool
	Spawned   bool

	Health int
	Food   int

	LastDeath *DeathInfo

	Goal         string
	SubGoal      string
	GoalProgress int

	ActionsExecuted int
	ActionsFailed   int

	LastActionAt time.Time
	LastEventAt  time.Time
}

// Manager owns the mutable state. It is safe for concurrent use: the bridge
// read pump writes health/connection fields from its own goroutine while the
// dispatcher goroutine reads them.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger
	s      Snapshot
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger: logger,
		s: Snapshot{
			Health: 20,
			Food:   20,
		},
	}
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.s
	if m.s.LastDeath != nil {
		d := *m.s.LastDeath
		s.LastDeath = &d
	}
	return s
}

func (m *Manager) SetExecutingAction(executing bool, actionName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.IsExecutingAction == executing && m.s.CurrentAction == actionName {
		return
	}
	m.s.IsExecutingAction = executing
	m.s.CurrentAction = actionName
	if executing {
		m.s.LastActionAt = time.Now()
	}
}

func (m *Manager) SetInCombat(inCombat bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.InCombat == inCombat {
		return
	}
	m.s.InCombat = inCombat
	m.logger.Debug("Combat state changed", slog.Bool("inCombat", inCombat))
}

func (m *Manager) SetContainerOpen(open bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.ContainerOpen == open {
		return
	}
	m.s.ContainerOpen = open
}

func (m *Manager) SetSleeping(sleeping bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.IsSleeping == sleeping {
		return
	}
	m.s.IsSleeping = sleeping
}

func (m *Manager) SetPaused(paused bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Paused == paused && m.s.PauseReason == reason {
		return
	}
	m.s.Paused = paused
	m.s.PauseReason = reason
	m.logger.Info("Pause state changed", slog.Bool("paused", paused), slog.String("reason", reason))
}

func (m *Manager) SetCurrentQueue(queue QueueType, priority int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.CurrentQueue == queue && m.s.CurrentQueuePriority == priority {
		return
	}
	m.s.CurrentQueue = queue
	m.s.CurrentQueuePriority = priority
	m.logger.Info("Active queue changed", slog.String("queue", string(queue)), slog.Int("priority", priority))
}

func (m *Manager) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Connected == connected {
		return
	}
	m.s.Connected = connected
	if !connected {
		m.s.Spawned = false
	}
	m.logger.Info("Connection state changed", slog.Bool("connected", connected))
}

func (m *Manager) SetSpawned(spawned bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Spawned == spawned {
		return
	}
	m.s.Spawned = spawned
}

func (m *Manager) SetHealth(health, food int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Health == health && m.s.Food == food {
		return
	}
	m.s.Health = health
	m.s.Food = food
}

func (m *Manager) RecordDeath(pos Position, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.LastDeath = &DeathInfo{Position: pos, Reason: reason, DiedAt: time.Now()}
	m.logger.Warn("Death recorded", slog.String("reason", reason), slog.Int("x", pos.X), slog.Int("y", pos.Y), slog.Int("z", pos.Z))
}

func (m *Manager) SetGoal(goal, subGoal string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.Goal == goal && m.s.SubGoal == subGoal {
		return
	}
	m.s.Goal = goal
	m.s.SubGoal = subGoal
	m.s.GoalProgress = 0
}

func (m *Manager) SetGoalProgress(progress int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s.GoalProgress == progress {
		return
	}
	m.s.GoalProgress = progress
}

// ClearGoals wipes goal state, used by the reset transition.
func (m *Manager) ClearGoals() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.Goal = ""
	m.s.SubGoal = ""
	m.s.GoalProgress = 0
}

func (m *Manager) CountActionExecuted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.ActionsExecuted++
	m.s.LastActionAt = time.Now()
}

func (m *Manager) CountActionFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.ActionsFailed++
}

func (m *Manager) TouchEvent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.LastEventAt = time.Now()
}
