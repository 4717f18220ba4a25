package queue

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/event"
)

// Manager arbitrates the three execution contexts. Invariants it maintains:
// at most one context is active, at most one is parked in the paused slot,
// and the standard context is the fallback whenever nothing else runs.
//
// It implements event.Processor; the dispatcher's strictly-sequential drain
// means ProcessEvent is never entered concurrently.
type Manager struct {
	deps   Deps
	logger *slog.Logger

	// factories, replaceable in tests
	newStandard  func(onComplete func(bool)) Context
	newEmergency func(kind EmergencyKind, trigger string, onComplete func(bool)) Context
	newRespawn   func(onComplete func(bool)) Context

	mu           sync.Mutex
	active       Context
	paused       Context
	globalPaused bool
	pauseReason  string
	generation   int
}

func NewManager(deps Deps) *Manager {
	m := &Manager{
		deps:   deps,
		logger: deps.Logger.With(slog.String("component", "queue-manager")),
	}
	m.newStandard = func(onComplete func(bool)) Context { return NewStandard(deps, onComplete) }
	m.newEmergency = func(kind EmergencyKind, trigger string, onComplete func(bool)) Context {
		return NewEmergency(deps, kind, trigger, onComplete)
	}
	m.newRespawn = func(onComplete func(bool)) Context { return NewRespawn(deps, onComplete) }
	return m
}

// Start boots the fallback standard context.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		m.startStandardLocked()
	}
}

// Shutdown hard-stops whatever is running.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused != nil {
		m.paused.Stop()
		m.paused = nil
	}
	if m.active != nil {
		m.active.Stop()
		m.active = nil
	}
	m.generation++
	m.deps.State.SetCurrentQueue(botstate.QueueNone, 0)
}

// ProcessEvent is the dispatcher's hook: every event that requires a queue
// transition lands here, one at a time.
func (m *Manager) ProcessEvent(msg event.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deps.State.TouchEvent()

	switch msg.Response.ActionRequired {
	case event.ActionInterrupt:
		return m.handleInterruptLocked(msg)
	case event.ActionPause:
		m.pauseAllLocked(string(msg.Type))
		return nil
	case event.ActionResume:
		m.resumeAllLocked()
		return nil
	case event.ActionReset:
		m.resetLocked()
		return nil
	case event.ActionNone:
		// The periodic status update doubles as the idle restart: after a
		// reset nothing is running until this fires.
		if m.active == nil && m.paused == nil {
			m.startStandardLocked()
		}
		return nil
	default:
		return fmt.Errorf("unknown required action %q", msg.Response.ActionRequired)
	}
}

// handleInterruptLocked applies the preemption rules. Emergencies are never
// interrupted by anything; a same-class interrupt is a no-op; only a more
// urgent queue may preempt the active one.
func (m *Manager) handleInterruptLocked(msg event.Message) error {
	target := msg.Response.TargetQueue

	if m.active != nil {
		activeType := m.active.Type()
		if activeType == botstate.QueueEmergency {
			m.logger.Debug("Interrupt ignored while emergency active",
				slog.String("target", string(target)), slog.String("event", string(msg.Type)))
			return nil
		}
		if activeType == target {
			m.logger.Debug("Interrupt for already-active queue ignored", slog.String("target", string(target)))
			return nil
		}
		if queuePriority(target) >= queuePriority(activeType) {
			m.logger.Debug("Interrupt not more urgent than active queue, ignored",
				slog.String("target", string(target)), slog.String("active", string(activeType)))
			return nil
		}
	}

	switch target {
	case botstate.QueueEmergency:
		kind := EmergencyDamage
		if msg.Type == event.TypeHungerCritical {
			kind = EmergencyHunger
		}
		m.preemptLocked(m.newEmergency(kind, string(msg.Type), m.completionFuncLocked()), target)
	case botstate.QueueRespawn:
		m.preemptLocked(m.newRespawn(m.completionFuncLocked()), target)
	case botstate.QueueStandard:
		m.preemptLocked(m.newStandard(m.completionFuncLocked()), target)
	default:
		return fmt.Errorf("interrupt with unknown target queue %q", target)
	}
	return nil
}

// preemptLocked parks the active context and starts the new one. The paused
// slot holds at most one context: an already-parked one is discarded, because
// the standard fallback restarts fresh anyway when everything else finishes.
func (m *Manager) preemptLocked(next Context, target botstate.QueueType) {
	if m.active != nil {
		if m.paused != nil {
			m.logger.Info("Discarding previously paused context",
				slog.String("queue", string(m.paused.Type())))
			m.paused.Stop()
		}
		m.active.Pause()
		m.paused = m.active
		m.logger.Info("Context preempted",
			slog.String("paused", string(m.active.Type())), slog.String("started", string(target)))
	}

	m.active = next
	m.deps.State.SetCurrentQueue(target, queuePriority(target))
	next.Start()
}

func (m *Manager) handleCompletion(gen int, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if gen != m.generation || m.active == nil {
		return
	}

	finished := m.active.Type()
	m.logger.Info("Context finished", slog.String("queue", string(finished)), slog.Bool("success", success))
	m.active = nil

	if m.paused != nil {
		m.active = m.paused
		m.paused = nil
		m.deps.State.SetCurrentQueue(m.active.Type(), queuePriority(m.active.Type()))
		if !m.globalPaused {
			m.active.Resume()
		}
		m.logger.Info("Promoted paused context", slog.String("queue", string(m.active.Type())))
		return
	}

	m.startStandardLocked()
}

// pauseAllLocked is the connection-lost / user-pause path: the active context
// parks in place and nothing is promoted.
func (m *Manager) pauseAllLocked(reason string) {
	if m.globalPaused {
		return
	}
	m.globalPaused = true
	m.pauseReason = reason
	m.deps.State.SetPaused(true, reason)
	if m.active != nil {
		m.active.Pause()
	}
	m.logger.Info("All execution paused", slog.String("reason", reason))
}

func (m *Manager) resumeAllLocked() {
	if !m.globalPaused {
		return
	}
	m.globalPaused = false
	m.pauseReason = ""
	m.deps.State.SetPaused(false, "")
	if m.active != nil {
		m.active.Resume()
	} else {
		m.startStandardLocked()
	}
	m.logger.Info("Execution resumed")
}

// resetLocked is the only hard-cancel: every context is stopped and all queue
// and goal state is discarded. Both slots stay empty; the next status-update
// event restarts the standard cycle from clean goal state.
func (m *Manager) resetLocked() {
	m.generation++
	if m.paused != nil {
		m.paused.Stop()
		m.paused = nil
	}
	if m.active != nil {
		m.active.Stop()
		m.active = nil
	}
	m.globalPaused = false
	m.pauseReason = ""
	m.deps.State.SetPaused(false, "")
	m.deps.State.ClearGoals()
	m.deps.State.SetCurrentQueue(botstate.QueueNone, 0)
	m.logger.Warn("Hard reset, all contexts stopped")
}

func (m *Manager) startStandardLocked() {
	m.active = m.newStandard(m.completionFuncLocked())
	m.deps.State.SetCurrentQueue(botstate.QueueStandard, botstate.PriorityStandard)
	if m.globalPaused {
		// Will begin executing on resume.
		m.active.Pause()
	}
	m.active.Start()
}

// completionFuncLocked snapshots the current generation so a completion from
// a context stopped by reset cannot touch the new lineup. Callers hold the
// lock.
func (m *Manager) completionFuncLocked() func(bool) {
	gen := m.generation
	return func(success bool) {
		m.handleCompletion(gen, success)
	}
}

// ManagerStatus is the introspection snapshot served to the !status command.
type ManagerStatus struct {
	Active       *ContextStatus
	ActiveQueue  botstate.QueueType
	Paused       *ContextStatus
	PausedQueue  botstate.QueueType
	GlobalPaused bool
	PauseReason  string
}

func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := ManagerStatus{GlobalPaused: m.globalPaused, PauseReason: m.pauseReason}
	if m.active != nil {
		s := m.active.Status()
		st.Active = &s
		st.ActiveQueue = m.active.Type()
	}
	if m.paused != nil {
		s := m.paused.Status()
		st.Paused = &s
		st.PausedQueue = m.paused.Type()
	}
	return st
}

func queuePriority(q botstate.QueueType) int {
	switch q {
	case botstate.QueueEmergency:
		return botstate.PriorityEmergency
	case botstate.QueueRespawn:
		return botstate.PriorityRespawn
	default:
		return botstate.PriorityStandard
	}
}
