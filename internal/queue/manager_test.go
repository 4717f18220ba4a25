package queue

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsflipper/PiepsLama/internal/botstate"
	"github.com/itsflipper/PiepsLama/internal/event"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeContext records lifecycle calls instead of running anything.
type fakeContext struct {
	queueType  botstate.QueueType
	onComplete func(bool)

	mu      sync.Mutex
	started int
	paused  int
	resumed int
	stopped int
}

func (f *fakeContext) Start()  { f.mu.Lock(); f.started++; f.mu.Unlock() }
func (f *fakeContext) Pause()  { f.mu.Lock(); f.paused++; f.mu.Unlock() }
func (f *fakeContext) Resume() { f.mu.Lock(); f.resumed++; f.mu.Unlock() }
func (f *fakeContext) Stop()   { f.mu.Lock(); f.stopped++; f.mu.Unlock() }

func (f *fakeContext) Type() botstate.QueueType { return f.queueType }
func (f *fakeContext) Status() ContextStatus    { return ContextStatus{State: StateIdle} }

func (f *fakeContext) counts() (started, paused, resumed, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.paused, f.resumed, f.stopped
}

// testManager wires a Manager with fake-context factories and tracks every
// created fake.
type testManager struct {
	m         *Manager
	mu        sync.Mutex
	standards []*fakeContext
	emergency []*fakeContext
	respawns  []*fakeContext
	stateMgr  *botstate.Manager
}

func newTestManager(t *testing.T) *testManager {
	t.Helper()
	state := botstate.NewManager(discardLogger())
	tm := &testManager{stateMgr: state}

	m := NewManager(Deps{State: state, Logger: discardLogger()})
	m.newStandard = func(onComplete func(bool)) Context {
		f := &fakeContext{queueType: botstate.QueueStandard, onComplete: onComplete}
		tm.mu.Lock()
		tm.standards = append(tm.standards, f)
		tm.mu.Unlock()
		return f
	}
	m.newEmergency = func(kind EmergencyKind, trigger string, onComplete func(bool)) Context {
		f := &fakeContext{queueType: botstate.QueueEmergency, onComplete: onComplete}
		tm.mu.Lock()
		tm.emergency = append(tm.emergency, f)
		tm.mu.Unlock()
		return f
	}
	m.newRespawn = func(onComplete func(bool)) Context {
		f := &fakeContext{queueType: botstate.QueueRespawn, onComplete: onComplete}
		tm.mu.Lock()
		tm.respawns = append(tm.respawns, f)
		tm.mu.Unlock()
		return f
	}
	tm.m = m
	return tm
}

func interruptMsg(t event.Type, target botstate.QueueType) event.Message {
	return event.NewMessage(t, event.PriorityCritical, event.Payload{},
		event.Response{ActionRequired: event.ActionInterrupt, TargetQueue: target})
}

func actionMsg(a event.ActionRequired) event.Message {
	return event.NewMessage(event.TypeChatReceived, event.PriorityHigh, event.Payload{},
		event.Response{ActionRequired: a})
}

func TestManagerStartBootsStandard(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()

	require.Len(t, tm.standards, 1)
	started, _, _, _ := tm.standards[0].counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, botstate.QueueStandard, tm.stateMgr.Snapshot().CurrentQueue)

	// Start is idempotent.
	tm.m.Start()
	assert.Len(t, tm.standards, 1)
}

func TestManagerEmergencyPreemptsStandard(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()

	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))

	require.Len(t, tm.emergency, 1)
	_, stdPaused, _, _ := tm.standards[0].counts()
	assert.Equal(t, 1, stdPaused)
	emStarted, _, _, _ := tm.emergency[0].counts()
	assert.Equal(t, 1, emStarted)

	snap := tm.stateMgr.Snapshot()
	assert.Equal(t, botstate.QueueEmergency, snap.CurrentQueue)
	assert.Equal(t, botstate.PriorityEmergency, snap.CurrentQueuePriority)
}

func TestManagerSameClassInterruptIsNoOp(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))

	// A second emergency trigger while the emergency is active changes
	// nothing: no new context, no state churn.
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeHungerCritical, botstate.QueueEmergency)))
	assert.Len(t, tm.emergency, 1)
}

func TestManagerEmergencyIsNeverInterrupted(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))

	// Even a respawn interrupt is ignored while the emergency runs.
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeWakeup, botstate.QueueRespawn)))
	assert.Empty(t, tm.respawns)
	assert.Equal(t, botstate.QueueEmergency, tm.stateMgr.Snapshot().CurrentQueue)
}

func TestManagerLessUrgentInterruptIgnored(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeWakeup, botstate.QueueRespawn)))
	require.Len(t, tm.respawns, 1)

	// Standard cannot preempt respawn.
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeStatusUpdate, botstate.QueueStandard)))
	assert.Len(t, tm.standards, 1)
	assert.Equal(t, botstate.QueueRespawn, tm.stateMgr.Snapshot().CurrentQueue)
}

func TestManagerCompletionPromotesPausedContext(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))

	// Emergency resolves: the paused standard context resumes, no fresh one
	// is created.
	tm.emergency[0].onComplete(true)

	_, _, stdResumed, _ := tm.standards[0].counts()
	assert.Equal(t, 1, stdResumed)
	assert.Len(t, tm.standards, 1)
	assert.Equal(t, botstate.QueueStandard, tm.stateMgr.Snapshot().CurrentQueue)
}

func TestManagerCompletionWithoutPausedStartsFreshStandard(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeWakeup, botstate.QueueRespawn)))

	// Preempting respawn with emergency discards the previously paused
	// standard (only one paused slot).
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))
	_, _, _, stdStopped := tm.standards[0].counts()
	assert.Equal(t, 1, stdStopped)

	// Emergency completes -> paused respawn promotes. Respawn completes ->
	// nothing paused, a fresh standard starts.
	tm.emergency[0].onComplete(true)
	assert.Equal(t, botstate.QueueRespawn, tm.stateMgr.Snapshot().CurrentQueue)
	tm.respawns[0].onComplete(true)

	require.Len(t, tm.standards, 2)
	started, _, _, _ := tm.standards[1].counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, botstate.QueueStandard, tm.stateMgr.Snapshot().CurrentQueue)
}

func TestManagerResetStopsEverything(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))
	tm.stateMgr.SetGoal("old goal", "")

	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionReset)))

	_, _, _, stdStopped := tm.standards[0].counts()
	_, _, _, emStopped := tm.emergency[0].counts()
	assert.Equal(t, 1, stdStopped)
	assert.Equal(t, 1, emStopped)
	assert.Empty(t, tm.stateMgr.Snapshot().Goal)

	// Reset leaves both slots empty; nothing runs until the next status
	// update.
	assert.Len(t, tm.standards, 1)
	assert.Equal(t, botstate.QueueNone, tm.stateMgr.Snapshot().CurrentQueue)

	// A straggling completion from the stopped emergency must not revive
	// anything.
	tm.emergency[0].onComplete(false)
	assert.Len(t, tm.standards, 1)
	assert.Equal(t, botstate.QueueNone, tm.stateMgr.Snapshot().CurrentQueue)

	// The periodic status update restarts the standard cycle from clean
	// goal state.
	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionNone)))
	require.Len(t, tm.standards, 2)
	started, _, _, _ := tm.standards[1].counts()
	assert.Equal(t, 1, started)
	assert.Equal(t, botstate.QueueStandard, tm.stateMgr.Snapshot().CurrentQueue)
}

func TestManagerPauseAndResume(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()

	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionPause)))
	_, stdPaused, _, _ := tm.standards[0].counts()
	assert.Equal(t, 1, stdPaused)
	assert.True(t, tm.stateMgr.Snapshot().Paused)

	// Double pause is a no-op.
	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionPause)))
	_, stdPaused, _, _ = tm.standards[0].counts()
	assert.Equal(t, 1, stdPaused)

	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionResume)))
	_, _, stdResumed, _ := tm.standards[0].counts()
	assert.Equal(t, 1, stdResumed)
	assert.False(t, tm.stateMgr.Snapshot().Paused)
}

func TestManagerGlobalPauseHoldsPromotedContext(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))
	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionPause)))

	// Emergency finishes while globally paused: standard is promoted but not
	// resumed until the resume event arrives.
	tm.emergency[0].onComplete(true)
	_, _, stdResumed, _ := tm.standards[0].counts()
	assert.Equal(t, 0, stdResumed)

	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionResume)))
	_, _, stdResumed, _ = tm.standards[0].counts()
	assert.Equal(t, 1, stdResumed)
}

func TestManagerStatusReflectsSlots(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))

	st := tm.m.Status()
	require.NotNil(t, st.Active)
	assert.Equal(t, botstate.QueueEmergency, st.ActiveQueue)
	require.NotNil(t, st.Paused)
	assert.Equal(t, botstate.QueueStandard, st.PausedQueue)
}

func TestManagerStatusUpdateRestartsOnlyWhenIdle(t *testing.T) {
	tm := newTestManager(t)
	tm.m.Start()

	// With a context active the status update changes nothing.
	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionNone)))
	assert.Len(t, tm.standards, 1)

	// Same with a paused context parked during an emergency.
	require.NoError(t, tm.m.ProcessEvent(interruptMsg(event.TypeDamageReceived, botstate.QueueEmergency)))
	require.NoError(t, tm.m.ProcessEvent(actionMsg(event.ActionNone)))
	assert.Len(t, tm.standards, 1)
	assert.Len(t, tm.emergency, 1)
}
