package recovery

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsflipper/PiepsLama/internal/game"
	"github.com/itsflipper/PiepsLama/internal/learning"
)

type sinkRecorder struct {
	mu    sync.Mutex
	added []learning.Learning
}

func (s *sinkRecorder) Add(queueType string, l learning.Learning) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.QueueType = queueType
	s.added = append(s.added, l)
}

func (s *sinkRecorder) all() []learning.Learning {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]learning.Learning(nil), s.added...)
}

func newTestEngine(sink LearningSink) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(sink, 3, 500*time.Millisecond, 15*time.Second, logger)
}

func TestHandleErrorTimingRetries(t *testing.T) {
	e := newTestEngine(nil)

	res := e.HandleError(&game.ActionError{Code: "ETIMEDOUT", Message: "moveTo timed out"},
		ErrorContext{QueueType: "standard", ActionName: "moveTo", Attempt: 0})
	assert.Equal(t, StrategyRetry, res.Strategy)
	assert.Equal(t, CategoryTiming, res.Classification.Category)
	assert.False(t, res.LearningWorthy)
}

func TestHandleErrorRetryExhaustionAborts(t *testing.T) {
	sink := &sinkRecorder{}
	e := newTestEngine(sink)

	res := e.HandleError(&game.ActionError{Code: "ETIMEDOUT", Message: "moveTo timed out"},
		ErrorContext{QueueType: "standard", ActionName: "moveTo", Category: "movement", Attempt: 3})
	assert.Equal(t, StrategyAbortAction, res.Strategy)
	assert.True(t, res.LearningWorthy)

	added := sink.all()
	require.Len(t, added, 1)
	assert.Equal(t, learning.TypeAntiAction, added[0].LearningType)
	assert.Contains(t, added[0].Content, "moveTo")
	assert.Equal(t, "movement", added[0].Category)
}

func TestHandleErrorRepeatEscalatesToNewPlan(t *testing.T) {
	e := newTestEngine(nil)
	err := errors.New("cannot reach the tree from here")

	var res Result
	for i := 0; i < 3; i++ {
		res = e.HandleError(err, ErrorContext{QueueType: "standard", ActionName: "collectBlock", Attempt: 0})
	}
	assert.Equal(t, StrategyRequestNewPlan, res.Strategy)
}

func TestHandleErrorKnownPatternResistsEscalation(t *testing.T) {
	e := newTestEngine(nil)

	// A known-pattern strategy keeps winning even when repeated: ECANCELED
	// stays ignore, never request_new_plan.
	var res Result
	for i := 0; i < 5; i++ {
		res = e.HandleError(&game.ActionError{Code: "ECANCELED", Message: "canceled"},
			ErrorContext{QueueType: "standard", ActionName: "wait", Attempt: 0})
	}
	assert.Equal(t, StrategyIgnore, res.Strategy)
}

func TestShouldPanicAfterCriticalBurst(t *testing.T) {
	e := newTestEngine(nil)
	assert.False(t, e.ShouldPanic())

	for i := 0; i < 3; i++ {
		e.HandleError(&game.ActionError{Code: "ECONNLOST", Message: fmt.Sprintf("lost %d", i)},
			ErrorContext{QueueType: "standard", ActionName: "moveTo", Attempt: 0})
	}
	assert.True(t, e.ShouldPanic())
}

func TestShouldPanicIgnoresNonCritical(t *testing.T) {
	e := newTestEngine(nil)

	for i := 0; i < 10; i++ {
		e.HandleError(&game.ActionError{Code: "ETIMEDOUT", Message: "slow"},
			ErrorContext{QueueType: "standard", ActionName: "moveTo", Attempt: 0})
	}
	assert.False(t, e.ShouldPanic())
}

func TestNewBackOffBoundedNonDecreasing(t *testing.T) {
	e := newTestEngine(nil)
	bo := e.NewBackOff()

	prev := time.Duration(0)
	for i := 0; i < 12; i++ {
		d := bo.NextBackOff()
		require.NotEqual(t, backoff.Stop, d, "backoff must never expire on elapsed time")
		assert.GreaterOrEqual(t, d, prev, "delays must be non-decreasing")
		assert.LessOrEqual(t, d, 15*time.Second, "delays must respect the cap")
		prev = d
	}
	assert.Equal(t, 15*time.Second, prev)
}

func TestNewBackOffStartsAtInitialInterval(t *testing.T) {
	e := newTestEngine(nil)
	assert.Equal(t, 500*time.Millisecond, e.NewBackOff().NextBackOff())
}
