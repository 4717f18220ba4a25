package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Processor consumes one event at a time. The dispatcher guarantees calls
// never overlap; returned errors are logged and swallowed so a single bad
// event can never halt the drain loop.
type Processor interface {
	ProcessEvent(msg Message) error
}

// Status is the dispatcher's introspection snapshot.
type Status struct {
	QueueDepth     int
	Processing     bool
	Paused         bool
	Stopped        bool
	TotalProcessed uint64
}

// Dispatcher is a strictly-sequential priority queue: one worker drains
// messages ordered by ascending priority, ties broken by arrival order via
// stable ordered insert. This concurrency=1 guarantee is what makes the
// queue manager's state transitions atomic.
type Dispatcher struct {
	mu   sync.Mutex
	cond *sync.Cond

	queue          []Message
	paused         bool
	stopped        bool
	processing     bool
	totalProcessed uint64
	maxDepth       int

	processor      Processor
	logger         *slog.Logger
	statusInterval time.Duration
}

// NewDispatcher creates a dispatcher feeding processor. statusInterval > 0
// enables the periodic status-update trigger; it stops with the dispatcher.
func NewDispatcher(processor Processor, maxDepth int, statusInterval time.Duration, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		processor:      processor,
		maxDepth:       maxDepth,
		statusInterval: statusInterval,
		logger:         logger,
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Dispatch enqueues a message in priority order. Messages dispatched after
// Stop are dropped with a warning.
func (d *Dispatcher) Dispatch(msg Message) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		d.logger.Warn("Dispatcher stopped, dropping event", slog.String("type", string(msg.Type)))
		return
	}
	if d.maxDepth > 0 && len(d.queue) >= d.maxDepth {
		d.logger.Warn("Event queue full, dropping event", slog.String("type", string(msg.Type)), slog.Int("depth", len(d.queue)))
		return
	}

	// Stable insert: after every queued message of equal or higher urgency.
	idx := len(d.queue)
	for i, queued := range d.queue {
		if queued.Priority > msg.Priority {
			idx = i
			break
		}
	}
	d.queue = append(d.queue, Message{})
	copy(d.queue[idx+1:], d.queue[idx:])
	d.queue[idx] = msg

	d.cond.Signal()
}

// Run drains the queue until ctx is cancelled or Stop is called. The single
// goroutine calling Run is the only one that ever invokes the processor.
func (d *Dispatcher) Run(ctx context.Context) error {
	stopWatcher := context.AfterFunc(ctx, d.Stop)
	defer stopWatcher()

	if d.statusInterval > 0 {
		go d.statusTicker(ctx)
	}

	for {
		d.mu.Lock()
		for !d.stopped && (d.paused || len(d.queue) == 0) {
			d.cond.Wait()
		}
		if d.stopped {
			dropped := len(d.queue)
			d.queue = nil
			d.mu.Unlock()
			if dropped > 0 {
				d.logger.Info("Dispatcher stopped, cleared pending events", slog.Int("pending", dropped))
			}
			return nil
		}

		msg := d.queue[0]
		d.queue = d.queue[1:]
		d.processing = true
		d.mu.Unlock()

		d.process(msg)

		d.mu.Lock()
		d.processing = false
		d.totalProcessed++
		d.mu.Unlock()
	}
}

// process hands one message to the processor, containing any error or panic.
func (d *Dispatcher) process(msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic while processing event",
				slog.String("type", string(msg.Type)),
				slog.String("id", msg.ID),
				slog.Any("panic", r))
		}
	}()

	if err := d.processor.ProcessEvent(msg); err != nil {
		d.logger.Error("Event processing failed",
			slog.String("type", string(msg.Type)),
			slog.String("id", msg.ID),
			slog.String("error", err.Error()))
	}
}

func (d *Dispatcher) statusTicker(ctx context.Context) {
	ticker := time.NewTicker(d.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			stopped := d.stopped
			d.mu.Unlock()
			if stopped {
				return
			}
			d.Dispatch(StatusUpdate())
		}
	}
}

// Pause suspends draining without losing queued messages.
func (d *Dispatcher) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.paused {
		return
	}
	d.paused = true
	d.logger.Info("Dispatcher paused")
}

// Resume continues draining.
func (d *Dispatcher) Resume() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return
	}
	d.paused = false
	d.logger.Info("Dispatcher resumed")
	d.cond.Signal()
}

// Stop halts the drain loop and clears pending work. Idempotent.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	d.cond.Broadcast()
}

// Status reports queue depth and processing counters.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Status{
		QueueDepth:     len(d.queue),
		Processing:     d.processing,
		Paused:         d.paused,
		Stopped:        d.stopped,
		TotalProcessed: d.totalProcessed,
	}
}
