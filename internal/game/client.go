package game

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Executor is the action-execution contract consumed by the execution
// contexts. Execute must settle within the context deadline; failures carry a
// stable code usable by the error classifier.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]any) (Result, error)
}

// Client maintains the websocket connection to the mineflayer bridge. It
// demultiplexes observation signals onto Signals() and correlates action
// commands with their results.
type Client struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	signals chan Signal

	pendingMu sync.Mutex
	pending   map[string]chan actionResult

	worldMu sync.RWMutex
	world   WorldSnapshot

	reconnectDelay   time.Duration
	handshakeTimeout time.Duration
	closed           chan struct{}
	closeOnce        sync.Once
}

func NewClient(rawURL string, reconnectDelay, handshakeTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid bridge url %q: %w", rawURL, err)
	}
	return &Client{
		url:              rawURL,
		logger:           logger,
		signals:          make(chan Signal, 128),
		pending:          make(map[string]chan actionResult),
		reconnectDelay:   reconnectDelay,
		handshakeTimeout: handshakeTimeout,
		closed:           make(chan struct{}),
	}, nil
}

// Signals returns the observation stream. The supervisor's bridge pump is the
// single consumer.
func (c *Client) Signals() <-chan Signal {
	return c.signals
}

// World returns the latest observed world snapshot.
func (c *Client) World() WorldSnapshot {
	c.worldMu.RLock()
	defer c.worldMu.RUnlock()
	w := c.world
	w.Inventory = append([]ItemStack(nil), c.world.Inventory...)
	w.Entities = append([]EntityObs(nil), c.world.Entities...)
	return w
}

// Run connects and pumps messages until ctx is cancelled, reconnecting with a
// fixed delay on connection loss. Pending action calls fail with ECONNLOST on
// every disconnect.
func (c *Client) Run(ctx context.Context) error {
	defer c.closeOnce.Do(func() { close(c.closed) })

	for {
		if err := c.connect(ctx); err != nil {
			c.logger.Warn("Bridge connection failed", slog.String("error", err.Error()))
			c.emitConnection(false, err.Error())
		} else {
			c.emitConnection(true, "")
			c.readLoop(ctx)
			c.emitConnection(false, "connection lost")
		}

		c.failAllPending("ECONNLOST", "bridge connection lost")

		select {
		case <-ctx.Done():
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.Close()
			}
			c.connMu.Unlock()
			return ctx.Err()
		case <-time.After(c.reconnectDelay):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.handshakeTimeout}
	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	conn, _, err := dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.logger.Info("Bridge connected", slog.String("url", c.url))
	return nil
}

func (c *Client) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logger.Warn("Bridge read failed", slog.String("error", err.Error()))
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			c.logger.Warn("Bridge sent malformed message", slog.String("error", err.Error()))
			continue
		}

		if envelope.Type == "action_result" {
			var res actionResult
			if err := json.Unmarshal(raw, &res); err != nil {
				c.logger.Warn("Malformed action result", slog.String("error", err.Error()))
				continue
			}
			c.settle(res)
			continue
		}

		var sig Signal
		if err := json.Unmarshal(raw, &sig); err != nil {
			c.logger.Warn("Malformed signal", slog.String("type", envelope.Type), slog.String("error", err.Error()))
			continue
		}
		c.absorb(sig)

		select {
		case c.signals <- sig:
		default:
			c.logger.Warn("Signal channel full, dropping signal", slog.String("type", string(sig.Type)))
		}
	}
}

// absorb folds inventory/entity/tick observations into the world snapshot so
// the validator always sees the latest view.
func (c *Client) absorb(sig Signal) {
	c.worldMu.Lock()
	defer c.worldMu.Unlock()
	switch sig.Type {
	case SignalInventory:
		c.world.Inventory = sig.Inventory
		if sig.Equipment != nil {
			c.world.Equipment = *sig.Equipment
		}
	case SignalEntities:
		c.world.Entities = sig.Entities
	case SignalTick:
		if sig.Tick != nil {
			c.world.TimeOfDay = sig.Tick.TimeOfDay
			c.world.Weather = sig.Tick.Weather
			c.world.Position = sig.Tick.Position
		}
	}
}

// Execute sends an action command to the bridge and waits for its result or
// the context deadline. Implements Executor.
func (c *Client) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	id := uuid.New().String()
	resCh := make(chan actionResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = resCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	cmd := actionCommand{Type: "action", ID: id, Name: name, Params: params}
	if err := c.writeJSON(cmd); err != nil {
		return Result{}, &ActionError{Code: "ECONNLOST", Message: fmt.Sprintf("sending %s: %v", name, err)}
	}

	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return Result{}, &ActionError{Code: "ETIMEDOUT", Message: fmt.Sprintf("action %s timed out", name)}
		}
		return Result{}, &ActionError{Code: "ECANCELED", Message: fmt.Sprintf("action %s canceled", name)}
	case res := <-resCh:
		if !res.OK {
			code, msg := "EUNKNOWN", "action failed without error detail"
			if res.Error != nil {
				code, msg = res.Error.Code, res.Error.Message
			}
			return Result{}, &ActionError{Code: code, Message: msg}
		}
		return Result{Data: res.Data}, nil
	}
}

func (c *Client) writeJSON(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("bridge not connected")
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) settle(res actionResult) {
	c.pendingMu.Lock()
	ch, ok := c.pending[res.ID]
	c.pendingMu.Unlock()
	if !ok {
		c.logger.Debug("Result for unknown action id", slog.String("id", res.ID))
		return
	}
	ch <- res
}

func (c *Client) failAllPending(code, message string) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- actionResult{ID: id, OK: false, Error: &wireError{Code: code, Message: message}}:
		default:
		}
	}
}

func (c *Client) emitConnection(connected bool, reason string) {
	sig := Signal{Type: SignalConnection, Connection: &ConnectionObs{Connected: connected, Reason: reason}}
	select {
	case c.signals <- sig:
	default:
	}
}
