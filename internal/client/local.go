package client

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// Message is one event sent through a Local client.
type Message struct {
	Event string
	Args  []any
}

// Local is an in-process client. Raise injects incoming events and every
// Emit is kept in an outbox. It backs offline runs and tests.
type Local struct {
	emitter
	connected atomic.Bool

	mu     sync.Mutex
	outbox []Message
	logger *log.Logger
}

// NewLocal returns a disconnected local client.
func NewLocal(logger *log.Logger) *Local {
	return &Local{
		emitter: newEmitter(),
		logger:  shared.Tagged(logger, "Client"),
	}
}

// Connect marks the client connected and raises the connect event.
func (c *Local) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.connected.Swap(true) {
		return nil
	}
	c.logger.Info("local client connected")
	c.raise(EventConnect)
	return nil
}

// Disconnect raises the disconnect event once.
func (c *Local) Disconnect() error {
	if !c.connected.Swap(false) {
		return nil
	}
	c.logger.Info("local client disconnected")
	c.raise(EventDisconnect, "io client disconnect")
	return nil
}

// Connected reports whether Connect has been called.
func (c *Local) Connected() bool {
	return c.connected.Load()
}

// Emit records the event in the outbox.
func (c *Local) Emit(event string, args ...any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	c.mu.Lock()
	c.outbox = append(c.outbox, Message{Event: event, Args: args})
	c.mu.Unlock()
	c.logger.Debug("emit", "event", event, "args", args)
	return nil
}

// Raise delivers an incoming event to the subscribed listeners on the
// calling goroutine.
func (c *Local) Raise(event string, args ...any) {
	c.raise(event, args...)
}

// Sent returns a copy of the outbox.
func (c *Local) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.outbox)
}

// Reset empties the outbox.
func (c *Local) Reset() {
	c.mu.Lock()
	c.outbox = nil
	c.mu.Unlock()
}
