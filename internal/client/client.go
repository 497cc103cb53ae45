// Package client connects the runtime to the remote event source. Every
// transport raises incoming messages as named events and sends outgoing
// ones with Emit.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/zishang520/engine.io/v2/types"

	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/events"
)

// Lifecycle events raised by every transport.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
)

// ErrNotConnected is returned by Emit before Connect or after Disconnect.
var ErrNotConnected = errors.New("client is not connected")

// Client is the handle modules talk to the outside world through.
type Client interface {
	events.Source
	Connect(ctx context.Context) error
	Disconnect() error
	Emit(event string, args ...any) error
	Connected() bool
}

// New builds the client selected by cfg.Transport.
func New(cfg config.Client, logger *log.Logger) (Client, error) {
	switch cfg.Transport {
	case config.TransportSocketIO:
		return NewSocketIO(cfg, logger), nil
	case config.TransportWebSocket:
		return NewWebSocket(cfg, logger), nil
	case config.TransportLocal:
		return NewLocal(logger), nil
	default:
		return nil, fmt.Errorf("unsupported client transport: %s", cfg.Transport)
	}
}

// emitter adapts the engine.io event emitter to events.Source. Off removes
// by function identity as the engine.io emitter defines it.
type emitter struct {
	ee types.EventEmitter
}

func newEmitter() emitter {
	return emitter{ee: types.NewEventEmitter()}
}

func (e emitter) On(event string, l events.Listener) {
	e.ee.On(types.EventName(event), types.Listener(l))
}

func (e emitter) Once(event string, l events.Listener) {
	e.ee.Once(types.EventName(event), types.Listener(l))
}

func (e emitter) Off(event string, l events.Listener) {
	e.ee.RemoveListener(types.EventName(event), types.Listener(l))
}

func (e emitter) raise(event string, args ...any) {
	e.ee.Emit(types.EventName(event), args...)
}
