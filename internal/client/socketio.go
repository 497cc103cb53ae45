package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// SocketIO talks to a socket.io server over the websocket transport.
// Subscriptions live on a local emitter so they survive reconnects and
// can be made before Connect.
type SocketIO struct {
	emitter
	cfg    config.Client
	logger *log.Logger

	mu sync.Mutex
	io *socket.Socket
}

// NewSocketIO returns a disconnected socket.io client.
func NewSocketIO(cfg config.Client, logger *log.Logger) *SocketIO {
	return &SocketIO{
		emitter: newEmitter(),
		cfg:     cfg,
		logger:  shared.Tagged(logger, "Client"),
	}
}

func (c *SocketIO) options() (string, *socket.Options, error) {
	parsed, err := url.Parse(c.cfg.URL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", nil, fmt.Errorf("invalid socket.io URL %q", c.cfg.URL)
	}

	baseURL := fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host)
	opts := socket.DefaultOptions()
	if parsed.Path != "" && parsed.Path != "/" {
		opts.SetPath(parsed.Path)
	}
	opts.SetAutoConnect(false)
	if c.cfg.ConnectTimeout > 0 {
		opts.SetTimeout(c.cfg.ConnectTimeout)
	}
	if c.cfg.InsecureSkipVerify {
		c.logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if c.cfg.Token != "" {
		opts.SetAuth(map[string]any{"token": c.cfg.Token})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))
	return baseURL, opts, nil
}

// Connect opens the socket and waits for the server to accept the
// namespace, the connect timeout, or ctx.
func (c *SocketIO) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.io != nil {
		c.mu.Unlock()
		return nil
	}

	baseURL, opts, err := c.options()
	if err != nil {
		c.mu.Unlock()
		return err
	}

	namespace := c.cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	result := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		select {
		case result <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect error")
		if len(errs) > 0 {
			err = fmt.Errorf("connect error: %v", errs[0])
		}
		select {
		case result <- err:
		default:
		}
	})

	io.On(types.EventName("connect"), func(...any) {
		c.logger.Info("Successfully connected", "url", c.cfg.URL, "namespace", namespace, "sid", io.Id())
		c.raise(EventConnect)
	})
	io.On(types.EventName("disconnect"), func(args ...any) {
		c.logger.Warn("Disconnected", "reason", args)
		c.raise(EventDisconnect, args...)
	})
	io.OnAny(func(args ...any) {
		if len(args) == 0 {
			return
		}
		event, ok := args[0].(string)
		if !ok {
			return
		}
		c.raise(event, args[1:]...)
	})

	c.io = io
	c.mu.Unlock()

	io.Connect()

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-result:
	case <-timer.C:
		err = fmt.Errorf("timed out while waiting for initial connection")
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.mu.Lock()
		c.io = nil
		c.mu.Unlock()
		io.Disconnect()
		return err
	}
	return nil
}

// Disconnect closes the socket. It is a no-op when not connected.
func (c *SocketIO) Disconnect() error {
	c.mu.Lock()
	io := c.io
	c.io = nil
	c.mu.Unlock()

	if io == nil {
		return nil
	}
	c.logger.Debug("Disconnecting socket client")
	io.Disconnect()
	return nil
}

// Connected reports whether the namespace is connected.
func (c *SocketIO) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.io != nil && c.io.Connected()
}

// Emit sends an event to the server.
func (c *SocketIO) Emit(event string, args ...any) error {
	c.mu.Lock()
	io := c.io
	c.mu.Unlock()

	if io == nil || !io.Connected() {
		return ErrNotConnected
	}
	c.logger.Debug("Emitting event", "event", event)
	return io.Emit(event, args...)
}
