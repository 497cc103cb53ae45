package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/SlastyonArtyom/BotCore/internal/config"
	"github.com/SlastyonArtyom/BotCore/internal/shared"
)

// Frame is the JSON envelope exchanged over the raw websocket transport.
// Outgoing payloads are always the argument list; an incoming array
// payload is spread into arguments, anything else becomes one argument.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// WebSocket speaks Frame messages over a plain websocket connection.
type WebSocket struct {
	emitter
	cfg    config.Client
	logger *log.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	writeMu sync.Mutex
}

// NewWebSocket returns a disconnected websocket client.
func NewWebSocket(cfg config.Client, logger *log.Logger) *WebSocket {
	return &WebSocket{
		emitter: newEmitter(),
		cfg:     cfg,
		logger:  shared.Tagged(logger, "Client"),
	}
}

// Connect dials the server and starts reading frames.
func (c *WebSocket) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}
	if c.cfg.InsecureSkipVerify {
		c.logger.Warn("Skipping TLS certificate verification")
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.done = make(chan struct{})
	go c.readLoop(conn, c.done)
	c.mu.Unlock()

	c.logger.Info("Successfully connected", "url", c.cfg.URL)
	c.raise(EventConnect)
	return nil
}

func (c *WebSocket) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	var reason string
	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			reason = "transport close"
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				reason = fmt.Sprintf("server close: %d %s", closeErr.Code, closeErr.Text)
			}
			c.logger.Debug("read loop finished", "err", err)
			break
		}
		if frame.Type == "" {
			continue
		}
		args, err := decodePayload(frame.Payload)
		if err != nil {
			c.logger.Warn("dropping frame with invalid payload", "type", frame.Type, "err", err)
			continue
		}
		c.raise(frame.Type, args...)
	}

	c.mu.Lock()
	ours := c.conn == conn
	if ours {
		c.conn = nil
	}
	c.mu.Unlock()

	conn.Close()
	if !ours {
		reason = "io client disconnect"
	}
	c.logger.Warn("Disconnected", "reason", reason)
	c.raise(EventDisconnect, reason)
}

func decodePayload(raw json.RawMessage) ([]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var args []any
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, err
		}
		return args, nil
	}
	var arg any
	if err := json.Unmarshal(raw, &arg); err != nil {
		return nil, err
	}
	return []any{arg}, nil
}

// Disconnect sends a close frame, closes the connection and waits for the
// read loop to finish.
func (c *WebSocket) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	<-done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Connected reports whether the connection is open.
func (c *WebSocket) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Emit writes one frame carrying args as its payload.
func (c *WebSocket) Emit(event string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	if args == nil {
		args = []any{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(Frame{Type: event, Payload: payload}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
