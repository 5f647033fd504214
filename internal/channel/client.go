// Package channel owns the single WebSocket connection of a
// conversation. Loss of the channel is terminal: the client reports it
// once and never reconnects on its own.
package channel

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Config describes one conversation channel.
type Config struct {
	Host   string
	Secure bool
	Mode   Mode
	// Scope is an optional conversation-scope identifier (a project id).
	Scope string
	// Token, when present, is offered to the server as the SESSION_TOKEN
	// cookie, matching what the browser client sends.
	Token string

	HandshakeTimeout time.Duration
}

// Client is a connected channel. Inbound payloads are delivered on
// Frames in delivery order; the channel closes when the connection
// ends, after which Err reports how it ended.
type Client struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	frames chan []byte

	writeMu sync.Mutex

	mu  sync.Mutex
	err error
}

// Dial opens the channel and starts the read loop.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	address, err := Address(cfg.Host, cfg.Secure, cfg.Mode, cfg.Scope)
	if err != nil {
		return nil, err
	}

	handshake := cfg.HandshakeTimeout
	if handshake == 0 {
		handshake = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshake}

	var header http.Header
	if cfg.Token != "" {
		header = http.Header{}
		header.Set("Cookie", "SESSION_TOKEN="+cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, address, header)
	if err != nil {
		return nil, fmt.Errorf("channel dial %s: %w", address, err)
	}

	c := &Client{
		conn:   conn,
		logger: logger.With().Str("component", "channel").Str("address", address).Logger(),
		frames: make(chan []byte, 16),
	}

	c.logger.Info().Msg("channel open")
	go c.readLoop()

	return c, nil
}

// Frames returns the ordered inbound payload stream. The channel is
// closed when the connection ends; no payload is delivered after that.
func (c *Client) Frames() <-chan []byte {
	return c.frames
}

// Err reports how the connection ended. It is meaningful once Frames
// has closed: nil for a clean close, otherwise the transport error.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes one outbound payload as a text frame.
func (c *Client) Send(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	return nil
}

// Close shuts the connection down. The read loop drains and closes
// Frames shortly after.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop() {
	defer close(c.frames)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info().Msg("channel closed by server")
				return
			}
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			c.logger.Warn().Err(err).Msg("channel read failed")
			return
		}
		c.frames <- data
	}
}
