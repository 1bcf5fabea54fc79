package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/burner/internal/infrastructure/logging"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	writeTimeout = 10 * time.Second
)

// Dispatcher handles decoded client frames.
type Dispatcher interface {
	Dispatch(ctx context.Context, cl *Client, env Envelope)
	Disconnected(cl *Client)
}

type ClientOptions struct {
	SendBuffer     int
	MaxMessageSize int64
}

// Client is one relay connection. Token is the identity token presented when
// the connection was upgraded.
type Client struct {
	ID    string
	Token string

	conn           *connWrapper
	send           chan []byte
	core           *Core
	logger         logging.Logger
	maxMessageSize int64

	mu   sync.RWMutex
	room string
}

func NewClient(conn *websocket.Conn, token string, core *Core, logger logging.Logger, opts ClientOptions) *Client {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 32768 // 32KB max message size
	}

	return &Client{
		ID:             uuid.NewString(),
		Token:          token,
		conn:           newConnWrapper(conn, writeTimeout),
		send:           make(chan []byte, opts.SendBuffer),
		core:           core,
		logger:         logger,
		maxMessageSize: opts.MaxMessageSize,
	}
}

// Room is the room the coordinator has subscribed this connection to.
func (c *Client) Room() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
}

// Emit queues a frame for this connection only.
func (c *Client) Emit(event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		c.logger.Error(logging.Relay, logging.Dispatch, "failed to encode frame", map[logging.ExtraKey]any{
			logging.Event:        event,
			logging.ErrorMessage: err.Error(),
		})
		return
	}
	c.core.SendTo(c, payload)
}

func (c *Client) EmitError(code, message string) {
	c.Emit(EventError, ErrorPayload{Code: code, Message: message})
}

// Serve attaches the connection to the coordinator and runs both pumps. It
// returns when the connection is gone.
func (c *Client) Serve(ctx context.Context, dispatcher Dispatcher) {
	if !c.core.Attach(c) {
		_ = c.conn.WriteClose()
		_ = c.conn.Close()
		return
	}

	go c.WritePump()
	c.ReadPump(ctx, dispatcher)
}

func (c *Client) ReadPump(ctx context.Context, dispatcher Dispatcher) {
	defer func() {
		c.core.Detach(c)
		dispatcher.Disconnected(c)
		_ = c.conn.Close()
	}()

	c.conn.conn.SetReadLimit(c.maxMessageSize)
	_ = c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.conn.SetPongHandler(func(string) error {
		return c.conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn(logging.Relay, logging.Connection, "relay read error", map[logging.ExtraKey]any{
					logging.ClientID:     c.ID,
					logging.ErrorMessage: err.Error(),
				})
			}
			return
		}

		if len(raw) == 0 {
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			c.EmitError(CodeInvalidPayload, "frames must be {\"event\": ..., \"data\": ...}")
			continue
		}

		dispatcher.Dispatch(ctx, c, env)
	}
}

// WritePump is the only writer of frames to the connection. It exits when
// the coordinator closes the send channel, after writing a close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteClose()
				return
			}

			if err := c.conn.WriteText(payload); err != nil {
				c.logger.Warn(logging.Relay, logging.Connection, "relay write error", map[logging.ExtraKey]any{
					logging.ClientID:     c.ID,
					logging.ErrorMessage: err.Error(),
				})
				return
			}

		case <-ticker.C:
			if err := c.conn.WritePing(); err != nil {
				return
			}
		}
	}
}
