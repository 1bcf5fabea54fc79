package roomclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
)

// Relay events, mirrored from the server wire contract.
const (
	eventJoinRoom       = "join-room"
	eventSendMessage    = "send-message"
	eventUpdateTTL      = "update-ttl"
	eventDestroyRoom    = "destroy-room"
	eventReceiveMessage = "receive-message"
	eventTTLUpdate      = "ttl-update"
	eventRoomDestroyed  = "room-destroyed"
	eventError          = "error"
)

const (
	defaultEventBuffer = 64
	defaultTick        = time.Second
	defaultReconnect   = 2 * time.Minute
	handshakeTimeout   = 10 * time.Second
	writeTimeout       = 10 * time.Second
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type EventKind int

const (
	EventStateChanged EventKind = iota
	EventMessage
	EventTTL
	EventError
)

// Message is one relayed chat line.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// Event is what a Session reports to its UI. Only the field matching Kind is
// set.
type Event struct {
	Kind    EventKind
	State   State
	Message Message
	TTL     int64
	Code    string
	Err     error
}

type SessionOptions struct {
	Username string
	// Tick is the local countdown step.
	Tick time.Duration
	// MaxReconnect bounds how long a dropped session keeps retrying. Zero
	// uses the default; negative retries until Close.
	MaxReconnect time.Duration
	EventBuffer  int
	// NewBackOff overrides the reconnect policy.
	NewBackOff func() backoff.BackOff
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Session is one participant's live view of a room: its connection state,
// the ordered message log and the lifetime countdown.
type Session struct {
	client *Client
	roomID string
	opts   SessionOptions

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	messages  []Message
	remaining int64

	writeMu sync.Mutex
	events  chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Join connects to the relay and joins roomID. The client must already hold
// an identity token for the room, see Enter.
func (c *Client) Join(ctx context.Context, roomID string, opts SessionOptions) (*Session, error) {
	if roomID == "" {
		return nil, ErrMissingRoomID
	}
	if c.Token() == "" {
		return nil, ErrMissingToken
	}
	if opts.Username == "" {
		opts.Username = GenerateUsername()
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	if opts.MaxReconnect == 0 {
		opts.MaxReconnect = defaultReconnect
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.NewBackOff == nil {
		opts.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		}
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		client: c,
		roomID: roomID,
		opts:   opts,
		state:  StateDisconnected,
		events: make(chan Event, opts.EventBuffer),
		ctx:    sctx,
		cancel: cancel,
	}

	conn, err := s.dial(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	s.wg.Add(2)
	go s.run(conn)
	go s.countdown()

	return s, nil
}

func (s *Session) RoomID() string   { return s.roomID }
func (s *Session) Username() string { return s.opts.Username }

// Events is closed once the session ends: on Close, when the room is
// destroyed, or when reconnecting gives up.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining is the local countdown in seconds. It never goes below zero.
func (s *Session) Remaining() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Messages returns the log in arrival order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrInvalidMessage
	}
	return s.write(eventSendMessage, map[string]string{
		"roomId":   s.roomID,
		"message":  text,
		"username": s.opts.Username,
	})
}

// ExtendTTL asks for more lifetime. Only the owner's request is honoured.
func (s *Session) ExtendTTL(seconds int64) error {
	return s.write(eventUpdateTTL, map[string]any{
		"roomId":  s.roomID,
		"seconds": seconds,
	})
}

func (s *Session) Destroy() error {
	return s.write(eventDestroyRoom, s.roomID)
}

// Close ends the session and releases the connection and timers.
func (s *Session) Close() error {
	s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}

	s.wg.Wait()
	return nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	s.setState(StateConnecting)

	dialer := websocket.Dialer{
		Jar:              s.client.jar,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, s.client.relayURL(), nil)
	if err != nil {
		s.setState(StateDisconnected)
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, backoff.Permanent(ErrMissingToken)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := writeFrame(conn, eventJoinRoom, s.roomID); err != nil {
		_ = conn.Close()
		s.setState(StateDisconnected)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Close may have run between the handshake and the store above; it only
	// closes the conn it saw, so this one is ours to drop.
	if s.ctx.Err() != nil {
		_ = conn.Close()
		return nil, backoff.Permanent(ErrSessionClosed)
	}

	return conn, nil
}

func (s *Session) run(conn *websocket.Conn) {
	defer s.wg.Done()
	defer close(s.events)
	defer s.cancel()

	for {
		destroyed := s.readLoop(conn)
		if destroyed || s.ctx.Err() != nil {
			return
		}

		s.setState(StateDisconnected)

		next, err := s.reconnect()
		if err != nil {
			if s.ctx.Err() == nil {
				s.emit(Event{Kind: EventError, Err: err})
			}
			return
		}
		if s.ctx.Err() != nil {
			_ = next.Close()
			return
		}
		conn = next
	}
}

// readLoop consumes frames until the connection drops. It reports whether
// the room was destroyed.
func (s *Session) readLoop(conn *websocket.Conn) bool {
	defer conn.Close()

	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			return false
		}

		switch env.Event {
		case eventReceiveMessage:
			var msg Message
			if err := json.Unmarshal(env.Data, &msg); err != nil {
				continue
			}
			s.mu.Lock()
			s.messages = append(s.messages, msg)
			s.mu.Unlock()
			s.emit(Event{Kind: EventMessage, Message: msg})

		case eventTTLUpdate:
			var payload struct {
				TTL int64 `json:"ttl"`
			}
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				continue
			}
			ttl := max(payload.TTL, 0)
			s.mu.Lock()
			s.remaining = ttl
			s.mu.Unlock()
			// The first ttl-update answers join-room.
			s.setState(StateJoined)
			s.emit(Event{Kind: EventTTL, TTL: ttl})

		case eventRoomDestroyed:
			s.markDestroyed()
			return true

		case eventError:
			var payload errorPayload
			_ = json.Unmarshal(env.Data, &payload)
			if payload.Code == "room-not-found" && s.State() == StateConnecting {
				s.markDestroyed()
				return true
			}
			s.emit(Event{Kind: EventError, Code: payload.Code, Err: errors.New(payload.Message)})
		}
	}
}

func (s *Session) markDestroyed() {
	s.mu.Lock()
	s.remaining = 0
	s.mu.Unlock()
	s.setState(StateDestroyed)
}

// reconnect redials with exponential backoff. The jar re-presents the same
// identity token, so a reconnect never takes a new slot in the room.
func (s *Session) reconnect() (*websocket.Conn, error) {
	opts := []backoff.RetryOption{backoff.WithBackOff(s.opts.NewBackOff())}
	if s.opts.MaxReconnect > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.opts.MaxReconnect))
	} else {
		opts = append(opts, backoff.WithMaxElapsedTime(0))
	}

	return backoff.Retry(s.ctx, func() (*websocket.Conn, error) {
		return s.dial(s.ctx)
	}, opts...)
}

func (s *Session) countdown() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.remaining > 0 {
				s.remaining--
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) write(event string, data any) error {
	s.mu.Lock()
	state, conn := s.state, s.conn
	s.mu.Unlock()

	switch {
	case state == StateDestroyed:
		return ErrRoomDestroyed
	case s.ctx.Err() != nil:
		return ErrSessionClosed
	case state != StateJoined || conn == nil:
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return writeFrame(conn, event, data)
}

func writeFrame(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(envelope{Event: event, Data: raw})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	if s.state == state || s.state == StateDestroyed {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.emit(Event{Kind: EventStateChanged, State: state})
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
