package ws

import (
	"context"
	"sort"

	"github.com/hilthontt/burner/internal/infrastructure/logging"
	"github.com/hilthontt/burner/internal/infrastructure/metrics"
)

type subscription struct {
	client *Client
	roomID string
	done   chan struct{}
}

type outbound struct {
	roomID  string
	client  *Client
	payload []byte
}

// Core owns the relay registry. Only the Run goroutine reads or writes
// clients and rooms; everything else talks to it through channels.
type Core struct {
	clients map[*Client]string             // client -> subscribed room ("" when not joined)
	rooms   map[string]map[*Client]struct{} // roomID -> subscribers

	attach     chan *Client
	detach     chan *Client
	subscribe  chan subscription
	broadcast  chan outbound
	direct     chan outbound
	destroy    chan outbound
	roomsQuery chan chan []string

	done    chan struct{}
	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewCore(logger logging.Logger, m *metrics.Metrics) *Core {
	return &Core{
		clients:    make(map[*Client]string),
		rooms:      make(map[string]map[*Client]struct{}),
		attach:     make(chan *Client),
		detach:     make(chan *Client),
		subscribe:  make(chan subscription),
		broadcast:  make(chan outbound, 256),
		direct:     make(chan outbound, 256),
		destroy:    make(chan outbound),
		roomsQuery: make(chan chan []string),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

func (c *Core) Run(ctx context.Context) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info(logging.Relay, logging.Shutdown, "relay core shutting down", map[logging.ExtraKey]any{
				logging.Subscribers: len(c.clients),
			})
			for cl := range c.clients {
				c.drop(cl)
			}
			return

		case cl := <-c.attach:
			c.clients[cl] = ""

		case cl := <-c.detach:
			if _, ok := c.clients[cl]; ok {
				c.drop(cl)
			}

		case sub := <-c.subscribe:
			c.join(sub.client, sub.roomID)
			close(sub.done)

		case out := <-c.broadcast:
			for cl := range c.rooms[out.roomID] {
				c.deliver(cl, out.payload)
			}

		case out := <-c.direct:
			if _, ok := c.clients[out.client]; ok {
				c.deliver(out.client, out.payload)
			}

		case out := <-c.destroy:
			subscribers := c.rooms[out.roomID]
			for cl := range subscribers {
				c.deliver(cl, out.payload)
			}
			for cl := range subscribers {
				c.drop(cl)
			}
			c.logger.Info(logging.Relay, logging.Destroy, "room subscriptions closed", map[logging.ExtraKey]any{
				logging.RoomID:      out.roomID,
				logging.Subscribers: len(subscribers),
			})

		case reply := <-c.roomsQuery:
			ids := make([]string, 0, len(c.rooms))
			for id := range c.rooms {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			reply <- ids
		}
	}
}

func (c *Core) join(cl *Client, roomID string) {
	current, known := c.clients[cl]
	if !known {
		return
	}
	if current == roomID {
		return
	}
	if current != "" {
		c.leave(cl, current)
	}

	subs, ok := c.rooms[roomID]
	if !ok {
		subs = make(map[*Client]struct{})
		c.rooms[roomID] = subs
	}
	subs[cl] = struct{}{}
	c.clients[cl] = roomID
	cl.setRoom(roomID)

	c.updateGauges()
}

func (c *Core) leave(cl *Client, roomID string) {
	subs := c.rooms[roomID]
	delete(subs, cl)
	if len(subs) == 0 {
		delete(c.rooms, roomID)
	}
}

// deliver never blocks the coordinator: a subscriber whose buffer is full is
// dropped.
func (c *Core) deliver(cl *Client, payload []byte) {
	select {
	case cl.send <- payload:
	default:
		c.logger.Warn(logging.Relay, logging.Connection, "subscriber buffer full, dropping client", map[logging.ExtraKey]any{
			logging.RoomID:   c.clients[cl],
			logging.ClientID: cl.ID,
		})
		c.metrics.DroppedClients.Inc()
		c.drop(cl)
	}
}

// drop forgets cl and closes its send channel, which makes its write pump
// send a close frame and hang up.
func (c *Core) drop(cl *Client) {
	roomID, ok := c.clients[cl]
	if !ok {
		return
	}
	if roomID != "" {
		c.leave(cl, roomID)
	}
	delete(c.clients, cl)
	close(cl.send)

	c.updateGauges()
}

func (c *Core) updateGauges() {
	subscribed := 0
	for _, subs := range c.rooms {
		subscribed += len(subs)
	}
	c.metrics.RelaySubscribers.Set(float64(subscribed))
	c.metrics.RelayRooms.Set(float64(len(c.rooms)))
}

// Attach makes cl known to the coordinator. It returns false once the
// coordinator has stopped.
func (c *Core) Attach(cl *Client) bool {
	select {
	case c.attach <- cl:
		return true
	case <-c.done:
		return false
	}
}

func (c *Core) Detach(cl *Client) {
	select {
	case c.detach <- cl:
	case <-c.done:
	}
}

// Subscribe moves cl into roomID's fan-out and returns once the registry
// reflects it.
func (c *Core) Subscribe(cl *Client, roomID string) {
	sub := subscription{client: cl, roomID: roomID, done: make(chan struct{})}
	select {
	case c.subscribe <- sub:
	case <-c.done:
		return
	}
	select {
	case <-sub.done:
	case <-c.done:
	}
}

func (c *Core) Broadcast(roomID string, payload []byte) {
	select {
	case c.broadcast <- outbound{roomID: roomID, payload: payload}:
	case <-c.done:
	}
}

func (c *Core) SendTo(cl *Client, payload []byte) {
	select {
	case c.direct <- outbound{client: cl, payload: payload}:
	case <-c.done:
	}
}

// Destroy sends payload to every subscriber of roomID and then closes their
// subscriptions.
func (c *Core) Destroy(roomID string, payload []byte) {
	select {
	case c.destroy <- outbound{roomID: roomID, payload: payload}:
	case <-c.done:
	}
}

// ActiveRooms lists rooms that currently have at least one subscriber.
func (c *Core) ActiveRooms(ctx context.Context) []string {
	reply := make(chan []string, 1)
	select {
	case c.roomsQuery <- reply:
	case <-c.done:
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-c.done:
		return nil
	case <-ctx.Done():
		return nil
	}
}
