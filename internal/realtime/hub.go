package realtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/limoline/dispatch/internal/logging"
	"github.com/limoline/dispatch/internal/metrics"
)

// ErrHubStopped is returned by Register once the hub has shut down.
var ErrHubStopped = errors.New("websocket hub stopped")

// Scope selects which rides a client receives events for.
type Scope struct {
	RideID    string // empty for dashboard clients
	Dashboard bool
}

// Matches reports whether an event for rideID should reach a client with
// this scope.
func (s Scope) Matches(rideID string) bool {
	return s.Dashboard || (rideID != "" && s.RideID == rideID)
}

// Hub maintains the set of connected clients and fans out messages to them.
// Register, Unregister, RevokeRide and Publish are all safe for concurrent use; the
// membership map is owned by the Serve loop.
type Hub struct {
	clients    map[*Client]bool
	byRide     map[string]map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	revoke     chan revokeRequest
	stopped    chan struct{}
	stopOnce   sync.Once

	mu    sync.RWMutex
	count int
}

// NewHub creates a Hub whose inbound queue holds buffer messages.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		byRide:     make(map[string]map[*Client]bool),
		broadcast:  make(chan Message, buffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		revoke:     make(chan revokeRequest),
		stopped:    make(chan struct{}),
	}
}

// Register adds c to the hub. It blocks until the Serve loop accepts it or
// ctx ends.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes c and closes its send channel. After the hub has
// stopped it returns immediately.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

type revokeRequest struct {
	rideID string
	userID string
	done   chan int
}

// RevokeRide disconnects every client of userID subscribed to rideID, after
// queueing a subscription_revoked message to each. Broadcasts accepted by the
// hub after RevokeRide returns never reach those clients. It returns the
// number of clients dropped.
func (h *Hub) RevokeRide(ctx context.Context, rideID, userID string) (int, error) {
	req := revokeRequest{rideID: rideID, userID: userID, done: make(chan int, 1)}
	select {
	case h.revoke <- req:
	case <-h.stopped:
		return 0, ErrHubStopped
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	return <-req.done, nil
}

// Publish queues msg for fan-out. It never blocks; when the queue is full the
// message is dropped and logged.
func (h *Hub) Publish(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		logging.Warn().
			Str("message_type", msg.Type).
			Str("ride_id", msg.RideID).
			Msg("hub broadcast queue full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Serve runs the hub loop until ctx is cancelled, then closes every client.
// Lifecycle events are drained before broadcasts so a client registered just
// before an event always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stopOnce.Do(func() { close(h.stopped) })
			n := h.closeAll()
			logging.Info().
				Str("component", "websocket-hub").
				Int("clients_closed", n).
				Msg("websocket hub stopped")
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		case req := <-h.revoke:
			req.done <- h.revokeRide(req.rideID, req.userID)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			continue
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case req := <-h.revoke:
			req.done <- h.revokeRide(req.rideID, req.userID)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// String names the service in supervisor logs.
func (h *Hub) String() string { return "websocket-hub" }

func (h *Hub) add(c *Client) {
	h.clients[c] = true
	if !c.scope.Dashboard {
		set, ok := h.byRide[c.scope.RideID]
		if !ok {
			set = make(map[*Client]bool)
			h.byRide[c.scope.RideID] = set
		}
		set[c] = true
	}
	h.setCount()
	metrics.WebSocketConnections.Inc()

	logging.Info().
		Str("client_id", c.id).
		Str("user_id", c.userID).
		Str("ride_id", c.scope.RideID).
		Bool("dashboard", c.scope.Dashboard).
		Int("total_clients", len(h.clients)).
		Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	if !h.clients[c] {
		return
	}
	h.drop(c)
	logging.Info().
		Str("client_id", c.id).
		Int("total_clients", len(h.clients)).
		Msg("websocket client disconnected")
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	if set, ok := h.byRide[c.scope.RideID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byRide, c.scope.RideID)
		}
	}
	close(c.send)
	h.setCount()
	metrics.WebSocketConnections.Dec()
}

func (h *Hub) revokeRide(rideID, userID string) int {
	var targets []*Client
	for c := range h.byRide[rideID] {
		if c.userID == userID {
			targets = append(targets, c)
		}
	}
	if len(targets) == 0 {
		return 0
	}

	var notice []byte
	if msg, err := NewMessage(TypeSubscriptionRevoked, rideID, SubscriptionRevoked{
		RideID: rideID,
		Reason: "driver reassigned",
	}); err == nil {
		notice, _ = json.Marshal(msg)
	}
	for _, c := range targets {
		if notice != nil {
			select {
			case c.send <- notice:
			default:
			}
		}
		h.drop(c)
		logging.Info().
			Str("client_id", c.id).
			Str("user_id", userID).
			Str("ride_id", rideID).
			Msg("websocket ride subscription revoked")
	}
	return len(targets)
}

// fanOut encodes msg once and delivers it to every matching client in id
// order. A client whose buffer is full is disconnected.
func (h *Hub) fanOut(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("message_type", msg.Type).Msg("failed to encode websocket message")
		return
	}

	targets := make([]*Client, 0)
	for c := range h.byRide[msg.RideID] {
		targets = append(targets, c)
	}
	for c := range h.clients {
		if c.scope.Dashboard {
			targets = append(targets, c)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].seq < targets[j].seq })

	for _, c := range targets {
		select {
		case c.send <- payload:
			metrics.WebSocketMessagesSent.WithLabelValues(msg.Type).Inc()
		default:
			metrics.WebSocketSlowClients.Inc()
			logging.Warn().Str("client_id", c.id).Msg("websocket client too slow, disconnecting")
			h.drop(c)
		}
	}
}

func (h *Hub) closeAll() int {
	n := len(h.clients)
	for c := range h.clients {
		h.drop(c)
	}
	return n
}

func (h *Hub) setCount() {
	h.mu.Lock()
	h.count = len(h.clients)
	h.mu.Unlock()
}
