package realtime

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/limoline/dispatch/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // clients only ever send pings
)

var clientSeq atomic.Uint64

// Client is the middleman between one websocket connection and the hub.
type Client struct {
	id     string
	seq    uint64
	userID string
	scope  Scope
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
}

// NewClient creates a client for conn. buffer bounds the outbound queue; a
// client that falls further behind is disconnected by the hub.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, scope Scope, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	seq := clientSeq.Add(1)
	return &Client{
		id:     "ws-" + strconv.FormatUint(seq, 10),
		seq:    seq,
		userID: userID,
		scope:  scope,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, buffer),
	}
}

// ID returns the client's identifier for logs.
func (c *Client) ID() string { return c.id }

// Start launches the read and write pumps.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump consumes client frames until the connection fails. The only
// message a client may send is a ping, answered with a pong.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Str("client_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
		if msg.Type == TypePing {
			c.queuePong()
		}
	}
}

// queuePong answers a ping. Pongs are best effort: if the buffer is full the
// client is already behind and the hub will deal with it.
func (c *Client) queuePong() {
	pong, err := json.Marshal(Message{Type: TypePong, Timestamp: time.Now().UTC()})
	if err != nil {
		return
	}
	defer func() {
		// send may have been closed by the hub between the read and here.
		_ = recover()
	}()
	select {
	case c.send <- pong:
	default:
	}
}

// writePump drains the send queue onto the connection and keeps it alive
// with protocol pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logging.Debug().Err(err).Str("client_id", c.id).Msg("websocket write failed")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
