package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"expanddesk/internal/model"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum inbound frame size. Messages are capped at 10000 chars;
	// leave headroom for the envelope and attachments.
	maxFrameSize = 64 * 1024

	// Outbound buffer per connection. A client that falls this far behind
	// is dropped instead of blocking the hub.
	sendBuffer = 256
)

// inbound is the wire frame for every client-to-server event.
type inbound struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Client is one websocket connection of an authenticated user.
type Client struct {
	connID  string
	user    *model.User
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	gateway *Gateway

	// ctx is cancelled when the connection closes; in-flight handlers
	// abort with it.
	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(gateway *Gateway, conn *websocket.Conn, user *model.User) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		connID:  uuid.NewString(),
		user:    user,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     gateway.hub,
		gateway: gateway,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// enqueue queues an outbound frame, dropping the connection if its buffer
// is full.
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		log.Printf("[WS] Send buffer full, dropping conn=%s user=%d", c.connID, c.user.ID)
		c.conn.Close()
	}
}

// sendEvent marshals and queues one event for this connection only.
func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		log.Printf("[WS] sendEvent marshal FAILED: conn=%s event=%s err=%v", c.connID, event, err)
		return
	}
	c.enqueue(data)
}

// sendError reports a failed client event back on the same connection.
func (c *Client) sendError(event string, err error) {
	c.sendEvent("error", map[string]interface{}{
		"event":   event,
		"message": err.Error(),
	})
}

// readPump reads frames from the connection and dispatches them until the
// connection dies. Runs in its own goroutine, one per connection.
func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: conn=%s user=%d err=%v", c.connID, c.user.ID, err)
			}
			return
		}

		var frame inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError("", err)
			continue
		}
		c.gateway.dispatch(c, frame)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings. Runs in its own goroutine, one per
// connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
