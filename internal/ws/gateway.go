package ws

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"expanddesk/internal/model"
	"expanddesk/internal/presence"
	"expanddesk/internal/service"
	"expanddesk/internal/transport/http/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The API is served to first-party apps; CORS is enforced upstream
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway owns the websocket endpoint: it upgrades authenticated requests,
// runs each connection's pumps and dispatches inbound events to the chat
// service and presence tracker.
type Gateway struct {
	hub     *Hub
	chatSvc *service.ChatService
	tracker *presence.Tracker
}

func NewGateway(hub *Hub, chatSvc *service.ChatService, tracker *presence.Tracker) *Gateway {
	return &Gateway{
		hub:     hub,
		chatSvc: chatSvc,
		tracker: tracker,
	}
}

// HandleWS upgrades the request to a websocket connection. Auth middleware
// must have run already; unauthenticated requests never reach here.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade FAILED: user=%d err=%v", claims.UserID, err)
		return
	}

	client := newClient(g, conn, claims.User())
	g.hub.register(client)
	g.tracker.Connect(client.user.ID, client.user.Role)
	log.Printf("[WS] Connected: conn=%s user=%d role=%s", client.connID, client.user.ID, client.user.Role)

	go client.writePump()
	go client.readPump()
}

// disconnect tears a connection down: hub rooms first (roster updates),
// then presence (debounced offline).
func (g *Gateway) disconnect(c *Client) {
	c.cancel()
	g.hub.unregister(c)
	g.tracker.Disconnect(c.user.ID)
	close(c.send)
	log.Printf("[WS] Disconnected: conn=%s user=%d", c.connID, c.user.ID)
}

// Inbound event payloads

type joinTicketPayload struct {
	TicketID int64 `json:"ticket_id"`
}

type typingPayload struct {
	TicketID int64 `json:"ticket_id"`
	IsTyping bool  `json:"is_typing"`
}

type markReadPayload struct {
	ChatID int64 `json:"chat_id"`
}

type backlogPayload struct {
	TicketID int64 `json:"ticket_id"`
	Limit    int   `json:"limit"`
}

// dispatch routes one inbound frame. Handlers run on the connection's read
// goroutine; anything slow must not block other connections, which holds
// because each connection has its own pump.
func (g *Gateway) dispatch(c *Client, frame inbound) {
	switch frame.Event {
	case "join_ticket":
		g.handleJoinTicket(c, frame)
	case "leave_ticket":
		g.handleLeaveTicket(c, frame)
	case "send_message":
		g.handleSendMessage(c, frame)
	case "typing":
		g.handleTyping(c, frame)
	case "mark_read":
		g.handleMarkRead(c, frame)
	case "get_ticket_messages":
		g.handleBacklog(c, frame)
	default:
		log.Printf("[WS] Unknown event: conn=%s event=%q", c.connID, frame.Event)
	}
}

// handleJoinTicket checks access, ensures the chat exists, puts the
// connection in the ticket room and replies with the chat and its roster.
func (g *Gateway) handleJoinTicket(c *Client, frame inbound) {
	var p joinTicketPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		c.sendError(frame.Event, err)
		return
	}

	chat, err := g.chatSvc.GetOrCreateForTicket(c.ctx, p.TicketID, c.user)
	if err != nil {
		c.sendError(frame.Event, err)
		return
	}

	g.hub.Join(c, service.TicketRoom(p.TicketID))
	c.sendEvent("joined_ticket", map[string]interface{}{
		"ticket_id": p.TicketID,
		"chat":      chat,
	})
}

func (g *Gateway) handleLeaveTicket(c *Client, frame inbound) {
	var p joinTicketPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		c.sendError(frame.Event, err)
		return
	}
	g.hub.Leave(c, service.TicketRoom(p.TicketID))
}

// handleSendMessage stores the message; the service broadcasts it to the
// room, so the only direct reply is the ack carrying the stored message
// (which is the original message when the send was deduplicated).
func (g *Gateway) handleSendMessage(c *Client, frame inbound) {
	var req model.SendMessageRequest
	if err := json.Unmarshal(frame.Payload, &req); err != nil {
		c.sendError(frame.Event, err)
		return
	}

	message, err := g.chatSvc.Send(c.ctx, c.user, req)
	if err != nil {
		c.sendError(frame.Event, err)
		return
	}
	c.sendEvent("message_sent", message)
}

// handleTyping relays a typing indicator to the other connections in the
// room. Never persisted, never queued.
func (g *Gateway) handleTyping(c *Client, frame inbound) {
	var p typingPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		c.sendError(frame.Event, err)
		return
	}

	g.hub.EmitRoomExcept(c, service.TicketRoom(p.TicketID), "typing", map[string]interface{}{
		"ticket_id": p.TicketID,
		"user_id":   c.user.ID,
		"name":      c.user.Name,
		"is_typing": p.IsTyping,
	})
}

func (g *Gateway) handleMarkRead(c *Client, frame inbound) {
	var p markReadPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		c.sendError(frame.Event, err)
		return
	}

	if err := g.chatSvc.MarkAllRead(c.ctx, p.ChatID, c.user); err != nil {
		c.sendError(frame.Event, err)
	}
}

func (g *Gateway) handleBacklog(c *Client, frame inbound) {
	var p backlogPayload
	if err := json.Unmarshal(frame.Payload, &p); err != nil {
		c.sendError(frame.Event, err)
		return
	}

	messages, err := g.chatSvc.Backlog(c.ctx, p.TicketID, c.user, p.Limit)
	if err != nil {
		c.sendError(frame.Event, err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}
	c.sendEvent("ticket_messages", map[string]interface{}{
		"ticket_id": p.TicketID,
		"messages":  messages,
	})
}
