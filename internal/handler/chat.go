package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"expanddesk/internal/httputil"
	"expanddesk/internal/model"
	"expanddesk/internal/service"
	"expanddesk/internal/transport/http/middleware"
)

type ChatHandler struct {
	chatService *service.ChatService
}

func NewChatHandler(chatService *service.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

// GetForTicket handles GET /tickets/{id}/chat
// Returns the ticket's chat with its roster, creating it on first access.
func (h *ChatHandler) GetForTicket(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	ticketID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	chat, err := h.chatService.GetOrCreateForTicket(r.Context(), ticketID, claims.User())
	if err != nil {
		writeServiceError(w, "Get ticket chat", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, chat)
}

// Send handles POST /chats/{id}/messages
// The REST twin of the websocket send_message event, for clients without a
// live connection. Dedup and side effects behave identically.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	chatID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid chat id")
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	req.ChatID = chatID

	message, err := h.chatService.Send(r.Context(), claims.User(), req)
	if err != nil {
		writeServiceError(w, "Send message", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, message)
}

// History handles GET /chats/{id}/messages?limit=&offset=
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	chatID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid chat id")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	messages, err := h.chatService.History(r.Context(), chatID, claims.User(), limit, offset)
	if err != nil {
		writeServiceError(w, "Get chat history", err)
		return
	}
	if messages == nil {
		messages = []model.Message{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": messages,
	})
}

// MarkRead handles POST /chats/{id}/read
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	chatID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid chat id")
		return
	}

	if err := h.chatService.MarkAllRead(r.Context(), chatID, claims.User()); err != nil {
		writeServiceError(w, "Mark chat read", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Messages marked as read",
	})
}

// UnreadCount handles GET /chats/{id}/unread-count
func (h *ChatHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	chatID, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid chat id")
		return
	}

	count, err := h.chatService.UnreadCount(r.Context(), chatID, claims.User())
	if err != nil {
		writeServiceError(w, "Get chat unread count", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]int{
		"unread_count": count,
	})
}

// Inbox handles GET /chats
// Returns the caller's support inbox: every chat they participate in with
// ticket context and unread counts, newest activity first.
func (h *ChatHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	summaries, err := h.chatService.ListSummaries(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, "List chat inbox", err)
		return
	}
	if summaries == nil {
		summaries = []model.ChatSummary{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"chats": summaries,
	})
}
