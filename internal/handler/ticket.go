package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"expanddesk/internal/httputil"
	"expanddesk/internal/model"
	"expanddesk/internal/service"
	"expanddesk/internal/transport/http/middleware"
)

type TicketHandler struct {
	ticketService *service.TicketService
	userLoader    UserLoader
}

// UserLoader fetches the full user record for the authenticated claims.
// Agent ticket visibility depends on category sets, which are not in the
// token.
type UserLoader interface {
	Load(r *http.Request) (*model.User, bool)
}

func NewTicketHandler(ticketService *service.TicketService, userLoader UserLoader) *TicketHandler {
	return &TicketHandler{
		ticketService: ticketService,
		userLoader:    userLoader,
	}
}

// Create handles POST /tickets
func (h *TicketHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req model.CreateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	ticket, err := h.ticketService.Create(r.Context(), claims.User(), req)
	if err != nil {
		writeServiceError(w, "Create ticket", err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, ticket)
}

// Get handles GET /tickets/{id}
func (h *TicketHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	ticket, err := h.ticketService.Get(r.Context(), id, claims.UserID)
	if err != nil {
		writeServiceError(w, "Get ticket", err)
		return
	}

	// Customers only see their own tickets
	if !claims.Role.IsStaff() && ticket.CustomerID != claims.UserID {
		httputil.WriteForbidden(w, "Access denied")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ticket)
}

// List handles GET /tickets
// Customers get their own tickets, agents their assignment view,
// managers everything. Each entry carries the caller's unread count.
func (h *TicketHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := h.userLoader.Load(r)
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	tickets, err := h.ticketService.ListForUser(r.Context(), user)
	if err != nil {
		writeServiceError(w, "List tickets", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"tickets": tickets,
	})
}

// UpdateStatus handles PATCH /tickets/{id}/status
func (h *TicketHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	var req model.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	ticket, err := h.ticketService.UpdateStatus(r.Context(), id, claims.UserID, req.Status)
	if err != nil {
		writeServiceError(w, "Update ticket status", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ticket)
}

// Assign handles PATCH /tickets/{id}/assign (staff only)
func (h *TicketHandler) Assign(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	var req model.AssignTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.AgentID <= 0 {
		httputil.WriteBadRequest(w, "agent_id is required")
		return
	}

	ticket, err := h.ticketService.Assign(r.Context(), id, req.AgentID, claims.User())
	if err != nil {
		writeServiceError(w, "Assign ticket", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ticket)
}

// AppendNote handles POST /tickets/{id}/notes (staff only)
func (h *TicketHandler) AppendNote(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	var req model.AppendNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := h.ticketService.AppendNote(r.Context(), id, claims.User(), req.Note); err != nil {
		writeServiceError(w, "Append ticket note", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Note added",
	})
}

// MarkRead handles PATCH /tickets/{id}/read (staff only)
func (h *TicketHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	if err := h.ticketService.SetRead(r.Context(), id, true); err != nil {
		writeServiceError(w, "Mark ticket read", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Ticket marked as read",
	})
}

// Archive handles PATCH /tickets/{id}/archive (staff only)
func (h *TicketHandler) Archive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		httputil.WriteBadRequest(w, "Invalid ticket id")
		return
	}

	if err := h.ticketService.Archive(r.Context(), id, true); err != nil {
		writeServiceError(w, "Archive ticket", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "Ticket archived",
	})
}

// pathID parses a numeric chi path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
