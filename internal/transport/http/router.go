package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"expanddesk/internal/handler"
	"expanddesk/internal/httputil"
	authmw "expanddesk/internal/transport/http/middleware"
	"expanddesk/internal/ws"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	TicketHandler       *handler.TicketHandler
	ChatHandler         *handler.ChatHandler
	NotificationHandler *handler.NotificationHandler
	WSGateway           *ws.Gateway
	JWTSecret           string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// All API routes require authentication; identity comes from the
	// JWT issued by the identity service.
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		// Real-time channel (token accepted via query parameter)
		r.Get("/ws", cfg.WSGateway.HandleWS)

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", cfg.TicketHandler.Create)
			r.Get("/", cfg.TicketHandler.List)
			r.Get("/{id}", cfg.TicketHandler.Get)
			r.Patch("/{id}/status", cfg.TicketHandler.UpdateStatus)
			r.Get("/{id}/chat", cfg.ChatHandler.GetForTicket)

			// Staff-only ticket operations
			r.Group(func(r chi.Router) {
				r.Use(authmw.RequireStaff)
				r.Patch("/{id}/assign", cfg.TicketHandler.Assign)
				r.Post("/{id}/notes", cfg.TicketHandler.AppendNote)
				r.Patch("/{id}/read", cfg.TicketHandler.MarkRead)
				r.Patch("/{id}/archive", cfg.TicketHandler.Archive)
			})
		})

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", cfg.ChatHandler.Inbox)
			r.Post("/{id}/messages", cfg.ChatHandler.Send)
			r.Get("/{id}/messages", cfg.ChatHandler.History)
			r.Post("/{id}/read", cfg.ChatHandler.MarkRead)
			r.Get("/{id}/unread-count", cfg.ChatHandler.UnreadCount)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", cfg.NotificationHandler.List)
			r.Patch("/read", cfg.NotificationHandler.MarkRead)
			r.Post("/read-all", cfg.NotificationHandler.MarkAllRead)
			r.Get("/unread-count", cfg.NotificationHandler.GetUnreadCount)
			r.Delete("/{id}", cfg.NotificationHandler.Delete)
			r.Post("/device-token", cfg.NotificationHandler.RegisterDeviceToken)
			r.Delete("/device-token", cfg.NotificationHandler.RemoveDeviceToken)
		})
	})

	return r
}
