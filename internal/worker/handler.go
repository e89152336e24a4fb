package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"expanddesk/internal/model"
	"expanddesk/internal/queue"
	"expanddesk/internal/repository"
)

// Pusher delivers one push notification to all of a user's devices.
// The worker isolates recipients: one failed push never blocks the rest.
type Pusher interface {
	NotifyUser(ctx context.Context, userID int64, title, body string, data map[string]string) error
}

// Mailer sends the transactional ticket emails. Nil when SMTP is not
// configured.
type Mailer interface {
	SendTicketCreated(to, ticketNumber, description string) error
	SendTicketStatusChanged(to, ticketNumber, oldStatus, newStatus string) error
	SendTicketAssigned(to, ticketNumber, agentName string) error
}

// Notifier delivers an event to every live connection of one user. The
// websocket hub implements it; nil when the worker runs without one.
type Notifier interface {
	EmitUser(userID int64, event string, payload interface{})
}

// Handler processes ticket and chat events from the queue. All side
// effects (in-app notifications, push, email, activity log) live here so
// the request path only has to publish.
type Handler struct {
	userRepo     repository.UserRepository
	notifRepo    repository.NotificationRepository
	chatRepo     repository.ChatRepository
	activityRepo repository.ActivityLogRepository
	pusher       Pusher   // Can be nil if push not configured
	mailer       Mailer   // Can be nil if SMTP not configured
	notifier     Notifier // Can be nil when running without the hub
}

// NewHandler creates a new event handler.
func NewHandler(
	userRepo repository.UserRepository,
	notifRepo repository.NotificationRepository,
	chatRepo repository.ChatRepository,
	activityRepo repository.ActivityLogRepository,
) *Handler {
	return &Handler{
		userRepo:     userRepo,
		notifRepo:    notifRepo,
		chatRepo:     chatRepo,
		activityRepo: activityRepo,
	}
}

// SetPusher sets the push gateway (optional).
func (h *Handler) SetPusher(p Pusher) {
	h.pusher = p
}

// SetMailer sets the email sender (optional).
func (h *Handler) SetMailer(m Mailer) {
	h.mailer = m
}

// SetNotifier sets the real-time notification sink (optional).
func (h *Handler) SetNotifier(n Notifier) {
	h.notifier = n
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.Event) error {
	startTime := time.Now()
	var err error

	switch event.Type {
	case queue.EventTicketCreated:
		err = h.handleTicketCreated(ctx, event)
	case queue.EventTicketStatusChanged:
		err = h.handleTicketStatusChanged(ctx, event)
	case queue.EventTicketAssigned:
		err = h.handleTicketAssigned(ctx, event)
	case queue.EventChatMessageSent:
		err = h.handleChatMessageSent(ctx, event)
	default:
		log.Printf("[Worker] Unknown event type: %s", event.Type)
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Worker] HandleEvent FAILED: type=%s duration=%v err=%v",
			event.Type, time.Since(startTime), err)
		return err
	}

	log.Printf("[Worker] HandleEvent OK: type=%s duration=%v", event.Type, time.Since(startTime))
	return nil
}

// handleTicketCreated notifies the staff who can pick the ticket up
// (managers plus agents covering the category) and emails the customer a
// confirmation.
func (h *Handler) handleTicketCreated(ctx context.Context, event queue.Event) error {
	log.Printf("[Worker] TicketCreated: ticket=%s customer=%d category=%d",
		event.TicketNumber, event.CustomerID, event.CategoryID)

	staff, err := h.staffForCategory(ctx, event.CategoryID)
	if err != nil {
		return err
	}

	// The customer is a recipient too when someone created on their
	// behalf; the actor never notifies themselves.
	var recipients []int64
	for _, id := range append(staff, event.CustomerID) {
		if id != event.ActorID {
			recipients = append(recipients, id)
		}
	}

	title := "New support ticket"
	body := fmt.Sprintf("Ticket %s was submitted and is waiting for an agent", event.TicketNumber)
	metadata := h.ticketMetadata(event)

	notifications := make([]model.Notification, 0, len(recipients))
	for _, userID := range recipients {
		notifications = append(notifications, model.Notification{
			UserID:   userID,
			Title:    title,
			Message:  body,
			Type:     model.NotificationInfo,
			Category: model.CategoryTicket,
			Metadata: metadata,
		})
	}
	if err := h.notifRepo.CreateBatch(ctx, notifications); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	h.emitNotifications(notifications)

	h.pushToUsers(ctx, recipients, title, body, h.ticketData(event))

	if h.mailer != nil {
		if customer, err := h.userRepo.GetByID(ctx, event.CustomerID); err == nil {
			if err := h.mailer.SendTicketCreated(customer.Email, event.TicketNumber, event.Preview); err != nil {
				log.Printf("[Worker] TicketCreated email FAILED: ticket=%s err=%v", event.TicketNumber, err)
			}
		}
	}

	h.logActivity(ctx, event.ActorID, fmt.Sprintf("Ticket %s created", event.TicketNumber), model.ActivityAdded)

	log.Printf("[Worker] TicketCreated DONE: ticket=%s notified=%d", event.TicketNumber, len(recipients))
	return nil
}

// handleTicketStatusChanged notifies the side that did not make the
// change: staff transitions notify the customer, customer-initiated
// transitions (reopen) notify the managers.
func (h *Handler) handleTicketStatusChanged(ctx context.Context, event queue.Event) error {
	log.Printf("[Worker] TicketStatusChanged: ticket=%s %s->%s actor=%d",
		event.TicketNumber, event.OldStatus, event.NewStatus, event.ActorID)

	title := "Ticket status updated"
	body := fmt.Sprintf("Ticket %s moved from %s to %s", event.TicketNumber, event.OldStatus, event.NewStatus)
	metadata := h.ticketMetadata(event)

	var recipients []int64
	if event.ActorID == event.CustomerID {
		managers, err := h.userRepo.GetManagers(ctx)
		if err != nil {
			return fmt.Errorf("get managers: %w", err)
		}
		for _, m := range managers {
			recipients = append(recipients, m.ID)
		}
	} else {
		recipients = []int64{event.CustomerID}
	}

	notifications := make([]model.Notification, 0, len(recipients))
	for _, userID := range recipients {
		notifications = append(notifications, model.Notification{
			UserID:   userID,
			Title:    title,
			Message:  body,
			Type:     severityForStatus(event.NewStatus),
			Category: model.CategoryTicket,
			Metadata: metadata,
		})
	}
	if err := h.notifRepo.CreateBatch(ctx, notifications); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	h.emitNotifications(notifications)

	h.pushToUsers(ctx, recipients, title, body, h.ticketData(event))

	if h.mailer != nil && event.ActorID != event.CustomerID {
		if customer, err := h.userRepo.GetByID(ctx, event.CustomerID); err == nil {
			if err := h.mailer.SendTicketStatusChanged(customer.Email, event.TicketNumber, event.OldStatus, event.NewStatus); err != nil {
				log.Printf("[Worker] StatusChanged email FAILED: ticket=%s err=%v", event.TicketNumber, err)
			}
		}
	}

	h.logActivity(ctx, event.ActorID,
		fmt.Sprintf("Ticket %s status changed to %s", event.TicketNumber, event.NewStatus), model.ActivityUpdated)
	return nil
}

// handleTicketAssigned notifies the incoming agent and the customer, and
// emails the customer who is now handling their ticket.
func (h *Handler) handleTicketAssigned(ctx context.Context, event queue.Event) error {
	log.Printf("[Worker] TicketAssigned: ticket=%s agent=%d actor=%d",
		event.TicketNumber, event.AgentID, event.ActorID)

	metadata := h.ticketMetadata(event)

	notifications := []model.Notification{
		{
			UserID:   event.AgentID,
			Title:    "Ticket assigned to you",
			Message:  fmt.Sprintf("You are now handling ticket %s", event.TicketNumber),
			Type:     model.NotificationInfo,
			Category: model.CategoryAgent,
			Metadata: metadata,
		},
		{
			UserID:   event.CustomerID,
			Title:    "An agent is on your ticket",
			Message:  fmt.Sprintf("%s is now handling ticket %s", event.NewAgentName, event.TicketNumber),
			Type:     model.NotificationSuccess,
			Category: model.CategoryTicket,
			Metadata: metadata,
		},
	}
	if err := h.notifRepo.CreateBatch(ctx, notifications); err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	h.emitNotifications(notifications)

	h.pushToUsers(ctx, []int64{event.AgentID, event.CustomerID},
		"Ticket "+event.TicketNumber,
		fmt.Sprintf("%s is now the assigned agent", event.NewAgentName),
		h.ticketData(event))

	if h.mailer != nil {
		if customer, err := h.userRepo.GetByID(ctx, event.CustomerID); err == nil {
			if err := h.mailer.SendTicketAssigned(customer.Email, event.TicketNumber, event.NewAgentName); err != nil {
				log.Printf("[Worker] Assigned email FAILED: ticket=%s err=%v", event.TicketNumber, err)
			}
		}
	}

	h.logActivity(ctx, event.ActorID,
		fmt.Sprintf("Ticket %s assigned to %s", event.TicketNumber, event.NewAgentName), model.ActivityUpdated)
	return nil
}

// handleChatMessageSent pushes the message to the chat's other active
// participants. Managers sit on many rosters for oversight and are
// excluded from message pushes; they catch up from the inbox instead.
func (h *Handler) handleChatMessageSent(ctx context.Context, event queue.Event) error {
	log.Printf("[Worker] ChatMessageSent: ticket=%s chat=%d message=%d sender=%d",
		event.TicketNumber, event.ChatID, event.MessageID, event.ActorID)

	participants, err := h.chatRepo.GetParticipants(ctx, event.ChatID)
	if err != nil {
		return fmt.Errorf("get participants: %w", err)
	}

	var recipients []int64
	var senderName string
	for _, p := range participants {
		if p.UserID == event.ActorID {
			senderName = p.Name
			continue
		}
		if p.Status != model.ParticipantActive {
			continue
		}
		if p.Role == model.RoleManager {
			continue
		}
		recipients = append(recipients, p.UserID)
	}
	if senderName == "" {
		senderName = "Support"
	}

	title := fmt.Sprintf("%s · Ticket %s", senderName, event.TicketNumber)
	h.pushToUsers(ctx, recipients, title, event.Preview, map[string]string{
		"type":      "chat_message",
		"ticket_id": strconv.FormatInt(event.TicketID, 10),
		"chat_id":   strconv.FormatInt(event.ChatID, 10),
	})

	log.Printf("[Worker] ChatMessageSent DONE: chat=%d pushed=%d", event.ChatID, len(recipients))
	return nil
}

// staffForCategory returns the deduplicated ids of all managers plus the
// agents covering the category.
func (h *Handler) staffForCategory(ctx context.Context, categoryID int64) ([]int64, error) {
	managers, err := h.userRepo.GetManagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("get managers: %w", err)
	}
	agents, err := h.userRepo.GetAgentsByCategory(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("get category agents: %w", err)
	}

	seen := make(map[int64]struct{})
	var ids []int64
	for _, u := range append(managers, agents...) {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// emitNotifications mirrors freshly stored notifications onto each
// recipient's live connections so open clients update without polling.
func (h *Handler) emitNotifications(notifications []model.Notification) {
	if h.notifier == nil {
		return
	}
	for i := range notifications {
		h.notifier.EmitUser(notifications[i].UserID, "notification", notifications[i])
	}
}

// pushToUsers fans a push out with per-recipient isolation.
func (h *Handler) pushToUsers(ctx context.Context, userIDs []int64, title, body string, data map[string]string) {
	if h.pusher == nil {
		return
	}
	for _, userID := range userIDs {
		if err := h.pusher.NotifyUser(ctx, userID, title, body, data); err != nil {
			log.Printf("[Worker] Push FAILED: user=%d err=%v", userID, err)
		}
	}
}

// logActivity writes one audit entry, fire and forget.
func (h *Handler) logActivity(ctx context.Context, userID int64, message, status string) {
	if err := h.activityRepo.Create(ctx, userID, message, status); err != nil {
		log.Printf("[Worker] Activity log FAILED: user=%d err=%v", userID, err)
	}
}

func (h *Handler) ticketMetadata(event queue.Event) json.RawMessage {
	data, err := json.Marshal(map[string]interface{}{
		"ticket_id":     event.TicketID,
		"ticket_number": event.TicketNumber,
	})
	if err != nil {
		return nil
	}
	return data
}

func (h *Handler) ticketData(event queue.Event) map[string]string {
	return map[string]string{
		"type":          event.Type,
		"ticket_id":     strconv.FormatInt(event.TicketID, 10),
		"ticket_number": event.TicketNumber,
	}
}

func severityForStatus(status string) string {
	switch model.TicketStatus(status) {
	case model.StatusResolved:
		return model.NotificationSuccess
	case model.StatusClosed:
		return model.NotificationWarning
	default:
		return model.NotificationInfo
	}
}
