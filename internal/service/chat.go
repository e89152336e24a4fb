package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/jmoiron/sqlx"

	"expanddesk/internal/model"
	"expanddesk/internal/queue"
	"expanddesk/internal/repository"
)

// TxBeginner opens database transactions. *sqlx.DB satisfies it; tests
// inject a stub.
type TxBeginner interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// Broadcaster pushes real-time events to connected clients. The websocket
// hub implements it; tests inject a recorder.
type Broadcaster interface {
	EmitRoom(room, event string, payload interface{})
	EmitAll(event string, payload interface{})
}

// TicketRoom is the room name every connection watching a ticket joins.
func TicketRoom(ticketID int64) string {
	return fmt.Sprintf("ticket_%d", ticketID)
}

// BacklogLimit caps the message backlog served over the real-time channel.
// Older history goes through the paginated REST endpoint.
const BacklogLimit = 200

// previewLength caps the message preview embedded in events and
// notification bodies.
const previewLength = 120

// ChatService owns chat rooms, their rosters and the message log.
type ChatService struct {
	db         TxBeginner
	chatRepo   repository.ChatRepository
	msgRepo    repository.MessageRepository
	ticketRepo repository.TicketRepository
	userRepo   repository.UserRepository
	publisher  queue.Publisher
	broadcast  Broadcaster
}

func NewChatService(
	db TxBeginner,
	chatRepo repository.ChatRepository,
	msgRepo repository.MessageRepository,
	ticketRepo repository.TicketRepository,
	userRepo repository.UserRepository,
	publisher queue.Publisher,
	broadcast Broadcaster,
) *ChatService {
	return &ChatService{
		db:         db,
		chatRepo:   chatRepo,
		msgRepo:    msgRepo,
		ticketRepo: ticketRepo,
		userRepo:   userRepo,
		publisher:  publisher,
		broadcast:  broadcast,
	}
}

// GetOrCreateForTicket returns the ticket's chat, creating it on first
// access and seeding the roster with the customer, the requester and the
// assigned agent. Safe to call concurrently; all callers converge on the
// same chat and roster rows.
func (s *ChatService) GetOrCreateForTicket(ctx context.Context, ticketID int64, requester *model.User) (*model.Chat, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if !requester.Role.IsStaff() && ticket.CustomerID != requester.ID {
		return nil, model.ErrChatAccessDenied
	}

	chat, err := s.chatRepo.GetOrCreate(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	if err := s.seedParticipants(ctx, chat, ticket, requester); err != nil {
		return nil, err
	}

	chat.Participants, err = s.chatRepo.GetParticipants(ctx, chat.ID)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (s *ChatService) seedParticipants(ctx context.Context, chat *model.Chat, ticket *model.Ticket, requester *model.User) error {
	if err := s.chatRepo.AddParticipant(ctx, chat.ID, model.RefOf(requester)); err != nil {
		return err
	}

	if ticket.CustomerID != requester.ID {
		customer, err := s.userRepo.GetByID(ctx, ticket.CustomerID)
		if err != nil {
			return err
		}
		if err := s.chatRepo.AddParticipant(ctx, chat.ID, model.RefOf(customer)); err != nil {
			return err
		}
	}

	if ticket.AssignedAgentID != nil && *ticket.AssignedAgentID != requester.ID {
		agent, err := s.userRepo.GetByID(ctx, *ticket.AssignedAgentID)
		if err == nil {
			if err := s.chatRepo.AddParticipant(ctx, chat.ID, model.RefOf(agent)); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureParticipant enforces the access rule and auto-adds where allowed:
// staff may join any chat; a customer may only join the chat of their own
// ticket. Everyone else is rejected.
func (s *ChatService) ensureParticipant(ctx context.Context, chat *model.Chat, ticket *model.Ticket, user *model.User) error {
	isParticipant, err := s.chatRepo.IsParticipant(ctx, chat.ID, user.ID)
	if err != nil {
		return err
	}
	if isParticipant {
		return nil
	}

	if user.Role.IsStaff() || ticket.CustomerID == user.ID {
		return s.chatRepo.AddParticipant(ctx, chat.ID, model.RefOf(user))
	}
	return model.ErrChatAccessDenied
}

// Send validates, stores and fans out one chat message.
//
// An identical send from the same user within the duplicate window returns
// the already-stored message with no side effects, so client retry storms
// never produce duplicates. The first agent message on a pending ticket
// moves it to in_progress and claims it for the agent, in the same
// transaction as the message insert.
func (s *ChatService) Send(ctx context.Context, sender *model.User, req model.SendMessageRequest) (*model.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, model.ErrMessageEmpty
	}
	if len(content) > model.MaxMessageLength {
		return nil, model.ErrMessageTooLong
	}

	msgType := req.Type
	if msgType == "" {
		msgType = model.MessageText
	}
	if !msgType.Valid() || msgType == model.MessageSystem {
		// system_info messages are synthesized server-side only
		return nil, model.ErrInvalidMessageType
	}

	chat, err := s.chatRepo.GetByID(ctx, req.ChatID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.ticketRepo.GetByID(ctx, chat.TicketID)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.Workable() {
		return nil, model.ErrTicketClosed
	}
	if err := s.ensureParticipant(ctx, chat, ticket, sender); err != nil {
		return nil, err
	}

	if dup, err := s.msgRepo.FindRecentDuplicate(ctx, chat.ID, sender.ID, content, model.DuplicateWindow); err != nil {
		return nil, err
	} else if dup != nil {
		log.Printf("[Chat] Send dedup: chat=%d sender=%d message=%d", chat.ID, sender.ID, dup.ID)
		return dup, nil
	}

	message := &model.Message{
		ChatID:      chat.ID,
		TicketID:    ticket.ID,
		SenderID:    sender.ID,
		SenderRole:  sender.Role,
		SenderName:  sender.Name,
		SenderEmail: sender.Email,
		Content:     content,
		Type:        msgType,
		Attachments: req.Attachments,
	}

	claimTicket := sender.Role == model.RoleAgent &&
		(ticket.Status == model.StatusPending || ticket.Status == model.StatusReopen)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.msgRepo.Create(ctx, tx, message); err != nil {
		return nil, err
	}
	if claimTicket {
		if err := s.ticketRepo.StartProgress(ctx, tx, ticket.ID, sender.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit send: %w", err)
	}
	fillMessageSender(message)

	if err := s.chatRepo.SetLastMessage(ctx, chat.ID, content, message.CreatedAt); err != nil {
		log.Printf("[Chat] SetLastMessage FAILED: chat=%d err=%v", chat.ID, err)
	}

	s.broadcast.EmitRoom(TicketRoom(ticket.ID), "new_message", message)

	if claimTicket {
		s.broadcast.EmitRoom(TicketRoom(ticket.ID), "ticket_status_changed", map[string]interface{}{
			"ticket_id": ticket.ID,
			"status":    model.StatusInProgress,
		})
		event := queue.NewTicketStatusChangedEvent(ticket.ID, ticket.TicketNumber,
			ticket.CustomerID, sender.ID, string(ticket.Status), string(model.StatusInProgress))
		if _, err := s.publisher.Publish(ctx, queue.StreamEvents, event); err != nil {
			log.Printf("[Chat] Publish status change FAILED: ticket=%d err=%v", ticket.ID, err)
		}
	}

	event := queue.NewChatMessageSentEvent(ticket.ID, ticket.TicketNumber,
		chat.ID, message.ID, sender.ID, preview(content))
	if _, err := s.publisher.Publish(ctx, queue.StreamEvents, event); err != nil {
		log.Printf("[Chat] Publish message event FAILED: message=%d err=%v", message.ID, err)
	}

	return message, nil
}

// MarkAllRead records the user's read receipt on every message in the chat.
// Idempotent; repeat calls are no-ops. Other participants get a
// messages_read event so their UIs can update tick marks.
func (s *ChatService) MarkAllRead(ctx context.Context, chatID int64, user *model.User) error {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return err
	}
	isParticipant, err := s.chatRepo.IsParticipant(ctx, chat.ID, user.ID)
	if err != nil {
		return err
	}
	if !isParticipant {
		return model.ErrChatAccessDenied
	}

	if err := s.msgRepo.MarkAllRead(ctx, chat.ID, user.ID); err != nil {
		return err
	}

	s.broadcast.EmitRoom(TicketRoom(chat.TicketID), "messages_read", map[string]interface{}{
		"chat_id": chat.ID,
		"user_id": user.ID,
	})
	return nil
}

// Backlog returns the newest messages of a ticket's chat for the real-time
// channel, capped so joining a long-lived chat stays cheap.
func (s *ChatService) Backlog(ctx context.Context, ticketID int64, user *model.User, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > BacklogLimit {
		limit = BacklogLimit
	}

	ticket, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	chat, err := s.chatRepo.GetOrCreate(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureParticipant(ctx, chat, ticket, user); err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.ListLatest(ctx, chat.ID, limit)
	if err != nil {
		return nil, err
	}
	return s.attachReadBy(ctx, messages)
}

// History returns a page of chat messages in chronological order.
func (s *ChatService) History(ctx context.Context, chatID int64, user *model.User, limit, offset int) ([]model.Message, error) {
	if limit <= 0 || limit > BacklogLimit {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	ticket, err := s.ticketRepo.GetByID(ctx, chat.TicketID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureParticipant(ctx, chat, ticket, user); err != nil {
		return nil, err
	}

	messages, err := s.msgRepo.ListByChat(ctx, chat.ID, limit, offset)
	if err != nil {
		return nil, err
	}
	return s.attachReadBy(ctx, messages)
}

// attachReadBy loads the per-user read receipts onto a page of messages so
// clients can render tick marks.
func (s *ChatService) attachReadBy(ctx context.Context, messages []model.Message) ([]model.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	ids := make([]int64, len(messages))
	for i := range messages {
		ids[i] = messages[i].ID
	}
	receipts, err := s.msgRepo.ListReadBy(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].ReadBy = receipts[messages[i].ID]
	}
	return messages, nil
}

// UnreadCount returns how many messages in the chat the user has not read.
// Subject to the same access rule as the message log itself.
func (s *ChatService) UnreadCount(ctx context.Context, chatID int64, user *model.User) (int, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return 0, err
	}
	ticket, err := s.ticketRepo.GetByID(ctx, chat.TicketID)
	if err != nil {
		return 0, err
	}
	if err := s.ensureParticipant(ctx, chat, ticket, user); err != nil {
		return 0, err
	}

	return s.msgRepo.UnreadCountForChat(ctx, chat.ID, user.ID)
}

// ListSummaries returns the user's support inbox.
func (s *ChatService) ListSummaries(ctx context.Context, userID int64) ([]model.ChatSummary, error) {
	return s.chatRepo.ListSummariesForUser(ctx, userID)
}

// ReassignAgent replaces the chat's live agent. Every current agent roster
// row flips to old, the new agent becomes (or returns as) the single active
// agent with a fresh name/email snapshot, and a server-authored system
// message records the handoff in the log. Returns the previous agent's
// name, empty when the ticket had none.
func (s *ChatService) ReassignAgent(ctx context.Context, ticket *model.Ticket, newAgent, actor *model.User) (string, error) {
	chat, err := s.chatRepo.GetOrCreate(ctx, ticket.ID)
	if err != nil {
		return "", err
	}

	previous, err := s.chatRepo.ActiveAgent(ctx, chat.ID)
	if err != nil {
		return "", err
	}
	if previous != nil && previous.UserID == newAgent.ID {
		return previous.Name, nil // Already the live agent
	}

	if err := s.chatRepo.RetireAgents(ctx, chat.ID); err != nil {
		return "", err
	}
	if err := s.chatRepo.ActivateParticipant(ctx, chat.ID, model.RefOf(newAgent)); err != nil {
		return "", err
	}

	oldName := "unassigned"
	if previous != nil {
		oldName = previous.Name
	}
	text := fmt.Sprintf("Agent changed from %s to %s", oldName, newAgent.Name)
	if err := s.systemMessage(ctx, chat, ticket, actor, text); err != nil {
		log.Printf("[Chat] Handoff system message FAILED: ticket=%d err=%v", ticket.ID, err)
	}

	s.broadcast.EmitRoom(TicketRoom(ticket.ID), "agent_changed", map[string]interface{}{
		"ticket_id": ticket.ID,
		"agent_id":  newAgent.ID,
		"old_agent": oldName,
		"new_agent": newAgent.Name,
	})

	if previous == nil {
		return "", nil
	}
	return previous.Name, nil
}

// systemMessage stores a server-synthesized message attributed to the actor
// and broadcasts it like any other message.
func (s *ChatService) systemMessage(ctx context.Context, chat *model.Chat, ticket *model.Ticket, actor *model.User, content string) error {
	message := &model.Message{
		ChatID:      chat.ID,
		TicketID:    ticket.ID,
		SenderID:    actor.ID,
		SenderRole:  actor.Role,
		SenderName:  actor.Name,
		SenderEmail: actor.Email,
		Content:     content,
		Type:        model.MessageSystem,
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := s.msgRepo.Create(ctx, tx, message); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit system message: %w", err)
	}
	fillMessageSender(message)

	if err := s.chatRepo.SetLastMessage(ctx, chat.ID, content, message.CreatedAt); err != nil {
		log.Printf("[Chat] SetLastMessage FAILED: chat=%d err=%v", chat.ID, err)
	}
	s.broadcast.EmitRoom(TicketRoom(ticket.ID), "new_message", message)
	return nil
}

func fillMessageSender(m *model.Message) {
	m.Sender = model.UserRef{
		UserID: m.SenderID,
		Role:   m.SenderRole,
		Name:   m.SenderName,
		Email:  m.SenderEmail,
	}
}

func preview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
