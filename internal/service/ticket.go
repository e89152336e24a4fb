package service

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"expanddesk/internal/model"
	"expanddesk/internal/queue"
	"expanddesk/internal/repository"
)

// TicketService owns the ticket lifecycle: creation, the status state
// machine, agent assignment and the note log. Side effects (notifications,
// push, email) run in the event workers; this service only publishes.
type TicketService struct {
	ticketRepo repository.TicketRepository
	userRepo   repository.UserRepository
	msgRepo    repository.MessageRepository
	chatSvc    *ChatService
	publisher  queue.Publisher
}

func NewTicketService(
	ticketRepo repository.TicketRepository,
	userRepo repository.UserRepository,
	msgRepo repository.MessageRepository,
	chatSvc *ChatService,
	publisher queue.Publisher,
) *TicketService {
	return &TicketService{
		ticketRepo: ticketRepo,
		userRepo:   userRepo,
		msgRepo:    msgRepo,
		chatSvc:    chatSvc,
		publisher:  publisher,
	}
}

// newTicketNumber generates the human-readable ticket reference, e.g.
// EXP48912734. Collisions are caught by the unique constraint on
// ticket_number; the odds at helpdesk scale make a retry loop unnecessary.
func newTicketNumber() string {
	return fmt.Sprintf("EXP%08d", rand.Intn(100_000_000))
}

// Create submits a new ticket. Customers always create for themselves;
// managers and admins may create on a customer's behalf via
// req.CustomerID.
func (s *TicketService) Create(ctx context.Context, actor *model.User, req model.CreateTicketRequest) (*model.Ticket, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, model.ErrDescriptionRequired
	}

	customerID := actor.ID
	if req.CustomerID != nil && (actor.Role == model.RoleManager || actor.Role == model.RoleAdmin) {
		customerID = *req.CustomerID
	}

	ticket := &model.Ticket{
		TicketNumber: newTicketNumber(),
		Description:  description,
		Status:       model.StatusPending,
		CustomerID:   customerID,
		CategoryID:   req.CategoryID,
		EquipmentID:  req.EquipmentID,
		SerialNumber: req.SerialNumber,
		Notes:        []string{},
		Attachments:  req.Attachments,
	}
	if ticket.Attachments == nil {
		ticket.Attachments = []string{}
	}

	if err := s.ticketRepo.Create(ctx, ticket); err != nil {
		return nil, err
	}
	log.Printf("[Ticket] Create OK: ticket=%s customer=%d category=%d", ticket.TicketNumber, customerID, req.CategoryID)

	event := queue.NewTicketCreatedEvent(ticket.ID, ticket.TicketNumber, customerID, req.CategoryID, actor.ID, preview(description))
	if _, err := s.publisher.Publish(ctx, queue.StreamEvents, event); err != nil {
		log.Printf("[Ticket] Publish created event FAILED: ticket=%s err=%v", ticket.TicketNumber, err)
	}

	return ticket, nil
}

// Get returns one ticket with the caller's unread message count.
func (s *TicketService) Get(ctx context.Context, id, userID int64) (*model.TicketWithUnread, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	unread, err := s.msgRepo.UnreadCountForTicket(ctx, ticket.ID, userID)
	if err != nil {
		return nil, err
	}
	return &model.TicketWithUnread{Ticket: *ticket, UnreadMessageCount: unread}, nil
}

// UpdateStatus drives the status state machine.
//
// A closed ticket accepts exactly one transition: reopen. Everything else
// comes back ErrTicketClosed. The storage layer re-checks the guard
// atomically, so a concurrent close cannot be overridden.
func (s *TicketService) UpdateStatus(ctx context.Context, id, actorID int64, status model.TicketStatus) (*model.Ticket, error) {
	if !status.Valid() {
		return nil, model.ErrInvalidStatus
	}

	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status
	if oldStatus == status {
		return ticket, nil
	}

	if status == model.StatusReopen {
		ok, err := s.ticketRepo.Reopen(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Only a closed ticket can reopen
			return nil, model.ErrInvalidStatus
		}
	} else {
		if !oldStatus.Workable() {
			return nil, model.ErrTicketClosed
		}
		ok, err := s.ticketRepo.UpdateStatus(ctx, id, status)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, model.ErrTicketClosed
		}
	}

	log.Printf("[Ticket] UpdateStatus OK: ticket=%s %s->%s actor=%d", ticket.TicketNumber, oldStatus, status, actorID)

	event := queue.NewTicketStatusChangedEvent(ticket.ID, ticket.TicketNumber,
		ticket.CustomerID, actorID, string(oldStatus), string(status))
	if _, err := s.publisher.Publish(ctx, queue.StreamEvents, event); err != nil {
		log.Printf("[Ticket] Publish status event FAILED: ticket=%s err=%v", ticket.TicketNumber, err)
	}

	ticket.Status = status
	return ticket, nil
}

// Assign puts an agent on the ticket and hands the chat over to them.
// Rejected on closed tickets and for assignees who are not agents.
func (s *TicketService) Assign(ctx context.Context, id int64, agentID int64, actor *model.User) (*model.Ticket, error) {
	ticket, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ticket.Status.Workable() {
		return nil, model.ErrTicketClosed
	}

	agent, err := s.userRepo.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Role != model.RoleAgent {
		return nil, model.ErrInvalidRole
	}

	ok, err := s.ticketRepo.Assign(ctx, id, agentID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, model.ErrTicketClosed
	}

	oldName, err := s.chatSvc.ReassignAgent(ctx, ticket, agent, actor)
	if err != nil {
		log.Printf("[Ticket] Chat handoff FAILED: ticket=%s agent=%d err=%v", ticket.TicketNumber, agentID, err)
	}

	log.Printf("[Ticket] Assign OK: ticket=%s agent=%d actor=%d", ticket.TicketNumber, agentID, actor.ID)

	event := queue.NewTicketAssignedEvent(ticket.ID, ticket.TicketNumber,
		ticket.CustomerID, agentID, actor.ID, oldName, agent.Name)
	if _, err := s.publisher.Publish(ctx, queue.StreamEvents, event); err != nil {
		log.Printf("[Ticket] Publish assigned event FAILED: ticket=%s err=%v", ticket.TicketNumber, err)
	}

	ticket.AssignedAgentID = &agentID
	return ticket, nil
}

// AppendNote adds one note block to the ticket's append-only note log.
func (s *TicketService) AppendNote(ctx context.Context, id int64, actor *model.User, note string) error {
	note = strings.TrimSpace(note)
	if note == "" {
		return model.ErrNoteRequired
	}

	stamped := fmt.Sprintf("[%s] %s: %s", time.Now().Format(time.RFC3339), actor.Name, note)
	return s.ticketRepo.AppendNote(ctx, id, stamped)
}

// SetRead flips the staff-facing read flag on a ticket.
func (s *TicketService) SetRead(ctx context.Context, id int64, isRead bool) error {
	return s.ticketRepo.SetRead(ctx, id, isRead)
}

// Archive hides a ticket from list views without deleting anything.
func (s *TicketService) Archive(ctx context.Context, id int64, archived bool) error {
	return s.ticketRepo.SetArchived(ctx, id, archived)
}

// ListForUser returns the tickets visible to the user, each with the
// caller's unread message count. Customers see their own tickets; agents
// see assigned tickets plus unassigned ones in their categories.
func (s *TicketService) ListForUser(ctx context.Context, user *model.User) ([]model.TicketWithUnread, error) {
	var tickets []model.Ticket
	var err error

	switch user.Role {
	case model.RoleAgent:
		tickets, err = s.ticketRepo.ListForAgent(ctx, user.ID, user.CategoryIDs)
	case model.RoleManager, model.RoleAdmin:
		tickets, err = s.ticketRepo.ListAll(ctx)
	default:
		tickets, err = s.ticketRepo.ListForCustomer(ctx, user.ID)
	}
	if err != nil {
		return nil, err
	}

	result := make([]model.TicketWithUnread, 0, len(tickets))
	for _, t := range tickets {
		unread, err := s.msgRepo.UnreadCountForTicket(ctx, t.ID, user.ID)
		if err != nil {
			log.Printf("[Ticket] Unread count FAILED: ticket=%s user=%d err=%v", t.TicketNumber, user.ID, err)
			unread = 0
		}
		result = append(result, model.TicketWithUnread{Ticket: t, UnreadMessageCount: unread})
	}
	return result, nil
}
