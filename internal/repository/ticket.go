package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"expanddesk/internal/model"
)

type ticketRepository struct {
	db *sqlx.DB
}

func NewTicketRepository(db *sqlx.DB) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `
	id, ticket_number, description, status, customer_id, assigned_agent_id,
	category_id, equipment_id, serial_number, notes, attachments,
	is_read, is_archived, created_at, updated_at
`

// Create inserts a new ticket and fills in the generated fields.
func (r *ticketRepository) Create(ctx context.Context, ticket *model.Ticket) error {
	query := `
		INSERT INTO tickets (ticket_number, description, status, customer_id,
			assigned_agent_id, category_id, equipment_id, serial_number, notes, attachments)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query,
		ticket.TicketNumber, ticket.Description, ticket.Status, ticket.CustomerID,
		ticket.AssignedAgentID, ticket.CategoryID, ticket.EquipmentID, ticket.SerialNumber,
		pq.Array([]string(ticket.Notes)), pq.Array([]string(ticket.Attachments)),
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id = $1`

	var ticket model.Ticket
	err := r.db.GetContext(ctx, &ticket, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrTicketNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &ticket, nil
}

// UpdateStatus guards at the storage layer: the write only lands while the
// ticket is not closed, so concurrent closers cannot be overridden.
func (r *ticketRepository) UpdateStatus(ctx context.Context, id int64, status model.TicketStatus) (bool, error) {
	query := `
		UPDATE tickets SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'closed'
	`
	res, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return false, fmt.Errorf("update ticket status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ticketRepository) Reopen(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE tickets SET status = 'reopen', updated_at = NOW()
		WHERE id = $1 AND status = 'closed'
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("reopen ticket: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *ticketRepository) Assign(ctx context.Context, id, agentID int64) (bool, error) {
	query := `
		UPDATE tickets SET assigned_agent_id = $2, updated_at = NOW()
		WHERE id = $1 AND status <> 'closed'
	`
	res, err := r.db.ExecContext(ctx, query, id, agentID)
	if err != nil {
		return false, fmt.Errorf("assign ticket: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// StartProgress runs inside the message-insert transaction so the first
// agent message and the status/assignment change commit or roll back as one.
func (r *ticketRepository) StartProgress(ctx context.Context, tx *sqlx.Tx, id, agentID int64) error {
	query := `
		UPDATE tickets
		SET status = 'in_progress',
		    assigned_agent_id = COALESCE(assigned_agent_id, $2),
		    updated_at = NOW()
		WHERE id = $1 AND status <> 'closed'
	`
	if _, err := tx.ExecContext(ctx, query, id, agentID); err != nil {
		return fmt.Errorf("start ticket progress: %w", err)
	}
	return nil
}

func (r *ticketRepository) AppendNote(ctx context.Context, id int64, note string) error {
	query := `
		UPDATE tickets SET notes = array_append(notes, $2), updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, note)
	if err != nil {
		return fmt.Errorf("append ticket note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrTicketNotFound
	}
	return nil
}

func (r *ticketRepository) SetRead(ctx context.Context, id int64, isRead bool) error {
	query := `UPDATE tickets SET is_read = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, isRead); err != nil {
		return fmt.Errorf("set ticket read: %w", err)
	}
	return nil
}

func (r *ticketRepository) SetArchived(ctx context.Context, id int64, archived bool) error {
	query := `UPDATE tickets SET is_archived = $2, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, archived); err != nil {
		return fmt.Errorf("set ticket archived: %w", err)
	}
	return nil
}

func (r *ticketRepository) ListForCustomer(ctx context.Context, customerID int64) ([]model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE customer_id = $1 AND NOT is_archived
		ORDER BY created_at DESC
	`
	var tickets []model.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, customerID); err != nil {
		return nil, fmt.Errorf("list tickets for customer: %w", err)
	}
	return tickets, nil
}

// ListForAgent applies the agent visibility rule: tickets assigned to the
// agent, plus unassigned tickets in the agent's categories.
func (r *ticketRepository) ListForAgent(ctx context.Context, agentID int64, categoryIDs []int64) ([]model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE assigned_agent_id = $1
		   OR (assigned_agent_id IS NULL AND category_id = ANY($2))
		ORDER BY created_at DESC
	`
	var tickets []model.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query, agentID, pq.Array(categoryIDs)); err != nil {
		return nil, fmt.Errorf("list tickets for agent: %w", err)
	}
	return tickets, nil
}

func (r *ticketRepository) ListAll(ctx context.Context) ([]model.Ticket, error) {
	query := `
		SELECT ` + ticketColumns + `
		FROM tickets
		WHERE NOT is_archived
		ORDER BY created_at DESC
	`
	var tickets []model.Ticket
	if err := r.db.SelectContext(ctx, &tickets, query); err != nil {
		return nil, fmt.Errorf("list all tickets: %w", err)
	}
	return tickets, nil
}
