package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type activityLogRepository struct {
	db *sqlx.DB
}

func NewActivityLogRepository(db *sqlx.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, userID int64, message, status string) error {
	query := `INSERT INTO activity_logs (user_id, message, status) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, userID, message, status); err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}
