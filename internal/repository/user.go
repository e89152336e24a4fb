package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"expanddesk/internal/model"
)

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, name, email, role, phone, category_ids, is_active, created_at, updated_at`

func (r *userRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user model.User
	err := r.db.GetContext(ctx, &user, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) GetManagers(ctx context.Context) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = 'manager' AND is_active`

	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("get managers: %w", err)
	}
	return users, nil
}

func (r *userRepository) GetAgentsByCategory(ctx context.Context, categoryID int64) ([]model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE role = 'agent' AND is_active AND $1 = ANY(category_ids)
	`
	var users []model.User
	if err := r.db.SelectContext(ctx, &users, query, categoryID); err != nil {
		return nil, fmt.Errorf("get agents by category: %w", err)
	}
	return users, nil
}
