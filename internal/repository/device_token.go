package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"expanddesk/internal/model"
)

type deviceTokenRepository struct {
	db *sqlx.DB
}

func NewDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

// Upsert registers a token with latest-wins semantics on both keys: the
// token is first detached from any other user (the device changed hands),
// then the user's single row is replaced with the new token.
func (r *deviceTokenRepository) Upsert(ctx context.Context, userID int64, token, platform string) error {
	transfer := `DELETE FROM device_tokens WHERE token = $1 AND user_id <> $2`
	if _, err := r.db.ExecContext(ctx, transfer, token, userID); err != nil {
		return fmt.Errorf("transfer device token: %w", err)
	}

	upsert := `
		INSERT INTO device_tokens (user_id, token, platform, last_active_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			token = EXCLUDED.token,
			platform = EXCLUDED.platform,
			last_active_at = NOW(),
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, upsert, userID, token, platform); err != nil {
		return fmt.Errorf("upsert device token: %w", err)
	}
	return nil
}

func (r *deviceTokenRepository) GetByUserIDs(ctx context.Context, userIDs []int64) ([]model.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, user_id, token, platform, last_active_at, created_at, updated_at
		FROM device_tokens
		WHERE user_id = ANY($1)
	`
	var tokens []model.DeviceToken
	if err := r.db.SelectContext(ctx, &tokens, query, pq.Array(userIDs)); err != nil {
		return nil, fmt.Errorf("get device tokens: %w", err)
	}
	return tokens, nil
}

func (r *deviceTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	query := `DELETE FROM device_tokens WHERE token = $1`
	if _, err := r.db.ExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("delete device token: %w", err)
	}
	return nil
}

// DeleteByTokens prunes tokens the push gateway reported as permanently
// invalid. Returns how many rows were removed.
func (r *deviceTokenRepository) DeleteByTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}

	query := `DELETE FROM device_tokens WHERE token = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, pq.Array(tokens))
	if err != nil {
		return 0, fmt.Errorf("delete device tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *deviceTokenRepository) ListAll(ctx context.Context) ([]model.DeviceToken, error) {
	query := `
		SELECT id, user_id, token, platform, last_active_at, created_at, updated_at
		FROM device_tokens
		ORDER BY id
	`
	var tokens []model.DeviceToken
	if err := r.db.SelectContext(ctx, &tokens, query); err != nil {
		return nil, fmt.Errorf("list device tokens: %w", err)
	}
	return tokens, nil
}
