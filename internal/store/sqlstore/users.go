package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/models"
)

func (q *querier) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}

	query := `
		SELECT id, username, password_hash, role, created_at, updated_at, version
		FROM users
		WHERE username = ?`

	if err := q.get(ctx, user, query, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("could not find user %q: %w", username, database.ErrUserNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func (q *querier) SaveUser(ctx context.Context, u *models.User) error {
	ts := now()

	if u.ID == 0 {
		query := `
			INSERT INTO users (username, password_hash, role, created_at, updated_at, version)
			VALUES (?, ?, ?, ?, ?, 1)
			RETURNING id`

		if err := q.get(ctx, &u.ID, query, u.Username, u.PasswordHash, u.Role, ts, ts); err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("user %q: %w", u.Username, database.ErrUserExists)
			}
			return fmt.Errorf("create user: %w", err)
		}
		u.CreatedAt, u.UpdatedAt, u.Version = ts, ts, 1
		return nil
	}

	rowsAffected, err := q.exec(ctx,
		`UPDATE users
		 SET password_hash = ?, role = ?, updated_at = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		u.PasswordHash, u.Role, ts, u.ID, u.Version)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if rowsAffected == 0 {
		exists, err := q.exists(ctx, "users", u.ID)
		if err != nil {
			return fmt.Errorf("check user exists: %w", err)
		}
		if !exists {
			return fmt.Errorf("could not find user %d: %w", u.ID, database.ErrUserNotFound)
		}
		return fmt.Errorf("user %d changed concurrently: %w", u.ID, database.ErrOptimisticLockFailed)
	}

	u.UpdatedAt = ts
	u.Version++
	return nil
}
