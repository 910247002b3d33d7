package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// UpsertUser records the caller identity and bumps last_activity.
func (db *DB) UpsertUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := db.rebind(`INSERT INTO users (id, email, name, role, last_activity, created_at)
              VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT (id) DO UPDATE SET
                email = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
                name = CASE WHEN excluded.name <> '' THEN excluded.name ELSE users.name END,
                role = excluded.role,
                last_activity = excluded.last_activity`)
	_, err := db.ExecContext(ctx, query, user.ID, user.Email, user.Name, user.Role, unixTime(now), unixTime(now))
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	user.LastActivity = fromUnix(now.Unix())
	return nil
}

func (db *DB) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var (
		u                   models.User
		lastActivity, since int64
	)
	err := db.QueryRowContext(ctx,
		db.rebind(`SELECT id, email, name, role, last_activity, created_at FROM users WHERE id = ?`), id,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Role, &lastActivity, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.LastActivity = fromUnix(lastActivity)
	u.CreatedAt = fromUnix(since)
	return &u, nil
}
