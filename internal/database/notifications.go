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

func (db *DB) CreateNotification(ctx context.Context, n *models.Notification) error {
	now := time.Now().UTC()
	if n.Status == "" {
		n.Status = models.NotificationPending
	}

	query := db.rebind(`INSERT INTO notifications (user_id, type, channel, subject, body, status, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := db.QueryRowContext(ctx, query, n.UserID, n.Type, n.Channel, n.Subject, n.Body, n.Status, unixTime(now)).Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	n.CreatedAt = fromUnix(now.Unix())
	return nil
}

func (db *DB) GetNotification(ctx context.Context, id int64) (*models.Notification, error) {
	var (
		n         models.Notification
		errMsg    sql.NullString
		createdAt int64
		sentAt    sql.NullInt64
	)
	err := db.QueryRowContext(ctx,
		db.rebind(`SELECT id, user_id, type, channel, subject, body, status, error, created_at, sent_at FROM notifications WHERE id = ?`), id,
	).Scan(&n.ID, &n.UserID, &n.Type, &n.Channel, &n.Subject, &n.Body, &n.Status, &errMsg, &createdAt, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotificationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	if errMsg.Valid {
		n.Error = &errMsg.String
	}
	n.CreatedAt = fromUnix(createdAt)
	n.SentAt = fromNullUnix(sentAt)
	return &n, nil
}

// UpdateNotificationStatus stamps sent_at when the notice is delivered.
func (db *DB) UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string) error {
	var sentAt *time.Time
	if status == models.NotificationSent {
		now := time.Now()
		sentAt = &now
	}

	query := db.rebind(`UPDATE notifications SET status = ?, error = ?, sent_at = ? WHERE id = ?`)
	if _, err := db.ExecContext(ctx, query, status, nullString(errMsg), nullUnix(sentAt), id); err != nil {
		return fmt.Errorf("failed to update notification status: %w", err)
	}
	return nil
}
