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

const reservationColumns = `id, user_id, resource_id, start_time, end_time, state, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner, extra ...any) (*models.Reservation, error) {
	var (
		r                  models.Reservation
		start, end         int64
		createdAt, updated int64
	)
	dest := append([]any{&r.ID, &r.UserID, &r.ResourceID, &start, &end, &r.State, &createdAt, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	r.StartTime = fromUnix(start)
	r.EndTime = fromUnix(end)
	r.CreatedAt = fromUnix(createdAt)
	r.UpdatedAt = fromUnix(updated)
	return &r, nil
}

// CreateReservation admits r if no live reservation on the same resource
// intersects [r.StartTime, r.EndTime). The check and the insert share one
// transaction: postgres serializes it with an advisory lock keyed by the
// resource id, sqlite with BEGIN IMMEDIATE on its single connection.
func (db *DB) CreateReservation(ctx context.Context, r *models.Reservation) error {
	now := time.Now().UTC()
	if r.State == "" {
		r.State = models.ReservationPending
	}

	return db.inTx(ctx, func(tx *sql.Tx) error {
		if db.driver == DriverPostgres {
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, r.ResourceID); err != nil {
				return fmt.Errorf("failed to lock resource: %w", err)
			}
		}

		existing, err := db.findOverlapping(ctx, tx, r.ResourceID, r.StartTime, r.EndTime)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.ErrSlotConflict
		}

		query := db.rebind(`INSERT INTO reservations (user_id, resource_id, start_time, end_time, state, created_at, updated_at)
                  VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
		err = tx.QueryRowContext(ctx, query,
			r.UserID,
			r.ResourceID,
			unixTime(r.StartTime),
			unixTime(r.EndTime),
			r.State,
			unixTime(now),
			unixTime(now),
		).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		r.CreatedAt = fromUnix(now.Unix())
		r.UpdatedAt = r.CreatedAt
		return nil
	})
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := db.rebind(`SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`)
	r, err := scanReservation(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrReservationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// FindOverlapping returns live reservations on resourceID intersecting [start, end).
func (db *DB) FindOverlapping(ctx context.Context, resourceID int64, start, end time.Time) ([]*models.Reservation, error) {
	return db.findOverlapping(ctx, db.DB, resourceID, start, end)
}

func (db *DB) findOverlapping(ctx context.Context, q querier, resourceID int64, start, end time.Time) ([]*models.Reservation, error) {
	query := db.rebind(`SELECT ` + reservationColumns + ` FROM reservations
              WHERE resource_id = ? AND state <> ? AND start_time < ? AND end_time > ?
              ORDER BY start_time`)
	rows, err := q.QueryContext(ctx, query, resourceID, models.ReservationCancelled, unixTime(end), unixTime(start))
	if err != nil {
		return nil, fmt.Errorf("failed to query overlapping reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *DB) UpdateReservationState(ctx context.Context, id int64, from []string, to string) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("at least one source state is required")
	}

	query := db.rebind(`UPDATE reservations SET state = ?, updated_at = ? WHERE id = ? AND state IN (` + placeholders(len(from)) + `)`)
	args := []any{to, unixTime(time.Now()), id}
	for _, s := range from {
		args = append(args, s)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update reservation state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

const reservationDetailQuery = `SELECT r.id, r.user_id, r.resource_id, r.start_time, r.end_time, r.state, r.created_at, r.updated_at,
              COALESCE(res.name, ''), COALESCE(u.email, '')
              FROM reservations r
              LEFT JOIN resources res ON res.id = r.resource_id
              LEFT JOIN users u ON u.id = r.user_id`

func (db *DB) ListUserReservations(ctx context.Context, userID int64) ([]*models.ReservationDetail, error) {
	query := db.rebind(reservationDetailQuery + ` WHERE r.user_id = ? ORDER BY r.start_time DESC, r.id DESC`)
	return db.listReservationDetails(ctx, query, userID)
}

func (db *DB) ListReservationsDetailed(ctx context.Context) ([]*models.ReservationDetail, error) {
	return db.listReservationDetails(ctx, reservationDetailQuery+` ORDER BY r.start_time DESC, r.id DESC`)
}

func (db *DB) listReservationDetails(ctx context.Context, query string, args ...any) ([]*models.ReservationDetail, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.ReservationDetail
	for rows.Next() {
		var d models.ReservationDetail
		r, err := scanReservation(rows, &d.ResourceName, &d.UserEmail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		d.Reservation = *r
		out = append(out, &d)
	}
	return out, rows.Err()
}
