package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

// paymentLockClass namespaces reservation-level advisory locks on postgres.
const paymentLockClass = 2

const paymentColumns = `id, user_id, reservation_id, amount, currency, state, payment_method_id, session_ref, created_at, updated_at`

func scanPayment(row rowScanner, extra ...any) (*models.Payment, error) {
	var (
		p                  models.Payment
		methodID           sql.NullInt64
		sessionRef         sql.NullString
		createdAt, updated int64
	)
	dest := append([]any{&p.ID, &p.UserID, &p.ReservationID, &p.Amount, &p.Currency, &p.State, &methodID, &sessionRef, &createdAt, &updated}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if methodID.Valid {
		id := methodID.Int64
		p.PaymentMethodID = &id
	}
	p.SessionRef = sessionRef.String
	p.CreatedAt = fromUnix(createdAt)
	p.UpdatedAt = fromUnix(updated)
	return &p, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func (db *DB) CreatePayment(ctx context.Context, p *models.Payment) error {
	return db.insertPayment(ctx, db.DB, p)
}

// ClaimPayment inserts p only while its reservation is pending and holds no
// pending or confirmed payment. The check and the insert share one
// transaction, serialized per reservation like CreateReservation. A lost
// claim returns ErrNotPayable.
func (db *DB) ClaimPayment(ctx context.Context, p *models.Payment) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		if db.driver == DriverPostgres {
			// Two-key form: its lock space is disjoint from the resource locks.
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, $2)`, paymentLockClass, p.ReservationID); err != nil {
				return fmt.Errorf("failed to lock reservation: %w", err)
			}
		}

		var state string
		err := tx.QueryRowContext(ctx, db.rebind(`SELECT state FROM reservations WHERE id = ?`), p.ReservationID).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrReservationNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read reservation state: %w", err)
		}
		if state != models.ReservationPending {
			return domain.ErrNotPayable.WithMessage("reservation %d is %s", p.ReservationID, state)
		}

		var open int
		err = tx.QueryRowContext(ctx,
			db.rebind(`SELECT COUNT(*) FROM payments WHERE reservation_id = ? AND state IN (?, ?)`),
			p.ReservationID, models.PaymentPending, models.PaymentConfirmed).Scan(&open)
		if err != nil {
			return fmt.Errorf("failed to count open payments: %w", err)
		}
		if open > 0 {
			return domain.ErrNotPayable.WithMessage("reservation %d has a payment in progress", p.ReservationID)
		}

		return db.insertPayment(ctx, tx, p)
	})
}

func (db *DB) insertPayment(ctx context.Context, q querier, p *models.Payment) error {
	now := time.Now().UTC()
	if p.State == "" {
		p.State = models.PaymentPending
	}

	query := db.rebind(`INSERT INTO payments (user_id, reservation_id, amount, currency, state, payment_method_id, session_ref, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`)
	err := q.QueryRowContext(ctx, query,
		p.UserID,
		p.ReservationID,
		p.Amount,
		p.Currency,
		p.State,
		nullInt64(p.PaymentMethodID),
		nullString(p.SessionRef),
		unixTime(now),
		unixTime(now),
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	p.CreatedAt = fromUnix(now.Unix())
	p.UpdatedAt = p.CreatedAt
	return nil
}

// GetOrCreateSessionPayment is idempotent on p.SessionRef: a concurrent
// caller that loses the insert reads back the winner's row.
func (db *DB) GetOrCreateSessionPayment(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	if p.SessionRef == "" {
		return nil, false, errors.New("session reference is required")
	}
	now := time.Now().UTC()
	if p.State == "" {
		p.State = models.PaymentPending
	}

	query := db.rebind(`INSERT INTO payments (user_id, reservation_id, amount, currency, state, payment_method_id, session_ref, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT (session_ref) DO NOTHING RETURNING id`)
	err := db.QueryRowContext(ctx, query,
		p.UserID,
		p.ReservationID,
		p.Amount,
		p.Currency,
		p.State,
		nullInt64(p.PaymentMethodID),
		p.SessionRef,
		unixTime(now),
		unixTime(now),
	).Scan(&p.ID)
	switch {
	case err == nil:
		p.CreatedAt = fromUnix(now.Unix())
		p.UpdatedAt = p.CreatedAt
		return p, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("failed to create session payment: %w", err)
	}

	existing, err := scanPayment(db.QueryRowContext(ctx,
		db.rebind(`SELECT `+paymentColumns+` FROM payments WHERE session_ref = ?`), p.SessionRef))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session payment: %w", err)
	}
	return existing, false, nil
}

func (db *DB) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	query := db.rebind(`SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`)
	p, err := scanPayment(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// UpdatePaymentState is a compare-and-set from pending. Exactly one caller
// observes true for a given payment.
func (db *DB) UpdatePaymentState(ctx context.Context, id int64, to string) (bool, error) {
	query := db.rebind(`UPDATE payments SET state = ?, updated_at = ? WHERE id = ? AND state = ?`)
	res, err := db.ExecContext(ctx, query, to, unixTime(time.Now()), id, models.PaymentPending)
	if err != nil {
		return false, fmt.Errorf("failed to update payment state: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n > 0, nil
}

func (db *DB) CreateTransaction(ctx context.Context, t *models.Transaction) (bool, error) {
	now := time.Now().UTC()
	if t.Details == "" {
		t.Details = "{}"
	}

	query := db.rebind(`INSERT INTO transactions (payment_id, gateway_ref, status, details, created_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT (payment_id, gateway_ref) DO NOTHING RETURNING id`)
	err := db.QueryRowContext(ctx, query, t.PaymentID, t.GatewayRef, t.Status, t.Details, unixTime(now)).Scan(&t.ID)
	switch {
	case err == nil:
		t.CreatedAt = fromUnix(now.Unix())
		return true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("failed to create transaction: %w", err)
	}

	var createdAt int64
	err = db.QueryRowContext(ctx,
		db.rebind(`SELECT id, status, details, created_at FROM transactions WHERE payment_id = ? AND gateway_ref = ?`),
		t.PaymentID, t.GatewayRef,
	).Scan(&t.ID, &t.Status, &t.Details, &createdAt)
	if err != nil {
		return false, fmt.Errorf("failed to load existing transaction: %w", err)
	}
	t.CreatedAt = fromUnix(createdAt)
	return false, nil
}

// ListTransactions returns the gateway history of one payment, oldest first.
func (db *DB) ListTransactions(ctx context.Context, paymentID int64) ([]*models.Transaction, error) {
	rows, err := db.QueryContext(ctx,
		db.rebind(`SELECT id, payment_id, gateway_ref, status, details, created_at FROM transactions WHERE payment_id = ? ORDER BY id`),
		paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var out []*models.Transaction
	for rows.Next() {
		var (
			t         models.Transaction
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.PaymentID, &t.GatewayRef, &t.Status, &t.Details, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.CreatedAt = fromUnix(createdAt)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// History only shows payments that reached a terminal state.
const paymentDetailQuery = `SELECT p.id, p.user_id, p.reservation_id, p.amount, p.currency, p.state, p.payment_method_id, p.session_ref, p.created_at, p.updated_at,
              COALESCE((SELECT t.gateway_ref FROM transactions t WHERE t.payment_id = p.id ORDER BY t.id DESC LIMIT 1), ''),
              COALESCE(res.name, ''), COALESCE(r.start_time, 0)
              FROM payments p
              LEFT JOIN reservations r ON r.id = p.reservation_id
              LEFT JOIN resources res ON res.id = r.resource_id
              WHERE p.state IN ('confirmed', 'failed')`

func (db *DB) ListUserPayments(ctx context.Context, userID int64) ([]*models.PaymentDetail, error) {
	query := db.rebind(paymentDetailQuery + ` AND p.user_id = ? ORDER BY p.created_at DESC, p.id DESC`)
	return db.listPaymentDetails(ctx, query, userID)
}

func (db *DB) ListPaymentsDetailed(ctx context.Context) ([]*models.PaymentDetail, error) {
	return db.listPaymentDetails(ctx, paymentDetailQuery+` ORDER BY p.created_at DESC, p.id DESC`)
}

func (db *DB) listPaymentDetails(ctx context.Context, query string, args ...any) ([]*models.PaymentDetail, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.PaymentDetail
	for rows.Next() {
		var (
			d     models.PaymentDetail
			start int64
		)
		p, err := scanPayment(rows, &d.GatewayRef, &d.ResourceName, &start)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		d.Payment = *p
		d.StartTime = fromUnix(start)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// SyncPaymentMethods upserts the configured payment methods.
func (db *DB) SyncPaymentMethods(ctx context.Context, methods []models.PaymentMethod) error {
	query := db.rebind(`INSERT INTO payment_methods (id, name, type) VALUES (?, ?, ?)
              ON CONFLICT (id) DO UPDATE SET name = excluded.name, type = excluded.type`)
	return db.inTx(ctx, func(tx *sql.Tx) error {
		for _, m := range methods {
			if _, err := tx.ExecContext(ctx, query, m.ID, m.Name, m.Type); err != nil {
				return fmt.Errorf("failed to sync payment method %d: %w", m.ID, err)
			}
		}
		return nil
	})
}

func (db *DB) GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error) {
	var m models.PaymentMethod
	err := db.QueryRowContext(ctx, db.rebind(`SELECT id, name, type FROM payment_methods WHERE id = ?`), id).
		Scan(&m.ID, &m.Name, &m.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMethodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment method: %w", err)
	}
	return &m, nil
}

// FindPaymentMethod matches by type first, then by name, case-insensitively.
func (db *DB) FindPaymentMethod(ctx context.Context, nameOrType string) (*models.PaymentMethod, error) {
	key := strings.ToLower(strings.TrimSpace(nameOrType))
	query := db.rebind(`SELECT id, name, type FROM payment_methods
              WHERE lower(type) = ? OR lower(name) = ?
              ORDER BY CASE WHEN lower(type) = ? THEN 0 ELSE 1 END, id LIMIT 1`)

	var m models.PaymentMethod
	err := db.QueryRowContext(ctx, query, key, key, key).Scan(&m.ID, &m.Name, &m.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMethodNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment method: %w", err)
	}
	return &m, nil
}
