package database

import (
	"context"
	"sync"
	"testing"

	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestReservation(t *testing.T, db *DB, userID int64, hour int) *models.Reservation {
	t.Helper()
	start, end := futureSlot(hour, 2)
	r := &models.Reservation{UserID: userID, ResourceID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateReservation(context.Background(), r))
	return r
}

func TestPaymentStateCAS(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	p := &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"}
	require.NoError(t, db.CreatePayment(ctx, p))
	assert.Equal(t, models.PaymentPending, p.State)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.UpdatePaymentState(ctx, p.ID, models.PaymentConfirmed)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	// terminal states are absorbing
	ok, err := db.UpdatePaymentState(ctx, p.ID, models.PaymentFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentConfirmed, got.State)
	assert.Equal(t, int64(4000), got.Amount)
	assert.Nil(t, got.PaymentMethodID)

	_, err = db.GetPayment(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

func TestGetOrCreateSessionPayment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	first, created, err := db.GetOrCreateSessionPayment(ctx, &models.Payment{
		UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD", SessionRef: "cs_test_1",
	})
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := db.GetOrCreateSessionPayment(ctx, &models.Payment{
		UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD", SessionRef: "cs_test_1",
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "cs_test_1", second.SessionRef)

	_, _, err = db.GetOrCreateSessionPayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID})
	assert.Error(t, err)

	// payments without a session never collide
	require.NoError(t, db.CreatePayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 1, Currency: "USD"}))
	require.NoError(t, db.CreatePayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 1, Currency: "USD"}))
}

func TestCreateTransaction_Dedup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	p := &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"}
	require.NoError(t, db.CreatePayment(ctx, p))

	tx := &models.Transaction{PaymentID: p.ID, GatewayRef: "pi_1", Status: models.TransactionSuccess, Details: `{"amount":4000}`}
	inserted, err := db.CreateTransaction(ctx, tx)
	require.NoError(t, err)
	assert.True(t, inserted)

	dup := &models.Transaction{PaymentID: p.ID, GatewayRef: "pi_1", Status: models.TransactionFailed}
	inserted, err = db.CreateTransaction(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, tx.ID, dup.ID)
	assert.Equal(t, models.TransactionSuccess, dup.Status)

	other := &models.Transaction{PaymentID: p.ID, GatewayRef: "pi_2", Status: models.TransactionFailed}
	inserted, err = db.CreateTransaction(ctx, other)
	require.NoError(t, err)
	assert.True(t, inserted)

	txs, err := db.ListTransactions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "{}", txs[1].Details)
}

func TestListPayments(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	confirmed := &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"}
	require.NoError(t, db.CreatePayment(ctx, confirmed))
	_, err := db.CreateTransaction(ctx, &models.Transaction{PaymentID: confirmed.ID, GatewayRef: "pi_ok", Status: models.TransactionSuccess})
	require.NoError(t, err)
	_, err = db.UpdatePaymentState(ctx, confirmed.ID, models.PaymentConfirmed)
	require.NoError(t, err)

	// pending payments are not part of the history
	require.NoError(t, db.CreatePayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"}))

	other := &models.Payment{UserID: 2, ReservationID: r.ID, Amount: 100, Currency: "USD"}
	require.NoError(t, db.CreatePayment(ctx, other))
	_, err = db.UpdatePaymentState(ctx, other.ID, models.PaymentFailed)
	require.NoError(t, err)

	mine, err := db.ListUserPayments(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "pi_ok", mine[0].GatewayRef)
	assert.Equal(t, "Court 1", mine[0].ResourceName)
	assert.True(t, mine[0].StartTime.Equal(r.StartTime))

	all, err := db.ListPaymentsDetailed(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPaymentMethods(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SyncPaymentMethods(ctx, []models.PaymentMethod{
		{ID: 1, Name: "Visa", Type: "card"},
		{ID: 2, Name: "Card on file", Type: "wallet"},
	}))

	m, err := db.GetPaymentMethod(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "wallet", m.Type)

	m, err = db.FindPaymentMethod(ctx, "CARD")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ID)

	m, err = db.FindPaymentMethod(ctx, "card on file")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.ID)

	_, err = db.FindPaymentMethod(ctx, "crypto")
	assert.ErrorIs(t, err, domain.ErrMethodNotFound)
	_, err = db.GetPaymentMethod(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrMethodNotFound)

	r := createTestReservation(t, db, 1, 10)
	methodID := int64(1)
	p := &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 1, Currency: "USD", PaymentMethodID: &methodID}
	require.NoError(t, db.CreatePayment(ctx, p))
	got, err := db.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PaymentMethodID)
	assert.Equal(t, methodID, *got.PaymentMethodID)
}

func TestClaimPayment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	first := &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"}
	require.NoError(t, db.ClaimPayment(ctx, first))
	assert.NotZero(t, first.ID)

	// a pending payment holds the claim
	err := db.ClaimPayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrNotPayable)

	// a failed one releases it
	ok, err := db.UpdatePaymentState(ctx, first.ID, models.PaymentFailed)
	require.NoError(t, err)
	require.True(t, ok)
	second := &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"}
	require.NoError(t, db.ClaimPayment(ctx, second))

	ok, err = db.UpdatePaymentState(ctx, second.ID, models.PaymentConfirmed)
	require.NoError(t, err)
	require.True(t, ok)
	err = db.ClaimPayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrNotPayable)

	err = db.ClaimPayment(ctx, &models.Payment{UserID: 1, ReservationID: 999, Amount: 1, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestClaimPayment_ReservationNotPending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	_, err := db.UpdateReservationState(ctx, r.ID, []string{models.ReservationPending}, models.ReservationCancelled)
	require.NoError(t, err)

	err = db.ClaimPayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"})
	assert.ErrorIs(t, err, domain.ErrNotPayable)
	assert.Equal(t, 0, countPayments(t, db))
}

func TestClaimPayment_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	r := createTestReservation(t, db, 1, 10)

	const callers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.ClaimPayment(ctx, &models.Payment{UserID: 1, ReservationID: r.ID, Amount: 4000, Currency: "USD"})
			if err == nil {
				mu.Lock()
				claims++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrNotPayable)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, claims)
	assert.Equal(t, 1, countPayments(t, db))
}

func countPayments(t *testing.T, db *DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM payments`).Scan(&n))
	return n
}
