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

func TestCreateReservation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start, end := futureSlot(10, 2)
	r := &models.Reservation{UserID: 7, ResourceID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateReservation(ctx, r))
	assert.NotZero(t, r.ID)
	assert.Equal(t, models.ReservationPending, r.State)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(end))
	assert.Equal(t, int64(7), got.UserID)

	_, err = db.GetReservation(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrReservationNotFound)
}

func TestCreateReservation_Overlap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start, end := futureSlot(10, 2)
	require.NoError(t, db.CreateReservation(ctx, &models.Reservation{UserID: 1, ResourceID: 1, StartTime: start, EndTime: end}))

	tests := []struct {
		name     string
		resource int64
		startH   int
		hours    int
		wantErr  bool
	}{
		{"same interval", 1, 10, 2, true},
		{"starts inside", 1, 11, 2, true},
		{"ends inside", 1, 9, 2, true},
		{"contains", 1, 9, 3, true},
		{"touching end", 1, 12, 1, false},
		{"touching start", 1, 9, 1, false},
		{"other court", 2, 10, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, e := futureSlot(tt.startH, tt.hours)
			r := &models.Reservation{UserID: 2, ResourceID: tt.resource, StartTime: s, EndTime: e}
			err := db.CreateReservation(ctx, r)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrSlotConflict)
				return
			}
			require.NoError(t, err)
			// free the slot for the next case
			_, err = db.UpdateReservationState(ctx, r.ID, []string{models.ReservationPending}, models.ReservationCancelled)
			require.NoError(t, err)
		})
	}
}

func TestCreateReservation_CancelledFreesSlot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start, end := futureSlot(14, 1)
	first := &models.Reservation{UserID: 1, ResourceID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateReservation(ctx, first))

	ok, err := db.UpdateReservationState(ctx, first.ID, []string{models.ReservationPending, models.ReservationPaid}, models.ReservationCancelled)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, db.CreateReservation(ctx, &models.Reservation{UserID: 2, ResourceID: 1, StartTime: start, EndTime: end}))

	overlapping, err := db.FindOverlapping(ctx, 1, start, end)
	require.NoError(t, err)
	require.Len(t, overlapping, 1)
	assert.Equal(t, int64(2), overlapping[0].UserID)
}

func TestCreateReservation_Concurrent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	start, end := futureSlot(16, 2)

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			err := db.CreateReservation(ctx, &models.Reservation{UserID: user, ResourceID: 1, StartTime: start, EndTime: end})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case domain.ReasonOf(err) == domain.ErrSlotConflict.Reason:
				conflicts++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, conflicts)
}

func TestUpdateReservationState(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	start, end := futureSlot(8, 1)
	r := &models.Reservation{UserID: 1, ResourceID: 1, StartTime: start, EndTime: end}
	require.NoError(t, db.CreateReservation(ctx, r))

	ok, err := db.UpdateReservationState(ctx, r.ID, []string{models.ReservationPending}, models.ReservationPaid)
	require.NoError(t, err)
	assert.True(t, ok)

	// second transition from pending loses
	ok, err = db.UpdateReservationState(ctx, r.ID, []string{models.ReservationPending}, models.ReservationPaid)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.UpdateReservationState(ctx, r.ID, nil, models.ReservationPaid)
	assert.Error(t, err)

	got, err := db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPaid, got.State)
}

func TestListReservations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 1, Email: "ann@example.com"}))

	s1, e1 := futureSlot(8, 1)
	s2, e2 := futureSlot(12, 2)
	require.NoError(t, db.CreateReservation(ctx, &models.Reservation{UserID: 1, ResourceID: 1, StartTime: s1, EndTime: e1}))
	require.NoError(t, db.CreateReservation(ctx, &models.Reservation{UserID: 1, ResourceID: 2, StartTime: s2, EndTime: e2}))
	require.NoError(t, db.CreateReservation(ctx, &models.Reservation{UserID: 2, ResourceID: 1, StartTime: s2, EndTime: e2}))

	mine, err := db.ListUserReservations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	// newest slot first
	assert.Equal(t, "Court 2", mine[0].ResourceName)
	assert.Equal(t, "ann@example.com", mine[0].UserEmail)

	all, err := db.ListReservationsDetailed(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
