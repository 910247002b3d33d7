package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"courtbook/internal/database"
	"courtbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queuedTask struct {
	taskType string
	entityID int64
	payload  any
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []queuedTask
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, taskType string, entityID int64, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, queuedTask{taskType, entityID, payload})
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *recordingSender) Channel() string { return "test" }

func (s *recordingSender) Send(_ context.Context, to, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to+"|"+subject)
	return nil
}

type recordingFeed struct {
	posts []string
	err   error
}

func (f *recordingFeed) Post(_ context.Context, text string) error {
	f.posts = append(f.posts, text)
	return f.err
}

func setup(t *testing.T) (*database.DB, *fakeQueue, *recordingSender, *recordingFeed, *Dispatcher) {
	t.Helper()
	db, err := database.NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q := &fakeQueue{}
	s := &recordingSender{}
	f := &recordingFeed{}
	return db, q, s, f, NewDispatcher(db, db, q, s, f, time.UTC, nil)
}

func sampleData() models.NotificationData {
	start := time.Date(2030, 3, 4, 10, 0, 0, 0, time.UTC)
	return models.NotificationData{
		ReservationID: 12,
		ResourceName:  "Court 1",
		StartTime:     start,
		EndTime:       start.Add(2 * time.Hour),
		PaymentID:     5,
		Amount:        4000,
		Currency:      "USD",
		GatewayRef:    "sandbox_abc",
	}
}

func TestDispatchPersistsAndEnqueues(t *testing.T) {
	db, q, sender, feed, d := setup(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertUser(ctx, &models.User{ID: 3, Email: "cy@example.com"}))

	d.SendPaymentConfirmation(ctx, 3, sampleData())

	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskNotify, q.tasks[0].taskType)
	id := q.tasks[0].entityID

	n, err := db.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationPending, n.Status)
	assert.Equal(t, models.NotificationPaymentConfirmation, n.Type)
	assert.Contains(t, n.Body, "40.00 USD")
	assert.Empty(t, sender.sent, "delivery happens in the worker")

	require.NoError(t, d.Deliver(ctx, id))
	n, err = db.GetNotification(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationSent, n.Status)
	assert.Equal(t, []string{"cy@example.com|Payment received"}, sender.sent)
	assert.Len(t, feed.posts, 1)

	// redelivery is a no-op
	require.NoError(t, d.Deliver(ctx, id))
	assert.Len(t, sender.sent, 1)
}

func TestDeliverFailureIsRecorded(t *testing.T) {
	db, q, sender, _, d := setup(t)
	ctx := context.Background()
	sender.err = errors.New("mailbox full")

	d.SendCancellationNotice(ctx, 9, sampleData())
	require.Len(t, q.tasks, 1)

	err := d.Deliver(ctx, q.tasks[0].entityID)
	assert.ErrorContains(t, err, "mailbox full")

	n, err := db.GetNotification(ctx, q.tasks[0].entityID)
	require.NoError(t, err)
	assert.Equal(t, models.NotificationFailed, n.Status)
	require.NotNil(t, n.Error)
	assert.Equal(t, "mailbox full", *n.Error)
}

func TestStaffFeedFailureDoesNotFailDelivery(t *testing.T) {
	_, q, _, feed, d := setup(t)
	ctx := context.Background()
	feed.err = errors.New("telegram down")

	d.SendReservationConfirmation(ctx, 1, sampleData())
	require.Len(t, q.tasks, 1)
	assert.NoError(t, d.Deliver(ctx, q.tasks[0].entityID))
}

func TestDispatchWithoutQueueDeliversInline(t *testing.T) {
	db, err := database.NewDB(":memory:", nil)
	require.NoError(t, err)
	defer db.Close()

	sender := &recordingSender{}
	d := NewDispatcher(db, db, nil, sender, nil, nil, nil)
	d.SendReservationConfirmation(context.Background(), 1, sampleData())

	assert.Equal(t, []string{"|Reservation confirmed"}, sender.sent)
}

func TestEnqueueFailureIsSwallowed(t *testing.T) {
	_, q, _, _, d := setup(t)
	q.err = errors.New("queue down")

	assert.NotPanics(t, func() {
		d.SendCancellationNotice(context.Background(), 1, sampleData())
	})
}

func TestRender(t *testing.T) {
	data := sampleData()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)

	subject, body := Render(models.NotificationReservationConfirmation, data, loc)
	assert.Equal(t, "Reservation confirmed", subject)
	assert.Contains(t, body, "Court 1")
	assert.Contains(t, body, "11:00 - 13:00")

	subject, body = Render(models.NotificationPaymentConfirmation, data, nil)
	assert.Equal(t, "Payment received", subject)
	assert.Contains(t, body, "sandbox_abc")

	subject, _ = Render(models.NotificationCancellation, models.NotificationData{}, nil)
	assert.Equal(t, "Reservation cancelled", subject)

	subject, _ = Render("other", data, nil)
	assert.Equal(t, "Reservation update", subject)
}
