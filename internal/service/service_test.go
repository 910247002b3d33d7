package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/models"
	"courtbook/internal/repository"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2030, 6, 1, 8, 30, 0, 0, time.UTC)

// at returns hour:00 UTC on the day after testNow.
func at(hour int) time.Time {
	return time.Date(2030, 6, 2, hour, 0, 0, 0, time.UTC)
}

type mockNotifier struct {
	mock.Mock
}

func newMockNotifier() *mockNotifier {
	n := &mockNotifier{}
	n.On("SendReservationConfirmation", mock.Anything, mock.Anything, mock.Anything).Return()
	n.On("SendPaymentConfirmation", mock.Anything, mock.Anything, mock.Anything).Return()
	n.On("SendCancellationNotice", mock.Anything, mock.Anything, mock.Anything).Return()
	return n
}

func (m *mockNotifier) SendReservationConfirmation(ctx context.Context, userID int64, data models.NotificationData) {
	m.Called(ctx, userID, data)
}

func (m *mockNotifier) SendPaymentConfirmation(ctx context.Context, userID int64, data models.NotificationData) {
	m.Called(ctx, userID, data)
}

func (m *mockNotifier) SendCancellationNotice(ctx context.Context, userID int64, data models.NotificationData) {
	m.Called(ctx, userID, data)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ChargeResult), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, amountMinor int64, currency string, metadata models.Metadata) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, amountMinor, currency, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SessionStatus), args.Error(1)
}

func (m *mockGateway) VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.GatewayEvent), args.Error(1)
}

type queuedTask struct {
	taskType string
	entityID int64
}

type fakeTasks struct {
	mu    sync.Mutex
	tasks []queuedTask
}

func (f *fakeTasks) Enqueue(ctx context.Context, taskType string, entityID int64, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, queuedTask{taskType: taskType, entityID: entityID})
	return nil
}

func (f *fakeTasks) count(taskType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tasks {
		if t.taskType == taskType {
			n++
		}
	}
	return n
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) count(eventType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	db       *database.DB
	bookings *BookingService
	payments *PaymentService
	gateway  *mockGateway
	notifier *mockNotifier
	tasks    *fakeTasks
	events   *eventLog
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.SyncResources(ctx, []models.Resource{
		{ID: 1, Name: "Court A", Category: "hard", HourlyRate: 20},
		{ID: 2, Name: "Court B", Category: "clay", HourlyRate: 25.5},
	}))
	require.NoError(t, db.SyncPaymentMethods(ctx, []models.PaymentMethod{
		{ID: 1, Name: "Card", Type: "card"},
		{ID: 2, Name: "Cash", Type: "cash"},
	}))

	env := &testEnv{
		db:       db,
		gateway:  &mockGateway{},
		notifier: newMockNotifier(),
		tasks:    &fakeTasks{},
		events:   &eventLog{},
	}

	bus := events.NewEventBus()
	for _, et := range events.AllEvents {
		et := et
		bus.Subscribe(et, func(e *events.Event) error {
			env.events.mu.Lock()
			env.events.events = append(env.events.events, e.Type)
			env.events.mu.Unlock()
			return nil
		})
	}

	env.bookings = NewBookingService(db, db, env.notifier, bus, env.tasks, config.BookingConfig{}, nil)
	env.bookings.now = func() time.Time { return testNow }

	env.payments = NewPaymentService(db, db, db, env.gateway, PaymentDeps{
		Notifier:  env.notifier,
		EventBus:  bus,
		Tasks:     env.tasks,
		Checkouts: repository.NewMemoryStore(time.Hour),
	}, config.PaymentsConfig{Currency: "usd"}, nil)
	env.payments.now = func() time.Time { return testNow }

	return env
}

func (e *testEnv) book(t *testing.T, userID, resourceID int64, hour, hours int) *models.Reservation {
	t.Helper()
	r, err := e.bookings.CreateBooking(context.Background(), userID, resourceID, at(hour), hours)
	require.NoError(t, err)
	return r
}

func (e *testEnv) reservationState(t *testing.T, id int64) string {
	t.Helper()
	r, err := e.db.GetReservation(context.Background(), id)
	require.NoError(t, err)
	return r.State
}

func (e *testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func user(id int64) models.Identity {
	return models.Identity{UserID: id, Role: models.RoleUser}
}
