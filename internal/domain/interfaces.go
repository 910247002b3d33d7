package domain

import (
	"context"
	"time"

	"courtbook/internal/models"
)

type ResourceCatalog interface {
	GetResource(ctx context.Context, id int64) (*models.Resource, error)
	ListResources(ctx context.Context) ([]*models.Resource, error)
}

type ReservationStore interface {
	// CreateReservation runs the overlap check and the insert as one unit
	// serialized per resource. It returns ErrSlotConflict when the interval
	// intersects a non-cancelled reservation.
	CreateReservation(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	FindOverlapping(ctx context.Context, resourceID int64, start, end time.Time) ([]*models.Reservation, error)
	// UpdateReservationState moves the row to state "to" only if its current
	// state is one of "from". It reports whether a row changed.
	UpdateReservationState(ctx context.Context, id int64, from []string, to string) (bool, error)
	ListUserReservations(ctx context.Context, userID int64) ([]*models.ReservationDetail, error)
	ListReservationsDetailed(ctx context.Context) ([]*models.ReservationDetail, error)
}

type PaymentStore interface {
	// ClaimPayment inserts a pending payment for a pending reservation that
	// holds no other pending or confirmed payment, serialized per
	// reservation. It returns ErrNotPayable when the claim is lost.
	ClaimPayment(ctx context.Context, p *models.Payment) error
	// GetOrCreateSessionPayment returns the payment keyed by p.SessionRef,
	// inserting p if none exists. created reports whether p was inserted.
	GetOrCreateSessionPayment(ctx context.Context, p *models.Payment) (payment *models.Payment, created bool, err error)
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	// UpdatePaymentState moves a pending payment to a terminal state. It
	// reports false when the payment had already left pending.
	UpdatePaymentState(ctx context.Context, id int64, to string) (bool, error)
	// CreateTransaction appends tx unless (PaymentID, GatewayRef) is already
	// recorded; in that case tx is filled from the existing row and inserted is false.
	CreateTransaction(ctx context.Context, tx *models.Transaction) (inserted bool, err error)
	ListUserPayments(ctx context.Context, userID int64) ([]*models.PaymentDetail, error)
	ListPaymentsDetailed(ctx context.Context) ([]*models.PaymentDetail, error)
	GetPaymentMethod(ctx context.Context, id int64) (*models.PaymentMethod, error)
	FindPaymentMethod(ctx context.Context, nameOrType string) (*models.PaymentMethod, error)
}

type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
}

type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id int64) (*models.Notification, error)
	UpdateNotificationStatus(ctx context.Context, id int64, status, errMsg string) error
}

// ChargeRequest is a synchronous charge against the gateway.
type ChargeRequest struct {
	Amount   int64
	Currency string
	Method   string
	Metadata models.Metadata
}

type ChargeResult struct {
	GatewayRef string
	Success    bool
	Details    map[string]any
}

type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// SessionStatus is the gateway's authoritative view of a checkout session.
type SessionStatus struct {
	ID         string
	GatewayRef string
	Complete   bool
	Paid       bool
	Metadata   models.Metadata
}

// GatewayEvent is a verified webhook notification.
type GatewayEvent struct {
	ID        string
	Type      string
	SessionID string
}

const EventCheckoutCompleted = "checkout.session.completed"

type PaymentGateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	CreateCheckoutSession(ctx context.Context, amountMinor int64, currency string, metadata models.Metadata) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*SessionStatus, error)
	VerifyWebhookSignature(payload []byte, signature string) (*GatewayEvent, error)
}

// Notifier sends user-facing notices. Implementations log their own
// failures; nothing is returned to the caller.
type Notifier interface {
	SendReservationConfirmation(ctx context.Context, userID int64, data models.NotificationData)
	SendPaymentConfirmation(ctx context.Context, userID int64, data models.NotificationData)
	SendCancellationNotice(ctx context.Context, userID int64, data models.NotificationData)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string, entityID int64, payload any) error
}

type CheckoutCache interface {
	GetCheckout(ctx context.Context, reservationID int64) (*models.CheckoutIntent, error)
	SetCheckout(ctx context.Context, intent *models.CheckoutIntent) error
	ClearCheckout(ctx context.Context, reservationID int64) error
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
