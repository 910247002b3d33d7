package models

const (
	ReservationPending   = "pending"
	ReservationPaid      = "paid"
	ReservationCancelled = "cancelled"
)

const (
	PaymentPending   = "pending"
	PaymentConfirmed = "confirmed"
	PaymentFailed    = "failed"
)

const (
	TransactionSuccess = "success"
	TransactionFailed  = "failed"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	NotificationReservationConfirmation = "reservation_confirmation"
	NotificationPaymentConfirmation     = "payment_confirmation"
	NotificationCancellation            = "cancellation"
)

const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

const (
	SyncPending   = "pending"
	SyncRetry     = "retry"
	SyncCompleted = "completed"
	SyncFailed    = "failed"
)

// Outbox task types.
const (
	TaskNotify      = "notify"
	TaskSheetUpsert = "sheet_upsert"
)

// Metadata keys attached to gateway checkout sessions.
const (
	MetaReservationID = "reservation_id"
	MetaUserID        = "user_id"
	MetaPaymentID     = "payment_id"
)

const (
	// DefaultOpenHour first bookable hour of the day
	DefaultOpenHour = 7

	// DefaultCloseHour hour by which every booking must end
	DefaultCloseHour = 22

	DefaultMinBookingHours = 1
	DefaultMaxBookingHours = 3

	// DefaultCurrency used when a request does not name one
	DefaultCurrency = "USD"

	// DefaultCheckoutTTL how long a created checkout session is reused, in seconds
	DefaultCheckoutTTL = 30 * 60

	// WorkerQueueSize in-memory queue size of the outbox worker
	WorkerQueueSize = 128

	// CardMethodType payment method type used for hosted checkout
	CardMethodType = "card"
)
