package models

import "time"

type Payment struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	ReservationID   int64     `json:"reservation_id"`
	Amount          int64     `json:"amount"` // minor units
	Currency        string    `json:"currency"`
	State           string    `json:"state"` // pending, confirmed, failed
	PaymentMethodID *int64    `json:"payment_method_id,omitempty"`
	SessionRef      string    `json:"session_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Transaction is one immutable record of a gateway interaction.
type Transaction struct {
	ID         int64     `json:"id"`
	PaymentID  int64     `json:"payment_id"`
	GatewayRef string    `json:"gateway_ref"`
	Status     string    `json:"status"` // success, failed
	Details    string    `json:"details"`
	CreatedAt  time.Time `json:"created_at"`
}

type PaymentMethod struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// PaymentDetail is a settled payment with its latest gateway reference.
type PaymentDetail struct {
	Payment
	GatewayRef   string    `json:"gateway_ref,omitempty"`
	ResourceName string    `json:"resource_name,omitempty"`
	StartTime    time.Time `json:"start_time"`
}

// PaymentRequest is the caller-supplied part of a synchronous payment.
type PaymentRequest struct {
	Method   string  `json:"method"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// RefundRequired marks money captured for a reservation that was already
// settled or released by the time the payment confirmed.
type PaymentResult struct {
	OK             bool   `json:"ok"`
	PaymentID      int64  `json:"payment_id"`
	TransactionID  int64  `json:"transaction_id"`
	GatewayRef     string `json:"gateway_ref"`
	RefundRequired bool   `json:"refund_required,omitempty"`
}

type ReconciliationResult struct {
	OK               bool  `json:"ok"`
	Handled          bool  `json:"handled"`
	AlreadyConfirmed bool  `json:"already_confirmed,omitempty"`
	RefundRequired   bool  `json:"refund_required,omitempty"`
	PaymentID        int64 `json:"payment_id,omitempty"`
	TransactionID    int64 `json:"transaction_id,omitempty"`
}

// CheckoutIntent is a hosted checkout session opened for a reservation.
type CheckoutIntent struct {
	ReservationID int64     `json:"reservation_id"`
	UserID        int64     `json:"user_id"`
	RedirectURL   string    `json:"redirect_url"`
	SessionID     string    `json:"session_id"`
	ExpiresAt     time.Time `json:"expires_at"`
}
