package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by how callers must react to them.
type Kind string

const (
	KindValidation     Kind = "validation"
	KindConflict       Kind = "conflict"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindPayment        Kind = "payment"
	KindAuthentication Kind = "authentication"
)

// Error is a typed failure with a stable reason code.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind and reason so wrapped copies of a sentinel still match it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Reason == t.Reason
}

// Wrap returns a copy of a sentinel carrying cause.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of a sentinel with a more specific message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Reason: e.Reason, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func newError(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

var (
	ErrInvalidInput = newError(KindValidation, "invalid_input", "invalid input")

	ErrInvalidDuration      = newError(KindConflict, "invalid_duration", "duration must be a whole number of hours within the allowed range")
	ErrPastBooking          = newError(KindConflict, "past_booking", "start time must be in the future")
	ErrOutsideBusinessHours = newError(KindConflict, "outside_business_hours", "booking must be within business hours")
	ErrSlotConflict         = newError(KindConflict, "slot_conflict", "time slot is already booked")
	ErrNotPayable           = newError(KindConflict, "not-payable", "reservation is not payable")
	ErrCancelPast           = newError(KindConflict, "past", "reservation has already started")

	ErrForbidden = newError(KindAuthorization, "forbidden", "permission denied")

	ErrResourceNotFound    = newError(KindNotFound, "resource_not_found", "resource not found")
	ErrReservationNotFound = newError(KindNotFound, "reservation_not_found", "reservation not found")
	ErrPaymentNotFound     = newError(KindNotFound, "payment_not_found", "payment not found")
	ErrUserNotFound        = newError(KindNotFound, "user_not_found", "user not found")
	ErrMethodNotFound      = newError(KindNotFound, "payment_method_not_found", "payment method not found")
	ErrNotificationMissing = newError(KindNotFound, "notification_not_found", "notification not found")

	ErrInsufficientAmount = newError(KindPayment, "insufficient_amount", "amount is lower than the reservation price")
	ErrGateway            = newError(KindPayment, "gateway_failure", "payment gateway failure")
	ErrGatewayConfig      = newError(KindPayment, "gateway_not_configured", "payment gateway is not configured")

	ErrInvalidSignature = newError(KindAuthentication, "invalid_signature", "webhook signature verification failed")
)

// KindOf returns the kind of a domain error, or "" for anything else.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// ReasonOf returns the stable reason code of a domain error.
func ReasonOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Reason
	}
	return ""
}
