package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	flowDirect   = "direct"
	flowCheckout = "checkout"
)

// PaymentService owns the payment state machine. Every transition out of
// pending is a compare-and-swap in the store, so concurrent reconcilers
// apply the success path once.
type PaymentService struct {
	catalog      domain.ResourceCatalog
	reservations domain.ReservationStore
	payments     domain.PaymentStore
	gateway      domain.PaymentGateway
	notifier     domain.Notifier
	eventBus     domain.EventPublisher
	tasks        domain.TaskQueue
	checkouts    domain.CheckoutCache
	currency     string
	now          func() time.Time
	newRef       func() string
	logger       *zerolog.Logger
}

// PaymentDeps groups the optional collaborators of PaymentService.
type PaymentDeps struct {
	Notifier  domain.Notifier
	EventBus  domain.EventPublisher
	Tasks     domain.TaskQueue
	Checkouts domain.CheckoutCache
}

func NewPaymentService(
	catalog domain.ResourceCatalog,
	reservations domain.ReservationStore,
	payments domain.PaymentStore,
	gateway domain.PaymentGateway,
	deps PaymentDeps,
	cfg config.PaymentsConfig,
	logger *zerolog.Logger,
) *PaymentService {
	currency := strings.ToUpper(cfg.Currency)
	if currency == "" {
		currency = models.DefaultCurrency
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "payment_service").Logger()

	return &PaymentService{
		catalog:      catalog,
		reservations: reservations,
		payments:     payments,
		gateway:      gateway,
		notifier:     deps.Notifier,
		eventBus:     deps.EventBus,
		tasks:        deps.Tasks,
		checkouts:    deps.Checkouts,
		currency:     currency,
		now:          time.Now,
		newRef:       func() string { return uuid.NewString() },
		logger:       &l,
	}
}

// payableReservation checks existence, ownership and the pending state.
func (s *PaymentService) payableReservation(ctx context.Context, identity models.Identity, reservationID int64) (*models.Reservation, *models.Resource, error) {
	r, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, nil, err
	}
	if r.UserID != identity.UserID {
		return nil, nil, domain.ErrForbidden.WithMessage("reservation %d belongs to another user", reservationID)
	}
	if r.State != models.ReservationPending {
		return nil, nil, domain.ErrNotPayable.WithMessage("reservation %d is %s", reservationID, r.State)
	}
	res, err := s.catalog.GetResource(ctx, r.ResourceID)
	if err != nil {
		return nil, nil, err
	}
	return r, res, nil
}

func expectedAmount(r *models.Reservation, res *models.Resource) int64 {
	return res.RateMinor() * r.DurationHours()
}

// ProcessPayment charges synchronously. A declined or failed charge is a
// result, not an error: the payment becomes failed and the reservation
// stays payable.
func (s *PaymentService) ProcessPayment(ctx context.Context, identity models.Identity, reservationID int64, req models.PaymentRequest) (*models.PaymentResult, error) {
	r, res, err := s.payableReservation(ctx, identity, reservationID)
	if err != nil {
		return nil, err
	}

	expected := expectedAmount(r, res)
	amount := models.ToMinorUnits(req.Amount)
	currency := s.currency
	if req.Currency != "" {
		currency = strings.ToUpper(req.Currency)
	}
	if amount < expected {
		metrics.IncPayment(flowDirect, "insufficient_amount")
		return nil, domain.ErrInsufficientAmount.WithMessage("amount %s is lower than the price %s",
			models.FormatMinor(amount, currency), models.FormatMinor(expected, currency))
	}

	p := &models.Payment{
		UserID:          identity.UserID,
		ReservationID:   r.ID,
		Amount:          amount,
		Currency:        currency,
		State:           models.PaymentPending,
		PaymentMethodID: s.resolveMethod(ctx, req.Method),
	}
	if err := s.payments.ClaimPayment(ctx, p); err != nil {
		if domain.KindOf(err) != "" {
			metrics.IncPayment(flowDirect, "not_payable")
			return nil, err
		}
		return nil, fmt.Errorf("create payment: %w", err)
	}

	meta := models.Metadata{}
	meta.SetInt64(models.MetaReservationID, r.ID)
	meta.SetInt64(models.MetaUserID, identity.UserID)
	meta.SetInt64(models.MetaPaymentID, p.ID)

	charge, err := s.gateway.Charge(ctx, domain.ChargeRequest{Amount: amount, Currency: currency, Method: req.Method, Metadata: meta})
	if err != nil {
		if errors.Is(err, domain.ErrGatewayConfig) {
			s.logger.Error().Err(err).Int64("payment_id", p.ID).Msg("gateway rejected configuration")
			if _, cerr := s.payments.UpdatePaymentState(ctx, p.ID, models.PaymentFailed); cerr != nil {
				s.logger.Error().Err(cerr).Int64("payment_id", p.ID).Msg("mark payment failed")
			}
			return nil, err
		}
		s.logger.Warn().Err(err).Int64("payment_id", p.ID).Msg("gateway charge error, recording failed attempt")
		charge = &domain.ChargeResult{
			GatewayRef: "error_" + s.newRef(),
			Success:    false,
			Details:    map[string]any{"error": err.Error()},
		}
	}

	details := map[string]any{"method": req.Method, "flow": flowDirect}
	for k, v := range charge.Details {
		details[k] = v
	}
	tx, err := s.recordTransaction(ctx, p.ID, charge.GatewayRef, charge.Success, details)
	if err != nil {
		if !charge.Success {
			// Release the claim so the reservation stays payable.
			if _, cerr := s.payments.UpdatePaymentState(ctx, p.ID, models.PaymentFailed); cerr != nil {
				s.logger.Error().Err(cerr).Int64("payment_id", p.ID).Msg("mark payment failed")
			}
		}
		return nil, err
	}

	out, err := s.applyOutcome(ctx, p, r, res, charge.Success, charge.GatewayRef, flowDirect)
	if err != nil {
		return nil, err
	}

	return &models.PaymentResult{
		OK:             charge.Success && out.won,
		PaymentID:      p.ID,
		TransactionID:  tx.ID,
		GatewayRef:     charge.GatewayRef,
		RefundRequired: out.refund,
	}, nil
}

// resolveMethod looks up a method by numeric id, then by type or name.
// Anything unresolved is recorded as no method.
func (s *PaymentService) resolveMethod(ctx context.Context, method string) *int64 {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil
	}

	if id, err := strconv.ParseInt(method, 10, 64); err == nil {
		if m, err := s.payments.GetPaymentMethod(ctx, id); err == nil {
			return &m.ID
		}
	}
	m, err := s.payments.FindPaymentMethod(ctx, method)
	if err != nil {
		if !errors.Is(err, domain.ErrMethodNotFound) {
			s.logger.Warn().Err(err).Str("method", method).Msg("payment method lookup failed")
		}
		return nil
	}
	return &m.ID
}

func (s *PaymentService) recordTransaction(ctx context.Context, paymentID int64, ref string, success bool, details map[string]any) (*models.Transaction, error) {
	status := models.TransactionFailed
	if success {
		status = models.TransactionSuccess
	}
	details["outcome"] = status

	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode transaction details: %w", err)
	}
	tx := &models.Transaction{
		PaymentID:  paymentID,
		GatewayRef: ref,
		Status:     status,
		Details:    string(raw),
	}
	inserted, err := s.payments.CreateTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("record transaction: %w", err)
	}
	if !inserted {
		s.logger.Debug().Int64("payment_id", paymentID).Str("gateway_ref", ref).Msg("transaction already recorded")
	}
	return tx, nil
}

// outcome reports what applyOutcome did. won is false when another caller
// made the transition first; the loser applies no effects and p is
// refreshed from the store. refund is set when a confirmed payment found
// its reservation no longer pending.
type outcome struct {
	won    bool
	refund bool
}

// applyOutcome moves the payment out of pending and applies the side
// effects of the winning transition.
func (s *PaymentService) applyOutcome(ctx context.Context, p *models.Payment, r *models.Reservation, res *models.Resource, success bool, ref, flow string) (outcome, error) {
	to := models.PaymentFailed
	if success {
		to = models.PaymentConfirmed
	}

	won, err := s.payments.UpdatePaymentState(ctx, p.ID, to)
	if err != nil {
		return outcome{}, fmt.Errorf("update payment state: %w", err)
	}
	if !won {
		current, err := s.payments.GetPayment(ctx, p.ID)
		if err != nil {
			return outcome{}, err
		}
		*p = *current
		return outcome{}, nil
	}
	p.State = to
	metrics.IncPayment(flow, to)

	log := s.logger.With().Int64("payment_id", p.ID).Int64("reservation_id", r.ID).Str("gateway_ref", ref).Str("flow", flow).Logger()

	if !success {
		log.Info().Msg("payment failed")
		s.publishPayment(events.EventPaymentFailed, p, ref, flow)
		return outcome{won: true}, nil
	}

	log.Info().Int64("amount", p.Amount).Msg("payment confirmed")
	s.publishPayment(events.EventPaymentConfirmed, p, ref, flow)
	s.clearCheckout(ctx, r.ID, "")

	data := models.NotificationData{
		ReservationID: r.ID,
		ResourceName:  res.Name,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		PaymentID:     p.ID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		GatewayRef:    ref,
	}

	paid, err := s.reservations.UpdateReservationState(ctx, r.ID, []string{models.ReservationPending}, models.ReservationPaid)
	if err != nil {
		log.Error().Err(err).Msg("payment confirmed but reservation update failed")
		if s.notifier != nil {
			s.notifier.SendPaymentConfirmation(ctx, p.UserID, data)
		}
		return outcome{won: true}, nil
	}
	if !paid {
		current, err := s.reservations.GetReservation(ctx, r.ID)
		if err == nil {
			r.State = current.State
		}
		log.Error().Str("reservation_state", r.State).Int64("amount", p.Amount).
			Msg("payment confirmed for a reservation that is no longer pending, refund required")
		metrics.IncPayment(flow, "refund_required")
		return outcome{won: true, refund: true}, nil
	}

	r.State = models.ReservationPaid
	s.publishReservation(events.EventReservationPaid, r)
	enqueueSheetSync(ctx, s.tasks, r, s.logger)
	if s.notifier != nil {
		s.notifier.SendReservationConfirmation(ctx, r.UserID, data)
		s.notifier.SendPaymentConfirmation(ctx, p.UserID, data)
	}
	return outcome{won: true}, nil
}

// clearCheckout drops the cached intent of a reservation. With a non-empty
// sessionID only an intent for that session is dropped.
func (s *PaymentService) clearCheckout(ctx context.Context, reservationID int64, sessionID string) {
	if s.checkouts == nil {
		return
	}
	if sessionID != "" {
		cached, err := s.checkouts.GetCheckout(ctx, reservationID)
		if err != nil || cached == nil || cached.SessionID != sessionID {
			return
		}
	}
	if err := s.checkouts.ClearCheckout(ctx, reservationID); err != nil {
		s.logger.Warn().Err(err).Int64("reservation_id", reservationID).Msg("clear checkout cache")
	}
}

// CreateCheckoutIntent opens a hosted checkout session for a pending
// reservation. No local payment exists until the session is reconciled.
func (s *PaymentService) CreateCheckoutIntent(ctx context.Context, identity models.Identity, reservationID int64) (*models.CheckoutIntent, error) {
	r, res, err := s.payableReservation(ctx, identity, reservationID)
	if err != nil {
		return nil, err
	}

	if s.checkouts != nil {
		cached, err := s.checkouts.GetCheckout(ctx, r.ID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("checkout cache read failed")
		} else if cached != nil && cached.UserID == identity.UserID && cached.ExpiresAt.After(s.now()) {
			return cached, nil
		}
	}

	meta := models.Metadata{}
	meta.SetInt64(models.MetaReservationID, r.ID)
	meta.SetInt64(models.MetaUserID, identity.UserID)

	session, err := s.gateway.CreateCheckoutSession(ctx, expectedAmount(r, res), s.currency, meta)
	if err != nil {
		s.logger.Error().Err(err).Int64("reservation_id", r.ID).Msg("checkout session failed")
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, domain.ErrGateway.Wrap(err)
	}

	intent := &models.CheckoutIntent{
		ReservationID: r.ID,
		UserID:        identity.UserID,
		RedirectURL:   session.URL,
		SessionID:     session.ID,
		ExpiresAt:     session.ExpiresAt,
	}
	if s.checkouts != nil {
		if err := s.checkouts.SetCheckout(ctx, intent); err != nil {
			s.logger.Warn().Err(err).Int64("reservation_id", r.ID).Msg("checkout cache write failed")
		}
	}

	s.logger.Info().Int64("reservation_id", r.ID).Str("session_id", session.ID).Msg("checkout session opened")
	return intent, nil
}

// ReconcileCheckoutSession applies the gateway's outcome for a session. It
// may be called any number of times, concurrently, from the redirect and
// from webhooks; the payment is confirmed and notified once.
func (s *PaymentService) ReconcileCheckoutSession(ctx context.Context, sessionRef string) (*models.ReconciliationResult, error) {
	sessionRef = strings.TrimSpace(sessionRef)
	if sessionRef == "" {
		return nil, domain.ErrInvalidInput.WithMessage("session reference is required")
	}

	status, err := s.gateway.RetrieveSession(ctx, sessionRef)
	if err != nil {
		metrics.IncReconciliation("gateway_error")
		s.logger.Error().Err(err).Str("session_id", sessionRef).Msg("retrieve checkout session failed")
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, domain.ErrGateway.Wrap(err)
	}
	if !status.Complete {
		metrics.IncReconciliation("incomplete")
		return &models.ReconciliationResult{OK: false, Handled: false}, nil
	}

	p, err := s.sessionPayment(ctx, sessionRef, status)
	if err != nil {
		return nil, err
	}

	if p.State != models.PaymentPending {
		return s.alreadySettled(ctx, p, sessionRef), nil
	}

	r, err := s.reservations.GetReservation(ctx, p.ReservationID)
	if err != nil {
		return nil, err
	}
	res, err := s.catalog.GetResource(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}

	ref := status.GatewayRef
	if ref == "" {
		ref = sessionRef
	}
	tx, err := s.recordTransaction(ctx, p.ID, ref, status.Paid, map[string]any{"flow": flowCheckout, "session_id": sessionRef})
	if err != nil {
		return nil, err
	}

	out, err := s.applyOutcome(ctx, p, r, res, status.Paid, ref, flowCheckout)
	if err != nil {
		return nil, err
	}
	if !out.won {
		return s.alreadySettled(ctx, p, sessionRef), nil
	}
	if !status.Paid {
		// A settled session cannot be reopened, so a retry needs a new one.
		s.clearCheckout(ctx, r.ID, sessionRef)
	}

	if out.refund {
		metrics.IncReconciliation("refund_required")
	} else {
		metrics.IncReconciliation(p.State)
	}
	return &models.ReconciliationResult{
		OK:             status.Paid,
		Handled:        true,
		RefundRequired: out.refund,
		PaymentID:      p.ID,
		TransactionID:  tx.ID,
	}, nil
}

// alreadySettled answers a repeated reconciliation. The cached intent is
// dropped again in case the first settlement could not clear it.
func (s *PaymentService) alreadySettled(ctx context.Context, p *models.Payment, sessionRef string) *models.ReconciliationResult {
	if p.State == models.PaymentConfirmed {
		s.clearCheckout(ctx, p.ReservationID, "")
		metrics.IncReconciliation("already_confirmed")
		return &models.ReconciliationResult{OK: true, Handled: false, AlreadyConfirmed: true, PaymentID: p.ID}
	}
	s.clearCheckout(ctx, p.ReservationID, sessionRef)
	metrics.IncReconciliation("already_failed")
	return &models.ReconciliationResult{OK: false, Handled: false, PaymentID: p.ID}
}

// sessionPayment finds the local payment for a completed session, creating
// it keyed by the session reference when none exists yet.
func (s *PaymentService) sessionPayment(ctx context.Context, sessionRef string, status *domain.SessionStatus) (*models.Payment, error) {
	if id := status.Metadata.GetInt64(models.MetaPaymentID); id > 0 {
		return s.payments.GetPayment(ctx, id)
	}

	reservationID := status.Metadata.GetInt64(models.MetaReservationID)
	if reservationID <= 0 {
		return nil, domain.ErrInvalidInput.WithMessage("checkout session %s carries no reservation", sessionRef)
	}
	r, err := s.reservations.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	res, err := s.catalog.GetResource(ctx, r.ResourceID)
	if err != nil {
		return nil, err
	}

	userID := status.Metadata.GetInt64(models.MetaUserID)
	if userID == 0 {
		userID = r.UserID
	} else if userID != r.UserID {
		s.logger.Warn().Int64("meta_user_id", userID).Int64("owner_id", r.UserID).Str("session_id", sessionRef).Msg("checkout metadata user differs from reservation owner")
	}

	candidate := &models.Payment{
		UserID:          userID,
		ReservationID:   r.ID,
		Amount:          expectedAmount(r, res),
		Currency:        s.currency,
		State:           models.PaymentPending,
		PaymentMethodID: s.resolveMethod(ctx, models.CardMethodType),
		SessionRef:      sessionRef,
	}
	p, created, err := s.payments.GetOrCreateSessionPayment(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("session payment: %w", err)
	}
	if created {
		s.logger.Info().Int64("payment_id", p.ID).Str("session_id", sessionRef).Msg("payment created from checkout session")
	}
	return p, nil
}

// HandleGatewayEvent verifies a webhook delivery and reconciles completed
// checkout sessions. Other event types are acknowledged untouched.
func (s *PaymentService) HandleGatewayEvent(ctx context.Context, payload []byte, signature string) (*models.ReconciliationResult, error) {
	ev, err := s.gateway.VerifyWebhookSignature(payload, signature)
	if err != nil {
		s.logger.Error().Err(err).Msg("webhook rejected")
		if domain.KindOf(err) != "" {
			return nil, err
		}
		return nil, domain.ErrInvalidSignature.Wrap(err)
	}

	if ev.Type != domain.EventCheckoutCompleted {
		s.logger.Debug().Str("event_id", ev.ID).Str("type", ev.Type).Msg("webhook event ignored")
		return &models.ReconciliationResult{OK: true, Handled: false}, nil
	}
	if ev.SessionID == "" {
		return nil, domain.ErrInvalidInput.WithMessage("event %s has no session id", ev.ID)
	}
	return s.ReconcileCheckoutSession(ctx, ev.SessionID)
}

func (s *PaymentService) ListUserPayments(ctx context.Context, userID int64) ([]*models.PaymentDetail, error) {
	return s.payments.ListUserPayments(ctx, userID)
}

func (s *PaymentService) ListAllPayments(ctx context.Context) ([]*models.PaymentDetail, error) {
	return s.payments.ListPaymentsDetailed(ctx)
}

func (s *PaymentService) publishPayment(eventType string, p *models.Payment, ref, flow string) {
	if s.eventBus == nil {
		return
	}
	payload := events.PaymentEventPayload{
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
		UserID:        p.UserID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		State:         p.State,
		GatewayRef:    ref,
		Flow:          flow,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("payment_id", p.ID).Msg("publish event error")
	}
}

func (s *PaymentService) publishReservation(eventType string, r *models.Reservation) {
	if s.eventBus == nil {
		return
	}
	payload := events.ReservationEventPayload{
		ReservationID: r.ID,
		UserID:        r.UserID,
		ResourceID:    r.ResourceID,
		State:         r.State,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}
