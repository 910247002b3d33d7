package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
)

// StripeGateway talks to Stripe through a per-instance API client.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	ttl           time.Duration
	logger        *zerolog.Logger
	now           func() time.Time
}

// NewStripeGateway builds the adapter. backend overrides the API endpoint
// and may be nil.
func NewStripeGateway(cfg config.StripeConfig, baseURL string, ttl time.Duration, backend stripe.Backend, logger *zerolog.Logger) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, domain.ErrGatewayConfig.WithMessage("stripe api key is not configured")
	}

	l := componentLogger(logger, "stripe")
	if backend == nil {
		backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			LeveledLogger: zerologAdapter{logger: l},
		})
	}

	api := &client.API{}
	api.Init(cfg.APIKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	cancelURL := cfg.CancelURL
	if cancelURL == "" {
		cancelURL = strings.TrimRight(baseURL, "/") + "/"
	}

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    successURL(cfg.SuccessURL, baseURL),
		cancelURL:     cancelURL,
		ttl:           expiry(ttl),
		logger:        l,
		now:           time.Now,
	}, nil
}

// Charge creates and confirms a PaymentIntent. Card declines are reported
// as an unsuccessful result, everything else as an error.
func (g *StripeGateway) Charge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	if !strings.HasPrefix(req.Method, "pm_") {
		return nil, fmt.Errorf("stripe charge needs a payment method id, got %q", req.Method)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(req.Method),
		PaymentMethodTypes: stripe.StringSlice([]string{models.CardMethodType}),
		Confirm:            stripe.Bool(true),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
			ref := se.RequestID
			if se.PaymentIntent != nil && se.PaymentIntent.ID != "" {
				ref = se.PaymentIntent.ID
			}
			g.logger.Info().Str("code", string(se.Code)).Str("gateway_ref", ref).Msg("card declined")
			return &domain.ChargeResult{
				GatewayRef: ref,
				Success:    false,
				Details:    map[string]any{"code": string(se.Code), "decline_code": string(se.DeclineCode), "message": se.Msg},
			}, nil
		}
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	return &domain.ChargeResult{
		GatewayRef: pi.ID,
		Success:    pi.Status == stripe.PaymentIntentStatusSucceeded,
		Details:    map[string]any{"status": string(pi.Status)},
	}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, amountMinor int64, currency string, metadata models.Metadata) (*domain.CheckoutSession, error) {
	expiresAt := g.now().Add(g.ttl)

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(g.successURL),
		CancelURL:  stripe.String(g.cancelURL),
		ExpiresAt:  stripe.Int64(expiresAt.Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(currency)),
					UnitAmount: stripe.Int64(amountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Court reservation #" + metadata.GetString(models.MetaReservationID)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	out := &domain.CheckoutSession{ID: sess.ID, URL: sess.URL, ExpiresAt: expiresAt.UTC().Truncate(time.Second)}
	if sess.ExpiresAt > 0 {
		out.ExpiresAt = time.Unix(sess.ExpiresAt, 0).UTC()
	}
	return out, nil
}

// RetrieveSession reads the session with its PaymentIntent expanded.
func (g *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*domain.SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	sess, err := g.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve session %s: %w", sessionID, err)
	}

	status := &domain.SessionStatus{
		ID:         sess.ID,
		GatewayRef: sess.ID,
		Complete:   sess.Status == stripe.CheckoutSessionStatusComplete,
		Paid:       sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:   models.Metadata(sess.Metadata),
	}
	if pi := sess.PaymentIntent; pi != nil && pi.ID != "" {
		status.GatewayRef = pi.ID
		if pi.Status != "" {
			status.Paid = pi.Status == stripe.PaymentIntentStatusSucceeded
		}
	}
	return status, nil
}

func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error) {
	return parseEvent(payload, signature, g.webhookSecret)
}
