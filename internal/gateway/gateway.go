// Package gateway adapts payment providers to domain.PaymentGateway.
package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/logging"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

const successPath = "/api/v1/payments/checkout/success"

// New returns the configured provider.
func New(cfg config.PaymentsConfig, baseURL string, logger *zerolog.Logger) (domain.PaymentGateway, error) {
	switch cfg.Provider {
	case "", "sandbox":
		return NewSandboxGateway(cfg.Sandbox, baseURL, logger), nil
	case "stripe":
		return NewStripeGateway(cfg.Stripe, baseURL, cfg.CheckoutTTL, nil, logger)
	default:
		return nil, domain.ErrGatewayConfig.WithMessage("unsupported payments provider %q", cfg.Provider)
	}
}

// successURL is where the provider redirects once checkout completes.
func successURL(configured, baseURL string) string {
	if configured != "" {
		return configured
	}
	return strings.TrimRight(baseURL, "/") + successPath + "?session_id={CHECKOUT_SESSION_ID}"
}

// parseEvent verifies a Stripe-Signature header over payload. Both providers
// use the same signing scheme.
func parseEvent(payload []byte, signature, secret string) (*domain.GatewayEvent, error) {
	if secret == "" {
		return nil, domain.ErrGatewayConfig.WithMessage("webhook secret is not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, domain.ErrInvalidSignature.Wrap(err)
	}

	out := &domain.GatewayEvent{ID: event.ID, Type: string(event.Type)}
	if event.Type == stripe.EventType(domain.EventCheckoutCompleted) && event.Data != nil {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, domain.ErrInvalidInput.WithMessage("malformed checkout session event").Wrap(err)
		}
		out.SessionID = sess.ID
	}
	return out, nil
}

// zerologAdapter routes stripe-go client logs into zerolog.
type zerologAdapter struct {
	logger *zerolog.Logger
}

func (a zerologAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug().Msg(fmt.Sprintf(format, v...))
}

func (a zerologAdapter) Infof(format string, v ...interface{}) {
	a.logger.Debug().Msg(fmt.Sprintf(format, v...))
}

func (a zerologAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn().Msg(fmt.Sprintf(format, v...))
}

func (a zerologAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error().Msg(fmt.Sprintf(format, v...))
}

func componentLogger(logger *zerolog.Logger, provider string) *zerolog.Logger {
	l := logging.Component(logger, "gateway").With().Str("provider", provider).Logger()
	return &l
}

func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 30 * time.Minute
	}
	return ttl
}
