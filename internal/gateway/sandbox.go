package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SandboxGateway settles payments locally. Unless AlwaysSucceed is set, a
// charge succeeds when the last hex digit of its reference is even.
type SandboxGateway struct {
	cfg        config.SandboxConfig
	successURL string
	ttl        time.Duration
	logger     *zerolog.Logger
	now        func() time.Time
	newRef     func() string

	mu       sync.Mutex
	sessions map[string]*sandboxSession
}

type sandboxSession struct {
	metadata   models.Metadata
	gatewayRef string
	paid       bool
}

func NewSandboxGateway(cfg config.SandboxConfig, baseURL string, logger *zerolog.Logger) *SandboxGateway {
	return &SandboxGateway{
		cfg:        cfg,
		successURL: successURL("", baseURL),
		ttl:        expiry(0),
		logger:     componentLogger(logger, "sandbox"),
		now:        time.Now,
		newRef:     func() string { return uuid.NewString() },
		sessions:   make(map[string]*sandboxSession),
	}
}

func (g *SandboxGateway) succeeds(ref string) bool {
	if g.cfg.AlwaysSucceed {
		return true
	}
	if ref == "" {
		return false
	}
	last := ref[len(ref)-1]
	switch {
	case last >= '0' && last <= '9':
		return (last-'0')%2 == 0
	case last >= 'a' && last <= 'f':
		return (last-'a'+10)%2 == 0
	default:
		return false
	}
}

func (g *SandboxGateway) Charge(_ context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	ref := "sandbox_" + g.newRef()
	ok := g.succeeds(ref)
	g.logger.Info().Str("gateway_ref", ref).Int64("amount", req.Amount).Bool("success", ok).Msg("sandbox charge")
	return &domain.ChargeResult{
		GatewayRef: ref,
		Success:    ok,
		Details:    map[string]any{"sandbox": true, "amount": req.Amount, "currency": req.Currency},
	}, nil
}

func (g *SandboxGateway) CreateCheckoutSession(_ context.Context, amountMinor int64, currency string, metadata models.Metadata) (*domain.CheckoutSession, error) {
	id := "cs_sandbox_" + strings.ReplaceAll(g.newRef(), "-", "")
	ref := "sandbox_" + g.newRef()
	expiresAt := g.now().Add(g.ttl).UTC().Truncate(time.Second)

	md := make(models.Metadata, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}

	g.mu.Lock()
	g.sessions[id] = &sandboxSession{
		metadata:   md,
		gatewayRef: ref,
		paid:       g.succeeds(ref),
	}
	g.mu.Unlock()

	g.logger.Info().Str("session_id", id).Int64("amount", amountMinor).Str("currency", currency).Msg("sandbox checkout session opened")

	return &domain.CheckoutSession{
		ID:        id,
		URL:       strings.Replace(g.successURL, "{CHECKOUT_SESSION_ID}", id, 1),
		ExpiresAt: expiresAt,
	}, nil
}

// RetrieveSession reports sandbox sessions as complete once created.
func (g *SandboxGateway) RetrieveSession(_ context.Context, sessionID string) (*domain.SessionStatus, error) {
	g.mu.Lock()
	sess, ok := g.sessions[sessionID]
	g.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sandbox session %s not found", sessionID)
	}

	md := make(models.Metadata, len(sess.metadata))
	for k, v := range sess.metadata {
		md[k] = v
	}
	return &domain.SessionStatus{
		ID:         sessionID,
		GatewayRef: sess.gatewayRef,
		Complete:   true,
		Paid:       sess.paid,
		Metadata:   md,
	}, nil
}

func (g *SandboxGateway) VerifyWebhookSignature(payload []byte, signature string) (*domain.GatewayEvent, error) {
	return parseEvent(payload, signature, g.cfg.WebhookSecret)
}
