package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/domain"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

type Bookings interface {
	Location() *time.Location
	CreateBooking(ctx context.Context, userID, resourceID int64, start time.Time, durationHours int) (*models.Reservation, error)
	CancelBooking(ctx context.Context, reservationID, requestingUserID int64, isAdmin bool) error
	GetAvailability(ctx context.Context, resourceID int64, date time.Time) ([]models.Slot, error)
	ListUserReservations(ctx context.Context, userID int64) ([]*models.ReservationDetail, error)
	ListAllReservations(ctx context.Context) ([]*models.ReservationDetail, error)
	ListResources(ctx context.Context) ([]*models.Resource, error)
}

type Payments interface {
	ProcessPayment(ctx context.Context, identity models.Identity, reservationID int64, req models.PaymentRequest) (*models.PaymentResult, error)
	CreateCheckoutIntent(ctx context.Context, identity models.Identity, reservationID int64) (*models.CheckoutIntent, error)
	ReconcileCheckoutSession(ctx context.Context, sessionRef string) (*models.ReconciliationResult, error)
	HandleGatewayEvent(ctx context.Context, payload []byte, signature string) (*models.ReconciliationResult, error)
	ListUserPayments(ctx context.Context, userID int64) ([]*models.PaymentDetail, error)
	ListAllPayments(ctx context.Context) ([]*models.PaymentDetail, error)
}

type Users interface {
	Touch(ctx context.Context, identity models.Identity) error
}

type Reports interface {
	WriteReport(ctx context.Context, w io.Writer) error
}

// Services are the collaborators behind the HTTP API. Limits and Reports
// are optional.
type Services struct {
	Bookings Bookings
	Payments Payments
	Users    Users
	Reports  Reports
	Limits   domain.RateLimiter
}

// HTTPServer exposes the booking and payment API.
type HTTPServer struct {
	cfg      config.APIConfig
	svc      Services
	auth     *HTTPAuth
	server   *http.Server
	logger   *zerolog.Logger
	maxBooks int
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "http").Logger()

	s := &HTTPServer{
		cfg:      cfg,
		svc:      svc,
		auth:     NewHTTPAuth(cfg, svc.Users, &l),
		logger:   &l,
		maxBooks: cfg.RateLimit.BookingsPerMinute,
	}

	mux := http.NewServeMux()
	s.public(mux, "GET /healthz", s.handleHealthz)
	s.public(mux, "GET /api/v1/payments/checkout/success", s.handleCheckoutSuccess)
	s.public(mux, "POST /api/v1/payments/webhook", s.handleWebhook)

	s.private(mux, "GET /api/v1/courts", s.handleCourts)
	s.private(mux, "GET /api/v1/courts/{id}/availability", s.handleAvailability)
	s.private(mux, "POST /api/v1/reservations", s.handleCreateReservation)
	s.private(mux, "GET /api/v1/reservations", s.handleListReservations)
	s.private(mux, "DELETE /api/v1/reservations/{id}", s.handleCancelReservation)
	s.private(mux, "POST /api/v1/reservations/{id}/payments", s.handlePay)
	s.private(mux, "POST /api/v1/reservations/{id}/checkout", s.handleCheckout)
	s.private(mux, "GET /api/v1/payments", s.handleListPayments)

	s.private(mux, "GET /api/v1/admin/reservations", adminOnly(s.handleAdminReservations))
	s.private(mux, "GET /api/v1/admin/payments", adminOnly(s.handleAdminPayments))
	s.private(mux, "GET /api/v1/admin/export.xlsx", adminOnly(s.handleAdminExport))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           loggingMiddleware(mux, &l),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) public(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, instrument(pattern, h))
}

func (s *HTTPServer) private(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, instrument(pattern, s.auth.Wrap(h)))
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok || !id.IsAdmin() {
			writeDomainError(w, domain.ErrForbidden)
			return
		}
		next(w, r)
	}
}
