package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/models"
)

const (
	dateLayout      = "2006-01-02"
	localTimeLayout = "2006-01-02T15:04"
	maxWebhookBody  = 64 << 10
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type createReservationRequest struct {
	CourtID int64  `json:"court_id"`
	Start   string `json:"start"`
	Hours   int    `json:"hours"`
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleCourts(w http.ResponseWriter, r *http.Request) {
	courts, err := s.svc.Bookings.ListResources(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courts": courts})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeDomainError(w, domain.ErrInvalidInput.WithMessage("date is required"))
		return
	}
	date, err := time.ParseInLocation(dateLayout, dateStr, s.svc.Bookings.Location())
	if err != nil {
		writeDomainError(w, domain.ErrInvalidInput.WithMessage("invalid date format; expected YYYY-MM-DD"))
		return
	}

	slots, err := s.svc.Bookings.GetAvailability(r.Context(), id, date)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"court_id": id, "date": dateStr, "slots": slots})
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())

	var body createReservationRequest
	if err := decodeJSON(r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	start, err := s.parseStart(body.Start)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !s.allowBooking(r, identity.UserID) {
		writeError(w, http.StatusTooManyRequests, "too many booking attempts")
		return
	}

	res, err := s.svc.Bookings.CreateBooking(r.Context(), identity.UserID, body.CourtID, start, body.Hours)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// parseStart accepts RFC 3339 or a wall-clock time in the booking zone.
func (s *HTTPServer) parseStart(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, domain.ErrInvalidInput.WithMessage("start is required")
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(localTimeLayout, raw, s.svc.Bookings.Location())
	if err != nil {
		return time.Time{}, domain.ErrInvalidInput.WithMessage("invalid start %q", raw)
	}
	return t, nil
}

func (s *HTTPServer) allowBooking(r *http.Request, userID int64) bool {
	if s.svc.Limits == nil || s.maxBooks <= 0 {
		return true
	}
	ok, err := s.svc.Limits.CheckRateLimit(r.Context(), fmt.Sprintf("bookings:%d", userID), s.maxBooks, time.Minute)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("booking limit check failed")
		return true
	}
	return ok
}

func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	list, err := s.svc.Bookings.ListUserReservations(r.Context(), identity.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	if err := s.svc.Bookings.CancelBooking(r.Context(), id, identity.UserID, identity.IsAdmin()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handlePay(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req models.PaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	identity, _ := IdentityFromContext(r.Context())
	res, err := s.svc.Payments.ProcessPayment(r.Context(), identity, id, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleCheckout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	intent, err := s.svc.Payments.CreateCheckoutIntent(r.Context(), identity, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, intent)
}

func (s *HTTPServer) handleListPayments(w http.ResponseWriter, r *http.Request) {
	identity, _ := IdentityFromContext(r.Context())
	list, err := s.svc.Payments.ListUserPayments(r.Context(), identity.UserID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (s *HTTPServer) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Payments.ReconcileCheckoutSession(r.Context(), r.URL.Query().Get("session_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}
	res, err := s.svc.Payments.HandleGatewayEvent(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleAdminReservations(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Bookings.ListAllReservations(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

func (s *HTTPServer) handleAdminPayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.Payments.ListAllPayments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"payments": list})
}

func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Reports == nil {
		writeError(w, http.StatusNotFound, "export is not configured")
		return
	}
	var buf bytes.Buffer
	if err := s.svc.Reports.WriteReport(r.Context(), &buf); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="courtbook_report.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// fail writes err and logs anything that is not a domain error.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	if domain.KindOf(err) == "" {
		s.logger.Error().Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeDomainError(w, err)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeDomainError(w, domain.ErrInvalidInput.WithMessage("invalid id %q", r.PathValue("id")))
		return 0, false
	}
	return id, true
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.ErrInvalidInput.WithMessage("invalid JSON body")
	}
	return nil
}
