package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"courtbook/internal/domain"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrSlotConflict, http.StatusConflict},
		{fmt.Errorf("create: %w", domain.ErrPastBooking), http.StatusConflict},
		{domain.ErrForbidden, http.StatusForbidden},
		{domain.ErrReservationNotFound, http.StatusNotFound},
		{domain.ErrInsufficientAmount, http.StatusPaymentRequired},
		{domain.ErrGateway.Wrap(errors.New("503")), http.StatusBadGateway},
		{domain.ErrInvalidSignature, http.StatusUnauthorized},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, httpStatus(tt.err), tt.err.Error())
	}
}

func TestWriteDomainErrorHidesCauses(t *testing.T) {
	rec := httptest.NewRecorder()
	writeDomainError(rec, domain.ErrGateway.Wrap(errors.New("sk_live_leak")))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "sk_live_leak")
	assert.Contains(t, rec.Body.String(), `"reason":"gateway_failure"`)

	rec = httptest.NewRecorder()
	writeDomainError(rec, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
}

func TestGRPCStatus(t *testing.T) {
	assert.Equal(t, codes.NotFound, status.Code(grpcStatus(domain.ErrResourceNotFound)))
	assert.Equal(t, codes.InvalidArgument, status.Code(grpcStatus(domain.ErrInvalidInput)))
	assert.Equal(t, codes.FailedPrecondition, status.Code(grpcStatus(domain.ErrSlotConflict)))
	assert.Equal(t, codes.Internal, status.Code(grpcStatus(errors.New("boom"))))
}
