package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"courtbook/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// httpStatus maps a domain error kind to a response code. Unknown errors
// are internal.
func httpStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindAuthorization:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPayment:
		if errors.Is(err, domain.ErrGateway) || errors.Is(err, domain.ErrGatewayConfig) {
			return http.StatusBadGateway
		}
		return http.StatusPaymentRequired
	case domain.KindAuthentication:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		writeError(w, code, "internal error")
		return
	}
	writeJSON(w, code, map[string]string{
		"error":  publicMessage(err),
		"reason": domain.ReasonOf(err),
	})
}

func grpcStatus(err error) error {
	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindConflict:
		code = codes.FailedPrecondition
	case domain.KindAuthorization:
		code = codes.PermissionDenied
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindAuthentication:
		code = codes.Unauthenticated
	case domain.KindPayment:
		code = codes.Unavailable
	default:
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, publicMessage(err))
}

// publicMessage drops wrapped infrastructure causes from client responses.
func publicMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
