package api

import (
	"encoding/json"
	"net/http"

	"github.com/soaringjerry/valuesreport/internal/services"
)

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	case services.ErrorUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError answers with the service error's status and message; anything
// else becomes an opaque 500 and is logged by the caller.
func writeError(w http.ResponseWriter, err error) bool {
	if se, ok := services.AsServiceError(err); ok {
		writeJSON(w, statusFor(se.Code), map[string]string{"error": se.Message, "code": string(se.Code)})
		return true
	}
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	return false
}
