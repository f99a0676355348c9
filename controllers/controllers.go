package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"sparkd_server/apperrors"
)

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("❌ Failed to encode response: %v", err)
	}
}

// writeError maps the stable error kind to an HTTP status and writes the
// error body, including the structured details (remaining quota, current
// state) when present.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		status = http.StatusBadRequest
	case apperrors.KindAccessDenied:
		status = http.StatusForbidden
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindStateConflict:
		status = http.StatusConflict
	case apperrors.KindQuotaExceeded:
		status = http.StatusTooManyRequests
	case apperrors.KindUpstreamFailure:
		status = http.StatusBadGateway
	}

	body := map[string]interface{}{
		"error": err.Error(),
		"kind":  string(apperrors.KindOf(err)),
	}
	if details := apperrors.DetailsOf(err); details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

// HealthCheckHandler reports service liveness.
func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
