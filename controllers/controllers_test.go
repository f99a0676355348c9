package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"sparkd_server/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", apperrors.Validation("bad input"), http.StatusBadRequest},
		{"not found", apperrors.NotFound("missing"), http.StatusNotFound},
		{"access denied", apperrors.AccessDenied("nope"), http.StatusForbidden},
		{"state conflict", apperrors.StateConflict("cannot accept call", "ended"), http.StatusConflict},
		{"quota exceeded", apperrors.QuotaExceeded("likes", 0, "tomorrow"), http.StatusTooManyRequests},
		{"upstream", apperrors.Upstream("room provider down", errors.New("timeout")), http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestWriteErrorIncludesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, apperrors.QuotaExceeded("superLikes", 0, "tomorrow"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "QUOTA_EXCEEDED", body["kind"])

	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "superLikes", details["feature"])
	assert.Equal(t, "tomorrow", details["resetsAt"])
}

func TestHealthCheckHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheckHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status": "healthy"}`, rec.Body.String())
}
