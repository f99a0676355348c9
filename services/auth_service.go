package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"sparkd_server/apperrors"
)

// TokenVerifier binds a connect-time token to a user identity. Signing
// and verification live in an external service; this side only asks.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// RemoteTokenVerifier calls the external verification endpoint.
type RemoteTokenVerifier struct {
	VerifyURL  string
	HTTPClient *http.Client
}

// NewRemoteTokenVerifier builds a verifier from AUTH_VERIFY_URL.
func NewRemoteTokenVerifier() *RemoteTokenVerifier {
	return &RemoteTokenVerifier{
		VerifyURL:  os.Getenv("AUTH_VERIFY_URL"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}
}

// Verify exchanges a token for the user id it was issued to.
func (tv *RemoteTokenVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", apperrors.AccessDenied("missing token")
	}

	var reqBody bytes.Buffer
	if err := json.NewEncoder(&reqBody).Encode(map[string]string{"token": token}); err != nil {
		return "", fmt.Errorf("failed to encode verify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tv.VerifyURL, &reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tv.HTTPClient.Do(req)
	if err != nil {
		return "", apperrors.Upstream("token verification service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", apperrors.AccessDenied("token rejected")
	}
	if resp.StatusCode != http.StatusOK {
		return "", apperrors.Upstream(fmt.Sprintf("token verification returned %d", resp.StatusCode), nil)
	}

	var body struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.UserID == "" {
		return "", apperrors.Upstream("token verification sent an unreadable response", err)
	}
	return body.UserID, nil
}
