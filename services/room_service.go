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

// RoomProvider is the external video-room infrastructure: one room per
// call, torn down when the call reaches a terminal state, with
// per-user access tokens scoped to a call.
type RoomProvider interface {
	CreateRoom(ctx context.Context, callID string, participantIDs []string) (string, error)
	DeleteRoom(ctx context.Context, callID string) error
	IssueToken(ctx context.Context, callID, userID string) (string, error)
}

// RoomProviderClient talks to the room provider's REST API.
type RoomProviderClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewRoomProviderClient builds a client from ROOM_API_URL / ROOM_API_KEY.
func NewRoomProviderClient() *RoomProviderClient {
	return &RoomProviderClient{
		BaseURL:    os.Getenv("ROOM_API_URL"),
		APIKey:     os.Getenv("ROOM_API_KEY"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (rc *RoomProviderClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&reqBody).Encode(body); err != nil {
			return fmt.Errorf("failed to encode room request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, rc.BaseURL+path, &reqBody)
	if err != nil {
		return fmt.Errorf("failed to build room request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+rc.APIKey)

	resp, err := rc.HTTPClient.Do(req)
	if err != nil {
		return apperrors.Upstream("room provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperrors.Upstream(fmt.Sprintf("room provider returned %d for %s %s", resp.StatusCode, method, path), nil)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return apperrors.Upstream("room provider sent an unreadable response", err)
		}
	}
	return nil
}

// CreateRoom provisions a room named after the call id.
func (rc *RoomProviderClient) CreateRoom(ctx context.Context, callID string, participantIDs []string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	err := rc.do(ctx, http.MethodPost, "/rooms", map[string]interface{}{
		"name":         callID,
		"participants": participantIDs,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// DeleteRoom tears the room down.
func (rc *RoomProviderClient) DeleteRoom(ctx context.Context, callID string) error {
	return rc.do(ctx, http.MethodDelete, "/rooms/"+callID, nil, nil)
}

// IssueToken returns an access token scoped to one call and one user.
func (rc *RoomProviderClient) IssueToken(ctx context.Context, callID, userID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := rc.do(ctx, http.MethodPost, "/meeting-tokens", map[string]interface{}{
		"room":   callID,
		"userId": userID,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}
