package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"sparkd_server/models"
	"sparkd_server/services"
)

// CallController handles the call lifecycle endpoints.
type CallController struct {
	CallService  *services.CallService
	QuotaService *services.QuotaService
}

// NewCallController creates a new CallController instance
func NewCallController(callService *services.CallService, quotaService *services.QuotaService) *CallController {
	return &CallController{CallService: callService, QuotaService: quotaService}
}

// HandleInitiate starts a call. Video and voice calls pass their own
// quota gate; the counter is incremented only after the call record and
// room exist.
func (cc *CallController) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var request struct {
		InitiatorID string `json:"initiatorId"`
		RecipientID string `json:"recipientId"`
		CallType    string `json:"callType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if request.CallType == "" {
		request.CallType = models.CallTypeVideo
	}

	ctx := r.Context()

	feature := models.FeatureVideoCalls
	if request.CallType == models.CallTypeVoice {
		feature = models.FeatureVoiceCalls
	}

	allowed, err := cc.QuotaService.CheckLimit(ctx, request.InitiatorID, feature)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeError(w, cc.QuotaService.QuotaExceededError(ctx, request.InitiatorID, feature))
		return
	}

	call, err := cc.CallService.Initiate(ctx, request.InitiatorID, request.RecipientID, request.CallType)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := cc.QuotaService.Increment(ctx, request.InitiatorID, feature); err != nil {
		log.Printf("❌ Quota increment after call initiate failed: %v", err)
	}

	writeJSON(w, http.StatusOK, call)
}

// HandleAccept transitions a pending call to active and returns the
// caller's scoped room token.
func (cc *CallController) HandleAccept(w http.ResponseWriter, r *http.Request) {
	var request struct {
		CallID string `json:"callId"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	call, token, err := cc.CallService.Accept(r.Context(), request.CallID, request.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"call": call, "token": token})
}

// HandleDecline rejects a pending call.
func (cc *CallController) HandleDecline(w http.ResponseWriter, r *http.Request) {
	var request struct {
		CallID string `json:"callId"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	call, err := cc.CallService.Decline(r.Context(), request.CallID, request.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// HandleEnd finishes an active call.
func (cc *CallController) HandleEnd(w http.ResponseWriter, r *http.Request) {
	var request struct {
		CallID string `json:"callId"`
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	call, err := cc.CallService.End(r.Context(), request.CallID, request.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// HandleHistory lists the caller's past calls.
func (cc *CallController) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}

	calls, err := cc.CallService.GetCallHistory(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}
