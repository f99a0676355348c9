package controllers

import (
	"encoding/json"
	"net/http"

	"sparkd_server/models"
	"sparkd_server/services"
)

// SubscriptionController exposes the quota ledger's status and plan
// management.
type SubscriptionController struct {
	QuotaService *services.QuotaService
}

// NewSubscriptionController creates a new SubscriptionController instance
func NewSubscriptionController(quotaService *services.QuotaService) *SubscriptionController {
	return &SubscriptionController{QuotaService: quotaService}
}

// HandleStatus returns today's per-feature limits, usage and remaining
// allowance.
func (sc *SubscriptionController) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}

	sub, err := sc.QuotaService.GetSubscription(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	features := []string{
		models.FeatureVideoCalls, models.FeatureVoiceCalls,
		models.FeatureLikes, models.FeatureSuperLikes, models.FeatureMessages,
	}
	status := make(map[string]interface{}, len(features))
	for _, feature := range features {
		limit, _ := sub.Limit(feature)
		used, _ := sub.Used(feature)
		remaining := limit - used
		if limit == models.UnlimitedSentinel {
			remaining = models.UnlimitedSentinel
		} else if remaining < 0 {
			remaining = 0
		}
		status[feature] = map[string]int{"limit": limit, "used": used, "remaining": remaining}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":        sub.UserID,
		"plan":          sub.Plan,
		"lastResetDate": sub.LastResetDate,
		"resetsAt":      services.ResetHint,
		"features":      status,
	})
}

// HandleChangePlan swaps the user's plan tier, preserving today's usage.
func (sc *SubscriptionController) HandleChangePlan(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID string `json:"userId"`
		Plan   string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	sub, err := sc.QuotaService.ChangePlan(r.Context(), request.UserID, request.Plan)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
