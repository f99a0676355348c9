package controllers

import (
	"encoding/json"
	"log"
	"net/http"

	"sparkd_server/models"
	"sparkd_server/services"
)

// InteractionController handles the gated swipe actions.
type InteractionController struct {
	MatchService *services.MatchService
	QuotaService *services.QuotaService
}

// NewInteractionController creates a new InteractionController instance
func NewInteractionController(matchService *services.MatchService, quotaService *services.QuotaService) *InteractionController {
	return &InteractionController{MatchService: matchService, QuotaService: quotaService}
}

// HandleSwipe processes like / super_like / pass actions. Likes and
// super-likes pass the quota gate first; the counter is only incremented
// once the swipe has been recorded.
func (ic *InteractionController) HandleSwipe(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ActorID  string `json:"actorId"`
		TargetID string `json:"targetId"`
		Action   string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	feature := ""
	switch request.Action {
	case models.ActionLike:
		feature = models.FeatureLikes
	case models.ActionSuperLike:
		feature = models.FeatureSuperLikes
	}

	if feature != "" {
		allowed, err := ic.QuotaService.CheckLimit(ctx, request.ActorID, feature)
		if err != nil {
			writeError(w, err)
			return
		}
		if !allowed {
			writeError(w, ic.QuotaService.QuotaExceededError(ctx, request.ActorID, feature))
			return
		}
	}

	match, err := ic.MatchService.Swipe(ctx, request.ActorID, request.TargetID, request.Action)
	if err != nil {
		writeError(w, err)
		return
	}

	if feature != "" {
		if err := ic.QuotaService.Increment(ctx, request.ActorID, feature); err != nil {
			log.Printf("❌ Quota increment after swipe failed: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, match)
}

// HandleUndo reverts the caller's last swipe within the grace window.
func (ic *InteractionController) HandleUndo(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ActorID  string `json:"actorId"`
		TargetID string `json:"targetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	match, err := ic.MatchService.Undo(r.Context(), request.ActorID, request.TargetID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleGetMatches lists the caller's current matches.
func (ic *InteractionController) HandleGetMatches(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}

	matches, err := ic.MatchService.GetMatchesForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}
