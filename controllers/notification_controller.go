package controllers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"sparkd_server/services"
)

// NotificationController handles the durable-inbox endpoints.
type NotificationController struct {
	NotificationService *services.NotificationService
}

// NewNotificationController creates a new NotificationController instance
func NewNotificationController(notificationService *services.NotificationService) *NotificationController {
	return &NotificationController{NotificationService: notificationService}
}

// HandleGetNotifications lists the caller's notifications, newest first.
func (nc *NotificationController) HandleGetNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}

	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	notifications, err := nc.NotificationService.GetForUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

// HandleMarkRead flips one notification's read flag (idempotent).
func (nc *NotificationController) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID         string `json:"userId"`
		NotificationID string `json:"notificationId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := nc.NotificationService.MarkRead(r.Context(), request.UserID, request.NotificationID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// HandleMarkAllRead marks every unread notification for the caller.
func (nc *NotificationController) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	marked, err := nc.NotificationService.MarkAllRead(r.Context(), request.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "marked": marked})
}

// HandlePurgeRead deletes read notifications older than the retention
// window (days, default 30).
func (nc *NotificationController) HandlePurgeRead(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID        string `json:"userId"`
		RetentionDays int    `json:"retentionDays"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if request.RetentionDays <= 0 {
		request.RetentionDays = 30
	}

	purged, err := nc.NotificationService.PurgeRead(r.Context(), request.UserID, time.Duration(request.RetentionDays)*24*time.Hour)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "purged": purged})
}
