package controllers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"sparkd_server/models"
	"sparkd_server/services"
)

// ChatController handles the conversation/message endpoints.
type ChatController struct {
	ChatService  *services.ChatService
	QuotaService *services.QuotaService
}

// NewChatController initializes the chat controller
func NewChatController(chatService *services.ChatService, quotaService *services.QuotaService) *ChatController {
	return &ChatController{ChatService: chatService, QuotaService: quotaService}
}

// HandleSendMessage - gated send: quota check, pipeline, then increment.
func (c *ChatController) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var request struct {
		SenderID       string `json:"senderId"`
		ConversationID string `json:"conversationId"`
		Content        string `json:"content"`
		FileKey        string `json:"fileKey"`
		Type           string `json:"type"`
		Disappearing   bool   `json:"disappearing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	allowed, err := c.QuotaService.CheckLimit(ctx, request.SenderID, models.FeatureMessages)
	if err != nil {
		writeError(w, err)
		return
	}
	if !allowed {
		writeError(w, c.QuotaService.QuotaExceededError(ctx, request.SenderID, models.FeatureMessages))
		return
	}

	message, err := c.ChatService.SendMessage(ctx, request.SenderID, request.ConversationID, request.Content, request.FileKey, request.Type, request.Disappearing)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := c.QuotaService.Increment(ctx, request.SenderID, models.FeatureMessages); err != nil {
		log.Printf("❌ Quota increment after message failed: %v", err)
	}

	writeJSON(w, http.StatusOK, message)
}

// HandleEnsureConversation finds or lazily creates the pair's conversation.
func (c *ChatController) HandleEnsureConversation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		UserID  string `json:"userId"`
		OtherID string `json:"otherId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	convo, err := c.ChatService.EnsureConversation(r.Context(), request.UserID, request.OtherID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convo)
}

// HandleGetMessages - fetch messages for a conversation, newest first.
func (c *ChatController) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	userID := r.URL.Query().Get("userId")
	limitStr := r.URL.Query().Get("limit")

	if conversationID == "" || userID == "" {
		http.Error(w, `{"error": "conversationId and userId are required"}`, http.StatusBadRequest)
		return
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = 50
	}

	messages, err := c.ChatService.GetMessages(r.Context(), conversationID, userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// HandleGetConversations lists the caller's conversations.
func (c *ChatController) HandleGetConversations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, `{"error": "userId is required"}`, http.StatusBadRequest)
		return
	}

	conversations, err := c.ChatService.GetConversationsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// HandleMarkMessageRead - recipient-only, idempotent.
func (c *ChatController) HandleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ConversationID string `json:"conversationId"`
		MessageID      string `json:"messageId"`
		ReaderID       string `json:"readerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := c.ChatService.MarkMessageRead(r.Context(), request.ConversationID, request.MessageID, request.ReaderID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// HandleMarkConversationRead marks every unread message not authored by
// the caller.
func (c *ChatController) HandleMarkConversationRead(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ConversationID string `json:"conversationId"`
		ReaderID       string `json:"readerId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	marked, err := c.ChatService.MarkConversationRead(r.Context(), request.ConversationID, request.ReaderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "marked": marked})
}

// HandleDeactivateConversation flips the conversation's active flag.
func (c *ChatController) HandleDeactivateConversation(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ConversationID string `json:"conversationId"`
		UserID         string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	if err := c.ChatService.DeactivateConversation(r.Context(), request.ConversationID, request.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// HandleAttachmentUploadURL returns a presigned upload URL for a chat
// attachment; the returned key goes into the message's fileKey.
func (c *ChatController) HandleAttachmentUploadURL(w http.ResponseWriter, r *http.Request) {
	var request struct {
		FileName string `json:"fileName"`
		FileType string `json:"fileType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.FileName == "" {
		http.Error(w, `{"error": "fileName and fileType are required"}`, http.StatusBadRequest)
		return
	}

	url, key, err := services.GenerateAttachmentUploadURL(request.FileName, request.FileType)
	if err != nil {
		log.Printf("❌ Failed to presign attachment upload: %v", err)
		http.Error(w, `{"error": "Failed to generate upload URL"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"uploadUrl": url, "fileKey": key})
}

// HandleAttachmentReadURL returns a presigned read URL for a file key.
func (c *ChatController) HandleAttachmentReadURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("fileKey")
	if key == "" {
		http.Error(w, `{"error": "fileKey is required"}`, http.StatusBadRequest)
		return
	}

	url, err := services.GenerateAttachmentReadURL(key)
	if err != nil {
		log.Printf("❌ Failed to presign attachment read: %v", err)
		http.Error(w, `{"error": "Failed to generate read URL"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"readUrl": url})
}
