package routes

import (
	"sparkd_server/controllers"
	"sparkd_server/services"

	"github.com/gorilla/mux"
)

// RegisterChatRoutes sets up routes for chat-related operations under /api/chat
func RegisterChatRoutes(r *mux.Router, chatService *services.ChatService, quotaService *services.QuotaService) {
	controller := controllers.NewChatController(chatService, quotaService)

	chatRouter := r.PathPrefix("/api/chat").Subrouter()

	chatRouter.HandleFunc("/message", controller.HandleSendMessage).Methods("POST")
	chatRouter.HandleFunc("/messages", controller.HandleGetMessages).Methods("GET")
	chatRouter.HandleFunc("/messages/read", controller.HandleMarkMessageRead).Methods("POST")
	chatRouter.HandleFunc("/conversations", controller.HandleGetConversations).Methods("GET")
	chatRouter.HandleFunc("/conversations", controller.HandleEnsureConversation).Methods("POST")
	chatRouter.HandleFunc("/conversations/read", controller.HandleMarkConversationRead).Methods("POST")
	chatRouter.HandleFunc("/conversations/deactivate", controller.HandleDeactivateConversation).Methods("POST")
	chatRouter.HandleFunc("/attachments/upload-url", controller.HandleAttachmentUploadURL).Methods("POST")
	chatRouter.HandleFunc("/attachments/read-url", controller.HandleAttachmentReadURL).Methods("GET")
}
