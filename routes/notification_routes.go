package routes

import (
	"sparkd_server/controllers"
	"sparkd_server/services"

	"github.com/gorilla/mux"
)

// RegisterNotificationRoutes sets up routes for the durable inbox under /api/notifications
func RegisterNotificationRoutes(r *mux.Router, notificationService *services.NotificationService) {
	controller := controllers.NewNotificationController(notificationService)

	notificationRouter := r.PathPrefix("/api/notifications").Subrouter()

	notificationRouter.HandleFunc("", controller.HandleGetNotifications).Methods("GET")
	notificationRouter.HandleFunc("/read", controller.HandleMarkRead).Methods("POST")
	notificationRouter.HandleFunc("/read-all", controller.HandleMarkAllRead).Methods("POST")
	notificationRouter.HandleFunc("/purge", controller.HandlePurgeRead).Methods("POST")
}
