package routes

import (
	"sparkd_server/controllers"
	"sparkd_server/services"

	"github.com/gorilla/mux"
)

// RegisterCallRoutes sets up routes for call lifecycle operations under /api/calls
func RegisterCallRoutes(r *mux.Router, callService *services.CallService, quotaService *services.QuotaService) {
	controller := controllers.NewCallController(callService, quotaService)

	callRouter := r.PathPrefix("/api/calls").Subrouter()

	callRouter.HandleFunc("/initiate", controller.HandleInitiate).Methods("POST")
	callRouter.HandleFunc("/accept", controller.HandleAccept).Methods("POST")
	callRouter.HandleFunc("/decline", controller.HandleDecline).Methods("POST")
	callRouter.HandleFunc("/end", controller.HandleEnd).Methods("POST")
	callRouter.HandleFunc("/history", controller.HandleHistory).Methods("GET")
}
