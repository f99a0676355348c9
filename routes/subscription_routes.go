package routes

import (
	"sparkd_server/controllers"
	"sparkd_server/services"

	"github.com/gorilla/mux"
)

// RegisterSubscriptionRoutes sets up routes for quota/plan operations under /api/subscription
func RegisterSubscriptionRoutes(r *mux.Router, quotaService *services.QuotaService) {
	controller := controllers.NewSubscriptionController(quotaService)

	subscriptionRouter := r.PathPrefix("/api/subscription").Subrouter()

	subscriptionRouter.HandleFunc("/status", controller.HandleStatus).Methods("GET")
	subscriptionRouter.HandleFunc("/plan", controller.HandleChangePlan).Methods("POST")
}
