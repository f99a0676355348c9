package routes

import (
	"sparkd_server/controllers"
	"sparkd_server/services"

	"github.com/gorilla/mux"
)

// RegisterInteractionRoutes sets up routes for swipe operations under /api/interactions
func RegisterInteractionRoutes(r *mux.Router, matchService *services.MatchService, quotaService *services.QuotaService) {
	controller := controllers.NewInteractionController(matchService, quotaService)

	interactionRouter := r.PathPrefix("/api/interactions").Subrouter()

	interactionRouter.HandleFunc("/swipe", controller.HandleSwipe).Methods("POST")
	interactionRouter.HandleFunc("/undo", controller.HandleUndo).Methods("POST")
	interactionRouter.HandleFunc("/matches", controller.HandleGetMatches).Methods("GET")
}
