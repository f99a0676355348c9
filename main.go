package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"sparkd_server/routes"
	"sparkd_server/services"
	"sparkd_server/socket"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func envDuration(name string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(name); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
		log.Printf("⚠️ Invalid %s, using %s", name, fallback)
	}
	return fallback
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	// Initialize DynamoDB client and service
	log.Println("Initializing DynamoDB client...")
	dynamoClient := services.InitializeDynamoDBClient()
	dynamoService := &services.DynamoService{Client: dynamoClient}
	log.Println("DynamoDB client initialized.")

	// External collaborators
	roomProvider := services.NewRoomProviderClient()
	tokenVerifier := services.NewRemoteTokenVerifier()

	// Initialize Services. Presence and the realtime-dependent services
	// get their emitter once the socket server exists.
	quotaService := &services.QuotaService{Dynamo: dynamoService}
	presenceService := services.NewPresenceService(dynamoService, nil)
	notificationService := &services.NotificationService{Dynamo: dynamoService, Presence: presenceService}
	matchService := &services.MatchService{Dynamo: dynamoService, Notifications: notificationService}
	chatService := &services.ChatService{
		Dynamo:            dynamoService,
		Matches:           matchService,
		Notifications:     notificationService,
		Presence:          presenceService,
		DisappearDuration: envDuration("DISAPPEAR_DURATION", services.DefaultDisappearDuration),
	}
	callService := &services.CallService{
		Dynamo:        dynamoService,
		Rooms:         roomProvider,
		Matches:       matchService,
		Notifications: notificationService,
		RingTimeout:   envDuration("CALL_RING_TIMEOUT", services.DefaultRingTimeout),
	}

	// Initialize the Socket.IO server and hand its emitter to the services
	socketServer := socket.NewSocketServer(presenceService, chatService, quotaService, tokenVerifier)
	presenceService.RT = socketServer
	notificationService.RT = socketServer
	chatService.RT = socketServer
	callService.RT = socketServer

	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Fatalf("Socket server failed: %v", err)
		}
	}()
	defer socketServer.Close()

	// Background sweepers: disappearing messages, stale ringing calls,
	// silent connections.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go chatService.RunSweeper(ctx, envDuration("MESSAGE_SWEEP_INTERVAL", time.Minute))
	go callService.RunSweeper(ctx, 10*time.Second)
	go presenceService.RunReaper(ctx, 30*time.Second)

	// Set up the server port
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Using server port: %s\n", port)

	// Initialize the router
	r := mux.NewRouter()

	// Register a welcome route
	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "Welcome to Sparkd")
	}).Methods("GET")

	// Register a health check endpoint
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status": "healthy"}`)
	}).Methods("GET")

	// Real-time channel
	r.Handle("/socket.io/", socketServer)

	// Register routes
	routes.RegisterInteractionRoutes(r, matchService, quotaService)
	routes.RegisterChatRoutes(r, chatService, quotaService)
	routes.RegisterCallRoutes(r, callService, quotaService)
	routes.RegisterNotificationRoutes(r, notificationService)
	routes.RegisterSubscriptionRoutes(r, quotaService)

	// Add CORS middleware
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // Adjust for specific domains if needed
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(r)

	// Start the HTTP server
	log.Printf("Starting server on port %s...\n", port)
	log.Fatal(http.ListenAndServe(":"+port, corsHandler))
}
