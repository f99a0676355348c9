package socket

import (
	"context"
	"log"
	"strings"

	"sparkd_server/apperrors"
	"sparkd_server/models"
	"sparkd_server/services"

	socketio "github.com/googollee/go-socket.io"
)

// NewSocketServer initializes the Socket.IO server: identity is bound once
// at connect time from the token query parameter, presence follows the
// connection lifecycle, and domain errors surface as typed error events on
// the same connection instead of closing it.
func NewSocketServer(
	presence *services.PresenceService,
	chat *services.ChatService,
	quota *services.QuotaService,
	verifier services.TokenVerifier,
) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(c socketio.Conn) error {
		u := c.URL()
		token := u.Query().Get("token")
		userID, err := verifier.Verify(context.Background(), token)
		if err != nil {
			log.Printf("❌ Socket auth failed for %s: %v", c.ID(), err)
			return err // refuse the connection
		}

		c.SetContext(userID)
		c.Join(services.UserRoom(userID))
		presence.Connect(context.Background(), userID, c.ID())
		log.Printf("✅ Socket connected: %s (user %s)", c.ID(), userID)
		return nil
	})

	server.OnEvent("/", "heartbeat", func(c socketio.Conn) {
		presence.Heartbeat(c.ID())
	})

	// Clients join the advisory rooms they want live events from.
	server.OnEvent("/", "join", func(c socketio.Conn, data map[string]string) {
		room := data["room"]
		if !validRoom(room) {
			emitError(c, apperrors.Validation("invalid room: "+room))
			return
		}
		c.Join(room)
	})

	server.OnEvent("/", "leave", func(c socketio.Conn, data map[string]string) {
		if room := data["room"]; validRoom(room) {
			c.Leave(room)
		}
	})

	server.OnEvent("/", "typing-start", func(c socketio.Conn, data map[string]string) {
		relayTyping(server, c, data, models.EventTypingStart)
	})

	server.OnEvent("/", "typing-stop", func(c socketio.Conn, data map[string]string) {
		relayTyping(server, c, data, models.EventTypingStop)
	})

	// sendMessage runs the same gated pipeline as the REST path:
	// quota check, domain action, then increment on confirmed success.
	server.OnEvent("/", "sendMessage", func(c socketio.Conn, data map[string]interface{}) {
		userID, ok := c.Context().(string)
		if !ok {
			emitError(c, apperrors.AccessDenied("connection has no identity"))
			return
		}
		ctx := context.Background()

		allowed, err := quota.CheckLimit(ctx, userID, models.FeatureMessages)
		if err != nil {
			emitError(c, err)
			return
		}
		if !allowed {
			emitError(c, quota.QuotaExceededError(ctx, userID, models.FeatureMessages))
			return
		}

		conversationID, _ := data["conversationId"].(string)
		content, _ := data["content"].(string)
		fileKey, _ := data["fileKey"].(string)
		msgType, _ := data["type"].(string)
		disappearing, _ := data["disappearing"].(bool)

		message, err := chat.SendMessage(ctx, userID, conversationID, content, fileKey, msgType, disappearing)
		if err != nil {
			emitError(c, err)
			return
		}

		if err := quota.Increment(ctx, userID, models.FeatureMessages); err != nil {
			log.Printf("❌ Quota increment after socket message failed: %v", err)
		}
		c.Emit("message-sent", message)
	})

	server.OnError("/", func(c socketio.Conn, e error) {
		log.Printf("❌ Socket error on %s: %v", connID(c), e)
	})

	server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		presence.Disconnect(context.Background(), c.ID())
		log.Printf("👋 Socket disconnected: %s (%s)", c.ID(), reason)
	})

	return server
}

func relayTyping(server *socketio.Server, c socketio.Conn, data map[string]string, event string) {
	conversationID := data["conversationId"]
	if conversationID == "" {
		emitError(c, apperrors.Validation("conversationId is required"))
		return
	}
	userID, _ := c.Context().(string)
	server.BroadcastToRoom("/", services.ConversationRoom(conversationID), event, map[string]string{
		"conversationId": conversationID,
		"userId":         userID,
	})
}

func validRoom(room string) bool {
	return strings.HasPrefix(room, "conversation_") ||
		strings.HasPrefix(room, "call_") ||
		strings.HasPrefix(room, "user_")
}

func emitError(c socketio.Conn, err error) {
	c.Emit(models.EventError, map[string]interface{}{
		"kind":    string(apperrors.KindOf(err)),
		"message": err.Error(),
		"details": apperrors.DetailsOf(err),
	})
}

func connID(c socketio.Conn) string {
	if c == nil {
		return "unknown"
	}
	return c.ID()
}
