package services

// RealtimeEmitter is the slice of the socket server the services push
// through. *socketio.Server satisfies it; tests record the calls.
type RealtimeEmitter interface {
	BroadcastToRoom(namespace, room, event string, args ...interface{}) bool
}

// Logical room names on the real-time channel.
func UserRoom(userID string) string { return "user_" + userID }

func ConversationRoom(conversationID string) string { return "conversation_" + conversationID }

func CallRoom(callID string) string { return "call_" + callID }
