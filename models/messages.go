package models

type Message struct {
	ConversationID string `dynamodbav:"conversationId" json:"conversationId"` // ✅ Partition Key
	MessageID      string `dynamodbav:"messageId" json:"messageId"`           // ✅ Sort Key
	SenderID       string `dynamodbav:"senderId" json:"senderId"`
	Content        string `dynamodbav:"content,omitempty" json:"content,omitempty"`
	FileKey        string `dynamodbav:"fileKey,omitempty" json:"fileKey,omitempty"` // S3 attachment reference
	Type           string `dynamodbav:"type" json:"type"`                           // text, file, emoji
	IsRead         bool   `dynamodbav:"isRead" json:"isRead"`
	ReadAt         string `dynamodbav:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt      string `dynamodbav:"createdAt" json:"createdAt"`
	// ExpiresAt is epoch seconds, set exactly once at creation for
	// disappearing messages and also used as the DynamoDB TTL attribute.
	ExpiresAt int64 `dynamodbav:"expiresAt,omitempty" json:"expiresAt,omitempty"`
}

// MessagesTable is the DynamoDB table name for messages
const MessagesTable = "Messages"

// Expired reports whether the message is past its expiry at nowEpoch.
// Messages without an expiry never expire.
func (m *Message) Expired(nowEpoch int64) bool {
	return m.ExpiresAt > 0 && nowEpoch >= m.ExpiresAt
}
