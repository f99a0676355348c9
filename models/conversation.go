package models

// Conversation links exactly two matched users. The table is keyed by the
// symmetric pairKey, which is what makes the pair unique: a conditional
// put on pairKey admits only one conversation per pair. Lookups by id go
// through the conversationId GSI. "Deleted" conversations flip Active off
// and stay in the table.
type Conversation struct {
	PairKey        string   `dynamodbav:"pairKey" json:"pairKey"`               // ✅ Partition Key
	ConversationID string   `dynamodbav:"conversationId" json:"conversationId"` // ✅ GSI conversationId-index
	Participants   []string `dynamodbav:"participants" json:"participants"`     // exactly two
	LastMessageID  string   `dynamodbav:"lastMessageId,omitempty" json:"lastMessageId,omitempty"`
	LastMessageAt  string   `dynamodbav:"lastMessageAt,omitempty" json:"lastMessageAt,omitempty"`
	Active         bool     `dynamodbav:"active" json:"active"`
	CreatedAt      string   `dynamodbav:"createdAt" json:"createdAt"`
}

// ConversationsTable is the DynamoDB table name for conversations
const ConversationsTable = "Conversations"

// ConversationIDIndex is the GSI for lookups by conversation id
const ConversationIDIndex = "conversationId-index"

// HasParticipant reports whether userID is one of the two members.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the member that is not userID.
func (c *Conversation) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}
