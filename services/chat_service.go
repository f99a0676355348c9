package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"sparkd_server/apperrors"
	"sparkd_server/models"
	"sparkd_server/utils"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// messageTimeFormat keeps nanosecond precision with fixed width so that
// lexicographic order on createdAt matches persistence order.
const messageTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// DefaultDisappearDuration applies when a message is sent as disappearing
// and no duration is configured.
const DefaultDisappearDuration = 24 * time.Hour

// Matcher is the mutual-match precondition check.
type Matcher interface {
	AreMatched(ctx context.Context, a, b string) (bool, error)
}

// ChatService is the conversation/message pipeline: membership guards,
// persistence, conversation pointer updates, live fan-out with a durable
// fallback, read receipts and disappearing-message expiry.
type ChatService struct {
	Dynamo            DynamoAPI
	Matches           Matcher
	Notifications     Notifier
	Presence          PresenceChecker
	RT                RealtimeEmitter
	Clock             func() time.Time
	DisappearDuration time.Duration
}

func (cs *ChatService) now() time.Time {
	if cs.Clock != nil {
		return cs.Clock()
	}
	return time.Now()
}

func (cs *ChatService) disappearAfter() time.Duration {
	if cs.DisappearDuration > 0 {
		return cs.DisappearDuration
	}
	return DefaultDisappearDuration
}

// EnsureConversation returns the pair's conversation, creating it lazily
// when the two users are matched and none exists yet. The conditional put
// on pairKey keeps the pair unique under concurrent first messages.
func (cs *ChatService) EnsureConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	if a == "" || b == "" || a == b {
		return nil, apperrors.Validation("two distinct participant ids are required")
	}

	pairKey := models.PairKey(a, b)
	key := map[string]types.AttributeValue{
		"pairKey": &types.AttributeValueMemberS{Value: pairKey},
	}

	item, err := cs.Dynamo.GetItem(ctx, models.ConversationsTable, key)
	if err == nil {
		var convo models.Conversation
		if err := attributevalue.UnmarshalMap(item, &convo); err != nil {
			return nil, fmt.Errorf("failed to parse conversation: %w", err)
		}
		return &convo, nil
	}
	if !errors.Is(err, ErrItemNotFound) {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	matched, err := cs.Matches.AreMatched(ctx, a, b)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, apperrors.AccessDenied("users are not matched")
	}

	convo := &models.Conversation{
		PairKey:        pairKey,
		ConversationID: uuid.NewString(),
		Participants:   []string{a, b},
		Active:         true,
		CreatedAt:      cs.now().UTC().Format(time.RFC3339),
	}
	err = cs.Dynamo.PutItemIfNotExists(ctx, models.ConversationsTable, convo, "pairKey")
	if errors.Is(err, ErrConditionFailed) {
		// Concurrent first message created it; use the winner's record.
		item, err := cs.Dynamo.GetItem(ctx, models.ConversationsTable, key)
		if err != nil {
			return nil, fmt.Errorf("failed to re-read conversation: %w", err)
		}
		var existing models.Conversation
		if err := attributevalue.UnmarshalMap(item, &existing); err != nil {
			return nil, fmt.Errorf("failed to parse conversation: %w", err)
		}
		return &existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	log.Printf("✅ Conversation %s created for pair %s", convo.ConversationID, pairKey)
	return convo, nil
}

// GetConversation resolves a conversation by its id via the GSI.
func (cs *ChatService) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	if conversationID == "" {
		return nil, apperrors.Validation("conversationId is required")
	}

	keyCondition := "conversationId = :cid"
	expressionValues := map[string]types.AttributeValue{
		":cid": &types.AttributeValueMemberS{Value: conversationID},
	}
	items, err := cs.Dynamo.QueryItemsWithIndex(ctx, models.ConversationsTable, models.ConversationIDIndex, keyCondition, expressionValues, nil, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	if len(items) == 0 {
		return nil, apperrors.NotFound("conversation not found")
	}

	var convo models.Conversation
	if err := attributevalue.UnmarshalMap(items[0], &convo); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	return &convo, nil
}

// SendMessage runs the full delivery path: membership guard, persist,
// conversation pointer bump, live fan-out to the conversation room and a
// durable notification for an offline recipient.
func (cs *ChatService) SendMessage(ctx context.Context, senderID, conversationID, content, fileKey, msgType string, disappearing bool) (*models.Message, error) {
	if senderID == "" || conversationID == "" {
		return nil, apperrors.Validation("senderId and conversationId are required")
	}
	if content == "" && fileKey == "" {
		return nil, apperrors.Validation("message needs content or a file reference")
	}
	if msgType == "" {
		msgType = models.MessageTypeText
		if fileKey != "" {
			msgType = models.MessageTypeFile
		}
	}

	convo, err := cs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !convo.HasParticipant(senderID) {
		return nil, apperrors.AccessDenied("sender is not a participant of this conversation")
	}
	if !convo.Active {
		return nil, apperrors.StateConflict("conversation is no longer active", "inactive")
	}

	now := cs.now()
	message := &models.Message{
		ConversationID: conversationID,
		MessageID:      uuid.NewString(),
		SenderID:       senderID,
		Content:        content,
		FileKey:        fileKey,
		Type:           msgType,
		IsRead:         false,
		CreatedAt:      now.UTC().Format(messageTimeFormat),
	}
	if disappearing {
		// Set exactly once at creation; never recomputed afterwards.
		message.ExpiresAt = now.Add(cs.disappearAfter()).Unix()
	}

	if err := cs.Dynamo.PutItem(ctx, models.MessagesTable, message); err != nil {
		return nil, fmt.Errorf("failed to store message: %w", err)
	}

	convo.LastMessageID = message.MessageID
	convo.LastMessageAt = message.CreatedAt
	if err := cs.Dynamo.PutItem(ctx, models.ConversationsTable, convo); err != nil {
		log.Printf("❌ Failed to bump conversation pointer for %s: %v", conversationID, err)
	}

	// Live fan-out reaches every joined connection of both participants
	// (multi-device echo included).
	if cs.RT != nil {
		cs.RT.BroadcastToRoom("/", ConversationRoom(conversationID), models.EventMessageReceived, message)
	}

	recipient := convo.OtherParticipant(senderID)
	if cs.Presence == nil || !cs.Presence.IsOnline(recipient) {
		if cs.Notifications != nil {
			if _, err := cs.Notifications.Notify(ctx, recipient, models.NotificationNewMessage, map[string]interface{}{
				"conversationId": conversationID,
				"messageId":      message.MessageID,
			}, senderID); err != nil {
				log.Printf("❌ Failed to store offline notification for %s: %v", recipient, err)
			}
		}
	}

	log.Printf("📩 Message %s stored in conversation %s", message.MessageID, conversationID)
	return message, nil
}

// GetMessages fetches messages for a conversation, newest first. Expired
// disappearing messages are never returned, even before the sweep has
// physically removed them.
func (cs *ChatService) GetMessages(ctx context.Context, conversationID, callerID string, limit int) ([]models.Message, error) {
	convo, err := cs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !convo.HasParticipant(callerID) {
		return nil, apperrors.AccessDenied("not a participant of this conversation")
	}
	if limit <= 0 {
		limit = 50
	}

	keyCondition := "conversationId = :cid"
	expressionValues := map[string]types.AttributeValue{
		":cid": &types.AttributeValueMemberS{Value: conversationID},
	}
	items, err := cs.Dynamo.QueryItems(ctx, models.MessagesTable, keyCondition, expressionValues, nil, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	var messages []models.Message
	if err := attributevalue.UnmarshalListOfMaps(items, &messages); err != nil {
		return nil, fmt.Errorf("failed to parse messages: %w", err)
	}

	nowEpoch := cs.now().Unix()
	visible := messages[:0]
	for _, msg := range messages {
		if !msg.Expired(nowEpoch) {
			visible = append(visible, msg)
		}
	}

	sort.SliceStable(visible, func(i, j int) bool {
		return visible[i].CreatedAt > visible[j].CreatedAt
	})
	return visible, nil
}

// MarkMessageRead flips the read flag. Only the recipient may mark a
// message; re-marking an already-read message is a no-op.
func (cs *ChatService) MarkMessageRead(ctx context.Context, conversationID, messageID, readerID string) error {
	convo, err := cs.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !convo.HasParticipant(readerID) {
		return apperrors.AccessDenied("not a participant of this conversation")
	}

	key := map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: conversationID},
		"messageId":      &types.AttributeValueMemberS{Value: messageID},
	}
	item, err := cs.Dynamo.GetItem(ctx, models.MessagesTable, key)
	if errors.Is(err, ErrItemNotFound) {
		return apperrors.NotFound("message not found")
	}
	if err != nil {
		return fmt.Errorf("failed to load message: %w", err)
	}

	var msg models.Message
	if err := attributevalue.UnmarshalMap(item, &msg); err != nil {
		return fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Expired(cs.now().Unix()) {
		return apperrors.NotFound("message not found")
	}
	if msg.SenderID == readerID {
		return apperrors.AccessDenied("sender cannot mark own message as read")
	}
	if msg.IsRead {
		return nil
	}

	msg.IsRead = true
	msg.ReadAt = cs.now().UTC().Format(time.RFC3339)
	if err := cs.Dynamo.PutItem(ctx, models.MessagesTable, &msg); err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// MarkConversationRead marks every unread message not authored by the
// reader. Returns how many messages changed.
func (cs *ChatService) MarkConversationRead(ctx context.Context, conversationID, readerID string) (int, error) {
	convo, err := cs.GetConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !convo.HasParticipant(readerID) {
		return 0, apperrors.AccessDenied("not a participant of this conversation")
	}

	keyCondition := "conversationId = :cid"
	expressionValues := map[string]types.AttributeValue{
		":cid": &types.AttributeValueMemberS{Value: conversationID},
	}
	items, err := cs.Dynamo.QueryItems(ctx, models.MessagesTable, keyCondition, expressionValues, nil, 500)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch messages: %w", err)
	}

	nowEpoch := cs.now().Unix()
	readAt := cs.now().UTC().Format(time.RFC3339)
	marked := 0
	for _, item := range items {
		var msg models.Message
		if err := attributevalue.UnmarshalMap(item, &msg); err != nil {
			continue
		}
		if msg.IsRead || msg.SenderID == readerID || msg.Expired(nowEpoch) {
			continue
		}
		msg.IsRead = true
		msg.ReadAt = readAt
		if err := cs.Dynamo.PutItem(ctx, models.MessagesTable, &msg); err != nil {
			log.Printf("❌ Failed to mark message %s read: %v", msg.MessageID, err)
			continue
		}
		marked++
	}
	return marked, nil
}

// GetConversationsForUser lists the user's conversations, most recent
// message first.
func (cs *ChatService) GetConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	if userID == "" {
		return nil, apperrors.Validation("userId is required")
	}

	var conversations []models.Conversation
	err := cs.Dynamo.ScanWithFilter(ctx, models.ConversationsTable, func(item map[string]types.AttributeValue) bool {
		for _, p := range utils.ExtractStringList(item, "participants") {
			if p == userID {
				return true
			}
		}
		return false
	}, &conversations)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch conversations: %w", err)
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt > conversations[j].LastMessageAt
	})
	return conversations, nil
}

// DeactivateConversation flips the active flag; the record stays.
func (cs *ChatService) DeactivateConversation(ctx context.Context, conversationID, userID string) error {
	convo, err := cs.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if !convo.HasParticipant(userID) {
		return apperrors.AccessDenied("not a participant of this conversation")
	}
	if !convo.Active {
		return nil
	}

	convo.Active = false
	if err := cs.Dynamo.PutItem(ctx, models.ConversationsTable, convo); err != nil {
		return fmt.Errorf("failed to deactivate conversation: %w", err)
	}
	return nil
}

// SweepExpiredMessages deletes disappearing messages past their expiry,
// regardless of read state. DynamoDB TTL is the coarse backstop; this
// sweep keeps the deletion latency inside one tick.
func (cs *ChatService) SweepExpiredMessages(ctx context.Context) (int, error) {
	nowEpoch := cs.now().Unix()

	var expired []models.Message
	err := cs.Dynamo.ScanWithFilter(ctx, models.MessagesTable, func(item map[string]types.AttributeValue) bool {
		expiresAt := utils.ExtractNumber(item, "expiresAt")
		return expiresAt > 0 && expiresAt <= nowEpoch
	}, &expired)
	if err != nil {
		return 0, fmt.Errorf("failed to scan for expired messages: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	var deletes []types.WriteRequest
	for _, msg := range expired {
		deletes = append(deletes, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"conversationId": &types.AttributeValueMemberS{Value: msg.ConversationID},
					"messageId":      &types.AttributeValueMemberS{Value: msg.MessageID},
				},
			},
		})
	}
	if err := cs.Dynamo.BatchWriteItems(ctx, models.MessagesTable, deletes); err != nil {
		return 0, fmt.Errorf("failed to delete expired messages: %w", err)
	}

	log.Printf("🧹 Swept %d expired messages", len(deletes))
	return len(deletes), nil
}

// RunSweeper deletes expired messages on an interval until ctx ends.
func (cs *ChatService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := cs.SweepExpiredMessages(ctx); err != nil {
				log.Printf("❌ Message sweep failed: %v", err)
			}
		}
	}
}
