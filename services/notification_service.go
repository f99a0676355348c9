package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"sparkd_server/apperrors"
	"sparkd_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// PresenceChecker is the narrow presence view the fan-out needs.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// NotificationService delivers events to users. The durable record is
// always written first; the live push only happens for online recipients
// and its loss is acceptable, the record already exists.
type NotificationService struct {
	Dynamo   DynamoAPI
	Presence PresenceChecker
	RT       RealtimeEmitter
	Clock    func() time.Time
}

func (ns *NotificationService) now() time.Time {
	if ns.Clock != nil {
		return ns.Clock()
	}
	return time.Now()
}

// Notify persists a notification for userID and pushes it over the live
// channel when the recipient is online.
func (ns *NotificationService) Notify(ctx context.Context, userID, notifType string, payload map[string]interface{}, fromUserID string) (*models.Notification, error) {
	if userID == "" || notifType == "" {
		return nil, apperrors.Validation("userId and type are required")
	}

	notif := &models.Notification{
		UserID:         userID,
		NotificationID: uuid.NewString(),
		Type:           notifType,
		FromUserID:     fromUserID,
		Payload:        payload,
		IsRead:         false,
		CreatedAt:      ns.now().UTC().Format(time.RFC3339),
	}

	if err := ns.Dynamo.PutItem(ctx, models.NotificationsTable, notif); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	if ns.Presence != nil && ns.Presence.IsOnline(userID) && ns.RT != nil {
		ns.RT.BroadcastToRoom("/", UserRoom(userID), models.EventNewNotification, notif)
		log.Printf("📨 Notification %s pushed live to %s (%s)", notif.NotificationID, userID, notifType)
	} else {
		log.Printf("📥 Notification %s stored for offline user %s (%s)", notif.NotificationID, userID, notifType)
	}

	return notif, nil
}

// Broadcast notifies an explicit recipient list. Every recipient gets a
// durable record; individual failures are logged, not propagated.
func (ns *NotificationService) Broadcast(ctx context.Context, userIDs []string, notifType string, payload map[string]interface{}, fromUserID string) {
	for _, userID := range userIDs {
		if _, err := ns.Notify(ctx, userID, notifType, payload, fromUserID); err != nil {
			log.Printf("❌ Broadcast to %s failed: %v", userID, err)
		}
	}
}

// BroadcastToChannel pushes to every live subscriber of a channel room.
// Ephemeral: anonymous channel subscribers get no durable record.
func (ns *NotificationService) BroadcastToChannel(channel, notifType string, payload map[string]interface{}) {
	if ns.RT == nil {
		return
	}
	ns.RT.BroadcastToRoom("/", channel, models.EventNewNotification, map[string]interface{}{
		"type":    notifType,
		"payload": payload,
	})
}

// GetForUser lists the user's notifications, newest first.
func (ns *NotificationService) GetForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if userID == "" {
		return nil, apperrors.Validation("userId is required")
	}
	if limit <= 0 {
		limit = 50
	}

	keyCondition := "userId = :uid"
	expressionValues := map[string]types.AttributeValue{
		":uid": &types.AttributeValueMemberS{Value: userID},
	}

	items, err := ns.Dynamo.QueryItems(ctx, models.NotificationsTable, keyCondition, expressionValues, nil, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}

	var notifications []models.Notification
	if err := attributevalue.UnmarshalListOfMaps(items, &notifications); err != nil {
		return nil, fmt.Errorf("failed to parse notifications: %w", err)
	}

	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt > notifications[j].CreatedAt
	})

	return notifications, nil
}

// MarkRead flips the read flag. Marking an already-read notification again
// is a no-op and leaves readAt untouched.
func (ns *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	key := map[string]types.AttributeValue{
		"userId":         &types.AttributeValueMemberS{Value: userID},
		"notificationId": &types.AttributeValueMemberS{Value: notificationID},
	}
	item, err := ns.Dynamo.GetItem(ctx, models.NotificationsTable, key)
	if err != nil {
		return apperrors.NotFound("notification not found")
	}

	var notif models.Notification
	if err := attributevalue.UnmarshalMap(item, &notif); err != nil {
		return fmt.Errorf("failed to parse notification: %w", err)
	}

	if notif.IsRead {
		return nil
	}

	notif.IsRead = true
	notif.ReadAt = ns.now().UTC().Format(time.RFC3339)
	if err := ns.Dynamo.PutItem(ctx, models.NotificationsTable, &notif); err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead marks every unread notification for the user.
func (ns *NotificationService) MarkAllRead(ctx context.Context, userID string) (int, error) {
	notifications, err := ns.GetForUser(ctx, userID, 500)
	if err != nil {
		return 0, err
	}

	marked := 0
	readAt := ns.now().UTC().Format(time.RFC3339)
	for i := range notifications {
		if notifications[i].IsRead {
			continue
		}
		notifications[i].IsRead = true
		notifications[i].ReadAt = readAt
		if err := ns.Dynamo.PutItem(ctx, models.NotificationsTable, &notifications[i]); err != nil {
			log.Printf("❌ Failed to mark notification %s read: %v", notifications[i].NotificationID, err)
			continue
		}
		marked++
	}
	return marked, nil
}

// PurgeRead bulk-deletes read notifications older than the retention
// window.
func (ns *NotificationService) PurgeRead(ctx context.Context, userID string, retention time.Duration) (int, error) {
	notifications, err := ns.GetForUser(ctx, userID, 500)
	if err != nil {
		return 0, err
	}

	cutoff := ns.now().Add(-retention).UTC().Format(time.RFC3339)
	var deletes []types.WriteRequest
	for _, notif := range notifications {
		if !notif.IsRead || notif.CreatedAt >= cutoff {
			continue
		}
		deletes = append(deletes, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{
				Key: map[string]types.AttributeValue{
					"userId":         &types.AttributeValueMemberS{Value: notif.UserID},
					"notificationId": &types.AttributeValueMemberS{Value: notif.NotificationID},
				},
			},
		})
	}

	if len(deletes) == 0 {
		return 0, nil
	}
	if err := ns.Dynamo.BatchWriteItems(ctx, models.NotificationsTable, deletes); err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	log.Printf("🧹 Purged %d read notifications for %s", len(deletes), userID)
	return len(deletes), nil
}
