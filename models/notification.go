package models

type Notification struct {
	UserID         string                 `dynamodbav:"userId" json:"userId"`                 // ✅ Partition Key
	NotificationID string                 `dynamodbav:"notificationId" json:"notificationId"` // ✅ Sort Key
	Type           string                 `dynamodbav:"type" json:"type"`
	FromUserID     string                 `dynamodbav:"fromUserId,omitempty" json:"fromUserId,omitempty"`
	Payload        map[string]interface{} `dynamodbav:"payload,omitempty" json:"payload,omitempty"`
	IsRead         bool                   `dynamodbav:"isRead" json:"isRead"`
	ReadAt         string                 `dynamodbav:"readAt,omitempty" json:"readAt,omitempty"`
	CreatedAt      string                 `dynamodbav:"createdAt" json:"createdAt"`
}

// NotificationsTable is the DynamoDB table name for notifications
const NotificationsTable = "Notifications"
