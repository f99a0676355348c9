package models

// ✅ Gated feature names (keys into the subscription limits)
const (
	FeatureVideoCalls = "videoCalls"
	FeatureVoiceCalls = "voiceCalls"
	FeatureLikes      = "likes"
	FeatureSuperLikes = "superLikes"
	FeatureMessages   = "messages"
)

// ✅ Plan tiers
const (
	PlanFree     = "free"
	PlanPlus     = "plus"
	PlanInfinite = "infinite"
)

// UnlimitedSentinel marks a feature with no daily cap.
const UnlimitedSentinel = -1

// ✅ Swipe actions (per-side slots on a Match record)
const (
	ActionPending   = "pending"
	ActionLike      = "like"
	ActionSuperLike = "super_like"
	ActionPass      = "pass"
)

// ✅ Call statuses
const (
	CallStatusPending  = "pending"
	CallStatusActive   = "active"
	CallStatusDeclined = "declined"
	CallStatusEnded    = "ended"
)

// ✅ Call types
const (
	CallTypeVideo = "video"
	CallTypeVoice = "voice"
)

// ✅ Message types
const (
	MessageTypeText  = "text"
	MessageTypeFile  = "file"
	MessageTypeEmoji = "emoji"
)

// ✅ Notification types
const (
	NotificationNewMessage   = "new_message"
	NotificationNewMatch     = "new_match"
	NotificationMatchRevoked = "match_revoked"
	NotificationCallInitiate = "call_initiate"
	NotificationCallAccept   = "call_accept"
	NotificationCallDecline  = "call_decline"
	NotificationCallEnd      = "call_end"
)

// ✅ Real-time event names pushed over the socket
const (
	EventMessageReceived = "message-received"
	EventTypingStart     = "typing-start"
	EventTypingStop      = "typing-stop"
	EventCallInitiate    = "call-initiate"
	EventCallAccept      = "call-accept"
	EventCallDecline     = "call-decline"
	EventCallEnd         = "call-end"
	EventNewNotification = "new-notification"
	EventPresenceOnline  = "presence-online"
	EventPresenceOffline = "presence-offline"
	EventError           = "error"
)
