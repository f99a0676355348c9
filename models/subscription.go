package models

// Subscription tracks a user's plan, per-feature daily limits and today's
// usage counters. Counters only mean anything relative to LastResetDate:
// readers must reset them first when the stored date is no longer today.
type Subscription struct {
	UserID        string `dynamodbav:"userId" json:"userId"` // ✅ Partition Key
	Plan          string `dynamodbav:"plan" json:"plan"`
	LastResetDate string `dynamodbav:"lastResetDate" json:"lastResetDate"` // YYYY-MM-DD (UTC)

	VideoCallsLimit int `dynamodbav:"videoCallsLimit" json:"videoCallsLimit"`
	VoiceCallsLimit int `dynamodbav:"voiceCallsLimit" json:"voiceCallsLimit"`
	LikesLimit      int `dynamodbav:"likesLimit" json:"likesLimit"`
	SuperLikesLimit int `dynamodbav:"superLikesLimit" json:"superLikesLimit"`
	MessagesLimit   int `dynamodbav:"messagesLimit" json:"messagesLimit"`

	VideoCallsUsed int `dynamodbav:"videoCallsUsed" json:"videoCallsUsed"`
	VoiceCallsUsed int `dynamodbav:"voiceCallsUsed" json:"voiceCallsUsed"`
	LikesUsed      int `dynamodbav:"likesUsed" json:"likesUsed"`
	SuperLikesUsed int `dynamodbav:"superLikesUsed" json:"superLikesUsed"`
	MessagesUsed   int `dynamodbav:"messagesUsed" json:"messagesUsed"`
}

// SubscriptionsTable is the DynamoDB table name for subscriptions
const SubscriptionsTable = "Subscriptions"

// PlanLimits holds the per-feature daily caps for one plan tier.
type PlanLimits struct {
	VideoCalls int
	VoiceCalls int
	Likes      int
	SuperLikes int
	Messages   int
}

// PlanTable is the static plan tier table. -1 means unlimited.
var PlanTable = map[string]PlanLimits{
	PlanFree:     {VideoCalls: 1, VoiceCalls: 3, Likes: 20, SuperLikes: 1, Messages: 50},
	PlanPlus:     {VideoCalls: 10, VoiceCalls: 20, Likes: 100, SuperLikes: 5, Messages: UnlimitedSentinel},
	PlanInfinite: {VideoCalls: UnlimitedSentinel, VoiceCalls: UnlimitedSentinel, Likes: UnlimitedSentinel, SuperLikes: UnlimitedSentinel, Messages: UnlimitedSentinel},
}

// Limit returns the cap for a feature, or false for an unknown feature.
func (s *Subscription) Limit(feature string) (int, bool) {
	switch feature {
	case FeatureVideoCalls:
		return s.VideoCallsLimit, true
	case FeatureVoiceCalls:
		return s.VoiceCallsLimit, true
	case FeatureLikes:
		return s.LikesLimit, true
	case FeatureSuperLikes:
		return s.SuperLikesLimit, true
	case FeatureMessages:
		return s.MessagesLimit, true
	}
	return 0, false
}

// Used returns today's counter for a feature, or false for an unknown feature.
func (s *Subscription) Used(feature string) (int, bool) {
	switch feature {
	case FeatureVideoCalls:
		return s.VideoCallsUsed, true
	case FeatureVoiceCalls:
		return s.VoiceCallsUsed, true
	case FeatureLikes:
		return s.LikesUsed, true
	case FeatureSuperLikes:
		return s.SuperLikesUsed, true
	case FeatureMessages:
		return s.MessagesUsed, true
	}
	return 0, false
}

// AddUsed bumps a feature counter by one.
func (s *Subscription) AddUsed(feature string) {
	switch feature {
	case FeatureVideoCalls:
		s.VideoCallsUsed++
	case FeatureVoiceCalls:
		s.VoiceCallsUsed++
	case FeatureLikes:
		s.LikesUsed++
	case FeatureSuperLikes:
		s.SuperLikesUsed++
	case FeatureMessages:
		s.MessagesUsed++
	}
}

// ResetCounters zeroes every usage counter and advances the reset date.
func (s *Subscription) ResetCounters(today string) {
	s.VideoCallsUsed = 0
	s.VoiceCallsUsed = 0
	s.LikesUsed = 0
	s.SuperLikesUsed = 0
	s.MessagesUsed = 0
	s.LastResetDate = today
}

// ApplyPlan swaps the limits from the plan table, preserving counters.
func (s *Subscription) ApplyPlan(plan string) bool {
	limits, ok := PlanTable[plan]
	if !ok {
		return false
	}
	s.Plan = plan
	s.VideoCallsLimit = limits.VideoCalls
	s.VoiceCallsLimit = limits.VoiceCalls
	s.LikesLimit = limits.Likes
	s.SuperLikesLimit = limits.SuperLikes
	s.MessagesLimit = limits.Messages
	return true
}
