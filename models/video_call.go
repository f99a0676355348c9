package models

// VideoCall is the historical record of one call session. Status only ever
// moves forward: pending -> active -> ended, or pending -> declined.
type VideoCall struct {
	CallID       string   `dynamodbav:"callId" json:"callId"`   // ✅ Partition Key
	PairKey      string   `dynamodbav:"pairKey" json:"pairKey"` // ✅ GSI pairKey-index
	InitiatorID  string   `dynamodbav:"initiatorId" json:"initiatorId"`
	Participants []string `dynamodbav:"participants" json:"participants"` // exactly two, includes initiator
	CallType     string   `dynamodbav:"callType" json:"callType"`         // video, voice
	Status       string   `dynamodbav:"status" json:"status"`
	RoomURL      string   `dynamodbav:"roomUrl,omitempty" json:"roomUrl,omitempty"`
	StartTime    string   `dynamodbav:"startTime,omitempty" json:"startTime,omitempty"`
	EndTime      string   `dynamodbav:"endTime,omitempty" json:"endTime,omitempty"`
	Duration     int64    `dynamodbav:"duration" json:"duration"` // whole seconds
	CreatedAt    string   `dynamodbav:"createdAt" json:"createdAt"`
}

// VideoCallsTable is the DynamoDB table name for call records
const VideoCallsTable = "VideoCalls"

// CallPairKeyIndex is the GSI for per-pair call history lookups
const CallPairKeyIndex = "pairKey-index"

// CallLock serializes call creation per unordered pair: at most one row per
// pairKey exists while a call for that pair is pending or active.
type CallLock struct {
	PairKey   string `dynamodbav:"pairKey" json:"pairKey"` // ✅ Partition Key
	CallID    string `dynamodbav:"callId" json:"callId"`
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
}

// CallLocksTable is the DynamoDB table name for per-pair call locks
const CallLocksTable = "CallLocks"

// HasParticipant reports whether userID is on the call.
func (c *VideoCall) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// OtherParticipant returns the participant that is not userID.
func (c *VideoCall) OtherParticipant(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// Terminal reports whether the status admits no further transitions.
func (c *VideoCall) Terminal() bool {
	return c.Status == CallStatusEnded || c.Status == CallStatusDeclined
}
