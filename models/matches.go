package models

import "strings"

// Match is the pair-unique swipe record between two users. UserA is always
// the lexically smaller id so (A,B) and (B,A) address the same row.
type Match struct {
	PairKey   string `dynamodbav:"pairKey" json:"pairKey"` // ✅ Partition Key
	UserA     string `dynamodbav:"userA" json:"userA"`
	UserB     string `dynamodbav:"userB" json:"userB"`
	ActionA   string `dynamodbav:"actionA" json:"actionA"` // pending, like, super_like, pass
	ActionB   string `dynamodbav:"actionB" json:"actionB"`
	IsMatch   bool   `dynamodbav:"isMatch" json:"isMatch"`
	MatchedAt string `dynamodbav:"matchedAt,omitempty" json:"matchedAt,omitempty"`
	CreatedAt string `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt" json:"updatedAt"`
	// Per-side last swipe times, used for the undo grace window.
	SwipedAtA string `dynamodbav:"swipedAtA,omitempty" json:"swipedAtA,omitempty"`
	SwipedAtB string `dynamodbav:"swipedAtB,omitempty" json:"swipedAtB,omitempty"`
}

// MatchesTable is the DynamoDB table name for matches
const MatchesTable = "Matches"

// PairKey builds the symmetric key for an unordered user pair.
func PairKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "#" + b
}

// Slot returns the action slot for userID ("A" side or "B" side), or false
// if the user is not part of the pair.
func (m *Match) Slot(userID string) (string, bool) {
	switch userID {
	case m.UserA:
		return m.ActionA, true
	case m.UserB:
		return m.ActionB, true
	}
	return "", false
}

// OtherUser returns the opposite participant of the pair.
func (m *Match) OtherUser(userID string) string {
	if userID == m.UserA {
		return m.UserB
	}
	return m.UserA
}
