package models

// User holds the identity and presence fields the real-time layer owns.
// Profile details live elsewhere and are not this service's concern.
type User struct {
	UserID   string `dynamodbav:"userId" json:"userId"`
	Handle   string `dynamodbav:"handle,omitempty" json:"handle,omitempty"`
	IsOnline bool   `dynamodbav:"isOnline" json:"isOnline"`
	LastSeen string `dynamodbav:"lastSeen,omitempty" json:"lastSeen,omitempty"`
}

// UsersTable is the DynamoDB table name for users
const UsersTable = "Users"
