package models

import "time"

// Message is a direct message between two members.
// IDs are assigned by the store in strictly increasing order.
type Message struct {
	ID         int64     `bson:"_id" json:"id"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	ReceiverID string    `bson:"receiver_id" json:"receiver_id"`
	Content    string    `bson:"content" json:"content"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	Read       bool      `bson:"read" json:"read"`
}

// Conversation is derived from the message list on every read and never stored.
type Conversation struct {
	UserID      string  `json:"user_id"`
	OtherUserID string  `json:"other_user_id"`
	LastMessage Message `json:"last_message"`
	UnreadCount int     `json:"unread_count"`
}

// BlockedUser records that BlockerID does not want messages from BlockedID.
type BlockedUser struct {
	BlockerID string    `json:"blocker_id"`
	BlockedID string    `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}
