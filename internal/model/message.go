package model

import (
	"strings"
	"time"

	syncp "github.com/njoerd114/offsync/internal/sync"
)

// Message is a chat message in a conversation.
type Message struct {
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	SentAt         time.Time  `json:"sent_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`

	// Draft marks a message still being composed. Local-only.
	Draft bool `json:"draft,omitempty"`
}

type messageWire struct {
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Body           string     `json:"body"`
	SentAt         time.Time  `json:"sent_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
}

// RemoteShape implements syncp.Payload.
func (m Message) RemoteShape() any {
	return messageWire{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Body:           m.Body,
		SentAt:         m.SentAt,
		EditedAt:       m.EditedAt,
	}
}

// MergeFields implements syncp.Payload.
func (m Message) MergeFields(remote Message) Message {
	m.ConversationID = remote.ConversationID
	m.SenderID = remote.SenderID
	m.Body = remote.Body
	m.SentAt = remote.SentAt
	m.EditedAt = remote.EditedAt
	return m
}

// Validate implements syncp.Validator.
func (m Message) Validate() error {
	return firstErr(
		required("conversation_id", m.ConversationID),
		required("sender_id", m.SenderID),
		required("body", m.Body),
		maxLen("body", m.Body, 20000),
	)
}

// ContentHash implements syncp.Hasher.
func (m Message) ContentHash() string {
	return hashFields(m.ConversationID, m.SenderID, m.Body, m.SentAt, m.EditedAt)
}

// OwnerID implements syncp.Owned.
func (m Message) OwnerID() string { return m.SenderID }

// Reaction is an emoji reaction to a message.
type Reaction struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Emoji     string `json:"emoji"`
}

// RemoteShape implements syncp.Payload.
func (r Reaction) RemoteShape() any { return r }

// MergeFields implements syncp.Payload. Reactions have no local-only fields.
func (r Reaction) MergeFields(remote Reaction) Reaction { return remote }

// Validate implements syncp.Validator.
func (r Reaction) Validate() error {
	if err := firstErr(required("message_id", r.MessageID), required("user_id", r.UserID)); err != nil {
		return err
	}
	if strings.TrimSpace(r.Emoji) == "" || len([]rune(r.Emoji)) > 16 {
		return &syncp.ValidationError{Field: "emoji", Message: "must be a single emoji"}
	}
	return nil
}

// OwnerID implements syncp.Owned.
func (r Reaction) OwnerID() string { return r.UserID }

// ReadReceipt records how far a user has read in a conversation.
type ReadReceipt struct {
	ConversationID    string    `json:"conversation_id"`
	UserID            string    `json:"user_id"`
	LastReadMessageID string    `json:"last_read_message_id"`
	ReadAt            time.Time `json:"read_at"`
}

// RemoteShape implements syncp.Payload.
func (r ReadReceipt) RemoteShape() any { return r }

// MergeFields implements syncp.Payload.
func (r ReadReceipt) MergeFields(remote ReadReceipt) ReadReceipt { return remote }

// Validate implements syncp.Validator.
func (r ReadReceipt) Validate() error {
	return firstErr(
		required("conversation_id", r.ConversationID),
		required("user_id", r.UserID),
		required("last_read_message_id", r.LastReadMessageID),
	)
}

// OwnerID implements syncp.Owned.
func (r ReadReceipt) OwnerID() string { return r.UserID }
