// Package chat holds the conversation and message entities the sync layer
// keeps consistent with the platform change feed.
package chat

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrParticipantsRequired = errors.New("chat: conversation needs two distinct participants")
	ErrEmptyContent         = errors.New("chat: message content is empty")
	ErrNotFound             = errors.New("chat: conversation not found")
)

// Conversation is a two-participant thread, optionally tied to an
// experience. Participants are immutable once created; updated_at advances
// whenever a message is added.
type Conversation struct {
	ID           string    `json:"id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	ExperienceID string    `json:"experience_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// OtherParticipant returns the peer of userID, or "" when userID is not a
// participant.
func (c Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	default:
		return ""
	}
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

type CreateParams struct {
	ID           string
	ParticipantA string
	ParticipantB string
	ExperienceID string
	CreatedAt    time.Time
}

// NewConversation validates a thread between two distinct participants.
// Participant order is preserved, not normalized: A is the experience
// host, B the guest, and the (A, B, experience) triple is the thread's
// unique key. Callers must pass the host first.
func NewConversation(params CreateParams) (*Conversation, error) {
	a := strings.TrimSpace(params.ParticipantA)
	b := strings.TrimSpace(params.ParticipantB)
	if a == "" || b == "" || a == b {
		return nil, ErrParticipantsRequired
	}
	created := params.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	created = created.UTC()
	return &Conversation{
		ID:           strings.TrimSpace(params.ID),
		ParticipantA: a,
		ParticipantB: b,
		ExperienceID: strings.TrimSpace(params.ExperienceID),
		CreatedAt:    created,
		UpdatedAt:    created,
	}, nil
}

// Message belongs to exactly one conversation. ReadAt stays nil until the
// recipient marks it read; messages are never deleted.
type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	SenderID       string     `json:"sender_id"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
}

// Read reports whether the recipient has seen the message.
func (m Message) Read() bool {
	return m.ReadAt != nil
}

// ValidateContent trims and checks message text before a send.
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

// ConversationView is a conversation enriched for display: the peer's
// display name, the experience title and the latest message preview. The
// enrichment is recomputed on every refresh, never stored.
type ConversationView struct {
	Conversation
	PeerID          string `json:"peer_id"`
	PeerName        string `json:"peer_name"`
	ExperienceTitle string `json:"experience_title,omitempty"`
	LastMessage     string `json:"last_message,omitempty"`
	UnreadCount     int    `json:"unread_count"`
}
