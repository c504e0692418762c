package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	conv, err := NewConversation(CreateParams{
		ParticipantA: " host ",
		ParticipantB: "guest",
		ExperienceID: "e1",
	})
	require.NoError(t, err)
	assert.Equal(t, "host", conv.ParticipantA)
	assert.Equal(t, "guest", conv.ParticipantB)
	assert.Equal(t, "e1", conv.ExperienceID)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)

	_, err = NewConversation(CreateParams{ParticipantA: "u1", ParticipantB: "u1"})
	assert.ErrorIs(t, err, ErrParticipantsRequired)
	_, err = NewConversation(CreateParams{ParticipantA: "u1"})
	assert.ErrorIs(t, err, ErrParticipantsRequired)
}

func TestOtherParticipant(t *testing.T) {
	conv := Conversation{ParticipantA: "host", ParticipantB: "guest"}
	assert.Equal(t, "guest", conv.OtherParticipant("host"))
	assert.Equal(t, "host", conv.OtherParticipant("guest"))
	assert.Equal(t, "", conv.OtherParticipant("stranger"))
	assert.True(t, conv.HasParticipant("host"))
	assert.False(t, conv.HasParticipant("stranger"))
}

func TestValidateContent(t *testing.T) {
	got, err := ValidateContent("  hello there  ")
	require.NoError(t, err)
	assert.Equal(t, "hello there", got)

	_, err = ValidateContent("   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
}

func TestMessageRead(t *testing.T) {
	assert.False(t, Message{}.Read())
	at := time.Now()
	assert.True(t, Message{ReadAt: &at}.Read())
}
