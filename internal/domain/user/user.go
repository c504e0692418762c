package user

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrIDRequired    = errors.New("user: id is required")
	ErrEmailRequired = errors.New("user: email is required")
	ErrNotFound      = errors.New("user: not found")
)

// Fallback labels used when a profile lookup fails or the display name is
// blank. Conversation enrichment degrades to these instead of erroring.
const (
	FallbackGuestName = "Guest"
	FallbackHostName  = "Host"
)

// Profile is the public face of a user: what other participants see in
// conversations and reviews.
type Profile struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Name returns the display name or the given fallback when it is blank.
func (p Profile) Name(fallback string) string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return fallback
}

type CreateParams struct {
	ID          string
	Email       string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}

func NewProfile(params CreateParams) (*Profile, error) {
	id := strings.TrimSpace(params.ID)
	if id == "" {
		return nil, ErrIDRequired
	}
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	created := params.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &Profile{
		ID:          id,
		Email:       email,
		DisplayName: strings.TrimSpace(params.DisplayName),
		AvatarURL:   strings.TrimSpace(params.AvatarURL),
		CreatedAt:   created.UTC(),
	}, nil
}
