// Package saved defines the saved-experience entity. Existence of a row is
// the whole signal: "is saved" means the (user, experience) pair exists.
package saved

import "time"

// Item is unique per (UserID, ExperienceID); the platform enforces the key
// and saving an already-saved experience reuses the existing row.
type Item struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ExperienceID string    `json:"experience_id"`
	CreatedAt    time.Time `json:"created_at"`
}
