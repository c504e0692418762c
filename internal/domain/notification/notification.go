// Package notification defines the user-facing notification entity.
package notification

import (
	"encoding/json"
	"time"
)

// Kind names the event class a notification was produced for. The set is
// open: the platform may introduce new kinds without a client release.
type Kind string

const (
	KindBookingConfirmed Kind = "booking_confirmed"
	KindBookingCancelled Kind = "booking_cancelled"
	KindNewMessage       Kind = "new_message"
	KindNewReview        Kind = "new_review"
)

// Notification is created by server-side events and owned by one user.
// Read transitions false to true only; the only way back is a delete.
type Notification struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Type      Kind            `json:"type"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
