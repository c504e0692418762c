// Package schema names the platform tables the Live Local client touches
// and the unique keys the table stores enforce.
package schema

// Table names.
const (
	TableProfiles      = "profiles"
	TableExperiences   = "experiences"
	TableConversations = "conversations"
	TableMessages      = "messages"
	TableNotifications = "notifications"
	TableSaved         = "saved_experiences"
	TableReviews       = "reviews"
)

// UniqueKey is a set of columns that must be unique together within a table.
type UniqueKey []string

// UniqueKeys lists the constraints every table-store backend enforces.
// Saves are unique per (user, experience) so a repeated save reuses the
// existing row, and conversations are unique per participant pair and
// experience so a repeated create returns the existing thread.
var UniqueKeys = map[string][]UniqueKey{
	TableProfiles: {{"email"}},
	TableSaved:    {{"user_id", "experience_id"}},
	TableConversations: {
		{"participant_a", "participant_b", "experience_id"},
	},
	TableReviews: {{"booking_id", "author_id"}},
}
