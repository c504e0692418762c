// Package remote defines the contract the Live Local client programs
// against: table reads and writes with filter predicates, a per-table
// change feed, callable named functions, session auth and object storage.
// Implementations live under internal/platform.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

var (
	// ErrNoRows marks an empty result set. Callers treat it as a valid
	// terminal state, never as a user-facing failure.
	ErrNoRows = errors.New("remote: no rows")
	// ErrDuplicate is returned when a write violates a unique key.
	ErrDuplicate = errors.New("remote: duplicate row")
	// ErrUnauthenticated is returned for operations that require a session.
	ErrUnauthenticated = errors.New("remote: not authenticated")
	// ErrUnknownFunction is returned by Invoke for unregistered names.
	ErrUnknownFunction = errors.New("remote: unknown function")
)

// Row is a loosely-typed record as the platform returns it. Stores decode
// rows into typed structs at the boundary via DecodeRow.
type Row map[string]any

// EventType classifies a change-feed notification.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	// EventResync signals a gap in the feed: the transport dropped and
	// resubscribed, and anything committed in between was never delivered.
	// Row is nil; subscribers must refetch their state from the tables.
	EventResync EventType = "resync"
)

// Event is a single change-feed notification. Row carries the new row for
// inserts and updates and the removed row for deletes; resync events
// carry no row.
type Event struct {
	Type  EventType `json:"type"`
	Table string    `json:"table"`
	Row   Row       `json:"row"`
}

// EventHandler receives change-feed events for one subscription, in
// commit order. Handlers must not block for long; anything expensive
// should be handed off.
type EventHandler func(Event)

// Subscription is a handle on a standing change-feed registration.
type Subscription interface {
	Unsubscribe()
}

// SelectParams describes a table read.
type SelectParams struct {
	Table   string `json:"table"`
	Filter  Filter `json:"filter"`
	OrderBy string `json:"order_by,omitempty"`
	Desc    bool   `json:"desc,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// User is the authenticated identity every store is scoped to.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthHandler observes auth state transitions; user is nil after sign-out.
type AuthHandler func(user *User)

// Auth is the session interface of the platform.
type Auth interface {
	SignUp(ctx context.Context, email, password, displayName string) (*User, error)
	SignIn(ctx context.Context, email, password string) (*User, error)
	SignOut(ctx context.Context) error
	CurrentUser() *User
	OnAuthStateChange(handler AuthHandler) Subscription
}

// Storage stores binary objects and issues public URLs.
type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (publicURL string, err error)
}

// Service is the full remote-platform contract.
type Service interface {
	Select(ctx context.Context, params SelectParams) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, filter Filter, patch Row) (int, error)
	Delete(ctx context.Context, table string, filter Filter) (int, error)
	Subscribe(table string, filter Filter, handler EventHandler) (Subscription, error)
	Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error)
	Auth() Auth
	Storage() Storage
}

// UnsubscribeFunc adapts a plain function to the Subscription interface.
type UnsubscribeFunc func()

func (f UnsubscribeFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}
