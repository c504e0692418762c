// Package notifications keeps the signed-in user's notification page and
// unread counter consistent with the platform change feed. Read and delete
// actions apply optimistically and are not rolled back on a remote failure;
// the divergence is logged and a Refresh reconciles on demand.
package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"livelocal/internal/app/notices"
	"livelocal/internal/domain/notification"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// PageSize bounds the fetched page; the unread counter is scoped to this
// page, which is accurate enough for a notification bell.
const PageSize = 20

// SystemNotifier raises an OS-level notification when the runtime has been
// granted permission. Optional.
type SystemNotifier interface {
	Push(title, message string)
}

// Store holds the newest-first notification page and derived unread count.
type Store struct {
	svc    remote.Service
	log    *slog.Logger
	toasts notices.Notifier
	system SystemNotifier

	mu      sync.Mutex
	userID  string
	gen     int
	items   []notification.Notification
	unread  int
	loading bool
	sub     remote.Subscription
	authSub remote.Subscription
}

func New(svc remote.Service, logger *slog.Logger, toasts notices.Notifier) *Store {
	if toasts == nil {
		toasts = notices.Discard{}
	}
	return &Store{
		svc:    svc,
		log:    logger,
		toasts: toasts,
	}
}

// WithSystemNotifier enables OS-level pushes for feed inserts.
func (s *Store) WithSystemNotifier(system SystemNotifier) *Store {
	s.system = system
	return s
}

// Start hooks the store to auth state and initializes for the current user
// if one is signed in.
func (s *Store) Start(ctx context.Context) {
	s.authSub = s.svc.Auth().OnAuthStateChange(func(u *remote.User) {
		s.teardown()
		if u != nil {
			s.initFor(context.Background(), u.ID)
		}
	})
	if u := s.svc.Auth().CurrentUser(); u != nil {
		s.initFor(ctx, u.ID)
	}
}

func (s *Store) Close() {
	if s.authSub != nil {
		s.authSub.Unsubscribe()
		s.authSub = nil
	}
	s.teardown()
}

// Notifications returns a snapshot of the page, newest first.
func (s *Store) Notifications() []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]notification.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// UnreadCount returns the page-scoped unread counter.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) initFor(ctx context.Context, userID string) {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.userID = userID
	s.mu.Unlock()

	sub, err := s.svc.Subscribe(schema.TableNotifications, remote.Eq("user_id", userID), func(event remote.Event) {
		s.handleEvent(event)
	})
	if err != nil {
		s.logError("notification subscription failed", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		return
	}
	s.sub = sub
	s.mu.Unlock()

	s.refresh(ctx, false)
}

func (s *Store) teardown() {
	s.mu.Lock()
	s.gen++
	s.userID = ""
	s.items = nil
	s.unread = 0
	s.loading = false
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Refresh refetches the latest page and recomputes the unread counter.
func (s *Store) Refresh(ctx context.Context) {
	s.refresh(ctx, false)
}

func (s *Store) refresh(ctx context.Context, background bool) {
	s.mu.Lock()
	userID := s.userID
	gen := s.gen
	if userID == "" {
		s.mu.Unlock()
		return
	}
	if !background {
		s.loading = true
	}
	s.mu.Unlock()

	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:   schema.TableNotifications,
		Filter:  remote.Eq("user_id", userID),
		OrderBy: "created_at",
		Desc:    true,
		Limit:   PageSize,
	})
	var list []notification.Notification
	if err == nil || errors.Is(err, remote.ErrNoRows) {
		list, err = remote.DecodeRows[notification.Notification](schema.TableNotifications, rows)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	if !background {
		s.loading = false
	}
	if err == nil {
		s.items = list
		s.unread = countUnread(list)
	}
	s.mu.Unlock()

	if err != nil {
		s.logError("notification refresh failed", err)
		if !background {
			s.toasts.Notify(notices.Error("Notifications", "Could not load notifications."))
		}
	}
}

// handleEvent applies feed notifications. Inserts prepend and bump the
// counter; updates replace the matching entry in place without touching the
// counter, so a server-side correction cannot double-count against the
// insert path. A resync means the feed had a gap and the page refetches.
func (s *Store) handleEvent(event remote.Event) {
	if event.Type == remote.EventResync {
		s.refresh(context.Background(), true)
		return
	}

	var item notification.Notification
	if err := remote.DecodeRow(schema.TableNotifications, event.Row, &item); err != nil {
		s.logError("notification event decode failed", err)
		return
	}

	switch event.Type {
	case remote.EventInsert:
		s.mu.Lock()
		// The subscription opens before the initial fetch, so an insert
		// committed in that window can echo a row the page already holds.
		for i := range s.items {
			if s.items[i].ID == item.ID {
				s.items[i] = item
				s.mu.Unlock()
				return
			}
		}
		s.items = append([]notification.Notification{item}, s.items...)
		if len(s.items) > PageSize {
			s.items = s.items[:PageSize]
		}
		if !item.Read {
			s.unread++
		}
		s.mu.Unlock()
		s.toasts.Notify(notices.Info(item.Title, item.Message))
		if s.system != nil {
			s.system.Push(item.Title, item.Message)
		}
	case remote.EventUpdate:
		s.mu.Lock()
		for i := range s.items {
			if s.items[i].ID == item.ID {
				s.items[i] = item
				break
			}
		}
		s.mu.Unlock()
	}
}

// MarkAsRead flips one notification optimistically and pushes the change.
// A remote failure is logged; local state stays flipped.
func (s *Store) MarkAsRead(ctx context.Context, id string) {
	s.mu.Lock()
	userID := s.userID
	for i := range s.items {
		if s.items[i].ID == id && !s.items[i].Read {
			s.items[i].Read = true
			if s.unread > 0 {
				s.unread--
			}
			break
		}
	}
	s.mu.Unlock()
	if userID == "" {
		return
	}

	filter := remote.And(remote.Eq("id", id), remote.Eq("user_id", userID))
	if _, err := s.svc.Update(ctx, schema.TableNotifications, filter, remote.Row{"read": true}); err != nil {
		s.logError("mark notification read failed", err, "notification_id", id)
	}
}

// MarkAllAsRead flips every entry optimistically and zeroes the counter.
func (s *Store) MarkAllAsRead(ctx context.Context) {
	s.mu.Lock()
	userID := s.userID
	for i := range s.items {
		s.items[i].Read = true
	}
	s.unread = 0
	s.mu.Unlock()
	if userID == "" {
		return
	}

	filter := remote.And(remote.Eq("user_id", userID), remote.Eq("read", false))
	if _, err := s.svc.Update(ctx, schema.TableNotifications, filter, remote.Row{"read": true}); err != nil {
		s.logError("mark all notifications read failed", err)
	}
}

// Delete removes one notification optimistically; an unread entry also
// decrements the counter. The remote delete is scoped to the owner.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	userID := s.userID
	for i := range s.items {
		if s.items[i].ID == id {
			if !s.items[i].Read && s.unread > 0 {
				s.unread--
			}
			s.items = append(s.items[:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	if userID == "" {
		return
	}

	filter := remote.And(remote.Eq("id", id), remote.Eq("user_id", userID))
	if _, err := s.svc.Delete(ctx, schema.TableNotifications, filter); err != nil {
		s.logError("delete notification failed", err, "notification_id", id)
	}
}

func countUnread(list []notification.Notification) int {
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n
}

func (s *Store) logError(msg string, err error, attrs ...any) {
	if s.log != nil {
		s.log.Error(msg, append([]any{"error", err}, attrs...)...)
	}
}
