// Package saveditems keeps the signed-in user's saved-experience set. The
// set is refreshed on start and after each mutation; saves are single-user,
// low-concurrency state, so there is no change-feed subscription.
package saveditems

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"livelocal/internal/app/notices"
	"livelocal/internal/domain/saved"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// Store tracks which experiences the current user has saved.
type Store struct {
	svc    remote.Service
	log    *slog.Logger
	toasts notices.Notifier

	// OnSignInRequired is invoked when an unauthenticated caller tries to
	// toggle a save; the UI shell redirects to sign-in.
	OnSignInRequired func()

	mu      sync.Mutex
	userID  string
	gen     int
	items   []saved.Item
	loading bool
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

// Start hooks the store to auth state and loads the saved set for the
// current user if one is signed in.
func (s *Store) Start(ctx context.Context) {
	s.authSub = s.svc.Auth().OnAuthStateChange(func(u *remote.User) {
		s.reset()
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
	s.reset()
}

// Items returns a snapshot of the saved set, newest first.
func (s *Store) Items() []saved.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]saved.Item, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// IsSaved is a pure local membership check; it never touches the network.
func (s *Store) IsSaved(experienceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ExperienceID == experienceID {
			return true
		}
	}
	return false
}

func (s *Store) initFor(ctx context.Context, userID string) {
	s.mu.Lock()
	s.gen++
	s.userID = userID
	s.mu.Unlock()
	s.refresh(ctx)
}

func (s *Store) reset() {
	s.mu.Lock()
	s.gen++
	s.userID = ""
	s.items = nil
	s.loading = false
	s.mu.Unlock()
}

// Refresh refetches the saved set from the platform.
func (s *Store) Refresh(ctx context.Context) {
	s.refresh(ctx)
}

func (s *Store) refresh(ctx context.Context) {
	s.mu.Lock()
	userID := s.userID
	gen := s.gen
	if userID == "" {
		s.mu.Unlock()
		return
	}
	s.loading = true
	s.mu.Unlock()

	rows, err := s.svc.Select(ctx, remote.SelectParams{
		Table:   schema.TableSaved,
		Filter:  remote.Eq("user_id", userID),
		OrderBy: "created_at",
		Desc:    true,
	})
	var list []saved.Item
	if err == nil || errors.Is(err, remote.ErrNoRows) {
		list, err = remote.DecodeRows[saved.Item](schema.TableSaved, rows)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.loading = false
	if err == nil {
		s.items = list
	}
	s.mu.Unlock()

	if err != nil {
		s.logError("saved list refresh failed", err)
	}
}

// ToggleSave saves or unsaves an experience. Unauthenticated callers are
// redirected to sign-in instead of attempting the mutation. The unsave
// branch deletes remotely then drops the row locally; the save branch
// inserts then refetches the whole set so server-populated fields come
// back. Each branch emits exactly one notice.
func (s *Store) ToggleSave(ctx context.Context, experienceID string) error {
	u := s.svc.Auth().CurrentUser()
	if u == nil {
		if s.OnSignInRequired != nil {
			s.OnSignInRequired()
		}
		return remote.ErrUnauthenticated
	}

	if s.IsSaved(experienceID) {
		return s.remove(ctx, u.ID, experienceID, "Removed from saved experiences.")
	}

	_, err := s.svc.Insert(ctx, schema.TableSaved, remote.Row{
		"user_id":       u.ID,
		"experience_id": experienceID,
	})
	if err != nil && !errors.Is(err, remote.ErrDuplicate) {
		s.logError("save experience failed", err, "experience_id", experienceID)
		s.toasts.Notify(notices.Error("Saved", "Could not save this experience."))
		return err
	}
	s.refresh(ctx)
	s.toasts.Notify(notices.Success("Saved", "Experience saved."))
	return nil
}

// RemoveSaved unsaves an experience from a list view. Same contract as the
// unsave branch of ToggleSave.
func (s *Store) RemoveSaved(ctx context.Context, experienceID string) error {
	u := s.svc.Auth().CurrentUser()
	if u == nil {
		if s.OnSignInRequired != nil {
			s.OnSignInRequired()
		}
		return remote.ErrUnauthenticated
	}
	return s.remove(ctx, u.ID, experienceID, "Removed from saved experiences.")
}

func (s *Store) remove(ctx context.Context, userID, experienceID, message string) error {
	filter := remote.And(
		remote.Eq("user_id", userID),
		remote.Eq("experience_id", experienceID),
	)
	if _, err := s.svc.Delete(ctx, schema.TableSaved, filter); err != nil {
		s.logError("unsave experience failed", err, "experience_id", experienceID)
		s.toasts.Notify(notices.Error("Saved", "Could not remove this experience."))
		return err
	}

	s.mu.Lock()
	kept := s.items[:0]
	for _, item := range s.items {
		if item.ExperienceID != experienceID {
			kept = append(kept, item)
		}
	}
	s.items = kept
	s.mu.Unlock()

	s.toasts.Notify(notices.Success("Saved", message))
	return nil
}

func (s *Store) logError(msg string, err error, attrs ...any) {
	if s.log != nil {
		s.log.Error(msg, append([]any{"error", err}, attrs...)...)
	}
}
