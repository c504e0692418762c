package local

import (
	"context"
	"sync"

	"livelocal/internal/remote"
)

// Session is the client-side auth state of an in-process platform: the
// current user plus the listeners the sync stores hang their lifecycle on.
type Session struct {
	accounts *Accounts

	mu        sync.Mutex
	current   *remote.User
	token     string
	nextID    int
	listeners map[int]remote.AuthHandler
}

func NewSession(accounts *Accounts) *Session {
	return &Session{
		accounts:  accounts,
		listeners: make(map[int]remote.AuthHandler),
	}
}

func (s *Session) SignUp(ctx context.Context, email, password, displayName string) (*remote.User, error) {
	u, token, err := s.accounts.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	s.setCurrent(u, token)
	return u, nil
}

func (s *Session) SignIn(ctx context.Context, email, password string) (*remote.User, error) {
	u, token, err := s.accounts.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	s.setCurrent(u, token)
	return u, nil
}

func (s *Session) SignOut(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()
	if token != "" {
		s.accounts.SignOut(token)
	}
	s.setCurrent(nil, "")
	return nil
}

// CurrentUser returns a copy of the signed-in user, or nil.
func (s *Session) CurrentUser() *remote.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	u := *s.current
	return &u
}

// Token returns the active session token, or "".
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// OnAuthStateChange registers a handler invoked with the new user (nil on
// sign-out) after every identity change. Handlers run synchronously in the
// goroutine performing the sign-in or sign-out.
func (s *Session) OnAuthStateChange(handler remote.AuthHandler) remote.Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = handler
	s.mu.Unlock()
	return remote.UnsubscribeFunc(func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	})
}

func (s *Session) setCurrent(u *remote.User, token string) {
	s.mu.Lock()
	s.current = u
	s.token = token
	handlers := make([]remote.AuthHandler, 0, len(s.listeners))
	for _, h := range s.listeners {
		handlers = append(handlers, h)
	}
	s.mu.Unlock()
	for _, h := range handlers {
		var copied *remote.User
		if u != nil {
			c := *u
			copied = &c
		}
		h(copied)
	}
}

var _ remote.Auth = (*Session)(nil)
