package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"livelocal/internal/domain/user"
	"livelocal/internal/platform"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

var (
	ErrInvalidCredentials = errors.New("local: invalid credentials")
	ErrPasswordTooShort   = errors.New("local: password must be at least 8 characters")
	ErrSessionNotFound    = errors.New("local: session not found")
)

// PasswordHasher abstracts bcrypt so tests can swap in a cheap hash.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenGenerator issues opaque session tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

type credential struct {
	userID string
	hash   string
}

type session struct {
	user      remote.User
	expiresAt time.Time
}

// Accounts is the platform account registry: credentials, sessions and the
// profile row kept in the profiles table for conversation enrichment.
type Accounts struct {
	Tables     platform.TableStore
	Passwords  PasswordHasher
	Tokens     TokenGenerator
	SessionTTL time.Duration
	Logger     *slog.Logger

	mu       sync.Mutex
	creds    map[string]credential
	sessions map[string]session
}

func NewAccounts(tables platform.TableStore, passwords PasswordHasher, tokens TokenGenerator, ttl time.Duration, logger *slog.Logger) *Accounts {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Accounts{
		Tables:     tables,
		Passwords:  passwords,
		Tokens:     tokens,
		SessionTTL: ttl,
		Logger:     logger,
		creds:      make(map[string]credential),
		sessions:   make(map[string]session),
	}
}

// SignUp registers a new account, stores its profile row and opens a
// session. A duplicate email surfaces as remote.ErrDuplicate.
func (a *Accounts) SignUp(ctx context.Context, email, password, displayName string) (*remote.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if len(password) < 8 {
		return nil, "", ErrPasswordTooShort
	}
	profile, err := user.NewProfile(user.CreateParams{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, "", err
	}
	hash, err := a.Passwords.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("local: hash password: %w", err)
	}
	row, err := remote.EncodeRow(profile)
	if err != nil {
		return nil, "", err
	}
	if _, err := a.Tables.Insert(ctx, schema.TableProfiles, row); err != nil {
		return nil, "", err
	}

	a.mu.Lock()
	a.creds[email] = credential{userID: profile.ID, hash: hash}
	a.mu.Unlock()

	return a.openSession(remote.User{ID: profile.ID, Email: email})
}

// SignIn verifies credentials and opens a session.
func (a *Accounts) SignIn(ctx context.Context, email, password string) (*remote.User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	a.mu.Lock()
	cred, ok := a.creds[email]
	a.mu.Unlock()
	if !ok {
		return nil, "", ErrInvalidCredentials
	}
	if err := a.Passwords.Compare(cred.hash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	return a.openSession(remote.User{ID: cred.userID, Email: email})
}

// SignOut drops the session for token; unknown tokens are a no-op.
func (a *Accounts) SignOut(token string) {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
}

// Resolve maps a session token to its user, expiring stale sessions.
func (a *Accounts) Resolve(token string) (*remote.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sess, ok := a.sessions[token]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Now().After(sess.expiresAt) {
		delete(a.sessions, token)
		return nil, ErrSessionNotFound
	}
	u := sess.user
	return &u, nil
}

func (a *Accounts) openSession(u remote.User) (*remote.User, string, error) {
	token, err := a.Tokens.NewToken()
	if err != nil {
		return nil, "", fmt.Errorf("local: new session token: %w", err)
	}
	a.mu.Lock()
	a.sessions[token] = session{user: u, expiresAt: time.Now().Add(a.SessionTTL)}
	a.mu.Unlock()
	if a.Logger != nil {
		a.Logger.Info("session opened", "user_id", u.ID)
	}
	out := u
	return &out, token, nil
}
