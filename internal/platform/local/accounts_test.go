package local

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelocal/internal/infra/storage/memory"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// plainHasher skips bcrypt so account tests stay fast.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "plain:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

type seqTokens struct{ n int }

func (g *seqTokens) NewToken() (string, error) {
	g.n++
	return fmt.Sprintf("token-%d", g.n), nil
}

func newTestAccounts(t *testing.T) *Accounts {
	t.Helper()
	return NewAccounts(memory.NewTableStore(nil), plainHasher{}, &seqTokens{}, time.Hour, nil)
}

func TestSignUpCreatesProfileAndSession(t *testing.T) {
	ctx := context.Background()
	accounts := newTestAccounts(t)

	u, token, err := accounts.SignUp(ctx, "Ana@Example.com", "supersecret", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	assert.NotEmpty(t, u.ID)
	assert.NotEmpty(t, token)

	resolved, err := accounts.Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, resolved.ID)

	rows, err := accounts.Tables.Select(ctx, remote.SelectParams{
		Table:  schema.TableProfiles,
		Filter: remote.Eq("email", "ana@example.com"),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ana", rows[0]["display_name"])
}

func TestSignUpRejectsShortPasswordAndDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	accounts := newTestAccounts(t)

	_, _, err := accounts.SignUp(ctx, "ana@example.com", "short", "Ana")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, _, err = accounts.SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)
	_, _, err = accounts.SignUp(ctx, "ANA@example.com", "supersecret", "Other Ana")
	assert.ErrorIs(t, err, remote.ErrDuplicate)
}

func TestSignInVerifiesCredentials(t *testing.T) {
	ctx := context.Background()
	accounts := newTestAccounts(t)
	registered, _, err := accounts.SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)

	u, token, err := accounts.SignIn(ctx, "ana@example.com", "supersecret")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)
	assert.NotEmpty(t, token)

	_, _, err = accounts.SignIn(ctx, "ana@example.com", "wrongpass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = accounts.SignIn(ctx, "nobody@example.com", "supersecret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSignOutAndExpiry(t *testing.T) {
	ctx := context.Background()
	accounts := newTestAccounts(t)
	_, token, err := accounts.SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)

	accounts.SignOut(token)
	_, err = accounts.Resolve(token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	accounts.SignOut(token) // unknown token is a no-op

	expiring := NewAccounts(memory.NewTableStore(nil), plainHasher{}, &seqTokens{}, time.Nanosecond, nil)
	_, token, err = expiring.SignUp(ctx, "bo@example.com", "supersecret", "Bo")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)
	_, err = expiring.Resolve(token)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionNotifiesListeners(t *testing.T) {
	ctx := context.Background()
	accounts := newTestAccounts(t)
	sess := NewSession(accounts)

	var states []*remote.User
	sub := sess.OnAuthStateChange(func(u *remote.User) {
		states = append(states, u)
	})

	u, err := sess.SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)
	require.NotNil(t, sess.CurrentUser())
	assert.Equal(t, u.ID, sess.CurrentUser().ID)
	assert.NotEmpty(t, sess.Token())

	require.NoError(t, sess.SignOut(ctx))
	assert.Nil(t, sess.CurrentUser())
	assert.Empty(t, sess.Token())

	require.Len(t, states, 2)
	assert.NotNil(t, states[0])
	assert.Nil(t, states[1])

	sub.Unsubscribe()
	_, err = sess.SignIn(ctx, "ana@example.com", "supersecret")
	require.NoError(t, err)
	assert.Len(t, states, 2, "unsubscribed listener stays quiet")
}
