package saveditems

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelocal/internal/app/notices"
	"livelocal/internal/infra/security"
	"livelocal/internal/infra/storage/memory"
	"livelocal/internal/platform/feed"
	"livelocal/internal/platform/functions"
	"livelocal/internal/platform/local"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

type harness struct {
	platform *local.Platform
	tables   *memory.TableStore
	toasts   *notices.Recorder
	store    *Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	bus := feed.NewBus()
	t.Cleanup(bus.Close)
	tables := memory.NewTableStore(bus)
	accounts := local.NewAccounts(tables, security.BcryptHasher{Cost: 4}, security.RandomTokenGenerator{}, time.Hour, nil)
	platform := local.New(local.Options{
		Tables:    tables,
		Bus:       bus,
		Accounts:  accounts,
		Storage:   memory.NewObjectStore("mem://objects"),
		Functions: functions.NewRegistry(nil),
	})
	toasts := &notices.Recorder{}
	store := New(platform, nil, toasts)
	t.Cleanup(store.Close)
	return &harness{platform: platform, tables: tables, toasts: toasts, store: store}
}

func (h *harness) signIn(t *testing.T) *remote.User {
	t.Helper()
	u, err := h.platform.Session().SignUp(context.Background(), "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)
	return u
}

func TestToggleSaveRequiresSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Start(ctx)

	redirected := false
	h.store.OnSignInRequired = func() { redirected = true }

	err := h.store.ToggleSave(ctx, "exp-1")
	assert.ErrorIs(t, err, remote.ErrUnauthenticated)
	assert.True(t, redirected, "unauthenticated toggles redirect to sign-in")

	rows, err := h.tables.Select(ctx, remote.SelectParams{Table: schema.TableSaved})
	require.NoError(t, err)
	assert.Empty(t, rows, "no mutation is attempted")
}

func TestToggleSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.signIn(t)
	h.store.Start(ctx)
	require.False(t, h.store.IsSaved("exp-1"))

	// Save.
	require.NoError(t, h.store.ToggleSave(ctx, "exp-1"))
	assert.True(t, h.store.IsSaved("exp-1"))
	require.Len(t, h.store.Items(), 1)
	assert.Equal(t, u.ID, h.store.Items()[0].UserID)
	assert.NotEmpty(t, h.store.Items()[0].ID, "refetch brings server-populated fields back")
	assert.Equal(t, 1, h.toasts.Count(notices.LevelSuccess))

	// Unsave.
	require.NoError(t, h.store.ToggleSave(ctx, "exp-1"))
	assert.False(t, h.store.IsSaved("exp-1"))
	assert.Empty(t, h.store.Items())
	assert.Equal(t, 2, h.toasts.Count(notices.LevelSuccess))

	rows, err := h.tables.Select(ctx, remote.SelectParams{Table: schema.TableSaved})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestToggleSaveToleratesDuplicate(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.signIn(t)
	h.store.Start(ctx)

	// The row already exists remotely but the local set has not seen it,
	// e.g. a save from another device.
	_, err := h.tables.Insert(ctx, schema.TableSaved, remote.Row{
		"user_id":       u.ID,
		"experience_id": "exp-1",
	})
	require.NoError(t, err)

	require.NoError(t, h.store.ToggleSave(ctx, "exp-1"))
	assert.True(t, h.store.IsSaved("exp-1"))
	assert.Len(t, h.store.Items(), 1)
}

func TestItemsOrderNewestFirst(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	u := h.signIn(t)

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, exp := range []string{"exp-old", "exp-mid", "exp-new"} {
		_, err := h.tables.Insert(ctx, schema.TableSaved, remote.Row{
			"user_id":       u.ID,
			"experience_id": exp,
			"created_at":    remote.Timestamp(base.Add(time.Duration(i) * time.Minute)),
		})
		require.NoError(t, err)
	}
	h.store.Start(ctx)

	items := h.store.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "exp-new", items[0].ExperienceID)
	assert.Equal(t, "exp-old", items[2].ExperienceID)
}

func TestRemoveSaved(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.signIn(t)
	h.store.Start(ctx)

	require.NoError(t, h.store.ToggleSave(ctx, "exp-1"))
	require.NoError(t, h.store.RemoveSaved(ctx, "exp-1"))
	assert.False(t, h.store.IsSaved("exp-1"))

	// Unauthenticated removal is gated like a toggle.
	require.NoError(t, h.platform.Session().SignOut(ctx))
	err := h.store.RemoveSaved(ctx, "exp-1")
	assert.ErrorIs(t, err, remote.ErrUnauthenticated)
}

func TestSignOutClearsLocalSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.signIn(t)
	h.store.Start(ctx)
	require.NoError(t, h.store.ToggleSave(ctx, "exp-1"))
	require.True(t, h.store.IsSaved("exp-1"))

	require.NoError(t, h.platform.Session().SignOut(ctx))
	assert.False(t, h.store.IsSaved("exp-1"))
	assert.Empty(t, h.store.Items())
}
