package notifications

import (
	"context"
	"fmt"
	"sync"
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
	user     *remote.User
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

	u, err := platform.Session().SignUp(context.Background(), "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)
	return &harness{platform: platform, tables: tables, toasts: toasts, store: store, user: u}
}

func (h *harness) seed(t *testing.T, id string, read bool, at time.Time) {
	t.Helper()
	_, err := h.tables.Insert(context.Background(), schema.TableNotifications, remote.Row{
		"id":         id,
		"user_id":    h.user.ID,
		"type":       "new_message",
		"title":      "New message",
		"message":    "You have mail",
		"read":       read,
		"created_at": remote.Timestamp(at),
	})
	require.NoError(t, err)
}

func TestRefreshFetchesNewestPage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	base := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < PageSize+5; i++ {
		h.seed(t, fmt.Sprintf("n%02d", i), i%2 == 0, base.Add(time.Duration(i)*time.Minute))
	}
	// Someone else's notification never shows up.
	_, err := h.tables.Insert(ctx, schema.TableNotifications, remote.Row{
		"id": "foreign", "user_id": "someone-else", "read": false,
	})
	require.NoError(t, err)

	h.store.Start(ctx)

	items := h.store.Notifications()
	require.Len(t, items, PageSize)
	assert.Equal(t, "n24", items[0].ID, "newest first")
	assert.Equal(t, "n05", items[PageSize-1].ID)

	// Counter covers the fetched page only: ids n05..n24, odd ones unread.
	assert.Equal(t, 10, h.store.UnreadCount())
}

func TestInsertEventPrependsAndCounts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.store.Start(ctx)
	require.Zero(t, h.store.UnreadCount())

	h.seed(t, "n1", false, time.Now().UTC())

	require.Eventually(t, func() bool {
		return h.store.UnreadCount() == 1
	}, time.Second, 10*time.Millisecond)

	items := h.store.Notifications()
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
	assert.Equal(t, 1, h.toasts.Count(notices.LevelInfo), "insert surfaces a toast")

	// An already-read insert joins the page without touching the counter.
	h.seed(t, "n2", true, time.Now().UTC())
	require.Eventually(t, func() bool {
		return len(h.store.Notifications()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "n2", h.store.Notifications()[0].ID)
	assert.Equal(t, 1, h.store.UnreadCount())
}

func TestInsertEventCapsPage(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < PageSize; i++ {
		h.seed(t, fmt.Sprintf("n%02d", i), true, base.Add(time.Duration(i)*time.Minute))
	}
	h.store.Start(ctx)
	require.Len(t, h.store.Notifications(), PageSize)

	h.seed(t, "newest", false, base.Add(time.Hour))

	require.Eventually(t, func() bool {
		items := h.store.Notifications()
		return len(items) == PageSize && items[0].ID == "newest"
	}, time.Second, 10*time.Millisecond)
}

func TestUpdateEventReplacesInPlaceWithoutCounting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "n1", false, time.Now().UTC())
	h.store.Start(ctx)
	require.Equal(t, 1, h.store.UnreadCount())

	_, err := h.tables.Update(ctx, schema.TableNotifications, remote.Eq("id", "n1"), remote.Row{"title": "Edited"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		items := h.store.Notifications()
		return len(items) == 1 && items[0].Title == "Edited"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.store.UnreadCount(), "updates never touch the counter")
}

func TestMarkAsReadIsOptimistic(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "n1", false, time.Now().UTC())
	h.store.Start(ctx)
	require.Equal(t, 1, h.store.UnreadCount())

	h.store.MarkAsRead(ctx, "n1")
	assert.Zero(t, h.store.UnreadCount())
	assert.True(t, h.store.Notifications()[0].Read)

	rows, err := h.tables.Select(ctx, remote.SelectParams{Table: schema.TableNotifications, Filter: remote.Eq("id", "n1")})
	require.NoError(t, err)
	assert.Equal(t, true, rows[0]["read"])

	// Marking it again is a no-op either way.
	h.store.MarkAsRead(ctx, "n1")
	assert.Zero(t, h.store.UnreadCount())
}

func TestMarkAsReadKeepsLocalStateWhenRemoteFails(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "n1", false, time.Now().UTC())
	h.store.Start(context.Background())
	require.Equal(t, 1, h.store.UnreadCount())

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	h.store.MarkAsRead(canceled, "n1")

	// No rollback: the local flip stands even though the write failed.
	assert.Zero(t, h.store.UnreadCount())
	assert.True(t, h.store.Notifications()[0].Read)

	rows, err := h.tables.Select(context.Background(), remote.SelectParams{Table: schema.TableNotifications, Filter: remote.Eq("id", "n1")})
	require.NoError(t, err)
	assert.Equal(t, false, rows[0]["read"], "remote row untouched by the failed write")
}

func TestMarkAllAsRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	base := time.Now().UTC()
	h.seed(t, "n1", false, base)
	h.seed(t, "n2", false, base.Add(time.Minute))
	h.seed(t, "n3", true, base.Add(2*time.Minute))
	h.store.Start(ctx)
	require.Equal(t, 2, h.store.UnreadCount())

	h.store.MarkAllAsRead(ctx)
	assert.Zero(t, h.store.UnreadCount())
	for _, item := range h.store.Notifications() {
		assert.True(t, item.Read)
	}

	rows, err := h.tables.Select(ctx, remote.SelectParams{
		Table:  schema.TableNotifications,
		Filter: remote.Eq("read", false),
	})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDeleteIsOptimisticAndOwnerScoped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "n1", false, time.Now().UTC())
	h.store.Start(ctx)
	require.Equal(t, 1, h.store.UnreadCount())

	h.store.Delete(ctx, "n1")
	assert.Empty(t, h.store.Notifications())
	assert.Zero(t, h.store.UnreadCount())

	require.Eventually(t, func() bool {
		rows, err := h.tables.Select(ctx, remote.SelectParams{Table: schema.TableNotifications})
		return err == nil && len(rows) == 0
	}, time.Second, 10*time.Millisecond)
}

type fakePusher struct {
	mu     sync.Mutex
	titles []string
}

func (p *fakePusher) Push(title, _ string) {
	p.mu.Lock()
	p.titles = append(p.titles, title)
	p.mu.Unlock()
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.titles)
}

func TestInsertEventReachesSystemNotifier(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	pusher := &fakePusher{}
	h.store.WithSystemNotifier(pusher)
	h.store.Start(ctx)

	h.seed(t, "n1", false, time.Now().UTC())

	require.Eventually(t, func() bool {
		return pusher.count() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestInsertEventEchoOfFetchedRowIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	at := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	h.seed(t, "n1", false, at)
	h.store.Start(ctx)
	require.Equal(t, 1, h.store.UnreadCount())

	// The subscription opens before the initial fetch, so an insert
	// committed in that window can arrive after the fetched page already
	// holds the row.
	h.store.handleEvent(remote.Event{
		Type:  remote.EventInsert,
		Table: schema.TableNotifications,
		Row: remote.Row{
			"id":         "n1",
			"user_id":    h.user.ID,
			"type":       "new_message",
			"title":      "New message",
			"message":    "You have mail",
			"read":       false,
			"created_at": remote.Timestamp(at),
		},
	})

	items := h.store.Notifications()
	require.Len(t, items, 1)
	assert.Equal(t, "n1", items[0].ID)
	assert.Equal(t, 1, h.store.UnreadCount())
	assert.Zero(t, h.toasts.Count(notices.LevelInfo), "an echo raises no toast")
}

func TestResyncEventReloadsPageFromTables(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, "n1", false, time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
	h.store.Start(ctx)
	require.Equal(t, 1, h.store.UnreadCount())

	// Diverge local state from the tables: the optimistic flip sticks
	// even though the remote write never lands.
	canceled, cancel := context.WithCancel(ctx)
	cancel()
	h.store.MarkAsRead(canceled, "n1")
	require.Zero(t, h.store.UnreadCount())

	// A feed gap ends with a resync and the page reloads from the
	// tables, where the notification is still unread.
	h.store.handleEvent(remote.Event{Type: remote.EventResync, Table: schema.TableNotifications})

	require.Equal(t, 1, h.store.UnreadCount())
	items := h.store.Notifications()
	require.Len(t, items, 1)
	assert.False(t, items[0].Read)
}
