package client_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelocal/internal/infra/config"
	ginserver "livelocal/internal/infra/http/gin"
	"livelocal/internal/infra/obs"
	"livelocal/internal/infra/realtime"
	"livelocal/internal/infra/security"
	"livelocal/internal/infra/storage/memory"
	"livelocal/internal/platform/client"
	"livelocal/internal/platform/feed"
	"livelocal/internal/platform/functions"
	"livelocal/internal/platform/local"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	bus := feed.NewBus()
	t.Cleanup(bus.Close)
	tables := memory.NewTableStore(bus)
	accounts := local.NewAccounts(tables, security.BcryptHasher{Cost: 4}, security.RandomTokenGenerator{}, time.Hour, nil)
	registry := functions.NewRegistry(nil)
	functions.RegisterBuiltins(registry, tables, "http://pay.local", nil, nil)
	service := local.New(local.Options{
		Tables:    tables,
		Bus:       bus,
		Accounts:  accounts,
		Storage:   memory.NewObjectStore("mem://objects"),
		Functions: registry,
	})

	server := ginserver.NewServer(config.Config{Env: "test"}, obs.Middleware{}, obs.HealthHandlers{}, ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Accounts: accounts, Validate: ginserver.NewValidator()},
		Tables:         ginserver.TableHandler{Service: service},
		Functions:      ginserver.FunctionHandler{Service: service},
		Storage:        ginserver.StorageHandler{Storage: service.Storage()},
		Realtime:       realtime.NewHub(bus, nil),
		AuthMiddleware: ginserver.AuthMiddleware{Accounts: accounts}.Handle,
	})

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func newTestClient(t *testing.T, ts *httptest.Server) *client.Client {
	t.Helper()
	c := client.New(ts.URL)
	t.Cleanup(c.Close)
	return c
}

func TestAuthOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	require.Nil(t, c.Auth().CurrentUser())

	var states []*remote.User
	c.Auth().OnAuthStateChange(func(u *remote.User) { states = append(states, u) })

	u, err := c.Auth().SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", u.Email)
	require.NotNil(t, c.Auth().CurrentUser())
	assert.NotEmpty(t, c.Token())

	_, err = c.Auth().SignUp(ctx, "ana@example.com", "supersecret", "Ana Again")
	assert.ErrorIs(t, err, remote.ErrDuplicate)

	require.NoError(t, c.Auth().SignOut(ctx))
	assert.Nil(t, c.Auth().CurrentUser())
	assert.Empty(t, c.Token())

	_, err = c.Auth().SignIn(ctx, "ana@example.com", "wrong-password")
	assert.ErrorIs(t, err, remote.ErrUnauthenticated)
	_, err = c.Auth().SignIn(ctx, "ana@example.com", "supersecret")
	require.NoError(t, err)

	require.Len(t, states, 3)
	assert.NotNil(t, states[0])
	assert.Nil(t, states[1])
	assert.NotNil(t, states[2])
}

func TestTableCRUDOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	// Writes require a session.
	_, err := c.Insert(ctx, schema.TableSaved, remote.Row{"user_id": "u1", "experience_id": "e1"})
	assert.ErrorIs(t, err, remote.ErrUnauthenticated)

	u, err := c.Auth().SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)

	inserted, err := c.Insert(ctx, schema.TableSaved, remote.Row{"user_id": u.ID, "experience_id": "e1"})
	require.NoError(t, err)
	assert.NotEmpty(t, inserted["id"])

	_, err = c.Insert(ctx, schema.TableSaved, remote.Row{"user_id": u.ID, "experience_id": "e1"})
	assert.ErrorIs(t, err, remote.ErrDuplicate)

	rows, err := c.Select(ctx, remote.SelectParams{
		Table:  schema.TableSaved,
		Filter: remote.Eq("user_id", u.ID),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "e1", rows[0]["experience_id"])

	count, err := c.Update(ctx, schema.TableSaved, remote.Eq("experience_id", "e1"), remote.Row{"pinned": true})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = c.Delete(ctx, schema.TableSaved, remote.Eq("experience_id", "e1"))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	rows, err = c.Select(ctx, remote.SelectParams{Table: schema.TableSaved})
	require.NoError(t, err)
	assert.Empty(t, rows, "empty result is a valid state, not an error")
}

func TestInvokeOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	raw, err := c.Invoke(ctx, functions.FnCreateCheckout, map[string]any{
		"booking_id":   "b1",
		"amount_cents": 2500,
	})
	require.NoError(t, err)
	var out struct {
		SessionID string `json:"session_id"`
		URL       string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.NotEmpty(t, out.SessionID)

	_, err = c.Invoke(ctx, "no-such-function", nil)
	assert.ErrorIs(t, err, remote.ErrUnknownFunction)
}

func TestSubscribeOverWebsocket(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	u, err := c.Auth().SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)

	var mu sync.Mutex
	var events []remote.Event
	sub, err := c.Subscribe(schema.TableSaved, remote.Eq("user_id", u.ID), func(event remote.Event) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Give the socket time to dial and register before writing.
	require.Eventually(t, func() bool {
		_, err := c.Insert(ctx, schema.TableSaved, remote.Row{
			"user_id":       u.ID,
			"experience_id": "probe",
		})
		if err != nil {
			return false
		}
		defer c.Delete(ctx, schema.TableSaved, remote.Eq("experience_id", "probe"))
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, 5*time.Second, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, remote.EventInsert, events[0].Type)
	assert.Equal(t, schema.TableSaved, events[0].Table)
	assert.Equal(t, u.ID, events[0].Row["user_id"])
}

func TestStorageUploadOverHTTP(t *testing.T) {
	ctx := context.Background()
	ts := newTestServer(t)
	c := newTestClient(t, ts)

	_, err := c.Auth().SignUp(ctx, "ana@example.com", "supersecret", "Ana")
	require.NoError(t, err)

	url, err := c.Storage().Upload(ctx, "avatars/ana.png", strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Contains(t, url, "avatars/ana.png")
}
