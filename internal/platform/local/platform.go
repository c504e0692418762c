// Package local binds a table store, change bus, accounts, object storage
// and function registry into one in-process remote.Service. It is the
// backend the client stores run against in tests and embedded deployments;
// package client provides the same contract over HTTP.
package local

import (
	"context"
	"encoding/json"
	"log/slog"

	"livelocal/internal/platform"
	"livelocal/internal/platform/feed"
	"livelocal/internal/platform/functions"
	"livelocal/internal/remote"
)

// Platform is an in-process implementation of remote.Service.
type Platform struct {
	tables    platform.TableStore
	bus       *feed.Bus
	session   *Session
	storage   remote.Storage
	functions *functions.Registry
	logger    *slog.Logger
}

type Options struct {
	Tables    platform.TableStore
	Bus       *feed.Bus
	Accounts  *Accounts
	Storage   remote.Storage
	Functions *functions.Registry
	Logger    *slog.Logger
}

func New(opts Options) *Platform {
	return &Platform{
		tables:    opts.Tables,
		bus:       opts.Bus,
		session:   NewSession(opts.Accounts),
		storage:   opts.Storage,
		functions: opts.Functions,
		logger:    opts.Logger,
	}
}

func (p *Platform) Select(ctx context.Context, params remote.SelectParams) ([]remote.Row, error) {
	return p.tables.Select(ctx, params)
}

func (p *Platform) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	return p.tables.Insert(ctx, table, row)
}

func (p *Platform) Update(ctx context.Context, table string, filter remote.Filter, patch remote.Row) (int, error) {
	return p.tables.Update(ctx, table, filter, patch)
}

func (p *Platform) Delete(ctx context.Context, table string, filter remote.Filter) (int, error) {
	return p.tables.Delete(ctx, table, filter)
}

func (p *Platform) Subscribe(table string, filter remote.Filter, handler remote.EventHandler) (remote.Subscription, error) {
	return p.bus.Subscribe(table, filter, handler), nil
}

func (p *Platform) Invoke(ctx context.Context, name string, payload any) (json.RawMessage, error) {
	return p.functions.Invoke(ctx, name, payload)
}

func (p *Platform) Auth() remote.Auth {
	return p.session
}

// Session exposes the concrete session for callers that need the token.
func (p *Platform) Session() *Session {
	return p.session
}

func (p *Platform) Storage() remote.Storage {
	return p.storage
}

var _ remote.Service = (*Platform)(nil)
