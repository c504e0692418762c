// Package memory is the in-memory table-store backend. It backs the tests
// and the default server mode; the mongo backend implements the same
// contract for durable deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"livelocal/internal/platform"
	"livelocal/internal/platform/feed"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// TableStore keeps rows per table under one RWMutex and publishes every
// committed write to the change bus after the lock is released.
type TableStore struct {
	mu     sync.RWMutex
	tables map[string][]remote.Row
	unique map[string][]schema.UniqueKey
	bus    feed.Publisher
	now    func() time.Time
}

// NewTableStore builds an empty store enforcing the schema unique keys.
// bus may be nil when no change feed is needed.
func NewTableStore(bus feed.Publisher) *TableStore {
	return &TableStore{
		tables: make(map[string][]remote.Row),
		unique: schema.UniqueKeys,
		bus:    bus,
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source. Tests use it to pin created_at.
func (s *TableStore) WithClock(now func() time.Time) *TableStore {
	s.now = now
	return s
}

// Select returns rows matching the filter, ordered and limited per params.
func (s *TableStore) Select(ctx context.Context, params remote.SelectParams) ([]remote.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]remote.Row, 0)
	for _, row := range s.tables[params.Table] {
		if params.Filter.Match(row) {
			matches = append(matches, cloneRow(row))
		}
	}
	if params.OrderBy != "" {
		field, desc := params.OrderBy, params.Desc
		sort.SliceStable(matches, func(i, j int) bool {
			cmp := remote.CompareValues(matches[i][field], matches[j][field])
			if desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}
	if params.Limit > 0 && len(matches) > params.Limit {
		matches = matches[:params.Limit]
	}
	return matches, nil
}

// Insert stores a new row, assigning id and created_at/updated_at when the
// caller left them unset. Unique-key violations return remote.ErrDuplicate.
func (s *TableStore) Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := cloneRow(row)
	if id, _ := stored["id"].(string); strings.TrimSpace(id) == "" {
		stored["id"] = uuid.NewString()
	}
	now := remote.Timestamp(s.now())
	if _, ok := stored["created_at"]; !ok {
		stored["created_at"] = now
	}
	if _, ok := stored["updated_at"]; !ok {
		stored["updated_at"] = now
	}

	s.mu.Lock()
	if conflict := s.findConflict(table, stored, ""); conflict != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", table, remote.ErrDuplicate)
	}
	s.tables[table] = append(s.tables[table], stored)
	s.mu.Unlock()

	s.publish(remote.Event{Type: remote.EventInsert, Table: table, Row: cloneRow(stored)})
	return cloneRow(stored), nil
}

// Update patches every matching row and returns how many changed.
func (s *TableStore) Update(ctx context.Context, table string, filter remote.Filter, patch remote.Row) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	now := remote.Timestamp(s.now())

	s.mu.Lock()
	changed := make([]remote.Row, 0)
	for _, row := range s.tables[table] {
		if !filter.Match(row) {
			continue
		}
		for key, value := range patch {
			if key == "id" || key == "created_at" {
				continue
			}
			row[key] = value
		}
		if _, ok := patch["updated_at"]; !ok {
			row["updated_at"] = now
		}
		changed = append(changed, cloneRow(row))
	}
	s.mu.Unlock()

	for _, row := range changed {
		s.publish(remote.Event{Type: remote.EventUpdate, Table: table, Row: row})
	}
	return len(changed), nil
}

// Delete removes every matching row and returns how many went away.
func (s *TableStore) Delete(ctx context.Context, table string, filter remote.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	kept := s.tables[table][:0]
	removed := make([]remote.Row, 0)
	for _, row := range s.tables[table] {
		if filter.Match(row) {
			removed = append(removed, row)
			continue
		}
		kept = append(kept, row)
	}
	s.tables[table] = kept
	s.mu.Unlock()

	for _, row := range removed {
		s.publish(remote.Event{Type: remote.EventDelete, Table: table, Row: cloneRow(row)})
	}
	return len(removed), nil
}

func (s *TableStore) publish(event remote.Event) {
	if s.bus != nil {
		s.bus.Publish(event)
	}
}

// findConflict must be called with the write lock held.
func (s *TableStore) findConflict(table string, candidate remote.Row, skipID string) remote.Row {
	for _, key := range s.unique[table] {
		for _, row := range s.tables[table] {
			if skipID != "" && remote.EqualValues(row["id"], skipID) {
				continue
			}
			if uniqueKeyEqual(key, row, candidate) {
				return row
			}
		}
	}
	return nil
}

func uniqueKeyEqual(key schema.UniqueKey, a, b remote.Row) bool {
	for _, col := range key {
		if !remote.EqualValues(a[col], b[col]) {
			return false
		}
	}
	return true
}

var _ platform.TableStore = (*TableStore)(nil)

func cloneRow(row remote.Row) remote.Row {
	out := make(remote.Row, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}
