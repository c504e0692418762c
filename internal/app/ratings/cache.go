// Package ratings memoizes per-experience rating aggregation so that many
// concurrent UI consumers produce at most one batched reviews query per
// distinct stale id-set.
package ratings

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"livelocal/internal/domain/reviews"
	"livelocal/internal/platform/schema"
	"livelocal/internal/remote"
)

// DefaultTTL bounds staleness of a cached aggregate. Rating distributions
// change slowly, so ten minutes eliminates redundant aggregation queries
// for the length of a browsing session.
const DefaultTTL = 10 * time.Minute

type entry struct {
	agg       reviews.Aggregate
	fetchedAt time.Time
}

type call struct {
	done   chan struct{}
	result map[string]reviews.Aggregate
	err    error
}

// Cache is the ratings aggregation cache. Entries are overwritten on every
// successful refetch and never explicitly deleted; a stale entry is simply
// superseded on next access.
type Cache struct {
	svc remote.Service
	log *slog.Logger
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	entries  map[string]entry
	inflight map[string]*call
}

func New(svc remote.Service, logger *slog.Logger, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		svc:      svc,
		log:      logger,
		ttl:      ttl,
		now:      time.Now,
		entries:  make(map[string]entry),
		inflight: make(map[string]*call),
	}
}

// WithClock overrides the staleness clock. Tests use it to step past TTL.
func (c *Cache) WithClock(now func() time.Time) *Cache {
	c.now = now
	return c
}

var (
	sharedMu sync.Mutex
	shared   *Cache
)

// Configure installs the process-wide cache every consumer shares. It is
// called once at startup after the platform connection exists.
func Configure(svc remote.Service, logger *slog.Logger) *Cache {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	shared = New(svc, logger, DefaultTTL)
	return shared
}

// Shared returns the process-wide cache, or nil before Configure.
func Shared() *Cache {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}

// GetRatings returns the aggregate for every requested experience id. Fresh
// entries are served from the cache; the rest are loaded with exactly one
// batched query per distinct id-set, de-duplicated against identical
// in-flight requests. On a fetch failure the fresh subset is returned and
// the failure is logged: missing ratings render as zero, not as an error.
func (c *Cache) GetRatings(ctx context.Context, ids []string) map[string]reviews.Aggregate {
	ids = normalize(ids)
	if len(ids) == 0 {
		return map[string]reviews.Aggregate{}
	}

	c.mu.Lock()
	now := c.now()
	fresh := make(map[string]reviews.Aggregate)
	missing := make([]string, 0)
	for _, id := range ids {
		if e, ok := c.entries[id]; ok && now.Sub(e.fetchedAt) < c.ttl {
			fresh[id] = e.agg
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		c.mu.Unlock()
		return fresh
	}

	key := strings.Join(missing, ",")
	if pending, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		fetched, err := awaitCall(ctx, pending)
		if err != nil {
			c.warn("ratings fetch failed", err, missing)
			return fresh
		}
		return merge(fresh, fetched, missing)
	}

	pending := &call{done: make(chan struct{})}
	c.inflight[key] = pending
	c.mu.Unlock()

	pending.result, pending.err = c.fetch(ctx, missing)

	c.mu.Lock()
	delete(c.inflight, key)
	if pending.err == nil {
		fetchedAt := c.now()
		for id, agg := range pending.result {
			c.entries[id] = entry{agg: agg, fetchedAt: fetchedAt}
		}
	}
	c.mu.Unlock()
	close(pending.done)

	if pending.err != nil {
		c.warn("ratings fetch failed", pending.err, missing)
		return fresh
	}
	return merge(fresh, pending.result, missing)
}

// fetch issues the single batched aggregation query for ids.
func (c *Cache) fetch(ctx context.Context, ids []string) (map[string]reviews.Aggregate, error) {
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	rows, err := c.svc.Select(ctx, remote.SelectParams{
		Table:  schema.TableReviews,
		Filter: remote.In("experience_id", values...),
	})
	if err != nil {
		return nil, err
	}
	all, err := remote.DecodeRows[reviews.Review](schema.TableReviews, rows)
	if err != nil {
		return nil, err
	}
	grouped := make(map[string][]int, len(ids))
	for _, review := range all {
		grouped[review.ExperienceID] = append(grouped[review.ExperienceID], review.Rating)
	}
	out := make(map[string]reviews.Aggregate, len(ids))
	for _, id := range ids {
		out[id] = reviews.AggregateRatings(grouped[id])
	}
	return out, nil
}

func (c *Cache) warn(msg string, err error, ids []string) {
	if c.log != nil {
		c.log.Warn(msg, "error", err, "ids", strings.Join(ids, ","))
	}
}

func awaitCall(ctx context.Context, pending *call) (map[string]reviews.Aggregate, error) {
	select {
	case <-pending.done:
		return pending.result, pending.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func merge(fresh, fetched map[string]reviews.Aggregate, wanted []string) map[string]reviews.Aggregate {
	out := make(map[string]reviews.Aggregate, len(fresh)+len(wanted))
	for id, agg := range fresh {
		out[id] = agg
	}
	for _, id := range wanted {
		if agg, ok := fetched[id]; ok {
			out[id] = agg
		}
	}
	return out
}

func normalize(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
