// Package platform declares the backend-side contracts the server and the
// in-process service are assembled from.
package platform

import (
	"context"

	"livelocal/internal/remote"
)

// TableStore is the storage contract every backend implements. The memory
// backend serves tests and local runs; the mongo backend serves durable
// deployments. Both publish committed writes to the change feed.
type TableStore interface {
	Select(ctx context.Context, params remote.SelectParams) ([]remote.Row, error)
	Insert(ctx context.Context, table string, row remote.Row) (remote.Row, error)
	Update(ctx context.Context, table string, filter remote.Filter, patch remote.Row) (int, error)
	Delete(ctx context.Context, table string, filter remote.Filter) (int, error)
}
