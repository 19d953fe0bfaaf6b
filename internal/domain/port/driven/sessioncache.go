package driven

import (
	"context"

	"github.com/ericfisherdev/dsbpanel/internal/domain/model"
)

// SessionCache holds the time-boxed result of the last discovery pass.
// Freshness is decided by the caller; adapters may additionally expire entries.
type SessionCache interface {
	// Get returns (nil, nil) when nothing is cached.
	Get(ctx context.Context) (*model.CachedEntry, error)
	Put(ctx context.Context, entry model.CachedEntry) error
	Clear(ctx context.Context) error
}
