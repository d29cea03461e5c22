package repository

import (
	"context"

	"github.com/user/enricher-service/internal/entity"
)

// ProcessingGuard is the per-region-kind Processing Flag.
type ProcessingGuard interface {
	// TryAcquire sets the flag for kind. It returns false without blocking if
	// the flag is already set.
	TryAcquire(ctx context.Context, kind entity.RegionKind) (bool, error)
	// Release clears the flag for kind.
	Release(ctx context.Context, kind entity.RegionKind) error
}
