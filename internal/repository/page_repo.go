package repository

import (
	"context"

	"github.com/user/enricher-service/internal/entity"
)

// PageRepository is the live, mutable document being enriched. Every call is
// a fresh query against the current document; no node survives between calls.
type PageRepository interface {
	// RegionPresent reports whether the region root currently exists.
	RegionPresent(ctx context.Context, spec entity.RegionSpec) (bool, error)
	// EnsureHeader adds the region's extra header cell if it is not there yet.
	EnsureHeader(ctx context.Context, spec entity.RegionSpec) error
	// Targets enumerates the region's targets in document order.
	Targets(ctx context.Context, spec entity.RegionSpec) ([]entity.Target, error)
	// WriteSlot creates or replaces the annotation slot of every target whose
	// key link equals key. It returns ErrRegionGone if no such target exists.
	WriteSlot(ctx context.Context, spec entity.RegionSpec, key string, a entity.Annotation) error
	// RemoveSlots drops every annotation slot in the region.
	RemoveSlots(ctx context.Context, spec entity.RegionSpec) error
	// SetProgress shows done/total next to the region. total == 0 removes it.
	SetProgress(ctx context.Context, spec entity.RegionSpec, done, total int) error
	// WatchSelection arms a one-shot watch on the region's selection
	// sub-region. The watch emits a single EventSelection and disarms.
	WatchSelection(ctx context.Context, spec entity.RegionSpec) error
}
