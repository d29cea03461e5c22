package memory

import (
	"context"
	"sync"

	"github.com/user/enricher-service/internal/entity"
)

// GuardRepoImpl keeps the Processing Flags of one enricher process in memory.
type GuardRepoImpl struct {
	mu   sync.Mutex
	held map[entity.RegionKind]bool
}

// NewGuardRepo creates an in-process ProcessingGuard.
func NewGuardRepo() *GuardRepoImpl {
	return &GuardRepoImpl{held: make(map[entity.RegionKind]bool)}
}

// TryAcquire sets the flag for kind unless it is already set.
func (g *GuardRepoImpl) TryAcquire(_ context.Context, kind entity.RegionKind) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[kind] {
		return false, nil
	}
	g.held[kind] = true
	return true, nil
}

// Release clears the flag for kind.
func (g *GuardRepoImpl) Release(_ context.Context, kind entity.RegionKind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, kind)
	return nil
}

// Held reports whether the flag for kind is set.
func (g *GuardRepoImpl) Held(kind entity.RegionKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held[kind]
}
