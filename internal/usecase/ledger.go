package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/user/enricher-service/internal/entity"
)

type ledgerKey struct {
	kind entity.RegionKind
	key  string
}

type ledgerEntry struct {
	state      entity.TargetState
	gen        uint64 // clock value of the reservation that owns the entry
	resolvedAt uint64 // clock value when the entry left Placeholder
	photos     int
	payload    entity.PayloadState
	err        string
	updatedAt  time.Time
}

// ledger is the annotation memory of the loop, kept apart from the document.
// A missing entry means Unseen. All reads and writes go through one mutex, so
// reserve is the single synchronous decision point for a target.
type ledger struct {
	mu      sync.Mutex
	entries map[ledgerKey]*ledgerEntry
	clock   uint64
	now     func() time.Time
}

func newLedger() *ledger {
	return &ledger{
		entries: make(map[ledgerKey]*ledgerEntry),
		now:     time.Now,
	}
}

// epoch returns the current clock. A pass reads it before enumerating targets.
func (l *ledger) epoch() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clock
}

// reserve moves a target to Placeholder and returns the reservation
// generation. slotPresent reports whether the document showed an annotation
// slot for the key, and seenAt is the epoch read before the document was
// queried. A resolved entry is only reserved again when its slot is gone and
// it was resolved before seenAt; otherwise the missing slot may simply not
// have been written yet when the document was read.
func (l *ledger) reserve(kind entity.RegionKind, key string, slotPresent bool, seenAt uint64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := ledgerKey{kind: kind, key: key}
	if e, ok := l.entries[k]; ok {
		if e.state == entity.StatePlaceholder {
			return 0, false
		}
		if e.state.Resolved() && (slotPresent || e.resolvedAt > seenAt) {
			return 0, false
		}
	}

	l.clock++
	l.entries[k] = &ledgerEntry{
		state:     entity.StatePlaceholder,
		gen:       l.clock,
		updatedAt: l.now(),
	}
	return l.clock, true
}

// resolve records the final outcome. It is a no-op for a stale generation.
func (l *ledger) resolve(kind entity.RegionKind, key string, gen uint64, data *entity.SideData, resolveErr error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[ledgerKey{kind: kind, key: key}]
	if !ok || e.gen != gen || e.state != entity.StatePlaceholder {
		return false
	}

	l.clock++
	e.resolvedAt = l.clock
	e.updatedAt = l.now()
	if resolveErr != nil {
		e.state = entity.StateResolvedError
		e.err = resolveErr.Error()
		return true
	}
	e.state = entity.StateResolvedSuccess
	if data != nil {
		e.photos = len(data.Photos)
		e.payload = data.Payload
	}
	return true
}

// discard forgets every entry of kind, sending its targets back to Unseen.
func (l *ledger) discard(kind entity.RegionKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k := range l.entries {
		if k.kind == kind {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

func (l *ledger) state(kind entity.RegionKind, key string) entity.TargetState {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[ledgerKey{kind: kind, key: key}]; ok {
		return e.state
	}
	return entity.StateUnseen
}

func (l *ledger) snapshot() []entity.TargetStatus {
	l.mu.Lock()
	out := make([]entity.TargetStatus, 0, len(l.entries))
	for k, e := range l.entries {
		out = append(out, entity.TargetStatus{
			Region:       k.kind,
			Key:          k.key,
			State:        e.state,
			Photos:       e.photos,
			PayloadState: e.payload,
			Error:        e.err,
			UpdatedAt:    e.updatedAt,
		})
	}
	l.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Region != out[j].Region {
			return out[i].Region < out[j].Region
		}
		return out[i].Key < out[j].Key
	})
	return out
}
