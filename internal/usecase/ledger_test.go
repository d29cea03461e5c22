package usecase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/enricher-service/internal/entity"
)

func TestLedger_ReserveOnce(t *testing.T) {
	l := newLedger()

	gen, ok := l.reserve(entity.RegionTable, k1, false, l.epoch())
	require.True(t, ok)

	_, ok = l.reserve(entity.RegionTable, k1, false, l.epoch())
	assert.False(t, ok, "placeholder is never reserved twice")
	assert.Equal(t, entity.StatePlaceholder, l.state(entity.RegionTable, k1))

	_, ok = l.reserve(entity.RegionPopup, k1, false, l.epoch())
	assert.True(t, ok, "kinds are tracked separately")

	require.True(t, l.resolve(entity.RegionTable, k1, gen, &entity.SideData{Photos: []string{"a"}}, nil))
	assert.Equal(t, entity.StateResolvedSuccess, l.state(entity.RegionTable, k1))
}

func TestLedger_ResolvedWithSlotIsSkipped(t *testing.T) {
	l := newLedger()
	gen, _ := l.reserve(entity.RegionTable, k1, false, l.epoch())
	l.resolve(entity.RegionTable, k1, gen, nil, errors.New("boom"))

	_, ok := l.reserve(entity.RegionTable, k1, true, l.epoch())
	assert.False(t, ok)
	assert.Equal(t, entity.StateResolvedError, l.state(entity.RegionTable, k1))
}

func TestLedger_MissingSlotEpochRule(t *testing.T) {
	l := newLedger()

	// A pass read the document before the target was resolved: the slot was
	// simply not written yet.
	early := l.epoch()
	gen, _ := l.reserve(entity.RegionTable, k1, false, early)
	l.resolve(entity.RegionTable, k1, gen, nil, nil)

	_, ok := l.reserve(entity.RegionTable, k1, false, early)
	assert.False(t, ok)

	// A pass that looked after resolution and still found no slot means the
	// host removed it.
	_, ok = l.reserve(entity.RegionTable, k1, false, l.epoch())
	assert.True(t, ok)
	assert.Equal(t, entity.StatePlaceholder, l.state(entity.RegionTable, k1))
}

func TestLedger_StaleGenerationIgnored(t *testing.T) {
	l := newLedger()
	old, _ := l.reserve(entity.RegionPopup, k9, false, l.epoch())

	assert.Equal(t, 1, l.discard(entity.RegionPopup))
	assert.Equal(t, entity.StateUnseen, l.state(entity.RegionPopup, k9))

	fresh, ok := l.reserve(entity.RegionPopup, k9, false, l.epoch())
	require.True(t, ok)
	assert.NotEqual(t, old, fresh)

	assert.False(t, l.resolve(entity.RegionPopup, k9, old, nil, nil))
	assert.True(t, l.resolve(entity.RegionPopup, k9, fresh, nil, nil))
}

func TestLedger_DiscardOnlyTouchesKind(t *testing.T) {
	l := newLedger()
	l.reserve(entity.RegionTable, k1, false, 0)
	l.reserve(entity.RegionTable, k2, false, 0)
	l.reserve(entity.RegionPopup, k9, false, 0)

	assert.Equal(t, 2, l.discard(entity.RegionTable))
	assert.Equal(t, entity.StatePlaceholder, l.state(entity.RegionPopup, k9))
}

func TestLedger_Snapshot(t *testing.T) {
	l := newLedger()
	g2, _ := l.reserve(entity.RegionTable, k2, false, 0)
	l.reserve(entity.RegionTable, k1, false, 0)
	l.reserve(entity.RegionPopup, k9, false, 0)
	l.resolve(entity.RegionTable, k2, g2, &entity.SideData{Photos: []string{"x", "y"}, Payload: entity.PayloadFound}, nil)

	snap := l.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, entity.RegionPopup, snap[0].Region)
	assert.Equal(t, k1, snap[1].Key)
	assert.Equal(t, k2, snap[2].Key)
	assert.Equal(t, 2, snap[2].Photos)
	assert.Equal(t, entity.StateResolvedSuccess, snap[2].State)
}
