package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/pkg/metrics"
)

type fakeSource struct {
	ch chan entity.MutationEvent
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan entity.MutationEvent, 64)}
}

func (s *fakeSource) Events() <-chan entity.MutationEvent { return s.ch }

type countingPasser struct {
	passes    atomic.Int32
	mu        sync.Mutex
	discarded []entity.RegionKind
}

func (p *countingPasser) Pass(context.Context) (*entity.PassReport, error) {
	p.passes.Add(1)
	return &entity.PassReport{}, nil
}

func (p *countingPasser) Discard(_ context.Context, kind entity.RegionKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discarded = append(p.discarded, kind)
	return nil
}

func (p *countingPasser) discards() []entity.RegionKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.RegionKind(nil), p.discarded...)
}

func startRunner(t *testing.T, p Passer, src *fakeSource, cfg RunnerConfig) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(p, src, cfg, metrics.New(prometheus.NewRegistry()), zap.NewNop())
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errc
}

func TestRunner_EagerPass(t *testing.T) {
	p := &countingPasser{}
	cancel, errc := startRunner(t, p, newFakeSource(), RunnerConfig{Window: 20 * time.Millisecond})

	assert.Eventually(t, func() bool { return p.passes.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-errc)
}

func TestRunner_CoalescesBurst(t *testing.T) {
	p := &countingPasser{}
	src := newFakeSource()
	_, _ = startRunner(t, p, src, RunnerConfig{Window: 50 * time.Millisecond, MaxDelay: time.Second})

	require.Eventually(t, func() bool { return p.passes.Load() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 10; i++ {
		src.ch <- entity.MutationEvent{Kind: entity.EventStructure}
	}

	assert.Eventually(t, func() bool { return p.passes.Load() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(2), p.passes.Load(), "one burst yields one pass")
}

func TestRunner_MaxDelayBoundsSteadyStream(t *testing.T) {
	p := &countingPasser{}
	src := newFakeSource()
	_, _ = startRunner(t, p, src, RunnerConfig{Window: 100 * time.Millisecond, MaxDelay: 40 * time.Millisecond})

	require.Eventually(t, func() bool { return p.passes.Load() == 1 }, time.Second, 5*time.Millisecond)
	stop := time.After(300 * time.Millisecond)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
loop:
	for {
		select {
		case <-tick.C:
			src.ch <- entity.MutationEvent{Kind: entity.EventStructure}
		case <-stop:
			break loop
		}
	}

	assert.GreaterOrEqual(t, p.passes.Load(), int32(3))
}

func TestRunner_SelectionEventDiscards(t *testing.T) {
	p := &countingPasser{}
	src := newFakeSource()
	_, _ = startRunner(t, p, src, RunnerConfig{Window: 10 * time.Millisecond})

	src.ch <- entity.MutationEvent{Kind: entity.EventSelection, Region: entity.RegionPopup}

	assert.Eventually(t, func() bool { return p.passes.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []entity.RegionKind{entity.RegionPopup}, p.discards())
}

func TestRunner_SourceCloseFlushesPending(t *testing.T) {
	p := &countingPasser{}
	src := newFakeSource()
	_, errc := startRunner(t, p, src, RunnerConfig{Window: time.Hour, MaxDelay: time.Hour})

	src.ch <- entity.MutationEvent{Kind: entity.EventStructure}
	close(src.ch)

	require.NoError(t, <-errc)
	assert.Equal(t, int32(2), p.passes.Load())
}

func TestRunner_CountsEvents(t *testing.T) {
	p := &countingPasser{}
	src := newFakeSource()
	m := metrics.New(prometheus.NewRegistry())
	r := NewRunner(p, src, RunnerConfig{Window: 10 * time.Millisecond}, m, zap.NewNop())

	src.ch <- entity.MutationEvent{Kind: entity.EventStructure}
	src.ch <- entity.MutationEvent{Kind: entity.EventStructure}
	close(src.ch)
	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MutationEvents.WithLabelValues("structure")))
}

// The whole loop against the in-memory document: the popup selection changes
// under an existing annotation, and the runner re-resolves it.
func TestRunner_SelectionChangeReannotates(t *testing.T) {
	resolver := newGatedResolver(false)
	f := newFixture(t, resolver, testPopup)

	passed := make(chan struct{}, 16)
	src := &fakeSource{ch: make(chan entity.MutationEvent, 64)}
	go func() {
		for ev := range f.doc.Events() {
			src.ch <- ev
		}
	}()

	_, _ = startRunner(t, f.enricher, src, RunnerConfig{
		Window: 10 * time.Millisecond,
		OnPass: func(*entity.PassReport, error) { passed <- struct{}{} },
	})
	<-passed
	require.Equal(t, 1, resolver.count(k9))

	f.doc.Mutate(func(doc *goquery.Document) {
		doc.Find("div.segment-name").SetText("Descent")
	})

	assert.Eventually(t, func() bool { return resolver.count(k9) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return f.enricher.State(entity.RegionPopup, k9) == entity.StateResolvedSuccess
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, f.slotHTML(k9), "/2.jpg")
	assert.Equal(t, 1, f.count(".enrich-slot"))
}
