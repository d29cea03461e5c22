package usecase

import (
	"sync"

	"github.com/user/enricher-service/internal/entity"
)

type batchProgress struct {
	active int
	done   int
	total  int
}

// progress aggregates the counts of overlapping batches of one kind into a
// single indicator. The indicator goes away when the last batch finishes.
type progress struct {
	mu      sync.Mutex
	batches map[entity.RegionKind]*batchProgress
}

func newProgress() *progress {
	return &progress{batches: make(map[entity.RegionKind]*batchProgress)}
}

// start registers a batch of n fetches and shows the combined count.
func (p *progress) start(kind entity.RegionKind, n int, show func(done, total int)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.batches[kind]
	if !ok {
		b = &batchProgress{}
		p.batches[kind] = b
	}
	b.active++
	b.total += n
	show(b.done, b.total)
}

// step counts one finished fetch.
func (p *progress) step(kind entity.RegionKind, show func(done, total int)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.batches[kind]
	if !ok {
		return
	}
	b.done++
	show(b.done, b.total)
}

// finish ends a batch. Only the last active batch removes the indicator.
func (p *progress) finish(kind entity.RegionKind, show func(done, total int)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b, ok := p.batches[kind]
	if !ok {
		return
	}
	b.active--
	if b.active > 0 {
		return
	}
	delete(p.batches, kind)
	show(0, 0)
}
