// Package htmldoc is an in-memory PageRepository over a goquery document. It
// backs the static mode and doubles as a controllable host page in tests:
// Mutate plays the role of the site's own scripts rewriting the DOM.
package htmldoc

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/internal/render"
	"github.com/user/enricher-service/internal/repository"
)

const eventBuffer = 64

type selectionWatch struct {
	spec     entity.RegionSpec
	snapshot string
}

// DocumentRepoImpl implements PageRepository and MutationSource. Writes made
// through the repository do not emit events; only Mutate does.
type DocumentRepoImpl struct {
	mu      sync.Mutex
	doc     *goquery.Document
	events  chan entity.MutationEvent
	watches map[entity.RegionKind]selectionWatch
}

// New parses an HTML document.
func New(r io.Reader) (*DocumentRepoImpl, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &DocumentRepoImpl{
		doc:     doc,
		events:  make(chan entity.MutationEvent, eventBuffer),
		watches: make(map[entity.RegionKind]selectionWatch),
	}, nil
}

// NewFromString parses an HTML string.
func NewFromString(s string) (*DocumentRepoImpl, error) {
	return New(strings.NewReader(s))
}

// Events returns the mutation notification channel.
func (d *DocumentRepoImpl) Events() <-chan entity.MutationEvent {
	return d.events
}

// HTML renders the current document.
func (d *DocumentRepoImpl) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.OuterHtml(d.doc.Selection)
}

// Query runs fn against the document under the lock. fn must not retain the selection.
func (d *DocumentRepoImpl) Query(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.doc)
}

// Mutate applies a host-side change, then emits a structural event and one
// selection event per armed watch whose sub-region changed.
func (d *DocumentRepoImpl) Mutate(fn func(doc *goquery.Document)) {
	d.mu.Lock()
	fn(d.doc)
	var fired []entity.RegionKind
	for kind, w := range d.watches {
		if d.selectionHTML(w.spec) != w.snapshot {
			fired = append(fired, kind)
			delete(d.watches, kind)
		}
	}
	d.mu.Unlock()

	for _, kind := range fired {
		d.emit(entity.MutationEvent{Kind: entity.EventSelection, Region: kind})
	}
	d.emit(entity.MutationEvent{Kind: entity.EventStructure})
}

// Close ends the event stream.
func (d *DocumentRepoImpl) Close() {
	close(d.events)
}

// emit never blocks; a full buffer already guarantees a pending pass.
func (d *DocumentRepoImpl) emit(ev entity.MutationEvent) {
	select {
	case d.events <- ev:
	default:
	}
}

func (d *DocumentRepoImpl) root(spec entity.RegionSpec) *goquery.Selection {
	return d.doc.Find(spec.Root).First()
}

func (d *DocumentRepoImpl) selectionHTML(spec entity.RegionSpec) string {
	sel := d.root(spec).Find(spec.Selection).First()
	if sel.Length() == 0 {
		return ""
	}
	h, err := goquery.OuterHtml(sel)
	if err != nil {
		return ""
	}
	return h
}

func hrefOf(spec entity.RegionSpec, t *goquery.Selection) string {
	href, _ := t.Find(spec.KeyLink).First().Attr("href")
	return strings.TrimSpace(href)
}

func (d *DocumentRepoImpl) RegionPresent(_ context.Context, spec entity.RegionSpec) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.root(spec).Length() > 0, nil
}

func (d *DocumentRepoImpl) EnsureHeader(_ context.Context, spec entity.RegionSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	row := d.root(spec).Find(spec.Header).First()
	if row.Length() == 0 || row.ChildrenFiltered(render.HeaderSelector).Length() > 0 {
		return nil
	}
	row.AppendHtml(render.Header(spec.HeaderLabel))
	return nil
}

func (d *DocumentRepoImpl) Targets(_ context.Context, spec entity.RegionSpec) ([]entity.Target, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var targets []entity.Target
	d.root(spec).Find(spec.Targets).Each(func(i int, s *goquery.Selection) {
		targets = append(targets, entity.Target{
			Position: i,
			Href:     hrefOf(spec, s),
			HasSlot:  s.ChildrenFiltered(render.SlotSelector).Length() > 0,
		})
	})
	return targets, nil
}

func (d *DocumentRepoImpl) WriteSlot(_ context.Context, spec entity.RegionSpec, key string, a entity.Annotation) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	markup := render.Slot(spec.SlotTag, key, a)
	matched := 0
	d.root(spec).Find(spec.Targets).Each(func(_ int, s *goquery.Selection) {
		if hrefOf(spec, s) != key {
			return
		}
		matched++
		slots := s.ChildrenFiltered(render.SlotSelector)
		if slots.Length() == 0 {
			s.AppendHtml(markup)
			return
		}
		slots.Slice(1, slots.Length()).Remove()
		slots.First().ReplaceWithHtml(markup)
	})
	if matched == 0 {
		return repository.ErrRegionGone
	}
	return nil
}

func (d *DocumentRepoImpl) RemoveSlots(_ context.Context, spec entity.RegionSpec) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root(spec).Find(render.SlotSelector).Remove()
	return nil
}

func (d *DocumentRepoImpl) SetProgress(_ context.Context, spec entity.RegionSpec, done, total int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing := d.doc.Find(render.ProgressSelector(spec.Kind))
	if total == 0 {
		existing.Remove()
		return nil
	}
	markup := render.Progress(spec.Kind, done, total)
	if existing.Length() > 0 {
		existing.Slice(1, existing.Length()).Remove()
		existing.First().ReplaceWithHtml(markup)
		return nil
	}
	if root := d.root(spec); root.Length() > 0 {
		root.BeforeHtml(markup)
	}
	return nil
}

func (d *DocumentRepoImpl) WatchSelection(_ context.Context, spec entity.RegionSpec) error {
	if spec.Selection == "" {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.watches[spec.Kind] = selectionWatch{spec: spec, snapshot: d.selectionHTML(spec)}
	return nil
}
