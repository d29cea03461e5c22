package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/internal/repository"
	"github.com/user/enricher-service/pkg/metrics"
)

var tracer = otel.Tracer("enricher.usecase")

// Enricher runs idempotent enrichment passes over the configured regions.
type Enricher struct {
	page     repository.PageRepository
	resolver repository.SideDataResolver
	guard    repository.ProcessingGuard
	regions  []entity.RegionSpec
	patterns map[entity.RegionKind]*regexp.Regexp
	ledger   *ledger
	progress *progress
	// slotMu serialises ledger commits with their slot writes, per kind.
	slotMu  map[entity.RegionKind]*sync.Mutex
	metrics *metrics.Metrics
	logger   *zap.Logger
}

type reservation struct {
	key string
	gen uint64
}

// NewEnricher creates the enrichment loop. It fails if a region's key pattern
// does not compile or two regions share a kind.
func NewEnricher(
	page repository.PageRepository,
	resolver repository.SideDataResolver,
	guard repository.ProcessingGuard,
	regions []entity.RegionSpec,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Enricher, error) {
	patterns := make(map[entity.RegionKind]*regexp.Regexp, len(regions))
	slotMu := make(map[entity.RegionKind]*sync.Mutex, len(regions))
	for _, spec := range regions {
		if _, dup := patterns[spec.Kind]; dup {
			return nil, fmt.Errorf("duplicate region kind %q", spec.Kind)
		}
		var re *regexp.Regexp
		if spec.KeyPattern != "" {
			var err error
			if re, err = regexp.Compile(spec.KeyPattern); err != nil {
				return nil, fmt.Errorf("region %s: invalid key pattern: %w", spec.Kind, err)
			}
		}
		patterns[spec.Kind] = re
		slotMu[spec.Kind] = &sync.Mutex{}
	}

	return &Enricher{
		page:     page,
		resolver: resolver,
		guard:    guard,
		regions:  regions,
		patterns: patterns,
		ledger:   newLedger(),
		progress: newProgress(),
		slotMu:   slotMu,
		metrics:  m,
		logger:   logger,
	}, nil
}

// Pass performs one sweep over every region kind and waits for all fetches it
// started. Failures of one region are returned joined but never stop the
// sweep of the others; failures of one target never surface at all.
func (e *Enricher) Pass(ctx context.Context) (*entity.PassReport, error) {
	ctx, span := tracer.Start(ctx, "Pass")
	defer span.End()

	report := &entity.PassReport{StartedAt: time.Now()}
	var errs []error
	for _, spec := range e.regions {
		rr, err := e.passRegion(ctx, spec)
		report.Regions = append(report.Regions, rr)
		if err != nil {
			errs = append(errs, fmt.Errorf("region %s: %w", spec.Kind, err))
		}
	}
	report.Duration = time.Since(report.StartedAt)

	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass incomplete")
	}
	span.SetAttributes(attribute.Int("fetches", report.Fetches()))
	return report, err
}

// Discard forgets every annotation of kind and removes its slots, so the next
// pass treats the region's targets as unseen.
func (e *Enricher) Discard(ctx context.Context, kind entity.RegionKind) error {
	spec, ok := e.spec(kind)
	if !ok {
		return fmt.Errorf("unknown region kind %q", kind)
	}

	mu := e.slotMu[kind]
	mu.Lock()
	defer mu.Unlock()

	n := e.ledger.discard(kind)
	if err := e.page.RemoveSlots(context.WithoutCancel(ctx), spec); err != nil {
		return fmt.Errorf("remove slots: %w", err)
	}
	e.logger.Info("discarded stale annotations", zap.String("region", string(kind)), zap.Int("entries", n))
	return nil
}

// Snapshot returns the current annotation state of every known target.
func (e *Enricher) Snapshot() []entity.TargetStatus {
	return e.ledger.snapshot()
}

// State returns the lifecycle state of one target.
func (e *Enricher) State(kind entity.RegionKind, key string) entity.TargetState {
	return e.ledger.state(kind, key)
}

func (e *Enricher) spec(kind entity.RegionKind) (entity.RegionSpec, bool) {
	for _, spec := range e.regions {
		if spec.Kind == kind {
			return spec, true
		}
	}
	return entity.RegionSpec{}, false
}

// externalKey derives the key of a target. An empty or non-matching href
// means the target has no key and is skipped.
func (e *Enricher) externalKey(spec entity.RegionSpec, t entity.Target) (string, bool) {
	href := strings.TrimSpace(t.Href)
	if href == "" {
		return "", false
	}
	if re := e.patterns[spec.Kind]; re != nil && !re.MatchString(href) {
		return "", false
	}
	return href, true
}

func (e *Enricher) passRegion(ctx context.Context, spec entity.RegionSpec) (entity.RegionReport, error) {
	rr := entity.RegionReport{Kind: spec.Kind}
	region := string(spec.Kind)

	if spec.Exclusive {
		acquired, err := e.guard.TryAcquire(ctx, spec.Kind)
		if err != nil {
			e.metrics.IncPass(region, "failed")
			return rr, fmt.Errorf("acquire processing flag: %w", err)
		}
		if !acquired {
			rr.Dropped = true
			e.metrics.IncPass(region, "dropped")
			e.logger.Debug("region pass already running, dropping trigger", zap.String("region", region))
			return rr, nil
		}
		defer func() {
			if err := e.guard.Release(context.WithoutCancel(ctx), spec.Kind); err != nil {
				e.logger.Error("failed to release processing flag", zap.String("region", region), zap.Error(err))
			}
		}()
	}

	present, err := e.page.RegionPresent(ctx, spec)
	if err != nil {
		e.metrics.IncPass(region, "failed")
		return rr, fmt.Errorf("locate region: %w", err)
	}
	if !present {
		e.metrics.IncPass(region, "absent")
		return rr, nil
	}
	rr.Present = true

	if spec.Header != "" {
		if err := e.page.EnsureHeader(ctx, spec); err != nil {
			e.metrics.IncPass(region, "failed")
			return rr, fmt.Errorf("add header: %w", err)
		}
	}

	seenAt := e.ledger.epoch()
	targets, err := e.page.Targets(ctx, spec)
	if err != nil {
		e.metrics.IncPass(region, "failed")
		return rr, fmt.Errorf("enumerate targets: %w", err)
	}
	rr.Targets = len(targets)

	// Reserved targets are committed: their fetches and writes run to the end
	// even if the caller stops waiting for the pass.
	wctx := context.WithoutCancel(ctx)

	// Placeholders go in before the first fetch starts.
	mu := e.slotMu[spec.Kind]
	mu.Lock()
	reserved := e.reserve(spec, targets, seenAt, &rr)
	for _, r := range reserved {
		e.writeSlot(wctx, spec, r.key, entity.Annotation{Kind: entity.AnnotationLoading})
	}
	mu.Unlock()
	rr.Reserved = len(reserved)

	if len(reserved) > 0 {
		e.resolveBatch(wctx, spec, reserved, &rr)
		if spec.Selection != "" {
			if err := e.page.WatchSelection(wctx, spec); err != nil {
				e.logger.Warn("failed to watch selection", zap.String("region", region), zap.Error(err))
			}
		}
	}

	e.metrics.IncPass(region, "completed")
	return rr, nil
}

// reserve claims every unprocessed key of the pass in the ledger. Targets that
// share a key are annotated together, and the key counts as annotated only
// when all of them carry a slot.
func (e *Enricher) reserve(spec entity.RegionSpec, targets []entity.Target, seenAt uint64, rr *entity.RegionReport) []reservation {
	var order []string
	slotted := make(map[string]bool)
	for _, t := range targets {
		key, ok := e.externalKey(spec, t)
		if !ok {
			rr.Skipped++
			continue
		}
		has, seen := slotted[key]
		if !seen {
			order = append(order, key)
			has = true
		}
		slotted[key] = has && t.HasSlot
	}

	var reserved []reservation
	for _, key := range order {
		gen, ok := e.ledger.reserve(spec.Kind, key, slotted[key], seenAt)
		if !ok {
			rr.Skipped++
			continue
		}
		reserved = append(reserved, reservation{key: key, gen: gen})
	}
	return reserved
}

// resolveBatch fetches every reservation concurrently and reports progress.
// Overlapping batches of one kind share its progress element.
func (e *Enricher) resolveBatch(ctx context.Context, spec entity.RegionSpec, reserved []reservation, rr *entity.RegionReport) {
	region := string(spec.Kind)
	total := len(reserved)
	e.metrics.AddInflight(region, float64(total))

	if spec.Progress {
		e.progress.start(spec.Kind, total, e.progressWriter(ctx, spec))
		defer e.progress.finish(spec.Kind, e.progressWriter(ctx, spec))
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, r := range reserved {
		g.Go(func() error {
			kind := e.resolveTarget(ctx, spec, r)

			mu.Lock()
			defer mu.Unlock()
			switch kind {
			case entity.AnnotationPhotos:
				rr.Photos++
			case entity.AnnotationEmpty:
				rr.Empty++
			default:
				rr.Failed++
			}
			if spec.Progress {
				e.progress.step(spec.Kind, e.progressWriter(ctx, spec))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// resolveTarget fetches one key and writes the final annotation. Errors stay
// inside: the slot shows "Error" and the pass carries on.
func (e *Enricher) resolveTarget(ctx context.Context, spec entity.RegionSpec, r reservation) entity.AnnotationKind {
	region := string(spec.Kind)
	defer e.metrics.AddInflight(region, -1)

	ctx, span := tracer.Start(ctx, "resolveTarget", trace.WithAttributes(
		attribute.String("region", region),
		attribute.String("key", r.key),
	))
	defer span.End()

	start := time.Now()
	data, err := e.resolver.Resolve(ctx, r.key)
	e.metrics.ObserveResolve(region, time.Since(start).Seconds())

	var a entity.Annotation
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		e.metrics.IncResolve(region, "error")
		e.logger.Warn("failed to resolve side data",
			zap.String("region", region), zap.String("key", r.key), zap.Error(err))
		a = entity.Annotation{Kind: entity.AnnotationError}
	case data != nil && data.Payload != "" && data.Payload != entity.PayloadFound:
		e.metrics.IncResolve(region, "missing_payload")
		e.logger.Warn("photo payload not found in activity page",
			zap.String("region", region), zap.String("key", r.key), zap.String("payload", string(data.Payload)))
		a = entity.AnnotationFor(nil)
	default:
		a = entity.AnnotationFor(data)
		if a.Kind == entity.AnnotationPhotos {
			e.metrics.IncResolve(region, "photos")
		} else {
			e.metrics.IncResolve(region, "empty")
		}
	}

	mu := e.slotMu[spec.Kind]
	mu.Lock()
	defer mu.Unlock()
	if !e.ledger.resolve(spec.Kind, r.key, r.gen, data, err) {
		e.logger.Debug("annotation discarded while in flight", zap.String("region", region), zap.String("key", r.key))
		return a.Kind
	}
	e.writeSlot(ctx, spec, r.key, a)
	return a.Kind
}

func (e *Enricher) writeSlot(ctx context.Context, spec entity.RegionSpec, key string, a entity.Annotation) {
	err := e.page.WriteSlot(ctx, spec, key, a)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrRegionGone):
		e.logger.Debug("target left the document before its slot was written",
			zap.String("region", string(spec.Kind)), zap.String("key", key))
	default:
		e.logger.Warn("failed to write annotation slot",
			zap.String("region", string(spec.Kind)), zap.String("key", key), zap.Error(err))
	}
}

func (e *Enricher) progressWriter(ctx context.Context, spec entity.RegionSpec) func(done, total int) {
	return func(done, total int) {
		if err := e.page.SetProgress(ctx, spec, done, total); err != nil {
			e.logger.Debug("failed to update progress", zap.String("region", string(spec.Kind)), zap.Error(err))
		}
	}
}
