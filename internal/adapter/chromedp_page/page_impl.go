// Package chromedp_page drives the live leaderboard page in a Chrome tab. The
// DOM work runs in a small helper injected into the page; Go renders the
// markup and decides what to write.
package chromedp_page

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/internal/render"
	"github.com/user/enricher-service/internal/repository"
)

const (
	bindingName = "__enricher_binding"
	eventBuffer = 64
)

//go:embed enricher.js
var helperScript string

// Options configures the browser tab.
type Options struct {
	URL         string
	Cookie      string
	Headless    bool
	LoadTimeout time.Duration
	UserAgent   string
}

// PageRepoImpl implements PageRepository and MutationSource over a Chrome tab.
type PageRepoImpl struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	events      chan entity.MutationEvent
	logger      *zap.Logger

	mu     sync.Mutex
	closed bool
}

// Open starts Chrome, installs the helper and the mutation binding, and loads
// the page. The tab lives until Close or until parent is done.
func Open(parent context.Context, opts Options, logger *zap.Logger) (*PageRepoImpl, error) {
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 60 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))

	p := &PageRepoImpl{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		events:      make(chan entity.MutationEvent, eventBuffer),
		logger:      logger,
	}
	chromedp.ListenTarget(tabCtx, p.onTargetEvent)

	// The first Run allocates the browser and must not carry a timeout, or the
	// browser would die with it.
	if err := chromedp.Run(tabCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	loadCtx, cancel := context.WithTimeout(tabCtx, opts.LoadTimeout)
	defer cancel()

	actions := []chromedp.Action{network.Enable()}
	if opts.Cookie != "" {
		actions = append(actions, network.SetExtraHTTPHeaders(network.Headers{"Cookie": opts.Cookie}))
	}
	actions = append(actions,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(helperScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(opts.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err := chromedp.Run(loadCtx, actions...); err != nil {
		p.Close()
		return nil, fmt.Errorf("load %s: %w", opts.URL, err)
	}

	logger.Info("leaderboard page loaded", zap.String("url", opts.URL))
	return p, nil
}

// Events returns the mutation notification channel. It is closed by Close.
func (p *PageRepoImpl) Events() <-chan entity.MutationEvent {
	return p.events
}

// Done is closed when the tab is gone.
func (p *PageRepoImpl) Done() <-chan struct{} {
	return p.tabCtx.Done()
}

// Close shuts down the tab and the browser.
func (p *PageRepoImpl) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	p.tabCancel()
	p.allocCancel()
}

func (p *PageRepoImpl) onTargetEvent(ev interface{}) {
	called, ok := ev.(*runtime.EventBindingCalled)
	if !ok || called.Name != bindingName {
		return
	}

	var event entity.MutationEvent
	if err := json.Unmarshal([]byte(called.Payload), &event); err != nil {
		p.logger.Debug("ignoring malformed mutation payload", zap.String("payload", called.Payload), zap.Error(err))
		return
	}

	// Listener callbacks run on the tab's event goroutine and must not block.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.events <- event:
	default:
	}
}

// call invokes a helper function with JSON-encoded arguments and decodes the
// result into res.
func (p *PageRepoImpl) call(ctx context.Context, res any, fn string, args ...any) error {
	encoded := make([]string, len(args))
	for i, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		encoded[i] = string(b)
	}
	expr := fmt.Sprintf("window.__enricher.%s(%s)", fn, strings.Join(encoded, ","))

	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.Evaluate(expr, res)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", fn, err)
	}
	return nil
}

func (p *PageRepoImpl) RegionPresent(ctx context.Context, spec entity.RegionSpec) (bool, error) {
	var present bool
	err := p.call(ctx, &present, "present", spec)
	return present, err
}

func (p *PageRepoImpl) EnsureHeader(ctx context.Context, spec entity.RegionSpec) error {
	var added bool
	return p.call(ctx, &added, "ensureHeader", spec, render.Header(spec.HeaderLabel))
}

func (p *PageRepoImpl) Targets(ctx context.Context, spec entity.RegionSpec) ([]entity.Target, error) {
	var targets []entity.Target
	if err := p.call(ctx, &targets, "targets", spec); err != nil {
		return nil, err
	}
	return targets, nil
}

func (p *PageRepoImpl) WriteSlot(ctx context.Context, spec entity.RegionSpec, key string, a entity.Annotation) error {
	var matched int
	if err := p.call(ctx, &matched, "writeSlot", spec, key, render.Slot(spec.SlotTag, key, a)); err != nil {
		return err
	}
	if matched == 0 {
		return repository.ErrRegionGone
	}
	return nil
}

func (p *PageRepoImpl) RemoveSlots(ctx context.Context, spec entity.RegionSpec) error {
	var removed int
	return p.call(ctx, &removed, "removeSlots", spec)
}

func (p *PageRepoImpl) SetProgress(ctx context.Context, spec entity.RegionSpec, done, total int) error {
	markup := ""
	if total > 0 {
		markup = render.Progress(spec.Kind, done, total)
	}
	var ok bool
	return p.call(ctx, &ok, "setProgress", spec, render.ProgressSelector(spec.Kind), markup)
}

func (p *PageRepoImpl) WatchSelection(ctx context.Context, spec entity.RegionSpec) error {
	if spec.Selection == "" {
		return nil
	}
	var ok bool
	return p.call(ctx, &ok, "watchSelection", spec)
}
