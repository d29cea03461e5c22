package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/internal/repository"
	"github.com/user/enricher-service/pkg/metrics"
)

const (
	defaultDebounceWindow   = 250 * time.Millisecond
	defaultDebounceMaxDelay = 2 * time.Second
)

// Passer is the part of the Enricher the Runner drives.
type Passer interface {
	Pass(ctx context.Context) (*entity.PassReport, error)
	Discard(ctx context.Context, kind entity.RegionKind) error
}

// RunnerConfig controls debouncing of mutation events.
type RunnerConfig struct {
	// Window is the quiet period after the last event before a pass starts.
	Window time.Duration
	// MaxDelay bounds how long a steady stream of events can postpone a pass.
	MaxDelay time.Duration
	// OnPass is called after every dispatched pass. Optional.
	OnPass func(*entity.PassReport, error)
}

func (c *RunnerConfig) defaults() {
	if c.Window <= 0 {
		c.Window = defaultDebounceWindow
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultDebounceMaxDelay
	}
	if c.MaxDelay < c.Window {
		c.MaxDelay = c.Window
	}
}

// Runner is the single consumer of document mutation events. It drains the
// event channel, coalesces bursts and dispatches passes. Passes run in their
// own goroutines, so a slow pass never delays the next notification.
type Runner struct {
	passer  Passer
	source  repository.MutationSource
	cfg     RunnerConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewRunner(p Passer, source repository.MutationSource, cfg RunnerConfig, m *metrics.Metrics, logger *zap.Logger) *Runner {
	cfg.defaults()
	return &Runner{
		passer:  p,
		source:  source,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
	}
}

// Run dispatches an eager pass, then re-runs after every debounced burst of
// events until ctx is done or the source closes. It waits for in-flight
// passes before returning.
func (r *Runner) Run(ctx context.Context) error {
	defer r.wg.Wait()
	r.dispatch(ctx)

	var (
		timer        *time.Timer
		timerC       <-chan time.Time
		firstPending time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, timerC = nil, nil
	}
	defer stopTimer()

	events := r.source.Events()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				if timerC != nil {
					stopTimer()
					r.dispatch(ctx)
				}
				return nil
			}
			r.metrics.IncMutation(string(ev.Kind))

			if ev.Kind == entity.EventSelection {
				if err := r.passer.Discard(ctx, ev.Region); err != nil {
					r.logger.Warn("failed to discard annotations after selection change",
						zap.String("region", string(ev.Region)), zap.Error(err))
				}
			}

			now := time.Now()
			if timerC == nil {
				firstPending = now
			}
			wait := r.cfg.Window
			if remaining := r.cfg.MaxDelay - now.Sub(firstPending); remaining < wait {
				wait = max(remaining, 0)
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(wait)
			timerC = timer.C

		case <-timerC:
			timer, timerC = nil, nil
			r.dispatch(ctx)
		}
	}
}

func (r *Runner) dispatch(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		report, err := r.passer.Pass(ctx)
		if err != nil {
			r.logger.Error("enrichment pass incomplete", zap.Error(err))
		}
		if report != nil {
			r.logger.Debug("enrichment pass finished",
				zap.Int("fetches", report.Fetches()),
				zap.Duration("duration", report.Duration))
		}
		if r.cfg.OnPass != nil {
			r.cfg.OnPass(report, err)
		}
	}()
}
