package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/adapter/chromedp_page"
	"github.com/user/enricher-service/internal/adapter/htmldoc"
	"github.com/user/enricher-service/internal/adapter/http_resolver"
	"github.com/user/enricher-service/internal/adapter/memory"
	redis_adapter "github.com/user/enricher-service/internal/adapter/redis"
	"github.com/user/enricher-service/internal/delivery/http/handler"
	"github.com/user/enricher-service/internal/delivery/http/router"
	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/internal/proxy"
	"github.com/user/enricher-service/internal/repository"
	"github.com/user/enricher-service/internal/usecase"
	"github.com/user/enricher-service/pkg/config"
	"github.com/user/enricher-service/pkg/logger"
	"github.com/user/enricher-service/pkg/metrics"
)

func main() {
	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// --- Side data resolver ---
	agents, err := proxy.NewManager(cfg.ProxyList(), nil)
	if err != nil {
		log.Fatal("invalid proxy list", zap.Error(err))
	}
	resolver, err := http_resolver.New(http_resolver.Options{
		BaseURL:      cfg.BaseURL,
		Cookie:       cfg.SessionCookie,
		Timeout:      cfg.FetchTimeoutDuration(),
		MaxRedirects: cfg.MaxRedirects,
		PhotoSize:    cfg.PhotoSize,
	}, agents, log)
	if err != nil {
		log.Fatal("failed to create resolver", zap.Error(err))
	}

	switch cfg.Mode {
	case "static":
		err = runStatic(ctx, cfg, resolver, m, log)
	case "live":
		err = runLive(ctx, cfg, resolver, agents, reg, m, log)
	default:
		err = fmt.Errorf("unknown ENRICH_MODE %q", cfg.Mode)
	}
	if err != nil {
		log.Fatal("enricher stopped", zap.Error(err))
	}
	log.Info("enricher exiting")
}

// runStatic enriches a saved leaderboard page once and writes the result.
func runStatic(ctx context.Context, cfg *config.Config, resolver repository.SideDataResolver, m *metrics.Metrics, log *zap.Logger) error {
	in, err := os.Open(cfg.StaticInput)
	if err != nil {
		return fmt.Errorf("open static input: %w", err)
	}
	defer in.Close()

	doc, err := htmldoc.New(in)
	if err != nil {
		return fmt.Errorf("parse static input: %w", err)
	}

	enricher, err := usecase.NewEnricher(doc, resolver, memory.NewGuardRepo(), cfg.Regions(), m, log)
	if err != nil {
		return err
	}
	report, err := enricher.Pass(ctx)
	if err != nil {
		log.Warn("static pass incomplete", zap.Error(err))
	}
	log.Info("static pass finished",
		zap.Int("fetches", report.Fetches()),
		zap.Duration("duration", report.Duration))

	html, err := doc.HTML()
	if err != nil {
		return fmt.Errorf("render document: %w", err)
	}
	if cfg.StaticOutput == "" {
		_, err = fmt.Fprintln(os.Stdout, html)
		return err
	}
	return os.WriteFile(cfg.StaticOutput, []byte(html), 0o644)
}

// runLive keeps the leaderboard page open in Chrome and re-enriches it every
// time the site changes it, until a signal arrives or the tab goes away.
func runLive(
	ctx context.Context,
	cfg *config.Config,
	resolver repository.SideDataResolver,
	agents *proxy.Manager,
	reg *prometheus.Registry,
	m *metrics.Metrics,
	log *zap.Logger,
) error {
	if cfg.PageURL == "" {
		return errors.New("PAGE_URL is required in live mode")
	}

	pingers := map[string]handler.Pinger{}
	var guard repository.ProcessingGuard = memory.NewGuardRepo()
	if cfg.GuardBackend == "redis" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		redisGuard := redis_adapter.NewGuardRepo(rdb, cfg.PageURL, cfg.GuardTTLDuration())
		guard = redisGuard
		pingers["redis"] = redisGuard
		log.Info("redis connection established", zap.String("addr", cfg.RedisAddr))
	}

	page, err := chromedp_page.Open(ctx, chromedp_page.Options{
		URL:         cfg.PageURL,
		Cookie:      cfg.SessionCookie,
		Headless:    cfg.Headless,
		LoadTimeout: cfg.PageLoadTimeoutDuration(),
		UserAgent:   agents.GetUserAgent(),
	}, log)
	if err != nil {
		return err
	}
	defer page.Close()

	enricher, err := usecase.NewEnricher(page, resolver, guard, cfg.Regions(), m, log)
	if err != nil {
		return err
	}

	// --- HTTP Server ---
	apiHandler := handler.NewHandler(enricher, pingers, log)
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router.New(apiHandler, m, reg, log),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("could not listen on port", zap.String("port", cfg.ServerPort), zap.Error(err))
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-page.Done():
			log.Warn("browser tab closed")
			cancel()
		case <-runCtx.Done():
		}
	}()

	runner := usecase.NewRunner(enricher, page, usecase.RunnerConfig{
		Window:   time.Duration(cfg.DebounceWindow) * time.Millisecond,
		MaxDelay: time.Duration(cfg.DebounceMaxDelay) * time.Millisecond,
		OnPass: func(report *entity.PassReport, err error) {
			if report != nil && report.Fetches() > 0 {
				log.Info("enrichment pass finished",
					zap.Int("fetches", report.Fetches()),
					zap.Duration("duration", report.Duration))
			}
		},
	}, m, log)
	runErr := runner.Run(runCtx)

	log.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	return runErr
}
