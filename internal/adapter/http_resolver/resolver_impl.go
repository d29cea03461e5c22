package http_resolver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/internal/repository"
	"github.com/user/enricher-service/pkg/utils"
)

var tracer = otel.Tracer("enricher.http_resolver")

var activityPattern = regexp.MustCompile(`/activities/(\d+)`)

// Agents supplies the proxy and user agent of each request.
type Agents interface {
	ProxyFunc(*http.Request) (*url.URL, error)
	GetUserAgent() string
}

// Options configures the resolver.
type Options struct {
	BaseURL      string
	Cookie       string
	Timeout      time.Duration
	MaxRedirects int
	PhotoSize    string
}

// ResolverImpl resolves an effort link to the photos of its activity. The
// effort URL redirects to the activity page, which embeds the photo list.
type ResolverImpl struct {
	client *resty.Client
	base   *url.URL
	size   string
	agents Agents
	logger *zap.Logger
}

func New(opts Options, agents Agents, logger *zap.Logger) (*ResolverImpl, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PhotoSize == "" {
		opts.PhotoSize = SizeLarge
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if agents != nil {
		transport.Proxy = agents.ProxyFunc
	}

	client := resty.New()
	client.SetTransport(transport)
	client.SetTimeout(opts.Timeout)
	client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(opts.MaxRedirects))
	client.SetHeader("accept", "text/html,application/xhtml+xml")
	if opts.Cookie != "" {
		client.SetHeader("cookie", opts.Cookie)
	}

	return &ResolverImpl{
		client: client,
		base:   base,
		size:   opts.PhotoSize,
		agents: agents,
		logger: logger,
	}, nil
}

// Resolve follows the effort link and extracts the activity's photos.
func (r *ResolverImpl) Resolve(ctx context.Context, key string) (*entity.SideData, error) {
	ctx, span := tracer.Start(ctx, "Resolve", trace.WithAttributes(attribute.String("key", key)))
	defer span.End()

	data, err := r.resolve(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("activity_id", data.ActivityID),
		attribute.Int("photos", len(data.Photos)),
		attribute.String("payload", string(data.Payload)),
	)
	return data, nil
}

func (r *ResolverImpl) resolve(ctx context.Context, key string) (*entity.SideData, error) {
	target, err := utils.ToAbsoluteURL(r.base, strings.TrimSpace(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrFetch, err)
	}

	req := r.client.R().SetContext(ctx)
	if r.agents != nil {
		req.SetHeader("user-agent", r.agents.GetUserAgent())
	}
	res, err := req.Get(target)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrFetch, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s returned %s", repository.ErrFetch, target, res.Status())
	}

	final := target
	if raw := res.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		final = raw.Request.URL.String()
	}
	m := activityPattern.FindStringSubmatch(final)
	if m == nil {
		return nil, fmt.Errorf("%w: %w: %s", repository.ErrFetch, repository.ErrActivityNotFound, final)
	}

	photos, payload, err := ExtractPhotos(bytes.NewReader(res.Body()), r.size)
	if err != nil {
		return nil, fmt.Errorf("%w: parse activity page: %v", repository.ErrFetch, err)
	}

	r.logger.Debug("resolved side data",
		zap.String("key", key),
		zap.String("activity_id", m[1]),
		zap.Int("photos", len(photos)),
		zap.String("payload", string(payload)))

	return &entity.SideData{
		Key:        key,
		ActivityID: m[1],
		Photos:     photos,
		Payload:    payload,
	}, nil
}
