package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/enricher-service/internal/delivery/http/handler"
	"github.com/user/enricher-service/internal/delivery/http/response"
	"github.com/user/enricher-service/internal/delivery/http/router"
	"github.com/user/enricher-service/internal/entity"
	"github.com/user/enricher-service/pkg/metrics"
)

type MockEnrichment struct {
	mock.Mock
}

func (m *MockEnrichment) Pass(ctx context.Context) (*entity.PassReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PassReport), args.Error(1)
}

func (m *MockEnrichment) Snapshot() []entity.TargetStatus {
	return m.Called().Get(0).([]entity.TargetStatus)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newServer(t *testing.T, e handler.Enrichment, pingers map[string]handler.Pinger) (*httptest.Server, *metrics.Metrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := handler.NewHandler(e, pingers, zap.NewNop())
	srv := httptest.NewServer(router.New(h, m, reg, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, m
}

func TestHandlePass(t *testing.T) {
	e := new(MockEnrichment)
	e.On("Pass", mock.Anything).Return(&entity.PassReport{
		StartedAt: time.Now(),
		Duration:  120 * time.Millisecond,
		Regions: []entity.RegionReport{
			{Kind: entity.RegionTable, Present: true, Reserved: 3, Photos: 2, Failed: 1},
		},
	}, nil)
	srv, m := newServer(t, e, nil)

	resp, err := http.Post(srv.URL+"/api/pass", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body response.PassResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "completed", body.Status)
	assert.Equal(t, 3, body.Fetches)
	assert.Equal(t, int64(120), body.DurationMS)
	require.Len(t, body.Regions, 1)
	assert.Equal(t, entity.RegionTable, body.Regions[0].Kind)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/pass", "200")))
	e.AssertExpectations(t)
}

func TestHandlePass_Partial(t *testing.T) {
	e := new(MockEnrichment)
	e.On("Pass", mock.Anything).Return(&entity.PassReport{}, errors.New("region popup: locate region: gone"))
	srv, _ := newServer(t, e, nil)

	resp, err := http.Post(srv.URL+"/api/pass", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body response.PassResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "partial", body.Status)
	assert.Contains(t, body.Error, "locate region")
}

func TestHandlePass_MethodNotAllowed(t *testing.T) {
	srv, _ := newServer(t, new(MockEnrichment), nil)

	resp, err := http.Get(srv.URL + "/api/pass")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandleTargets(t *testing.T) {
	e := new(MockEnrichment)
	e.On("Snapshot").Return([]entity.TargetStatus{
		{Region: entity.RegionPopup, Key: "/segment_efforts/9", State: entity.StatePlaceholder},
		{Region: entity.RegionTable, Key: "/segment_efforts/1", State: entity.StateResolvedSuccess, Photos: 2},
	})
	srv, _ := newServer(t, e, nil)

	resp, err := http.Get(srv.URL + "/api/targets")
	require.NoError(t, err)
	defer resp.Body.Close()
	var all response.TargetsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	assert.Equal(t, 2, all.Count)

	resp, err = http.Get(srv.URL + "/api/targets?region=table")
	require.NoError(t, err)
	defer resp.Body.Close()
	var table response.TargetsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&table))
	require.Equal(t, 1, table.Count)
	assert.Equal(t, "/segment_efforts/1", table.Targets[0].Key)
	assert.Equal(t, 2, table.Targets[0].Photos)
}

func TestHandleHealthCheck(t *testing.T) {
	srv, _ := newServer(t, new(MockEnrichment), map[string]handler.Pinger{
		"redis": pingerFunc(func(context.Context) error { return nil }),
	})

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["redis"])
}

func TestHandleHealthCheck_Unhealthy(t *testing.T) {
	srv, _ := newServer(t, new(MockEnrichment), map[string]handler.Pinger{
		"redis": pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, m := newServer(t, new(MockEnrichment), nil)
	m.IncPass("table", "completed")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	buf := new(strings.Builder)
	_, err = io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `enricher_passes_total{outcome="completed",region="table"} 1`)
}
