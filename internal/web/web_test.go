package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclecal/internal/config"
	"cyclecal/internal/forecast"
	"cyclecal/internal/metrics"
	"cyclecal/internal/model"
	"cyclecal/internal/predictor"
	"cyclecal/internal/store"
)

type testEnv struct {
	server *Server
	store  *store.FileStore
	cfg    *config.Config
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()

	st := store.NewFileStore(filepath.Join(cfg.DataDir, "events.json"))
	reg := prometheus.NewRegistry()
	p := predictor.New(
		predictor.WithClock(func() time.Time { return time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC) }),
		predictor.WithLocation(time.UTC),
	)
	svc := forecast.NewService(st, p, nil, metrics.MustNew(reg), forecast.Options{})
	return testEnv{server: NewServer(cfg, st, svc, reg), store: st, cfg: cfg}
}

func (e testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func seed(t *testing.T, st *store.FileStore) {
	t.Helper()
	ctx := context.Background()
	for _, r := range []model.Record{
		{Type: model.RecordPeriod, StartDate: "2026-01-01", EndDate: "2026-01-05"},
		{Type: model.RecordPeriod, StartDate: "2026-01-29", EndDate: "2026-02-02"},
	} {
		_, err := st.Add(ctx, r)
		require.NoError(t, err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestForecastEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env.store)

	rec := env.do(t, http.MethodGet, "/api/forecast?cycles=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Forecast      model.Forecast   `json:"forecast"`
		LowConfidence bool             `json:"low_confidence"`
		Upcoming      []model.Forecast `json:"upcoming"`
		EventCount    int              `json:"event_count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2026-02-26", body.Forecast.NextCycleStart.String())
	assert.Equal(t, "2026-03-02", body.Forecast.NextCycleEnd.String())
	assert.False(t, body.LowConfidence)
	assert.Equal(t, 2, body.EventCount)
	require.Len(t, body.Upcoming, 2)
	assert.Equal(t, "2026-03-26", body.Upcoming[1].NextCycleStart.String())
}

func TestForecastWithoutDataIsLowConfidence(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/forecast/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"low_confidence":true`)
	assert.Contains(t, rec.Body.String(), `"basis":"today"`)
}

func TestStatisticsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"available":false}`, rec.Body.String())

	seed(t, env.store)
	rec = env.do(t, http.MethodGet, "/api/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"available":true`)
	assert.Contains(t, rec.Body.String(), `"gaps":[28]`)
}

func TestEventsCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/events", `{"type":"PERIOD","startDate":"2026-01-01","endDate":"2026-01-05"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var added model.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &added))
	require.NotEmpty(t, added.ID)

	rec = env.do(t, http.MethodPost, "/api/events", `{"type":"PERIOD","startDate":"2026-01-05","endDate":"2026-01-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/events", `{"type":"PERIOD","bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/events/"+added.ID, `{"type":"PERIOD","startDate":"2026-01-02","endDate":"2026-01-05"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"startDate":"2026-01-02"`)

	rec = env.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []model.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = env.do(t, http.MethodDelete, "/api/events/"+added.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/events/"+added.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEventChangesInvalidateForecast(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/forecast/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	seed(t, env.store)
	rec = env.do(t, http.MethodPost, "/api/events", `{"type":"MOOD","date":"2026-02-03","mood":"calm"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/forecast", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"basis":"cycle_starts"`)
}

func TestCalendarFeed(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env.store)

	rec := env.do(t, http.MethodGet, "/calendar.ics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/calendar; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "UID:period-2026-02-26@cyclecal")
	assert.Contains(t, rec.Body.String(), "BEGIN:VALARM")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodGet, "/api/forecast", "")

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cyclecal_forecast_computed_total{path="model"} 1`)
}

func TestBasicAuth(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.BasicAuth = &config.BasicAuthConfig{Username: "me", Password: "secret"}

	rec := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/events", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.SetBasicAuth("me", "secret")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPhaseEndpoint(t *testing.T) {
	env := newTestEnv(t)
	seed(t, env.store)

	rec := env.do(t, http.MethodGet, "/api/phase", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Today string `json:"today"`
		Phase string `json:"phase"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2026-02-10", body.Today)
	assert.Equal(t, "fertile", body.Phase)
}

func TestAdviceEndpointWithoutSource(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/advice?kind=horoscope", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/advice?kind=mood", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
