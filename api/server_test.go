package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffcast/forecast"
	"staffcast/pkg/domainerr"
)

// stubService returns canned forecast points and records override calls.
type stubService struct {
	points      []forecast.Point
	forecastErr error
	overrideErr error

	lastKey   forecast.SeriesKey
	lastDay   time.Time
	lastValue float64
	lastActor string
	cleared   bool
}

func (s *stubService) GetForecast(_ context.Context, key forecast.SeriesKey, start time.Time, horizonDays int) ([]forecast.Point, error) {
	s.lastKey = key
	if s.forecastErr != nil {
		return nil, s.forecastErr
	}
	return s.points, nil
}

func (s *stubService) SetOverride(_ context.Context, key forecast.SeriesKey, day time.Time, value float64, actor, reason string) (*forecast.Override, error) {
	if s.overrideErr != nil {
		return nil, s.overrideErr
	}
	s.lastKey = key
	s.lastDay = day
	s.lastValue = value
	s.lastActor = actor
	return &forecast.Override{
		ID:     42,
		Key:    key,
		Day:    day,
		Value:  value,
		Reason: reason,
		SetBy:  actor,
		SetAt:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubService) ClearOverride(_ context.Context, key forecast.SeriesKey, day time.Time) error {
	s.cleared = true
	return nil
}

type stubObservations struct {
	recorded    []forecast.Observation
	recordErr   error
	predictions []forecast.PredictionRecord
}

func (s *stubObservations) RecordObservations(_ context.Context, observations []forecast.Observation) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.recorded = append(s.recorded, observations...)
	return nil
}

func (s *stubObservations) ListRecentPredictions(context.Context, int64, int) ([]forecast.PredictionRecord, error) {
	return s.predictions, nil
}

type stubRegistry struct {
	models []forecast.ModelRecord
}

func (s *stubRegistry) ActiveModel(context.Context, forecast.SeriesKey) (*forecast.ModelRecord, error) {
	return nil, nil
}

func (s *stubRegistry) SaveAndActivate(context.Context, *forecast.ModelRecord) error { return nil }

func (s *stubRegistry) ListModels(context.Context, int64) ([]forecast.ModelRecord, error) {
	return s.models, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type fixture struct {
	svc          *stubService
	observations *stubObservations
	registry     *stubRegistry
	server       *Server
}

func newFixture(configure func(*Config)) *fixture {
	f := &fixture{
		svc:          &stubService{},
		observations: &stubObservations{},
		registry:     &stubRegistry{},
	}
	config := DefaultConfig()
	if configure != nil {
		configure(config)
	}
	f.server = NewServer(f.svc, f.observations, f.registry, nil, zerolog.Nop(), config)
	return f
}

func (f *fixture) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func testPoints(start time.Time, n int) []forecast.Point {
	points := make([]forecast.Point, n)
	for i := range points {
		points[i] = forecast.Point{
			Day:       start.AddDate(0, 0, i),
			Predicted: 19,
			Lower:     15.5,
			Upper:     22.5 + float64(i),
		}
	}
	return points
}

func TestGetForecastEndpoint(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	f := newFixture(nil)
	f.svc.points = testPoints(start, 7)
	f.svc.points[3].Predicted = 25
	f.svc.points[3].IsOverride = true

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/forecast/forecast?property_id=1&role=housekeeping&start_date=2026-09-01&horizon=7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ForecastResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.PropertyID)
	assert.Equal(t, "housekeeping", resp.Role)
	assert.Equal(t, "2026-09-01", resp.StartDate)
	require.Len(t, resp.Predictions, 7)

	assert.Equal(t, "2026-09-04", resp.Predictions[3].Date)
	assert.Equal(t, 25.0, resp.Predictions[3].Predicted)
	assert.True(t, resp.Predictions[3].IsOverride)
	assert.False(t, resp.Predictions[0].IsOverride)
	for i, p := range resp.Predictions {
		assert.Equal(t, start.AddDate(0, 0, i).Format(forecast.DateLayout), p.Date)
	}
}

func TestGetForecastDefaultsRole(t *testing.T) {
	f := newFixture(nil)
	f.svc.points = testPoints(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), 7)

	rec := f.do(t, httptest.NewRequest(http.MethodGet,
		"/api/v1/forecast/forecast?property_id=3&start_date=2026-09-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "housekeeping", f.svc.lastKey.Role)
	assert.Equal(t, int64(3), f.svc.lastKey.PropertyID)
}

func TestGetForecastBadRequests(t *testing.T) {
	f := newFixture(nil)

	for name, target := range map[string]string{
		"missing property": "/api/v1/forecast/forecast?start_date=2026-09-01",
		"bad property":     "/api/v1/forecast/forecast?property_id=zero&start_date=2026-09-01",
		"missing start":    "/api/v1/forecast/forecast?property_id=1",
		"bad start":        "/api/v1/forecast/forecast?property_id=1&start_date=tomorrow",
		"bad horizon":      "/api/v1/forecast/forecast?property_id=1&start_date=2026-09-01&horizon=none",
	} {
		rec := f.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestGetForecastErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{domainerr.NewUnknownSeries("property=9 role=spa"), http.StatusNotFound},
		{domainerr.NewInvalidRequest("horizon too large"), http.StatusBadRequest},
		{domainerr.NewStoreUnavailable("load overrides", fmt.Errorf("timeout")), http.StatusServiceUnavailable},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		f := newFixture(nil)
		f.svc.forecastErr = tc.err
		rec := f.do(t, httptest.NewRequest(http.MethodGet,
			"/api/v1/forecast/forecast?property_id=9&role=spa&start_date=2026-09-01", nil))
		assert.Equal(t, tc.status, rec.Code, "%v", tc.err)
	}
}

func TestSetOverrideEndpoint(t *testing.T) {
	f := newFixture(nil)

	body := `{"property_id":1,"role":"housekeeping","date":"2026-09-04","override_value":25,"reason":"conference block"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast/override", strings.NewReader(body))
	req.Header.Set("X-Actor", "gm-ana")

	rec := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp OverrideResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.ID)
	assert.Equal(t, "2026-09-04", resp.Date)
	assert.Equal(t, 25.0, resp.OverrideValue)
	assert.Equal(t, "conference block", resp.Reason)
	assert.Equal(t, "gm-ana", resp.SetBy)
	assert.Equal(t, "gm-ana", f.svc.lastActor)
}

func TestSetOverrideBadRequests(t *testing.T) {
	f := newFixture(nil)

	for name, body := range map[string]string{
		"not json":     `{`,
		"no property":  `{"role":"housekeeping","date":"2026-09-04","override_value":25}`,
		"no role":      `{"property_id":1,"date":"2026-09-04","override_value":25}`,
		"invalid date": `{"property_id":1,"role":"housekeeping","date":"09/04/2026","override_value":25}`,
	} {
		rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/forecast/override", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestSetOverrideDomainRejection(t *testing.T) {
	f := newFixture(nil)
	f.svc.overrideErr = domainerr.NewInvalidOverride("override date 2026-08-01 is in the past")

	body := `{"property_id":1,"role":"housekeeping","date":"2026-08-01","override_value":10}`
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/forecast/override", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_OVERRIDE")
}

func TestClearOverrideEndpoint(t *testing.T) {
	f := newFixture(nil)

	rec := f.do(t, httptest.NewRequest(http.MethodDelete,
		"/api/v1/forecast/override?property_id=1&role=housekeeping&date=2026-09-04", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.svc.cleared)
}

func TestIngestObservations(t *testing.T) {
	f := newFixture(func(c *Config) { c.IngestAPIKey = "sekrit" })
	body := `{"observations":[{"property_id":1,"role":"housekeeping","date":"2026-08-31","demand":18}]}`

	// Missing key is rejected before the handler runs.
	rec := f.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/forecast/observations", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.observations.recorded)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/forecast/observations", strings.NewReader(body))
	req.Header.Set("X-API-Key", "sekrit")
	rec = f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ingested":1`)
	require.Len(t, f.observations.recorded, 1)
	assert.Equal(t, 18.0, f.observations.recorded[0].Demand)
}

func TestIngestEmptyBatch(t *testing.T) {
	f := newFixture(nil)
	rec := f.do(t, httptest.NewRequest(http.MethodPost,
		"/api/v1/forecast/observations", strings.NewReader(`{"observations":[]}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListModelsEndpoint(t *testing.T) {
	f := newFixture(nil)
	f.registry.models = []forecast.ModelRecord{{
		ID:        uuid.New(),
		Key:       forecast.SeriesKey{PropertyID: 1, Role: "housekeeping"},
		Kind:      forecast.KindSeasonalTrend,
		Version:   "20260901T020000Z",
		Params:    json.RawMessage(`{"sigma":1.4}`),
		TrainedAt: time.Date(2026, 9, 1, 2, 0, 0, 0, time.UTC),
		IsActive:  true,
	}}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/models?property_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"seasonal_trend"`)
	assert.Contains(t, rec.Body.String(), `"is_active":true`)
}

func TestListPredictionsOmitsNilModelID(t *testing.T) {
	f := newFixture(nil)
	f.observations.predictions = []forecast.PredictionRecord{{
		BatchID:   uuid.New(),
		ModelID:   uuid.Nil,
		Key:       forecast.SeriesKey{PropertyID: 1, Role: "housekeeping"},
		Day:       time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC),
		Predicted: 19,
		Lower:     15,
		Upper:     23,
		CreatedAt: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC),
	}}

	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/forecast/predictions?property_id=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "model_id")
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(nil)
	rec := f.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "staffcast")

	f.server.pingers = []Pinger{stubPinger{}}
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	f.server.pingers = []Pinger{stubPinger{err: fmt.Errorf("down")}}
	rec = f.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDefaultConfigRequestSizeFromEnv(t *testing.T) {
	assert.Equal(t, int64(4*1024*1024), DefaultConfig().MaxRequestSize)

	t.Setenv("STAFFCAST_MAX_REQUEST_BYTES", "1024")
	assert.Equal(t, int64(1024), DefaultConfig().MaxRequestSize)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/forecast/forecast", nil)
	req.Header.Set("Origin", "https://scheduling.example.com")

	rec := f.do(t, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://scheduling.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
