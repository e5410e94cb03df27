package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/bangalorenow/incident-heatmap/internal/adapter/http"
	"github.com/bangalorenow/incident-heatmap/internal/domain"
	"github.com/bangalorenow/incident-heatmap/internal/heatmap"
	"github.com/bangalorenow/incident-heatmap/internal/observability"
	"github.com/bangalorenow/incident-heatmap/internal/store"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockPublisher struct {
	mu        sync.Mutex
	published []domain.Report
	err       error
}

func (m *mockPublisher) Publish(_ context.Context, reports ...domain.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, reports...)
	return nil
}

type mockStore struct {
	reports []domain.Report
	lastQ   store.Query
	err     error
}

func (m *mockStore) ListInBBox(_ context.Context, q store.Query) ([]domain.Report, error) {
	m.lastQ = q
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Report
	for _, r := range m.reports {
		if inBBox(q.BBox, r.Geo) {
			out = append(out, r)
		}
	}
	return out, nil
}

// inBBox mirrors the store's inclusive bounding-box filter.
func inBBox(b store.BBox, g domain.Geo) bool {
	return g.Lat >= b.MinLat && g.Lat <= b.MaxLat && g.Lon >= b.MinLon && g.Lon <= b.MaxLon
}

func (m *mockStore) Get(_ context.Context, id string) (domain.Report, error) {
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Report{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

type mockGeocoder struct {
	result domain.GeocodingResult
	err    error
}

func (m *mockGeocoder) ForwardGeocode(_ context.Context, _ string) (domain.GeocodingResult, error) {
	return m.result, m.err
}

func (m *mockGeocoder) ReverseGeocode(_ context.Context, _, _ float64) (domain.GeocodingResult, error) {
	return m.result, m.err
}

type testEnv struct {
	srv       *httpadapter.Server
	publisher *mockPublisher
	store     *mockStore
}

func newTestEnv(t *testing.T, readyErr error, geocoder domain.Geocoder) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := observability.NewMetricsForTesting()

	st := &mockStore{reports: []domain.Report{
		{ID: "r-1", Geo: domain.Geo{Lat: 12.9716, Lon: 77.5946}, Severity: domain.SeverityHigh},
		{ID: "r-2", Geo: domain.Geo{Lat: 12.9716, Lon: 77.5946}, Severity: domain.SeverityHigh},
		{ID: "r-3", Geo: domain.Geo{Lat: 13.0358, Lon: 77.5970}, Severity: domain.SeverityLow},
	}}
	pub := &mockPublisher{}
	svc := heatmap.NewService(st, domain.NewScorer(domain.DefaultScoringProfile()), 0, metrics, logger)

	api := httpadapter.API{
		Publisher: pub,
		Reports:   st,
		Heatmap:   svc,
		Geocoder:  geocoder,
		Metrics:   metrics,
	}
	return &testEnv{
		srv:       httpadapter.NewServer(":0", api, &mockReadiness{err: readyErr}, logger),
		publisher: pub,
		store:     st,
	}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestHealthzReturns200(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	env := newTestEnv(t, errors.New("not ready yet"), nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "not ready yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func validForm() url.Values {
	return url.Values{
		"uid":       {"u-42"},
		"title":     {"Broken footpath"},
		"latitude":  {"12.9716"},
		"longitude": {"77.5946"},
		"url":       {"https://img.example/footpath.jpg"},
		"severity":  {"medium"},
	}
}

func TestSubmitReport_URLEncodedForm(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/send-report", strings.NewReader(validForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var body struct {
		Message string        `json:"message"`
		Report  domain.Report `json:"report"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "Report received", body.Message)
	assert.Equal(t, domain.SeverityMedium, body.Report.Severity)
	assert.Equal(t, "user", body.Report.Source)
	assert.NotEmpty(t, body.Report.ID)

	require.Len(t, env.publisher.published, 1)
	assert.Equal(t, body.Report.ID, env.publisher.published[0].ID)
	assert.Equal(t, "Broken footpath", env.publisher.published[0].Title)
}

func TestSubmitReport_MultipartForm(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range validForm() {
		require.NoError(t, mw.WriteField(k, v[0]))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.publisher.published, 1)
	assert.Equal(t, "u-42", env.publisher.published[0].UID)
}

func TestSubmitReport_JSON(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `{"uid":"u-7","latitude":12.9352,"longitude":"77.6245","url":"https://img.example/x.jpg","severity":"critical"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	rec := env.do(req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, env.publisher.published, 1)
	assert.Equal(t, domain.Geo{Lat: 12.9352, Lon: 77.6245}, env.publisher.published[0].Geo)
}

func TestSubmitReport_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
		want   string
	}{
		{"invalid severity", func(v url.Values) { v.Set("severity", "urgent") }, "invalid severity"},
		{"missing uid", func(v url.Values) { v.Del("uid") }, "uid"},
		{"bad latitude", func(v url.Values) { v.Set("latitude", "north") }, "invalid coordinates"},
		{"latitude out of range", func(v url.Values) { v.Set("latitude", "91") }, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil, nil)
			form := validForm()
			tt.mutate(form)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

			rec := env.do(req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]string
			decodeBody(t, rec, &body)
			assert.Contains(t, body["error"], tt.want)
			assert.Empty(t, env.publisher.published)
		})
	}
}

func TestSubmitReport_UnsupportedContentType(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader("hello"))
	req.Header.Set("Content-Type", "text/plain")

	rec := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReport_PublishFailure(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.publisher.err = errors.New("leader not available")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader(validForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := env.do(req)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "failed to publish report", body["error"])
}

func TestGetReport(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/r-3", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var r domain.Report
	decodeBody(t, rec, &r)
	assert.Equal(t, domain.SeverityLow, r.Severity)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/reports/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHeatmap(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/heatmap?bbox=12.9,77.5,13.0,77.7&limit=100", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res heatmap.Result
	decodeBody(t, rec, &res)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, 5.625, res.MaxIntensity)
	assert.Equal(t, 100, env.store.lastQ.Limit)
}

func TestHeatmap_Since(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/heatmap?bbox=12.9,77.5,13.1,77.7&since=2026-07-01T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC), env.store.lastQ.Since.UTC())

	before := time.Now()
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/heatmap?bbox=12.9,77.5,13.1,77.7&since=24h", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.WithinDuration(t, before.Add(-24*time.Hour), env.store.lastQ.Since, 5*time.Second)
}

func TestHeatmap_BadRequests(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, q := range []string{
		"",
		"?bbox=1,2,3",
		"?bbox=13,77.5,12,77.7",
		"?bbox=12.9,77.5,13.0,77.7&limit=0",
		"?bbox=12.9,77.5,13.0,77.7&since=yesterday",
	} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/heatmap"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestHeatmap_StoreError(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.store.err = errors.New("connection refused")

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/heatmap?bbox=12.9,77.5,13.0,77.7", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestScore(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	body := `[{"lat":12.9716,"lon":77.5946,"severity":"critical"},{"lat":12.9716,"lon":77.5946,"severity":"low"}]`

	rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/heatmap/score", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Count   int                   `json:"count"`
		Reports []domain.ScoredReport `json:"reports"`
	}
	decodeBody(t, rec, &res)
	assert.Equal(t, 2, res.Count)
	require.Len(t, res.Reports, 2)
	assert.Equal(t, 4.5, res.Reports[0].Intensity)
	assert.Equal(t, 2.5, res.Reports[1].Intensity)
}

func TestScore_InvalidSeverity(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	for _, body := range []string{
		`[{"lat":12.9,"lon":77.5,"severity":"urgent"}]`,
		`[{"lat":12.9,"lon":77.5}]`,
		`not json`,
	} {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/api/v1/heatmap/score", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestGeocode(t *testing.T) {
	geo := &mockGeocoder{result: domain.GeocodingResult{
		Lat:              12.9352,
		Lon:              77.6245,
		FormattedAddress: "Koramangala, Bengaluru, Karnataka, India",
		Area:             "Koramangala",
	}}
	env := newTestEnv(t, nil, geo)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/geocode?address=Koramangala", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "Koramangala", body["area"])
	assert.InDelta(t, 12.9352, body["lat"], 1e-9)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/v1/geocode", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGeocode_NoResult(t *testing.T) {
	env := newTestEnv(t, nil, &mockGeocoder{})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/geocode?address=nowhere", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGeocode_ProviderError(t *testing.T) {
	env := newTestEnv(t, nil, &mockGeocoder{err: errors.New("REQUEST_DENIED")})

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/geocode?address=MG+Road", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestGeocode_Disabled(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/v1/geocode?address=MG+Road", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "geocoding is disabled", body["error"])
}
