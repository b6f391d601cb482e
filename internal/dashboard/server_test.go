package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"affiliateflow/config"
	"affiliateflow/internal/warehouse"
	"affiliateflow/logger"
)

type fakeStore struct {
	limit int
	err   error
}

func (f *fakeStore) ETLStatus(context.Context) ([]warehouse.ETLStatusRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []warehouse.ETLStatusRow{{DataSource: "Affiliate A1", ETLStatus: "SUCCESS", TotalRecords: 42}}, nil
}

func (f *fakeStore) TopAffiliates(_ context.Context, limit int) ([]warehouse.TopAffiliateRow, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []warehouse.TopAffiliateRow{{AffiliateName: "Affiliate A1", TradingVolume30d: 1000}}, nil
}

func (f *fakeStore) AffiliateMetrics(context.Context) ([]warehouse.AffiliateMetricsRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []warehouse.AffiliateMetricsRow{{AffiliateName: "Affiliate A1", TotalCustomers: 7}}, nil
}

func (f *fakeStore) ETLIssues(context.Context) ([]warehouse.ETLIssueRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []warehouse.ETLIssueRow{}, nil
}

func newTestServer(t *testing.T, store Store) http.Handler {
	t.Helper()
	srv := NewServer(config.DashboardConfig{
		Enabled:           true,
		Address:           ":0",
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	}, store, logger.GetLogger())
	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter failed: %v", err)
	}
	return router
}

func doRequest(handler http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestETLStatusEndpoint(t *testing.T) {
	handler := newTestServer(t, &fakeStore{})

	rec := doRequest(handler, "/api/etl-status")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var rows []warehouse.ETLStatusRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(rows) != 1 || rows[0].DataSource != "Affiliate A1" {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestTopAffiliatesLimit(t *testing.T) {
	store := &fakeStore{}
	handler := newTestServer(t, store)

	if rec := doRequest(handler, "/api/top-affiliates?limit=5"); rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if store.limit != 5 {
		t.Errorf("limit not forwarded: %d", store.limit)
	}

	// Default applies when the parameter is absent.
	doRequest(handler, "/api/top-affiliates")
	if store.limit != 10 {
		t.Errorf("expected default limit 10, got %d", store.limit)
	}
}

func TestTopAffiliatesRejectsBadLimit(t *testing.T) {
	handler := newTestServer(t, &fakeStore{})

	for _, raw := range []string{"abc", "-3", "0"} {
		if rec := doRequest(handler, "/api/top-affiliates?limit="+raw); rec.Code != http.StatusBadRequest {
			t.Errorf("limit %q: expected 400, got %d", raw, rec.Code)
		}
	}
}

func TestStoreErrorReturns500(t *testing.T) {
	handler := newTestServer(t, &fakeStore{err: errors.New("connection refused")})

	for _, path := range []string{"/api/etl-status", "/api/top-affiliates", "/api/affiliate-metrics", "/api/etl-issues"} {
		if rec := doRequest(handler, path); rec.Code != http.StatusInternalServerError {
			t.Errorf("%s: expected 500, got %d", path, rec.Code)
		}
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := NewServer(config.DashboardConfig{
		Enabled:           true,
		Address:           ":0",
		RequestsPerSecond: 0.001,
		BurstSize:         2,
	}, &fakeStore{}, logger.GetLogger())
	handler, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter failed: %v", err)
	}

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		codes = append(codes, doRequest(handler, "/healthz").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
		t.Fatalf("burst requests should pass: %v", codes)
	}
	if codes[2] != http.StatusTooManyRequests || codes[3] != http.StatusTooManyRequests {
		t.Fatalf("requests beyond burst should be rejected: %v", codes)
	}
}

func TestDisabledServerIsNil(t *testing.T) {
	srv := NewServer(config.DashboardConfig{Enabled: false}, &fakeStore{}, logger.GetLogger())
	if srv != nil {
		t.Fatalf("disabled dashboard must return nil server")
	}
	if err := srv.Run(context.Background()); err != nil {
		t.Fatalf("nil server Run must be a no-op, got %v", err)
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                "0.0.0.0:8080",
		":9090":           "0.0.0.0:9090",
		"localhost":       "localhost:8080",
		"127.0.0.1":       "127.0.0.1:8080",
		"0.0.0.0:8081":    "0.0.0.0:8081",
		"http://app:8082": "app:8082",
	}
	for in, want := range cases {
		if got := normalizeAddress(in); got != want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
