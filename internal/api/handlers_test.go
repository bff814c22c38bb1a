package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/miradorstack/mirador-slowlog/internal/config"
	"github.com/miradorstack/mirador-slowlog/internal/models"
	"github.com/miradorstack/mirador-slowlog/internal/services"
	"github.com/miradorstack/mirador-slowlog/internal/store"
	"github.com/miradorstack/mirador-slowlog/internal/suggest"
)

func testServer(t *testing.T) http.Handler {
	t.Helper()
	s := store.New()
	if err := s.BeginIngest(); err != nil {
		t.Fatalf("begin: %v", err)
	}
	batch := models.Batch{
		SlowQueries: []models.SlowQueryExecution{
			{
				TSEpoch: 1_777_629_600, Timestamp: "2026-05-01T10:00:00Z",
				DurationMS: 1500, DocsExamined: 50000, DocsReturned: 10,
				QueryHash: "h1", Database: "shop", Collection: "orders",
				Namespace: "shop.orders", PlanSummary: "COLLSCAN",
				QueryText: `{"find": "orders", "filter": {"status": "active"}}`,
				Operation: "find",
			},
			{
				TSEpoch: 1_777_629_700, Timestamp: "2026-05-01T10:01:40Z",
				DurationMS: 400, DocsExamined: 300, DocsReturned: 100,
				QueryHash: "h2", Database: "shop", Collection: "users",
				Namespace: "shop.users", PlanSummary: "IXSCAN { email: 1 }",
				QueryText: `{"find": "users"}`, Operation: "find",
			},
		},
		Authentications: []models.AuthenticationEvent{
			{TSEpoch: 1_777_629_600, User: "svc", Database: "admin", Result: "failure"},
		},
	}
	if err := s.AppendBatch(batch); err != nil {
		t.Fatalf("append: %v", err)
	}
	s.EndIngest()

	analysis := config.AnalysisConfig{
		SlowQueryThresholdMS:   100,
		ExcludeSystemDatabases: true,
		LimitPerCollection:     10,
		MinOccurrences:         3,
		MinAvgDurationMS:       250,
	}
	service := services.NewAnalysisService(nil, s, 100, suggest.DefaultOptions())
	server := NewServer(nil, config.ServerConfig{Address: ":0"}, analysis, service)
	return server.http.Handler
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestPatternsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/patterns?order_by=total_duration_ms")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var report models.PatternReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalGroups != 2 || len(report.Items) != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Items[0].Namespace != "shop.orders" {
		t.Fatalf("ordering wrong: %s", report.Items[0].Namespace)
	}
}

func TestPatternsEndpointFilters(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/patterns?plan_summary=COLLSCAN")
	var report models.PatternReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalGroups != 1 {
		t.Fatalf("plan filter wrong: %+v", report)
	}

	rec = get(t, testServer(t), "/api/v1/patterns?start=2026-05-01T10:01:00Z")
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.TotalExecutions != 1 {
		t.Fatalf("RFC3339 start bound not applied: %+v", report)
	}
}

func TestPatternsEndpointRejectsBadInput(t *testing.T) {
	handler := testServer(t)
	if rec := get(t, handler, "/api/v1/patterns?threshold_ms=abc"); rec.Code != http.StatusBadRequest {
		t.Fatalf("non-numeric threshold: status = %d", rec.Code)
	}
	if rec := get(t, handler, "/api/v1/patterns?threshold_ms=-5"); rec.Code != http.StatusBadRequest {
		t.Fatalf("negative threshold: status = %d", rec.Code)
	}
	if rec := get(t, handler, "/api/v1/patterns?start_ts=200&end_ts=100"); rec.Code != http.StatusBadRequest {
		t.Fatalf("inverted range: status = %d", rec.Code)
	}
	if rec := get(t, handler, "/api/v1/patterns?start=yesterday"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad RFC3339: status = %d", rec.Code)
	}
}

func TestSuggestionsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/suggestions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var report models.SuggestionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Summary.TotalCollscanQueries != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if _, ok := report.Collections["shop.orders"]; !ok {
		t.Fatalf("missing collection: %v", report.Collections)
	}
}

func TestExecutionsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/executions?per_page=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var page models.ExecutionPage
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 2 || len(page.Items) != 1 || page.Items[0].DurationMS != 1500 {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestAuthenticationsEndpoint(t *testing.T) {
	rec := get(t, testServer(t), "/api/v1/authentications?result=failure")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total":1`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestIngestEndpointRejectsEmptyBody(t *testing.T) {
	handler := testServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
}
