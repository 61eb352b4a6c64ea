package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/satellites", "/api/v1/satellites"},
		{"/api/v1/clock", "/api/v1/clock"},
		{"/api/v1/groundstations", "/api/v1/groundstations"},
		{"/api/v1/tle/metadata", "/api/v1/tle/metadata"},
		{"/api/v1/tle/refresh", "/api/v1/tle/refresh"},
		{"/api/v1/stream", "/api/v1/stream"},
		{"/api/v1/presentation/earth", "/api/v1/presentation/earth"},

		// Parameterized routes collapse to one label.
		{"/api/v1/satellites/25544", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/00005", "/api/v1/satellites/{id}"},
		{"/api/v1/satellites/25544/summary", "/api/v1/satellites/{id}/summary"},
		{"/api/v1/satellites/28129/orbit", "/api/v1/satellites/{id}/orbit"},
		{"/api/v1/presentation/25544", "/api/v1/presentation/{id}"},
		{"/api/v1/groundstations/schriever/passes", "/api/v1/groundstations/{name}/passes"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v1/satellites/123456", "other"},
		{"/api/v2/something", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 catalog numbers produce exactly
// one distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		seen[normalizeRoute(fmt.Sprintf("/api/v1/satellites/%05d", 25500+i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/satellites/25544", nil))
	if w.Code != http.StatusTeapot {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTeapot)
	}

	out := httptest.NewRecorder()
	Handler().ServeHTTP(out, httptest.NewRequest("GET", "/metrics", nil))
	body := out.Body.String()
	want := `satviz_http_requests_total{code="418",method="GET",path="/api/v1/satellites/{id}"}`
	if !strings.Contains(body, want) {
		t.Errorf("metrics output missing %s", want)
	}
}
