package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServerExposesMetrics(t *testing.T) {
	QuotesTotal.WithLabelValues("lifi", OutcomeRoute).Inc()

	s := NewServer(":0")
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `bridgescope_quotes_total{outcome="route",provider="lifi"}`) {
		t.Fatalf("quote counter missing from exposition")
	}
}
