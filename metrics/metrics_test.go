package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveInterpretationCounts(t *testing.T) {
	before := testutil.ToFloat64(interpretations.WithLabelValues("AHA", "canned", OutcomeOK))
	ObserveInterpretation("canned", "AHA", OutcomeOK, time.Now())
	after := testutil.ToFloat64(interpretations.WithLabelValues("AHA", "canned", OutcomeOK))
	if after != before+1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	IncAlert("red")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "nexo_clinical_alerts_total") {
		t.Fatal("expected alerts counter in output")
	}
}
