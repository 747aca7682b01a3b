package metrics_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/procwire/procwire/internal/metrics"
)

func TestRegistryExposesMetrics(t *testing.T) {
	metrics.EmitBuildInfo()
	metrics.ProcessStarted()
	metrics.ProcessExited(0)
	metrics.ProcessExited(130)
	metrics.PipelineRolledBack()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status code from metrics handler: %d", rec.Code)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"procwire_launches_total",
		`procwire_exits_total{outcome="success"}`,
		`procwire_exits_total{outcome="signal:2"}`,
		"procwire_pipeline_rollbacks_total",
		"procwire_build_info{",
		"go_version=",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics body:\n%s", want, body)
		}
	}
}
