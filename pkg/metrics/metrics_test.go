package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	counter := promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "connector_metrics_handler_test_total",
		Help: "Counter registered by the handler test",
	})
	counter.Add(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "connector_metrics_handler_test_total 3") {
		t.Errorf("metrics output missing test counter:\n%s", body)
	}
}
