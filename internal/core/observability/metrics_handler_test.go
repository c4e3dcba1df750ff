package observability

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsHandler_Smoke(t *testing.T) {
	ExposeBuildInfo("test")
	ObserveHTTP("GET", "/layers", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "app_build_info") || !strings.Contains(body, "http_requests_total") {
		t.Fatalf("metrics payload did not contain expected metric names; got:\n%s", body)
	}
}

func TestFeatureLoadCounters(t *testing.T) {
	before := testutil.ToFloat64(featuresMerged.WithLabelValues("test-layer"))
	ObserveFeatureLoad("test-layer", "merged", 7)
	ObserveFeatureLoad("test-layer", "rolled_back", 0)

	if got := testutil.ToFloat64(featuresMerged.WithLabelValues("test-layer")) - before; got != 7 {
		t.Fatalf("features_merged delta=%v want 7", got)
	}
	if got := testutil.ToFloat64(featureLoads.WithLabelValues("test-layer", "rolled_back")); got < 1 {
		t.Fatalf("rolled_back counter not incremented")
	}
}

func TestLayerResolutionOutcome(t *testing.T) {
	ObserveLayerResolution("WMS", nil)
	ObserveLayerResolution("WMS", errors.New("boom"))
	if testutil.ToFloat64(layerResolutions.WithLabelValues("WMS", "ok")) < 1 ||
		testutil.ToFloat64(layerResolutions.WithLabelValues("WMS", "failed")) < 1 {
		t.Fatalf("resolution outcomes not recorded")
	}
}

func TestCollectors_RegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
}
