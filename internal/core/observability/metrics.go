// Package observability holds the process wide Prometheus collectors.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	UpstreamCapabilities = "capabilities"
	UpstreamFeatures     = "features"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream OGC calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream", "status"},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)

	capabilityCacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capability_cache_results_total",
			Help: "Capability document cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	layerResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "layer_resolutions_total",
			Help: "Layer construction attempts by service kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	featureLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feature_loads_total",
			Help: "Extent loads by layer and outcome (merged, rolled_back, rejected, covered, queue_full).",
		},
		[]string{"layer", "outcome"},
	)

	featuresMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "features_merged_total",
			Help: "Features appended into layer collections.",
		},
		[]string{"layer"},
	)

	loadsInflight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "feature_loads_inflight",
			Help: "Extents currently being loaded.",
		},
		[]string{"layer"},
	)
)

// Collectors returns the domain collectors so a dedicated registry can
// expose them. Build info is left out; the metrics provider owns its own.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		httpRequestsTotal,
		httpRequestDurationSeconds,
		upstreamLatencySeconds,
		capabilityCacheResults,
		layerResolutions,
		featureLoads,
		featuresMerged,
		loadsInflight,
	}
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// status 0 means the transport failed before a response arrived
func ObserveUpstreamLatency(upstream string, status int, durationSeconds float64) {
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	upstreamLatencySeconds.WithLabelValues(upstream, st).Observe(durationSeconds)
}

func ObserveCapabilityCache(tier string, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	capabilityCacheResults.WithLabelValues(tier, outcome).Inc()
}

func ObserveLayerResolution(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	layerResolutions.WithLabelValues(kind, outcome).Inc()
}

func ObserveFeatureLoad(layer, outcome string, features int) {
	featureLoads.WithLabelValues(layer, outcome).Inc()
	if features > 0 {
		featuresMerged.WithLabelValues(layer).Add(float64(features))
	}
}

func AddInflight(layer string, delta float64) {
	loadsInflight.WithLabelValues(layer).Add(delta)
}

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
