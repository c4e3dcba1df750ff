package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
)

type CapabilityCfg struct {
	CacheSize int
	RedisAddr string
	TTL       time.Duration
}

type LoaderCfg struct {
	Workers      int
	Queue        int
	Timeout      time.Duration
	FeatureCount int
}

type LoadEventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr         string
	LogLevel     string
	LogConsole   bool
	LogSampleN   int
	CatalogFile  string
	RelayURL     string
	UpstreamTO   time.Duration
	Capabilities CapabilityCfg
	Loader       LoaderCfg
	LoadEvents   LoadEventsCfg
	Metrics      MetricsCfg
}

// FromEnv reads the service settings. CORS_RELAY_URL set to an empty value
// disables the relay.
func FromEnv() Config {
	workers := getint("LOADER_WORKERS", 4)
	if workers < 1 {
		workers = 1
	}
	queue := getint("LOADER_QUEUE", 64)
	if queue < 1 {
		queue = 1
	}

	return Config{
		Addr:        getenv("ADDR", ":8090"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogConsole:  getbool("LOG_CONSOLE", false),
		LogSampleN:  getint("LOG_SAMPLE_N", 0),
		CatalogFile: strings.TrimSpace(os.Getenv("CATALOG_FILE")),
		RelayURL:    getenvAllowEmpty("CORS_RELAY_URL", ogc.DefaultRelayPrefix),
		UpstreamTO:  getduration("UPSTREAM_TIMEOUT", 30*time.Second),
		Capabilities: CapabilityCfg{
			CacheSize: getint("CAPABILITY_CACHE_SIZE", 1024),
			RedisAddr: strings.TrimSpace(os.Getenv("CAPABILITY_REDIS_ADDR")),
			TTL:       getduration("CAPABILITY_CACHE_TTL", time.Hour),
		},
		Loader: LoaderCfg{
			Workers:      workers,
			Queue:        queue,
			Timeout:      getduration("LOADER_TIMEOUT", 30*time.Second),
			FeatureCount: getint("FEATURE_COUNT", 0),
		},
		LoadEvents: LoadEventsCfg{
			Enabled: getbool("LOAD_EVENTS_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "feature-loads"),
			Queue:   getint("LOAD_EVENTS_QUEUE", 256),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvAllowEmpty(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "a:9092, b:9092" into a list, dropping blanks
func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
