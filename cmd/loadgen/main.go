// Command loadgen pans a viewport over a running map viewer, posting extent
// callbacks for one vector layer, and optionally tallies the load events the
// viewer publishes to Kafka.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/paulmach/orb/geojson"
)

type Config struct {
	TargetURL      string
	LayerName      string
	Concurrency    int
	Duration       time.Duration
	ZipfS          float64
	ZipfV          float64
	ExtentCount    int
	ExtentSize     float64
	Spread         float64
	Center         string
	RequestTimeout time.Duration
	OutputPrefix   string
	Events         bool
	Brokers        string
	Topic          string
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090", "Map viewer base URL")
	flag.StringVar(&cfg.LayerName, "layer", "(WFS) Nowe Budynki", "Vector layer name")
	flag.IntVar(&cfg.Concurrency, "concurrency", 4, "Concurrent panners")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "Test duration")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1)")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.IntVar(&cfg.ExtentCount, "extents", 64, "Distinct viewports in pool")
	flag.Float64Var(&cfg.ExtentSize, "size", 1500, "Viewport edge in map units")
	flag.Float64Var(&cfg.Spread, "spread", 20000, "How far viewports wander from the centre")
	flag.StringVar(&cfg.Center, "center", "509847.9,511024.24", "Pan centre x,y in map projection")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 5*time.Second, "Per-request timeout")
	flag.StringVar(&cfg.OutputPrefix, "out", "", "Optional summary JSON prefix")
	flag.BoolVar(&cfg.Events, "events", false, "Consume load events from Kafka while running")
	flag.StringVar(&cfg.Brokers, "brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "Kafka brokers")
	flag.StringVar(&cfg.Topic, "topic", getenv("KAFKA_TOPIC", "feature-loads"), "Load event topic")
	flag.Parse()
	return cfg
}

type summary struct {
	StartTime     time.Time      `json:"start"`
	DurationSec   float64        `json:"duration_sec"`
	Posted        int64          `json:"posted"`
	Accepted      int64          `json:"accepted"`
	Errors        int64          `json:"errors"`
	ThroughputRPS float64        `json:"throughput_rps"`
	P50Ms         float64        `json:"p50_ms"`
	P95Ms         float64        `json:"p95_ms"`
	P99Ms         float64        `json:"p99_ms"`
	Features      int            `json:"features"`
	Events        map[string]int `json:"events,omitempty"`
	EventFeatures int            `json:"event_features,omitempty"`
	TargetURL     string         `json:"target"`
	LayerName     string         `json:"layer"`
}

type sample struct {
	latency time.Duration
	status  int
	err     error
}

func main() {
	cfg := loadConfig()
	center, err := parsePoint(cfg.Center)
	if err != nil {
		log.Fatalf("center: %v", err)
	}

	seed := time.Now().UnixNano()
	extents := makeExtents(cfg.ExtentCount, center, cfg.ExtentSize, cfg.Spread, rand.New(rand.NewSource(seed)))
	if len(extents) == 0 {
		log.Fatalf("no extents generated")
	}
	imax := uint64(len(extents)) - 1

	base := strings.TrimRight(cfg.TargetURL, "/") + "/layers/" + url.PathEscape(cfg.LayerName)
	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConnsPerHost: 64,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var tally *eventTally
	var eventsDone chan struct{}
	if cfg.Events {
		tally = newEventTally(cfg.LayerName)
		eventsDone = make(chan struct{})
		go func() {
			defer close(eventsDone)
			if err := consumeEvents(ctx, strings.Split(cfg.Brokers, ","), cfg.Topic, tally); err != nil {
				log.Printf("events: %v", err)
			}
		}()
	}

	samples := make(chan sample, 1024)
	var wg sync.WaitGroup
	startTime := time.Now()
	log.Printf("loadgen start target=%s layer=%q dur=%s conc=%d extents=%d size=%.0f",
		cfg.TargetURL, cfg.LayerName, cfg.Duration, cfg.Concurrency, len(extents), cfg.ExtentSize)

	for id := range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			zipf := rand.NewZipf(rand.New(rand.NewSource(seed+int64(id)+1)), cfg.ZipfS, cfg.ZipfV, imax)
			for ctx.Err() == nil {
				v := zipf.Uint64()
				if v > uint64(math.MaxInt) || int(v) >= len(extents) {
					continue
				}
				s := postExtent(ctx, httpClient, base, extents[v].String())
				select {
				case samples <- s:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(samples)
	}()

	var posted, accepted, failed int64
	var latMs []float64
	for s := range samples {
		posted++
		switch {
		case s.err != nil || s.status != http.StatusAccepted:
			failed++
		default:
			accepted++
			latMs = append(latMs, float64(s.latency.Microseconds())/1000.0)
		}
	}
	elapsed := time.Since(startTime).Seconds()
	sort.Float64s(latMs)

	features, err := countFeatures(httpClient, base)
	if err != nil {
		log.Printf("features: %v", err)
	}

	out := summary{
		StartTime:     startTime.UTC(),
		DurationSec:   elapsed,
		Posted:        posted,
		Accepted:      accepted,
		Errors:        failed,
		ThroughputRPS: float64(posted) / elapsed,
		P50Ms:         percentile(latMs, 50),
		P95Ms:         percentile(latMs, 95),
		P99Ms:         percentile(latMs, 99),
		Features:      features,
		TargetURL:     cfg.TargetURL,
		LayerName:     cfg.LayerName,
	}
	if tally != nil {
		<-eventsDone
		out.Events = map[string]int{}
		for k, v := range tally.byResult {
			out.Events[string(k)] = v
		}
		out.EventFeatures = tally.features
	}

	log.Printf("done: posted=%d accepted=%d err=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms features=%d events=%v",
		posted, accepted, failed, out.ThroughputRPS, out.P50Ms, out.P95Ms, out.P99Ms, features, out.Events)

	if cfg.OutputPrefix != "" {
		if err := writeSummary(cfg.OutputPrefix, out); err != nil {
			log.Printf("summary: %v", err)
		}
	}
}

func postExtent(ctx context.Context, c *http.Client, base, bbox string) sample {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/extent?bbox="+url.QueryEscape(bbox), nil)
	if err != nil {
		return sample{err: err}
	}
	resp, err := c.Do(req)
	s := sample{latency: time.Since(start), err: err}
	if err == nil {
		s.status = resp.StatusCode
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
	return s
}

func countFeatures(c *http.Client, base string) (int, error) {
	resp, err := c.Get(base + "/features")
	if err != nil {
		return 0, fmt.Errorf("http get features: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("features status %d: %s", resp.StatusCode, string(b))
	}
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return 0, fmt.Errorf("decode features: %w", err)
	}
	return len(fc.Features), nil
}

// consumeEvents reads every partition of topic from the newest offset until
// ctx is done.
func consumeEvents(ctx context.Context, brokers []string, topic string, tally *eventTally) error {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_6_0_0
	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("consumer create: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	parts, err := consumer.Partitions(topic)
	if err != nil {
		return fmt.Errorf("partitions: %w", err)
	}
	msgs := make(chan []byte, 256)
	var wg sync.WaitGroup
	for _, p := range parts {
		pc, err := consumer.ConsumePartition(topic, p, sarama.OffsetNewest)
		if err != nil {
			return fmt.Errorf("consume partition %d: %w", p, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { _ = pc.Close() }()
			for {
				select {
				case m := <-pc.Messages():
					select {
					case msgs <- m.Value:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(msgs)
	}()
	for raw := range msgs {
		tally.add(raw)
	}
	return nil
}

func writeSummary(prefix string, s summary) error {
	if dir := filepath.Dir(prefix); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}
	path := fmt.Sprintf("%s_%s_summary.json", prefix, time.Now().UTC().Format("20060102_150405Z"))
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	log.Printf("wrote %s", path)
	return nil
}
