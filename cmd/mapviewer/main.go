package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/cache/memstore"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/cache/redisstore"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/capabilities"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/config"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/executor"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/httpclient"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/observability"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/router"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/server"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/layers"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/loadevents"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/logger"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/metrics"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/source"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	catalogFlag := flag.String("catalog", "", "layer catalogue file (yaml, toml or json)")
	flag.Parse()

	cfg := config.FromEnv()
	if *catalogFlag != "" {
		cfg.CatalogFile = strings.TrimSpace(*catalogFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Service:   "mapviewer",
		Component: "main",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)

	catalog := layers.DefaultCatalog()
	if cfg.CatalogFile != "" {
		c, err := layers.LoadCatalog(cfg.CatalogFile)
		if err != nil {
			appLog.Error("catalogue load failed", "file", cfg.CatalogFile, "err", err)
			return 1
		}
		catalog = c
	}
	appLog.Info("starting map viewer",
		"addr", cfg.Addr,
		"version", Version,
		"layers", len(catalog.Layers),
		"relay", cfg.RelayURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relay := ogc.NewRelay(cfg.RelayURL)
	client := httpclient.NewOutbound(httpclient.Options{Timeout: cfg.UpstreamTO})

	tiers, closeTiers, err := capabilityTiers(ctx, cfg, appLog)
	if err != nil {
		appLog.Error("capability cache setup failed", "err", err)
		return 1
	}
	defer closeTiers()

	fetcher, err := capabilities.NewFetcher(appLog, client, relay, tiers...)
	if err != nil {
		appLog.Error("capability fetcher setup failed", "err", err)
		return 1
	}

	events, err := loadEvents(cfg, appLog)
	if err != nil {
		appLog.Error("load event publisher setup failed", "err", err)
		return 1
	}
	defer func() {
		if err := events.Close(); err != nil {
			appLog.Warn("load event publisher close", "err", err)
		}
	}()

	resolver, err := layers.NewResolver(appLog, layers.ResolverConfig{
		Capabilities: fetcher,
		Executor:     executor.New(appLog, client, relay),
		Relay:        relay,
		Builder:      source.NewBuilder(catalog.View.Projection),
		Loader: layers.LoaderDefaults{
			Workers:   cfg.Loader.Workers,
			QueueSize: cfg.Loader.Queue,
			Count:     cfg.Loader.FeatureCount,
			Timeout:   cfg.Loader.Timeout,
		},
		Events: events,
	})
	if err != nil {
		appLog.Error("resolver setup failed", "err", err)
		return 1
	}

	set := resolver.Resolve(ctx, catalog.Layers)
	defer set.Close()
	go func() {
		select {
		case <-set.Done():
			appLog.Info("layer resolution finished",
				"added", len(set.List()),
				"failed", len(set.Failures()))
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Enabled {
		p := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		}, observability.Collectors()...)
		go func() {
			if err := p.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	api := router.New(appLog, set, catalog.View)
	if err := server.Run(ctx, cfg, appLog, api, set); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// capabilityTiers returns the in-process memo and, when configured, the
// shared Redis tier behind it.
func capabilityTiers(ctx context.Context, cfg config.Config, log *slog.Logger) ([]capabilities.Tier, func(), error) {
	mem, err := memstore.New(cfg.Capabilities.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	tiers := []capabilities.Tier{{Name: "memory", Store: mem}}
	closeFn := func() {}

	if cfg.Capabilities.RedisAddr == "" {
		return tiers, closeFn, nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rc, err := redisstore.New(dialCtx, cfg.Capabilities.RedisAddr, cfg.Capabilities.TTL)
	if err != nil {
		// the memory tier alone still serves
		log.Warn("redis capability tier disabled", "addr", cfg.Capabilities.RedisAddr, "err", err)
		return tiers, closeFn, nil
	}
	tiers = append(tiers, capabilities.Tier{Name: "redis", Store: rc})
	return tiers, func() { _ = rc.Close() }, nil
}

func loadEvents(cfg config.Config, log *slog.Logger) (loadevents.Publisher, error) {
	if !cfg.LoadEvents.Enabled {
		return loadevents.Noop{}, nil
	}
	p, err := loadevents.NewKafkaPublisher(log, cfg.LoadEvents.Brokers, cfg.LoadEvents.Topic, cfg.LoadEvents.Queue)
	if err != nil {
		return nil, err
	}
	return p, nil
}
