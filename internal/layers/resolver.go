package layers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/capabilities"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/executor"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/observability"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/features"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/loader"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/loadevents"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/source"
)

type CapabilitySource interface {
	Capabilities(ctx context.Context, desc model.ServiceDescriptor, opts capabilities.ParseOptions) (model.CapabilityModel, error)
}

type LoaderDefaults struct {
	Workers   int
	QueueSize int
	Count     int
	Timeout   time.Duration
}

type ResolverConfig struct {
	Capabilities CapabilitySource
	Executor     executor.Interface
	Relay        ogc.Relay
	Builder      source.Builder
	Loader       LoaderDefaults
	Events       loadevents.Publisher
}

type Resolver struct {
	logger *slog.Logger
	cfg    ResolverConfig
}

func NewResolver(logger *slog.Logger, cfg ResolverConfig) (*Resolver, error) {
	if cfg.Capabilities == nil {
		return nil, errors.New("resolver: capability source is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("resolver: feature executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = loadevents.Noop{}
	}
	if cfg.Builder.Projection == "" {
		cfg.Builder = source.NewBuilder("")
	}
	return &Resolver{logger: logger, cfg: cfg}, nil
}

// Resolve resolves every spec on its own goroutine and returns at once.
// Each layer joins the set as soon as it resolves; a failing layer is
// recorded and leaves the others untouched.
func (r *Resolver) Resolve(ctx context.Context, specs []Spec) *Set {
	set := NewSet(len(specs))
	for i, spec := range specs {
		go func() {
			defer func() {
				if p := recover(); p != nil {
					err := fmt.Errorf("resolve panicked: %v", p)
					r.logger.Error("layer resolution panicked", "layer", spec.Name, "err", err)
					set.fail(spec.Name, err)
				}
			}()

			start := time.Now()
			layer, err := r.resolve(ctx, spec, i)
			observability.ObserveLayerResolution(string(spec.Kind), err)
			if err != nil {
				r.logger.Error("layer not added", "layer", spec.Name, "kind", spec.Kind, "err", err)
				set.fail(spec.Name, err)
				return
			}
			r.logger.Info("layer added",
				"layer", spec.Name,
				"kind", spec.Kind,
				"source", layer.Source().Kind(),
				"visible", layer.IsVisible(),
				"dur", time.Since(start).String())
			set.add(layer)
		}()
	}
	return set
}

func (r *Resolver) resolve(ctx context.Context, spec Spec, order int) (*Layer, error) {
	switch spec.Kind {
	case model.WMTS:
		m, err := r.cfg.Capabilities.Capabilities(ctx, spec.Descriptor(), capabilities.ParseOptions{MatrixSet: spec.MatrixSet})
		if err != nil {
			return nil, err
		}
		cfg, err := r.cfg.Builder.Tile(m)
		if err != nil {
			return nil, fmt.Errorf("tile source: %w", err)
		}
		if cfg.URL == "" {
			cfg.URL = spec.URL
		}
		cfg.URL = r.cfg.Relay.Effective(cfg.URL, spec.UseProxy)
		return newLayer(spec, order, cfg, nil), nil

	case model.WMS:
		m, err := r.cfg.Capabilities.Capabilities(ctx, spec.Descriptor(), capabilities.ParseOptions{})
		if err != nil {
			return nil, err
		}
		build := r.cfg.Builder.Map
		if spec.SingleTile {
			build = r.cfg.Builder.SingleTile
		}
		cfg, err := build(m, r.cfg.Relay.Effective(spec.URL, spec.UseProxy), spec.TileSize, spec.opacity())
		switch {
		case errors.Is(err, errs.ErrUnsupportedFormat):
			r.logger.Warn("no acceptable image format, layer configured without one", "layer", spec.Name, "err", err)
		case err != nil:
			return nil, fmt.Errorf("image source: %w", err)
		}
		return newLayer(spec, order, cfg, nil), nil

	case model.WFS:
		format, err := features.ByName(spec.Format)
		if err != nil {
			return nil, err
		}
		l, err := loader.New(r.logger, r.cfg.Executor, loader.Options{
			Layer:     spec.Name,
			BaseURL:   spec.URL,
			TypeName:  spec.TypeName,
			UseProxy:  spec.UseProxy,
			Format:    format,
			Count:     r.cfg.Loader.Count,
			Workers:   r.cfg.Loader.Workers,
			QueueSize: r.cfg.Loader.QueueSize,
			Timeout:   r.cfg.Loader.Timeout,
		}, loader.WithEvents(r.cfg.Events))
		if err != nil {
			return nil, err
		}
		cfg, err := r.cfg.Builder.Vector(spec.TypeName, l, spec.MinZoom)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("vector source: %w", err)
		}
		return newLayer(spec, order, cfg, l), nil

	default:
		return nil, fmt.Errorf("unknown layer kind %q", spec.Kind)
	}
}
