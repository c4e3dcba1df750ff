// Package loader loads WFS features for each newly visible extent of a
// vector layer.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/executor"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/observability"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/features"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/loadevents"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/source"
)

const (
	DefaultWorkers        = 4
	DefaultQueueSize      = 64
	DefaultRequestTimeout = 30 * time.Second
)

type Options struct {
	Layer     string // catalogue name used in logs, metrics and events
	BaseURL   string
	TypeName  string
	SRSName   string
	UseProxy  bool
	Format    features.Format
	Count     int
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// Result is reported once per dispatched extent after the writer has
// applied it.
type Result struct {
	Extent   model.Extent
	Features int
	Err      error
	Duration time.Duration
}

type Option func(*Loader)

func WithEvents(p loadevents.Publisher) Option {
	return func(l *Loader) {
		if p != nil {
			l.events = p
		}
	}
}

// WithNotify registers fn, called from the writer goroutine.
func WithNotify(fn func(Result)) Option {
	return func(l *Loader) { l.notify = fn }
}

type outcome struct {
	extent   model.Extent
	features []*geojson.Feature
	err      error
	dur      time.Duration
}

type Loader struct {
	logger *slog.Logger
	exec   executor.Interface
	opts   Options
	index  *Index
	coll   *Collection
	events loadevents.Publisher
	notify func(Result)

	tasks   chan model.Extent
	results chan outcome

	ctx        context.Context
	cancel     context.CancelFunc
	workers    sync.WaitGroup
	writerDone chan struct{}
	closed     atomic.Bool
	closeOnce  sync.Once
}

var _ source.ExtentLoader = (*Loader)(nil)

// New starts the worker pool and the writer.
func New(logger *slog.Logger, exec executor.Interface, opts Options, options ...Option) (*Loader, error) {
	if exec == nil {
		return nil, errors.New("loader: executor is required")
	}
	if opts.BaseURL == "" || opts.TypeName == "" {
		return nil, errors.New("loader: base url and type name are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Layer == "" {
		opts.Layer = opts.TypeName
	}
	if opts.Format == nil {
		opts.Format = features.GML32
	}
	if opts.SRSName == "" {
		opts.SRSName = ogc.DefaultSRSName
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		logger:     logger.With("layer", opts.Layer, "component", "loader"),
		exec:       exec,
		opts:       opts,
		index:      NewIndex(),
		coll:       NewCollection(),
		events:     loadevents.Noop{},
		tasks:      make(chan model.Extent, opts.QueueSize),
		results:    make(chan outcome, opts.Workers),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
	for _, o := range options {
		o(l)
	}

	l.workers.Add(opts.Workers)
	for range opts.Workers {
		go l.work()
	}
	go l.write()
	return l, nil
}

// LoadExtent queues e unless it is covered by a loaded or in-flight
// extent. It never blocks; a full queue drops the claim so that a later
// view change retries the extent.
func (l *Loader) LoadExtent(e model.Extent) {
	if l.closed.Load() {
		return
	}
	if err := e.Validate(); err != nil {
		l.logger.Debug("extent rejected", "extent", e.String(), "err", err)
		observability.ObserveFeatureLoad(l.opts.Layer, string(loadevents.Rejected), 0)
		return
	}
	if !l.index.Claim(e) {
		observability.ObserveFeatureLoad(l.opts.Layer, "covered", 0)
		return
	}
	select {
	case l.tasks <- e:
		observability.AddInflight(l.opts.Layer, 1)
	default:
		l.index.Release(e)
		observability.ObserveFeatureLoad(l.opts.Layer, "queue_full", 0)
		l.logger.Warn("load queue full, extent released", "extent", e.String())
	}
}

func (l *Loader) work() {
	defer l.workers.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case e := <-l.tasks:
			l.results <- l.load(e)
		}
	}
}

func (l *Loader) load(e model.Extent) outcome {
	ctx, cancel := context.WithTimeout(l.ctx, l.opts.Timeout)
	defer cancel()

	start := time.Now()
	fr := ogc.FeatureRequest{
		BaseURL:  l.opts.BaseURL,
		TypeName: l.opts.TypeName,
		Count:    l.opts.Count,
		SRSName:  l.opts.SRSName,
		Extent:   e,
	}
	fs, err := l.exec.FetchFeatures(ctx, fr, l.opts.UseProxy, l.opts.Format)
	if err == nil {
		err = features.SwapAxes(fs)
	}
	if err != nil {
		return outcome{extent: e, err: fmt.Errorf("load %s: %w", e.String(), err), dur: time.Since(start)}
	}
	return outcome{extent: e, features: fs, dur: time.Since(start)}
}

// write is the only goroutine that touches the collection after start.
func (l *Loader) write() {
	defer close(l.writerDone)
	for r := range l.results {
		ev := loadevents.Event{
			Layer:      l.opts.Layer,
			Extent:     [4]float64{r.extent.MinX, r.extent.MinY, r.extent.MaxX, r.extent.MaxY},
			DurationMS: r.dur.Milliseconds(),
		}
		if r.err != nil {
			l.index.Release(r.extent)
			l.logger.Warn("feature load failed, extent released", "extent", r.extent.String(), "err", r.err)
			observability.ObserveFeatureLoad(l.opts.Layer, string(loadevents.RolledBack), 0)
			ev.Outcome = loadevents.RolledBack
			ev.Error = r.err.Error()
		} else {
			l.coll.append(r.features)
			l.logger.Debug("features merged", "extent", r.extent.String(), "features", len(r.features), "total", l.coll.Len())
			observability.ObserveFeatureLoad(l.opts.Layer, string(loadevents.Merged), len(r.features))
			ev.Outcome = loadevents.Merged
			ev.Features = len(r.features)
		}
		observability.AddInflight(l.opts.Layer, -1)
		l.events.Publish(ev)
		if l.notify != nil {
			l.notify(Result{Extent: r.extent, Features: len(r.features), Err: r.err, Duration: r.dur})
		}
	}
}

func (l *Loader) Collection() *Collection { return l.coll }

func (l *Loader) Index() *Index { return l.index }

// Features returns the whole collection, or the features meeting b.
func (l *Loader) Features(b *orb.Bound) *geojson.FeatureCollection {
	if b == nil {
		return l.coll.Snapshot()
	}
	return l.coll.Intersecting(*b)
}

// Close stops the workers and the writer. Queued extents are dropped and
// in-flight requests are cancelled.
func (l *Loader) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.cancel()
		l.workers.Wait()
		close(l.results)
		<-l.writerDone
		for {
			select {
			case <-l.tasks:
				observability.AddInflight(l.opts.Layer, -1)
			default:
				return
			}
		}
	})
}
