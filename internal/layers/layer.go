// Package layers resolves configured layers into source configurations
// and keeps the ordered set of layer handles.
package layers

import (
	"encoding/json"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/loader"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/source"
)

// Layer is the handle UI controls hold. Visibility is the only mutable
// state reachable from outside.
type Layer struct {
	spec   Spec
	order  int
	source source.Config
	loader *loader.Loader

	visible atomic.Bool
}

func newLayer(spec Spec, order int, cfg source.Config, l *loader.Loader) *Layer {
	layer := &Layer{spec: spec, order: order, source: cfg, loader: l}
	layer.visible.Store(spec.Visible)
	return layer
}

func (l *Layer) Name() string            { return l.spec.Name }
func (l *Layer) Kind() model.ServiceKind { return l.spec.Kind }
func (l *Layer) MinZoom() int            { return l.spec.MinZoom }
func (l *Layer) Source() source.Config   { return l.source }
func (l *Layer) IsVisible() bool         { return l.visible.Load() }
func (l *Layer) SetVisible(v bool)       { l.visible.Store(v) }

// Loader is nil for raster layers.
func (l *Layer) Loader() *loader.Loader { return l.loader }

func (l *Layer) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string            `json:"name"`
		Kind       model.ServiceKind `json:"kind"`
		Visible    bool              `json:"visible"`
		MinZoom    int               `json:"minZoom"`
		SourceKind source.Kind       `json:"sourceKind"`
		Source     source.Config     `json:"source"`
	}{
		Name:       l.spec.Name,
		Kind:       l.spec.Kind,
		Visible:    l.IsVisible(),
		MinZoom:    l.spec.MinZoom,
		SourceKind: l.source.Kind(),
		Source:     l.source,
	})
}

// Set holds resolved layers in catalogue order, whatever order they
// resolved in.
type Set struct {
	mu       sync.RWMutex
	byName   map[string]*Layer
	failures map[string]error
	expected int
	settled  int
	done     chan struct{}
}

func NewSet(expected int) *Set {
	s := &Set{
		byName:   map[string]*Layer{},
		failures: map[string]error{},
		expected: expected,
		done:     make(chan struct{}),
	}
	if expected <= 0 {
		close(s.done)
	}
	return s
}

func (s *Set) add(l *Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[l.Name()] = l
	s.settle()
}

func (s *Set) fail(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = err
	s.settle()
}

// caller holds mu
func (s *Set) settle() {
	s.settled++
	if s.settled == s.expected {
		close(s.done)
	}
}

func (s *Set) Get(name string) (*Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byName[name]
	return l, ok
}

func (s *Set) List() []*Layer {
	s.mu.RLock()
	out := make([]*Layer, 0, len(s.byName))
	for _, l := range s.byName {
		out = append(out, l)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

func (s *Set) Failures() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

// Done is closed once every configured layer resolved or failed.
func (s *Set) Done() <-chan struct{} { return s.done }

func (s *Set) Ready() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Close stops the loaders of all vector layers.
func (s *Set) Close() {
	for _, l := range s.List() {
		if l.loader != nil {
			l.loader.Close()
		}
	}
}
