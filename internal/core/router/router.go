// Package router exposes the layer set over HTTP: listing, visibility
// toggles, extent callbacks and feature reads.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/observability"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/layers"
)

// LayerSet is the read side of layers.Set the handlers need.
type LayerSet interface {
	List() []*layers.Layer
	Get(name string) (*layers.Layer, bool)
	Failures() map[string]error
}

type API struct {
	logger *slog.Logger
	set    LayerSet
	view   layers.View
}

func New(logger *slog.Logger, set LayerSet, view layers.View) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{logger: logger, set: set, view: view}
}

// Mount registers the layer routes on r.
func (a *API) Mount(r chi.Router) {
	r.Get("/layers", observed("/layers", a.listLayers))
	r.Route("/layers/{name}", func(r chi.Router) {
		r.Get("/", observed("/layers/{name}", a.getLayer))
		r.Put("/visibility", observed("/layers/{name}/visibility", a.setVisibility))
		r.Post("/extent", observed("/layers/{name}/extent", a.loadExtent))
		r.Get("/features", observed("/layers/{name}/features", a.features))
	})
}

func observed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

type layerList struct {
	View     layers.View       `json:"view"`
	Layers   []*layers.Layer   `json:"layers"`
	Failures map[string]string `json:"failures,omitempty"`
}

func (a *API) listLayers(w http.ResponseWriter, _ *http.Request) {
	out := layerList{View: a.view, Layers: a.set.List()}
	if fails := a.set.Failures(); len(fails) > 0 {
		out.Failures = make(map[string]string, len(fails))
		for name, err := range fails {
			out.Failures[name] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, "application/json", out)
}

func (a *API) getLayer(w http.ResponseWriter, r *http.Request) {
	l, ok := a.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, "application/json", l)
}

func (a *API) setVisibility(w http.ResponseWriter, r *http.Request) {
	l, ok := a.lookup(w, r)
	if !ok {
		return
	}
	var body struct {
		Visible *bool `json:"visible"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10))
	if err := dec.Decode(&body); err != nil || body.Visible == nil {
		http.Error(w, `body must be {"visible":true|false}`, http.StatusBadRequest)
		return
	}
	l.SetVisible(*body.Visible)
	a.logger.InfoContext(r.Context(), "layer visibility changed", "layer", l.Name(), "visible", *body.Visible)
	writeJSON(w, http.StatusOK, "application/json", l)
}

// loadExtent hands the extent to the layer's loader and returns at once.
func (a *API) loadExtent(w http.ResponseWriter, r *http.Request) {
	l, ok := a.lookup(w, r)
	if !ok {
		return
	}
	ld := l.Loader()
	if ld == nil {
		http.Error(w, fmt.Sprintf("layer %q is not a vector layer", l.Name()), http.StatusConflict)
		return
	}
	e, err := ParseExtent(r.URL.Query().Get("bbox"))
	if err != nil {
		http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
		return
	}
	ld.LoadExtent(e)
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) features(w http.ResponseWriter, r *http.Request) {
	l, ok := a.lookup(w, r)
	if !ok {
		return
	}
	ld := l.Loader()
	if ld == nil {
		http.Error(w, fmt.Sprintf("layer %q is not a vector layer", l.Name()), http.StatusConflict)
		return
	}
	var filter *orb.Bound
	if raw := strings.TrimSpace(r.URL.Query().Get("bbox")); raw != "" {
		e, err := ParseExtent(raw)
		if err != nil {
			http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
			return
		}
		b := e.Bound()
		filter = &b
	}
	writeJSON(w, http.StatusOK, "application/geo+json", ld.Features(filter))
}

func (a *API) lookup(w http.ResponseWriter, r *http.Request) (*layers.Layer, bool) {
	name := chi.URLParam(r, "name")
	if un, err := url.PathUnescape(name); err == nil {
		name = un
	}
	l, ok := a.set.Get(name)
	if !ok {
		if err, failed := a.set.Failures()[name]; failed {
			http.Error(w, fmt.Sprintf("layer %q failed to resolve: %v", name, err), http.StatusServiceUnavailable)
			return nil, false
		}
		http.Error(w, fmt.Sprintf("unknown layer %q", name), http.StatusNotFound)
		return nil, false
	}
	return l, true
}

func writeJSON(w http.ResponseWriter, code int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ParseExtent reads "x0,y0,x1,y1" in map projection axis order.
func ParseExtent(raw string) (model.Extent, error) {
	parts := strings.Split(strings.TrimSpace(raw), ",")
	if len(parts) != 4 {
		return model.Extent{}, errors.New("expected 4 comma-separated values: x0,y0,x1,y1")
	}
	var vs [4]float64
	for i, p := range parts {
		f, err := parseFloat(p)
		if err != nil {
			return model.Extent{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		vs[i] = f
	}
	e := model.Extent{MinX: vs[0], MinY: vs[1], MaxX: vs[2], MaxY: vs[3]}
	if err := e.Validate(); err != nil {
		return model.Extent{}, err
	}
	return e, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}
