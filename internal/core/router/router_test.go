package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/capabilities"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/features"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/layers"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/source"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeCaps struct{}

func (fakeCaps) Capabilities(_ context.Context, desc model.ServiceDescriptor, _ capabilities.ParseOptions) (model.CapabilityModel, error) {
	if desc.Kind != model.WMS {
		return model.CapabilityModel{}, errors.New("capabilities unavailable")
	}
	return model.CapabilityModel{
		Dialect:     model.MapDialect,
		Version:     "1.3.0",
		LayerNames:  "wojewodztwa,gminy",
		ImageFormat: "image/png",
	}, nil
}

// fakeExec answers every request with one point in northing-first order.
type fakeExec struct{ calls atomic.Int32 }

func (f *fakeExec) FetchFeatures(_ context.Context, _ ogc.FeatureRequest, _ bool, _ features.Format) ([]*geojson.Feature, error) {
	f.calls.Add(1)
	return []*geojson.Feature{geojson.NewFeature(orb.Point{200, 100})}, nil
}

func newTestAPI(t *testing.T) (http.Handler, *fakeExec) {
	t.Helper()
	exec := &fakeExec{}
	res, err := layers.NewResolver(quiet(), layers.ResolverConfig{
		Capabilities: fakeCaps{},
		Executor:     exec,
		Builder:      source.NewBuilder("EPSG:2180"),
		Loader:       layers.LoaderDefaults{Workers: 1, QueueSize: 4, Timeout: time.Second},
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	set := res.Resolve(context.Background(), []layers.Spec{
		{Name: "(WMS) Granice", Kind: model.WMS, URL: "http://ogc.local/wms", Visible: true},
		{Name: "(WFS) Adresy", Kind: model.WFS, URL: "http://ogc.local/wfs", TypeName: "ms:prg-adresy", MinZoom: 9},
		{Name: "(WMTS) Ortofotomapa", Kind: model.WMTS, URL: "http://ogc.local/wmts"},
	})
	t.Cleanup(set.Close)
	select {
	case <-set.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("layer set did not settle")
	}

	r := chi.NewRouter()
	New(quiet(), set, layers.View{Projection: "EPSG:2180", Center: []float64{509847.9, 511024.24}}).Mount(r)
	return r, exec
}

func layerPath(name, suffix string) string {
	return "/layers/" + url.PathEscape(name) + suffix
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, rd))
	return rr
}

func TestListLayers_OrderViewAndFailures(t *testing.T) {
	h, _ := newTestAPI(t)
	rr := do(t, h, http.MethodGet, "/layers", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got struct {
		View   layers.View `json:"view"`
		Layers []struct {
			Name       string `json:"name"`
			Kind       string `json:"kind"`
			Visible    bool   `json:"visible"`
			MinZoom    int    `json:"minZoom"`
			SourceKind string `json:"sourceKind"`
		} `json:"layers"`
		Failures map[string]string `json:"failures"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.View.Projection != "EPSG:2180" || len(got.View.Center) != 2 {
		t.Fatalf("view=%+v", got.View)
	}
	if len(got.Layers) != 2 || got.Layers[0].Name != "(WMS) Granice" || got.Layers[1].Name != "(WFS) Adresy" {
		t.Fatalf("layers=%+v", got.Layers)
	}
	if got.Layers[1].SourceKind != "vector" || got.Layers[1].MinZoom != 9 || got.Layers[1].Visible {
		t.Fatalf("vector layer=%+v", got.Layers[1])
	}
	if _, ok := got.Failures["(WMTS) Ortofotomapa"]; !ok {
		t.Fatalf("failures=%v want WMTS entry", got.Failures)
	}
}

func TestGetLayer_NotFoundAndFailed(t *testing.T) {
	h, _ := newTestAPI(t)
	if rr := do(t, h, http.MethodGet, layerPath("(WMS) Granice", ""), ""); rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, layerPath("nope", ""), ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown: status=%d want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodGet, layerPath("(WMTS) Ortofotomapa", ""), ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("failed layer: status=%d want 503", rr.Code)
	}
}

func TestSetVisibility(t *testing.T) {
	h, _ := newTestAPI(t)
	path := layerPath("(WMS) Granice", "/visibility")

	rr := do(t, h, http.MethodPut, path, `{"visible":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	var got struct {
		Visible bool `json:"visible"`
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &got)
	if got.Visible {
		t.Fatal("layer still visible")
	}

	for _, body := range []string{`{}`, `not json`, `{"visible":"yes"}`} {
		if rr := do(t, h, http.MethodPut, path, body); rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status=%d want 400", body, rr.Code)
		}
	}
}

func TestLoadExtent_AcceptedThenFeaturesServed(t *testing.T) {
	h, exec := newTestAPI(t)

	rr := do(t, h, http.MethodPost, layerPath("(WFS) Adresy", "/extent?bbox=0,0,500,500"), "")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}

	var fc geojson.FeatureCollection
	deadline := time.Now().Add(2 * time.Second)
	for {
		rr = do(t, h, http.MethodGet, layerPath("(WFS) Adresy", "/features"), "")
		if rr.Code != http.StatusOK {
			t.Fatalf("features status=%d", rr.Code)
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &fc); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(fc.Features) > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(fc.Features) != 1 {
		t.Fatalf("features=%d want 1", len(fc.Features))
	}
	if p, ok := fc.Features[0].Geometry.(orb.Point); !ok || !p.Equal(orb.Point{100, 200}) {
		t.Fatalf("geometry=%v want swapped point", fc.Features[0].Geometry)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/geo+json" {
		t.Fatalf("content-type=%q", ct)
	}

	rr = do(t, h, http.MethodGet, layerPath("(WFS) Adresy", "/features?bbox=300,300,400,400"), "")
	var filtered geojson.FeatureCollection
	if err := json.Unmarshal(rr.Body.Bytes(), &filtered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(filtered.Features) != 0 {
		t.Fatalf("bbox filter kept %d features", len(filtered.Features))
	}

	// a covered extent does not reach the service again
	do(t, h, http.MethodPost, layerPath("(WFS) Adresy", "/extent?bbox=10,10,20,20"), "")
	time.Sleep(50 * time.Millisecond)
	if n := exec.calls.Load(); n != 1 {
		t.Fatalf("upstream calls=%d want 1", n)
	}
}

func TestLoadExtent_Rejections(t *testing.T) {
	h, _ := newTestAPI(t)
	if rr := do(t, h, http.MethodPost, layerPath("(WMS) Granice", "/extent?bbox=0,0,1,1"), ""); rr.Code != http.StatusConflict {
		t.Fatalf("raster layer: status=%d want 409", rr.Code)
	}
	for _, q := range []string{"", "?bbox=1,2,3", "?bbox=5,0,1,1", "?bbox=a,b,c,d"} {
		if rr := do(t, h, http.MethodPost, layerPath("(WFS) Adresy", "/extent"+q), ""); rr.Code != http.StatusBadRequest {
			t.Fatalf("query %q: status=%d want 400", q, rr.Code)
		}
	}
	if rr := do(t, h, http.MethodGet, layerPath("(WFS) Adresy", "/features?bbox=bad"), ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("features bad bbox: status=%d", rr.Code)
	}
}

func TestParseExtent(t *testing.T) {
	e, err := ParseExtent(" 100, 200 ,300,400")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := model.Extent{MinX: 100, MinY: 200, MaxX: 300, MaxY: 400}
	if e != want {
		t.Fatalf("got %+v want %+v", e, want)
	}
	for _, bad := range []string{"1,2,3,4,EPSG:2180", "1,2,1,4", "NaN,0,1,1", "0,0,Inf,1"} {
		if _, err := ParseExtent(bad); err == nil {
			t.Fatalf("%q: expected error", bad)
		}
	}
}
