package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/router"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/layers"
)

func TestNewHandler_Routes(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := layers.NewSet(0)
	h := NewHandler(l, router.New(l, set, layers.View{Projection: "EPSG:2180"}), set)

	cases := []struct {
		path string
		code int
		body string
	}{
		{"/healthz", http.StatusOK, "ok"},
		{"/readyz", http.StatusOK, `"ready"`},
		{"/metrics", http.StatusOK, "go_goroutines"},
		{"/layers", http.StatusOK, `"EPSG:2180"`},
		{"/layers/missing", http.StatusNotFound, "unknown layer"},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, c.path, nil))
		if rr.Code != c.code {
			t.Fatalf("%s: status=%d want %d", c.path, rr.Code, c.code)
		}
		if !strings.Contains(rr.Body.String(), c.body) {
			t.Fatalf("%s: body missing %q: %s", c.path, c.body, rr.Body.String())
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Fatalf("%s: missing CORS header", c.path)
		}
	}
}

func TestNewHandler_NotReadyWhileResolving(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	set := layers.NewSet(2)
	h := NewHandler(l, router.New(l, set, layers.View{}), set)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
}
