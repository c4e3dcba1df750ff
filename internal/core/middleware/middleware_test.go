package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLogging_AssignsRequestID(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/layers", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated X-Request-ID")
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/layers", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "" {
		t.Fatalf("caller id should not be echoed, got %q", got)
	}
}

func TestLayerFromPath(t *testing.T) {
	cases := map[string]string{
		"/layers":                     "",
		"/layers/":                    "",
		"/layers/(WFS) Adresy":        "(WFS) Adresy",
		"/layers/(WFS) Adresy/extent": "(WFS) Adresy",
		"/healthz":                    "",
	}
	for in, want := range cases {
		if got := layerFromPath(in); got != want {
			t.Fatalf("layerFromPath(%q)=%q want %q", in, got, want)
		}
	}
}

func TestCORS_Preflight(t *testing.T) {
	called := false
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/layers/x/visibility", nil))
	if rr.Code != http.StatusNoContent || called {
		t.Fatalf("preflight status=%d called=%v", rr.Code, called)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET,PUT,POST,OPTIONS" {
		t.Fatalf("allow-methods=%q", got)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/layers/x/visibility", nil))
	if !called || rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("passthrough called=%v headers=%v", called, rr.Header())
	}
}

func TestRecover_Returns500(t *testing.T) {
	h := Recover()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}
