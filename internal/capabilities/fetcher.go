// Package capabilities fetches and parses OGC capability documents.
package capabilities

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/cache"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/cache/keys"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/cache/memstore"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/observability"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
)

// capability documents larger than this are rejected
const maxDocumentBytes = 32 << 20

// Tier is one named cache level consulted in order.
type Tier struct {
	Name  string
	Store cache.Store
}

type Fetcher struct {
	logger *slog.Logger
	client *http.Client
	relay  ogc.Relay
	tiers  []Tier

	mu       sync.Mutex
	inflight map[string]*call

	startNow func() time.Time // for tests
}

type call struct {
	done chan struct{}
	body []byte
	err  error
}

// NewFetcher memoises documents in tiers; with no tiers it uses a default
// in-process store.
func NewFetcher(logger *slog.Logger, client *http.Client, relay ogc.Relay, tiers ...Tier) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if len(tiers) == 0 {
		mem, err := memstore.New(memstore.DefaultSize)
		if err != nil {
			return nil, fmt.Errorf("default capability cache: %w", err)
		}
		tiers = []Tier{{Name: "memory", Store: mem}}
	}
	return &Fetcher{
		logger:   logger,
		client:   client,
		relay:    relay,
		tiers:    tiers,
		inflight: map[string]*call{},
		startNow: time.Now,
	}, nil
}

// EffectiveURL is the capability request URL after the relay rewrite.
func (f *Fetcher) EffectiveURL(desc model.ServiceDescriptor) (string, error) {
	capURL, err := ogc.CapabilitiesURL(desc.BaseURL, desc.Kind)
	if err != nil {
		return "", fmt.Errorf("capabilities url: %w", err)
	}
	return f.relay.Effective(capURL, desc.UseProxy), nil
}

// Fetch returns the raw capability document, fetching it at most once per
// effective URL while a cached copy is available.
func (f *Fetcher) Fetch(ctx context.Context, desc model.ServiceDescriptor) ([]byte, error) {
	effective, err := f.EffectiveURL(desc)
	if err != nil {
		return nil, err
	}
	key := keys.Capability(effective)

	for {
		if b, ok := f.lookup(ctx, key); ok {
			return b, nil
		}

		f.mu.Lock()
		c, ok := f.inflight[key]
		if !ok {
			break // f.mu stays held for the leader setup below
		}
		f.mu.Unlock()
		select {
		case <-c.done:
			// the leader's own cancellation says nothing about the document
			if isContextErr(c.err) && ctx.Err() == nil {
				f.logger.Debug("capability leader cancelled; retrying", "url", effective)
				continue
			}
			return c.body, c.err
		case <-ctx.Done():
			return nil, fmt.Errorf("wait for capabilities: %w", ctx.Err())
		}
	}
	c := &call{done: make(chan struct{})}
	f.inflight[key] = c
	f.mu.Unlock()

	c.body, c.err = f.get(ctx, effective)
	if c.err == nil {
		f.fill(ctx, key, c.body, len(f.tiers))
	}

	f.mu.Lock()
	delete(f.inflight, key)
	f.mu.Unlock()
	close(c.done)

	return c.body, c.err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Capabilities fetches and parses in one step.
func (f *Fetcher) Capabilities(ctx context.Context, desc model.ServiceDescriptor, opts ParseOptions) (model.CapabilityModel, error) {
	raw, err := f.Fetch(ctx, desc)
	if err != nil {
		return model.CapabilityModel{}, err
	}
	m, err := Parse(raw, desc.Kind, opts)
	if err != nil {
		return model.CapabilityModel{}, fmt.Errorf("parse %s capabilities of %s: %w", desc.Kind, desc.BaseURL, err)
	}
	return m, nil
}

func (f *Fetcher) lookup(ctx context.Context, key string) ([]byte, bool) {
	for i, t := range f.tiers {
		b, ok, err := t.Store.Get(ctx, key)
		if err != nil {
			f.logger.Warn("capability cache get failed", "tier", t.Name, "key", key, "err", err)
			ok = false
		}
		observability.ObserveCapabilityCache(t.Name, ok)
		if ok {
			f.fill(ctx, key, b, i)
			return b, true
		}
	}
	return nil, false
}

// fill writes val into the first n tiers
func (f *Fetcher) fill(ctx context.Context, key string, val []byte, n int) {
	for _, t := range f.tiers[:n] {
		if err := t.Store.Set(ctx, key, val); err != nil {
			f.logger.Warn("capability cache set failed", "tier", t.Name, "key", key, "err", err)
		}
	}
}

func (f *Fetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")

	start := f.startNow()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency(observability.UpstreamCapabilities, 0, time.Since(start).Seconds())
		return nil, &errs.NetworkError{URL: u, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency(observability.UpstreamCapabilities, resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		ne := &errs.NetworkError{URL: u, Status: resp.StatusCode}
		if snippet := strings.TrimSpace(string(b)); snippet != "" {
			ne.Err = errors.New(snippet)
		}
		return nil, ne
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, &errs.NetworkError{URL: u, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(body) > maxDocumentBytes {
		return nil, &errs.NetworkError{URL: u, Err: fmt.Errorf("document exceeds %d bytes", maxDocumentBytes)}
	}
	f.logger.Debug("capabilities fetched", "url", u, "bytes", len(body), "duration", time.Since(start).String())
	return body, nil
}
