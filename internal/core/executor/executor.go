// Package executor runs WFS GetFeature requests and decodes the responses.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/observability"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/ogc"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/features"
)

type Interface interface {
	FetchFeatures(ctx context.Context, req ogc.FeatureRequest, useProxy bool, format features.Format) ([]*geojson.Feature, error)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	relay    ogc.Relay
	startNow func() time.Time // for tests
}

var _ Interface = (*Executor)(nil)

func New(logger *slog.Logger, client *http.Client, relay ogc.Relay) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		logger:   logger,
		client:   client,
		relay:    relay,
		startNow: time.Now,
	}
}

// FetchFeatures sends one GetFeature request and decodes the body with
// format. Coordinates are returned as the service published them.
func (e *Executor) FetchFeatures(ctx context.Context, fr ogc.FeatureRequest, useProxy bool, format features.Format) ([]*geojson.Feature, error) {
	if format == nil {
		format = features.GML32
	}
	if fr.OutputFormat == "" {
		fr.OutputFormat = format.OutputFormat()
	}
	target, err := fr.URL()
	if err != nil {
		return nil, fmt.Errorf("getfeature url: %w", err)
	}
	u := e.relay.Effective(target, useProxy)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if format == features.GeoJSON {
		req.Header.Set("Accept", "application/json")
	} else {
		req.Header.Set("Accept", "application/gml+xml; version=3.2, text/xml;q=0.9")
	}

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency(observability.UpstreamFeatures, 0, time.Since(start).Seconds())
		return nil, &errs.NetworkError{URL: u, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency(observability.UpstreamFeatures, resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		ne := &errs.NetworkError{URL: u, Status: resp.StatusCode}
		if snippet := strings.TrimSpace(string(b)); snippet != "" {
			ne.Err = errors.New(snippet)
		}
		return nil, ne
	}

	fs, err := format.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", format.Name(), err)
	}
	e.logger.Debug("getfeature done",
		"type_name", fr.TypeName,
		"bbox", fr.Extent.String(),
		"features", len(fs),
		"duration", time.Since(start).String())
	return fs, nil
}
