// Package features decodes WFS GetFeature responses into orb features.
package features

import (
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// Format decodes one WFS output format.
type Format interface {
	Name() string
	// OutputFormat is the OUTPUTFORMAT request value; empty leaves the
	// server default.
	OutputFormat() string
	Decode(r io.Reader) ([]*geojson.Feature, error)
}

var (
	GML32   Format = gml32Format{}
	GeoJSON Format = geoJSONFormat{}
)

// ByName resolves a catalogue format name; empty means GML32.
func ByName(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "gml", "gml32", "gml3.2":
		return GML32, nil
	case "geojson", "json":
		return GeoJSON, nil
	default:
		return nil, fmt.Errorf("unknown feature format %q", name)
	}
}

// responses larger than this are rejected
const maxResponseBytes = 64 << 20

type geoJSONFormat struct{}

func (geoJSONFormat) Name() string         { return "geojson" }
func (geoJSONFormat) OutputFormat() string { return "application/json" }

func (geoJSONFormat) Decode(r io.Reader) ([]*geojson.Feature, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	if len(b) > maxResponseBytes {
		return nil, fmt.Errorf("geojson response exceeds %d bytes", maxResponseBytes)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc.Features, nil
}
