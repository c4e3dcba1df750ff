// Package model defines core domain types shared across the service.
package model

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

type ServiceKind string

const (
	WMTS ServiceKind = "WMTS"
	WMS  ServiceKind = "WMS"
	WFS  ServiceKind = "WFS"
)

// ServiceDescriptor identifies one remote OGC endpoint for one configured layer.
type ServiceDescriptor struct {
	BaseURL  string
	Kind     ServiceKind
	UseProxy bool
}

// Extent is a rectangle in map projection axis order (easting first).
type Extent struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

func (e Extent) Validate() error {
	for _, v := range [...]float64{e.MinX, e.MinY, e.MaxX, e.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.New("extent values must be finite")
		}
	}
	if e.MaxX <= e.MinX || e.MaxY <= e.MinY {
		return errors.New("extent must satisfy x1>x0 and y1>y0")
	}
	return nil
}

// Swapped returns the ordinates in northing-first order: y0,x0,y1,x1.
func (e Extent) Swapped() [4]float64 {
	return [4]float64{e.MinY, e.MinX, e.MaxY, e.MaxX}
}

func (e Extent) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{e.MinX, e.MinY}, Max: orb.Point{e.MaxX, e.MaxY}}
}

func (e Extent) Contains(o Extent) bool {
	b := e.Bound()
	return b.Contains(orb.Point{o.MinX, o.MinY}) && b.Contains(orb.Point{o.MaxX, o.MaxY})
}

func (e Extent) String() string {
	return joinFloats([]float64{e.MinX, e.MinY, e.MaxX, e.MaxY})
}

func joinFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

type LayerInfo struct {
	Name  string
	Title string
}

// TileMatrix is one zoom level of a tile matrix set. Origin keeps the axis
// order the service published.
type TileMatrix struct {
	ID               string
	Origin           orb.Point
	ScaleDenominator float64
	Resolution       float64
	TileWidth        int
	TileHeight       int
	MatrixWidth      int
	MatrixHeight     int
}

type Dialect string

const (
	TileDialect Dialect = "tile"
	MapDialect  Dialect = "map"
)

// FallbackLayerName is used whenever a service publishes no usable layer.
const FallbackLayerName = "RASTER"

type CapabilityModel struct {
	Dialect Dialect
	Version string
	Layers  []LayerInfo
	Formats []string

	// map dialect
	LayerNames  string
	ImageFormat string

	// tile dialect
	LayerName    string
	MatrixSet    string
	SupportedCRS string
	TileFormat   string
	Style        string
	TileURL      string
	TileTemplate string
	TileMatrices []TileMatrix
}
