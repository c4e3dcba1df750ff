package source

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

const (
	DefaultProjection  = "EPSG:2180"
	DefaultCrossOrigin = "anonymous"
	DefaultTileSize    = 256
	DefaultOpacity     = 1.0

	singleTileServerType = "geoserver"
)

type Builder struct {
	Projection  string
	CrossOrigin string
}

func NewBuilder(projection string) Builder {
	if projection == "" {
		projection = DefaultProjection
	}
	return Builder{Projection: projection, CrossOrigin: DefaultCrossOrigin}
}

func (b Builder) projection() string {
	if b.Projection == "" {
		return DefaultProjection
	}
	return b.Projection
}

func (b Builder) crossOrigin() string {
	if b.CrossOrigin == "" {
		return DefaultCrossOrigin
	}
	return b.CrossOrigin
}

// Tile builds a tile source from a tile-dialect model. Matrix origins are
// published northing first for EPSG:2180 and are swapped here, once.
func (b Builder) Tile(m model.CapabilityModel) (TileConfig, error) {
	if m.Dialect != model.TileDialect {
		return TileConfig{}, fmt.Errorf("tile source needs a %s capability model, got %q", model.TileDialect, m.Dialect)
	}
	if len(m.TileMatrices) == 0 {
		return TileConfig{}, errors.New("tile source needs at least one tile matrix")
	}

	cfg := TileConfig{
		URL:         m.TileURL,
		Template:    m.TileTemplate,
		Layer:       m.LayerName,
		MatrixSet:   m.MatrixSet,
		Format:      m.TileFormat,
		Style:       m.Style,
		Projection:  b.projection(),
		Origins:     SwapOrigins(m.TileMatrices),
		Resolutions: make([]float64, 0, len(m.TileMatrices)),
		MatrixIDs:   make([]string, 0, len(m.TileMatrices)),
		TileSizes:   make([][2]int, 0, len(m.TileMatrices)),
		CrossOrigin: b.crossOrigin(),
	}
	if cfg.Layer == "" {
		cfg.Layer = model.FallbackLayerName
	}
	for _, tm := range m.TileMatrices {
		cfg.Resolutions = append(cfg.Resolutions, tm.Resolution)
		cfg.MatrixIDs = append(cfg.MatrixIDs, tm.ID)
		cfg.TileSizes = append(cfg.TileSizes, [2]int{tm.TileWidth, tm.TileHeight})
	}
	return cfg, nil
}

// SwapOrigins returns each matrix origin with its ordinates exchanged.
func SwapOrigins(ms []model.TileMatrix) []orb.Point {
	out := make([]orb.Point, len(ms))
	for i, tm := range ms {
		out[i] = orb.Point{tm.Origin[1], tm.Origin[0]}
	}
	return out
}

// Map builds a tiled map image source. When the service offered no
// acceptable format the returned config is still usable and the error is
// an *errs.UnsupportedFormatError.
func (b Builder) Map(m model.CapabilityModel, serviceURL string, tileSize int, opacity float64) (ImageConfig, error) {
	if m.Dialect != model.MapDialect {
		return ImageConfig{}, fmt.Errorf("image source needs a %s capability model, got %q", model.MapDialect, m.Dialect)
	}
	if serviceURL == "" {
		return ImageConfig{}, errors.New("image source needs a service url")
	}
	if tileSize == 0 {
		tileSize = DefaultTileSize
	}

	layers := m.LayerNames
	if layers == "" {
		layers = model.FallbackLayerName
	}
	params := ImageParams{
		Layers:      layers,
		SRS:         b.projection(),
		Format:      m.ImageFormat,
		Transparent: true,
		TileSize:    tileSize,
		Opacity:     opacity,
		Version:     ImageParamsVersion,
	}
	if err := params.Validate(); err != nil {
		return ImageConfig{}, fmt.Errorf("image params: %w", err)
	}

	cfg := ImageConfig{
		URL:         serviceURL,
		Params:      params,
		Projection:  b.projection(),
		CrossOrigin: b.crossOrigin(),
	}
	if params.Format == "" {
		return cfg, &errs.UnsupportedFormatError{Offered: m.Formats}
	}
	return cfg, nil
}

// SingleTile is Map rendered as one image per view.
func (b Builder) SingleTile(m model.CapabilityModel, serviceURL string, tileSize int, opacity float64) (ImageConfig, error) {
	cfg, err := b.Map(m, serviceURL, tileSize, opacity)
	if err != nil && !errors.Is(err, errs.ErrUnsupportedFormat) {
		return cfg, err
	}
	cfg.SingleTile = true
	cfg.Ratio = 1
	cfg.ServerType = singleTileServerType
	return cfg, err
}

// Vector wraps a loader; the projection is the map projection because
// features are stored after the axis swap.
func (b Builder) Vector(typeName string, l ExtentLoader, minZoom int) (VectorConfig, error) {
	if l == nil {
		return VectorConfig{}, errors.New("vector source needs a loader")
	}
	if typeName == "" {
		return VectorConfig{}, errors.New("vector source needs a type name")
	}
	return VectorConfig{Loader: l, TypeName: typeName, Projection: b.projection(), MinZoom: minZoom}, nil
}
