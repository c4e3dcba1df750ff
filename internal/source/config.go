// Package source turns parsed capability models into the static source
// configurations handed to the map client.
package source

import (
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

type Kind string

const (
	KindTile   Kind = "tile"
	KindImage  Kind = "image"
	KindVector Kind = "vector"
)

// Config is one of TileConfig, ImageConfig or VectorConfig.
type Config interface {
	Kind() Kind
}

type TileConfig struct {
	URL         string      `json:"url,omitempty"`
	Template    string      `json:"template,omitempty"`
	Layer       string      `json:"layer"`
	MatrixSet   string      `json:"matrixSet"`
	Format      string      `json:"format"`
	Style       string      `json:"style"`
	Projection  string      `json:"projection"`
	Origins     []orb.Point `json:"origins"`
	Resolutions []float64   `json:"resolutions"`
	MatrixIDs   []string    `json:"matrixIds"`
	TileSizes   [][2]int    `json:"tileSizes"`
	CrossOrigin string      `json:"crossOrigin"`
}

func (TileConfig) Kind() Kind { return KindTile }

type ImageConfig struct {
	URL         string      `json:"url"`
	Params      ImageParams `json:"params"`
	Projection  string      `json:"projection"`
	CrossOrigin string      `json:"crossOrigin"`
	SingleTile  bool        `json:"singleTile"`
	Ratio       float64     `json:"ratio,omitempty"`
	ServerType  string      `json:"serverType,omitempty"`
}

func (ImageConfig) Kind() Kind { return KindImage }

// ExtentLoader is invoked by the map client whenever an extent becomes
// visible. Implementations must not block.
type ExtentLoader interface {
	LoadExtent(e model.Extent)
}

type VectorConfig struct {
	Loader     ExtentLoader `json:"-"`
	TypeName   string       `json:"typeName"`
	Projection string       `json:"projection"`
	MinZoom    int          `json:"minZoom"`
}

func (VectorConfig) Kind() Kind { return KindVector }
