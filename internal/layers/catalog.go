package layers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/source"
)

// Spec is one configured layer.
type Spec struct {
	Name       string            `mapstructure:"name" json:"name"`
	Kind       model.ServiceKind `mapstructure:"kind" json:"kind"`
	URL        string            `mapstructure:"url" json:"url"`
	UseProxy   bool              `mapstructure:"use_proxy" json:"useProxy"`
	Visible    bool              `mapstructure:"visible" json:"visible"`
	MinZoom    int               `mapstructure:"min_zoom" json:"minZoom,omitempty"`
	SingleTile bool              `mapstructure:"single_tile" json:"singleTile,omitempty"`
	MatrixSet  string            `mapstructure:"matrix_set" json:"matrixSet,omitempty"`
	TileSize   int               `mapstructure:"tile_size" json:"tileSize,omitempty"`
	Opacity    *float64          `mapstructure:"opacity" json:"opacity,omitempty"`
	TypeName   string            `mapstructure:"type_name" json:"typeName,omitempty"`
	Format     string            `mapstructure:"format" json:"format,omitempty"`
}

func (s Spec) Descriptor() model.ServiceDescriptor {
	return model.ServiceDescriptor{BaseURL: s.URL, Kind: s.Kind, UseProxy: s.UseProxy}
}

func (s Spec) opacity() float64 {
	if s.Opacity == nil {
		return source.DefaultOpacity
	}
	return *s.Opacity
}

func (s *Spec) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.Kind = model.ServiceKind(strings.ToUpper(strings.TrimSpace(string(s.Kind))))
}

func (s Spec) Validate() error {
	if s.Name == "" {
		return errors.New("layer name is required")
	}
	if s.URL == "" {
		return fmt.Errorf("layer %q: url is required", s.Name)
	}
	switch s.Kind {
	case model.WMTS, model.WMS:
	case model.WFS:
		if s.TypeName == "" {
			return fmt.Errorf("layer %q: type_name is required for WFS", s.Name)
		}
	default:
		return fmt.Errorf("layer %q: unknown kind %q", s.Name, s.Kind)
	}
	if s.MinZoom < 0 {
		return fmt.Errorf("layer %q: min_zoom must be >= 0", s.Name)
	}
	return nil
}

type View struct {
	Projection string    `mapstructure:"projection" json:"projection"`
	Center     []float64 `mapstructure:"center" json:"center"`
	Zoom       int       `mapstructure:"zoom" json:"zoom"`
}

type Catalog struct {
	View   View   `mapstructure:"view"`
	Layers []Spec `mapstructure:"layers"`
}

func defaultView() View {
	return View{Projection: source.DefaultProjection, Center: []float64{509847.9, 511024.24}}
}

// DefaultCatalog is the geoportal.gov.pl layer set.
func DefaultCatalog() Catalog {
	return Catalog{
		View: defaultView(),
		Layers: []Spec{
			{
				Name:     "(WMTS) Ortofotomapa",
				Kind:     model.WMTS,
				URL:      "https://mapy.geoportal.gov.pl/wss/service/PZGIK/ORTO/WMTS/StandardResolution",
				UseProxy: true,
				Visible:  true,
			},
			{
				Name:     "(WMS) Ortofotomapa",
				Kind:     model.WMS,
				URL:      "https://mapy.geoportal.gov.pl/wss/service/PZGIK/ORTO/WMS/StandardResolution",
				UseProxy: true,
			},
			{
				Name:       "(WMS) Granice",
				Kind:       model.WMS,
				URL:        "https://mapy.geoportal.gov.pl/wss/service/PZGIK/PRG/WMS/AdministrativeBoundaries",
				UseProxy:   true,
				SingleTile: true,
			},
			{
				Name:       "(WMS) Wybory",
				Kind:       model.WMS,
				URL:        "https://mapy.geoportal.gov.pl/wss/ext/OkregiWyborcze",
				UseProxy:   true,
				SingleTile: true,
			},
			{
				Name:     "(WFS) Adresy",
				Kind:     model.WFS,
				URL:      "https://mapy.geoportal.gov.pl/wss/ext/KrajowaIntegracjaNumeracjiAdresowej",
				UseProxy: true,
				TypeName: "ms:prg-adresy",
				MinZoom:  9,
			},
			{
				Name:     "(WFS) Nowe Budynki",
				Kind:     model.WFS,
				URL:      "https://mapy.geoportal.gov.pl/wss/service/PZGIK/BDOT10k/WFS/NoweBudynki",
				UseProxy: true,
				TypeName: "ms:bud_2022",
				MinZoom:  7,
			},
		},
	}
}

// LoadCatalog reads a YAML, TOML or JSON catalogue. An empty path yields
// DefaultCatalog.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	def := defaultView()
	v.SetDefault("view.projection", def.Projection)
	v.SetDefault("view.center", def.Center)
	v.SetDefault("view.zoom", def.Zoom)
	if err := v.ReadInConfig(); err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var cat Catalog
	if err := v.Unmarshal(&cat); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if err := cat.normalize(); err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

func (c *Catalog) normalize() error {
	if len(c.Layers) == 0 {
		return errors.New("no layers configured")
	}
	if len(c.View.Center) != 2 {
		return fmt.Errorf("view center must hold two ordinates, got %d", len(c.View.Center))
	}
	seen := make(map[string]struct{}, len(c.Layers))
	var errs []error
	for i := range c.Layers {
		c.Layers[i].normalize()
		if err := c.Layers[i].Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := seen[c.Layers[i].Name]; dup {
			errs = append(errs, fmt.Errorf("duplicate layer name %q", c.Layers[i].Name))
		}
		seen[c.Layers[i].Name] = struct{}{}
	}
	return errors.Join(errs...)
}
