package source

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ImageParamsVersion is pinned for compatibility with older map servers,
// whatever version the capabilities advertise.
const ImageParamsVersion = "1.1.1"

// ImageParams lists every request key sent with map image requests.
type ImageParams struct {
	Layers      string  `json:"LAYERS"`
	SRS         string  `json:"SRS"`
	Format      string  `json:"FORMAT"`
	Transparent bool    `json:"TRANSPARENT"`
	TileSize    int     `json:"TILESIZE"`
	Opacity     float64 `json:"OPACITY"`
	Version     string  `json:"VERSION"`
}

// Validate checks everything except Format; an empty format is reported
// by the builder.
func (p ImageParams) Validate() error {
	var errs []error
	if strings.TrimSpace(p.Layers) == "" {
		errs = append(errs, errors.New("LAYERS is required"))
	}
	if strings.TrimSpace(p.SRS) == "" {
		errs = append(errs, errors.New("SRS is required"))
	}
	if p.TileSize <= 0 {
		errs = append(errs, fmt.Errorf("TILESIZE must be positive, got %d", p.TileSize))
	}
	if math.IsNaN(p.Opacity) || p.Opacity < 0 || p.Opacity > 1 {
		errs = append(errs, fmt.Errorf("OPACITY must be within [0,1], got %v", p.Opacity))
	}
	if p.Version == "" {
		errs = append(errs, errors.New("VERSION is required"))
	}
	return errors.Join(errs...)
}

// Values encodes every key; FORMAT is sent even when empty.
func (p ImageParams) Values() url.Values {
	v := url.Values{}
	v.Set("LAYERS", p.Layers)
	v.Set("SRS", p.SRS)
	v.Set("FORMAT", p.Format)
	v.Set("TRANSPARENT", strconv.FormatBool(p.Transparent))
	v.Set("TILESIZE", strconv.Itoa(p.TileSize))
	v.Set("OPACITY", strconv.FormatFloat(p.Opacity, 'f', -1, 64))
	v.Set("VERSION", p.Version)
	return v
}
