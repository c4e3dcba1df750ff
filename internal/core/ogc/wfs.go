package ogc

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

const (
	DefaultFeatureVersion = "2.0.0"
	DefaultFeatureCount   = 1000
	DefaultSRSName        = "urn:ogc:def:crs:EPSG::2180"
)

// FeatureRequest enumerates every key of a WFS GetFeature request built for
// one extent.
type FeatureRequest struct {
	BaseURL      string
	TypeName     string
	Version      string
	Count        int
	StartIndex   int
	SRSName      string
	OutputFormat string
	Extent       model.Extent
}

func (r FeatureRequest) Validate() error {
	if strings.TrimSpace(r.BaseURL) == "" {
		return errors.New("feature request: base url is required")
	}
	if strings.TrimSpace(r.TypeName) == "" {
		return errors.New("feature request: type name is required")
	}
	if r.Count < 0 || r.StartIndex < 0 {
		return errors.New("feature request: count and start index must be >= 0")
	}
	if err := r.Extent.Validate(); err != nil {
		return fmt.Errorf("feature request: %w", err)
	}
	return nil
}

func (r FeatureRequest) withDefaults() FeatureRequest {
	if r.Version == "" {
		r.Version = DefaultFeatureVersion
	}
	if r.Count == 0 {
		r.Count = DefaultFeatureCount
	}
	if r.SRSName == "" {
		r.SRSName = DefaultSRSName
	}
	return r
}

// BBoxParam renders the extent northing-first, suffixed with the authority
// URN so the service knows which axis order to expect.
func BBoxParam(e model.Extent, srsName string) string {
	sw := e.Swapped()
	parts := make([]string, 0, 5)
	for _, v := range sw {
		parts = append(parts, strconv.FormatFloat(v, 'f', -1, 64))
	}
	parts = append(parts, srsName)
	return strings.Join(parts, ",")
}

func (r FeatureRequest) Params() url.Values {
	r = r.withDefaults()
	params := url.Values{}
	params.Set("SERVICE", string(model.WFS))
	params.Set("REQUEST", "GetFeature")
	params.Set("COUNT", strconv.Itoa(r.Count))
	params.Set("VERSION", r.Version)
	params.Set("STARTINDEX", strconv.Itoa(r.StartIndex))
	params.Set("TYPENAMES", r.TypeName)
	params.Set("TYPENAME", r.TypeName)
	params.Set("SRSNAME", r.SRSName)
	if strings.TrimSpace(r.OutputFormat) != "" {
		params.Set("OUTPUTFORMAT", r.OutputFormat)
	}
	params.Set("BBOX", BBoxParam(r.Extent, r.SRSName))
	return params
}

// URL sets the request parameters on the base URL, keeping any other
// parameters it already carries.
func (r FeatureRequest) URL() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse feature service url: %w", err)
	}
	q := u.Query()
	for k, vs := range r.Params() {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
