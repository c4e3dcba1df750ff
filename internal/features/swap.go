package features

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
)

func swap(p orb.Point) orb.Point { return orb.Point{p[1], p[0]} }

// SwapAxes exchanges the ordinates of every coordinate pair in place,
// turning northing-first service geometry into map axis order. It stops at
// the first feature it cannot transform.
func SwapAxes(fs []*geojson.Feature) error {
	for i, f := range fs {
		if f == nil || f.Geometry == nil {
			continue
		}
		if err := checkGeometry(f.Geometry); err != nil {
			return errs.Transformf("feature %d (%v): %s", i, f.ID, err.Reason)
		}
		f.Geometry = project.Geometry(f.Geometry, swap)
	}
	return nil
}

func checkGeometry(g orb.Geometry) *errs.TransformError {
	switch v := g.(type) {
	case orb.Point:
		return checkPoints(v)
	case orb.MultiPoint:
		return checkPoints(v...)
	case orb.LineString:
		return checkPoints(v...)
	case orb.Ring:
		return checkPoints(v...)
	case orb.MultiLineString:
		for _, ls := range v {
			if err := checkPoints(ls...); err != nil {
				return err
			}
		}
	case orb.Polygon:
		for _, r := range v {
			if err := checkPoints(r...); err != nil {
				return err
			}
		}
	case orb.MultiPolygon:
		for _, p := range v {
			if err := checkGeometry(p); err != nil {
				return err
			}
		}
	case orb.Collection:
		for _, c := range v {
			if err := checkGeometry(c); err != nil {
				return err
			}
		}
	default:
		return &errs.TransformError{Reason: "unsupported geometry " + g.GeoJSONType()}
	}
	return nil
}

func checkPoints(ps ...orb.Point) *errs.TransformError {
	for _, p := range ps {
		if math.IsNaN(p[0]) || math.IsNaN(p[1]) || math.IsInf(p[0], 0) || math.IsInf(p[1], 0) {
			return &errs.TransformError{Reason: "non-finite coordinate"}
		}
	}
	return nil
}
