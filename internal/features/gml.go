package features

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/charset"
)

const gmlNamespacePrefix = "http://www.opengis.net/gml"

type gml32Format struct{}

func (gml32Format) Name() string         { return "gml32" }
func (gml32Format) OutputFormat() string { return "" }

// node is a generic element tree holding one feature.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Nodes   []node     `xml:",any"`
	Text    string     `xml:",chardata"`
}

func (n *node) attr(local string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func firstAttr(n *node, locals ...string) string {
	for _, l := range locals {
		if v := n.attr(l); v != "" {
			return v
		}
	}
	return ""
}

func (n *node) child(local string) *node {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}

func (n *node) children(local string) []*node {
	var out []*node
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			out = append(out, &n.Nodes[i])
		}
	}
	return out
}

func isGML(name xml.Name) bool {
	return strings.HasPrefix(name.Space, gmlNamespacePrefix)
}

// Decode streams the response one member at a time. wfs:member,
// gml:featureMember and gml:featureMembers are accepted. A feature whose
// geometry cannot be read is skipped; the batch fails only when every
// feature was skipped.
func (gml32Format) Decode(r io.Reader) ([]*geojson.Feature, error) {
	dec := xml.NewDecoder(io.LimitReader(r, maxResponseBytes))
	dec.CharsetReader = charset.Reader
	var (
		out     []*geojson.Feature
		stack   []string
		skipped []error
	)
	keep := func(n *node) {
		f, err := featureFromNode(n)
		if err != nil {
			skipped = append(skipped, err)
			return
		}
		out = append(out, f)
	}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode gml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && (t.Name.Local == "ExceptionReport" || t.Name.Local == "ServiceExceptionReport") {
				return nil, serviceException(dec, t)
			}
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			switch {
			case parent == "featureMembers":
				var n node
				if err := dec.DecodeElement(&n, &t); err != nil {
					return nil, fmt.Errorf("decode gml feature: %w", err)
				}
				keep(&n)
			case t.Name.Local == "member" || t.Name.Local == "featureMember":
				var wrapper node
				if err := dec.DecodeElement(&wrapper, &t); err != nil {
					return nil, fmt.Errorf("decode gml member: %w", err)
				}
				for i := range wrapper.Nodes {
					keep(&wrapper.Nodes[i])
				}
			default:
				stack = append(stack, t.Name.Local)
			}
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(skipped) > 0 {
		if len(out) == 0 {
			return nil, fmt.Errorf("no readable features: %w", errors.Join(skipped...))
		}
		slog.Warn("gml features skipped", "skipped", len(skipped), "kept", len(out), "first_err", skipped[0])
	}
	return out, nil
}

func serviceException(dec *xml.Decoder, se xml.StartElement) error {
	var n node
	if err := dec.DecodeElement(&n, &se); err != nil {
		return fmt.Errorf("service exception: %w", err)
	}
	return fmt.Errorf("service exception: %s", strings.Join(strings.Fields(collectText(&n)), " "))
}

func collectText(n *node) string {
	var sb strings.Builder
	sb.WriteString(n.Text)
	for i := range n.Nodes {
		sb.WriteString(" ")
		sb.WriteString(collectText(&n.Nodes[i]))
	}
	return sb.String()
}

func featureFromNode(n *node) (*geojson.Feature, error) {
	f := geojson.NewFeature(nil)
	if id := firstAttr(n, "id", "fid"); id != "" {
		f.ID = id
	}
	for i := range n.Nodes {
		prop := &n.Nodes[i]
		if isGML(prop.XMLName) && prop.XMLName.Local == "boundedBy" {
			continue
		}
		if g := geometryChild(prop); g != nil {
			geom, err := parseGeometry(g, 0)
			if err != nil {
				return nil, fmt.Errorf("feature %v property %s: %w", f.ID, prop.XMLName.Local, err)
			}
			// the first geometry property is the feature geometry
			if f.Geometry == nil {
				f.Geometry = geom
			}
			continue
		}
		name := prop.XMLName.Local
		if len(prop.Nodes) > 0 {
			f.Properties[name] = strings.TrimSpace(collectText(prop))
			continue
		}
		f.Properties[name] = strings.TrimSpace(prop.Text)
	}
	return f, nil
}

func geometryChild(prop *node) *node {
	for i := range prop.Nodes {
		if isGML(prop.Nodes[i].XMLName) {
			return &prop.Nodes[i]
		}
	}
	return nil
}

func dimension(n *node, inherited int) int {
	if s := n.attr("srsDimension"); s != "" {
		if d, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && d > 0 {
			return d
		}
	}
	if inherited > 0 {
		return inherited
	}
	return 2
}

func parseGeometry(n *node, dim int) (orb.Geometry, error) {
	dim = dimension(n, dim)
	switch n.XMLName.Local {
	case "Point":
		pts, err := points(n, dim)
		if err != nil {
			return nil, err
		}
		if len(pts) != 1 {
			return nil, fmt.Errorf("point has %d positions", len(pts))
		}
		return pts[0], nil
	case "LineString":
		pts, err := points(n, dim)
		if err != nil {
			return nil, err
		}
		return orb.LineString(pts), nil
	case "LinearRing", "Ring":
		pts, err := ringPoints(n, dim)
		if err != nil {
			return nil, err
		}
		return orb.Ring(pts), nil
	case "Curve":
		pts, err := curvePoints(n, dim)
		if err != nil {
			return nil, err
		}
		return orb.LineString(pts), nil
	case "Polygon", "PolygonPatch":
		return polygon(n, dim)
	case "Surface":
		patches := n.child("patches")
		if patches == nil || len(patches.Nodes) == 0 {
			return nil, errors.New("surface without patches")
		}
		if len(patches.Nodes) == 1 {
			return polygon(&patches.Nodes[0], dim)
		}
		var mp orb.MultiPolygon
		for i := range patches.Nodes {
			p, err := polygon(&patches.Nodes[i], dim)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	case "MultiPoint":
		var mp orb.MultiPoint
		err := eachMember(n, dim, []string{"pointMember", "pointMembers"}, func(g orb.Geometry) error {
			p, ok := g.(orb.Point)
			if !ok {
				return fmt.Errorf("multipoint member is %s", g.GeoJSONType())
			}
			mp = append(mp, p)
			return nil
		})
		return mp, err
	case "MultiCurve", "MultiLineString":
		var ml orb.MultiLineString
		err := eachMember(n, dim, []string{"curveMember", "curveMembers", "lineStringMember"}, func(g orb.Geometry) error {
			ls, ok := g.(orb.LineString)
			if !ok {
				return fmt.Errorf("multicurve member is %s", g.GeoJSONType())
			}
			ml = append(ml, ls)
			return nil
		})
		return ml, err
	case "MultiSurface", "MultiPolygon":
		var mp orb.MultiPolygon
		err := eachMember(n, dim, []string{"surfaceMember", "surfaceMembers", "polygonMember"}, func(g orb.Geometry) error {
			switch v := g.(type) {
			case orb.Polygon:
				mp = append(mp, v)
			case orb.MultiPolygon:
				mp = append(mp, v...)
			default:
				return fmt.Errorf("multisurface member is %s", g.GeoJSONType())
			}
			return nil
		})
		return mp, err
	default:
		return nil, fmt.Errorf("unsupported geometry %s", n.XMLName.Local)
	}
}

func eachMember(n *node, dim int, members []string, fn func(orb.Geometry) error) error {
	for _, name := range members {
		for _, m := range n.children(name) {
			for i := range m.Nodes {
				g, err := parseGeometry(&m.Nodes[i], dim)
				if err != nil {
					return err
				}
				if err := fn(g); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func polygon(n *node, dim int) (orb.Polygon, error) {
	dim = dimension(n, dim)
	var p orb.Polygon
	rings := append(boundaryRings(n, "exterior", "outerBoundaryIs"), boundaryRings(n, "interior", "innerBoundaryIs")...)
	if len(rings) == 0 {
		return nil, errors.New("polygon without exterior ring")
	}
	for _, rn := range rings {
		pts, err := ringPoints(rn, dim)
		if err != nil {
			return nil, err
		}
		p = append(p, orb.Ring(pts))
	}
	return p, nil
}

func boundaryRings(n *node, names ...string) []*node {
	var out []*node
	for _, name := range names {
		for _, b := range n.children(name) {
			if r := b.child("LinearRing"); r != nil {
				out = append(out, r)
			} else if r := b.child("Ring"); r != nil {
				out = append(out, r)
			}
		}
	}
	return out
}

// ringPoints reads a gml:LinearRing, or a gml:Ring made of curveMembers
// joined end to end.
func ringPoints(n *node, dim int) ([]orb.Point, error) {
	dim = dimension(n, dim)
	if n.XMLName.Local != "Ring" {
		return points(n, dim)
	}
	var out []orb.Point
	for _, m := range n.children("curveMember") {
		for i := range m.Nodes {
			c := &m.Nodes[i]
			var (
				pts []orb.Point
				err error
			)
			switch c.XMLName.Local {
			case "Curve":
				pts, err = curvePoints(c, dim)
			case "LineString":
				pts, err = points(c, dimension(c, dim))
			default:
				err = fmt.Errorf("ring member %s", c.XMLName.Local)
			}
			if err != nil {
				return nil, err
			}
			out = joinPath(out, pts)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("ring without curve members")
	}
	return out, nil
}

// curvePoints joins the gml:LineStringSegment segments of a gml:Curve.
func curvePoints(n *node, dim int) ([]orb.Point, error) {
	dim = dimension(n, dim)
	segs := n.child("segments")
	if segs == nil || len(segs.Nodes) == 0 {
		return nil, errors.New("curve without segments")
	}
	var out []orb.Point
	for i := range segs.Nodes {
		seg := &segs.Nodes[i]
		if seg.XMLName.Local != "LineStringSegment" {
			return nil, fmt.Errorf("unsupported curve segment %s", seg.XMLName.Local)
		}
		pts, err := points(seg, dimension(seg, dim))
		if err != nil {
			return nil, err
		}
		out = joinPath(out, pts)
	}
	return out, nil
}

// joinPath appends next, dropping its first point when it repeats the
// last point of path.
func joinPath(path, next []orb.Point) []orb.Point {
	if len(path) > 0 && len(next) > 0 && path[len(path)-1].Equal(next[0]) {
		next = next[1:]
	}
	return append(path, next...)
}

// points reads gml:posList, repeated gml:pos or gml:coordinates.
func points(n *node, dim int) ([]orb.Point, error) {
	if pl := n.child("posList"); pl != nil {
		return posList(pl.Text, dimension(pl, dim))
	}
	if ps := n.children("pos"); len(ps) > 0 {
		out := make([]orb.Point, 0, len(ps))
		for _, p := range ps {
			pts, err := posList(p.Text, dimension(p, dim))
			if err != nil {
				return nil, err
			}
			if len(pts) != 1 {
				return nil, fmt.Errorf("pos %q is not one position", strings.TrimSpace(p.Text))
			}
			out = append(out, pts[0])
		}
		return out, nil
	}
	if c := n.child("coordinates"); c != nil {
		return coordinates(c)
	}
	return nil, fmt.Errorf("%s has no coordinates", n.XMLName.Local)
}

func posList(s string, dim int) ([]orb.Point, error) {
	fields := strings.Fields(s)
	if dim < 2 {
		dim = 2
	}
	if len(fields) == 0 || len(fields)%dim != 0 {
		return nil, fmt.Errorf("position list of %d values is not a multiple of %d", len(fields), dim)
	}
	out := make([]orb.Point, 0, len(fields)/dim)
	for i := 0; i < len(fields); i += dim {
		a, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("ordinate %q: %w", fields[i], err)
		}
		b, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return nil, fmt.Errorf("ordinate %q: %w", fields[i+1], err)
		}
		out = append(out, orb.Point{a, b})
	}
	return out, nil
}

// coordinates reads the GML 2 form "a,b a,b" honouring cs, ts and decimal.
func coordinates(n *node) ([]orb.Point, error) {
	cs, ts, dec := n.attr("cs"), n.attr("ts"), n.attr("decimal")
	if cs == "" {
		cs = ","
	}
	if ts == "" {
		ts = " "
	}
	text := strings.TrimSpace(n.Text)
	var tuples []string
	if strings.TrimSpace(ts) == "" {
		tuples = strings.Fields(text)
	} else {
		tuples = strings.Split(text, ts)
	}
	var out []orb.Point
	for _, tuple := range tuples {
		tuple = strings.TrimSpace(tuple)
		if tuple == "" {
			continue
		}
		if dec != "" && dec != "." {
			tuple = strings.ReplaceAll(tuple, dec, ".")
		}
		parts := strings.Split(tuple, cs)
		if len(parts) < 2 {
			return nil, fmt.Errorf("coordinate tuple %q", tuple)
		}
		a, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("ordinate %q: %w", parts[0], err)
		}
		b, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("ordinate %q: %w", parts[1], err)
		}
		out = append(out, orb.Point{a, b})
	}
	if len(out) == 0 {
		return nil, errors.New("empty coordinates")
	}
	return out, nil
}
