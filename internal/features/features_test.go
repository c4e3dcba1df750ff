package features

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
)

func openFixture(t *testing.T, name string) *os.File {
	t.Helper()
	f, err := os.Open(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestGML32_WFS20Members(t *testing.T) {
	fs, err := GML32.Decode(openFixture(t, "bud_wfs20.xml"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fs) != 2 {
		t.Fatalf("features=%d want 2", len(fs))
	}

	first := fs[0]
	if first.ID != "bud_2022.1" {
		t.Fatalf("id=%v", first.ID)
	}
	poly, ok := first.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry=%T want orb.Polygon", first.Geometry)
	}
	if len(poly) != 1 || len(poly[0]) != 5 || poly[0][1] != (orb.Point{500000, 600010}) {
		t.Fatalf("polygon=%v", poly)
	}
	if first.Properties["funkcja"] != "budynek mieszkalny" || first.Properties["kondygnacje"] != "3" {
		t.Fatalf("properties=%v", first.Properties)
	}
	if _, ok := first.Properties["boundedBy"]; ok {
		t.Fatal("boundedBy leaked into properties")
	}

	mp, ok := fs[1].Geometry.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("geometry=%T want orb.MultiPolygon", fs[1].Geometry)
	}
	if len(mp) != 1 || len(mp[0]) != 2 {
		t.Fatalf("multipolygon=%v", mp)
	}
	// srsDimension=3 drops the third ordinate
	if mp[0][0][2] != (orb.Point{500060, 600060}) || mp[0][1][2] != (orb.Point{500053, 600053}) {
		t.Fatalf("rings=%v", mp[0])
	}
}

func TestGML32_GML2AndFeatureMembers(t *testing.T) {
	fs, err := GML32.Decode(openFixture(t, "adresy_gml2.xml"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fs) != 3 {
		t.Fatalf("features=%d want 3", len(fs))
	}
	if p, ok := fs[0].Geometry.(orb.Point); !ok || p != (orb.Point{600000.5, 500000.25}) {
		t.Fatalf("point=%v", fs[0].Geometry)
	}
	if fs[0].ID != "a1" || fs[0].Properties["numer"] != "12A" {
		t.Fatalf("feature=%+v", fs[0])
	}
	if ls, ok := fs[1].Geometry.(orb.LineString); !ok || len(ls) != 2 || ls[1] != (orb.Point{3, 4}) {
		t.Fatalf("linestring=%v", fs[1].Geometry)
	}
	if mp, ok := fs[2].Geometry.(orb.MultiPoint); !ok || len(mp) != 2 {
		t.Fatalf("multipoint=%v", fs[2].Geometry)
	}
}

func TestGML32_Empty(t *testing.T) {
	raw := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" numberReturned="0"/>`
	fs, err := GML32.Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fs) != 0 {
		t.Fatalf("features=%d", len(fs))
	}
}

func TestGML32_Errors(t *testing.T) {
	cases := map[string]string{
		"exception": `<ows:ExceptionReport xmlns:ows="http://www.opengis.net/ows/1.1"><ows:Exception><ows:ExceptionText>bad bbox</ows:ExceptionText></ows:Exception></ows:ExceptionReport>`,
		"truncated": `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0"><wfs:member>`,
		"odd posList": `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
			<wfs:member><f><g><gml:LineString><gml:posList>1 2 3</gml:posList></gml:LineString></g></f></wfs:member></wfs:FeatureCollection>`,
		"unknown geometry": `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
			<wfs:member><f><g><gml:Solid/></g></f></wfs:member></wfs:FeatureCollection>`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := GML32.Decode(strings.NewReader(raw)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	_, err := GML32.Decode(strings.NewReader(cases["exception"]))
	if err == nil || !strings.Contains(err.Error(), "bad bbox") {
		t.Fatalf("err=%v want exception text", err)
	}
}

func TestGML32_Latin2Declared(t *testing.T) {
	// "Łódź" and "ulica Świętego" in ISO-8859-2
	raw := "<?xml version=\"1.0\" encoding=\"ISO-8859-2\"?>\n" +
		`<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2" xmlns:ms="http://mapserver.gis.umn.edu/mapserver">` +
		`<wfs:member><ms:adresy gml:id="adresy.7">` +
		`<ms:msGeometry><gml:Point><gml:pos>600000 500000</gml:pos></gml:Point></ms:msGeometry>` +
		"<ms:miejscowosc>\xa3\xf3d\xbc</ms:miejscowosc>" +
		"<ms:ulica>ulica \xa6wi\xeatego</ms:ulica>" +
		`</ms:adresy></wfs:member></wfs:FeatureCollection>`

	fs, err := GML32.Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fs) != 1 {
		t.Fatalf("features=%d want 1", len(fs))
	}
	if got := fs[0].Properties["miejscowosc"]; got != "Łódź" {
		t.Fatalf("miejscowosc=%q", got)
	}
	if got := fs[0].Properties["ulica"]; got != "ulica Świętego" {
		t.Fatalf("ulica=%q", got)
	}
	if p, ok := fs[0].Geometry.(orb.Point); !ok || p != (orb.Point{600000, 500000}) {
		t.Fatalf("geometry=%v", fs[0].Geometry)
	}
}

func TestGML32_CurveSegments(t *testing.T) {
	raw := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
		<wfs:member><f gml:id="f.1"><g><gml:Curve><gml:segments>
			<gml:LineStringSegment><gml:posList>0 0 0 10</gml:posList></gml:LineStringSegment>
			<gml:LineStringSegment><gml:posList>0 10 5 10 5 20</gml:posList></gml:LineStringSegment>
		</gml:segments></gml:Curve></g></f></wfs:member></wfs:FeatureCollection>`
	fs, err := GML32.Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ls, ok := fs[0].Geometry.(orb.LineString)
	if !ok {
		t.Fatalf("geometry=%T want orb.LineString", fs[0].Geometry)
	}
	want := orb.LineString{{0, 0}, {0, 10}, {5, 10}, {5, 20}}
	if !ls.Equal(want) {
		t.Fatalf("line=%v want %v", ls, want)
	}
}

func TestGML32_RingOfCurveMembers(t *testing.T) {
	raw := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
		<wfs:member><f><g><gml:Polygon><gml:exterior><gml:Ring>
			<gml:curveMember><gml:LineString><gml:posList>0 0 0 10 10 10</gml:posList></gml:LineString></gml:curveMember>
			<gml:curveMember><gml:Curve><gml:segments><gml:LineStringSegment><gml:posList>10 10 10 0 0 0</gml:posList></gml:LineStringSegment></gml:segments></gml:Curve></gml:curveMember>
		</gml:Ring></gml:exterior></gml:Polygon></g></f></wfs:member></wfs:FeatureCollection>`
	fs, err := GML32.Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	poly, ok := fs[0].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry=%T want orb.Polygon", fs[0].Geometry)
	}
	want := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	if len(poly) != 1 || !poly[0].Equal(want) {
		t.Fatalf("polygon=%v want %v", poly, want)
	}
}

func TestGML32_SkipsUnreadableFeature(t *testing.T) {
	raw := `<wfs:FeatureCollection xmlns:wfs="http://www.opengis.net/wfs/2.0" xmlns:gml="http://www.opengis.net/gml/3.2">
		<wfs:member><f gml:id="f.1"><g><gml:Point><gml:pos>1 2</gml:pos></gml:Point></g></f></wfs:member>
		<wfs:member><f gml:id="f.2"><g><gml:Solid/></g></f></wfs:member>
		<wfs:member><f gml:id="f.3"><g><gml:Curve><gml:segments><gml:LineStringSegment><gml:posList>0 0 1 1</gml:posList></gml:LineStringSegment></gml:segments></gml:Curve></g></f></wfs:member>
	</wfs:FeatureCollection>`
	fs, err := GML32.Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fs) != 2 || fs[0].ID != "f.1" || fs[1].ID != "f.3" {
		t.Fatalf("features=%v want f.1 and f.3", fs)
	}
}

func TestGeoJSONFormat(t *testing.T) {
	raw := `{"type":"FeatureCollection","features":[{"type":"Feature","id":"x.1","geometry":{"type":"Point","coordinates":[600000,500000]},"properties":{"n":"1"}}]}`
	fs, err := GeoJSON.Decode(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(fs) != 1 || fs[0].Geometry.(orb.Point) != (orb.Point{600000, 500000}) {
		t.Fatalf("features=%v", fs)
	}
	if _, err := GeoJSON.Decode(strings.NewReader("{")); err == nil {
		t.Fatal("expected decode error")
	}
	if GeoJSON.OutputFormat() == "" || GML32.OutputFormat() != "" {
		t.Fatal("unexpected output formats")
	}
}

func TestByName(t *testing.T) {
	for name, want := range map[string]Format{"": GML32, "GML32": GML32, "geojson": GeoJSON} {
		got, err := ByName(name)
		if err != nil || got != want {
			t.Fatalf("ByName(%q)=%v,%v", name, got, err)
		}
	}
	if _, err := ByName("kml"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSwapAxes(t *testing.T) {
	fs := []*geojson.Feature{
		geojson.NewFeature(orb.Point{1, 2}),
		geojson.NewFeature(orb.Polygon{{{1, 2}, {3, 4}, {5, 6}, {1, 2}}}),
		geojson.NewFeature(orb.MultiLineString{{{1, 2}, {3, 4}}}),
		geojson.NewFeature(nil),
	}
	if err := SwapAxes(fs); err != nil {
		t.Fatalf("SwapAxes: %v", err)
	}
	if fs[0].Geometry.(orb.Point) != (orb.Point{2, 1}) {
		t.Fatalf("point=%v", fs[0].Geometry)
	}
	if got := fs[1].Geometry.(orb.Polygon)[0][1]; got != (orb.Point{4, 3}) {
		t.Fatalf("polygon vertex=%v", got)
	}
	if got := fs[2].Geometry.(orb.MultiLineString)[0][0]; got != (orb.Point{2, 1}) {
		t.Fatalf("line vertex=%v", got)
	}
}

func TestSwapAxes_NonFinite(t *testing.T) {
	fs := []*geojson.Feature{geojson.NewFeature(orb.LineString{{1, 2}, {math.NaN(), 4}})}
	err := SwapAxes(fs)
	if !errors.Is(err, errs.ErrTransform) {
		t.Fatalf("err=%v want transform error", err)
	}
}
