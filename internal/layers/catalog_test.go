package layers

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

func TestDefaultCatalog(t *testing.T) {
	cat := DefaultCatalog()
	if err := cat.normalize(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if len(cat.Layers) != 6 {
		t.Fatalf("layers=%d want 6", len(cat.Layers))
	}
	visible := 0
	for _, l := range cat.Layers {
		if !l.UseProxy {
			t.Fatalf("layer %q should use the relay", l.Name)
		}
		if l.Visible {
			visible++
		}
	}
	if visible != 1 || !cat.Layers[0].Visible || cat.Layers[0].Kind != model.WMTS {
		t.Fatalf("only the WMTS orthophoto starts visible")
	}
	if cat.Layers[4].TypeName != "ms:prg-adresy" || cat.Layers[4].MinZoom != 9 {
		t.Fatalf("addresses layer=%+v", cat.Layers[4])
	}
	if cat.Layers[5].TypeName != "ms:bud_2022" || cat.Layers[5].MinZoom != 7 {
		t.Fatalf("buildings layer=%+v", cat.Layers[5])
	}
	if cat.View.Projection != "EPSG:2180" || cat.View.Center[0] != 509847.9 || cat.View.Center[1] != 511024.24 {
		t.Fatalf("view=%+v", cat.View)
	}
}

func TestLoadCatalog_EmptyPathIsDefault(t *testing.T) {
	cat, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(cat.Layers) != 6 {
		t.Fatalf("layers=%d", len(cat.Layers))
	}
}

func TestLoadCatalog_YAML(t *testing.T) {
	cat, err := LoadCatalog(filepath.Join("testdata", "catalog.yaml"))
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(cat.Layers) != 3 {
		t.Fatalf("layers=%d", len(cat.Layers))
	}
	orto, granice, bud := cat.Layers[0], cat.Layers[1], cat.Layers[2]
	if orto.Kind != model.WMTS || !orto.UseProxy || !orto.Visible || orto.MatrixSet != "EPSG:2180" {
		t.Fatalf("orto=%+v", orto)
	}
	if granice.Kind != model.WMS || !granice.SingleTile || granice.opacity() != 0.6 {
		t.Fatalf("granice=%+v", granice)
	}
	if bud.Kind != model.WFS || bud.TypeName != "ms:bud_2022" || bud.Format != "geojson" || bud.MinZoom != 7 {
		t.Fatalf("budynki=%+v", bud)
	}
	if orto.opacity() != 1 {
		t.Fatalf("default opacity=%v", orto.opacity())
	}
	if cat.View.Zoom != 3 || len(cat.View.Center) != 2 || cat.View.Center[0] != 500000 {
		t.Fatalf("view=%+v", cat.View)
	}
}

func TestLoadCatalog_Invalid(t *testing.T) {
	_, err := LoadCatalog(filepath.Join("testdata", "catalog_invalid.toml"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"type_name", "unknown kind"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("err=%v missing %q", err, want)
		}
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join("testdata", "nope.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
