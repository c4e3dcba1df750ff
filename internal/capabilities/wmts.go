package capabilities

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

const (
	tileDialect = "WMTS"

	// OGC standardized rendering pixel size in metres.
	pixelSize = 0.00028

	defaultTileFormat = "image/jpeg"
)

type wmtsCapabilities struct {
	XMLName    xml.Name        `xml:"Capabilities"`
	Version    string          `xml:"version,attr"`
	Operations []wmtsOperation `xml:"OperationsMetadata>Operation"`
	Contents   *wmtsContents   `xml:"Contents"`
}

type wmtsOperation struct {
	Name string `xml:"name,attr"`
	Gets []struct {
		Href string `xml:"href,attr"`
	} `xml:"DCP>HTTP>Get"`
}

type wmtsContents struct {
	Layers     []wmtsLayer     `xml:"Layer"`
	MatrixSets []wmtsMatrixSet `xml:"TileMatrixSet"`
}

type wmtsLayer struct {
	Titles      []string `xml:"Title"`
	Identifier  string   `xml:"Identifier"`
	Formats     []string `xml:"Format"`
	MatrixLinks []string `xml:"TileMatrixSetLink>TileMatrixSet"`
	Styles      []struct {
		IsDefault  bool   `xml:"isDefault,attr"`
		Identifier string `xml:"Identifier"`
	} `xml:"Style"`
	ResourceURLs []struct {
		Format       string `xml:"format,attr"`
		ResourceType string `xml:"resourceType,attr"`
		Template     string `xml:"template,attr"`
	} `xml:"ResourceURL"`
}

type wmtsMatrixSet struct {
	Identifier   string       `xml:"Identifier"`
	SupportedCRS string       `xml:"SupportedCRS"`
	Matrices     []wmtsMatrix `xml:"TileMatrix"`
}

type wmtsMatrix struct {
	Identifier       string `xml:"Identifier"`
	ScaleDenominator string `xml:"ScaleDenominator"`
	TopLeftCorner    string `xml:"TopLeftCorner"`
	TileWidth        string `xml:"TileWidth"`
	TileHeight       string `xml:"TileHeight"`
	MatrixWidth      string `xml:"MatrixWidth"`
	MatrixHeight     string `xml:"MatrixHeight"`
}

// ParseTile reads a WMTS capabilities document. The working layer is the
// first published layer, named by its title; matrices come from matrixSet
// with their origins left in published axis order.
func ParseTile(raw []byte, matrixSet string) (model.CapabilityModel, error) {
	if strings.TrimSpace(matrixSet) == "" {
		matrixSet = DefaultMatrixSet
	}
	var doc wmtsCapabilities
	if err := decode(raw, tileDialect, &doc); err != nil {
		return model.CapabilityModel{}, err
	}
	if doc.Contents == nil {
		return model.CapabilityModel{}, errs.Malformed(tileDialect, "no Contents section")
	}

	m := model.CapabilityModel{
		Dialect:   model.TileDialect,
		Version:   firstNonEmpty(doc.Version, "1.0.0"),
		LayerName: model.FallbackLayerName,
		MatrixSet: matrixSet,
	}

	var layer *wmtsLayer
	for i := range doc.Contents.Layers {
		l := &doc.Contents.Layers[i]
		title := firstNonEmpty(l.Titles...)
		m.Layers = append(m.Layers, model.LayerInfo{Name: firstNonEmpty(l.Identifier, title), Title: title})
		if layer == nil {
			layer = l
		}
	}
	if layer != nil {
		if title := firstNonEmpty(layer.Titles...); title != "" {
			m.LayerName = title
		}
		m.Formats = trimAll(layer.Formats)
		m.TileFormat = firstNonEmpty(m.Formats...)
		m.Style = defaultStyle(layer)
		for _, ru := range layer.ResourceURLs {
			if strings.EqualFold(ru.ResourceType, "tile") && ru.Template != "" {
				m.TileTemplate = ru.Template
				break
			}
		}
	}
	if m.TileFormat == "" {
		m.TileFormat = defaultTileFormat
	}

	for _, op := range doc.Operations {
		if op.Name == "GetTile" && len(op.Gets) > 0 {
			m.TileURL = strings.TrimSpace(op.Gets[0].Href)
			break
		}
	}

	set := findMatrixSet(doc.Contents.MatrixSets, matrixSet)
	if set == nil {
		return model.CapabilityModel{}, errs.Malformed(tileDialect, fmt.Sprintf("tile matrix set %q not published", matrixSet))
	}
	if layer != nil && !linksMatrixSet(layer, set.Identifier) {
		return model.CapabilityModel{}, errs.Malformed(tileDialect,
			fmt.Sprintf("layer %q does not link tile matrix set %q", firstNonEmpty(layer.Identifier, m.LayerName), matrixSet))
	}
	m.SupportedCRS = strings.TrimSpace(set.SupportedCRS)
	for _, tm := range set.Matrices {
		parsed, err := parseMatrix(tm)
		if err != nil {
			return model.CapabilityModel{}, &errs.MalformedCapabilityError{
				Dialect: tileDialect,
				Reason:  fmt.Sprintf("tile matrix %q", tm.Identifier),
				Err:     err,
			}
		}
		m.TileMatrices = append(m.TileMatrices, parsed)
	}
	if len(m.TileMatrices) == 0 {
		return model.CapabilityModel{}, errs.Malformed(tileDialect, fmt.Sprintf("tile matrix set %q has no matrices", matrixSet))
	}
	return m, nil
}

func findMatrixSet(sets []wmtsMatrixSet, id string) *wmtsMatrixSet {
	for i := range sets {
		if strings.TrimSpace(sets[i].Identifier) == id {
			return &sets[i]
		}
	}
	for i := range sets {
		if strings.EqualFold(strings.TrimSpace(sets[i].Identifier), id) {
			return &sets[i]
		}
	}
	return nil
}

// linksMatrixSet reports whether l is published in the matrix set id. A
// layer with no TileMatrixSetLink at all is taken to cover every set.
func linksMatrixSet(l *wmtsLayer, id string) bool {
	links := trimAll(l.MatrixLinks)
	if len(links) == 0 {
		return true
	}
	id = strings.TrimSpace(id)
	for _, link := range links {
		if strings.EqualFold(link, id) {
			return true
		}
	}
	return false
}

func defaultStyle(l *wmtsLayer) string {
	for _, s := range l.Styles {
		if s.IsDefault {
			return strings.TrimSpace(s.Identifier)
		}
	}
	if len(l.Styles) > 0 {
		return strings.TrimSpace(l.Styles[0].Identifier)
	}
	return "default"
}

func parseMatrix(tm wmtsMatrix) (model.TileMatrix, error) {
	out := model.TileMatrix{ID: strings.TrimSpace(tm.Identifier)}
	if out.ID == "" {
		return out, fmt.Errorf("missing identifier")
	}
	scale, err := strconv.ParseFloat(strings.TrimSpace(tm.ScaleDenominator), 64)
	if err != nil {
		return out, fmt.Errorf("scale denominator: %w", err)
	}
	out.ScaleDenominator = scale
	out.Resolution = scale * pixelSize

	corner := strings.Fields(tm.TopLeftCorner)
	if len(corner) != 2 {
		return out, fmt.Errorf("top left corner %q must hold two ordinates", tm.TopLeftCorner)
	}
	a, err := strconv.ParseFloat(corner[0], 64)
	if err != nil {
		return out, fmt.Errorf("top left corner: %w", err)
	}
	b, err := strconv.ParseFloat(corner[1], 64)
	if err != nil {
		return out, fmt.Errorf("top left corner: %w", err)
	}
	out.Origin = orb.Point{a, b}

	ints := []struct {
		raw string
		dst *int
		def int
	}{
		{tm.TileWidth, &out.TileWidth, 256},
		{tm.TileHeight, &out.TileHeight, 256},
		{tm.MatrixWidth, &out.MatrixWidth, 0},
		{tm.MatrixHeight, &out.MatrixHeight, 0},
	}
	for _, f := range ints {
		s := strings.TrimSpace(f.raw)
		if s == "" {
			*f.dst = f.def
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return out, fmt.Errorf("parse %q: %w", s, err)
		}
		*f.dst = n
	}
	return out, nil
}

func trimAll(vs []string) []string {
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}
