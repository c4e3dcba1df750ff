package capabilities

import (
	"encoding/xml"
	"strings"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

const (
	mapDialect = "WMS"

	DefaultMapVersion = "1.3.0"
)

// acceptable GetMap formats in priority order
var imageFormatPriority = []string{"image/png", "image/jpeg", "image/jpg"}

type wmsCapabilities struct {
	XMLName    xml.Name
	Version    string         `xml:"version,attr"`
	Capability *wmsCapability `xml:"Capability"`
}

type wmsCapability struct {
	GetMap *struct {
		Formats []string `xml:"Format"`
	} `xml:"Request>GetMap"`
	Layer *wmsLayer `xml:"Layer"`
}

type wmsLayer struct {
	Name   string     `xml:"Name"`
	Title  string     `xml:"Title"`
	Layers []wmsLayer `xml:"Layer"`
}

// ParseMap reads a WMS 1.1.1 or 1.3.0 capabilities document.
func ParseMap(raw []byte) (model.CapabilityModel, error) {
	var doc wmsCapabilities
	if err := decode(raw, mapDialect, &doc); err != nil {
		return model.CapabilityModel{}, err
	}
	switch doc.XMLName.Local {
	case "WMS_Capabilities", "WMT_MS_Capabilities":
	default:
		return model.CapabilityModel{}, errs.Malformed(mapDialect, "unexpected root element "+doc.XMLName.Local)
	}
	if doc.Capability == nil || doc.Capability.Layer == nil {
		return model.CapabilityModel{}, errs.Malformed(mapDialect, "no Capability/Layer section")
	}
	if doc.Capability.GetMap == nil {
		return model.CapabilityModel{}, errs.Malformed(mapDialect, "no Request/GetMap format list")
	}

	m := model.CapabilityModel{
		Dialect: model.MapDialect,
		Version: firstNonEmpty(doc.Version, DefaultMapVersion),
		Formats: trimAll(doc.Capability.GetMap.Formats),
	}

	names := make([]string, 0, len(doc.Capability.Layer.Layers))
	for _, l := range doc.Capability.Layer.Layers {
		name := strings.TrimSpace(l.Name)
		m.Layers = append(m.Layers, model.LayerInfo{Name: name, Title: strings.TrimSpace(l.Title)})
		if name != "" {
			names = append(names, name)
		}
	}
	m.LayerNames = strings.Join(names, ",")
	if m.LayerNames == "" {
		m.LayerNames = model.FallbackLayerName
	}

	// an empty format is tolerated here; the builder reports it
	m.ImageFormat, _ = SelectImageFormat(m.Formats)
	return m, nil
}

// SelectImageFormat picks png, then jpeg, then jpg.
func SelectImageFormat(formats []string) (string, error) {
	for _, want := range imageFormatPriority {
		for _, f := range formats {
			if strings.EqualFold(strings.TrimSpace(f), want) {
				return want, nil
			}
		}
	}
	return "", &errs.UnsupportedFormatError{Offered: formats}
}
