package capabilities

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/charset"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/errs"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

const DefaultMatrixSet = "EPSG:2180"

type ParseOptions struct {
	// MatrixSet selects the tile matrix set of a WMTS document.
	MatrixSet string
}

// Parse decodes a capability document of the dialect served by kind.
func Parse(raw []byte, kind model.ServiceKind, opts ParseOptions) (model.CapabilityModel, error) {
	switch kind {
	case model.WMTS:
		return ParseTile(raw, opts.MatrixSet)
	case model.WMS:
		return ParseMap(raw)
	default:
		return model.CapabilityModel{}, fmt.Errorf("no capability dialect for service kind %q", kind)
	}
}

func decode(raw []byte, dialect string, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return errs.Malformed(dialect, "empty document")
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.CharsetReader = charset.Reader
	if err := dec.Decode(v); err != nil {
		return &errs.MalformedCapabilityError{Dialect: dialect, Reason: "decode xml", Err: err}
	}
	return nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
