// Package ogc builds OGC service request URLs.
package ogc

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

// CapabilitiesURL sets SERVICE and REQUEST=GetCapabilities on base while
// preserving its other query parameters.
func CapabilitiesURL(base string, kind model.ServiceKind) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", errors.New("service url is required")
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse service url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("service url %q must be absolute", base)
	}
	q := u.Query()
	q.Set("SERVICE", string(kind))
	q.Set("REQUEST", "GetCapabilities")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

const DefaultRelayPrefix = "https://corsproxy.io/?"

// Relay rewrites URLs so they are fetched through a CORS relay.
type Relay struct {
	Prefix string
}

func NewRelay(prefix string) Relay {
	return Relay{Prefix: strings.TrimSpace(prefix)}
}

// Wrap returns target as the relay's query target. A prefix ending in "="
// gets the target query-escaped; any other prefix gets it verbatim.
func (r Relay) Wrap(target string) string {
	if r.Prefix == "" {
		return target
	}
	if strings.HasSuffix(r.Prefix, "=") {
		return r.Prefix + url.QueryEscape(target)
	}
	return r.Prefix + target
}

// Effective applies the relay only when useProxy is set.
func (r Relay) Effective(target string, useProxy bool) string {
	if !useProxy {
		return target
	}
	return r.Wrap(target)
}
