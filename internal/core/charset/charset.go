// Package charset lets encoding/xml decoders read documents declared in
// legacy encodings such as ISO-8859-2 or windows-1250.
package charset

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
)

// Reader is an xml.Decoder CharsetReader backed by the IANA index.
func Reader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(strings.TrimSpace(label))
	if err != nil {
		return nil, fmt.Errorf("charset %q: %w", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("charset %q: no decoder available", label)
	}
	return enc.NewDecoder().Reader(input), nil
}
