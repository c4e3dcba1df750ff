package keys

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const capabilityPrefix = "capdoc"

// Capability returns the shared cache key for a capability document fetched
// from effectiveURL. The readable part names the host; the hash makes the
// key unique per full URL, relay prefix included.
func Capability(effectiveURL string) string {
	host := "unknown"
	if u, err := url.Parse(innerTarget(effectiveURL)); err == nil && u.Host != "" {
		host = u.Host
	}
	const maxHostLen = 64
	hostSafe := sanitizeForKey(strings.ToLower(host))
	if len(hostSafe) > maxHostLen {
		hostSafe = hostSafe[:maxHostLen]
	}
	sum := xxhash.Sum64String(effectiveURL)
	return fmt.Sprintf("%s:%s:u=%016x", capabilityPrefix, hostSafe, sum)
}

// innerTarget unwraps a relay URL of the form "https://relay/?https://svc/..."
func innerTarget(s string) string {
	if i := strings.Index(s, "?http"); i >= 0 {
		inner := s[i+1:]
		if dec, err := url.QueryUnescape(inner); err == nil {
			return dec
		}
		return inner
	}
	if i := strings.Index(s, "=http"); i >= 0 {
		if dec, err := url.QueryUnescape(s[i+1:]); err == nil {
			return dec
		}
	}
	return s
}

func sanitizeForKey(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case unicode.IsSpace(r):
			out = '_'
		case isAlphaNum(r) || r == '.' || r == '_' || r == '-':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
