// Package canonical resolves raw url-ish strings scraped from listing
// sites into canonical absolute URLs and derives identity keys from them.
// All functions are pure: the same inputs always produce the same result.
package canonical

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Canonicalization errors.
var (
	ErrMissingURL      = errors.New("url is empty")
	ErrUnresolvableURL = errors.New("url does not resolve to a valid host")
)

// trackingParams are query parameters stripped during identity-key
// derivation. They vary between crawls of the same listing and carry no
// identity.
var trackingParams = map[string]bool{
	"gclid":   true,
	"fbclid":  true,
	"msclkid": true,
	"igshid":  true,
	"mc_cid":  true,
	"mc_eid":  true,
}

// Resolve turns a raw url-ish string into a canonical absolute URL.
//
// A value that already starts with http:// or https:// (any casing) is
// trusted verbatim, with only the scheme lower-cased: most sites emit
// complete URLs and rewriting them risks breaking identity. Anything else
// is treated as a relative reference and resolved against base per
// RFC 3986 section 5 (protocol-relative, absolute-path and relative-path
// forms, including dot segments).
func Resolve(raw string, base *url.URL) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingURL
	}

	if abs, ok := absoluteForm(raw); ok {
		return abs, nil
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnresolvableURL, raw, err)
	}

	resolved := base.ResolveReference(ref)
	if resolved.Host == "" || (resolved.Scheme != "http" && resolved.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableURL, raw)
	}

	return resolved.String(), nil
}

// absoluteForm reports whether raw is already an absolute http(s) URL and
// returns it with the scheme lower-cased, everything else untouched.
func absoluteForm(raw string) (string, bool) {
	lower := strings.ToLower(raw)

	switch {
	case strings.HasPrefix(lower, "http://"):
		return "http://" + raw[len("http://"):], true
	case strings.HasPrefix(lower, "https://"):
		return "https://" + raw[len("https://"):], true
	}

	return "", false
}

// IdentityKey derives the deduplication key from a canonical primary URL.
// The scheme and host are lower-cased, tracking query parameters are
// stripped (preserving the order of the survivors), and empty ?/# remnants
// are dropped. Path casing and non-empty fragments are preserved, so two
// listings differing only in path case remain distinct.
func IdentityKey(canonicalURL string) (string, error) {
	u, err := url.Parse(canonicalURL)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrUnresolvableURL, canonicalURL, err)
	}

	if u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrUnresolvableURL, canonicalURL)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = stripTracking(u.RawQuery)

	// A bare trailing "?" parses as ForceQuery; dropping it removes the
	// remnant. An empty fragment is already omitted by String().
	u.ForceQuery = false

	return u.String(), nil
}

// stripTracking removes tracking parameters from a raw query string
// without re-encoding or reordering the remaining parameters.
func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]

	for _, part := range parts {
		name := part
		if idx := strings.IndexByte(part, '='); idx >= 0 {
			name = part[:idx]
		}

		name = strings.ToLower(name)
		if trackingParams[name] || strings.HasPrefix(name, "utm_") {
			continue
		}

		kept = append(kept, part)
	}

	return strings.Join(kept, "&")
}
