package candidate

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
)

var (
	// ErrUnsupportedScheme marks data:, javascript: and other non-http references.
	ErrUnsupportedScheme = errors.New("unsupported url scheme")
	// ErrRelativeURL marks a URL that could not be made absolute.
	ErrRelativeURL = errors.New("url is not absolute")
)

// Canonicalize standardizes an absolute URL so equivalent references dedupe.
// It lowercases the scheme and host, removes default ports, cleans the path,
// sorts query parameters and drops the fragment. Escapes are kept as written,
// so the result fetches the same resource as the input.
func Canonicalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	return canonical(u)
}

// Resolve makes ref absolute against base and canonicalizes it.
func Resolve(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyURL
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse reference: %w", err)
	}
	if r.Scheme != "" && !isHTTP(r.Scheme) {
		return "", fmt.Errorf("%s: %w", r.Scheme, ErrUnsupportedScheme)
	}
	if base != nil {
		r = base.ResolveReference(r)
	}
	return canonical(r)
}

// Origin returns scheme://host for the given domain or URL, defaulting to https.
func Origin(domain string) (*url.URL, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, ErrEmptyURL
	}
	if !strings.Contains(domain, "://") {
		domain = "https://" + domain
	}
	u, err := url.Parse(domain)
	if err != nil {
		return nil, fmt.Errorf("parse domain: %w", err)
	}
	if !isHTTP(u.Scheme) {
		return nil, fmt.Errorf("%s: %w", u.Scheme, ErrUnsupportedScheme)
	}
	if u.Hostname() == "" {
		return nil, ErrRelativeURL
	}
	return &url.URL{Scheme: strings.ToLower(u.Scheme), Host: strings.ToLower(u.Host), Path: "/"}, nil
}

func canonical(u *url.URL) (string, error) {
	u.Scheme = strings.ToLower(u.Scheme)
	if !isHTTP(u.Scheme) {
		return "", fmt.Errorf("%q: %w", u.Scheme, ErrUnsupportedScheme)
	}
	if u.Host == "" {
		return "", ErrRelativeURL
	}
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.ForceQuery = false

	// Work on the escaped forms so the canonical URL still names the same
	// resource: %2F stays inside its segment and "?v" does not become "?v=".
	escaped := u.EscapedPath()
	if escaped == "" {
		escaped = "/"
	} else {
		escaped = path.Clean("/" + escaped)
	}
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("unescape path: %w", err)
	}
	u.Path, u.RawPath = decoded, escaped
	u.RawQuery = sortQuery(u.RawQuery)
	return u.String(), nil
}

// sortQuery orders the raw "&" separated parameters by key without decoding
// them. Repeated keys keep their relative order; empty segments are dropped.
func sortQuery(raw string) string {
	if raw == "" {
		return ""
	}
	params := slices.DeleteFunc(strings.Split(raw, "&"), func(p string) bool { return p == "" })
	slices.SortStableFunc(params, func(a, b string) int {
		return strings.Compare(queryKey(a), queryKey(b))
	})
	return strings.Join(params, "&")
}

func queryKey(param string) string {
	key, _, _ := strings.Cut(param, "=")
	return key
}

func isHTTP(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}
