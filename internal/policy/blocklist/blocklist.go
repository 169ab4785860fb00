// Package blocklist keeps candidate fetches away from hosts that never serve
// logos, such as ad and tracking networks.
package blocklist

import (
	"context"
	"errors"
	"net/url"
	"slices"
	"strings"

	"github.com/JakeFAU/logohunter/internal/fetcher"
)

// ErrBlockedHost is wrapped by fetch failures for blocked hosts.
var ErrBlockedHost = errors.New("host is blocklisted")

// DefaultPatterns are ad and tracking hosts whose images are never logos.
var DefaultPatterns = []string{
	"*.doubleclick.net",
	"*.googlesyndication.com",
	"*.google-analytics.com",
	"*.googletagmanager.com",
	"*.facebook.net",
	"*.adnxs.com",
	"*.scorecardresearch.com",
	"*.quantserve.com",
}

// List matches exact hosts and suffix wildcards ("*.example.com" or
// ".example.com"). A nil List blocks nothing.
type List struct {
	exact    map[string]struct{}
	suffixes []string
}

// New builds a List from patterns. It returns nil when no pattern is usable.
func New(patterns []string) *List {
	l := &List{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			l.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			l.addSuffix(strings.TrimPrefix(value, "."))
		default:
			l.exact[value] = struct{}{}
		}
	}
	if len(l.exact) == 0 && len(l.suffixes) == 0 {
		return nil
	}
	return l
}

func (l *List) addSuffix(suffix string) {
	if suffix == "" || slices.Contains(l.suffixes, suffix) {
		return
	}
	l.suffixes = append(l.suffixes, suffix)
}

// Blocked reports whether host matches the list.
func (l *List) Blocked(host string) bool {
	if l == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimSpace(strings.ToLower(host)), ".")
	if host == "" {
		return false
	}
	if _, ok := l.exact[host]; ok {
		return true
	}
	for _, suffix := range l.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Guard refuses fetches to blocked hosts before they reach the network.
type Guard struct {
	next fetcher.Fetcher
	list *List
}

// NewGuard wraps next. A nil list makes Guard a pass-through.
func NewGuard(next fetcher.Fetcher, list *List) *Guard {
	return &Guard{next: next, list: list}
}

// Fetch implements fetcher.Fetcher. Blocked URLs fail with KindBlocked.
func (g *Guard) Fetch(ctx context.Context, rawURL string) (fetcher.Response, error) {
	if u, err := url.Parse(rawURL); err == nil && g.list.Blocked(u.Hostname()) {
		return fetcher.Response{}, &fetcher.Error{Kind: fetcher.KindBlocked, URL: rawURL, Err: ErrBlockedHost}
	}
	return g.next.Fetch(ctx, rawURL)
}
