package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/logohunter/internal/candidate"
	"github.com/JakeFAU/logohunter/internal/document"
	"github.com/JakeFAU/logohunter/internal/fetcher"
)

const defaultManifestTimeout = 5 * time.Second

// ErrNoFetcher is returned by the manifest extractor when it has no way to
// reach the network.
var ErrNoFetcher = errors.New("manifest extractor has no fetcher")

// Manifest reads icons from the web app manifest. It is the only extractor
// that performs a network round trip.
type Manifest struct {
	Fetcher fetcher.Fetcher
	Timeout time.Duration
}

type webManifest struct {
	Icons []manifestIcon `json:"icons"`
}

type manifestIcon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
}

// Name implements Extractor.
func (m *Manifest) Name() string { return "manifest" }

// Extract fetches every manifest the page declares, or /manifest.json on the
// page origin when it declares none. It fails only when no manifest could be
// read at all.
func (m *Manifest) Extract(ctx context.Context, doc *document.Document) ([]candidate.Candidate, error) {
	if m.Fetcher == nil {
		return nil, ErrNoFetcher
	}
	var (
		out  []candidate.Candidate
		errs []error
		read int
	)
	for _, manifestURL := range manifestURLs(doc) {
		found, err := m.fetchOne(ctx, manifestURL)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		read++
		out = append(out, found...)
	}
	if read == 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func manifestURLs(doc *document.Document) []string {
	var urls []string
	seen := map[string]bool{}
	for _, l := range doc.Links() {
		if !l.HasRel("manifest") {
			continue
		}
		if u, ok := doc.Resolve(l.Href); ok && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(urls) > 0 {
		return urls
	}
	if u, err := candidate.Resolve(doc.Page(), "/manifest.json"); err == nil {
		urls = append(urls, u)
	}
	return urls
}

func (m *Manifest) fetchOne(ctx context.Context, manifestURL string) ([]candidate.Candidate, error) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultManifestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := m.Fetcher.Fetch(ctx, manifestURL)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	icons, err := parseManifest(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", manifestURL, err)
	}
	base := resp.FinalURL
	if base == "" {
		base = manifestURL
	}
	return manifestCandidates(base, icons), nil
}

func parseManifest(body []byte) ([]manifestIcon, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	var wm webManifest
	if err := json.Unmarshal(body, &wm); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return wm.Icons, nil
}

func manifestCandidates(manifestURL string, icons []manifestIcon) []candidate.Candidate {
	// Icon sources resolve against the manifest itself, not the page.
	base, err := url.Parse(manifestURL)
	if err != nil {
		return nil
	}

	var out []candidate.Candidate
	for _, icon := range icons {
		src, err := candidate.Resolve(base, icon.Src)
		if err != nil {
			continue
		}
		c := candidate.New(src, candidate.InferFormat(src, icon.Type), candidate.TagManifestIcon)
		if purposeStrong(icon.Purpose) {
			c.AddTag(candidate.TagManifestAny)
		}
		c.Declared = sizeOrFilename(candidate.Largest(candidate.ParseSizes(icon.Sizes)), src)
		out = append(out, c)
	}
	return out
}

// purposeStrong reports an explicit "any" or "maskable" purpose. An absent
// purpose is not treated as "any".
func purposeStrong(purpose string) bool {
	for _, p := range strings.Fields(strings.ToLower(purpose)) {
		if p == "any" || p == "maskable" {
			return true
		}
	}
	return false
}
