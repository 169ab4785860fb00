// Package headless renders script-built homepages in headless Chrome so their
// <link> and <img> markup can be read by the extractors.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/logohunter/internal/fetcher"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultSettle            = 500 * time.Millisecond
	probeInterval            = 100 * time.Millisecond
)

// iconProbe reports whether the live DOM already carries markup the
// extractors look for. Pages that inject their icons late are polled until it
// turns true or the settle window closes.
const iconProbe = `!!document.querySelector(` +
	`'link[rel~="icon" i], link[rel="apple-touch-icon" i], link[rel="apple-touch-icon-precomposed" i], ` +
	`link[rel="mask-icon" i], meta[property="og:image"], meta[name="msapplication-TileImage" i]')`

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// Settle bounds how long to wait, once the body is ready, for scripts to
	// inject icon markup.
	Settle time.Duration
}

// Fetcher implements fetcher.Fetcher using chromedp and headless Chrome.
type Fetcher struct {
	cfg         Config
	tabs        chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp starts a browser allocator. Tabs are opened lazily per Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.Settle <= 0 {
		cfg.Settle = defaultSettle
	}
	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.tabs = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	f.allocator, f.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

// Fetch renders url and returns the serialized DOM. Image loading is disabled
// in the browser since only markup is needed. The caller's deadline and the
// navigation timeout both apply.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetcher.Response, error) {
	if err := f.openTab(ctx); err != nil {
		return fetcher.Response{}, fetcher.Classify(url, 0, err)
	}
	defer f.closeTab()

	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.navigationTimeout())
	defer cancel()

	doc := &documentResponse{}
	chromedp.ListenTarget(tabCtx, doc.listen)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tabCtx,
		f.prepareTab(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		waitForIconMarkup(f.settle(), probeInterval),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return fetcher.Response{}, fetcher.Classify(url, 0, fmt.Errorf("render %s: %w", url, err))
	}

	status, headers, finalURL := doc.resolve(url, location)
	if status >= http.StatusBadRequest {
		return fetcher.Response{}, fetcher.StatusError(url, status)
	}
	return fetcher.Response{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: status,
		Headers:    headers,
		Body:       []byte(html),
		Duration:   time.Since(start),
		Rendered:   true,
	}, nil
}

func (f *Fetcher) prepareTab() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network events: %w", err)
		}
		if f.cfg.UserAgent == "" {
			return nil
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("override user agent: %w", err)
		}
		return nil
	})
}

// waitForIconMarkup polls the DOM until icon markup shows up or limit passes.
// Running out of time is not an error; the page is serialized as it stands.
func waitForIconMarkup(limit, interval time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		deadline := time.Now().Add(limit)
		for {
			var found bool
			if err := chromedp.Evaluate(iconProbe, &found).Do(ctx); err != nil {
				return fmt.Errorf("probe icon markup: %w", err)
			}
			if found || !time.Now().Before(deadline) {
				return nil
			}
			timer := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	})
}

func (f *Fetcher) openTab(ctx context.Context) error {
	if f.tabs == nil {
		return nil
	}
	select {
	case f.tabs <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for a browser tab: %w", ctx.Err())
	}
}

func (f *Fetcher) closeTab() {
	if f.tabs == nil {
		return
	}
	select {
	case <-f.tabs:
	default:
	}
}

func (f *Fetcher) navigationTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (f *Fetcher) settle() time.Duration {
	if f.cfg.Settle > 0 {
		return f.cfg.Settle
	}
	return defaultSettle
}

// documentResponse remembers the last main-document response seen in a tab.
// Redirect hops each fire an event, so the final one wins.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	headers http.Header
	url     string
}

func (d *documentResponse) listen(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	headers := flattenHeaders(e.Response.Headers)
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = int(e.Response.Status)
	d.headers = headers
	d.url = e.Response.URL
}

// resolve returns the status, headers and final URL of the document. A tab
// that never reported a document response is treated as a 200 for the
// browser's current location, or the requested URL when that is unknown.
func (d *documentResponse) resolve(requested, location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	status := d.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := d.headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}
	finalURL := d.url
	if finalURL == "" {
		finalURL = location
	}
	if finalURL == "" {
		finalURL = requested
	}
	return status, headers, finalURL
}

// flattenHeaders converts DevTools header values, which arrive as loosely
// typed JSON, into an http.Header.
func flattenHeaders(src network.Headers) http.Header {
	out := make(http.Header, len(src))
	for key, value := range src {
		switch v := value.(type) {
		case string:
			out.Add(key, v)
		case []any:
			for _, entry := range v {
				out.Add(key, fmt.Sprint(entry))
			}
		case nil:
		default:
			out.Add(key, fmt.Sprint(v))
		}
	}
	return out
}
