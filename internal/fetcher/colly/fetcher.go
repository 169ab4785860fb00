// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/logohunter/internal/fetcher"
	"github.com/JakeFAU/logohunter/internal/metrics"
)

const (
	defaultTimeout  = 15 * time.Second
	defaultMaxBytes = 5 * 1024 * 1024
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	// MaxBytes caps response bodies; larger responses fail with KindTooLarge.
	MaxBytes int
	// Headers are added to every request.
	Headers http.Header
}

// Fetcher implements fetcher.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponseHeaders(colly.ResponseHeadersCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// attempt collects the outcome of one Visit.
type attempt struct {
	url      string
	start    time.Time
	result   fetcher.Response
	status   int
	err      error
	tooLarge bool
}

// New builds a Fetcher. The transport, timeout and body limit are fixed at
// construction because colly clones share one HTTP backend.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.MaxBodySize = cfg.MaxBytes
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	c.WithTransport(newRobotsTransport(newHTTPTransport()))

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET using Colly. Failures are *fetcher.Error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (fetcher.Response, error) {
	a := &attempt{url: url, start: time.Now()}
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, a)

	resp, err := f.runCollector(ctx, collector, a)
	if err != nil {
		fe := fetcher.Classify(url, a.status, err)
		metrics.ObserveFetch(url, string(fe.Kind), 0)
		f.logger.Debug("Fetch failed",
			zap.String("url", url),
			zap.String("kind", string(fe.Kind)),
			zap.Int("status", fe.StatusCode),
			zap.Error(fe.Err),
		)
		return fetcher.Response{}, fe
	}
	metrics.ObserveFetch(url, "ok", len(resp.Body))
	return resp, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, a *attempt) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(r)
	})

	hooks.OnResponseHeaders(func(r *colly.Response) {
		if r.Headers == nil {
			return
		}
		if n, err := strconv.Atoi(r.Headers.Get("Content-Length")); err == nil && n > f.cfg.MaxBytes {
			a.tooLarge = true
			r.Request.Abort()
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if len(r.Body) >= f.cfg.MaxBytes {
			// colly truncates at MaxBodySize, so a full buffer means the body was cut.
			a.tooLarge = true
		}
		headers := http.Header{}
		if r.Headers != nil {
			headers = r.Headers.Clone()
		}
		finalURL := a.url
		if r.Request != nil && r.Request.URL != nil {
			finalURL = r.Request.URL.String()
		}
		a.status = r.StatusCode
		a.result = fetcher.Response{
			URL:        a.url,
			FinalURL:   finalURL,
			StatusCode: r.StatusCode,
			Headers:    headers,
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(a.start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			a.status = r.StatusCode
		}
		a.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, a *attempt) (fetcher.Response, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(a.url)
	}()

	select {
	case <-ctx.Done():
		return fetcher.Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		switch {
		case a.tooLarge:
			return fetcher.Response{}, fmt.Errorf("%d byte limit: %w", f.cfg.MaxBytes, fetcher.ErrTooLarge)
		case errors.Is(err, colly.ErrRobotsTxtBlocked):
			return fetcher.Response{}, &fetcher.Error{Kind: fetcher.KindBlocked, URL: a.url, Err: err}
		case err != nil:
			return fetcher.Response{}, fmt.Errorf("colly visit failed: %w", err)
		case a.err != nil:
			return fetcher.Response{}, fmt.Errorf("colly response failed: %w", a.err)
		case a.status >= http.StatusBadRequest:
			return fetcher.Response{}, fetcher.StatusError(a.url, a.status)
		}
		return a.result, nil
	}
}

func (f *Fetcher) copyHeaders(r *colly.Request) {
	if f.cfg.Headers == nil || r.Headers == nil {
		return
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
