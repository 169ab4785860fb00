package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/logohunter/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport keeps slow robots.txt endpoints from stalling a hunt.
// Probes that time out are retried; when retries run out the host is
// remembered as unreachable and every later probe for it is answered with an
// allow-all file straight away. A hunt probes the same host once per
// candidate, so the memo saves a full retry cycle per candidate.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration

	mu          sync.Mutex
	unreachable map[string]struct{}
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{
		base:        base,
		backoff:     defaultRobotsBackoff,
		unreachable: make(map[string]struct{}),
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("roundtrip %s: %w", req.URL.Host, err)
		}
		return resp, nil
	}

	host := strings.ToLower(req.URL.Host)
	if t.known(host) {
		metrics.ObserveRobotsFallback()
		return allowAll(req), nil
	}
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("robots probe %s: %w", host, err)
		}
		if attempt >= len(t.backoff) {
			t.remember(host)
			metrics.ObserveRobotsFallback()
			return allowAll(req), nil
		}
		if err := pause(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots probe %s: %w", host, err)
		}
	}
}

func (t *robotsTransport) known(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.unreachable[host]
	return ok
}

func (t *robotsTransport) remember(host string) {
	t.mu.Lock()
	t.unreachable[host] = struct{}{}
	t.mu.Unlock()
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAll(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Request:       req,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
