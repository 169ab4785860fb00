package fetcher

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ExponentialRetryPolicy decides retries with jittered exponential backoff.
type ExponentialRetryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialRetryPolicy builds a policy. Zero values fall back to 3
// attempts, 250ms and 5s.
func NewExponentialRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialRetryPolicy {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	return &ExponentialRetryPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry decides whether the error is retryable. Timeouts, connection
// failures, 429 and 5xx responses are retried; everything else is final.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil || attempt >= p.maxAttempts {
		return false
	}
	var fe *Error
	if !errors.As(err, &fe) {
		return KindOf(err) == KindTimeout || KindOf(err) == KindConnection
	}
	switch fe.Kind {
	case KindTimeout, KindConnection:
		return true
	case KindStatus:
		return fe.StatusCode == http.StatusTooManyRequests || fe.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Retrying re-issues failed fetches according to a policy.
type Retrying struct {
	next   Fetcher
	policy *ExponentialRetryPolicy
	logger *zap.Logger
}

// NewRetrying wraps next.
func NewRetrying(next Fetcher, policy *ExponentialRetryPolicy, logger *zap.Logger) *Retrying {
	if policy == nil {
		policy = NewExponentialRetryPolicy(0, 0, 0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrying{next: next, policy: policy, logger: logger}
}

// Fetch implements Fetcher.
func (r *Retrying) Fetch(ctx context.Context, url string) (Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := r.next.Fetch(ctx, url)
		if err == nil {
			return resp, nil
		}
		if !r.policy.ShouldRetry(err, attempt) {
			return Response{}, err
		}
		delay := r.policy.Backoff(attempt)
		r.logger.Debug("Retrying fetch",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return Response{}, Classify(url, 0, err)
		}
	}
}

func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
