// Package fetcher defines the network collaborator used by discovery and
// validation: a Fetcher returns the raw bytes of a URL or a typed failure.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Response is a successful fetch.
type Response struct {
	// URL is the URL that was requested.
	URL string
	// FinalURL is the URL after redirects.
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	// Rendered is true when the body came from a headless browser.
	Rendered bool
}

// ContentType returns the Content-Type header, if any.
func (r Response) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Func adapts a function to the Fetcher interface.
type Func func(ctx context.Context, url string) (Response, error)

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, url string) (Response, error) {
	return f(ctx, url)
}

// Kind classifies fetch failures.
type Kind string

// Failure kinds.
const (
	KindTimeout    Kind = "timeout"
	KindDNS        Kind = "dns"
	KindStatus     Kind = "status"
	KindTooLarge   Kind = "too_large"
	KindConnection Kind = "connection"
	KindCanceled   Kind = "canceled"
	KindBlocked    Kind = "blocked"
)

// ErrTooLarge is wrapped by failures for bodies over the configured limit.
var ErrTooLarge = errors.New("response exceeds size limit")

// Error is a typed fetch failure.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap exposes the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusError builds a KindStatus failure.
func StatusError(url string, status int) *Error {
	return &Error{Kind: KindStatus, URL: url, StatusCode: status}
}

// Classify wraps err in an *Error with the best matching kind. A non-zero
// status at or above 400 always yields KindStatus.
func Classify(url string, status int, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	if status >= http.StatusBadRequest {
		return &Error{Kind: KindStatus, URL: url, StatusCode: status, Err: err}
	}
	return &Error{Kind: kindOf(err), URL: url, StatusCode: status, Err: err}
}

func kindOf(err error) Kind {
	if err == nil {
		return KindConnection
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, ErrTooLarge) {
		return KindTooLarge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return KindTimeout
		}
		return KindDNS
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(msg, "no such host"):
		return KindDNS
	}
	return KindConnection
}

// KindOf reports the failure kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return kindOf(err)
}
