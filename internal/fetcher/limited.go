package fetcher

import "context"

// Waiter blocks until a request to url may proceed.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Limited caps the number of in-flight fetches and paces them through an
// optional Waiter. One Limited is created per domain run.
type Limited struct {
	next   Fetcher
	slots  chan struct{}
	waiter Waiter
}

// NewLimited wraps next with a semaphore of size slots (minimum 1).
func NewLimited(next Fetcher, slots int, waiter Waiter) *Limited {
	if slots <= 0 {
		slots = 1
	}
	return &Limited{
		next:   next,
		slots:  make(chan struct{}, slots),
		waiter: waiter,
	}
}

// Fetch implements Fetcher.
func (l *Limited) Fetch(ctx context.Context, url string) (Response, error) {
	if err := l.acquire(ctx); err != nil {
		return Response{}, Classify(url, 0, err)
	}
	defer l.release()

	if l.waiter != nil {
		if err := l.waiter.Wait(ctx, url); err != nil {
			return Response{}, Classify(url, 0, err)
		}
	}
	return l.next.Fetch(ctx, url)
}

func (l *Limited) acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limited) release() {
	select {
	case <-l.slots:
	default:
	}
}
