package fetch

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// retrySleep waits for d or until ctx is done. Tests override it.
var retrySleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type retryFetcher struct {
	next     Fetcher
	attempts int
}

// WithRetry wraps next so transport failures and 5xx responses are retried
// with exponential backoff (1s, 2s, 4s, ...), up to attempts tries in total.
// attempts <= 1 returns next unchanged.
func WithRetry(next Fetcher, attempts int) Fetcher {
	if attempts <= 1 {
		return next
	}
	return &retryFetcher{next: next, attempts: attempts}
}

func (r *retryFetcher) Fetch(ctx context.Context, endpoint string) (*Collection, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		coll, err := r.next.Fetch(ctx, endpoint)
		if err == nil {
			return coll, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt < r.attempts-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if err := retrySleep(ctx, backoff); err != nil {
				return nil, lastErr
			}
		}
	}
	return nil, lastErr
}

func isRetryable(err error) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	switch fe.Kind {
	case KindTransport:
		return true
	case KindProtocol:
		return fe.Status >= http.StatusInternalServerError
	default:
		return false
	}
}
