package httpclient

import (
	"net/http"
	"time"
)

// RetryPolicy decides how often and how patiently a request is retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, including the first one.
	MaxAttempts int

	// Backoff holds the delay before the 2nd, 3rd, ... attempt. Attempts past
	// the end of the schedule reuse its last entry.
	Backoff []time.Duration

	// Retryable reports whether a response with the given status should be
	// tried again. Transport errors are always retryable.
	Retryable func(status int) bool
}

// DefaultPolicy returns 3 attempts with 5s, 15s, 30s backoff.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{5 * time.Second, 15 * time.Second, 30 * time.Second},
		Retryable:   RetryableStatus,
	}
}

// SingleAttempt returns a policy that never retries. It is used for the
// best-effort report sent after a run has already failed.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1, Retryable: RetryableStatus}
}

// RetryableStatus retries 429 and every 5xx. Other 4xx responses are final.
func RetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// Delay returns the wait before attempt number attempt+1, where attempt is
// the 1-based index of the attempt that just failed.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) retryable(status int) bool {
	if p.Retryable == nil {
		return RetryableStatus(status)
	}
	return p.Retryable(status)
}
