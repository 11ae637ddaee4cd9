package fetcher

import (
	"net/http"
	"time"
)

// RetryPolicy bounds how often one outbound call is attempted.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration // doubles after each failed attempt
	Timeout     time.Duration // per attempt

	// Throttle, when set, replaces the backoff curve for an explicit
	// rate-limit response. Returning false falls back to the default curve.
	// Throttled retries do not consume attempts; MaxThrottleWaits bounds them.
	Throttle         func(resp *http.Response) (time.Duration, bool)
	MaxThrottleWaits int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		Timeout:          30 * time.Second,
		MaxThrottleWaits: 5,
	}
}

// FixedThrottle pauses d on every 429.
func FixedThrottle(d time.Duration) func(*http.Response) (time.Duration, bool) {
	return func(resp *http.Response) (time.Duration, bool) {
		return d, resp.StatusCode == http.StatusTooManyRequests
	}
}

// Backoff is the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.BaseDelay << (attempt - 1)
}

func (p RetryPolicy) normalized() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.MaxThrottleWaits <= 0 {
		p.MaxThrottleWaits = d.MaxThrottleWaits
	}
	return p
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
