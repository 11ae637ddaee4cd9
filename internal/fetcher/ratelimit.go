package fetcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/metrics"
)

// DefaultInterval is the minimum spacing between requests to one platform.
const DefaultInterval = 2 * time.Second

// RateLimiter spaces calls so that at least Interval passes between the
// return of one Wait and the return of the next. It is safe for concurrent
// use; waiters are served in arrival order.
type RateLimiter struct {
	platform string
	interval time.Duration
	slot     chan struct{}
	last     time.Time // release instant of the previous Wait, guarded by slot

	throttled rate.Sometimes

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewRateLimiter(platform string, interval time.Duration) *RateLimiter {
	if interval < 0 {
		interval = 0
	}
	return &RateLimiter{
		platform:  platform,
		interval:  interval,
		slot:      make(chan struct{}, 1),
		throttled: rate.Sometimes{Interval: time.Minute},
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func (r *RateLimiter) Interval() time.Duration { return r.interval }

// Wait blocks until the caller may issue its request.
func (r *RateLimiter) Wait(ctx context.Context) error {
	start := r.now()
	at, err := r.acquire(ctx)
	if err != nil {
		return err
	}
	metrics.RateLimiterWait.WithLabelValues(r.platform).Observe(at.Sub(start).Seconds())
	return nil
}

// acquire holds the slot until the interval since the previous release has
// fully elapsed and returns the new release instant. A sleep that wakes
// early is repeated; one that overshoots pushes the next release back with it.
func (r *RateLimiter) acquire(ctx context.Context) (time.Time, error) {
	select {
	case r.slot <- struct{}{}:
	case <-ctx.Done():
		return time.Time{}, ctx.Err()
	}
	defer func() { <-r.slot }()

	for {
		now := r.now()
		if r.last.IsZero() {
			r.last = now
			return now, nil
		}
		d := r.last.Add(r.interval).Sub(now)
		if d <= 0 {
			r.last = now
			return now, nil
		}
		r.throttled.Do(func() {
			logging.Debug().Str("platform", r.platform).Dur("wait", d).Msg("rate limited")
		})
		if err := r.sleep(ctx, d); err != nil {
			return time.Time{}, err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limiters hands out one RateLimiter per platform.
type Limiters struct {
	mu       sync.Mutex
	interval time.Duration
	perPlat  map[string]time.Duration
	byPlat   map[string]*RateLimiter
}

func NewLimiters(interval time.Duration) *Limiters {
	return &Limiters{
		interval: interval,
		perPlat:  map[string]time.Duration{},
		byPlat:   map[string]*RateLimiter{},
	}
}

// SetInterval overrides the interval for one platform. It only affects
// limiters created afterwards.
func (l *Limiters) SetInterval(platform string, d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.perPlat[platform] = d
}

func (l *Limiters) For(platform string) *RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rl, ok := l.byPlat[platform]; ok {
		return rl
	}
	d, ok := l.perPlat[platform]
	if !ok {
		d = l.interval
	}
	rl := NewRateLimiter(platform, d)
	l.byPlat[platform] = rl
	return rl
}
