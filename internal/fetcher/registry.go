package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"oj_sync/internal/platform/logging"
	"oj_sync/internal/platform/metrics"
)

type entry struct {
	meta    Meta
	factory Factory
	retry   *RetryPolicy
}

// Registry maps platform ids to factories. Adapters register explicitly at
// startup; there is no discovery.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]entry
	limiters *Limiters
	breakers map[string]*gobreaker.CircuitBreaker[*Response]
	retry    RetryPolicy

	// HTTPClient and BaseURLs are mostly for tests.
	HTTPClient *http.Client
	BaseURLs   map[string]string
	Sleep      func(context.Context, time.Duration) error
}

// RegistryOptions carries the shared knobs for all platforms.
type RegistryOptions struct {
	Interval time.Duration
	Retry    RetryPolicy
}

func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	return &Registry{
		entries:  map[string]entry{},
		limiters: NewLimiters(opts.Interval),
		breakers: map[string]*gobreaker.CircuitBreaker[*Response]{},
		retry:    opts.Retry.normalized(),
		BaseURLs: map[string]string{},
	}
}

// Register adds a platform. Registering the same id twice panics, it is a
// wiring bug.
func (r *Registry) Register(meta Meta, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[meta.Platform]; dup {
		panic(fmt.Sprintf("fetcher: platform %q registered twice", meta.Platform))
	}
	r.entries[meta.Platform] = entry{meta: meta, factory: f}
}

// OverrideRetry installs a platform-specific policy.
func (r *Registry) OverrideRetry(platform string, p RetryPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[platform]
	if !ok {
		return
	}
	p = p.normalized()
	e.retry = &p
	r.entries[platform] = e
}

// Limiters exposes the shared per-platform limiters.
func (r *Registry) Limiters() *Limiters { return r.limiters }

// Meta returns the metadata of a registered platform.
func (r *Registry) Meta(platform string) (Meta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[platform]
	return e.meta, ok
}

// Metas lists registered platforms sorted by id.
func (r *Registry) Metas() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Meta, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}

// New builds a fetcher for one account. Unknown platforms fail immediately
// with ErrUnknownPlatform.
func (r *Registry) New(platform string, creds Credentials) (PlatformFetcher, error) {
	r.mu.RLock()
	e, ok := r.entries[platform]
	base := r.BaseURLs[platform]
	r.mu.RUnlock()
	if !ok {
		return nil, &Error{Kind: ErrUnknownPlatform, Platform: platform, Op: "registry.New"}
	}

	retry := r.retry
	if e.retry != nil {
		retry = *e.retry
	}
	cfg := Config{
		Credentials: creds,
		BaseURL:     base,
		Limiter:     r.limiters.For(platform),
		Breaker:     r.breaker(platform),
		Retry:       retry,
		HTTPClient:  r.HTTPClient,
		Logger:      r.logger(platform),
		Sleep:       r.Sleep,
	}
	return e.factory(cfg)
}

func (r *Registry) logger(platform string) zerolog.Logger {
	return logging.With().Str("component", "fetcher").Str("platform", platform).Logger()
}

func (r *Registry) breaker(platform string) *gobreaker.CircuitBreaker[*Response] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[platform]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        platform,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().Str("platform", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	r.breakers[platform] = cb
	return cb
}
