package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"oj_sync/internal/platform/metrics"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// Request describes one outbound call. Body is replayed on every attempt.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client is the HTTP session of one fetcher instance. Every call goes through
// the platform's shared rate limiter, the retry policy and the circuit breaker.
type Client struct {
	platform string
	http     *http.Client
	limiter  *RateLimiter
	breaker  *gobreaker.CircuitBreaker[*Response]
	retry    RetryPolicy
	header   http.Header
	log      zerolog.Logger
	sleep    func(context.Context, time.Duration) error
}

// NewClient builds a session from cfg. A fresh cookie jar is attached so
// password logins keep their session cookies.
func NewClient(platform string, cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		jar, _ := cookiejar.New(nil)
		hc = &http.Client{Jar: jar}
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(platform, 0)
	}
	c := &Client{
		platform: platform,
		http:     hc,
		limiter:  limiter,
		breaker:  cfg.Breaker,
		retry:    cfg.Retry.normalized(),
		header:   http.Header{},
		log:      cfg.Logger,
		sleep:    cfg.Sleep,
	}
	if c.sleep == nil {
		c.sleep = sleepCtx
	}
	c.header.Set("User-Agent", defaultUserAgent)
	return c
}

// SetHeader adds a header sent with every request of this session.
func (c *Client) SetHeader(key, value string) { c.header.Set(key, value) }

func (c *Client) HeaderValue(key string) string { return c.header.Get(key) }

// SetThrottle installs a platform-specific rate-limit pause.
func (c *Client) SetThrottle(fn func(*http.Response) (time.Duration, bool)) {
	c.retry.Throttle = fn
}

// Do runs req with rate limiting and retries. Transport failures, 5xx and 429
// are retried; 401/403 fail with ErrAuth; other statuses are returned as is.
func (c *Client) Do(ctx context.Context, op string, req Request) (*Response, error) {
	attempt, throttled := 0, 0
	var lastErr error
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		resp, raw, err := c.attempt(ctx, req)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				metrics.FetchRequests.WithLabelValues(c.platform, "rejected").Inc()
				return nil, E(ErrTransient, c.platform, op, err)
			}
			lastErr = err
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			metrics.FetchRequests.WithLabelValues(c.platform, "auth").Inc()
			return nil, Authf(c.platform, op, "%s returned %d", req.URL, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests && c.retry.Throttle != nil:
			if d, ok := c.retry.Throttle(raw); ok {
				throttled++
				if throttled > c.retry.MaxThrottleWaits {
					return nil, E(ErrRateLimited, c.platform, op, fmt.Errorf("still throttled after %d pauses", c.retry.MaxThrottleWaits))
				}
				metrics.FetchRequests.WithLabelValues(c.platform, "throttled").Inc()
				c.log.Warn().Str("op", op).Dur("pause", d).Msg("rate limited by platform, pausing")
				if err := c.sleep(ctx, d); err != nil {
					return nil, err
				}
				continue
			}
			lastErr = fmt.Errorf("%s returned %d", req.URL, resp.StatusCode)
		case retryableStatus(resp.StatusCode):
			lastErr = fmt.Errorf("%s returned %d", req.URL, resp.StatusCode)
		default:
			metrics.FetchRequests.WithLabelValues(c.platform, "ok").Inc()
			return resp, nil
		}

		attempt++
		if attempt >= c.retry.MaxAttempts {
			metrics.FetchRequests.WithLabelValues(c.platform, "error").Inc()
			return nil, E(ErrTransient, c.platform, op, fmt.Errorf("after %d attempts: %w", attempt, lastErr))
		}
		metrics.FetchRequests.WithLabelValues(c.platform, "retry").Inc()
		delay := c.retry.Backoff(attempt)
		c.log.Warn().Err(lastErr).Str("op", op).Int("attempt", attempt).Dur("backoff", delay).Msg("request failed, retrying")
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs one round trip inside the breaker. Only transport errors
// and 5xx responses count against the breaker.
func (c *Client) attempt(ctx context.Context, req Request) (*Response, *http.Response, error) {
	var raw *http.Response
	call := func() (*Response, error) {
		actx, cancel := context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()

		var body io.Reader
		if req.Body != nil {
			body = bytes.NewReader(req.Body)
		}
		hr, err := http.NewRequestWithContext(actx, req.Method, req.URL, body)
		if err != nil {
			return nil, err
		}
		for k, v := range c.header {
			hr.Header[k] = v
		}
		for k, v := range req.Header {
			hr.Header[k] = v
		}
		r, err := c.http.Do(hr)
		if err != nil {
			return nil, err
		}
		defer r.Body.Close()
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		raw = r
		resp := &Response{StatusCode: r.StatusCode, Header: r.Header, Body: b}
		if r.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	}

	var resp *Response
	var err error
	if c.breaker != nil {
		resp, err = c.breaker.Execute(call)
	} else {
		resp, err = call()
	}
	if errors.Is(err, errServerStatus) {
		err = nil
	}
	return resp, raw, err
}

var errServerStatus = errors.New("server error status")

// Get fetches url and returns the response regardless of status.
func (c *Client) Get(ctx context.Context, op, rawURL string) (*Response, error) {
	return c.Do(ctx, op, Request{Method: http.MethodGet, URL: rawURL})
}

// GetJSON decodes a 200 response into v. 404 yields ErrNotFound.
func (c *Client) GetJSON(ctx context.Context, op, rawURL string, v any) error {
	resp, err := c.Get(ctx, op, rawURL)
	if err != nil {
		return err
	}
	return c.decode(op, resp, v)
}

// PostJSON sends body as JSON and decodes the answer into v (if non-nil).
func (c *Client) PostJSON(ctx context.Context, op, rawURL string, body, v any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", op, err)
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	resp, err := c.Do(ctx, op, Request{Method: http.MethodPost, URL: rawURL, Header: h, Body: b})
	if err != nil {
		return err
	}
	return c.decode(op, resp, v)
}

// PostForm sends an urlencoded form and returns the raw response.
func (c *Client) PostForm(ctx context.Context, op, rawURL string, form url.Values) (*Response, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.Do(ctx, op, Request{Method: http.MethodPost, URL: rawURL, Header: h, Body: []byte(form.Encode())})
}

func (c *Client) decode(op string, resp *Response, v any) error {
	if resp.StatusCode == http.StatusNotFound {
		return E(ErrNotFound, c.platform, op, nil)
	}
	if resp.StatusCode != http.StatusOK {
		return Parsef(c.platform, op, "unexpected status %d", resp.StatusCode)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return E(ErrParse, c.platform, op, fmt.Errorf("decode: %w (body starts %q)", err, snippet(resp.Body)))
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		s = s[:120]
	}
	return s
}
