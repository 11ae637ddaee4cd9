package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

// recordSleeps returns a Sleep hook that records requested delays.
func recordSleeps(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return ctx.Err()
	}
}

func newTestClient(delays *[]time.Duration) *Client {
	return NewClient("test", Config{
		Retry:  DefaultRetryPolicy(),
		Logger: zerolog.Nop(),
		Sleep:  recordSleeps(delays),
	})
}

func TestClientRetriesServerErrors(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newTestClient(&delays)
	var out struct{ OK bool }
	if err := c.GetJSON(context.Background(), "get", srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK || calls.Load() != 3 {
		t.Fatalf("ok=%v calls=%d", out.OK, calls.Load())
	}
	if diff := cmp.Diff([]time.Duration{time.Second, 2 * time.Second}, delays); diff != "" {
		t.Errorf("backoff (-want +got):\n%s", diff)
	}
}

func TestClientExhaustionIsTransient(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var delays []time.Duration
	_, err := newTestClient(&delays).Get(context.Background(), "get", srv.URL)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
	var fe *Error
	if !errors.As(err, &fe) || fe.Platform != "test" {
		t.Errorf("err not a classified *Error: %#v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientAuthFailsFast(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	var delays []time.Duration
	_, err := newTestClient(&delays).Get(context.Background(), "get", srv.URL)
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if calls.Load() != 1 || len(delays) != 0 {
		t.Errorf("calls=%d delays=%v, want a single attempt", calls.Load(), delays)
	}
}

func TestClientThrottleDoesNotConsumeAttempts(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch n := calls.Add(1); {
		case n <= 4:
			w.WriteHeader(http.StatusTooManyRequests)
		case n == 5:
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newTestClient(&delays)
	c.SetThrottle(FixedThrottle(30 * time.Second))
	if err := c.GetJSON(context.Background(), "get", srv.URL, nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	want := []time.Duration{30 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second, time.Second}
	if diff := cmp.Diff(want, delays); diff != "" {
		t.Errorf("pauses (-want +got):\n%s", diff)
	}
}

func TestClientThrottledOut(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newTestClient(&delays)
	c.SetThrottle(FixedThrottle(30 * time.Second))
	_, err := c.Get(context.Background(), "get", srv.URL)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if len(delays) != DefaultRetryPolicy().MaxThrottleWaits {
		t.Errorf("paused %d times", len(delays))
	}
}

func TestClientNotFoundAndSessionHeaders(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Session") != "abc" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var delays []time.Duration
	c := newTestClient(&delays)
	c.SetHeader("X-Session", "abc")
	err := c.GetJSON(context.Background(), "get", srv.URL, &struct{}{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestClientParseError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	var delays []time.Duration
	var out map[string]any
	err := newTestClient(&delays).GetJSON(context.Background(), "get", srv.URL, &out)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("err = %v, want ErrParse", err)
	}
}
