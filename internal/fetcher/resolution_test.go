package fetcher

import (
	"context"
	"errors"
	"testing"
)

func TestResolutionCacheWalksOnce(t *testing.T) {
	t.Parallel()
	walks := 0
	c := NewResolutionCache("test", func(ctx context.Context) (map[string]string, error) {
		walks++
		return map[string]string{"17": "uuid-17", "18": "uuid-18"}, nil
	})
	ctx := context.Background()

	id, err := c.Resolve(ctx, "17")
	if err != nil || id != "uuid-17" {
		t.Fatalf("Resolve(17) = %q, %v", id, err)
	}
	if id, _ := c.Resolve(ctx, "18"); id != "uuid-18" {
		t.Errorf("Resolve(18) = %q", id)
	}
	if _, err := c.Resolve(ctx, "99"); !errors.Is(err, ErrUnresolved) {
		t.Errorf("Resolve(99) err = %v, want ErrUnresolved", err)
	}
	if walks != 1 {
		t.Errorf("walks = %d, want 1", walks)
	}
}

func TestResolutionCachePutSkipsWalk(t *testing.T) {
	t.Parallel()
	c := NewResolutionCache("test", func(ctx context.Context) (map[string]string, error) {
		t.Error("walk should not run for a seeded key")
		return nil, nil
	})
	c.Put("5", "u5")
	if id, err := c.Resolve(context.Background(), "5"); err != nil || id != "u5" {
		t.Fatalf("Resolve = %q, %v", id, err)
	}
}

func TestResolutionCacheWalkError(t *testing.T) {
	t.Parallel()
	boom := E(ErrAuth, "test", "walk", nil)
	c := NewResolutionCache("test", func(ctx context.Context) (map[string]string, error) {
		return map[string]string{"1": "u1"}, boom
	})
	if _, err := c.Resolve(context.Background(), "2"); !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want walk error", err)
	}
	// Partial results of a failed walk are still usable.
	if id, err := c.Resolve(context.Background(), "1"); err != nil || id != "u1" {
		t.Errorf("Resolve(1) = %q, %v", id, err)
	}
}
