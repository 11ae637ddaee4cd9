package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cancelPrefix = "sync:cancel:"

// CancelFlags lets the API ask a running job to stop. Workers poll the flag
// between records.
type CancelFlags struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCancelFlags(rdb *redis.Client, ttl time.Duration) *CancelFlags {
	return &CancelFlags{rdb: rdb, ttl: ttl}
}

func (c *CancelFlags) Set(ctx context.Context, jobID string) error {
	if err := c.rdb.Set(ctx, cancelPrefix+jobID, "1", c.ttl).Err(); err != nil {
		return fmt.Errorf("set cancel flag %s: %w", jobID, err)
	}
	return nil
}

func (c *CancelFlags) IsSet(ctx context.Context, jobID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, cancelPrefix+jobID).Result()
	if err != nil {
		return false, fmt.Errorf("check cancel flag %s: %w", jobID, err)
	}
	return n == 1, nil
}

func (c *CancelFlags) Clear(ctx context.Context, jobID string) error {
	return c.rdb.Del(ctx, cancelPrefix+jobID).Err()
}
