package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobQueue is a Redis list of sync job ids plus a sorted set of jobs that
// must wait until a given time.
type JobQueue struct {
	rdb     *redis.Client
	ready   string
	delayed string
}

func NewJobQueue(rdb *redis.Client, ready, delayed string) *JobQueue {
	return &JobQueue{rdb: rdb, ready: ready, delayed: delayed}
}

func (q *JobQueue) Enqueue(ctx context.Context, jobID string) error {
	if err := q.rdb.LPush(ctx, q.ready, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

// EnqueueAt parks a job until at.
func (q *JobQueue) EnqueueAt(ctx context.Context, jobID string, at time.Time) error {
	err := q.rdb.ZAdd(ctx, q.delayed, redis.Z{Score: float64(at.Unix()), Member: jobID}).Err()
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", jobID, err)
	}
	return nil
}

// Dequeue blocks up to timeout for the next job id. It returns "" and no
// error when nothing arrived.
func (q *JobQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.ready).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("dequeue from %s: %w", q.ready, err)
	}
	// res is [queueName, value]
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}

// promoteScript moves due members to the ready list atomically.
var promoteScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, id in ipairs(due) do
    redis.call("LPUSH", KEYS[2], id)
    redis.call("ZREM", KEYS[1], id)
end
return #due
`)

// PromoteDue moves every delayed job whose time has come to the ready list.
func (q *JobQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.delayed, q.ready}, strconv.FormatInt(now.Unix(), 10)).Int()
	if err != nil {
		return 0, fmt.Errorf("promote delayed jobs: %w", err)
	}
	return n, nil
}

// Delayed returns the number of parked jobs.
func (q *JobQueue) Delayed(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.delayed).Result()
}
