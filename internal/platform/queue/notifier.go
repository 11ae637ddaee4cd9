package queue

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"oj_sync/internal/domain/model"
)

// Notifier publishes SyncCompleted events for downstream consumers.
type Notifier struct {
	rdb     *redis.Client
	channel string
}

func NewNotifier(rdb *redis.Client, channel string) *Notifier {
	return &Notifier{rdb: rdb, channel: channel}
}

func (n *Notifier) Channel() string { return n.channel }

func (n *Notifier) Publish(ctx context.Context, ev model.SyncCompleted) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal sync event: %w", err)
	}
	if err := n.rdb.Publish(ctx, n.channel, b).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}
