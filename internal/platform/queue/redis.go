package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"oj_sync/internal/platform/config"
	"oj_sync/internal/platform/logging"
)

var RDB *redis.Client

// ConnectRedis opens the client, pings it and stores it in RDB.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Addr, err)
	}
	logging.Info().Str("addr", cfg.Addr).Msg("connected to Redis")
	RDB = rdb
	return rdb, nil
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
		logging.Info().Msg("redis connection closed")
	}
}
