package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// redisSettings resolves REDIS_URL, which may be a plain host:port or a
// redis:// URL, into the connection parameters both clients share.
func redisSettings(cfg *Config) (addr, password string, db int, err error) {
	if strings.HasPrefix(cfg.RedisURL, "redis://") || strings.HasPrefix(cfg.RedisURL, "rediss://") {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return "", "", 0, fmt.Errorf("failed to parse Redis URL: %v", err)
		}
		return opt.Addr, opt.Password, opt.DB, nil
	}
	return cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB, nil
}

// NewRedisClient connects to Redis and verifies the connection. The queue
// itself is managed by asynq; this client serves health checks and rate
// limiting.
func NewRedisClient(cfg *Config) (*redis.Client, error) {
	addr, password, db, err := redisSettings(cfg)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return rdb, nil
}

// AsynqRedisOpt builds the asynq connection options from the same settings.
func AsynqRedisOpt(cfg *Config) (asynq.RedisClientOpt, error) {
	addr, password, db, err := redisSettings(cfg)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
		DB:       db,
	}, nil
}
