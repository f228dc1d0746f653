package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"governance-backend/internal/config"
	"governance-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// NewRedisConnection 创建Redis连接，事件推送与登录挑战共用
func NewRedisConnection(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(redisOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		logger.Error("NewRedisConnection Error: ", errors.New("failed to connect to redis"), "error: ", err)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("NewRedisConnection: ", "host: ", cfg.Host, "port: ", cfg.Port, "db: ", cfg.DB, "key_prefix", cfg.KeyPrefix)
	return client, nil
}

func redisOptions(cfg *config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	return opts
}
