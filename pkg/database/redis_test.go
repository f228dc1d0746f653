package database

import (
	"testing"
	"time"

	"governance-backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(&config.RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 4, DialTimeout: time.Second})
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)
	assert.Equal(t, time.Second, opts.DialTimeout)

	opts = redisOptions(&config.RedisConfig{Host: "localhost", Port: 6379})
	assert.Zero(t, opts.PoolSize)
	assert.Zero(t, opts.DialTimeout)
}
