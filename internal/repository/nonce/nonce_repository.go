package nonce

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"governance-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// ErrNonceNotFound 挑战不存在、已过期或已被使用
var ErrNonceNotFound = errors.New("login nonce not found or already used")

// Repository 登录挑战存储，Consume对同一挑战只成功一次
type Repository interface {
	Save(ctx context.Context, wallet, nonce, message string, ttl time.Duration) error
	Consume(ctx context.Context, wallet, nonce string) (string, error)
}

// RedisClient 挑战存储所需的Redis命令
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

type redisRepository struct {
	client RedisClient
	prefix string
}

// NewRedisRepository 基于Redis的挑战存储，多实例共享
func NewRedisRepository(client RedisClient, prefix string) Repository {
	return &redisRepository{
		client: client,
		prefix: prefix,
	}
}

func (r *redisRepository) key(wallet, nonce string) string {
	return fmt.Sprintf("%sauth:nonce:%s:%s", r.prefix, wallet, nonce)
}

// Save 写入挑战，键已存在视为冲突
func (r *redisRepository) Save(ctx context.Context, wallet, nonce, message string, ttl time.Duration) error {
	ok, err := r.client.SetNX(ctx, r.key(wallet, nonce), message, ttl).Result()
	if err != nil {
		logger.Error("SaveNonce Error: ", err, "wallet_address", wallet)
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	if !ok {
		return fmt.Errorf("nonce %s already issued", nonce)
	}
	return nil
}

// Consume 原子读取并删除挑战
func (r *redisRepository) Consume(ctx context.Context, wallet, nonce string) (string, error) {
	message, err := r.client.GetDel(ctx, r.key(wallet, nonce)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNonceNotFound
	}
	if err != nil {
		logger.Error("ConsumeNonce Error: ", err, "wallet_address", wallet)
		return "", fmt.Errorf("failed to consume nonce: %w", err)
	}
	return message, nil
}

type memoryEntry struct {
	message   string
	expiresAt time.Time
}

type memoryRepository struct {
	mu      sync.Mutex
	clock   func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryRepository 进程内挑战存储，仅适用于单实例
func NewMemoryRepository(clock func() time.Time) Repository {
	if clock == nil {
		clock = time.Now
	}
	return &memoryRepository{
		clock:   clock,
		entries: make(map[string]memoryEntry),
	}
}

func (m *memoryRepository) Save(_ context.Context, wallet, nonce, message string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
		}
	}
	key := wallet + ":" + nonce
	if _, ok := m.entries[key]; ok {
		return fmt.Errorf("nonce %s already issued", nonce)
	}
	m.entries[key] = memoryEntry{message: message, expiresAt: now.Add(ttl)}
	return nil
}

func (m *memoryRepository) Consume(_ context.Context, wallet, nonce string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := wallet + ":" + nonce
	e, ok := m.entries[key]
	if !ok {
		return "", ErrNonceNotFound
	}
	delete(m.entries, key)
	if !m.clock().Before(e.expiresAt) {
		return "", ErrNonceNotFound
	}
	return e.message, nil
}
