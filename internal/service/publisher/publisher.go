package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"governance-backend/internal/types"
	"governance-backend/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 3 * time.Second

// Client 发布所需的Redis命令
type Client interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// FailureObserver 发布失败计数
type FailureObserver interface {
	ObservePublishFailure()
}

// Publisher 将已提交的治理事件推送到Redis频道
type Publisher struct {
	client   Client
	channel  string
	headKey  string
	observer FailureObserver

	headMu  sync.Mutex
	headSeq uint64
}

// NewPublisher 创建事件发布器
func NewPublisher(client Client, channel string, observer FailureObserver) *Publisher {
	return &Publisher{
		client:   client,
		channel:  channel,
		headKey:  channel + ":head",
		observer: observer,
	}
}

// HeadRecord 链头记录，订阅方用于断线后对账
type HeadRecord struct {
	Sequence uint64 `json:"sequence"`
	Hash     string `json:"hash"`
}

// Publish 逐条发布事件并更新链头，失败只记录不回滚
func (p *Publisher) Publish(ctx context.Context, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return p.fail(fmt.Errorf("marshal event %d: %w", e.Sequence, err), e.Sequence)
		}
		if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
			return p.fail(fmt.Errorf("publish event %d: %w", e.Sequence, err), e.Sequence)
		}
	}

	last := events[len(events)-1]
	p.headMu.Lock()
	defer p.headMu.Unlock()
	if last.Sequence <= p.headSeq {
		// 链头只前进
		logger.Debug("Publish: stale head skipped", "channel", p.channel, "sequence", last.Sequence, "head", p.headSeq)
		return nil
	}
	head, _ := json.Marshal(HeadRecord{Sequence: last.Sequence, Hash: last.Hash.Hex()})
	if err := p.client.Set(ctx, p.headKey, head, 0).Err(); err != nil {
		return p.fail(fmt.Errorf("update head: %w", err), last.Sequence)
	}
	p.headSeq = last.Sequence
	logger.Debug("Publish: ", "channel", p.channel, "events", len(events), "head", last.Sequence)
	return nil
}

// HandleEvents 治理服务订阅回调
func (p *Publisher) HandleEvents(events []types.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	_ = p.Publish(ctx, events)
}

func (p *Publisher) fail(err error, sequence uint64) error {
	logger.Error("Publish Error: ", err, "channel", p.channel, "sequence", sequence)
	if p.observer != nil {
		p.observer.ObservePublishFailure()
	}
	return err
}
