package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBus 以 Redis Pub/Sub 實作 Bus
//
// Redis Pub/Sub 是 fire-and-forget：沒有在線訂閱者時訊息直接丟棄，
// 與「離線用戶透過聊天服務 REST 補拉」的語義一致。
type RedisBus struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisBus 創建 Redis 匯流排；client 的生命週期由呼叫方管理
func NewRedisBus(client *redis.Client, logger *slog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger,
	}
}

type redisSubscription struct {
	pubsub *redis.PubSub
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *redisSubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.err = s.pubsub.Close()
		<-s.done
	})
	return s.err
}

// Subscribe 訂閱 channel，等待 Redis 確認後才返回
func (b *RedisBus) Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)

	// 第一則回覆是訂閱確認；不等待的話，緊接著的 Publish 可能比訂閱先到
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		done:   make(chan struct{}),
	}

	msgs := pubsub.Channel()
	go func() {
		defer close(sub.done)
		for msg := range msgs {
			handler(context.Background(), []byte(msg.Payload))
		}
	}()

	b.logger.Info("已訂閱 Redis 頻道", "channel", channel)
	return sub, nil
}

// Publish 發布訊息
func (b *RedisBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close 匯流排不擁有 client，無需關閉
func (b *RedisBus) Close() error {
	return nil
}
