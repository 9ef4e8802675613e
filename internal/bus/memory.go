package bus

import (
	"context"
	"sync"
)

// MemoryBus 行程內匯流排，用於測試與單機開發
//
// 每個訂閱有自己的佇列與 goroutine，handler 依序執行，
// 與 Redis / NATS 的投遞語義相同。
type MemoryBus struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySubscription]struct{}
	closed bool
}

// NewMemoryBus 創建行程內匯流排
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs: make(map[string]map[*memorySubscription]struct{}),
	}
}

type memorySubscription struct {
	bus     *MemoryBus
	channel string
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.channel], s)
		if len(s.bus.subs[s.channel]) == 0 {
			delete(s.bus.subs, s.channel)
		}
		close(s.queue)
		s.bus.mu.Unlock()
		<-s.done
	})
	return nil
}

// Subscribe 訂閱 channel
func (b *MemoryBus) Subscribe(_ context.Context, channel string, handler Handler) (Subscription, error) {
	sub := &memorySubscription{
		bus:     b,
		channel: channel,
		queue:   make(chan []byte, 64),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*memorySubscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer close(sub.done)
		for payload := range sub.queue {
			handler(context.Background(), payload)
		}
	}()

	return sub, nil
}

// Publish 發布訊息；佇列已滿時丟棄
func (b *MemoryBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil
	}

	for sub := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case sub.queue <- msg:
		default:
		}
	}
	return nil
}

// Close 取消所有訂閱
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	b.closed = true
	var all []*memorySubscription
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		_ = sub.Unsubscribe()
	}
	return nil
}
