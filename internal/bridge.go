package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mmheidat/Transcendence/internal/bus"
)

// chatEvent 聊天服務發布的通知
//
// receiver_id 決定推給誰；message 原樣轉發。沒有 message 欄位時轉發整個 payload。
type chatEvent struct {
	ReceiverID      *UserID         `json:"receiver_id"`
	ReceiverIDCamel *UserID         `json:"receiverId"`
	Message         json.RawMessage `json:"message"`
}

func (e chatEvent) receiver() (int64, bool) {
	switch {
	case e.ReceiverID != nil:
		return int64(*e.ReceiverID), true
	case e.ReceiverIDCamel != nil:
		return int64(*e.ReceiverIDCamel), true
	default:
		return 0, false
	}
}

// Bridge 把匯流排上的聊天通知推給本實例上的在線用戶
//
// 整個行程只訂閱一次。離線用戶的通知直接丟棄，
// 他們下次透過聊天服務的 REST API 取得訊息。
type Bridge struct {
	bus      bus.Bus
	channel  string
	registry *Registry
	logger   *slog.Logger

	mu  sync.Mutex
	sub bus.Subscription

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewBridge 創建通知橋接
func NewBridge(b bus.Bus, channel string, registry *Registry, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:      b,
		channel:  channel,
		registry: registry,
		logger:   logger,
	}
}

// Start 訂閱通知頻道；重複呼叫是 no-op
func (br *Bridge) Start(ctx context.Context) error {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.sub != nil {
		return nil
	}

	sub, err := br.bus.Subscribe(ctx, br.channel, br.handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", br.channel, err)
	}
	br.sub = sub

	br.logger.Info("聊天通知橋接已啟動", "channel", br.channel)
	return nil
}

func (br *Bridge) handle(ctx context.Context, payload []byte) {
	var ev chatEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		br.logger.WarnContext(ctx, "解析聊天通知失敗", "error", err)
		return
	}

	receiverID, ok := ev.receiver()
	if !ok {
		br.logger.WarnContext(ctx, "聊天通知缺少 receiver_id")
		return
	}

	message := ev.Message
	if len(message) == 0 {
		message = json.RawMessage(payload)
	}

	n := br.registry.SendTo(receiverID, NewMessageMessage{
		Type:    TypeNewMessage,
		Message: message,
	})
	if n == 0 {
		br.dropped.Add(1)
		br.logger.DebugContext(ctx, "接收者不在線，丟棄聊天通知", "receiver_id", receiverID)
		return
	}
	br.delivered.Add(1)
}

// Delivered 已推送的通知數
func (br *Bridge) Delivered() int64 { return br.delivered.Load() }

// Dropped 因接收者離線而丟棄的通知數
func (br *Bridge) Dropped() int64 { return br.dropped.Load() }

// Stop 取消訂閱
func (br *Bridge) Stop() error {
	br.mu.Lock()
	defer br.mu.Unlock()

	if br.sub == nil {
		return nil
	}
	err := br.sub.Unsubscribe()
	br.sub = nil
	return err
}
