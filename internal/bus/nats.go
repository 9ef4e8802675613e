package bus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSBus 以 Core NATS subject 實作 Bus
//
// 只用 Core NATS，不用 JetStream：聊天通知不需要持久化與重送。
type NATSBus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// ConnectNATS 連接 NATS Server（無限重連）
func ConnectNATS(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}
	return conn, nil
}

// NewNATSBus 創建 NATS 匯流排，並接管 conn 的關閉
func NewNATSBus(conn *nats.Conn, logger *slog.Logger) *NATSBus {
	return &NATSBus{
		conn:   conn,
		logger: logger,
	}
}

// Subscribe 訂閱 subject；Flush 確保伺服器已登記訂閱
func (b *NATSBus) Subscribe(_ context.Context, channel string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(channel, func(msg *nats.Msg) {
		handler(context.Background(), msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	if err := b.conn.FlushTimeout(2 * time.Second); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription %s: %w", channel, err)
	}

	b.logger.Info("已訂閱 NATS subject", "subject", channel)
	return sub, nil
}

// Publish 發布訊息
func (b *NATSBus) Publish(_ context.Context, channel string, payload []byte) error {
	if err := b.conn.Publish(channel, payload); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Close 排空訂閱後關閉連接
func (b *NATSBus) Close() error {
	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
