// Package bus 是跨行程的發布/訂閱匯流排
//
// 聊天服務在訊息寫入後發布通知，本服務的每個實例各自訂閱，
// 只把通知推給連在自己身上的用戶。匯流排只搬運不透明的 JSON，
// 不保證送達，也不保留歷史。
package bus

import (
	"context"
)

// Handler 處理一則訊息；同一個訂閱的 handler 依序呼叫，不會並行
type Handler func(ctx context.Context, payload []byte)

// Subscription 已建立的訂閱
type Subscription interface {
	Unsubscribe() error
}

// Bus 發布/訂閱介面
type Bus interface {
	Subscribe(ctx context.Context, channel string, handler Handler) (Subscription, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}
