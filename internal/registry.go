package internal

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Registry 連接註冊表：用戶 ID → 在線連接集合
//
// 一個用戶可以同時開多個分頁或裝置，因此值是集合而不是單一連接。
// 集合清空時整個用戶條目一併刪除，這是系統中唯一的「用戶離線」訊號。
//
// 系統設計考量：
//
//  1. 並發控制（RWMutex）：
//     SendTo 是熱點（每個 paddle 更新都會走一次），只需讀鎖；
//     Register / Unregister 只在握手與斷線時發生。
//
//  2. 發送不阻塞：
//     SendTo 只把已序列化的位元組丟進每個連接的緩衝 channel，
//     真正的寫 socket 由各連接的 writePump 完成；緩衝滿了就丟棄。
type Registry struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

// NewRegistry 創建連接註冊表
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register 加入連接；回傳這是否為該用戶的第一個連接（剛上線）
//
// 對同一個連接重複呼叫是冪等的。
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.clients[c.UserID]
	if !exists {
		set = make(map[*Client]struct{})
		r.clients[c.UserID] = set
	}
	if _, dup := set[c]; dup {
		return false
	}
	set[c] = struct{}{}

	return !exists
}

// Unregister 移除連接；回傳用戶是否因此離線
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.clients[c.UserID]
	if !exists {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(r.clients, c.UserID)
		return true
	}
	return false
}

// SendTo 序列化一次，推給該用戶所有在線連接；回傳成功排入的連接數
//
// 用戶不在線時是 no-op，呼叫方不能假設已送達。
func (r *Registry) SendTo(userID int64, msg any) int {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("序列化出站訊息失敗", "user_id", userID, "error", err)
		return 0
	}
	return r.sendRaw(userID, data)
}

func (r *Registry) sendRaw(userID int64, data []byte) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for c := range r.clients[userID] {
		if c.enqueue(data) {
			delivered++
			continue
		}
		r.logger.Warn("連接緩衝區滿，丟棄訊息",
			"user_id", userID,
			"conn_id", c.ID)
	}
	return delivered
}

// IsOnline 用戶是否至少有一個在線連接
func (r *Registry) IsOnline(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.clients[userID]
	return ok
}

// ConnectionCount 某用戶的在線連接數
func (r *Registry) ConnectionCount(userID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients[userID])
}

// OnlineUsers 在線用戶數
func (r *Registry) OnlineUsers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// TotalConnections 所有在線連接數
func (r *Registry) TotalConnections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, set := range r.clients {
		total += len(set)
	}
	return total
}

// CloseAll 關閉所有連接（服務關閉時使用）
//
// 只關閉 socket，實際的註銷由各連接的 readPump 退出時完成。
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Client, 0)
	for _, set := range r.clients {
		for c := range set {
			all = append(all, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.Close()
	}
}
