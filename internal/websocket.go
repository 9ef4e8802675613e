package internal

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mmheidat/Transcendence/internal/auth"
	"github.com/mmheidat/Transcendence/internal/ratelimit"
	"github.com/mmheidat/Transcendence/pkg/logger"
)

// 握手失敗的關閉碼
const (
	CloseTokenMissing = 4001
	CloseTokenInvalid = 4002
)

// 心跳與寫入期限
//
// writePump 每 54 秒送一次 Ping，readPump 60 秒內沒收到任何幀就斷線，
// 中間 6 秒留給網路延遲。
const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client 一條已認證的 WebSocket 連接
//
// 同一用戶可以有多個 Client（多分頁、多裝置），每個都有自己的 ID。
type Client struct {
	ID          string
	UserID      int64
	DisplayName string

	conn      *websocket.Conn
	limiter   *ratelimit.TokenBucket
	send      chan []byte
	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// NewClient 創建連接物件；conn 由 Hub 在握手後設置
func NewClient(userID int64, displayName string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		ID:          uuid.NewString(),
		UserID:      userID,
		DisplayName: displayName,
		send:        make(chan []byte, buffer),
	}
}

// Messages 出站佇列（writePump 與測試讀取）
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// enqueue 非阻塞排入；連接已關閉或緩衝區滿時回傳 false
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close 關閉出站佇列；writePump 會送出關閉幀後斷開 socket
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if c.conn == nil {
			return
		}
		// writePump 沒在跑（或卡住）時也要讓 readPump 退出
		time.AfterFunc(time.Second, func() { _ = c.conn.Close() })
	})
}

// HubOptions 連接層配置
//
// RateBurst 為 0 時不限制入站速率。
type HubOptions struct {
	SendBuffer     int
	MaxMessageSize int64
	AllowedOrigins []string
	RateBurst      int
	RatePerSecond  float64
}

// Hub WebSocket 入口
//
// 系統設計考量：
//
//  1. 先驗證再升級：
//     token 在升級前驗證，但失敗時仍然完成升級再以 4001 / 4002 關閉，
//     讓瀏覽器端能從 close code 區分「沒帶 token」與「token 無效」。
//
//  2. 每條連接兩個 goroutine：
//     readPump 依序分派訊息（同一連接的訊息順序不變），
//     writePump 是唯一寫 socket 的 goroutine。
type Hub struct {
	coord    *Coordinator
	verifier auth.Verifier
	opts     HubOptions
	logger   *slog.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub 創建 WebSocket Hub
func NewHub(coord *Coordinator, verifier auth.Verifier, opts HubOptions, logger *slog.Logger) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	hub := &Hub{
		coord:    coord,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
	hub.upgrader = websocket.Upgrader{
		CheckOrigin:     hub.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return hub
}

// checkOrigin 未配置白名單時接受所有來源
func (hub *Hub) checkOrigin(r *http.Request) bool {
	if len(hub.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range hub.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// ServeWS 處理 GET /ws?token=...
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	var (
		identity  auth.Identity
		closeCode int
		reason    string
	)
	if token == "" {
		closeCode, reason = CloseTokenMissing, "Token required"
	} else {
		id, err := hub.verifier.Verify(r.Context(), token)
		if err != nil {
			hub.logger.Info("token 驗證失敗", "remote_addr", r.RemoteAddr, "error", err)
			closeCode, reason = CloseTokenInvalid, "Invalid token"
		} else {
			identity = id
		}
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	if closeCode != 0 {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(closeCode, reason), deadline)
		_ = conn.Close()
		return
	}

	client := NewClient(identity.UserID, identity.DisplayName, hub.opts.SendBuffer)
	client.conn = conn
	if hub.opts.RateBurst > 0 {
		client.limiter = ratelimit.NewTokenBucket(hub.opts.RateBurst, hub.opts.RatePerSecond)
	}

	hub.coord.Connect(client)

	hub.wg.Add(2)
	go hub.writePump(client)
	go hub.readPump(client)

	hub.logger.Info("WebSocket 連接建立",
		"conn_id", client.ID,
		"user_id", client.UserID)
}

// Stop 關閉所有連接並等待讀寫 goroutine 結束
func (hub *Hub) Stop() {
	hub.cancel()
	hub.coord.Registry().CloseAll()
	hub.wg.Wait()
	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取並依序分派客戶端訊息；退出即代表連接結束
func (hub *Hub) readPump(c *Client) {
	defer func() {
		hub.coord.Disconnect(c)
		c.Close()
		_ = c.conn.Close()
		hub.wg.Done()
	}()

	ctx := logger.WithUserID(logger.WithConnID(hub.ctx, c.ID), c.UserID)

	c.conn.SetReadLimit(hub.opts.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			hub.logger.Error("設置讀取期限失敗", "error", err)
		}
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				hub.logger.Warn("WebSocket 讀取錯誤",
					"error", err,
					"conn_id", c.ID,
					"user_id", c.UserID)
			}
			return
		}

		// 任何資料幀都算活著
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			hub.logger.DebugContext(ctx, "入站訊息超過速率上限，丟棄")
			continue
		}
		hub.coord.Dispatch(ctx, c, message)
	}
}

// writePump 唯一寫 socket 的 goroutine
func (hub *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		hub.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// 佇列已關閉，送出關閉幀
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出佇列中已有的訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, next); err != nil {
					hub.logger.Warn("發送消息失敗", "conn_id", c.ID, "error", err)
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
