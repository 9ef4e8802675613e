package internal

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmheidat/Transcendence/internal/store"
)

// CoordinatorOptions 協調器配置
type CoordinatorOptions struct {
	InviteTTL time.Duration
	Session   SessionOptions
}

// Coordinator 把連接註冊表、邀請、對局與路由組在一起
//
// Hub 只認識 Coordinator：握手成功呼叫 Connect，
// 每則訊息呼叫 Dispatch，readPump 退出呼叫 Disconnect。
type Coordinator struct {
	registry *Registry
	invites  *InviteManager
	sessions *SessionRegistry
	router   *Router
	logger   *slog.Logger

	startedAt time.Time
}

// NewCoordinator 創建協調器
func NewCoordinator(matchStore store.MatchStore, opts CoordinatorOptions, logger *slog.Logger) *Coordinator {
	registry := NewRegistry(logger)
	sessions := NewSessionRegistry(registry, matchStore, opts.Session, logger)
	invites := NewInviteManager(registry, sessions, opts.InviteTTL, logger)

	return &Coordinator{
		registry:  registry,
		invites:   invites,
		sessions:  sessions,
		router:    NewRouter(registry, invites, sessions, logger),
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Registry 連接註冊表
func (co *Coordinator) Registry() *Registry { return co.registry }

// Invites 邀請管理器
func (co *Coordinator) Invites() *InviteManager { return co.invites }

// Sessions 對局註冊表
func (co *Coordinator) Sessions() *SessionRegistry { return co.sessions }

// Connect 註冊已認證的連接
func (co *Coordinator) Connect(c *Client) {
	if co.registry.Register(c) {
		co.sessions.UserOnline(c.UserID)
		co.logger.Info("用戶上線", "user_id", c.UserID)
	}
}

// Disconnect 註銷連接；最後一個連接關閉時清理邀請並排程判負
func (co *Coordinator) Disconnect(c *Client) {
	if !co.registry.Unregister(c) {
		return
	}
	co.logger.Info("用戶離線", "user_id", c.UserID)
	co.invites.CancelAllFor(c.UserID)
	co.sessions.UserOffline(c.UserID)
}

// Dispatch 分派入站訊息
func (co *Coordinator) Dispatch(ctx context.Context, c *Client, frame []byte) {
	co.router.Dispatch(ctx, c, frame)
}

// Stats 服務即時統計
func (co *Coordinator) Stats() map[string]any {
	return map[string]any{
		"online_users":    co.registry.OnlineUsers(),
		"connections":     co.registry.TotalConnections(),
		"pending_invites": co.invites.Pending(),
		"active_games":    co.sessions.Count(),
		"uptime_seconds":  int64(time.Since(co.startedAt).Seconds()),
	}
}

// Stop 停止所有計時器
func (co *Coordinator) Stop() {
	co.invites.Stop()
	co.sessions.Stop()
}
