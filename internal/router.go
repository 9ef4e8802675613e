package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// Router 依 type 分派入站訊息
//
// 格式錯誤的訊息只記錄後丟棄，不回覆也不斷線。
// 邀請相關的失敗以 game_invite_error 回給發送者；
// 對局中的失敗（找不到對局、非參與者、客人送狀態）靜默忽略。
type Router struct {
	registry *Registry
	invites  *InviteManager
	sessions *SessionRegistry
	logger   *slog.Logger
}

// NewRouter 創建路由器
func NewRouter(registry *Registry, invites *InviteManager, sessions *SessionRegistry, logger *slog.Logger) *Router {
	return &Router{
		registry: registry,
		invites:  invites,
		sessions: sessions,
		logger:   logger,
	}
}

// Dispatch 處理一則入站訊息；同一連接的訊息由 readPump 依序呼叫
func (rt *Router) Dispatch(ctx context.Context, c *Client, frame []byte) {
	var header inboundHeader
	if err := json.Unmarshal(frame, &header); err != nil {
		rt.logger.WarnContext(ctx, "解析客戶端消息失敗", "error", err)
		return
	}

	switch header.Type {
	case TypePing:
		// 只回給發送的那條連接
		c.enqueue(pongFrame)

	case TypeGameInvite:
		var req inviteRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		if req.ToUserID == 0 {
			rt.logger.WarnContext(ctx, "邀請缺少 to_user_id")
			return
		}
		if _, err := rt.invites.Create(c.UserID, c.DisplayName, int64(req.ToUserID)); err != nil {
			rt.inviteError(ctx, c, "", err)
		}

	case TypeGameInviteAccept:
		var req inviteIDRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		if _, err := rt.invites.Accept(ctx, req.InviteID, c.UserID, c.DisplayName); err != nil {
			// Open 失敗時雙方都已收到錯誤
			if apperrors.IsNotFound(err) {
				rt.inviteError(ctx, c, req.InviteID, err)
			}
		}

	case TypeGameInviteDecline:
		var req inviteIDRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		// 查無邀請或不是被邀請者：靜默忽略
		if err := rt.invites.Decline(req.InviteID, c.UserID); err != nil {
			rt.logger.DebugContext(ctx, "忽略拒絕請求", "invite_id", req.InviteID, "error", err)
		}

	case TypeGameInviteCancel:
		var req inviteIDRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		if err := rt.invites.Cancel(req.InviteID, c.UserID); err != nil {
			rt.logger.DebugContext(ctx, "忽略撤回請求", "invite_id", req.InviteID, "error", err)
		}

	case TypeGamePaddleUpdate:
		var req paddleRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		if req.PaddleY == nil {
			rt.logger.DebugContext(ctx, "paddle 更新缺少 paddle_y", "game_id", req.GameID)
			return
		}
		if err := rt.sessions.RelayPaddle(c.UserID, req.GameID, *req.PaddleY); err != nil {
			rt.logger.DebugContext(ctx, "忽略 paddle 更新", "game_id", req.GameID, "error", err)
		}

	case TypeGameState:
		var req stateRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		if len(req.State) == 0 || bytes.Equal(bytes.TrimSpace(req.State), []byte("null")) {
			rt.logger.DebugContext(ctx, "狀態快照為空", "game_id", req.GameID)
			return
		}
		if err := rt.sessions.RelayState(c.UserID, req.GameID, req.State); err != nil {
			rt.logger.DebugContext(ctx, "忽略狀態快照", "game_id", req.GameID, "error", err)
		}

	case TypeGameEnd:
		var req endRequest
		if !rt.decode(ctx, frame, &req) {
			return
		}
		if err := rt.sessions.End(ctx, c.UserID, req.GameID, int64(req.WinnerID), req.LeftScore, req.RightScore); err != nil {
			rt.logger.DebugContext(ctx, "忽略結束請求", "game_id", req.GameID, "error", err)
		}

	default:
		rt.logger.DebugContext(ctx, "收到未知消息類型", "type", header.Type)
	}
}

func (rt *Router) decode(ctx context.Context, frame []byte, v any) bool {
	if err := json.Unmarshal(frame, v); err != nil {
		rt.logger.WarnContext(ctx, "消息欄位格式錯誤", "error", err)
		return false
	}
	return true
}

// inviteError 把邀請錯誤回給發送者（該用戶所有連接）
func (rt *Router) inviteError(ctx context.Context, c *Client, inviteID string, err error) {
	reason := apperrors.PublicMessage(err)
	if reason == apperrors.ErrInternal.Message {
		rt.logger.ErrorContext(ctx, "處理邀請失敗", "invite_id", inviteID, "error", err)
	}
	rt.registry.SendTo(c.UserID, InviteErrorMessage{
		Type:     TypeGameInviteError,
		Reason:   reason,
		InviteID: inviteID,
	})
}
