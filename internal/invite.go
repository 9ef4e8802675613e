package internal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// InviteState 邀請狀態
//
//	pending → accepted | declined | expired | cancelled
//
// 只有 pending 能轉換，且只能轉換一次。
type InviteState string

const (
	InvitePending   InviteState = "pending"
	InviteAccepted  InviteState = "accepted"
	InviteDeclined  InviteState = "declined"
	InviteExpired   InviteState = "expired"
	InviteCancelled InviteState = "cancelled"
)

// Invite 一筆待回覆的對戰邀請
type Invite struct {
	ID        string      `json:"invite_id"`
	FromID    int64       `json:"from_user_id"`
	FromName  string      `json:"from_username"`
	ToID      int64       `json:"to_user_id"`
	State     InviteState `json:"state"`
	CreatedAt time.Time   `json:"created_at"`
	ExpiresAt time.Time   `json:"expires_at"`

	timer *time.Timer
}

func (inv *Invite) transition(to InviteState) bool {
	if inv.State != InvitePending {
		return false
	}
	inv.State = to
	return true
}

// InviteManager 邀請管理器
//
// 系統設計考量：
//
//  1. 先到先得：
//     accept / decline / cancel / 到期計時都要先在鎖內把邀請移出表，
//     成功移出的那一方才負責後續通知。其餘的同時操作看到的是「查無邀請」。
//
//  2. 不持鎖呼叫對局註冊表：
//     Accept 在移出邀請後才呼叫 SessionRegistry.Open，兩把鎖之間沒有巢狀。
type InviteManager struct {
	mu      sync.Mutex
	invites map[string]*Invite

	registry *Registry
	sessions *SessionRegistry
	ttl      time.Duration
	logger   *slog.Logger
}

// NewInviteManager 創建邀請管理器
func NewInviteManager(registry *Registry, sessions *SessionRegistry, ttl time.Duration, logger *slog.Logger) *InviteManager {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &InviteManager{
		invites:  make(map[string]*Invite),
		registry: registry,
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
	}
}

// Create 建立邀請並通知雙方
func (m *InviteManager) Create(fromID int64, fromName string, toID int64) (Invite, error) {
	if fromID == toID {
		return Invite{}, apperrors.ErrSelfInvite
	}
	if !m.registry.IsOnline(toID) {
		return Invite{}, apperrors.ErrTargetOffline
	}
	if _, busy := m.sessions.ActiveFor(fromID); busy {
		return Invite{}, apperrors.ErrPlayerBusy
	}
	if _, busy := m.sessions.ActiveFor(toID); busy {
		return Invite{}, apperrors.ErrPlayerBusy
	}

	now := time.Now()
	inv := &Invite{
		ID:        uuid.NewString(),
		FromID:    fromID,
		FromName:  fromName,
		ToID:      toID,
		State:     InvitePending,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}

	// 鎖內再確認在線：離線後的 CancelAllFor 一定排在這次插入之後
	m.mu.Lock()
	if !m.registry.IsOnline(toID) {
		m.mu.Unlock()
		return Invite{}, apperrors.ErrTargetOffline
	}
	m.invites[inv.ID] = inv
	inv.timer = time.AfterFunc(m.ttl, func() { m.expire(inv.ID) })
	snapshot := *inv
	m.mu.Unlock()

	m.registry.SendTo(toID, InviteMessage{
		Type:         TypeGameInvite,
		InviteID:     inv.ID,
		FromUserID:   fromID,
		FromUsername: fromName,
		ExpiresIn:    int(m.ttl.Round(time.Second) / time.Second),
	})
	m.registry.SendTo(fromID, InviteSentMessage{
		Type:     TypeGameInviteSent,
		InviteID: inv.ID,
		ToUserID: toID,
	})

	m.logger.Info("邀請已發出",
		"invite_id", inv.ID,
		"from_user_id", fromID,
		"to_user_id", toID)

	return snapshot, nil
}

// take 在鎖內移出邀請並轉換狀態；check 不通過時邀請保留原狀
func (m *InviteManager) take(inviteID string, to InviteState, check func(*Invite) bool) (Invite, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.invites[inviteID]
	if !ok || (check != nil && !check(inv)) {
		return Invite{}, false
	}
	if !inv.transition(to) {
		return Invite{}, false
	}
	delete(m.invites, inviteID)
	if inv.timer != nil {
		inv.timer.Stop()
	}
	return *inv, true
}

// Accept 被邀請者接受；成功時建立對局並通知雙方
//
// 邀請者為房主。建立對局失敗（任一方已在其他對局中）時邀請仍視為已消耗，
// 雙方都會收到錯誤。
func (m *InviteManager) Accept(ctx context.Context, inviteID string, userID int64, userName string) (Session, error) {
	inv, ok := m.take(inviteID, InviteAccepted, func(inv *Invite) bool {
		return inv.ToID == userID
	})
	if !ok {
		return Session{}, apperrors.ErrInviteNotFound
	}

	session, err := m.sessions.Open(ctx, inv.FromID, inv.ToID)
	if err != nil {
		reason := apperrors.PublicMessage(err)
		m.registry.SendTo(inv.FromID, InviteErrorMessage{Type: TypeGameInviteError, Reason: reason, InviteID: inv.ID})
		m.registry.SendTo(inv.ToID, InviteErrorMessage{Type: TypeGameInviteError, Reason: reason, InviteID: inv.ID})
		m.logger.Warn("接受邀請後建立對局失敗", "invite_id", inv.ID, "error", err)
		return Session{}, err
	}

	m.registry.SendTo(inv.FromID, InviteAcceptedMessage{
		Type:         TypeGameInviteAccepted,
		InviteID:     inv.ID,
		GameID:       session.ID,
		IsHost:       true,
		OpponentID:   inv.ToID,
		OpponentName: userName,
	})
	m.registry.SendTo(inv.ToID, InviteAcceptedMessage{
		Type:         TypeGameInviteAccepted,
		InviteID:     inv.ID,
		GameID:       session.ID,
		IsHost:       false,
		OpponentID:   inv.FromID,
		OpponentName: inv.FromName,
	})

	m.logger.Info("邀請已接受", "invite_id", inv.ID, "game_id", session.ID)
	return session, nil
}

// Decline 被邀請者拒絕；通知邀請者
func (m *InviteManager) Decline(inviteID string, userID int64) error {
	inv, ok := m.take(inviteID, InviteDeclined, func(inv *Invite) bool {
		return inv.ToID == userID
	})
	if !ok {
		return apperrors.ErrInviteNotFound
	}

	m.registry.SendTo(inv.FromID, InviteDeclinedMessage{
		Type:     TypeGameInviteDeclined,
		InviteID: inv.ID,
		ByUserID: userID,
	})
	m.logger.Info("邀請已拒絕", "invite_id", inv.ID)
	return nil
}

// Cancel 邀請者撤回；通知被邀請者
func (m *InviteManager) Cancel(inviteID string, userID int64) error {
	inv, ok := m.take(inviteID, InviteCancelled, func(inv *Invite) bool {
		return inv.FromID == userID
	})
	if !ok {
		return apperrors.ErrInviteNotFound
	}

	m.registry.SendTo(inv.ToID, InviteCancelledMessage{
		Type:       TypeGameInviteCancelled,
		InviteID:   inv.ID,
		FromUserID: inv.FromID,
	})
	m.logger.Info("邀請已撤回", "invite_id", inv.ID)
	return nil
}

// expire 到期計時觸發；只通知邀請者
func (m *InviteManager) expire(inviteID string) {
	inv, ok := m.take(inviteID, InviteExpired, nil)
	if !ok {
		return
	}

	m.registry.SendTo(inv.FromID, InviteExpiredMessage{
		Type:     TypeGameInviteExpired,
		InviteID: inv.ID,
	})
	m.logger.Info("邀請已過期", "invite_id", inv.ID)
}

// CancelAllFor 用戶離線時清理所有相關邀請
//
// 他發出的邀請視同撤回，通知被邀請者；他收到的邀請視同拒絕，通知邀請者。
func (m *InviteManager) CancelAllFor(userID int64) {
	m.mu.Lock()
	var sent, received []string
	for id, inv := range m.invites {
		switch userID {
		case inv.FromID:
			sent = append(sent, id)
		case inv.ToID:
			received = append(received, id)
		}
	}
	m.mu.Unlock()

	for _, id := range sent {
		_ = m.Cancel(id, userID)
	}
	for _, id := range received {
		_ = m.Decline(id, userID)
	}
}

// Pending 待回覆的邀請數
func (m *InviteManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.invites)
}

// Stop 停止所有到期計時並清空
func (m *InviteManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, inv := range m.invites {
		if inv.timer != nil {
			inv.timer.Stop()
		}
		delete(m.invites, id)
	}
}
