package internal

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mmheidat/Transcendence/internal/store"
	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// SessionState 對局狀態
//
//	active → ended
//
// ended 的對局立即從表中移除，因此表中永遠只有 active。
type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// Session 一場進行中的對局
//
// HostID 建立後不變；只有房主的 game_state 會被轉發。
// MatchID 為 0 表示持久化紀錄尚未建立（或建立失敗）。
type Session struct {
	ID        string       `json:"game_id"`
	HostID    int64        `json:"host_id"`
	GuestID   int64        `json:"guest_id"`
	MatchID   int64        `json:"match_id,omitempty"`
	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`

	// 最近一次房主快照中的比分，斷線判負時使用
	lastLeft  int
	lastRight int
}

// Has 是否為對局參與者
func (s *Session) Has(userID int64) bool {
	return userID == s.HostID || userID == s.GuestID
}

// Opponent 回傳另一位參與者
func (s *Session) Opponent(userID int64) (int64, bool) {
	switch userID {
	case s.HostID:
		return s.GuestID, true
	case s.GuestID:
		return s.HostID, true
	default:
		return 0, false
	}
}

// end 狀態轉換：只能從 active 轉到 ended
func (s *Session) end() bool {
	if s.State != SessionActive {
		return false
	}
	s.State = SessionEnded
	return true
}

// SessionOptions 對局行為配置
type SessionOptions struct {
	Mode                string
	StoreTimeout        time.Duration
	ForfeitOnDisconnect bool
	ForfeitGrace        time.Duration
}

// SessionRegistry 對局註冊表
//
// 系統設計考量：
//
//  1. 一人一局：
//     byUser 讓「用戶是否在對局中」成為 O(1) 查詢，Open 在同一把鎖內
//     檢查並插入，兩個同時的 accept 不會讓同一個用戶進入兩場對局。
//
//  2. 持久化呼叫不持鎖：
//     CreateMatch / FinalizeMatch 可能花費數毫秒到數秒，期間其他連接
//     可能已經結束或判負該對局。恢復執行後必須重新查表再修改。
//
//  3. 結束只發生一次：
//     End 與斷線判負都先在鎖內把對局移出表，誰先移出誰負責結算；
//     後到者查不到對局，自然成為 no-op。
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session // gameID -> Session
	byUser   map[int64]string    // userID -> gameID
	forfeits map[int64]*time.Timer

	registry *Registry
	store    store.MatchStore
	opts     SessionOptions
	logger   *slog.Logger
}

// NewSessionRegistry 創建對局註冊表
func NewSessionRegistry(registry *Registry, matchStore store.MatchStore, opts SessionOptions, logger *slog.Logger) *SessionRegistry {
	if opts.Mode == "" {
		opts.Mode = "online"
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		byUser:   make(map[int64]string),
		forfeits: make(map[int64]*time.Timer),
		registry: registry,
		store:    matchStore,
		opts:     opts,
		logger:   logger,
	}
}

// Open 建立對局並建立持久化紀錄；這是唯一建立對局的路徑
//
// 持久化失敗不會回滾記憶體中的對局：對局照常進行，只是沒有紀錄。
func (r *SessionRegistry) Open(ctx context.Context, hostID, guestID int64) (Session, error) {
	if hostID == guestID {
		return Session{}, apperrors.ErrSelfInvite
	}

	r.mu.Lock()
	if _, busy := r.byUser[hostID]; busy {
		r.mu.Unlock()
		return Session{}, apperrors.ErrPlayerBusy
	}
	if _, busy := r.byUser[guestID]; busy {
		r.mu.Unlock()
		return Session{}, apperrors.ErrPlayerBusy
	}

	s := &Session{
		ID:        uuid.NewString(),
		HostID:    hostID,
		GuestID:   guestID,
		State:     SessionActive,
		CreatedAt: time.Now(),
	}
	r.sessions[s.ID] = s
	r.byUser[hostID] = s.ID
	r.byUser[guestID] = s.ID
	r.mu.Unlock()

	storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	matchID, err := r.store.CreateMatch(storeCtx, hostID, guestID, r.opts.Mode)
	cancel()
	if err != nil {
		r.logger.Error("建立對局紀錄失敗，對局繼續但不會被保存",
			"game_id", s.ID,
			"host_id", hostID,
			"guest_id", guestID,
			"error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err == nil {
		// 等待資料庫期間對局可能已被結束
		if current, ok := r.sessions[s.ID]; ok && current == s {
			s.MatchID = matchID
		} else {
			r.logger.Warn("對局在紀錄建立前已結束，紀錄將維持進行中",
				"game_id", s.ID,
				"match_id", matchID)
		}
	}

	r.logger.Info("對局已建立",
		"game_id", s.ID,
		"host_id", hostID,
		"guest_id", guestID,
		"match_id", s.MatchID)

	return *s, nil
}

// RelayPaddle 轉發球拍位置給對手；發送者自己的連接永遠不會收到
func (r *SessionRegistry) RelayPaddle(fromID int64, gameID string, paddleY float64) error {
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok {
		r.mu.Unlock()
		return apperrors.ErrSessionNotFound
	}
	other, ok := s.Opponent(fromID)
	r.mu.Unlock()
	if !ok {
		return apperrors.ErrNotParticipant
	}

	r.registry.SendTo(other, PaddleUpdateMessage{
		Type:       TypeGamePaddleUpdate,
		GameID:     gameID,
		PaddleY:    paddleY,
		FromUserID: fromID,
	})
	return nil
}

// scoreSnapshot 從房主快照中讀取比分（欄位可選，兩種命名皆可）
type scoreSnapshot struct {
	LeftScore       *int `json:"left_score"`
	RightScore      *int `json:"right_score"`
	LeftScoreCamel  *int `json:"leftScore"`
	RightScoreCamel *int `json:"rightScore"`
}

func (s scoreSnapshot) scores() (left, right *int) {
	left, right = s.LeftScore, s.RightScore
	if left == nil {
		left = s.LeftScoreCamel
	}
	if right == nil {
		right = s.RightScoreCamel
	}
	return left, right
}

// RelayState 轉發房主的權威狀態給客人；客人送來的狀態直接丟棄
func (r *SessionRegistry) RelayState(fromID int64, gameID string, state json.RawMessage) error {
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok {
		r.mu.Unlock()
		return apperrors.ErrSessionNotFound
	}
	if fromID != s.HostID {
		r.mu.Unlock()
		return apperrors.ErrNotHost
	}

	var snap scoreSnapshot
	if err := json.Unmarshal(state, &snap); err == nil {
		left, right := snap.scores()
		if left != nil {
			s.lastLeft = *left
		}
		if right != nil {
			s.lastRight = *right
		}
	}
	guestID := s.GuestID
	r.mu.Unlock()

	r.registry.SendTo(guestID, GameStateMessage{
		Type:   TypeGameState,
		GameID: gameID,
		State:  state,
	})
	return nil
}

// End 結束對局：更新紀錄、通知雙方、移出表
//
// 發送者與勝者都必須是參與者，否則視同查無此局。
func (r *SessionRegistry) End(ctx context.Context, fromID int64, gameID string, winnerID int64, leftScore, rightScore int) error {
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok {
		r.mu.Unlock()
		return apperrors.ErrSessionNotFound
	}
	if !s.Has(fromID) || !s.Has(winnerID) {
		r.mu.Unlock()
		return apperrors.ErrNotParticipant
	}
	r.removeLocked(s)
	r.mu.Unlock()

	r.finalize(ctx, s, winnerID, leftScore, rightScore, EndReasonFinished)
	return nil
}

// removeLocked 移出表並取消雙方的判負計時；呼叫方必須持有鎖
func (r *SessionRegistry) removeLocked(s *Session) {
	s.end()
	delete(r.sessions, s.ID)
	for _, uid := range []int64{s.HostID, s.GuestID} {
		if r.byUser[uid] == s.ID {
			delete(r.byUser, uid)
		}
		if t, ok := r.forfeits[uid]; ok {
			t.Stop()
			delete(r.forfeits, uid)
		}
	}
}

// finalize 寫入紀錄並廣播 game_ended；對局此時已不在表中
func (r *SessionRegistry) finalize(ctx context.Context, s *Session, winnerID int64, leftScore, rightScore int, reason string) {
	if s.MatchID != 0 {
		storeCtx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
		err := r.store.FinalizeMatch(storeCtx, s.MatchID, leftScore, rightScore, winnerID)
		cancel()
		if err != nil {
			r.logger.Error("更新對局紀錄失敗",
				"game_id", s.ID,
				"match_id", s.MatchID,
				"error", err)
		}
	} else {
		r.logger.Warn("對局沒有持久化紀錄，略過結算", "game_id", s.ID)
	}

	msg := GameEndedMessage{
		Type:       TypeGameEnded,
		GameID:     s.ID,
		WinnerID:   winnerID,
		LeftScore:  leftScore,
		RightScore: rightScore,
		Reason:     reason,
	}
	r.registry.SendTo(s.HostID, msg)
	r.registry.SendTo(s.GuestID, msg)

	r.logger.Info("對局已結束",
		"game_id", s.ID,
		"winner_id", winnerID,
		"left_score", leftScore,
		"right_score", rightScore,
		"reason", reason)
}

// UserOffline 用戶最後一個連接關閉；若在對局中，排程斷線判負
func (r *SessionRegistry) UserOffline(userID int64) {
	if !r.opts.ForfeitOnDisconnect {
		return
	}

	r.mu.Lock()
	gameID, ok := r.byUser[userID]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, pending := r.forfeits[userID]; pending {
		r.mu.Unlock()
		return
	}
	if r.opts.ForfeitGrace <= 0 {
		r.mu.Unlock()
		r.forfeit(gameID, userID)
		return
	}
	r.forfeits[userID] = time.AfterFunc(r.opts.ForfeitGrace, func() {
		r.forfeit(gameID, userID)
	})
	r.mu.Unlock()

	r.logger.Info("參與者斷線，等待重連", "game_id", gameID, "user_id", userID, "grace", r.opts.ForfeitGrace)
}

// UserOnline 用戶重新上線；取消尚未觸發的判負
func (r *SessionRegistry) UserOnline(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t, ok := r.forfeits[userID]; ok {
		t.Stop()
		delete(r.forfeits, userID)
		r.logger.Info("參與者已重連，取消判負", "user_id", userID)
	}
}

// forfeit 判斷線者負；剩下的參與者獲勝，比分沿用最後一次快照
func (r *SessionRegistry) forfeit(gameID string, leaverID int64) {
	if r.registry.IsOnline(leaverID) {
		r.UserOnline(leaverID)
		return
	}

	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok || !s.Has(leaverID) {
		delete(r.forfeits, leaverID)
		r.mu.Unlock()
		return
	}
	r.removeLocked(s)
	r.mu.Unlock()

	winnerID, _ := s.Opponent(leaverID)
	r.finalize(context.Background(), s, winnerID, s.lastLeft, s.lastRight, EndReasonForfeit)
}

// ActiveFor 用戶目前所在的對局
func (r *SessionRegistry) ActiveFor(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	gameID, ok := r.byUser[userID]
	return gameID, ok
}

// Get 取得對局副本
func (r *SessionRegistry) Get(gameID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[gameID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Count 進行中的對局數
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop 取消所有判負計時；對局本身隨行程結束而消失
func (r *SessionRegistry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid, t := range r.forfeits {
		t.Stop()
		delete(r.forfeits, uid)
	}
}
