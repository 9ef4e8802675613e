package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// 訊息類型
//
// 入站與出站共用同一組 type 字串；game_invite、game_paddle_update、
// game_state 兩個方向都有，但欄位不同。
const (
	TypePing = "ping"
	TypePong = "pong"

	TypeGameInvite          = "game_invite"
	TypeGameInviteSent      = "game_invite_sent"
	TypeGameInviteError     = "game_invite_error"
	TypeGameInviteAccept    = "game_invite_accept"
	TypeGameInviteAccepted  = "game_invite_accepted"
	TypeGameInviteDecline   = "game_invite_decline"
	TypeGameInviteDeclined  = "game_invite_declined"
	TypeGameInviteCancel    = "game_invite_cancel"
	TypeGameInviteCancelled = "game_invite_cancelled"
	TypeGameInviteExpired   = "game_invite_expired"

	TypeGamePaddleUpdate = "game_paddle_update"
	TypeGameState        = "game_state"
	TypeGameEnd          = "game_end"
	TypeGameEnded        = "game_ended"

	TypeNewMessage = "new_message"
)

// 對局結束原因
const (
	EndReasonFinished = "finished"
	EndReasonForfeit  = "forfeit"
)

// UserID 接受 JSON 數字或數字字串的用戶 ID
type UserID int64

// UnmarshalJSON 實作 json.Unmarshaler
func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %s", data)
	}
	*id = UserID(v)
	return nil
}

// ---- 入站 ----

// inboundHeader 只解析 type，決定後續用哪個結構解碼
type inboundHeader struct {
	Type string `json:"type"`
}

type inviteRequest struct {
	ToUserID UserID `json:"to_user_id"`
}

type inviteIDRequest struct {
	InviteID string `json:"invite_id"`
}

type paddleRequest struct {
	GameID  string   `json:"game_id"`
	PaddleY *float64 `json:"paddle_y"`
}

type stateRequest struct {
	GameID string          `json:"game_id"`
	State  json.RawMessage `json:"state"`
}

type endRequest struct {
	GameID     string `json:"game_id"`
	WinnerID   UserID `json:"winner_id"`
	LeftScore  int    `json:"left_score"`
	RightScore int    `json:"right_score"`
}

// ---- 出站 ----

// PongMessage 心跳回應
type PongMessage struct {
	Type string `json:"type"`
}

// InviteMessage 推給被邀請者
type InviteMessage struct {
	Type         string `json:"type"`
	InviteID     string `json:"invite_id"`
	FromUserID   int64  `json:"from_user_id"`
	FromUsername string `json:"from_username"`
	ExpiresIn    int    `json:"expires_in"` // 秒
}

// InviteSentMessage 回給邀請者的確認
type InviteSentMessage struct {
	Type     string `json:"type"`
	InviteID string `json:"invite_id"`
	ToUserID int64  `json:"to_user_id"`
}

// InviteErrorMessage 邀請相關的錯誤
type InviteErrorMessage struct {
	Type     string `json:"type"`
	Reason   string `json:"reason"`
	InviteID string `json:"invite_id,omitempty"`
}

// InviteAcceptedMessage 分別推給雙方，IsHost 互補
type InviteAcceptedMessage struct {
	Type         string `json:"type"`
	InviteID     string `json:"invite_id"`
	GameID       string `json:"game_id"`
	IsHost       bool   `json:"is_host"`
	OpponentID   int64  `json:"opponent_id"`
	OpponentName string `json:"opponent_name,omitempty"`
}

// InviteDeclinedMessage 推給邀請者
type InviteDeclinedMessage struct {
	Type     string `json:"type"`
	InviteID string `json:"invite_id"`
	ByUserID int64  `json:"by_user_id"`
}

// InviteCancelledMessage 推給被邀請者
type InviteCancelledMessage struct {
	Type       string `json:"type"`
	InviteID   string `json:"invite_id"`
	FromUserID int64  `json:"from_user_id"`
}

// InviteExpiredMessage 推給邀請者
type InviteExpiredMessage struct {
	Type     string `json:"type"`
	InviteID string `json:"invite_id"`
}

// PaddleUpdateMessage 轉發給對手
type PaddleUpdateMessage struct {
	Type       string  `json:"type"`
	GameID     string  `json:"game_id"`
	PaddleY    float64 `json:"paddle_y"`
	FromUserID int64   `json:"from_user_id"`
}

// GameStateMessage 房主的權威狀態快照，只轉發給客人
type GameStateMessage struct {
	Type   string          `json:"type"`
	GameID string          `json:"game_id"`
	State  json.RawMessage `json:"state"`
}

// GameEndedMessage 推給雙方
type GameEndedMessage struct {
	Type       string `json:"type"`
	GameID     string `json:"game_id"`
	WinnerID   int64  `json:"winner_id"`
	LeftScore  int    `json:"left_score"`
	RightScore int    `json:"right_score"`
	Reason     string `json:"reason"`
}

// NewMessageMessage 聊天通知
type NewMessageMessage struct {
	Type    string          `json:"type"`
	Message json.RawMessage `json:"message"`
}

// pongFrame 預先序列化，ping 不需要每次 Marshal
var pongFrame = mustMarshal(PongMessage{Type: TypePong})

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
