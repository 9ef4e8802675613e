// Package store 是對局紀錄的持久化閘道
//
// 協調服務只在兩個時間點接觸資料庫：對局建立（CreateMatch）與
// 對局結束（FinalizeMatch）。其餘用戶、好友、聊天資料由其他服務擁有。
package store

import (
	"context"
	"time"

	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// MatchStatus 對局紀錄狀態
type MatchStatus string

const (
	StatusInProgress MatchStatus = "in_progress"
	StatusFinished   MatchStatus = "finished"
)

// Match 持久化的對局紀錄；player1 永遠是房主
type Match struct {
	ID           int64       `json:"id"`
	Player1ID    int64       `json:"player1_id"`
	Player2ID    int64       `json:"player2_id"`
	Mode         string      `json:"game_mode"`
	Player1Score int         `json:"player1_score"`
	Player2Score int         `json:"player2_score"`
	WinnerID     *int64      `json:"winner_id,omitempty"`
	Status       MatchStatus `json:"status"`
	CreatedAt    time.Time   `json:"created_at"`
	FinishedAt   *time.Time  `json:"finished_at,omitempty"`
}

// MatchStore 持久化閘道介面
type MatchStore interface {
	CreateMatch(ctx context.Context, hostID, guestID int64, mode string) (int64, error)
	FinalizeMatch(ctx context.Context, matchID int64, leftScore, rightScore int, winnerID int64) error
}

// ErrMatchNotFound 紀錄不存在或已經結算
var ErrMatchNotFound = apperrors.New(apperrors.ErrCodeNotFound, "match not found")
