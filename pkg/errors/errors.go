// Package errors 提供即時對戰協調服務的錯誤模型
package errors

import (
	"errors"
	"fmt"
)

// 定義錯誤碼
const (
	// ErrCodeNotFound 邀請或對局不存在
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeOffline 目標用戶不在線
	ErrCodeOffline = "TARGET_OFFLINE"
	// ErrCodeConflict 用戶狀態衝突（已在對局中、邀請自己）
	ErrCodeConflict = "CONFLICT"
	// ErrCodeForbidden 呼叫者無權執行該操作
	ErrCodeForbidden = "FORBIDDEN"
	// ErrCodeUnauthenticated 握手時身分驗證失敗
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeUnavailable 外部依賴不可用
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
//
// Message 會直接回傳給客戶端（例如 game_invite_error 的 reason），
// 因此必須是可以公開的文字；內部細節放在 Err。
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 以錯誤碼與訊息比對，讓包裝後的預定義錯誤仍能被 errors.Is 辨識
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New 創建新的應用程式錯誤
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包裝錯誤
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithCause 以預定義錯誤為模板附加底層原因，不修改模板本身
func (e *AppError) WithCause(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Err:     err,
	}
}

// 預定義錯誤
var (
	// ErrTargetOffline 被邀請者沒有任何在線連接
	ErrTargetOffline = New(ErrCodeOffline, "User is not online")

	// ErrSelfInvite 邀請自己
	ErrSelfInvite = New(ErrCodeConflict, "Cannot invite yourself")

	// ErrPlayerBusy 任一方已有進行中的對局
	ErrPlayerBusy = New(ErrCodeConflict, "User is already in a game")

	// ErrInviteNotFound 邀請不存在、已處理或呼叫者不是被邀請者
	ErrInviteNotFound = New(ErrCodeNotFound, "Invite not found")

	// ErrSessionNotFound 對局不存在或已結束
	ErrSessionNotFound = New(ErrCodeNotFound, "Game not found")

	// ErrNotParticipant 呼叫者不是對局參與者
	ErrNotParticipant = New(ErrCodeForbidden, "Not a participant of this game")

	// ErrNotHost 只有房主可以廣播遊戲狀態
	ErrNotHost = New(ErrCodeForbidden, "Only the host may send game state")

	// ErrTokenMissing 握手時沒有帶 token
	ErrTokenMissing = New(ErrCodeUnauthenticated, "token required")

	// ErrTokenInvalid token 無法驗證
	ErrTokenInvalid = New(ErrCodeUnauthenticated, "invalid token")

	// ErrStoreUnavailable 持久化閘道不可用
	ErrStoreUnavailable = New(ErrCodeUnavailable, "match store unavailable")

	// ErrInternal 對客戶端隱藏細節的通用錯誤
	ErrInternal = New(ErrCodeInternal, "Internal error")
)

// codeOf 取出錯誤碼，非 AppError 回傳空字串
func codeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	return codeOf(err) == ErrCodeNotFound
}

// IsConflict 檢查是否為狀態衝突錯誤
func IsConflict(err error) bool {
	return codeOf(err) == ErrCodeConflict
}

// IsUnauthenticated 檢查是否為身分驗證錯誤
func IsUnauthenticated(err error) bool {
	return codeOf(err) == ErrCodeUnauthenticated
}

// IsUnavailable 檢查是否為依賴不可用錯誤
func IsUnavailable(err error) bool {
	return codeOf(err) == ErrCodeUnavailable
}

// PublicMessage 回傳可以給客戶端看的訊息；未知錯誤一律回傳 "Internal error"
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != ErrCodeInternal && appErr.Code != ErrCodeUnavailable {
		return appErr.Message
	}
	return ErrInternal.Message
}
