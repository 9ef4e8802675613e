// Package auth 驗證連接握手時帶入的身分 token
//
// token 由外部的帳號服務簽發（HS256 JWT），本服務只負責驗證並取出
// user_id 與 username，不簽發也不撤銷。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// Identity 已驗證的用戶身分
type Identity struct {
	UserID      int64
	DisplayName string
}

// Verifier 身分驗證介面
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// claims JWT 內容；user_id 缺席時退回 sub
type claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// JWTVerifier 以共享密鑰驗證 HS256 token
type JWTVerifier struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTVerifier 創建 JWT 驗證器；issuer 為空時不檢查 iss
func NewJWTVerifier(secret, issuer string) (*JWTVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &JWTVerifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Verify 驗證 token 並取出身分
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, apperrors.ErrTokenMissing
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var parsed claims
	if _, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return Identity{}, apperrors.ErrTokenInvalid.WithCause(err)
	}

	userID := parsed.UserID
	if userID == 0 && parsed.Subject != "" {
		id, err := strconv.ParseInt(parsed.Subject, 10, 64)
		if err != nil {
			return Identity{}, apperrors.ErrTokenInvalid.WithCause(fmt.Errorf("non-numeric subject %q", parsed.Subject))
		}
		userID = id
	}
	if userID <= 0 {
		return Identity{}, apperrors.ErrTokenInvalid.WithCause(errors.New("token carries no user id"))
	}

	name := parsed.Username
	if name == "" {
		name = "user" + strconv.FormatInt(userID, 10)
	}

	return Identity{UserID: userID, DisplayName: name}, nil
}

// Sign 簽發 token，供測試與本機開發工具使用
func Sign(secret, issuer string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   id.UserID,
		Username: id.DisplayName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
