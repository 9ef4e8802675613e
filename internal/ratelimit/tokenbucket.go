// Package ratelimit 限制單一連接的入站訊息速率
//
// paddle 更新每秒可能有數十則，正常客戶端遠低於上限；
// 超過上限的訊息直接丟棄，連接本身不受影響。
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket 令牌桶
//
//  1. 固定容量的桶，以固定速率填充令牌
//  2. 每則訊息取一個令牌，沒有令牌就拒絕
//  3. 桶內可累積令牌，容忍短時突發
type TokenBucket struct {
	capacity   float64
	tokens     float64
	refillRate float64 // 每秒填充的令牌數
	lastRefill time.Time
	now        func() time.Time
	mu         sync.Mutex
}

// NewTokenBucket 建立令牌桶；初始化時桶是滿的
func NewTokenBucket(capacity int, refillPerSecond float64) *TokenBucket {
	return newTokenBucket(capacity, refillPerSecond, time.Now)
}

func newTokenBucket(capacity int, refillPerSecond float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   float64(capacity),
		tokens:     float64(capacity),
		refillRate: refillPerSecond,
		lastRefill: now(),
		now:        now,
	}
}

// Allow 嘗試取出一個令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens 當前令牌數（無條件捨去）
func (tb *TokenBucket) Tokens() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.refillLocked()
	return int(tb.tokens)
}

func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	if elapsed := now.Sub(tb.lastRefill); elapsed > 0 {
		tb.tokens = min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.refillRate)
		tb.lastRefill = now
	}
}
