package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryStore 記憶體實作，用於本機開發（postgres.enabled=false）與測試
type MemoryStore struct {
	mu      sync.RWMutex
	matches map[int64]*Match
	nextID  int64

	// 記錄呼叫次數
	CreateCalls   atomic.Int32
	FinalizeCalls atomic.Int32

	// 錯誤注入
	failMu         sync.Mutex
	failCreateNext error
	failFinalNext  error
}

// NewMemoryStore 創建記憶體對局紀錄
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		matches: make(map[int64]*Match),
	}
}

// FailNextCreate 讓下一次 CreateMatch 回傳 err
func (s *MemoryStore) FailNextCreate(err error) {
	s.failMu.Lock()
	s.failCreateNext = err
	s.failMu.Unlock()
}

// FailNextFinalize 讓下一次 FinalizeMatch 回傳 err
func (s *MemoryStore) FailNextFinalize(err error) {
	s.failMu.Lock()
	s.failFinalNext = err
	s.failMu.Unlock()
}

func (s *MemoryStore) takeFailure(slot *error) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	err := *slot
	*slot = nil
	return err
}

// CreateMatch 實作 MatchStore
func (s *MemoryStore) CreateMatch(_ context.Context, hostID, guestID int64, mode string) (int64, error) {
	s.CreateCalls.Add(1)

	if err := s.takeFailure(&s.failCreateNext); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	s.matches[s.nextID] = &Match{
		ID:        s.nextID,
		Player1ID: hostID,
		Player2ID: guestID,
		Mode:      mode,
		Status:    StatusInProgress,
		CreatedAt: time.Now(),
	}

	return s.nextID, nil
}

// FinalizeMatch 實作 MatchStore
func (s *MemoryStore) FinalizeMatch(_ context.Context, matchID int64, leftScore, rightScore int, winnerID int64) error {
	s.FinalizeCalls.Add(1)

	if err := s.takeFailure(&s.failFinalNext); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.matches[matchID]
	if !ok || m.Status != StatusInProgress {
		return ErrMatchNotFound
	}

	now := time.Now()
	winner := winnerID
	m.Player1Score = leftScore
	m.Player2Score = rightScore
	m.WinnerID = &winner
	m.Status = StatusFinished
	m.FinishedAt = &now

	return nil
}

// GetMatch 讀取對局紀錄副本
func (s *MemoryStore) GetMatch(_ context.Context, matchID int64) (Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.matches[matchID]
	if !ok {
		return Match{}, ErrMatchNotFound
	}
	return *m, nil
}

// Len 紀錄總數
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matches)
}
