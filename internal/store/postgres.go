package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// PostgresStore 以 pgxpool 實作 MatchStore
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// PoolOptions 連接池參數
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// Connect 建立連接池並驗證連線
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

// NewPostgresStore 創建 PostgreSQL 對局紀錄存取
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		pool:   pool,
		logger: logger,
	}
}

const createMatchSQL = `
INSERT INTO games (player1_id, player2_id, game_mode, status)
VALUES ($1, $2, $3, 'in_progress')
RETURNING id`

// CreateMatch 建立進行中的對局紀錄（房主 = player1，客人 = player2）
func (s *PostgresStore) CreateMatch(ctx context.Context, hostID, guestID int64, mode string) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, createMatchSQL, hostID, guestID, mode).Scan(&id); err != nil {
		s.logger.Error("postgres create match failed",
			"host_id", hostID,
			"guest_id", guestID,
			"error", err)
		return 0, apperrors.ErrStoreUnavailable.WithCause(fmt.Errorf("create match: %w", err))
	}

	return id, nil
}

const finalizeMatchSQL = `
UPDATE games
SET player1_score = $2,
    player2_score = $3,
    winner_id     = $4,
    status        = 'finished',
    finished_at   = NOW()
WHERE id = $1 AND status = 'in_progress'`

// FinalizeMatch 寫入比分與勝者；紀錄不存在或已結算時回傳 ErrMatchNotFound
func (s *PostgresStore) FinalizeMatch(ctx context.Context, matchID int64, leftScore, rightScore int, winnerID int64) error {
	tag, err := s.pool.Exec(ctx, finalizeMatchSQL, matchID, leftScore, rightScore, winnerID)
	if err != nil {
		s.logger.Error("postgres finalize match failed",
			"match_id", matchID,
			"error", err)
		return apperrors.ErrStoreUnavailable.WithCause(fmt.Errorf("finalize match: %w", err))
	}

	if tag.RowsAffected() == 0 {
		return ErrMatchNotFound
	}

	return nil
}

const getMatchSQL = `
SELECT id, player1_id, player2_id, game_mode, player1_score, player2_score,
       winner_id, status, created_at, finished_at
FROM games
WHERE id = $1`

// GetMatch 讀取對局紀錄
func (s *PostgresStore) GetMatch(ctx context.Context, matchID int64) (Match, error) {
	var (
		m      Match
		status string
	)
	err := s.pool.QueryRow(ctx, getMatchSQL, matchID).Scan(
		&m.ID,
		&m.Player1ID,
		&m.Player2ID,
		&m.Mode,
		&m.Player1Score,
		&m.Player2Score,
		&m.WinnerID,
		&status,
		&m.CreatedAt,
		&m.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Match{}, ErrMatchNotFound
	}
	if err != nil {
		return Match{}, fmt.Errorf("get match: %w", err)
	}

	m.Status = MatchStatus(status)
	return m, nil
}

// Ping 健康檢查
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
