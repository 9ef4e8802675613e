package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmheidat/Transcendence/internal/store"
	"github.com/mmheidat/Transcendence/internal/testutils"
	apperrors "github.com/mmheidat/Transcendence/pkg/errors"
)

// matchStoreContract 兩個實作共用的行為測試
func matchStoreContract(t *testing.T, s store.MatchStore, get func(ctx context.Context, id int64) (store.Match, error)) {
	ctx := context.Background()

	t.Run("create then finalize", func(t *testing.T) {
		id, err := s.CreateMatch(ctx, 1, 2, "online")
		require.NoError(t, err)
		require.NotZero(t, id)

		m, err := get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), m.Player1ID)
		assert.Equal(t, int64(2), m.Player2ID)
		assert.Equal(t, "online", m.Mode)
		assert.Equal(t, store.StatusInProgress, m.Status)
		assert.Nil(t, m.WinnerID)
		assert.Nil(t, m.FinishedAt)

		require.NoError(t, s.FinalizeMatch(ctx, id, 11, 7, 1))

		m, err = get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, store.StatusFinished, m.Status)
		assert.Equal(t, 11, m.Player1Score)
		assert.Equal(t, 7, m.Player2Score)
		require.NotNil(t, m.WinnerID)
		assert.Equal(t, int64(1), *m.WinnerID)
		assert.NotNil(t, m.FinishedAt)
	})

	t.Run("finalize twice", func(t *testing.T) {
		id, err := s.CreateMatch(ctx, 3, 4, "online")
		require.NoError(t, err)

		require.NoError(t, s.FinalizeMatch(ctx, id, 1, 0, 3))
		err = s.FinalizeMatch(ctx, id, 0, 1, 4)
		require.ErrorIs(t, err, store.ErrMatchNotFound)

		m, err := get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(3), *m.WinnerID)
	})

	t.Run("unknown match", func(t *testing.T) {
		require.ErrorIs(t, s.FinalizeMatch(ctx, 999999, 1, 0, 1), store.ErrMatchNotFound)
		_, err := get(ctx, 999999)
		require.ErrorIs(t, err, store.ErrMatchNotFound)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a, err := s.CreateMatch(ctx, 5, 6, "online")
		require.NoError(t, err)
		b, err := s.CreateMatch(ctx, 5, 6, "online")
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

// TestMemoryStore 記憶體實作
func TestMemoryStore(t *testing.T) {
	s := store.NewMemoryStore()
	matchStoreContract(t, s, s.GetMatch)

	t.Run("failure injection is one-shot", func(t *testing.T) {
		boom := errors.New("boom")
		s.FailNextCreate(boom)

		_, err := s.CreateMatch(context.Background(), 1, 2, "online")
		require.ErrorIs(t, err, boom)

		_, err = s.CreateMatch(context.Background(), 1, 2, "online")
		require.NoError(t, err)
	})
}

// TestPostgresStore 需要 Docker
func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	pg := testutils.StartPostgres(t)
	s := store.NewPostgresStore(pg.Pool, testutils.TestLogger())

	require.NoError(t, s.Ping(context.Background()))
	matchStoreContract(t, s, s.GetMatch)

	t.Run("closed pool is unavailable", func(t *testing.T) {
		pg.Pool.Close()

		_, err := s.CreateMatch(context.Background(), 1, 2, "online")
		require.Error(t, err)
		assert.True(t, apperrors.IsUnavailable(err))
	})
}
