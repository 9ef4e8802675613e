package internal_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmheidat/Transcendence/internal"
	"github.com/mmheidat/Transcendence/pkg/logger"
)

// TestRegistry_RegisterUnregister 測試上線 / 離線訊號
func TestRegistry_RegisterUnregister(t *testing.T) {
	r := internal.NewRegistry(logger.Discard())

	tab1 := internal.NewClient(1, "alice", 8)
	tab2 := internal.NewClient(1, "alice", 8)

	t.Run("first connection brings user online", func(t *testing.T) {
		assert.True(t, r.Register(tab1))
		assert.True(t, r.IsOnline(1))
	})

	t.Run("second connection is not a new online event", func(t *testing.T) {
		assert.False(t, r.Register(tab2))
		assert.Equal(t, 2, r.ConnectionCount(1))
		assert.Equal(t, 1, r.OnlineUsers())
		assert.Equal(t, 2, r.TotalConnections())
	})

	t.Run("register is idempotent", func(t *testing.T) {
		assert.False(t, r.Register(tab2))
		assert.Equal(t, 2, r.ConnectionCount(1))
	})

	t.Run("closing one tab keeps user online", func(t *testing.T) {
		assert.False(t, r.Unregister(tab1))
		assert.True(t, r.IsOnline(1))
	})

	t.Run("closing last tab takes user offline", func(t *testing.T) {
		assert.True(t, r.Unregister(tab2))
		assert.False(t, r.IsOnline(1))
		assert.Equal(t, 0, r.OnlineUsers())
	})

	t.Run("unregister unknown connection is no-op", func(t *testing.T) {
		assert.False(t, r.Unregister(tab2))
	})
}

// TestRegistry_SendTo 測試多連接推送
func TestRegistry_SendTo(t *testing.T) {
	r := internal.NewRegistry(logger.Discard())

	tab1 := internal.NewClient(1, "alice", 8)
	tab2 := internal.NewClient(1, "alice", 8)
	other := internal.NewClient(2, "bob", 8)
	r.Register(tab1)
	r.Register(tab2)
	r.Register(other)

	t.Run("delivers to every connection of the user", func(t *testing.T) {
		n := r.SendTo(1, internal.InviteExpiredMessage{Type: internal.TypeGameInviteExpired, InviteID: "x"})
		assert.Equal(t, 2, n)

		assert.Equal(t, "game_invite_expired", recv(t, tab1)["type"])
		assert.Equal(t, "game_invite_expired", recv(t, tab2)["type"])
		expectNothing(t, other, 50*time.Millisecond)
	})

	t.Run("offline user is a no-op", func(t *testing.T) {
		assert.Equal(t, 0, r.SendTo(99, internal.PongMessage{Type: internal.TypePong}))
	})

	t.Run("full buffer drops instead of blocking", func(t *testing.T) {
		small := internal.NewClient(3, "carol", 1)
		r.Register(small)

		assert.Equal(t, 1, r.SendTo(3, internal.PongMessage{Type: internal.TypePong}))
		assert.Equal(t, 0, r.SendTo(3, internal.PongMessage{Type: internal.TypePong}))
	})

	t.Run("closed connection is skipped", func(t *testing.T) {
		closed := internal.NewClient(4, "dave", 8)
		r.Register(closed)
		closed.Close()

		assert.Equal(t, 0, r.SendTo(4, internal.PongMessage{Type: internal.TypePong}))
	})
}

// TestRegistry_Concurrent 並發註冊 / 推送
func TestRegistry_Concurrent(t *testing.T) {
	r := internal.NewRegistry(logger.Discard())

	const users = 50
	var wg sync.WaitGroup

	clients := make([]*internal.Client, users)
	for i := range users {
		clients[i] = internal.NewClient(int64(i+1), "u", 16)
	}

	for i := range users {
		wg.Add(2)
		go func(c *internal.Client) {
			defer wg.Done()
			r.Register(c)
		}(clients[i])
		go func(id int64) {
			defer wg.Done()
			r.SendTo(id, internal.PongMessage{Type: internal.TypePong})
		}(int64(i + 1))
	}
	wg.Wait()

	require.Equal(t, users, r.OnlineUsers())

	for _, c := range clients {
		wg.Add(1)
		go func(c *internal.Client) {
			defer wg.Done()
			r.Unregister(c)
		}(c)
	}
	wg.Wait()

	assert.Equal(t, 0, r.OnlineUsers())
	assert.Equal(t, 0, r.TotalConnections())
}
