package internal_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmheidat/Transcendence/internal"
	"github.com/mmheidat/Transcendence/internal/store"
	"github.com/mmheidat/Transcendence/pkg/logger"
)

const recvTimeout = 2 * time.Second

type testEnv struct {
	coord *internal.Coordinator
	store *store.MemoryStore
}

func defaultOptions() internal.CoordinatorOptions {
	return internal.CoordinatorOptions{
		InviteTTL: time.Minute,
		Session: internal.SessionOptions{
			Mode:                "online",
			StoreTimeout:        time.Second,
			ForfeitOnDisconnect: false,
		},
	}
}

func newTestEnv(t *testing.T, opts internal.CoordinatorOptions) *testEnv {
	t.Helper()

	ms := store.NewMemoryStore()
	coord := internal.NewCoordinator(ms, opts, logger.Discard())
	t.Cleanup(coord.Stop)

	return &testEnv{coord: coord, store: ms}
}

// connect 模擬握手成功後的連接
func (e *testEnv) connect(userID int64, name string) *internal.Client {
	c := internal.NewClient(userID, name, 64)
	e.coord.Connect(c)
	return c
}

func (e *testEnv) disconnect(c *internal.Client) {
	e.coord.Disconnect(c)
	c.Close()
}

// send 以客戶端身分送出一則訊息
func (e *testEnv) send(t *testing.T, c *internal.Client, msg any) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	e.coord.Dispatch(t.Context(), c, data)
}

// recv 讀取下一則出站訊息
func recv(t *testing.T, c *internal.Client) map[string]any {
	t.Helper()

	select {
	case data, ok := <-c.Messages():
		require.True(t, ok, "connection closed")
		var msg map[string]any
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(recvTimeout):
		t.Fatalf("timeout waiting for message on user %d", c.UserID)
		return nil
	}
}

// expect 讀取下一則訊息並檢查 type
func expect(t *testing.T, c *internal.Client, msgType string) map[string]any {
	t.Helper()
	msg := recv(t, c)
	require.Equal(t, msgType, msg["type"], "unexpected message: %v", msg)
	return msg
}

// expectNothing 確認一段時間內沒有訊息
func expectNothing(t *testing.T, c *internal.Client, wait time.Duration) {
	t.Helper()

	select {
	case data, ok := <-c.Messages():
		if ok {
			t.Fatalf("unexpected message on user %d: %s", c.UserID, data)
		}
	case <-time.After(wait):
	}
}

// num 把 JSON 數字轉成 int64
func num(v any) int64 {
	f, _ := v.(float64)
	return int64(f)
}

// startGame 走完邀請流程，回傳 game_id（host 為邀請者）
func (e *testEnv) startGame(t *testing.T, host, guest *internal.Client) string {
	t.Helper()

	e.send(t, host, map[string]any{"type": "game_invite", "to_user_id": guest.UserID})
	invite := expect(t, guest, "game_invite")
	expect(t, host, "game_invite_sent")

	e.send(t, guest, map[string]any{"type": "game_invite_accept", "invite_id": invite["invite_id"]})
	accepted := expect(t, host, "game_invite_accepted")
	expect(t, guest, "game_invite_accepted")

	return accepted["game_id"].(string)
}
