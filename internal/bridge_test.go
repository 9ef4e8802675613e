package internal_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmheidat/Transcendence/internal"
	"github.com/mmheidat/Transcendence/internal/bus"
	"github.com/mmheidat/Transcendence/pkg/logger"
)

const chatChannel = "chat:new_message"

// TestBridge_Deliver 測試聊天通知推送
func TestBridge_Deliver(t *testing.T) {
	e := newTestEnv(t, defaultOptions())
	alice := e.connect(1, "alice")
	aliceTab := e.connect(1, "alice")
	bob := e.connect(2, "bob")

	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	bridge := internal.NewBridge(b, chatChannel, e.coord.Registry(), logger.Discard())
	require.NoError(t, bridge.Start(t.Context()))
	require.NoError(t, bridge.Start(t.Context()), "start is idempotent")
	t.Cleanup(func() { _ = bridge.Stop() })

	t.Run("online receiver gets message on every tab", func(t *testing.T) {
		payload := `{"receiver_id":1,"message":{"id":10,"sender_id":2,"content":"hi"}}`
		require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(payload)))

		for _, c := range []*internal.Client{alice, aliceTab} {
			msg := expect(t, c, "new_message")
			assert.Equal(t, map[string]any{
				"id":        float64(10),
				"sender_id": float64(2),
				"content":   "hi",
			}, msg["message"])
		}
		expectNothing(t, bob, 30*time.Millisecond)
	})

	t.Run("payload without message field is forwarded whole", func(t *testing.T) {
		payload := `{"receiverId":"2","content":"yo"}`
		require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(payload)))

		msg := expect(t, bob, "new_message")
		assert.Equal(t, "yo", msg["message"].(map[string]any)["content"])
	})

	t.Run("offline receiver is dropped", func(t *testing.T) {
		require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(`{"receiver_id":42,"message":{}}`)))
		require.Eventually(t, func() bool {
			return bridge.Dropped() == 1
		}, recvTimeout, 10*time.Millisecond)
	})

	t.Run("malformed payload is ignored", func(t *testing.T) {
		require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(`not json`)))
		require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(`{"message":{}}`)))

		// 之後的通知仍正常處理
		require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(`{"receiver_id":2,"message":{"n":1}}`)))
		expect(t, bob, "new_message")
	})

	assert.Equal(t, int64(3), bridge.Delivered())
}

// TestBridge_Stop 取消訂閱後不再推送
func TestBridge_Stop(t *testing.T) {
	e := newTestEnv(t, defaultOptions())
	alice := e.connect(1, "alice")

	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	bridge := internal.NewBridge(b, chatChannel, e.coord.Registry(), logger.Discard())
	require.NoError(t, bridge.Start(t.Context()))
	require.NoError(t, bridge.Stop())

	require.NoError(t, b.Publish(t.Context(), chatChannel, []byte(`{"receiver_id":1,"message":{}}`)))
	expectNothing(t, alice, 50*time.Millisecond)
}
