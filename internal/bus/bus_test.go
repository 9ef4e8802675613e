package bus_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmheidat/Transcendence/internal/bus"
	"github.com/mmheidat/Transcendence/internal/testutils"
	"github.com/mmheidat/Transcendence/pkg/logger"
)

// collector 收集 handler 收到的訊息
type collector struct {
	mu   sync.Mutex
	msgs []string
}

func (c *collector) handle(_ context.Context, payload []byte) {
	c.mu.Lock()
	c.msgs = append(c.msgs, string(payload))
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.msgs...)
}

// busContract 三種實作共用的行為測試
func busContract(t *testing.T, b bus.Bus) {
	ctx := context.Background()

	t.Run("delivers in publish order", func(t *testing.T) {
		var got collector
		sub, err := b.Subscribe(ctx, "chat:order", got.handle)
		require.NoError(t, err)
		defer sub.Unsubscribe()

		want := []string{`{"n":1}`, `{"n":2}`, `{"n":3}`}
		for _, p := range want {
			require.NoError(t, b.Publish(ctx, "chat:order", []byte(p)))
		}

		require.Eventually(t, func() bool {
			return len(got.snapshot()) == len(want)
		}, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, want, got.snapshot())
	})

	t.Run("channels are isolated", func(t *testing.T) {
		var a, other collector
		subA, err := b.Subscribe(ctx, "chat:a", a.handle)
		require.NoError(t, err)
		defer subA.Unsubscribe()
		subB, err := b.Subscribe(ctx, "chat:b", other.handle)
		require.NoError(t, err)
		defer subB.Unsubscribe()

		require.NoError(t, b.Publish(ctx, "chat:a", []byte(`{}`)))

		require.Eventually(t, func() bool {
			return len(a.snapshot()) == 1
		}, 3*time.Second, 10*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, other.snapshot())
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		var got collector
		sub, err := b.Subscribe(ctx, "chat:unsub", got.handle)
		require.NoError(t, err)
		require.NoError(t, sub.Unsubscribe())

		require.NoError(t, b.Publish(ctx, "chat:unsub", []byte(`{}`)))
		time.Sleep(50 * time.Millisecond)
		assert.Empty(t, got.snapshot())
	})
}

// TestMemoryBus 行程內匯流排
func TestMemoryBus(t *testing.T) {
	b := bus.NewMemoryBus()
	busContract(t, b)

	t.Run("publish after close is a no-op", func(t *testing.T) {
		require.NoError(t, b.Close())
		require.NoError(t, b.Publish(context.Background(), "chat:x", []byte(`{}`)))
	})
}

// TestRedisBus 需要 Docker
func TestRedisBus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	r := testutils.StartRedis(t)
	b := bus.NewRedisBus(r.Client, logger.Discard())
	t.Cleanup(func() { _ = b.Close() })

	busContract(t, b)
}

// TestNATSBus 需要設定 NATS_URL 指向可用的 NATS Server
func TestNATSBus(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" || testing.Short() {
		t.Skip("NATS_URL not set")
	}

	conn, err := bus.ConnectNATS(url, "realtime-test")
	require.NoError(t, err)

	b := bus.NewNATSBus(conn, logger.Discard())
	t.Cleanup(func() { _ = b.Close() })

	busContract(t, b)
}
