package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/onair/internal/domain/event"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
	pingErr error
	block   chan struct{} // when set, Send blocks until closed or ctx is done
	closed  bool
	pings   int
}

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	c.mu.Lock()
	block := c.block
	err := c.sendErr
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, msg)
	return nil
}

func (c *fakeConn) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pings++
	return c.pingErr
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func testConfig() Config {
	return Config{HeartbeatInterval: time.Hour, WriteTimeout: 200 * time.Millisecond, SendBuffer: 8}
}

func TestHub_PublishFansOut(t *testing.T) {
	h := New(testConfig())
	defer h.Close()

	conns := []*fakeConn{{}, {}, {}}
	for _, c := range conns {
		_, err := h.Subscribe(c)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, h.SubscriberCount())

	require.NoError(t, h.Publish(event.TrackEnded, map[string]any{"track_id": 1, "reason": "repeat_none"}))

	for _, c := range conns {
		require.Eventually(t, func() bool { return len(c.received()) == 1 }, time.Second, 5*time.Millisecond)

		var env map[string]any
		require.NoError(t, json.Unmarshal(c.received()[0], &env))
		assert.Equal(t, "track_ended", env["event"])
		assert.Equal(t, map[string]any{"track_id": float64(1), "reason": "repeat_none"}, env["data"])
		ts, ok := env["timestamp"].(string)
		require.True(t, ok)
		_, err := time.Parse(time.RFC3339Nano, ts)
		assert.NoError(t, err)
	}
}

func TestHub_PublishKeepsOrderPerConnection(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 128
	h := New(cfg)
	defer h.Close()

	c := &fakeConn{}
	_, err := h.Subscribe(c)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.NoError(t, h.Publish(event.OverlayMessage, map[string]int{"seq": i}))
	}

	require.Eventually(t, func() bool { return len(c.received()) == 100 }, time.Second, 5*time.Millisecond)
	for i, frame := range c.received() {
		var env struct {
			Data struct {
				Seq int `json:"seq"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(frame, &env))
		assert.Equal(t, i, env.Data.Seq)
	}
}

func TestHub_PublishUnknownType(t *testing.T) {
	h := New(testConfig())
	defer h.Close()

	assert.Error(t, h.Publish(event.Type("bogus"), nil))
}

func TestHub_SlowSubscriberIsEvicted(t *testing.T) {
	cfg := testConfig()
	cfg.SendBuffer = 2
	cfg.WriteTimeout = 5 * time.Second
	h := New(cfg)

	slow := &fakeConn{block: make(chan struct{})}
	fast := &fakeConn{}
	_, err := h.Subscribe(slow)
	require.NoError(t, err)
	_, err = h.Subscribe(fast)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, h.Publish(event.TickerUpdate, nil))
		// Let the fast writer keep its queue short.
		require.Eventually(t, func() bool { return len(fast.received()) == i+1 }, time.Second, time.Millisecond)
	}

	assert.Equal(t, 1, h.SubscriberCount())
	close(slow.block)
	assert.Eventually(t, slow.isClosed, time.Second, 5*time.Millisecond)
	assert.Len(t, fast.received(), 10)

	h.Close()
}

func TestHub_FailedWriteEvictsOnlyThatSubscriber(t *testing.T) {
	h := New(testConfig())
	defer h.Close()

	broken := &fakeConn{sendErr: errors.New("broken pipe")}
	healthy := &fakeConn{}
	_, err := h.Subscribe(broken)
	require.NoError(t, err)
	_, err = h.Subscribe(healthy)
	require.NoError(t, err)

	require.NoError(t, h.Publish(event.NowPlayingUpdate, nil))

	assert.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, broken.isClosed, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish(event.NowPlayingUpdate, nil))
	assert.Eventually(t, func() bool { return len(healthy.received()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestHub_HeartbeatEvictsUnresponsive(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 20 * time.Millisecond
	h := New(cfg)
	defer h.Close()

	dead := &fakeConn{pingErr: errors.New("pong not received")}
	alive := &fakeConn{}
	deadID, err := h.Subscribe(dead)
	require.NoError(t, err)
	_, err = h.Subscribe(alive)
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Start(context.Background()))

	assert.Eventually(t, func() bool { return h.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, dead.isClosed, time.Second, 5*time.Millisecond)
	assert.False(t, alive.isClosed())

	// The evicted ID is gone; unsubscribing again is harmless.
	h.Unsubscribe(deadID)
	assert.Equal(t, 1, h.SubscriberCount())
}

func TestHub_SendTo(t *testing.T) {
	h := New(testConfig())
	defer h.Close()

	a, b := &fakeConn{}, &fakeConn{}
	idA, err := h.Subscribe(a)
	require.NoError(t, err)
	_, err = h.Subscribe(b)
	require.NoError(t, err)

	require.NoError(t, h.SendTo(idA, event.NowPlayingUpdate, map[string]bool{"is_playing": true}))
	require.NoError(t, h.SendTo("missing", event.NowPlayingUpdate, nil))

	assert.Eventually(t, func() bool { return len(a.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, b.received())
}

func TestHub_SubscribeWithQueuesFirstFrameAhead(t *testing.T) {
	h := New(testConfig())
	defer h.Close()

	c := &fakeConn{}
	_, err := h.SubscribeWith(c, event.NowPlayingUpdate, map[string]int{"current_pos_sec": 12})
	require.NoError(t, err)
	require.NoError(t, h.Publish(event.TrackChanged, map[string]int{"track_id": 2}))

	require.Eventually(t, func() bool { return len(c.received()) == 2 }, time.Second, 5*time.Millisecond)
	var types []string
	for _, frame := range c.received() {
		var env struct {
			Event string `json:"event"`
		}
		require.NoError(t, json.Unmarshal(frame, &env))
		types = append(types, env.Event)
	}
	assert.Equal(t, []string{"now_playing_update", "track_changed"}, types)

	_, err = h.SubscribeWith(&fakeConn{}, event.Type("bogus"), nil)
	assert.Error(t, err)
}

func TestHub_Close(t *testing.T) {
	cfg := testConfig()
	cfg.HeartbeatInterval = 10 * time.Millisecond
	h := New(cfg)
	require.NoError(t, h.Start(context.Background()))

	conns := make([]*fakeConn, 5)
	for i := range conns {
		conns[i] = &fakeConn{}
		_, err := h.Subscribe(conns[i])
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, h.Publish(event.TrackOrderChanged, map[string]string{"n": fmt.Sprint(i)}))
	}

	h.Close()
	h.Close()

	for _, c := range conns {
		assert.True(t, c.isClosed())
		assert.Len(t, c.received(), 3, "queued frames are flushed before close")
	}
	assert.Equal(t, 0, h.SubscriberCount())

	_, err := h.Subscribe(&fakeConn{})
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.ErrorIs(t, h.Publish(event.TickerUpdate, nil), ErrHubClosed)
	assert.ErrorIs(t, h.Start(context.Background()), ErrHubClosed)
}

func TestHub_ConcurrentSubscribePublish(t *testing.T) {
	h := New(testConfig())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			id, err := h.Subscribe(&fakeConn{})
			if err == nil {
				h.Unsubscribe(id)
			}
		}()
		go func() {
			defer wg.Done()
			_ = h.Publish(event.TickerUpdate, nil)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, h.SubscriberCount())
	h.Close()
}
