package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/onair/internal/domain/fault"
	"github.com/osa030/onair/internal/infra/fallback"
)

// fakeSink records delivered payloads and fails while down is set.
type fakeSink struct {
	mu        sync.Mutex
	down      bool
	failText  string // payloads containing this text always fail
	delivered []string
	gate      chan struct{} // when set, Deliver waits on it
	calls     atomic.Int32
}

func (s *fakeSink) Deliver(ctx context.Context, payload []byte) ([]byte, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return nil, errors.New("connection refused")
	}
	if s.failText != "" && json.Valid(payload) && containsText(payload, s.failText) {
		return nil, errors.New("status 500")
	}
	s.delivered = append(s.delivered, string(payload))
	return []byte(`{"success":true}`), nil
}

func (s *fakeSink) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *fakeSink) got() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.delivered...)
}

func containsText(payload []byte, text string) bool {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return false
	}
	return m["text"] == text
}

func newTestForwarder(t *testing.T, sink Sink) (*Forwarder, *fallback.FileQueue) {
	t.Helper()
	q, err := fallback.Open(filepath.Join(t.TempDir(), "unsent.json"))
	require.NoError(t, err)
	return NewForwarder(sink, q, Config{ForwardTimeout: time.Second}), q
}

func msg(text string) []byte {
	return []byte(fmt.Sprintf(`{"text":%q,"role":"assistant"}`, text))
}

func TestForwarder_ForwardDelivered(t *testing.T) {
	sink := &fakeSink{}
	f, q := newTestForwarder(t, sink)

	res, err := f.Forward(context.Background(), msg("hello"))
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.False(t, res.Queued)
	assert.JSONEq(t, `{"success":true}`, string(res.Body))

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestForwarder_ForwardQueuesOnFailure(t *testing.T) {
	sink := &fakeSink{down: true}
	f, q := newTestForwarder(t, sink)

	res, err := f.Forward(context.Background(), msg("hello"))
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	assert.True(t, res.Queued)
	assert.Contains(t, res.Reason, "connection refused")

	entries, err := q.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, string(msg("hello")), string(entries[0].Data))
}

func TestForwarder_ForwardTimeoutQueues(t *testing.T) {
	sink := &fakeSink{gate: make(chan struct{})}
	q, err := fallback.Open(filepath.Join(t.TempDir(), "unsent.json"))
	require.NoError(t, err)
	f := NewForwarder(sink, q, Config{ForwardTimeout: 20 * time.Millisecond})

	res, err := f.Forward(context.Background(), msg("slow"))
	require.NoError(t, err)
	assert.True(t, res.Queued)

	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestForwarder_ForwardRejectsMalformed(t *testing.T) {
	sink := &fakeSink{}
	f, q := newTestForwarder(t, sink)

	for _, payload := range []string{"", "   ", "not json", `["array"]`, `{"text":`, `"string"`} {
		_, err := f.Forward(context.Background(), []byte(payload))
		require.Error(t, err, "payload %q", payload)
		assert.True(t, errors.Is(err, fault.ErrMalformedPayload), "payload %q", payload)
	}

	assert.Equal(t, int32(0), sink.calls.Load())
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestForwarder_ForwardThenDrainRoundTrip(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{down: true}
	f, q := newTestForwarder(t, sink)

	for _, text := range []string{"a", "b", "c"} {
		res, err := f.Forward(ctx, msg(text))
		require.NoError(t, err)
		require.True(t, res.Queued)
	}

	sink.setDown(false)
	report, err := f.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{TotalRetried: 3, Delivered: 3, FailedCount: 0}, report)

	got := sink.got()
	require.Len(t, got, 3)
	for i, text := range []string{"a", "b", "c"} {
		assert.JSONEq(t, string(msg(text)), got[i])
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.NoFileExists(t, q.Path())
}

func TestForwarder_DrainKeepsFailures(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{down: true}
	f, q := newTestForwarder(t, sink)

	for _, text := range []string{"a", "poison", "c"} {
		_, err := f.Forward(ctx, msg(text))
		require.NoError(t, err)
	}

	sink.setDown(false)
	sink.failText = "poison"
	report, err := f.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainReport{TotalRetried: 3, Delivered: 2, FailedCount: 1}, report)

	entries, err := q.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.JSONEq(t, string(msg("poison")), string(entries[0].Data))
}

func TestForwarder_DrainEmpty(t *testing.T) {
	sink := &fakeSink{}
	f, _ := newTestForwarder(t, sink)

	report, err := f.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DrainReport{}, report)
	assert.Equal(t, int32(0), sink.calls.Load())
}

func TestForwarder_ConcurrentDrainRefused(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{down: true}
	f, _ := newTestForwarder(t, sink)

	_, err := f.Forward(ctx, msg("a"))
	require.NoError(t, err)

	sink.setDown(false)
	sink.gate = make(chan struct{})

	done := make(chan DrainReport, 1)
	go func() {
		report, _ := f.Drain(ctx)
		done <- report
	}()

	require.Eventually(t, func() bool { return sink.calls.Load() > 1 }, time.Second, time.Millisecond)
	_, err = f.Drain(ctx)
	assert.ErrorIs(t, err, ErrDrainInProgress)

	close(sink.gate)
	assert.Equal(t, 1, (<-done).Delivered)
}

func TestForwarder_ForwardsDuringDrainSurvive(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{down: true}
	f, q := newTestForwarder(t, sink)

	for i := 0; i < 5; i++ {
		_, err := f.Forward(ctx, msg(fmt.Sprintf("old-%d", i)))
		require.NoError(t, err)
	}

	// The drain delivers; concurrent forwards hit a sink that is down for them.
	gate := make(chan struct{})
	sink.setDown(false)
	drainSink := &fakeSink{gate: gate}
	drainer := NewForwarder(drainSink, q, Config{ForwardTimeout: 5 * time.Second})

	done := make(chan DrainReport, 1)
	go func() {
		report, err := drainer.Drain(ctx)
		assert.NoError(t, err)
		done <- report
	}()
	require.Eventually(t, func() bool { return drainSink.calls.Load() > 0 }, time.Second, time.Millisecond)

	sink.setDown(true)
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.Forward(ctx, msg(fmt.Sprintf("new-%d", i)))
			assert.NoError(t, err)
			assert.True(t, res.Queued)
		}(i)
	}
	wg.Wait()

	close(gate)
	report := <-done
	assert.Equal(t, DrainReport{TotalRetried: 5, Delivered: 5}, report)

	entries, err := q.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, n, "forwards made during the drain are neither lost nor duplicated")
	for _, e := range entries {
		var m map[string]string
		require.NoError(t, json.Unmarshal(e.Data, &m))
		assert.Contains(t, m["text"], "new-")
	}
}

func TestForwarder_DrainInterruptedKeepsRemainder(t *testing.T) {
	sink := &fakeSink{down: true}
	q, err := fallback.Open(filepath.Join(t.TempDir(), "unsent.json"))
	require.NoError(t, err)
	f := NewForwarder(sink, q, Config{ForwardTimeout: time.Second, DrainRate: 1})

	for i := 0; i < 3; i++ {
		_, err := f.Forward(context.Background(), msg(fmt.Sprint(i)))
		require.NoError(t, err)
	}
	sink.setDown(false)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	report, err := f.Drain(ctx)
	require.Error(t, err)
	assert.Equal(t, DrainReport{TotalRetried: 1, Delivered: 1, FailedCount: 0, Untried: 2}, report)
	assert.Equal(t, int32(1), sink.calls.Load()-3, "only one redelivery was attempted")

	entries, err := q.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.JSONEq(t, string(msg("1")), string(entries[0].Data))
	assert.JSONEq(t, string(msg("2")), string(entries[1].Data))
}

func TestForwarder_CloseWaitsAndRefusesDrains(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{down: true}
	f, q := newTestForwarder(t, sink)

	_, err := f.Forward(ctx, msg("a"))
	require.NoError(t, err)

	sink.setDown(false)
	sink.gate = make(chan struct{})
	done := make(chan DrainReport, 1)
	go func() {
		report, _ := f.Drain(ctx)
		done <- report
	}()
	require.Eventually(t, func() bool { return sink.calls.Load() > 1 }, time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		f.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a drain was running")
	case <-time.After(20 * time.Millisecond):
	}

	close(sink.gate)
	assert.Equal(t, 1, (<-done).Delivered)
	<-closed

	_, err = f.Drain(ctx)
	assert.ErrorIs(t, err, ErrForwarderClosed)

	res, err := f.Forward(ctx, msg("late"))
	require.NoError(t, err)
	assert.True(t, res.Delivered)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScheduler(t *testing.T) {
	_, err := NewScheduler("not a cron", nil)
	assert.Error(t, err)

	s, err := NewScheduler("", nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	sink := &fakeSink{}
	f, _ := newTestForwarder(t, sink)
	s, err = NewScheduler("@every 1h", f)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}
