package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/dispatcher"
	"github.com/tovian/tovian/internal/storage/memory"
	"github.com/tovian/tovian/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, keysAndValues ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, keysAndValues ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

type resetCall struct {
	frame int
	opts  cache.ResetOptions
}

// mockCache records the calls the worker makes.
type mockCache struct {
	mu      sync.Mutex
	inits   int
	checks  int
	resets  []resetCall
	initErr error
}

func (c *mockCache) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inits++
	return c.initErr
}

func (c *mockCache) CheckBuffer(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks++
}

func (c *mockCache) Reset(ctx context.Context, frame int, opts cache.ResetOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets = append(c.resets, resetCall{frame: frame, opts: opts})
	return nil
}

func newTestManager(t *testing.T, c BufferCache) (*Manager, *dispatcher.Dispatcher) {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	m := NewManager(context.Background(), Dependencies{Cache: c})
	m.RegisterHandlers(d)
	return m, d
}

func closeDispatcher(t *testing.T, d *dispatcher.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func TestRegisterHandlers(t *testing.T) {
	_, d := newTestManager(t, &mockCache{})
	defer closeDispatcher(t, d)

	for _, cmd := range []string{CmdBufferInit, CmdBufferCheck, CmdBufferReset} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}
}

func TestHandleInit(t *testing.T) {
	mc := &mockCache{}
	_, d := newTestManager(t, mc)
	defer closeDispatcher(t, d)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdBufferInit})
	require.NoError(t, err)
	assert.Equal(t, 1, mc.inits, "init runs synchronously")

	mc.initErr = core.ErrFetch
	_, err = d.Dispatch(dispatcher.Event{Command: CmdBufferInit})
	assert.ErrorIs(t, err, core.ErrFetch)
}

func TestHandleReset(t *testing.T) {
	mc := &mockCache{}
	_, d := newTestManager(t, mc)

	_, err := d.Dispatch(dispatcher.Event{Command: CmdBufferReset, Args: []string{"120"}})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdBufferReset, Args: []string{"7", "all"}})
	require.NoError(t, err)
	_, err = d.Dispatch(dispatcher.Event{Command: CmdBufferReset, Args: []string{"abc"}})
	require.NoError(t, err, "argument errors surface in the handler, not on dispatch")
	_, err = d.Dispatch(dispatcher.Event{Command: CmdBufferReset})
	require.NoError(t, err)

	closeDispatcher(t, d)

	mc.mu.Lock()
	defer mc.mu.Unlock()
	require.Len(t, mc.resets, 2)
	assert.Equal(t, resetCall{frame: 120}, mc.resets[0])
	assert.Equal(t, resetCall{frame: 7, opts: cache.ResetOptions{ClearAll: true}}, mc.resets[1])
}

func TestTrigger(t *testing.T) {
	mc := &mockCache{}
	m, d := newTestManager(t, mc)

	for i := 0; i < 50; i++ {
		m.Trigger()
	}
	closeDispatcher(t, d)

	mc.mu.Lock()
	checks := mc.checks
	mc.mu.Unlock()
	assert.GreaterOrEqual(t, checks, 1)
	assert.LessOrEqual(t, checks, 50, "bursts coalesce")

	// Triggers after close are ignored.
	m.Trigger()
}

func TestTrigger_WithoutDispatcher(t *testing.T) {
	m := NewManager(context.Background(), Dependencies{Cache: &mockCache{}})
	assert.NotPanics(t, m.Trigger)
}

func TestFrameCacheIntegration(t *testing.T) {
	backend := memory.New()
	video := core.Video{Name: "clip", FPS: 10, FrameCount: 300}
	require.NoError(t, backend.AddVideo(&video))

	obj := &core.Object{VideoID: video.ID, Type: core.ObjectPoint, Values: []core.AnnotationValue{
		{AttributeID: core.AttrPositionPoint, FrameFrom: 15, Value: core.Point{X: 1, Y: 1}},
		{AttributeID: core.AttrPositionPoint, FrameFrom: 25, Value: core.Point{X: 3, Y: 3}},
	}}
	require.NoError(t, backend.AddObject(context.Background(), obj))

	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)

	var m *Manager
	cfg := cache.DefaultConfig()
	cfg.CachedTime = time.Second // 10 frames
	fc, err := cache.NewFrameCache(video, cfg, cache.Dependencies{
		Source:  backend,
		Journal: backend,
		Trigger: func() { m.Trigger() },
	})
	require.NoError(t, err)
	defer fc.Close()

	m = NewManager(context.Background(), Dependencies{Cache: fc})
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdBufferInit})
	require.NoError(t, err)

	// Play forward; the worker extends the window ahead of the playhead.
	for frame := 0; frame <= 30; frame++ {
		_, err := fc.ObjectsInFrame(context.Background(), frame)
		require.NoError(t, err)
		require.Eventually(t, func() bool {
			return fc.Stats().MaxFrame >= min(frame+3, video.FrameCount)
		}, 2*time.Second, time.Millisecond)
	}

	closeDispatcher(t, d)

	stats := fc.Stats()
	assert.GreaterOrEqual(t, stats.MaxFrame, 33)
	assert.Positive(t, m.LastCheckDuration())

	spans, err := fc.ObjectsInFrame(context.Background(), 20)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, obj.ID, spans[0].Object.ID)
}

func TestHandleInit_PropagatesThroughLogging(t *testing.T) {
	logger := &mockLogger{}
	d, err := dispatcher.New(logger)
	require.NoError(t, err)
	m := NewManager(context.Background(), Dependencies{Cache: &mockCache{initErr: errors.New("db down")}})
	m.RegisterHandlers(d)

	_, err = d.Dispatch(dispatcher.Event{Command: CmdBufferInit})
	require.Error(t, err)

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, logger.messages, "event failed")
}
