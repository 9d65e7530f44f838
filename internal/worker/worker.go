package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/dispatcher"
)

// Commands handled by the buffer worker.
const (
	CmdBufferInit  = ":BUFFER:INIT:"
	CmdBufferCheck = ":BUFFER:CHECK:"
	CmdBufferReset = ":BUFFER:RESET:"
)

// BufferCache is the part of cache.FrameCache the worker drives.
type BufferCache interface {
	Init(ctx context.Context) error
	CheckBuffer(ctx context.Context)
	Reset(ctx context.Context, frame int, opts cache.ResetOptions) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Cache  BufferCache
	Logger *slog.Logger
}

// Manager runs frame cache maintenance off the playback path.
type Manager struct {
	deps       Dependencies
	ctx        context.Context
	dispatcher *dispatcher.Dispatcher
	lastCheck  atomic.Int64 // nanoseconds
}

// NewManager creates a new worker manager. ctx bounds every buffering call
// the manager makes.
func NewManager(ctx context.Context, deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps: deps,
		ctx:  ctx,
	}
}

// RegisterHandlers registers the buffer commands with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	m.dispatcher = d

	// Init is sync: playback must not start before the first window is loaded.
	d.Register(CmdBufferInit, m.handleInit, dispatcher.Logged())

	// Checks coalesce: one running, at most one pending.
	d.Register(CmdBufferCheck, m.handleCheck, dispatcher.Buffered(1))

	d.Register(CmdBufferReset, m.handleReset, dispatcher.Buffered(16), dispatcher.Logged())
}

// Trigger requests a buffer check. It never blocks and is meant to be the
// frame cache's access hook.
func (m *Manager) Trigger() {
	if m.dispatcher == nil {
		return
	}
	_, err := m.dispatcher.Dispatch(dispatcher.Event{Command: CmdBufferCheck, Timestamp: time.Now()})
	if err != nil && !errors.Is(err, dispatcher.ErrQueueFull) && !errors.Is(err, dispatcher.ErrClosed) {
		m.deps.Logger.Error("Failed to request buffer check", "error", err)
	}
}

// LastCheckDuration returns how long the most recent buffer check took.
func (m *Manager) LastCheckDuration() time.Duration {
	return time.Duration(m.lastCheck.Load())
}

func (m *Manager) handleInit(e dispatcher.Event) (any, error) {
	if err := m.deps.Cache.Init(m.ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize frame cache: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleCheck(e dispatcher.Event) (any, error) {
	start := time.Now()
	m.deps.Cache.CheckBuffer(m.ctx)
	m.lastCheck.Store(int64(time.Since(start)))
	return nil, nil
}

// handleReset expects the target frame and an optional "all" flag.
func (m *Manager) handleReset(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("reset needs a frame, got %d args", len(e.Args))
	}
	frame, err := strconv.Atoi(e.Args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid reset frame %q: %w", e.Args[0], err)
	}
	opts := cache.ResetOptions{ClearAll: len(e.Args) > 1 && e.Args[1] == "all"}

	if err := m.deps.Cache.Reset(m.ctx, frame, opts); err != nil {
		return nil, fmt.Errorf("failed to reset frame cache at %d: %w", frame, err)
	}
	return nil, nil
}
