package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tovian/tovian/internal/storage"
	"github.com/tovian/tovian/pkg/core"
)

// Journal entry types written by the frame cache.
const (
	LogTypeMiss       = "cache.miss"
	LogTypeFetchError = "cache.fetch_error"
)

// Event reports buffering progress to a listener.
type Event int

const (
	EventBuffering Event = iota + 1
	EventBuffered
	EventInitialized
)

func (e Event) String() string {
	switch e {
	case EventBuffering:
		return "buffering"
	case EventBuffered:
		return "buffered"
	case EventInitialized:
		return "initialized"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// Config holds the window sizing parameters of a FrameCache.
type Config struct {
	CachedTime     time.Duration // length of video kept around the playhead
	BorderFraction float64       // refill when the playhead is this close to an edge
	MaxMemory      int64         // estimated bytes before the window is rebuilt
	DisplayedRange int           // frames shown at once, centred on the current frame
	AvgEntrySize   int64         // estimated bytes per cached (frame, object) entry
}

// DefaultConfig returns a 10 second window with a 25% border and a 50MB ceiling.
func DefaultConfig() Config {
	return Config{
		CachedTime:     10 * time.Second,
		BorderFraction: 0.25,
		MaxMemory:      52428800,
		DisplayedRange: 1,
		AvgEntrySize:   2048,
	}
}

// ObjectRef identifies an edited object and the interval it used to occupy.
type ObjectRef struct {
	ID       uint
	OldStart int
	OldEnd   int
}

// ResetOptions controls how Reset rebuilds the window.
type ResetOptions struct {
	ClearAll    bool
	ClearObject *ObjectRef
}

// Dependencies holds everything a FrameCache talks to.
type Dependencies struct {
	Source  storage.Source
	Journal storage.LogRecorder // optional
	Logger  *slog.Logger
	// OnEvent receives buffering events. It is called without the cache lock held.
	OnEvent func(Event)
	// Trigger is invoked after every lookup to request a background CheckBuffer.
	// It must not block.
	Trigger func()
	// SizeEstimator overrides the memory estimate from frame and entry counts.
	SizeEstimator func(frames, entries int) int64
}

// Stats is a point-in-time view of the cache.
type Stats struct {
	VideoID        uint
	MinFrame       int
	MaxFrame       int
	Frames         int
	Entries        int
	EstimatedBytes int64
	LastAccessed   core.Interval
	Initialized    bool
	Hits           int64
	Misses         int64
	Fetches        int64
}

// FrameCache keeps a window of frame -> active objects around the playhead
// so playback can be served without a query per frame.
type FrameCache struct {
	deps  Dependencies
	cfg   Config
	video core.Video
	span  int
	log   *slog.Logger

	mu             sync.Mutex
	frames         map[int]map[uint]core.Span
	entries        int
	minFrame       int
	maxFrame       int
	lastAccessed   core.Interval
	displayedRange int
	generation     uint64
	initialized    bool

	hits    atomic.Int64
	misses  atomic.Int64
	fetches atomic.Int64

	closed  atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	metrics *instruments
}

// NewFrameCache creates an empty cache for video. Call Init to load the
// first window.
func NewFrameCache(video core.Video, cfg Config, deps Dependencies) (*FrameCache, error) {
	if deps.Source == nil {
		return nil, fmt.Errorf("frame cache: no data source")
	}
	if video.FPS <= 0 || video.FrameCount < 0 {
		return nil, fmt.Errorf("frame cache: video %d has fps %v and %d frames", video.ID, video.FPS, video.FrameCount)
	}
	if cfg.BorderFraction <= 0 || cfg.BorderFraction >= 1 {
		return nil, fmt.Errorf("frame cache: border fraction %v outside (0, 1)", cfg.BorderFraction)
	}
	if cfg.DisplayedRange < 1 {
		cfg.DisplayedRange = 1
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	metrics, err := newInstruments()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FrameCache{
		deps:           deps,
		cfg:            cfg,
		video:          video,
		span:           max(1, int(cfg.CachedTime.Seconds()*video.FPS)),
		log:            deps.Logger.With("component", "frame_cache", "video", video.ID),
		frames:         make(map[int]map[uint]core.Span),
		displayedRange: cfg.DisplayedRange,
		ctx:            ctx,
		cancel:         cancel,
		metrics:        metrics,
	}, nil
}

// Span returns the number of frames loaded by one buffering step.
func (c *FrameCache) Span() int {
	return c.span
}

// Init loads the first window starting at frame 0. Repeated calls are no-ops.
func (c *FrameCache) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.rebuild(ctx, core.Interval{From: 0, To: min(c.span, c.video.FrameCount)}, 0); err != nil {
		return err
	}

	c.mu.Lock()
	c.initialized = true
	c.mu.Unlock()

	c.log.Debug("Frame cache initialized", "span", c.span, "frames", c.video.FrameCount)
	c.emit(EventInitialized)
	return nil
}

// ObjectsInFrame returns the objects active at frame. Frames outside the
// window fall back to a direct query.
func (c *FrameCache) ObjectsInFrame(ctx context.Context, frame int) ([]core.Span, error) {
	if err := c.checkFrame(frame); err != nil {
		return nil, err
	}

	c.mu.Lock()
	entry, ok := c.frames[frame]
	var out []core.Span
	if ok {
		out = make([]core.Span, 0, len(entry))
		for _, s := range entry {
			out = append(out, s)
		}
	}
	c.lastAccessed = core.Interval{From: frame, To: frame}
	c.mu.Unlock()

	c.trigger()

	if ok {
		c.hit(ctx)
		storage.SortSpans(out)
		return out, nil
	}

	c.miss(ctx, core.Interval{From: frame, To: frame})
	spans, err := c.query(ctx, fmt.Sprintf("frame %d", frame), func(ctx context.Context) ([]core.Span, error) {
		return c.deps.Source.ObjectsActiveInFrame(ctx, c.video.ID, frame)
	})
	if err != nil {
		c.journal(LogTypeFetchError, fmt.Sprintf("Error when querying objects directly in frame %d: %v", frame, err))
		return nil, err
	}
	return spans, nil
}

// ObjectsInFrameInterval returns the union of objects active anywhere in
// [from, to]. to is clamped to the last frame of the video.
func (c *FrameCache) ObjectsInFrameInterval(ctx context.Context, from, to int) ([]core.Span, error) {
	if from > to {
		return nil, fmt.Errorf("frames %d-%d: %w", from, to, core.ErrInvalidRange)
	}
	if from < 0 || from > c.video.FrameCount {
		return nil, fmt.Errorf("frame %d of %d: %w", from, c.video.FrameCount, core.ErrOutOfRange)
	}
	to = min(to, c.video.FrameCount)
	if from == to {
		return c.ObjectsInFrame(ctx, from)
	}

	byID := make(map[uint]core.Span)
	var missing []core.Interval

	c.mu.Lock()
	for f := from; f <= to; f++ {
		entry, ok := c.frames[f]
		if !ok {
			if n := len(missing); n > 0 && missing[n-1].To == f-1 {
				missing[n-1].To = f
			} else {
				missing = append(missing, core.Interval{From: f, To: f})
			}
			continue
		}
		for id, s := range entry {
			byID[id] = s
		}
	}
	c.lastAccessed = core.Interval{From: from, To: to}
	c.mu.Unlock()

	c.trigger()

	if len(missing) == 0 {
		c.hit(ctx)
	} else {
		c.miss(ctx, core.Interval{From: missing[0].From, To: missing[len(missing)-1].To})
		fetched, err := c.direct(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, s := range fetched {
			byID[s.Object.ID] = s
		}
	}

	out := make([]core.Span, 0, len(byID))
	for _, s := range byID {
		out = append(out, s)
	}
	storage.SortSpans(out)
	return out, nil
}

// SetDisplayedFrameRange sets how many frames around the current frame are
// shown at once. Reset keeps the window when all of them are cached.
func (c *FrameCache) SetDisplayedFrameRange(length int) error {
	if length < 1 {
		return fmt.Errorf("displayed range %d: %w", length, core.ErrInvalidRange)
	}
	c.mu.Lock()
	c.displayedRange = length
	c.mu.Unlock()
	return nil
}

// Reset moves the window to frame. Without options it does nothing when
// frame and the displayed range are already cached. ClearObject drops one
// edited object and reloads only that object; otherwise the whole window is
// rebuilt around frame. A failed rebuild leaves the current window as it was.
func (c *FrameCache) Reset(ctx context.Context, frame int, opts ResetOptions) error {
	if err := c.checkFrame(frame); err != nil {
		return err
	}

	c.mu.Lock()
	if !opts.ClearAll && opts.ClearObject == nil && c.coveredLocked(frame) {
		c.mu.Unlock()
		return nil
	}

	half := c.span / 2
	window := core.Interval{From: max(0, frame-half), To: min(c.video.FrameCount, frame+half)}
	if window.To <= window.From {
		c.mu.Unlock()
		return fmt.Errorf("window %d-%d around frame %d: %w", window.From, window.To, frame, core.ErrInvalidRange)
	}

	if ref := opts.ClearObject; ref != nil && !opts.ClearAll && len(c.frames) > 0 {
		for f := ref.OldStart; f <= ref.OldEnd; f++ {
			entry, ok := c.frames[f]
			if !ok {
				continue
			}
			if _, had := entry[ref.ID]; had {
				delete(entry, ref.ID)
				c.entries--
			}
		}
		cached := core.Interval{From: c.minFrame, To: c.maxFrame}
		gen := c.generation
		c.mu.Unlock()

		c.log.Debug("Reloading edited object", "object", ref.ID, "oldStart", ref.OldStart, "oldEnd", ref.OldEnd)
		return c.bufferObject(ctx, ref.ID, cached, gen)
	}

	c.mu.Unlock()

	c.log.Debug("Resetting frame cache", "frame", frame, "from", window.From, "to", window.To)
	return c.rebuild(ctx, window, frame)
}

// CheckBuffer extends the window when the last access came close to one of
// its edges and rebuilds it when the memory estimate exceeds the ceiling.
// It runs on the background worker; failures are logged, never returned.
func (c *FrameCache) CheckBuffer(ctx context.Context) {
	if c.closed.Load() {
		return
	}

	c.mu.Lock()
	if len(c.frames) == 0 {
		// Init failed or never ran: load a window around the last access.
		last := c.lastAccessed
		c.mu.Unlock()
		mid := last.From + (last.To-last.From)/2
		if err := c.Reset(ctx, mid, ResetOptions{ClearAll: true}); err != nil {
			c.log.Error("Failed to load frame cache", "frame", mid, "error", err)
		}
		return
	}
	estimated := c.estimateLocked()
	lo, hi := c.minFrame, c.maxFrame
	last := c.lastAccessed
	gen := c.generation
	c.mu.Unlock()

	if estimated > c.cfg.MaxMemory {
		mid := last.From + (last.To-last.From)/2
		c.log.Info("Frame cache over memory ceiling, rebuilding", "estimated", estimated, "max", c.cfg.MaxMemory, "frame", mid)
		if err := c.Reset(ctx, mid, ResetOptions{ClearAll: true}); err != nil {
			c.log.Error("Failed to rebuild frame cache", "frame", mid, "error", err)
		}
		return
	}

	// Both edges are checked on every pass, so a wide access can extend
	// the window in both directions at once.
	allowed := c.cfg.BorderFraction * float64(c.span)

	if float64(lo-last.From) > -allowed {
		if stop := lo - 1; stop >= 0 {
			iv := core.Interval{From: max(0, stop-c.span), To: stop}
			if err := c.buffer(ctx, iv, gen); err != nil {
				c.log.Error("Failed to extend frame cache backwards", "from", iv.From, "to", iv.To, "error", err)
			}
		}
	}

	if float64(hi-last.To) < allowed {
		if start := hi + 1; start <= c.video.FrameCount {
			iv := core.Interval{From: start, To: min(c.video.FrameCount, start+c.span)}
			if err := c.buffer(ctx, iv, gen); err != nil {
				c.log.Error("Failed to extend frame cache forwards", "from", iv.From, "to", iv.To, "error", err)
			}
		}
	}
}

// Stats returns a snapshot of the cache state and counters.
func (c *FrameCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		VideoID:        c.video.ID,
		MinFrame:       c.minFrame,
		MaxFrame:       c.maxFrame,
		Frames:         len(c.frames),
		Entries:        c.entries,
		EstimatedBytes: c.estimateLocked(),
		LastAccessed:   c.lastAccessed,
		Initialized:    c.initialized,
		Hits:           c.hits.Load(),
		Misses:         c.misses.Load(),
		Fetches:        c.fetches.Load(),
	}
}

// Close cancels in-flight fetches. Results that arrive afterwards are discarded.
func (c *FrameCache) Close() {
	if c.closed.Swap(true) {
		return
	}
	c.cancel()
}

// coveredLocked reports whether frame and the displayed range around it are cached.
func (c *FrameCache) coveredLocked(frame int) bool {
	if _, ok := c.frames[frame]; !ok {
		return false
	}
	radius := (c.displayedRange - 1) / 2
	lo := max(0, frame-radius)
	hi := min(c.video.FrameCount, frame+radius)
	return c.minFrame <= lo && c.maxFrame >= hi
}

func (c *FrameCache) estimateLocked() int64 {
	if c.deps.SizeEstimator != nil {
		return c.deps.SizeEstimator(len(c.frames), c.entries)
	}
	const frameOverhead = 64
	return int64(len(c.frames))*frameOverhead + int64(c.entries)*c.cfg.AvgEntrySize
}

func (c *FrameCache) checkFrame(frame int) error {
	if frame < 0 || frame > c.video.FrameCount {
		return fmt.Errorf("frame %d of %d: %w", frame, c.video.FrameCount, core.ErrOutOfRange)
	}
	return nil
}

// rebuild fetches window without holding the lock and swaps it in as the
// whole cache. Starting a rebuild supersedes earlier rebuilds and
// extensions; swapping it in supersedes extensions started meanwhile. On
// error nothing changes.
func (c *FrameCache) rebuild(ctx context.Context, window core.Interval, frame int) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.emit(EventBuffering)
	spans, err := c.fetch(ctx, []core.Interval{window}, nil)
	if err != nil {
		c.journal(LogTypeFetchError, fmt.Sprintf("Error when buffering objects on interval [%d, %d]: %v", window.From, window.To, err))
		return err
	}
	frames := make(map[int]map[uint]core.Span, window.To-window.From+1)
	entries := mergeInto(frames, window, spans)

	c.mu.Lock()
	if c.closed.Load() || gen != c.generation {
		c.mu.Unlock()
		c.log.Debug("Discarding superseded rebuild", "from", window.From, "to", window.To)
		return nil
	}
	c.generation++
	c.frames, c.entries = frames, entries
	c.minFrame, c.maxFrame = window.From, window.To
	c.lastAccessed = core.Interval{From: frame, To: frame}
	c.mu.Unlock()

	c.emit(EventBuffered)
	return nil
}

// buffer fetches iv without holding the lock and merges the result unless
// the window was rebuilt in the meantime.
func (c *FrameCache) buffer(ctx context.Context, iv core.Interval, gen uint64) error {
	if iv.From > iv.To || iv.From < 0 || iv.To > c.video.FrameCount {
		return fmt.Errorf("buffer frames %d-%d: %w", iv.From, iv.To, core.ErrInvalidRange)
	}

	c.emit(EventBuffering)
	spans, err := c.fetch(ctx, []core.Interval{iv}, nil)
	if err != nil {
		c.journal(LogTypeFetchError, fmt.Sprintf("Error when buffering objects on interval [%d, %d]: %v", iv.From, iv.To, err))
		return err
	}

	c.mu.Lock()
	if c.closed.Load() || gen != c.generation {
		c.mu.Unlock()
		c.log.Debug("Discarding stale buffer result", "from", iv.From, "to", iv.To)
		return nil
	}
	if len(c.frames) == 0 {
		c.minFrame, c.maxFrame = iv.From, iv.To
	} else {
		c.minFrame = min(c.minFrame, iv.From)
		c.maxFrame = max(c.maxFrame, iv.To)
	}
	c.mergeLocked(iv, spans)
	c.mu.Unlock()

	c.emit(EventBuffered)
	return nil
}

// bufferObject reloads a single object over the cached interval.
func (c *FrameCache) bufferObject(ctx context.Context, id uint, cached core.Interval, gen uint64) error {
	spans, err := c.fetch(ctx, []core.Interval{cached}, []uint{id})
	if err != nil {
		c.journal(LogTypeFetchError, fmt.Sprintf("Error when buffering object %d on interval [%d, %d]: %v", id, cached.From, cached.To, err))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() || gen != c.generation {
		return nil
	}
	c.mergeLocked(cached, spans)
	return nil
}

func (c *FrameCache) mergeLocked(iv core.Interval, spans []core.Span) {
	c.entries += mergeInto(c.frames, iv, spans)
}

// mergeInto adds spans to every frame of iv they cover and returns the
// number of new entries.
func mergeInto(frames map[int]map[uint]core.Span, iv core.Interval, spans []core.Span) int {
	added := 0
	for f := iv.From; f <= iv.To; f++ {
		if _, ok := frames[f]; !ok {
			frames[f] = make(map[uint]core.Span)
		}
	}
	for _, s := range spans {
		for f := max(iv.From, s.Start); f <= min(iv.To, s.End); f++ {
			entry := frames[f]
			if _, had := entry[s.Object.ID]; !had {
				added++
			}
			entry[s.Object.ID] = s
		}
	}
	return added
}

// direct queries the source for frames the window does not hold.
func (c *FrameCache) direct(ctx context.Context, intervals []core.Interval) ([]core.Span, error) {
	spans, err := c.fetch(ctx, intervals, nil)
	if err != nil {
		c.journal(LogTypeFetchError, fmt.Sprintf("Error when querying objects directly on %v: %v", intervals, err))
		return nil, err
	}
	return spans, nil
}

func (c *FrameCache) fetch(ctx context.Context, intervals []core.Interval, ids []uint) ([]core.Span, error) {
	return c.query(ctx, fmt.Sprintf("intervals %v", intervals), func(ctx context.Context) ([]core.Span, error) {
		return c.deps.Source.ObjectsActiveInIntervals(ctx, c.video.ID, intervals, ids)
	})
}

// query runs one source call that Close can cancel, and counts it.
func (c *FrameCache) query(ctx context.Context, what string, q func(context.Context) ([]core.Span, error)) ([]core.Span, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	start := time.Now()
	spans, err := q(ctx)
	c.fetches.Add(1)
	c.metrics.recordFetch(ctx, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("video %d %s: %w: %w", c.video.ID, what, core.ErrFetch, err)
	}
	return spans, nil
}

func (c *FrameCache) hit(ctx context.Context) {
	c.hits.Add(1)
	c.metrics.recordLookup(ctx, true)
}

func (c *FrameCache) miss(ctx context.Context, iv core.Interval) {
	c.misses.Add(1)
	c.metrics.recordLookup(ctx, false)
	c.log.Warn("Frame cache miss, querying directly", "from", iv.From, "to", iv.To)
	c.journal(LogTypeMiss, fmt.Sprintf("Frames [%d, %d] not in buffer, queried directly", iv.From, iv.To))
}

func (c *FrameCache) journal(typ, value string) {
	if c.deps.Journal == nil {
		return
	}
	if err := c.deps.Journal.RecordLog(core.LogEntry{Type: typ, Value: value, CreatedAt: time.Now()}); err != nil {
		c.log.Error("Failed to record journal entry", "type", typ, "error", err)
	}
}

func (c *FrameCache) emit(e Event) {
	if c.deps.OnEvent != nil {
		c.deps.OnEvent(e)
	}
}

func (c *FrameCache) trigger() {
	if c.deps.Trigger != nil && !c.closed.Load() {
		c.deps.Trigger()
	}
}
