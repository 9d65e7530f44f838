package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/influx"
)

// StatsSource exposes frame cache counters.
type StatsSource interface {
	Stats() cache.Stats
}

// PointWriter accepts metric points. influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Cache      StatsSource
	Influx     PointWriter // nil disables metric points
	Bucket     string
	Logger     *slog.Logger
	Interval   time.Duration
	StatusPath string              // empty disables the status file
	LastCheck  func() time.Duration // optional, usually worker.Manager.LastCheckDuration
}

// Performance is one sample of the frame cache.
type Performance struct {
	Time             time.Time   `json:"time"`
	Buffer           cache.Stats `json:"buffer"`
	HitRate          float64     `json:"hitRate"`
	LastCheckMs      float64     `json:"lastCheckMs"`
	EstimatedMemPerc float64     `json:"estimatedMemoryPercent,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	maxMemory int64
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service. maxMemory is the cache memory
// bound used for the percentage field; zero omits it.
func NewService(deps Dependencies, maxMemory int64) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	return &Service{
		deps:      deps,
		maxMemory: maxMemory,
		stopChan:  make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus samples the cache and returns the requested JSON renderings
// alongside the sample itself.
func (s *Service) GetStatus(buffer bool, lastCheck bool) (output []string, perf Performance) {
	stats := s.deps.Cache.Stats()
	perf = Performance{
		Time:   time.Now(),
		Buffer: stats,
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		perf.HitRate = float64(stats.Hits) / float64(total)
	}
	if s.deps.LastCheck != nil {
		perf.LastCheckMs = float64(s.deps.LastCheck().Microseconds()) / 1000
	}
	if s.maxMemory > 0 {
		perf.EstimatedMemPerc = float64(stats.EstimatedBytes) / float64(s.maxMemory) * 100
	}

	if buffer {
		bufferStr, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			bufferStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(bufferStr))
	}
	if lastCheck {
		lastCheckStr, err := json.MarshalIndent(perf.LastCheckMs, "", "  ")
		if err != nil {
			lastCheckStr = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
		}
		output = append(output, string(lastCheckStr))
	}

	return output, perf
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusPath != "" {
		f, err := os.Create(s.deps.StatusPath)
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err, "path", s.deps.StatusPath)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()
		if statusFile != nil {
			defer statusFile.Close()
		}

		s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.deps.Interval)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.sample(statusFile)
			}
		}
	}()

	return nil
}

func (s *Service) sample(statusFile *os.File) {
	statusStr, perf := s.GetStatus(true, true)
	if !perf.Buffer.Initialized {
		return
	}

	s.deps.Logger.Debug("Frame cache status",
		"video", perf.Buffer.VideoID,
		"minFrame", perf.Buffer.MinFrame,
		"maxFrame", perf.Buffer.MaxFrame,
		"entries", perf.Buffer.Entries,
		"hitRate", perf.HitRate,
		"lastCheckMs", perf.LastCheckMs)

	if statusFile != nil {
		statusFile.Truncate(0)
		statusFile.Seek(0, 0)
		for _, line := range statusStr {
			statusFile.WriteString(line + "\n")
		}
	}

	if s.deps.Influx != nil {
		point := influx.BufferPoint(perf.Buffer, time.Duration(perf.LastCheckMs*float64(time.Millisecond)), perf.Time)
		if err := s.deps.Influx.WritePoint(context.Background(), s.deps.Bucket, point); err != nil {
			s.deps.Logger.Error("Error writing buffer performance point", "error", err)
		}
	}
}

// Stop stops the status monitor and waits for the goroutine to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
