package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tovian/tovian/internal/config"
	"github.com/tovian/tovian/internal/dispatcher"
	"github.com/tovian/tovian/internal/influx"
	"github.com/tovian/tovian/internal/logging"
	"github.com/tovian/tovian/internal/monitor"
	"github.com/tovian/tovian/internal/worker"
)

func newPlayCmd() *cobra.Command {
	var (
		from     int
		to       int
		step     int
		realtime bool
	)
	cmd := &cobra.Command{
		Use:   "play <video-id>",
		Short: "Play a frame range through the frame cache and report buffer statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			ctx := videoContext(cmd.Context(), videoID)
			if step < 1 {
				return fmt.Errorf("step must be at least 1, got %d", step)
			}

			backend, err := openStorage()
			if err != nil {
				return err
			}
			defer backend.Close()

			video, err := backend.GetVideo(ctx, videoID)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("to") {
				to = video.FrameCount
			}

			eventDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(ZLogger))
			if err != nil {
				return err
			}

			var workerManager *worker.Manager
			fc, err := newFrameCache(video, backend, func() { workerManager.Trigger() })
			if err != nil {
				return err
			}
			defer fc.Close()

			workerCtx, cancelWorker := context.WithCancel(ctx)
			defer cancelWorker()
			workerManager = worker.NewManager(workerCtx, worker.Dependencies{Cache: fc, Logger: Logger})
			workerManager.RegisterHandlers(eventDispatcher)

			bufferCfg := config.GetBufferConfig()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), bufferCfg.ShutdownTimeout)
				defer cancel()
				if err := eventDispatcher.Close(shutdownCtx); err != nil {
					Logger.Warn("Dispatcher did not stop in time", "error", err)
				}
			}()

			if _, err := eventDispatcher.Dispatch(dispatcher.Event{Command: worker.CmdBufferInit, Timestamp: time.Now()}); err != nil {
				return err
			}
			if from > 0 {
				if _, err := eventDispatcher.Dispatch(dispatcher.Event{
					Command:   worker.CmdBufferReset,
					Args:      []string{strconv.Itoa(from)},
					Timestamp: time.Now(),
				}); err != nil {
					return err
				}
			}

			monitorService, influxManager := startMonitor(ctx, fc, workerManager)
			defer monitorService.Stop()
			if influxManager != nil {
				defer influxManager.Close()
			}

			var frameDelay time.Duration
			if realtime {
				frameDelay = time.Duration(float64(time.Second) / video.FPS)
			}

			start := time.Now()
			played, objects := 0, 0
			for frame := from; frame <= to; frame += step {
				if err := ctx.Err(); err != nil {
					return err
				}
				spans, err := fc.ObjectsInFrame(ctx, frame)
				if err != nil {
					return err
				}
				played++
				objects += len(spans)
				if frameDelay > 0 {
					time.Sleep(frameDelay)
				}
			}
			elapsed := time.Since(start)

			monitorService.Stop()
			_, perf := monitorService.GetStatus(false, false)
			Logger.InfoContext(ctx, "Playback finished",
				"frames", played, "objects", objects,
				"duration", elapsed, "hitRate", perf.HitRate)
			renderPlayStats(cmd.OutOrStdout(), played, objects, elapsed, perf)
			return nil
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "first frame")
	cmd.Flags().IntVar(&to, "to", 0, "last frame (default: end of video)")
	cmd.Flags().IntVar(&step, "step", 1, "frames to advance per step")
	cmd.Flags().BoolVar(&realtime, "realtime", false, "pace playback at the video frame rate")
	return cmd
}

// startMonitor starts the buffer monitor when enabled. The returned service
// can always be sampled with GetStatus.
func startMonitor(ctx context.Context, fc monitor.StatsSource, wm *worker.Manager) (*monitor.Service, *influx.Manager) {
	monitorCfg := config.GetMonitorConfig()
	deps := monitor.Dependencies{
		Cache:      fc,
		Logger:     Logger,
		Interval:   monitorCfg.Interval,
		StatusPath: filepath.Join(config.GetString("logsDir"), "status.txt"),
		LastCheck:  wm.LastCheckDuration,
	}

	var influxManager *influx.Manager
	influxCfg := config.GetInfluxConfig()
	if monitorCfg.Enabled && influxCfg.Enabled {
		backupPath := filepath.Join(config.GetString("logsDir"),
			fmt.Sprintf("%s_influx_backup_%s.lp.gz", AppName, SessionStartTime.Format("20060102_150405")))
		influxManager = influx.NewManager(ZLogger, influxCfg, backupPath)
		if err := influxManager.Connect(ctx); err != nil {
			if !errors.Is(err, influx.ErrDisabled) {
				Logger.Error("Failed to connect to InfluxDB", "error", err)
			}
			influxManager = nil
		} else {
			deps.Influx = influxManager
			deps.Bucket = influxManager.Bucket()
		}
	}

	svc := monitor.NewService(deps, config.GetBufferConfig().MaxMemory)
	if monitorCfg.Enabled {
		if err := svc.Start(); err != nil {
			Logger.Error("Failed to start buffer monitor", "error", err)
		}
	}
	return svc, influxManager
}

func renderPlayStats(w io.Writer, played, objects int, elapsed time.Duration, perf monitor.Performance) {
	s := perf.Buffer
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Playback")
	t.AppendRows([]table.Row{
		{"Frames played", played},
		{"Objects served", objects},
		{"Duration", elapsed.Round(time.Millisecond)},
		{"Window", fmt.Sprintf("%d-%d", s.MinFrame, s.MaxFrame)},
		{"Cached frames", s.Frames},
		{"Cached entries", s.Entries},
		{"Estimated bytes", s.EstimatedBytes},
		{"Hits", s.Hits},
		{"Misses", s.Misses},
		{"Fetches", s.Fetches},
		{"Hit rate", fmt.Sprintf("%.1f%%", perf.HitRate*100)},
		{"Last check", fmt.Sprintf("%.2fms", perf.LastCheckMs)},
	})
	t.Render()
}
