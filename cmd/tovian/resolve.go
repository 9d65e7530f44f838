package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/config"
	"github.com/tovian/tovian/internal/resolver"
	"github.com/tovian/tovian/internal/storage"
	"github.com/tovian/tovian/pkg/core"
)

func frameCacheConfig() cache.Config {
	bufferCfg := config.GetBufferConfig()
	return cache.Config{
		CachedTime:     bufferCfg.CachedTime,
		BorderFraction: bufferCfg.BorderFraction,
		MaxMemory:      bufferCfg.MaxMemory,
		DisplayedRange: bufferCfg.DisplayedRange,
		AvgEntrySize:   bufferCfg.AvgEntrySize,
	}
}

func newFrameCache(video core.Video, backend storage.Backend, trigger func()) (*cache.FrameCache, error) {
	return cache.NewFrameCache(video, frameCacheConfig(), cache.Dependencies{
		Source:  backend,
		Journal: backend,
		Logger:  Logger,
		Trigger: trigger,
	})
}

func newResolveCmd() *cobra.Command {
	var to int
	cmd := &cobra.Command{
		Use:   "resolve <video-id> <frame>",
		Short: "Show the objects and resolved values at a frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			ctx := videoContext(cmd.Context(), videoID)
			var frame int
			if _, err := fmt.Sscan(args[1], &frame); err != nil {
				return fmt.Errorf("invalid frame %q: %w", args[1], err)
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
			fc, err := newFrameCache(video, backend, nil)
			if err != nil {
				return err
			}
			defer fc.Close()

			if err := fc.Init(ctx); err != nil {
				return err
			}
			if err := fc.Reset(ctx, frame, cache.ResetOptions{}); err != nil {
				return err
			}

			r := resolver.New(fc)
			var objects []resolver.ResolvedObject
			if cmd.Flags().Changed("to") {
				objects, err = r.ResolveInterval(ctx, frame, to)
			} else {
				objects, err = r.Resolve(ctx, frame)
			}
			if err != nil {
				return err
			}
			renderResolved(cmd.OutOrStdout(), objects)
			return nil
		},
	}
	cmd.Flags().IntVar(&to, "to", 0, "resolve every object active in [frame, to]")
	return cmd
}

func renderResolved(w io.Writer, objects []resolver.ResolvedObject) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Type", "Start", "End", "Frame", "Position", "Global", "Local"})
	for _, ro := range objects {
		position := ""
		if v, ok := ro.Position(); ok {
			position = fmt.Sprintf("%+v", v.Value)
			if v.IsInterpolated {
				position += " *"
			}
		}
		global, local := resolver.Text(ro)
		t.AppendRow(table.Row{ro.Object.ID, ro.Object.Type, ro.Start, ro.End, ro.Frame, position, global, local})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "objects", len(objects)})
	t.Render()
}
