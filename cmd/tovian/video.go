package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tovian/tovian/internal/logging"
	"github.com/tovian/tovian/pkg/core"
)

func newVideoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Manage videos",
	}
	cmd.AddCommand(newVideoAddCmd(), newVideoListCmd())
	return cmd
}

func newVideoAddCmd() *cobra.Command {
	var (
		filename string
		fps      float64
		frames   int
		types    []string
	)
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps <= 0 {
				return fmt.Errorf("fps must be positive, got %v: %w", fps, core.ErrInvalidValue)
			}
			if frames <= 0 {
				return fmt.Errorf("frame count must be positive, got %d: %w", frames, core.ErrInvalidValue)
			}
			video := core.Video{
				Name:       args[0],
				Filename:   filename,
				FPS:        fps,
				FrameCount: frames,
			}
			for _, t := range types {
				ot, err := core.ParseObjectType(strings.TrimSpace(t))
				if err != nil {
					return err
				}
				video.AllowedObjectTypes = append(video.AllowedObjectTypes, ot)
			}

			backend, err := openStorage()
			if err != nil {
				return err
			}
			defer backend.Close()

			if err := backend.AddVideo(&video); err != nil {
				return err
			}
			Logger.Info("Video added", "id", video.ID, "name", video.Name)
			fmt.Fprintln(cmd.OutOrStdout(), video.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&filename, "file", "", "video file name")
	cmd.Flags().Float64Var(&fps, "fps", 25, "frames per second")
	cmd.Flags().IntVar(&frames, "frames", 0, "number of frames")
	cmd.Flags().StringSliceVar(&types, "types", nil, "allowed object types (default: all)")
	return cmd
}

func newVideoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openStorage()
			if err != nil {
				return err
			}
			defer backend.Close()

			videos, err := backend.ListVideos(cmd.Context())
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "Name", "File", "FPS", "Frames", "Object types"})
			for _, v := range videos {
				names := make([]string, len(v.AllowedObjectTypes))
				for i, ot := range v.AllowedObjectTypes {
					names[i] = string(ot)
				}
				t.AppendRow(table.Row{v.ID, v.Name, v.Filename, v.FPS, v.FrameCount, strings.Join(names, ",")})
			}
			t.Render()
			return nil
		},
	}
}

// parseVideoID parses a positional video ID argument.
func parseVideoID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid video id %q: %w", s, err)
	}
	return uint(id), nil
}

// videoContext tags log records written with ctx with the video ID.
func videoContext(ctx context.Context, videoID uint) context.Context {
	return logging.WithContextAttrs(ctx, slog.Uint64("video", uint64(videoID)))
}
