package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/config"
	"github.com/tovian/tovian/internal/export"
	"github.com/tovian/tovian/internal/parser"
	"github.com/tovian/tovian/pkg/core"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <video-id> <file>",
		Short: "Import annotation objects from a JSON (or gzipped JSON) document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			ctx := videoContext(cmd.Context(), videoID)

			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()
			doc, err := parser.Decode(f)
			if err != nil {
				return err
			}

			backend, err := openStorage()
			if err != nil {
				return err
			}
			defer backend.Close()

			if _, err := backend.GetVideo(ctx, videoID); err != nil {
				return err
			}
			attrs := cache.NewAttributeCache()
			if err := attrs.Load(ctx, backend); err != nil {
				return err
			}

			objects, err := parser.NewParser(Logger).Import(ctx, backend, videoID, doc, attrs)
			if err != nil {
				Logger.ErrorContext(ctx, "Import failed", "error", err, "stored", len(objects))
				return err
			}
			_ = backend.RecordLog(core.LogEntry{
				Type:      "import",
				Value:     fmt.Sprintf("video=%d objects=%d file=%s", videoID, len(objects), args[1]),
				CreatedAt: time.Now(),
			})
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d objects\n", len(objects))
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "export <video-id>",
		Short: "Export the annotation objects of a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseVideoID(args[0])
			if err != nil {
				return err
			}
			ctx := videoContext(cmd.Context(), videoID)

			backend, err := openStorage()
			if err != nil {
				return err
			}
			defer backend.Close()

			video, err := backend.GetVideo(ctx, videoID)
			if err != nil {
				return err
			}

			exportCfg := config.GetStorageConfig().Export
			cfg := export.Config{
				OutputDir:      exportCfg.OutputDir,
				CompressOutput: exportCfg.CompressOutput,
			}
			if outDir != "" {
				cfg.OutputDir = outDir
			}

			path, err := export.Write(ctx, backend, video, cfg)
			if err != nil {
				return err
			}
			Logger.InfoContext(ctx, "Exported annotations", "path", path)
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "output directory (overrides storage.export.outputDir)")
	return cmd
}
