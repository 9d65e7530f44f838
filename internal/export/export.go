// Package export writes the annotations of a video in the import document
// format, so an export can be imported into another database unchanged.
package export

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tovian/tovian/internal/parser"
	"github.com/tovian/tovian/internal/storage"
	"github.com/tovian/tovian/pkg/core"
)

// Config controls where and how exports are written.
type Config struct {
	OutputDir      string
	CompressOutput bool
}

// Objects returns every object of video that has at least one position
// keyframe. Objects with no position are never active and are not exported.
func Objects(ctx context.Context, src storage.Source, video core.Video) ([]core.Object, error) {
	spans, err := src.ObjectsActiveInIntervals(ctx, video.ID, []core.Interval{{From: 0, To: math.MaxInt32}}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects of video %d: %w", video.ID, err)
	}
	out := make([]core.Object, 0, len(spans))
	for _, s := range spans {
		out = append(out, *s.Object)
	}
	return out, nil
}

// Build converts objects into an import document. Interpolated values and
// values without a loaded attribute are skipped.
func Build(objects []core.Object) []parser.ImportObject {
	doc := make([]parser.ImportObject, 0, len(objects))
	for _, obj := range objects {
		entry := parser.ImportObject{
			Type:             string(obj.Type),
			PublicComment:    obj.PublicComment,
			AnnotationValues: make([][]any, 0, len(obj.Values)),
		}
		for _, v := range obj.Values {
			if v.IsInterpolated || v.Attribute == nil {
				continue
			}
			if v.Attribute.IsGlobal {
				entry.AnnotationValues = append(entry.AnnotationValues, []any{v.Attribute.Name, payloadToJSON(v.Value)})
			} else {
				entry.AnnotationValues = append(entry.AnnotationValues, []any{v.Attribute.Name, v.FrameFrom, payloadToJSON(v.Value)})
			}
		}
		doc = append(doc, entry)
	}
	return doc
}

func payloadToJSON(p core.Payload) any {
	switch v := p.(type) {
	case core.Int:
		return int64(v)
	case core.Float:
		return float64(v)
	case core.Bool:
		return bool(v)
	case core.Text:
		return string(v)
	case core.Rectangle:
		return []int{v.X1, v.Y1, v.X2, v.Y2}
	case core.Circle:
		return []any{v.X, v.Y, v.R}
	case core.Point:
		return []int{v.X, v.Y}
	}
	return nil
}

// Write exports the annotations of video to a file in cfg.OutputDir and
// returns its path.
func Write(ctx context.Context, src storage.Source, video core.Video, cfg Config) (string, error) {
	objects, err := Objects(ctx, src, video)
	if err != nil {
		return "", err
	}
	doc := Build(objects)

	name := strings.ReplaceAll(video.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	timestamp := time.Now().Format("20060102_150405")

	var filename string
	if cfg.CompressOutput {
		filename = fmt.Sprintf("%s_%s.json.gz", name, timestamp)
	} else {
		filename = fmt.Sprintf("%s_%s.json", name, timestamp)
	}
	outputPath := filepath.Join(cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if err := Encode(f, doc, cfg.CompressOutput); err != nil {
		return "", err
	}
	return outputPath, nil
}

// Encode writes doc as JSON, gzipped when compress is set.
func Encode(w io.Writer, doc []parser.ImportObject, compress bool) error {
	if !compress {
		return json.NewEncoder(w).Encode(doc)
	}
	gzWriter := gzip.NewWriter(w)
	if err := json.NewEncoder(gzWriter).Encode(doc); err != nil {
		gzWriter.Close()
		return err
	}
	return gzWriter.Close()
}
