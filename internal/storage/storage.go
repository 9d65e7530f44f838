// internal/storage/storage.go
package storage

import (
	"context"

	"github.com/tovian/tovian/pkg/core"
)

// Source is the read side the frame cache depends on. Returned spans carry
// objects with all of their values loaded, ordered by (Start, End, ID).
type Source interface {
	// ObjectsActiveInFrame returns objects whose active interval contains frame.
	ObjectsActiveInFrame(ctx context.Context, videoID uint, frame int) ([]core.Span, error)
	// ObjectsActiveInIntervals returns objects whose active interval overlaps
	// any of intervals, restricted to objectIDs when it is non-empty.
	ObjectsActiveInIntervals(ctx context.Context, videoID uint, intervals []core.Interval, objectIDs []uint) ([]core.Span, error)
}

// LogRecorder persists operational journal entries.
type LogRecorder interface {
	RecordLog(entry core.LogEntry) error
}

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	Source
	LogRecorder

	// Lifecycle
	Init() error
	Close() error

	// Reference data
	AddVideo(v *core.Video) error
	GetVideo(ctx context.Context, id uint) (core.Video, error)
	ListVideos(ctx context.Context) ([]core.Video, error)
	Attributes(ctx context.Context) ([]core.Attribute, error)

	// Writes
	AddObject(ctx context.Context, obj *core.Object) error
	AddValue(ctx context.Context, v *core.AnnotationValue) error

	// Navigation
	NextObject(ctx context.Context, videoID uint, frame int, currentID uint, forward bool) (core.Span, bool, error)
}
