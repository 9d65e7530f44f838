// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tovian/tovian/internal/record"
	"github.com/tovian/tovian/internal/storage"
	"github.com/tovian/tovian/pkg/core"
)

// Backend keeps videos, attributes and annotation objects in process memory.
// It serves tests and the CLI's scratch mode.
type Backend struct {
	videos     map[uint]core.Video
	attributes map[uint]*core.Attribute
	objects    map[uint]*core.Object // keyed by object ID
	logs       []core.LogEntry

	idCounter uint
	mu        sync.RWMutex
}

// New creates a memory backend seeded with the default attributes.
func New() *Backend {
	b := &Backend{
		videos:     make(map[uint]core.Video),
		attributes: make(map[uint]*core.Attribute),
		objects:    make(map[uint]*core.Object),
		idCounter:  1000,
	}
	for _, a := range core.DefaultAttributes() {
		b.attributes[a.ID] = &a
	}
	return b
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) nextID() uint {
	b.idCounter++
	return b.idCounter
}

// AddAttribute registers an attribute, assigning an ID when it has none.
func (b *Backend) AddAttribute(a *core.Attribute) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if a.ID == 0 {
		a.ID = b.nextID()
	}
	stored := *a
	b.attributes[a.ID] = &stored
	return nil
}

// Attributes returns all registered attributes ordered by ID.
func (b *Backend) Attributes(ctx context.Context) ([]core.Attribute, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Attribute, 0, len(b.attributes))
	for _, a := range b.attributes {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(x, y core.Attribute) int { return int(x.ID) - int(y.ID) })
	return out, nil
}

// AddVideo stores a video and assigns its ID.
func (b *Backend) AddVideo(v *core.Video) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v.ID == 0 {
		v.ID = b.nextID()
	}
	b.videos[v.ID] = *v
	return nil
}

// GetVideo returns a video by ID.
func (b *Backend) GetVideo(ctx context.Context, id uint) (core.Video, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.videos[id]
	if !ok {
		return core.Video{}, fmt.Errorf("video %d not found", id)
	}
	return v, nil
}

// ListVideos returns all videos ordered by ID.
func (b *Backend) ListVideos(ctx context.Context) ([]core.Video, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.Video, 0, len(b.videos))
	for _, v := range b.videos {
		out = append(out, v)
	}
	slices.SortFunc(out, func(x, y core.Video) int { return int(x.ID) - int(y.ID) })
	return out, nil
}

// AddObject validates and stores an object with its values. IDs are
// assigned to the object and every value.
func (b *Backend) AddObject(ctx context.Context, obj *core.Object) error {
	if _, err := core.ParseObjectType(string(obj.Type)); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.videos[obj.VideoID]; !ok {
		return fmt.Errorf("video %d not found", obj.VideoID)
	}
	if err := b.resolveAttributes(obj.Values); err != nil {
		return err
	}
	for _, v := range obj.Values {
		if _, err := storage.EncodeValue(obj.Type, v); err != nil {
			return err
		}
	}
	if err := storage.CheckDuplicateFrames(obj.Values); err != nil {
		return err
	}

	obj.ID = b.nextID()
	for i := range obj.Values {
		obj.Values[i].ID = b.nextID()
		obj.Values[i].ObjectID = obj.ID
		obj.Values[i].IsInterpolated = false
	}
	b.objects[obj.ID] = cloneObject(obj)
	return nil
}

// AddValue persists a single value, promoting an interpolated value to a
// stored keyframe.
func (b *Backend) AddValue(ctx context.Context, v *core.AnnotationValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[v.ObjectID]
	if !ok {
		return fmt.Errorf("object %d not found", v.ObjectID)
	}
	values := []core.AnnotationValue{*v}
	if err := b.resolveAttributes(values); err != nil {
		return err
	}
	candidate := values[0]
	if _, err := storage.EncodeValue(obj.Type, candidate); err != nil {
		return err
	}
	existing := obj.Values
	if candidate.IsGlobal() {
		existing = slices.DeleteFunc(slices.Clone(existing), func(e core.AnnotationValue) bool {
			return e.AttributeID == candidate.AttributeID
		})
	}
	if err := storage.CheckDuplicateFrames(append(slices.Clone(existing), candidate)); err != nil {
		return err
	}
	obj.Values = existing

	candidate.ID = b.nextID()
	candidate.IsInterpolated = false
	obj.Values = append(obj.Values, candidate)

	v.ID = candidate.ID
	v.Attribute = candidate.Attribute
	v.IsInterpolated = false
	return nil
}

// RecordLog appends a journal entry.
func (b *Backend) RecordLog(entry core.LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	b.logs = append(b.logs, entry)
	return nil
}

// Logs returns a copy of the journal.
func (b *Backend) Logs() []core.LogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.logs)
}

// ObjectsActiveInFrame returns objects active at frame.
func (b *Backend) ObjectsActiveInFrame(ctx context.Context, videoID uint, frame int) ([]core.Span, error) {
	return b.ObjectsActiveInIntervals(ctx, videoID, []core.Interval{{From: frame, To: frame}}, nil)
}

// ObjectsActiveInIntervals returns objects whose active interval overlaps
// any of intervals.
func (b *Backend) ObjectsActiveInIntervals(ctx context.Context, videoID uint, intervals []core.Interval, objectIDs []uint) ([]core.Span, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(intervals) == 0 {
		return nil, nil
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var spans []core.Span
	for _, obj := range b.objects {
		if obj.VideoID != videoID {
			continue
		}
		if len(objectIDs) > 0 && !slices.Contains(objectIDs, obj.ID) {
			continue
		}
		active, ok := record.ActiveInterval(obj)
		if !ok {
			continue
		}
		for _, iv := range intervals {
			if active.Overlaps(iv) {
				spans = append(spans, core.Span{Object: cloneObject(obj), Start: active.From, End: active.To})
				break
			}
		}
	}
	storage.SortSpans(spans)
	return spans, nil
}

// NextObject finds the nearest object after frame (or before it when
// forward is false). With a current object, other objects active in the
// same frame are visited first in ID order.
func (b *Backend) NextObject(ctx context.Context, videoID uint, frame int, currentID uint, forward bool) (core.Span, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var best core.Span
	found := false
	for _, obj := range b.objects {
		if obj.VideoID != videoID {
			continue
		}
		active, ok := record.ActiveInterval(obj)
		if !ok {
			continue
		}
		span := core.Span{Object: obj, Start: active.From, End: active.To}
		if !storage.IsNavigationCandidate(span, frame, currentID, forward) {
			continue
		}
		if !found || storage.NavigationLess(span, best, forward) {
			best = span
			found = true
		}
	}
	if found {
		best.Object = cloneObject(best.Object)
	}
	return best, found, nil
}

func (b *Backend) resolveAttributes(values []core.AnnotationValue) error {
	for i := range values {
		a, ok := b.attributes[values[i].AttributeID]
		if !ok {
			return fmt.Errorf("attribute %d not found", values[i].AttributeID)
		}
		values[i].Attribute = a
		if a.IsGlobal {
			values[i].FrameFrom = 0
		}
	}
	return nil
}

func cloneObject(obj *core.Object) *core.Object {
	c := *obj
	c.Values = slices.Clone(obj.Values)
	return &c
}
