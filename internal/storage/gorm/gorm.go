// Package gormstorage implements storage.Backend on GORM. Reads go straight
// to the database; journal entries are queued and written in batches by a
// background goroutine.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/database"
	"github.com/tovian/tovian/internal/model"
	"github.com/tovian/tovian/internal/model/convert"
	"github.com/tovian/tovian/internal/queue"
	"github.com/tovian/tovian/internal/storage"
	"github.com/tovian/tovian/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a video or object does not exist.
var ErrNotFound = errors.New("not found")

const defaultFlushInterval = time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	// FlushInterval is how often queued journal entries are written.
	FlushInterval time.Duration
	// SkipMigrate leaves the schema alone on Init.
	SkipMigrate bool
}

// Backend implements storage.Backend using GORM with a queued journal.
type Backend struct {
	deps       Dependencies
	log        *slog.Logger
	attributes *cache.AttributeCache
	journal    *queue.Queue[model.Log]

	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	lastWrite   time.Duration
	lastWriteMu sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:       deps,
		log:        deps.Logger.With("component", "storage.gorm"),
		attributes: cache.NewAttributeCache(),
		journal:    queue.New[model.Log](),
	}
}

// DB exposes the underlying connection for wrappers.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema, loads the attributes and starts the journal writer.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database")
	}
	if !b.deps.SkipMigrate {
		if err := database.Migrate(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}
	if err := b.attributes.Load(context.Background(), b); err != nil {
		return fmt.Errorf("failed to load attributes: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.wg.Add(1)
	go b.journalWriter()
	return nil
}

// Close stops the journal writer after a final flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
			b.wg.Wait()
		}
	})
	return nil
}

// LastWriteDuration returns how long the most recent journal flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	b.lastWriteMu.Lock()
	defer b.lastWriteMu.Unlock()
	return b.lastWrite
}

////////////////////////
// REFERENCE DATA
////////////////////////

// AddVideo stores a video and assigns its ID.
func (b *Backend) AddVideo(v *core.Video) error {
	m := convert.CoreToVideo(*v)
	if err := b.deps.DB.Omit(clause.Associations).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create video %q: %w", v.Name, err)
	}
	v.ID = m.ID
	return nil
}

// GetVideo returns a video by ID.
func (b *Backend) GetVideo(ctx context.Context, id uint) (core.Video, error) {
	var m model.Video
	err := b.deps.DB.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Video{}, fmt.Errorf("video %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Video{}, fmt.Errorf("failed to load video %d: %w", id, err)
	}
	return convert.VideoToCore(m), nil
}

// ListVideos returns all videos ordered by ID.
func (b *Backend) ListVideos(ctx context.Context) ([]core.Video, error) {
	var rows []model.Video
	if err := b.deps.DB.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	out := make([]core.Video, 0, len(rows))
	for _, m := range rows {
		out = append(out, convert.VideoToCore(m))
	}
	return out, nil
}

// Attributes returns all attributes ordered by ID.
func (b *Backend) Attributes(ctx context.Context) ([]core.Attribute, error) {
	var rows []model.AnnotationAttribute
	if err := b.deps.DB.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list attributes: %w", err)
	}
	out := make([]core.Attribute, 0, len(rows))
	for _, m := range rows {
		a, err := convert.AttributeToCore(m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// AddAttribute stores a new attribute and makes it available to writes.
func (b *Backend) AddAttribute(ctx context.Context, a *core.Attribute) error {
	m := convert.CoreToAttribute(*a)
	if err := b.deps.DB.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create attribute %q: %w", a.Name, err)
	}
	a.ID = m.ID
	b.attributes.Set(*a)
	return nil
}

////////////////////////
// WRITES
////////////////////////

// AddObject validates and stores an object with its values in one
// transaction. IDs are assigned to the object and every value.
func (b *Backend) AddObject(ctx context.Context, obj *core.Object) error {
	if _, err := core.ParseObjectType(string(obj.Type)); err != nil {
		return err
	}
	if err := b.resolveAttributes(obj.Values); err != nil {
		return err
	}
	encoded := make([]string, len(obj.Values))
	for i, v := range obj.Values {
		s, err := storage.EncodeValue(obj.Type, v)
		if err != nil {
			return err
		}
		encoded[i] = s
	}
	if err := storage.CheckDuplicateFrames(obj.Values); err != nil {
		return err
	}

	return b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Video{}).Where("id = ?", obj.VideoID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("video %d: %w", obj.VideoID, ErrNotFound)
		}

		m := convert.CoreToObject(*obj)
		if err := tx.Omit(clause.Associations).Create(&m).Error; err != nil {
			return fmt.Errorf("failed to create object: %w", err)
		}

		rows := make([]model.AnnotationValue, len(obj.Values))
		for i := range obj.Values {
			obj.Values[i].ObjectID = m.ID
			rows[i] = convert.CoreToValue(obj.Values[i], encoded[i])
		}
		if len(rows) > 0 {
			if err := tx.Omit(clause.Associations).Create(&rows).Error; err != nil {
				return fmt.Errorf("failed to create values of object %d: %w", m.ID, err)
			}
		}

		obj.ID = m.ID
		for i := range obj.Values {
			obj.Values[i].ID = rows[i].ID
			obj.Values[i].IsInterpolated = false
		}
		return nil
	})
}

// AddValue persists a single value, promoting an interpolated value to a
// stored keyframe. A global value replaces the previous one.
func (b *Backend) AddValue(ctx context.Context, v *core.AnnotationValue) error {
	values := []core.AnnotationValue{*v}
	if err := b.resolveAttributes(values); err != nil {
		return err
	}
	candidate := values[0]

	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var obj model.AnnotationObject
		err := tx.Select("id", "type").First(&obj, candidate.ObjectID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("object %d: %w", candidate.ObjectID, ErrNotFound)
		}
		if err != nil {
			return err
		}

		encoded, err := storage.EncodeValue(core.ObjectType(obj.Type), candidate)
		if err != nil {
			return err
		}

		if candidate.IsGlobal() {
			err := tx.Where("annotation_object_id = ? AND annotation_attribute_id = ?", candidate.ObjectID, candidate.AttributeID).
				Delete(&model.AnnotationValue{}).Error
			if err != nil {
				return fmt.Errorf("failed to replace global value: %w", err)
			}
		} else {
			var count int64
			err := tx.Model(&model.AnnotationValue{}).
				Where("annotation_object_id = ? AND annotation_attribute_id = ? AND frame_from = ?",
					candidate.ObjectID, candidate.AttributeID, candidate.FrameFrom).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count > 0 {
				return fmt.Errorf("object %d attribute %d frame %d: %w",
					candidate.ObjectID, candidate.AttributeID, candidate.FrameFrom, core.ErrDuplicateFrame)
			}
		}

		row := convert.CoreToValue(candidate, encoded)
		row.ID = 0
		if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create value: %w", err)
		}
		v.ID = row.ID
		return nil
	})
	if err != nil {
		return err
	}
	v.Attribute = candidate.Attribute
	v.FrameFrom = candidate.FrameFrom
	v.IsInterpolated = false
	return nil
}

////////////////////////
// JOURNAL
////////////////////////

// RecordLog queues a journal entry for the background writer.
func (b *Backend) RecordLog(entry core.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	b.journal.Push(convert.CoreToLog(entry))
	return nil
}

// Logs returns the journal entries already written, oldest first.
func (b *Backend) Logs(ctx context.Context, logType string) ([]core.LogEntry, error) {
	q := b.deps.DB.WithContext(ctx).Order("id")
	if logType != "" {
		q = q.Where("type = ?", logType)
	}
	var rows []model.Log
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read journal: %w", err)
	}
	out := make([]core.LogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, convert.LogToCore(r))
	}
	return out, nil
}

// Flush writes every queued journal entry now.
func (b *Backend) Flush() {
	writeQueue(b.deps.DB, b.journal, "logs", b.log)
}

// writeQueue writes all items from a queue to the database in a transaction.
// Items are pushed back when the write fails.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	items := q.Drain(0)
	if len(items) == 0 {
		return
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
	if err != nil {
		log.Error("Error writing queue", "queue", name, "items", len(items), "error", err)
		q.Push(items...)
	}
}

func (b *Backend) journalWriter() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			start := time.Now()
			b.Flush()
			b.lastWriteMu.Lock()
			b.lastWrite = time.Since(start)
			b.lastWriteMu.Unlock()
		}
	}
}

////////////////////////
// READS
////////////////////////

// spanRow is one object's active interval as computed by the database.
type spanRow struct {
	ID         uint
	StartFrame int
	EndFrame   int
}

// activeIntervals selects (id, start_frame, end_frame) over the local
// position values of the video's objects.
func (b *Backend) activeIntervals(ctx context.Context, videoID uint) *gorm.DB {
	return b.deps.DB.WithContext(ctx).
		Table("annotation_values AS v").
		Select("v.annotation_object_id AS id, MIN(v.frame_from) AS start_frame, MAX(v.frame_from) AS end_frame").
		Joins("JOIN annotation_objects AS o ON o.id = v.annotation_object_id").
		Joins("JOIN annotation_attributes AS a ON a.id = v.annotation_attribute_id").
		Where("o.video_id = ? AND a.is_global = ? AND a.data_type LIKE ?", videoID, false, "position_%").
		Group("v.annotation_object_id")
}

// ObjectsActiveInFrame returns objects active at frame.
func (b *Backend) ObjectsActiveInFrame(ctx context.Context, videoID uint, frame int) ([]core.Span, error) {
	return b.ObjectsActiveInIntervals(ctx, videoID, []core.Interval{{From: frame, To: frame}}, nil)
}

// ObjectsActiveInIntervals returns objects whose active interval overlaps
// any of intervals.
func (b *Backend) ObjectsActiveInIntervals(ctx context.Context, videoID uint, intervals []core.Interval, objectIDs []uint) ([]core.Span, error) {
	if len(intervals) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(intervals))
	args := make([]any, 0, 2*len(intervals))
	for _, iv := range intervals {
		conds = append(conds, "(MIN(v.frame_from) <= ? AND MAX(v.frame_from) >= ?)")
		args = append(args, iv.To, iv.From)
	}

	q := b.activeIntervals(ctx, videoID)
	if len(objectIDs) > 0 {
		q = q.Where("v.annotation_object_id IN ?", objectIDs)
	}
	var rows []spanRow
	err := q.Having(strings.Join(conds, " OR "), args...).
		Order("start_frame, end_frame, id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active objects of video %d: %w", videoID, err)
	}
	return b.loadSpans(ctx, rows)
}

// NextObject finds the nearest object after frame (or before it when
// forward is false). With a current object, other objects active in the
// same frame are visited first in ID order.
func (b *Backend) NextObject(ctx context.Context, videoID uint, frame int, currentID uint, forward bool) (core.Span, bool, error) {
	q := b.activeIntervals(ctx, videoID)
	inFrame := "(MIN(v.frame_from) <= ? AND MAX(v.frame_from) >= ?)"
	if forward {
		if currentID != 0 {
			q = q.Having("MIN(v.frame_from) > ? OR (v.annotation_object_id > ? AND "+inFrame+")", frame, currentID, frame, frame)
		} else {
			q = q.Having("MIN(v.frame_from) > ?", frame)
		}
		q = q.Order("start_frame ASC, id ASC")
	} else {
		if currentID != 0 {
			q = q.Having("MAX(v.frame_from) < ? OR (v.annotation_object_id < ? AND "+inFrame+")", frame, currentID, frame, frame)
		} else {
			q = q.Having("MAX(v.frame_from) < ?", frame)
		}
		q = q.Order("end_frame DESC, id DESC")
	}

	var rows []spanRow
	if err := q.Limit(1).Scan(&rows).Error; err != nil {
		return core.Span{}, false, fmt.Errorf("failed to navigate objects of video %d: %w", videoID, err)
	}
	if len(rows) == 0 {
		return core.Span{}, false, nil
	}
	spans, err := b.loadSpans(ctx, rows)
	if err != nil || len(spans) == 0 {
		return core.Span{}, false, err
	}
	return spans[0], true, nil
}

// loadSpans loads the objects named by rows with all of their values and
// returns spans in row order.
func (b *Backend) loadSpans(ctx context.Context, rows []spanRow) ([]core.Span, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]uint, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var objects []model.AnnotationObject
	err := b.deps.DB.WithContext(ctx).
		Preload("Values", func(db *gorm.DB) *gorm.DB { return db.Order("frame_from, id") }).
		Where("id IN ?", ids).
		Find(&objects).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}

	byID := make(map[uint]*core.Object, len(objects))
	for _, m := range objects {
		obj, err := convert.ObjectToCore(m, b.attributes)
		if err != nil {
			return nil, err
		}
		byID[obj.ID] = obj
	}

	spans := make([]core.Span, 0, len(rows))
	for _, r := range rows {
		obj, ok := byID[r.ID]
		if !ok {
			// Deleted between the two queries.
			continue
		}
		spans = append(spans, core.Span{Object: obj, Start: r.StartFrame, End: r.EndFrame})
	}
	return spans, nil
}

func (b *Backend) resolveAttributes(values []core.AnnotationValue) error {
	for i := range values {
		a, ok := b.attributes.GetByID(values[i].AttributeID)
		if !ok {
			return fmt.Errorf("attribute %d: %w", values[i].AttributeID, ErrNotFound)
		}
		values[i].Attribute = a
		if a.IsGlobal {
			values[i].FrameFrom = 0
		}
	}
	return nil
}
