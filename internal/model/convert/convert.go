// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"fmt"
	"strings"

	"github.com/tovian/tovian/internal/codec"
	"github.com/tovian/tovian/internal/model"
	"github.com/tovian/tovian/pkg/core"
	"gorm.io/datatypes"
)

const objectTypeSeparator = "|"

// emptyOptions is written to every Options column the core model does not carry.
var emptyOptions = datatypes.JSON("{}")

// AttributeToCore converts a GORM model.AnnotationAttribute to a core.Attribute.
func AttributeToCore(a model.AnnotationAttribute) (core.Attribute, error) {
	dt, err := core.ParseDataType(a.DataType)
	if err != nil {
		return core.Attribute{}, fmt.Errorf("attribute %s: %w", a.Name, err)
	}
	return core.Attribute{
		ID:            a.ID,
		Name:          a.Name,
		DataType:      dt,
		IsGlobal:      a.IsGlobal,
		AllowedValues: codec.SplitAllowedValues(a.AllowedValues),
		ObjectType:    core.ObjectType(a.ObjectType),
		Description:   a.Description,
	}, nil
}

// CoreToAttribute converts a core.Attribute to a GORM model.AnnotationAttribute.
func CoreToAttribute(a core.Attribute) model.AnnotationAttribute {
	return model.AnnotationAttribute{
		ID:            a.ID,
		Name:          a.Name,
		IsGlobal:      a.IsGlobal,
		Description:   a.Description,
		DataType:      a.DataType.String(),
		AllowedValues: codec.JoinAllowedValues(a.AllowedValues),
		ObjectType:    string(a.ObjectType),
		Options:       emptyOptions,
	}
}

// VideoToCore converts a GORM model.Video to a core.Video.
func VideoToCore(v model.Video) core.Video {
	var types []core.ObjectType
	for _, t := range strings.Split(v.AllowedObjectTypes, objectTypeSeparator) {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, core.ObjectType(t))
		}
	}
	return core.Video{
		ID:                 v.ID,
		Name:               v.Name,
		Filename:           v.Filename,
		FPS:                v.FPS,
		FrameCount:         v.FrameCount,
		AllowedObjectTypes: types,
	}
}

// CoreToVideo converts a core.Video to a GORM model.Video. Duration is
// derived from the frame count.
func CoreToVideo(v core.Video) model.Video {
	types := make([]string, 0, len(v.AllowedObjectTypes))
	for _, t := range v.AllowedObjectTypes {
		types = append(types, string(t))
	}
	var duration float64
	if v.FPS > 0 {
		duration = float64(v.FrameCount) / v.FPS
	}
	return model.Video{
		ID:                 v.ID,
		Name:               v.Name,
		Filename:           v.Filename,
		FPS:                v.FPS,
		FrameCount:         v.FrameCount,
		Duration:           duration,
		IsEnabled:          true,
		AllowedObjectTypes: strings.Join(types, objectTypeSeparator),
		Options:            emptyOptions,
	}
}

// ValueToCore decodes a stored value. attr must be the value's attribute.
func ValueToCore(v model.AnnotationValue, attr *core.Attribute) (core.AnnotationValue, error) {
	payload, err := codec.Decode(v.Value, attr.DataType)
	if err != nil {
		return core.AnnotationValue{}, fmt.Errorf("value %d: %w", v.ID, err)
	}
	return core.AnnotationValue{
		ID:          v.ID,
		ObjectID:    v.AnnotationObjectID,
		AttributeID: v.AnnotationAttributeID,
		Attribute:   attr,
		FrameFrom:   v.FrameFrom,
		Value:       payload,
	}, nil
}

// CoreToValue converts a value whose payload was already encoded.
func CoreToValue(v core.AnnotationValue, encoded string) model.AnnotationValue {
	return model.AnnotationValue{
		ID:                    v.ID,
		FrameFrom:             v.FrameFrom,
		Value:                 encoded,
		Options:               emptyOptions,
		AnnotationAttributeID: v.AttributeID,
		AnnotationObjectID:    v.ObjectID,
	}
}

// AttributeLookup resolves attribute IDs to shared attribute records.
// cache.AttributeCache satisfies it.
type AttributeLookup interface {
	GetByID(id uint) (*core.Attribute, bool)
}

// AttributeMap is an AttributeLookup over a plain map.
type AttributeMap map[uint]*core.Attribute

// GetByID implements AttributeLookup.
func (m AttributeMap) GetByID(id uint) (*core.Attribute, bool) {
	a, ok := m[id]
	return a, ok
}

// ObjectToCore converts a GORM object with preloaded values. The returned
// values point at the attributes held by attrs.
func ObjectToCore(o model.AnnotationObject, attrs AttributeLookup) (*core.Object, error) {
	obj := &core.Object{
		ID:            o.ID,
		VideoID:       o.VideoID,
		Type:          core.ObjectType(o.Type),
		PublicComment: o.PublicComment,
		Values:        make([]core.AnnotationValue, 0, len(o.Values)),
	}
	for _, v := range o.Values {
		attr, ok := attrs.GetByID(v.AnnotationAttributeID)
		if !ok {
			return nil, fmt.Errorf("object %d value %d: unknown attribute %d: %w",
				o.ID, v.ID, v.AnnotationAttributeID, core.ErrConsistency)
		}
		cv, err := ValueToCore(v, attr)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", o.ID, err)
		}
		obj.Values = append(obj.Values, cv)
	}
	return obj, nil
}

// CoreToObject converts an object without its values.
func CoreToObject(o core.Object) model.AnnotationObject {
	return model.AnnotationObject{
		ID:            o.ID,
		Type:          string(o.Type),
		PublicComment: o.PublicComment,
		IsEditable:    true,
		Options:       emptyOptions,
		VideoID:       o.VideoID,
	}
}

// CoreToLog converts a journal entry.
func CoreToLog(e core.LogEntry) model.Log {
	return model.Log{
		CreatedAt:   e.CreatedAt,
		CreatedByID: e.AnnotatorID,
		Type:        e.Type,
		Value:       e.Value,
	}
}

// LogToCore converts a stored journal row.
func LogToCore(l model.Log) core.LogEntry {
	return core.LogEntry{
		Type:        l.Type,
		Value:       l.Value,
		AnnotatorID: l.CreatedByID,
		CreatedAt:   l.CreatedAt,
	}
}
