// Package core defines the annotation domain types shared by storage, the
// frame cache and the resolver. It has no dependencies on GORM or any
// storage backend.
package core

import (
	"fmt"
	"strings"
	"time"
)

// ObjectType is the kind of shape an annotation object draws.
type ObjectType string

const (
	ObjectRectangle ObjectType = "rectangle"
	ObjectCircle    ObjectType = "circle"
	ObjectPoint     ObjectType = "point"
	ObjectNonVisual ObjectType = "nonvisual"
)

// ObjectTypes lists every supported object type in display order.
var ObjectTypes = []ObjectType{ObjectRectangle, ObjectCircle, ObjectPoint, ObjectNonVisual}

// ParseObjectType validates a stored object type name.
func ParseObjectType(s string) (ObjectType, error) {
	for _, t := range ObjectTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("object type %q: %w", s, ErrUnsupportedType)
}

// PositionDataType returns the position data type drawn by objects of this type.
func (t ObjectType) PositionDataType() DataType {
	switch t {
	case ObjectRectangle:
		return DataRectangle
	case ObjectCircle:
		return DataCircle
	case ObjectPoint:
		return DataPoint
	case ObjectNonVisual:
		return DataNonVisual
	}
	return DataUnknown
}

// DataType is the closed set of attribute value kinds.
type DataType int

const (
	DataUnknown DataType = iota
	DataInt
	DataFloat
	DataBool
	DataText
	DataRectangle
	DataCircle
	DataPoint
	DataNonVisual
)

var dataTypeNames = map[DataType]string{
	DataInt:       "int",
	DataFloat:     "float",
	DataBool:      "bool",
	DataText:      "unicode",
	DataRectangle: "position_rectangle",
	DataCircle:    "position_circle",
	DataPoint:     "position_point",
	DataNonVisual: "position_nonvisual",
}

// ParseDataType maps a stored data type tag to a DataType. "text" is
// accepted as an alias of "unicode".
func ParseDataType(s string) (DataType, error) {
	s = strings.TrimSpace(s)
	if s == "text" {
		return DataText, nil
	}
	for t, name := range dataTypeNames {
		if name == s {
			return t, nil
		}
	}
	return DataUnknown, fmt.Errorf("data type %q: %w", s, ErrUnsupportedType)
}

// String returns the storage tag of the data type.
func (d DataType) String() string {
	if name, ok := dataTypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(d))
}

// IsPosition reports whether values of this type position an object on screen.
func (d DataType) IsPosition() bool {
	return d == DataRectangle || d == DataCircle || d == DataPoint || d == DataNonVisual
}

// Attribute describes one annotation attribute. Attributes are reference
// data: loaded once and shared read-only.
type Attribute struct {
	ID            uint
	Name          string
	DataType      DataType
	IsGlobal      bool
	AllowedValues []string
	ObjectType    ObjectType
	Description   string
}

// AnnotationValue is one stored or interpolated attribute value. FrameFrom
// is meaningful only for local attributes.
type AnnotationValue struct {
	ID             uint
	ObjectID       uint
	AttributeID    uint
	Attribute      *Attribute
	FrameFrom      int
	Value          Payload
	IsInterpolated bool
}

// IsGlobal reports whether the value belongs to a global attribute.
func (v AnnotationValue) IsGlobal() bool {
	return v.Attribute != nil && v.Attribute.IsGlobal
}

// Object is an annotation object with all of its values eagerly loaded.
type Object struct {
	ID            uint
	VideoID       uint
	Type          ObjectType
	PublicComment string
	Values        []AnnotationValue
}

// Interval is an inclusive frame range.
type Interval struct {
	From int
	To   int
}

// Contains reports whether frame lies inside the interval.
func (i Interval) Contains(frame int) bool {
	return frame >= i.From && frame <= i.To
}

// Overlaps reports whether the two inclusive intervals share a frame.
func (i Interval) Overlaps(o Interval) bool {
	return i.From <= o.To && i.To >= o.From
}

// Span is an object together with its active interval as observed by the
// fetch that produced it.
type Span struct {
	Object *Object
	Start  int
	End    int
}

// Interval returns the active interval of the span.
func (s Span) Interval() Interval {
	return Interval{From: s.Start, To: s.End}
}

// Video holds the playback parameters of an annotated video.
type Video struct {
	ID                 uint
	Name               string
	Filename           string
	FPS                float64
	FrameCount         int
	AllowedObjectTypes []ObjectType
}

// LogEntry is one operational journal row.
type LogEntry struct {
	Type        string
	Value       string
	AnnotatorID *uint
	CreatedAt   time.Time
}
