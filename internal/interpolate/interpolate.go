// Package interpolate computes the effective value of a local attribute
// between two stored keyframes.
package interpolate

import (
	"fmt"

	"github.com/tovian/tovian/pkg/core"
)

// Interpolate returns the value at frame derived from the nearest stored
// value at or before frame and the nearest at or after it. Either side may
// be nil. A nil result with a nil error means the attribute has no value at
// frame (a bool or text attribute that is only established later).
func Interpolate(before, after *core.AnnotationValue, frame int) (*core.AnnotationValue, error) {
	if before == nil && after == nil {
		return nil, nil
	}
	if err := checkConsistency(before, after, frame); err != nil {
		return nil, err
	}

	ref := before
	if ref == nil {
		ref = after
	}
	dt := ref.Value.DataType()
	if ref.Attribute != nil {
		dt = ref.Attribute.DataType
	}

	var payload core.Payload
	var err error
	switch dt {
	case core.DataInt, core.DataFloat, core.DataRectangle, core.DataCircle, core.DataPoint:
		payload, err = linear(before, after, frame)
	case core.DataBool, core.DataText:
		if before == nil {
			return nil, nil
		}
		payload = before.Value
	case core.DataNonVisual:
		payload = core.NonVisual{}
	default:
		return nil, fmt.Errorf("interpolate %s: %w", dt, core.ErrUnsupportedType)
	}
	if err != nil {
		return nil, err
	}

	return &core.AnnotationValue{
		ObjectID:       ref.ObjectID,
		AttributeID:    ref.AttributeID,
		Attribute:      ref.Attribute,
		FrameFrom:      frame,
		Value:          payload,
		IsInterpolated: true,
	}, nil
}

func checkConsistency(before, after *core.AnnotationValue, frame int) error {
	if before != nil && after != nil {
		if before.ObjectID != after.ObjectID || before.AttributeID != after.AttributeID {
			return fmt.Errorf("interpolate between object %d attribute %d and object %d attribute %d: %w",
				before.ObjectID, before.AttributeID, after.ObjectID, after.AttributeID, core.ErrConsistency)
		}
		if before.Value != nil && after.Value != nil && before.Value.DataType() != after.Value.DataType() {
			return fmt.Errorf("interpolate %s with %s: %w",
				before.Value.DataType(), after.Value.DataType(), core.ErrConsistency)
		}
	}
	if before != nil && before.FrameFrom > frame {
		return fmt.Errorf("value before frame %d is at %d: %w", frame, before.FrameFrom, core.ErrConsistency)
	}
	if after != nil && after.FrameFrom < frame {
		return fmt.Errorf("value after frame %d is at %d: %w", frame, after.FrameFrom, core.ErrConsistency)
	}
	for _, v := range []*core.AnnotationValue{before, after} {
		if v != nil && v.Value == nil {
			return fmt.Errorf("value %d has no payload: %w", v.ID, core.ErrConsistency)
		}
	}
	return nil
}

// linear applies v1 + (v2-v1)*(f-t1)/(t2-t1) component-wise. With only one
// side present that side is returned unchanged.
func linear(before, after *core.AnnotationValue, frame int) (core.Payload, error) {
	if before == nil {
		return after.Value, nil
	}
	if after == nil || after.FrameFrom == before.FrameFrom {
		return before.Value, nil
	}
	ratio := float64(frame-before.FrameFrom) / float64(after.FrameFrom-before.FrameFrom)

	lerp := func(a, b float64) float64 { return a + (b-a)*ratio }
	lerpInt := func(a, b int) int { return int(lerp(float64(a), float64(b))) }

	switch v1 := before.Value.(type) {
	case core.Int:
		v2 := after.Value.(core.Int)
		return core.Int(int64(lerp(float64(v1), float64(v2)))), nil
	case core.Float:
		v2 := after.Value.(core.Float)
		return core.Float(lerp(float64(v1), float64(v2))), nil
	case core.Rectangle:
		v2 := after.Value.(core.Rectangle)
		return core.Rectangle{
			X1: lerpInt(v1.X1, v2.X1),
			Y1: lerpInt(v1.Y1, v2.Y1),
			X2: lerpInt(v1.X2, v2.X2),
			Y2: lerpInt(v1.Y2, v2.Y2),
		}, nil
	case core.Circle:
		v2 := after.Value.(core.Circle)
		return core.Circle{
			X: lerpInt(v1.X, v2.X),
			Y: lerpInt(v1.Y, v2.Y),
			R: lerp(v1.R, v2.R),
		}, nil
	case core.Point:
		v2 := after.Value.(core.Point)
		return core.Point{
			X: lerpInt(v1.X, v2.X),
			Y: lerpInt(v1.Y, v2.Y),
		}, nil
	}
	return nil, fmt.Errorf("linear interpolation of %s: %w", before.Value.DataType(), core.ErrUnsupportedType)
}
