// Package record answers per-frame questions about a single annotation
// object: which values apply at a frame and when the object is active.
// Nothing is memoised; every call recomputes from the object's values.
package record

import (
	"fmt"
	"sort"

	"github.com/tovian/tovian/internal/interpolate"
	"github.com/tovian/tovian/pkg/core"
)

// ValuesForFrame resolves every local attribute of obj at frame. An exact
// keyframe wins; otherwise the nearest keyframes on either side are
// interpolated. Attributes that resolve to nothing are omitted. Two stored
// values of one attribute on the same frame fail with ErrDuplicateFrame.
func ValuesForFrame(obj *core.Object, frame int) (map[uint]core.AnnotationValue, error) {
	out := make(map[uint]core.AnnotationValue)
	for attrID, values := range LocalGrouped(obj) {
		var before, after, exact *core.AnnotationValue
		for i := range values {
			v := &values[i]
			// values are sorted, so a shared keyframe sits next to its twin
			if i > 0 && values[i-1].FrameFrom == v.FrameFrom {
				return nil, fmt.Errorf("object %d attribute %d frame %d: %w",
					obj.ID, attrID, v.FrameFrom, core.ErrDuplicateFrame)
			}
			switch {
			case v.FrameFrom == frame:
				exact = v
			case v.FrameFrom < frame:
				before = v
			case v.FrameFrom > frame && after == nil:
				after = v
			}
		}
		if exact != nil {
			out[attrID] = *exact
			continue
		}
		resolved, err := interpolate.Interpolate(before, after, frame)
		if err != nil {
			return nil, fmt.Errorf("object %d attribute %d: %w", obj.ID, attrID, err)
		}
		if resolved != nil {
			out[attrID] = *resolved
		}
	}
	return out, nil
}

// GlobalValues returns the object's global values keyed by attribute.
func GlobalValues(obj *core.Object) map[uint]core.AnnotationValue {
	out := make(map[uint]core.AnnotationValue)
	for _, v := range obj.Values {
		if v.IsGlobal() {
			out[v.AttributeID] = v
		}
	}
	return out
}

// LocalGrouped returns stored local values grouped by attribute and sorted
// by frame. Interpolated values are ignored.
func LocalGrouped(obj *core.Object) map[uint][]core.AnnotationValue {
	out := make(map[uint][]core.AnnotationValue)
	for _, v := range obj.Values {
		if v.IsGlobal() || v.IsInterpolated {
			continue
		}
		out[v.AttributeID] = append(out[v.AttributeID], v)
	}
	for _, values := range out {
		sort.SliceStable(values, func(i, j int) bool {
			return values[i].FrameFrom < values[j].FrameFrom
		})
	}
	return out
}

// ActiveInterval returns the first and last keyframe of the object's local
// position values. ok is false when the object has none.
func ActiveInterval(obj *core.Object) (core.Interval, bool) {
	var iv core.Interval
	found := false
	for _, v := range obj.Values {
		if v.IsGlobal() || v.IsInterpolated || v.Attribute == nil || !v.Attribute.DataType.IsPosition() {
			continue
		}
		if !found {
			iv = core.Interval{From: v.FrameFrom, To: v.FrameFrom}
			found = true
			continue
		}
		iv.From = min(iv.From, v.FrameFrom)
		iv.To = max(iv.To, v.FrameFrom)
	}
	return iv, found
}

// IsActiveInFrame reports whether frame falls inside the object's active interval.
func IsActiveInFrame(obj *core.Object, frame int) bool {
	iv, ok := ActiveInterval(obj)
	return ok && iv.Contains(frame)
}
