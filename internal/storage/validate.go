package storage

import (
	"fmt"
	"sort"

	"github.com/tovian/tovian/internal/codec"
	"github.com/tovian/tovian/pkg/core"
)

// EncodeValue checks v against its attribute and the owning object type and
// returns the stored string form. Every backend runs it before persisting.
func EncodeValue(objType core.ObjectType, v core.AnnotationValue) (string, error) {
	if v.Attribute == nil {
		return "", fmt.Errorf("value for attribute %d has no attribute loaded: %w", v.AttributeID, core.ErrConsistency)
	}
	if err := core.CheckObjectAttribute(objType, *v.Attribute); err != nil {
		return "", err
	}
	encoded, err := codec.Encode(v.Value, v.Attribute.DataType)
	if err != nil {
		return "", err
	}
	if err := codec.CheckAllowed(encoded, *v.Attribute); err != nil {
		return "", err
	}
	return encoded, nil
}

// CheckDuplicateFrames rejects two local values of one attribute at the same
// frame and two values of one global attribute.
func CheckDuplicateFrames(values []core.AnnotationValue) error {
	type key struct {
		attr  uint
		frame int
	}
	seen := make(map[key]struct{}, len(values))
	for _, v := range values {
		k := key{v.AttributeID, v.FrameFrom}
		if v.IsGlobal() {
			k.frame = 0
		}
		if _, ok := seen[k]; ok {
			if v.IsGlobal() {
				return fmt.Errorf("global attribute %d set twice: %w", v.AttributeID, core.ErrDuplicateFrame)
			}
			return fmt.Errorf("attribute %d frame %d: %w", v.AttributeID, v.FrameFrom, core.ErrDuplicateFrame)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// SortSpans orders spans by start frame, end frame and object ID.
func SortSpans(spans []core.Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		a, b := spans[i], spans[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.End != b.End {
			return a.End < b.End
		}
		return a.Object.ID < b.Object.ID
	})
}

// IsNavigationCandidate reports whether span qualifies as the next (or
// previous) object relative to frame and the currently selected object.
func IsNavigationCandidate(span core.Span, frame int, currentID uint, forward bool) bool {
	inFrame := span.Start <= frame && span.End >= frame
	if forward {
		if span.Start > frame {
			return true
		}
		return currentID != 0 && span.Object.ID > currentID && inFrame
	}
	if span.End < frame {
		return true
	}
	return currentID != 0 && span.Object.ID < currentID && inFrame
}

// NavigationLess orders navigation candidates: by start frame then ID going
// forward, by end frame then ID (both descending) going back.
func NavigationLess(a, b core.Span, forward bool) bool {
	if forward {
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Object.ID < b.Object.ID
	}
	if a.End != b.End {
		return a.End > b.End
	}
	return a.Object.ID > b.Object.ID
}
