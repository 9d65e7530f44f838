package core

import "errors"

// Errors returned across the annotation engine. Callers match them with
// errors.Is; producers wrap them with context.
var (
	// ErrOutOfRange is returned for a frame outside [0, frame_count].
	ErrOutOfRange = errors.New("frame out of range")
	// ErrInvalidRange is returned for an inverted or degenerate frame range.
	ErrInvalidRange = errors.New("invalid frame range")
	// ErrUnsupportedType is returned for a data type or object type outside the closed set.
	ErrUnsupportedType = errors.New("unsupported type")
	// ErrInvalidValue is returned for a value that cannot be encoded, decoded
	// or is not among the attribute's allowed values.
	ErrInvalidValue = errors.New("invalid value")
	// ErrDuplicateFrame is returned when two stored values of one object and
	// local attribute share a frame.
	ErrDuplicateFrame = errors.New("duplicate value for frame")
	// ErrConsistency is returned when interpolation inputs disagree or a
	// value does not fit its object.
	ErrConsistency = errors.New("inconsistent annotation data")
	// ErrFetch wraps failures of the underlying data source.
	ErrFetch = errors.New("data source fetch failed")
)
