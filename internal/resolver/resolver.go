// Package resolver turns the objects cached for a frame into the values a
// player draws: interpolated local values plus the object's global values.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tovian/tovian/internal/record"
	"github.com/tovian/tovian/pkg/core"
)

// FrameSource answers which objects are active in a frame or interval.
// cache.FrameCache satisfies it.
type FrameSource interface {
	ObjectsInFrame(ctx context.Context, frame int) ([]core.Span, error)
	ObjectsInFrameInterval(ctx context.Context, from, to int) ([]core.Span, error)
}

// ResolvedObject is an object with its values resolved for one frame.
type ResolvedObject struct {
	core.Span
	Frame  int
	Local  map[uint]core.AnnotationValue
	Global map[uint]core.AnnotationValue
}

// Position returns the resolved position value, if the object has one at Frame.
func (r ResolvedObject) Position() (core.AnnotationValue, bool) {
	for _, v := range r.Local {
		if v.Attribute != nil && v.Attribute.DataType.IsPosition() {
			return v, true
		}
	}
	return core.AnnotationValue{}, false
}

// Resolver reads from a FrameSource and never modifies it.
type Resolver struct {
	source FrameSource
}

// New creates a Resolver over source.
func New(source FrameSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve returns every object active at frame with its values at that frame.
func (r *Resolver) Resolve(ctx context.Context, frame int) ([]ResolvedObject, error) {
	spans, err := r.source.ObjectsInFrame(ctx, frame)
	if err != nil {
		return nil, err
	}
	out := make([]ResolvedObject, 0, len(spans))
	for _, s := range spans {
		ro, err := resolve(s, frame)
		if err != nil {
			return nil, err
		}
		out = append(out, ro)
	}
	return out, nil
}

// ResolveInterval returns every object active anywhere in [from, to]. Local
// values are resolved at the first frame of the interval where the object
// is active.
func (r *Resolver) ResolveInterval(ctx context.Context, from, to int) ([]ResolvedObject, error) {
	spans, err := r.source.ObjectsInFrameInterval(ctx, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]ResolvedObject, 0, len(spans))
	for _, s := range spans {
		ro, err := resolve(s, max(from, s.Start))
		if err != nil {
			return nil, err
		}
		out = append(out, ro)
	}
	return out, nil
}

func resolve(s core.Span, frame int) (ResolvedObject, error) {
	local, err := record.ValuesForFrame(s.Object, frame)
	if err != nil {
		return ResolvedObject{}, fmt.Errorf("resolving frame %d: %w", frame, err)
	}
	return ResolvedObject{
		Span:   s,
		Frame:  frame,
		Local:  local,
		Global: record.GlobalValues(s.Object),
	}, nil
}

// Text renders the global and local values of ro for display. Values are
// ordered by attribute ID and joined with ", ".
func Text(ro ResolvedObject) (global, local string) {
	return joinText(ro.Global), joinText(ro.Local)
}

func joinText(values map[uint]core.AnnotationValue) string {
	ids := make([]uint, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := ValueText(values[id]); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// ValueText renders a single value. Position values and false booleans have
// no text.
func ValueText(v core.AnnotationValue) (string, bool) {
	if v.Attribute == nil || v.Attribute.DataType.IsPosition() {
		return "", false
	}
	name := v.Attribute.Name
	switch p := v.Value.(type) {
	case core.Bool:
		if p {
			return name, true
		}
		return "", false
	case core.Int:
		return name + "=" + strconv.FormatInt(int64(p), 10), true
	case core.Float:
		return name + "=" + strconv.FormatFloat(float64(p), 'f', -1, 64), true
	case core.Text:
		return string(p), true
	}
	return "", false
}
