package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/pkg/core"
)

var (
	posAttr      = &core.Attribute{ID: 1, Name: "position_rectangle", DataType: core.DataRectangle, ObjectType: core.ObjectRectangle}
	activityAttr = &core.Attribute{ID: 20, Name: "football_activity_1", DataType: core.DataText}
	runningAttr  = &core.Attribute{ID: 21, Name: "running", DataType: core.DataBool}
	speedAttr    = &core.Attribute{ID: 22, Name: "speed", DataType: core.DataFloat}
	jerseyAttr   = &core.Attribute{ID: 30, Name: "jersey", DataType: core.DataInt, IsGlobal: true}
	teamAttr     = &core.Attribute{ID: 31, Name: "team", DataType: core.DataText, IsGlobal: true}
)

func value(a *core.Attribute, frame int, p core.Payload) core.AnnotationValue {
	return core.AnnotationValue{ObjectID: 7, AttributeID: a.ID, Attribute: a, FrameFrom: frame, Value: p}
}

func player() core.Span {
	obj := &core.Object{
		ID:   7,
		Type: core.ObjectRectangle,
		Values: []core.AnnotationValue{
			value(posAttr, 0, core.Rectangle{X1: 240, Y1: 237, X2: 253, Y2: 260}),
			value(posAttr, 30, core.Rectangle{X1: 261, Y1: 238, X2: 270, Y2: 259}),
			value(activityAttr, 10, core.Text("walking")),
			value(runningAttr, 0, core.Bool(true)),
			value(runningAttr, 20, core.Bool(false)),
			value(speedAttr, 0, core.Float(1)),
			value(speedAttr, 20, core.Float(3)),
			value(jerseyAttr, 0, core.Int(10)),
			value(teamAttr, 0, core.Text("white")),
		},
	}
	return core.Span{Object: obj, Start: 0, End: 30}
}

type fakeSource struct {
	spans        []core.Span
	err          error
	lastFrom     int
	lastTo       int
	intervalCall bool
}

func (f *fakeSource) ObjectsInFrame(ctx context.Context, frame int) ([]core.Span, error) {
	f.lastFrom, f.lastTo = frame, frame
	return f.spans, f.err
}

func (f *fakeSource) ObjectsInFrameInterval(ctx context.Context, from, to int) ([]core.Span, error) {
	f.intervalCall = true
	f.lastFrom, f.lastTo = from, to
	return f.spans, f.err
}

func TestResolve(t *testing.T) {
	src := &fakeSource{spans: []core.Span{player()}}
	r := New(src)

	objects, err := r.Resolve(context.Background(), 15)
	require.NoError(t, err)
	require.Len(t, objects, 1)

	ro := objects[0]
	assert.Equal(t, 15, ro.Frame)
	assert.Equal(t, uint(7), ro.Object.ID)

	pos, ok := ro.Position()
	require.True(t, ok)
	assert.Equal(t, core.Rectangle{X1: 250, Y1: 237, X2: 261, Y2: 259}, pos.Value)
	assert.True(t, pos.IsInterpolated)

	assert.Equal(t, core.Text("walking"), ro.Local[activityAttr.ID].Value)
	assert.Equal(t, core.Bool(true), ro.Local[runningAttr.ID].Value)
	assert.Equal(t, core.Float(2.5), ro.Local[speedAttr.ID].Value)
	assert.Len(t, ro.Global, 2)
}

func TestResolve_SourceError(t *testing.T) {
	src := &fakeSource{err: core.ErrOutOfRange}
	_, err := New(src).Resolve(context.Background(), 9999)
	assert.ErrorIs(t, err, core.ErrOutOfRange)
}

func TestResolve_DuplicateFrame(t *testing.T) {
	s := player()
	s.Object.Values = append(s.Object.Values, value(posAttr, 30, core.Rectangle{}))

	_, err := New(&fakeSource{spans: []core.Span{s}}).Resolve(context.Background(), 30)
	assert.ErrorIs(t, err, core.ErrDuplicateFrame)
}

func TestResolveInterval(t *testing.T) {
	late := player()
	late.Object = &core.Object{ID: 8, Type: core.ObjectRectangle, Values: []core.AnnotationValue{
		value(posAttr, 20, core.Rectangle{X1: 1, Y1: 1, X2: 5, Y2: 5}),
		value(posAttr, 40, core.Rectangle{X1: 3, Y1: 3, X2: 7, Y2: 7}),
	}}
	late.Start, late.End = 20, 40

	src := &fakeSource{spans: []core.Span{player(), late}}
	objects, err := New(src).ResolveInterval(context.Background(), 10, 25)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.True(t, src.intervalCall)

	assert.Equal(t, 10, objects[0].Frame, "active before the interval: resolved at its first frame")
	assert.Equal(t, 20, objects[1].Frame, "starts inside the interval: resolved at its start")

	pos, ok := objects[1].Position()
	require.True(t, ok)
	assert.False(t, pos.IsInterpolated)
	assert.Equal(t, core.Rectangle{X1: 1, Y1: 1, X2: 5, Y2: 5}, pos.Value)
}

func TestResolveInterval_Error(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	_, err := New(src).ResolveInterval(context.Background(), 0, 5)
	assert.Error(t, err)
}

func TestText(t *testing.T) {
	src := &fakeSource{spans: []core.Span{player()}}

	objects, err := New(src).Resolve(context.Background(), 15)
	require.NoError(t, err)
	global, local := Text(objects[0])
	assert.Equal(t, "jersey=10, white", global)
	assert.Equal(t, "walking, running, speed=2.5", local)

	objects, err = New(src).Resolve(context.Background(), 25)
	require.NoError(t, err)
	_, local = Text(objects[0])
	assert.Equal(t, "walking, speed=3", local, "false booleans render nothing")
}

func TestValueText(t *testing.T) {
	tests := []struct {
		name string
		in   core.AnnotationValue
		want string
		ok   bool
	}{
		{"position", value(posAttr, 0, core.Rectangle{}), "", false},
		{"bool true", value(runningAttr, 0, core.Bool(true)), "running", true},
		{"bool false", value(runningAttr, 0, core.Bool(false)), "", false},
		{"int", value(jerseyAttr, 0, core.Int(-3)), "jersey=-3", true},
		{"float", value(speedAttr, 0, core.Float(0.25)), "speed=0.25", true},
		{"text", value(activityAttr, 0, core.Text("kick")), "kick", true},
		{"no attribute", core.AnnotationValue{Value: core.Text("x")}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ValueText(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
