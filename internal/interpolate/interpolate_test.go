package interpolate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/pkg/core"
)

func attr(id uint, dt core.DataType) *core.Attribute {
	return &core.Attribute{ID: id, Name: dt.String(), DataType: dt}
}

func value(a *core.Attribute, frame int, p core.Payload) *core.AnnotationValue {
	return &core.AnnotationValue{ObjectID: 1, AttributeID: a.ID, Attribute: a, FrameFrom: frame, Value: p}
}

func TestInterpolate_Rectangle(t *testing.T) {
	a := attr(1, core.DataRectangle)
	before := value(a, 0, core.Rectangle{X1: 240, Y1: 237, X2: 253, Y2: 260})
	after := value(a, 30, core.Rectangle{X1: 261, Y1: 238, X2: 270, Y2: 259})

	got, err := Interpolate(before, after, 15)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.Rectangle{X1: 250, Y1: 237, X2: 261, Y2: 259}, got.Value)
	assert.True(t, got.IsInterpolated)
	assert.Equal(t, 15, got.FrameFrom)
	assert.Equal(t, uint(1), got.ObjectID)
	assert.Zero(t, got.ID)
	assert.False(t, before.IsInterpolated, "inputs must not be mutated")
}

func TestInterpolate_Numeric(t *testing.T) {
	ia := attr(2, core.DataInt)
	fa := attr(3, core.DataFloat)

	tests := []struct {
		name   string
		before *core.AnnotationValue
		after  *core.AnnotationValue
		frame  int
		want   core.Payload
	}{
		{"int midpoint", value(ia, 0, core.Int(0)), value(ia, 10, core.Int(10)), 5, core.Int(5)},
		{"int truncates", value(ia, 0, core.Int(0)), value(ia, 3, core.Int(10)), 1, core.Int(3)},
		{"int truncates toward zero", value(ia, 0, core.Int(0)), value(ia, 3, core.Int(-10)), 1, core.Int(-3)},
		{"float keeps fraction", value(fa, 0, core.Float(0)), value(fa, 4, core.Float(1)), 1, core.Float(0.25)},
		{"int before only", value(ia, 4, core.Int(9)), nil, 20, core.Int(9)},
		{"int after only", nil, value(ia, 40, core.Int(7)), 20, core.Int(7)},
		{"at before keyframe", value(ia, 10, core.Int(1)), value(ia, 20, core.Int(2)), 10, core.Int(1)},
		{"at after keyframe", value(ia, 10, core.Int(1)), value(ia, 20, core.Int(2)), 20, core.Int(2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Interpolate(tt.before, tt.after, tt.frame)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Value)
		})
	}
}

func TestInterpolate_CircleAndPoint(t *testing.T) {
	ca := attr(4, core.DataCircle)
	got, err := Interpolate(value(ca, 0, core.Circle{X: 0, Y: 0, R: 1}), value(ca, 4, core.Circle{X: 3, Y: 5, R: 2}), 1)
	require.NoError(t, err)
	assert.Equal(t, core.Circle{X: 0, Y: 1, R: 1.25}, got.Value)

	pa := attr(5, core.DataPoint)
	got, err = Interpolate(value(pa, 10, core.Point{X: 10, Y: 10}), value(pa, 20, core.Point{X: 20, Y: 0}), 15)
	require.NoError(t, err)
	assert.Equal(t, core.Point{X: 15, Y: 5}, got.Value)
}

func TestInterpolate_StepTypes(t *testing.T) {
	ba := attr(6, core.DataBool)
	ta := attr(7, core.DataText)

	got, err := Interpolate(value(ba, 0, core.Bool(true)), value(ba, 10, core.Bool(false)), 9)
	require.NoError(t, err)
	assert.Equal(t, core.Bool(true), got.Value)

	got, err = Interpolate(value(ta, 0, core.Text("walking")), nil, 100)
	require.NoError(t, err)
	assert.Equal(t, core.Text("walking"), got.Value)

	// A step value is not established before its first keyframe.
	got, err = Interpolate(nil, value(ta, 10, core.Text("running")), 5)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = Interpolate(nil, value(ba, 10, core.Bool(true)), 5)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInterpolate_AfterOnlyAsymmetry(t *testing.T) {
	ia := attr(2, core.DataInt)
	ra := attr(1, core.DataRectangle)
	ta := attr(7, core.DataText)

	gotInt, err := Interpolate(nil, value(ia, 10, core.Int(3)), 0)
	require.NoError(t, err)
	require.NotNil(t, gotInt)
	assert.Equal(t, core.Int(3), gotInt.Value, "numbers hold the next keyframe backwards")
	assert.Equal(t, 0, gotInt.FrameFrom)
	assert.True(t, gotInt.IsInterpolated)

	rect := core.Rectangle{X1: 1, Y1: 1, X2: 2, Y2: 2}
	gotRect, err := Interpolate(nil, value(ra, 10, rect), 0)
	require.NoError(t, err)
	require.NotNil(t, gotRect)
	assert.Equal(t, rect, gotRect.Value)
	assert.Equal(t, ra.ID, gotRect.AttributeID)

	gotText, err := Interpolate(nil, value(ta, 10, core.Text("x")), 0)
	require.NoError(t, err)
	assert.Nil(t, gotText)
}

func TestInterpolate_NonVisual(t *testing.T) {
	na := attr(8, core.DataNonVisual)
	got, err := Interpolate(nil, value(na, 10, core.NonVisual{}), 3)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, core.NonVisual{}, got.Value)
}

func TestInterpolate_NoValues(t *testing.T) {
	got, err := Interpolate(nil, nil, 3)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInterpolate_Consistency(t *testing.T) {
	ia := attr(2, core.DataInt)
	other := attr(9, core.DataInt)

	t.Run("different attribute", func(t *testing.T) {
		_, err := Interpolate(value(ia, 0, core.Int(1)), value(other, 10, core.Int(2)), 5)
		assert.ErrorIs(t, err, core.ErrConsistency)
	})

	t.Run("different object", func(t *testing.T) {
		after := value(ia, 10, core.Int(2))
		after.ObjectID = 2
		_, err := Interpolate(value(ia, 0, core.Int(1)), after, 5)
		assert.ErrorIs(t, err, core.ErrConsistency)
	})

	t.Run("before after frame", func(t *testing.T) {
		_, err := Interpolate(value(ia, 6, core.Int(1)), value(ia, 10, core.Int(2)), 5)
		assert.ErrorIs(t, err, core.ErrConsistency)
	})

	t.Run("after before frame", func(t *testing.T) {
		_, err := Interpolate(nil, value(ia, 4, core.Int(2)), 5)
		assert.ErrorIs(t, err, core.ErrConsistency)
	})
}
