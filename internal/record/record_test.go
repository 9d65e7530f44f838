package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/pkg/core"
)

var (
	posAttr      = &core.Attribute{ID: 1, Name: "position_rectangle", DataType: core.DataRectangle, ObjectType: core.ObjectRectangle}
	activityAttr = &core.Attribute{ID: 20, Name: "football_activity_1", DataType: core.DataText}
	speedAttr    = &core.Attribute{ID: 21, Name: "speed", DataType: core.DataInt}
	identityAttr = &core.Attribute{ID: 30, Name: "football_identity_1", DataType: core.DataText, IsGlobal: true}
)

func local(a *core.Attribute, frame int, p core.Payload) core.AnnotationValue {
	return core.AnnotationValue{ObjectID: 7, AttributeID: a.ID, Attribute: a, FrameFrom: frame, Value: p}
}

func player() *core.Object {
	return &core.Object{
		ID:   7,
		Type: core.ObjectRectangle,
		Values: []core.AnnotationValue{
			local(posAttr, 30, core.Rectangle{X1: 261, Y1: 238, X2: 270, Y2: 259}),
			local(posAttr, 0, core.Rectangle{X1: 240, Y1: 237, X2: 253, Y2: 260}),
			local(activityAttr, 10, core.Text("walking")),
			local(speedAttr, 20, core.Int(4)),
			{ObjectID: 7, AttributeID: identityAttr.ID, Attribute: identityAttr, Value: core.Text("white player")},
		},
	}
}

func TestValuesForFrame_Interpolates(t *testing.T) {
	values, err := ValuesForFrame(player(), 15)
	require.NoError(t, err)

	require.Contains(t, values, posAttr.ID)
	assert.Equal(t, core.Rectangle{X1: 250, Y1: 237, X2: 261, Y2: 259}, values[posAttr.ID].Value)
	assert.True(t, values[posAttr.ID].IsInterpolated)

	require.Contains(t, values, activityAttr.ID)
	assert.Equal(t, core.Text("walking"), values[activityAttr.ID].Value)

	// Numeric values hold their only keyframe in both directions.
	require.Contains(t, values, speedAttr.ID)
	assert.Equal(t, core.Int(4), values[speedAttr.ID].Value)

	assert.NotContains(t, values, identityAttr.ID, "globals are not local values")
}

func TestValuesForFrame_ExactMatch(t *testing.T) {
	values, err := ValuesForFrame(player(), 30)
	require.NoError(t, err)
	assert.False(t, values[posAttr.ID].IsInterpolated)
	assert.Equal(t, 30, values[posAttr.ID].FrameFrom)
}

func TestValuesForFrame_TextNotYetEstablished(t *testing.T) {
	values, err := ValuesForFrame(player(), 5)
	require.NoError(t, err)
	assert.NotContains(t, values, activityAttr.ID)
	assert.Contains(t, values, speedAttr.ID)
}

func TestValuesForFrame_DuplicateFrame(t *testing.T) {
	obj := player()
	obj.Values = append(obj.Values, local(posAttr, 30, core.Rectangle{X1: 1, Y1: 1, X2: 2, Y2: 2}))

	for name, frame := range map[string]int{
		"on the duplicate":           30,
		"duplicate is the next key":  10,
		"duplicate is the previous":  45,
		"duplicate far from a match": 0,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ValuesForFrame(obj, frame)
			assert.ErrorIs(t, err, core.ErrDuplicateFrame)
		})
	}

	t.Run("other attributes are not affected", func(t *testing.T) {
		clean := player()
		clean.Values = append(clean.Values, local(speedAttr, 40, core.Int(8)))
		values, err := ValuesForFrame(clean, 30)
		require.NoError(t, err)
		assert.Equal(t, core.Int(6), values[speedAttr.ID].Value)
	})
}

func TestValuesForFrame_DuplicateNeighbourNotInterpolated(t *testing.T) {
	obj := &core.Object{ID: 7, Type: core.ObjectRectangle, Values: []core.AnnotationValue{
		local(posAttr, 0, core.Rectangle{X1: 0, Y1: 0, X2: 10, Y2: 10}),
		local(posAttr, 0, core.Rectangle{X1: 50, Y1: 50, X2: 60, Y2: 60}),
		local(posAttr, 30, core.Rectangle{X1: 30, Y1: 30, X2: 40, Y2: 40}),
	}}

	values, err := ValuesForFrame(obj, 15)
	assert.ErrorIs(t, err, core.ErrDuplicateFrame)
	assert.Nil(t, values)
}

func TestGlobalValues(t *testing.T) {
	globals := GlobalValues(player())
	require.Len(t, globals, 1)
	assert.Equal(t, core.Text("white player"), globals[identityAttr.ID].Value)
}

func TestLocalGrouped_SortedByFrame(t *testing.T) {
	grouped := LocalGrouped(player())
	require.Len(t, grouped[posAttr.ID], 2)
	assert.Equal(t, 0, grouped[posAttr.ID][0].FrameFrom)
	assert.Equal(t, 30, grouped[posAttr.ID][1].FrameFrom)
}

func TestActiveInterval(t *testing.T) {
	iv, ok := ActiveInterval(player())
	require.True(t, ok)
	assert.Equal(t, core.Interval{From: 0, To: 30}, iv)

	assert.True(t, IsActiveInFrame(player(), 0))
	assert.True(t, IsActiveInFrame(player(), 30))
	assert.False(t, IsActiveInFrame(player(), 31))

	noPosition := &core.Object{ID: 8, Values: []core.AnnotationValue{local(speedAttr, 5, core.Int(1))}}
	_, ok = ActiveInterval(noPosition)
	assert.False(t, ok)
	assert.False(t, IsActiveInFrame(noPosition, 5))
}
