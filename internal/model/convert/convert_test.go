package convert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/internal/model"
	"github.com/tovian/tovian/pkg/core"
)

func TestAttributeRoundTrip(t *testing.T) {
	for _, a := range core.DefaultAttributes() {
		t.Run(a.Name, func(t *testing.T) {
			m := CoreToAttribute(a)
			assert.Equal(t, a.DataType.String(), m.DataType)
			assert.JSONEq(t, "{}", string(m.Options))

			back, err := AttributeToCore(m)
			require.NoError(t, err)
			assert.Equal(t, a, back)
		})
	}
}

func TestAttributeToCore_TextAlias(t *testing.T) {
	a, err := AttributeToCore(model.AnnotationAttribute{ID: 9, Name: "note", DataType: "text", AllowedValues: "a|b"})
	require.NoError(t, err)
	assert.Equal(t, core.DataText, a.DataType)
	assert.Equal(t, []string{"a", "b"}, a.AllowedValues)

	_, err = AttributeToCore(model.AnnotationAttribute{Name: "bad", DataType: "polygon"})
	assert.ErrorIs(t, err, core.ErrUnsupportedType)
}

func TestVideoRoundTrip(t *testing.T) {
	v := core.Video{
		ID:                 3,
		Name:               "match",
		Filename:           "match.mp4",
		FPS:                25,
		FrameCount:         1000,
		AllowedObjectTypes: []core.ObjectType{core.ObjectRectangle, core.ObjectNonVisual},
	}
	m := CoreToVideo(v)
	assert.Equal(t, "rectangle|nonvisual", m.AllowedObjectTypes)
	assert.InDelta(t, 40.0, m.Duration, 1e-9)
	assert.Equal(t, v, VideoToCore(m))

	assert.Empty(t, VideoToCore(model.Video{}).AllowedObjectTypes)
}

func TestObjectToCore(t *testing.T) {
	attrs := AttributeMap{}
	for _, a := range core.DefaultAttributes() {
		attrs[a.ID] = &a
	}

	o := model.AnnotationObject{
		ID:      12,
		Type:    "rectangle",
		VideoID: 3,
		Values: []model.AnnotationValue{
			{ID: 1, AnnotationObjectID: 12, AnnotationAttributeID: core.AttrPositionRectangle, FrameFrom: 5, Value: "1,2,3,4"},
			{ID: 2, AnnotationObjectID: 12, AnnotationAttributeID: core.AttrShotChange, Value: "cut"},
		},
	}
	obj, err := ObjectToCore(o, attrs)
	require.NoError(t, err)
	require.Len(t, obj.Values, 2)
	assert.Equal(t, core.Rectangle{X1: 1, Y1: 2, X2: 3, Y2: 4}, obj.Values[0].Value)
	assert.Same(t, attrs[core.AttrPositionRectangle], obj.Values[0].Attribute)
	assert.True(t, obj.Values[1].IsGlobal())

	o.Values = append(o.Values, model.AnnotationValue{ID: 3, AnnotationAttributeID: 999})
	_, err = ObjectToCore(o, attrs)
	assert.ErrorIs(t, err, core.ErrConsistency)

	o.Values = []model.AnnotationValue{{ID: 4, AnnotationAttributeID: core.AttrPositionRectangle, Value: "garbage"}}
	_, err = ObjectToCore(o, attrs)
	assert.ErrorIs(t, err, core.ErrInvalidValue)
}

func TestCoreToValue(t *testing.T) {
	v := core.AnnotationValue{ID: 5, ObjectID: 12, AttributeID: core.AttrComment, FrameFrom: 30, Value: core.Text("hi")}
	m := CoreToValue(v, "hi")
	assert.Equal(t, uint(12), m.AnnotationObjectID)
	assert.Equal(t, uint(core.AttrComment), m.AnnotationAttributeID)
	assert.Equal(t, 30, m.FrameFrom)
	assert.Equal(t, "hi", m.Value)
}

func TestLogRoundTrip(t *testing.T) {
	id := uint(7)
	e := core.LogEntry{Type: "cache.miss", Value: "frames [1, 2]", AnnotatorID: &id, CreatedAt: time.Unix(100, 0)}
	assert.Equal(t, e, LogToCore(CoreToLog(e)))
}
