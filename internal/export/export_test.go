package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tovian/tovian/internal/cache"
	"github.com/tovian/tovian/internal/parser"
	"github.com/tovian/tovian/internal/storage/memory"
	"github.com/tovian/tovian/pkg/core"
)

func seed(t *testing.T) (*memory.Backend, core.Video) {
	t.Helper()
	ctx := context.Background()
	b := memory.New()
	speed := core.Attribute{Name: "speed", DataType: core.DataFloat, ObjectType: core.ObjectCircle}
	require.NoError(t, b.AddAttribute(&speed))

	video := core.Video{Name: "match day: 1", FPS: 25, FrameCount: 100}
	require.NoError(t, b.AddVideo(&video))

	ball := &core.Object{VideoID: video.ID, Type: core.ObjectCircle, PublicComment: "ball", Values: []core.AnnotationValue{
		{AttributeID: core.AttrPositionCircle, FrameFrom: 0, Value: core.Circle{X: 10, Y: 20, R: 2.5}},
		{AttributeID: core.AttrPositionCircle, FrameFrom: 50, Value: core.Circle{X: 30, Y: 40, R: 2.5}},
		{AttributeID: speed.ID, FrameFrom: 10, Value: core.Float(12.5)},
		{AttributeID: core.AttrIgnored, Value: core.Text("blurred")},
	}}
	require.NoError(t, b.AddObject(ctx, ball))

	// Never active: no position keyframe.
	require.NoError(t, b.AddObject(ctx, &core.Object{VideoID: video.ID, Type: core.ObjectPoint, Values: []core.AnnotationValue{
		{AttributeID: core.AttrComment, FrameFrom: 5, Value: core.Text("orphan")},
	}}))
	return b, video
}

func TestBuild(t *testing.T) {
	b, video := seed(t)
	objects, err := Objects(context.Background(), b, video)
	require.NoError(t, err)
	require.Len(t, objects, 1)

	doc := Build(objects)
	require.Len(t, doc, 1)
	assert.Equal(t, "circle", doc[0].Type)
	assert.Equal(t, "ball", doc[0].PublicComment)
	assert.Contains(t, doc[0].AnnotationValues, []any{"position_circle", 0, []any{10, 20, 2.5}})
	assert.Contains(t, doc[0].AnnotationValues, []any{"speed", 10, 12.5})
	assert.Contains(t, doc[0].AnnotationValues, []any{"ignored", "blurred"})
}

func TestBuild_SkipsInterpolated(t *testing.T) {
	attr := core.DefaultAttributes()[0]
	doc := Build([]core.Object{{Type: core.ObjectRectangle, Values: []core.AnnotationValue{
		{Attribute: &attr, FrameFrom: 0, Value: core.Rectangle{X2: 1, Y2: 1}},
		{Attribute: &attr, FrameFrom: 5, Value: core.Rectangle{X2: 1, Y2: 1}, IsInterpolated: true},
		{FrameFrom: 6, Value: core.Rectangle{}},
	}}})
	require.Len(t, doc, 1)
	assert.Equal(t, [][]any{{"position_rectangle", 0, []int{0, 0, 1, 1}}}, doc[0].AnnotationValues)
}

func TestWrite_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b, video := seed(t)
			dir := filepath.Join(t.TempDir(), "exports")

			path, err := Write(ctx, b, video, Config{OutputDir: dir, CompressOutput: compress})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(filepath.Base(path), "match_day__1_"))
			assert.Equal(t, compress, strings.HasSuffix(path, ".json.gz"))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			doc, err := parser.Decode(f)
			require.NoError(t, err)

			attrs := cache.NewAttributeCache()
			require.NoError(t, attrs.Load(ctx, b))
			objects, err := parser.NewParser(nil).Build(video.ID, doc, attrs)
			require.NoError(t, err)
			require.Len(t, objects, 1)

			original, err := Objects(ctx, b, video)
			require.NoError(t, err)
			require.Len(t, objects[0].Values, len(original[0].Values))
			for i, v := range original[0].Values {
				assert.Equal(t, v.AttributeID, objects[0].Values[i].AttributeID)
				assert.Equal(t, v.FrameFrom, objects[0].Values[i].FrameFrom)
				assert.Equal(t, v.Value, objects[0].Values[i].Value)
			}
		})
	}
}

func TestEncode(t *testing.T) {
	var plain, gz bytes.Buffer
	doc := []parser.ImportObject{{Type: "point", AnnotationValues: [][]any{{"position_point", 3, []int{1, 2}}}}}
	require.NoError(t, Encode(&plain, doc, false))
	require.NoError(t, Encode(&gz, doc, true))

	assert.JSONEq(t, `[{"type":"point","annotation_values":[["position_point",3,[1,2]]]}]`, plain.String())

	decoded, err := parser.Decode(&gz)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, "point", decoded[0].Type)
}
