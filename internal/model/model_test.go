package model

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Annotator", &Annotator{}, "annotators"},
		{"Video", &Video{}, "videos"},
		{"AnnotationAttribute", &AnnotationAttribute{}, "annotation_attributes"},
		{"AnnotationObject", &AnnotationObject{}, "annotation_objects"},
		{"AnnotationValue", &AnnotationValue{}, "annotation_values"},
		{"Log", &Log{}, "logs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(DatabaseModels...))
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func TestAutoMigrate(t *testing.T) {
	db := openTestDB(t)

	for _, m := range DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m), "%T", m)
	}
	assert.True(t, db.Migrator().HasTable("bind_video_to_annotator"))
	assert.True(t, db.Migrator().HasTable("bind_video_to_annotation_attributes"))
	assert.True(t, db.Migrator().HasIndex(&AnnotationValue{}, "idx_value_object_attribute_frame"))
}

func TestUniqueValuePerFrame(t *testing.T) {
	db := openTestDB(t)

	video := Video{Name: "v", Filename: "v.mp4", AllowedObjectTypes: "rectangle"}
	require.NoError(t, db.Create(&video).Error)
	attr := AnnotationAttribute{Name: "position_rectangle", DataType: "position_rectangle", ObjectType: "rectangle"}
	require.NoError(t, db.Create(&attr).Error)
	obj := AnnotationObject{Type: "rectangle", VideoID: video.ID}
	require.NoError(t, db.Omit("Video").Create(&obj).Error)

	first := AnnotationValue{AnnotationObjectID: obj.ID, AnnotationAttributeID: attr.ID, FrameFrom: 10, Value: "1,1,2,2"}
	require.NoError(t, db.Omit("AnnotationAttribute").Create(&first).Error)

	dup := AnnotationValue{AnnotationObjectID: obj.ID, AnnotationAttributeID: attr.ID, FrameFrom: 10, Value: "3,3,4,4"}
	assert.Error(t, db.Omit("AnnotationAttribute").Create(&dup).Error)

	other := AnnotationValue{AnnotationObjectID: obj.ID, AnnotationAttributeID: attr.ID, FrameFrom: 11, Value: "3,3,4,4"}
	assert.NoError(t, db.Omit("AnnotationAttribute").Create(&other).Error)
}

func TestCascadeDelete(t *testing.T) {
	db := openTestDB(t)

	video := Video{Name: "v", Filename: "v.mp4", AllowedObjectTypes: "point"}
	require.NoError(t, db.Create(&video).Error)
	attr := AnnotationAttribute{Name: "position_point", DataType: "position_point", ObjectType: "point"}
	require.NoError(t, db.Create(&attr).Error)
	obj := AnnotationObject{Type: "point", VideoID: video.ID, Values: []AnnotationValue{
		{AnnotationAttributeID: attr.ID, FrameFrom: 0, Value: "1,1"},
	}}
	require.NoError(t, db.Omit("Video").Create(&obj).Error)

	require.NoError(t, db.Delete(&Video{}, video.ID).Error)

	var objects, values int64
	db.Model(&AnnotationObject{}).Count(&objects)
	db.Model(&AnnotationValue{}).Count(&values)
	assert.Zero(t, objects)
	assert.Zero(t, values)
}
