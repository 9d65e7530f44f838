package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Annotator{},
	&Video{},
	&AnnotationAttribute{},
	&AnnotationObject{},
	&AnnotationValue{},
	&Log{},
}

////////////////////////
// USERS
////////////////////////

// Annotator is a user of the annotation tool
type Annotator struct {
	ID              uint           `json:"id" gorm:"primarykey"`
	Email           string         `json:"email" gorm:"size:255;not null;index:idx_annotator_email"`
	PasswordHash    string         `json:"-" gorm:"size:255;not null"`
	Name            string         `json:"name" gorm:"size:255;not null;index:idx_annotator_name"`
	Phone           string         `json:"phone" gorm:"size:255"`
	InternalComment string         `json:"internalComment"`
	IsEnabled       bool           `json:"isEnabled" gorm:"index:idx_annotator_enabled"`
	Options         datatypes.JSON `json:"options"`
	MasterID        *uint          `json:"masterId"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func (*Annotator) TableName() string {
	return "annotators"
}

////////////////////////
// VIDEOS
////////////////////////

// Video is an annotated video and its playback parameters
type Video struct {
	ID                 uint           `json:"id" gorm:"primarykey"`
	Name               string         `json:"name" gorm:"not null"`
	Filename           string         `json:"filename" gorm:"not null"`
	URLDownload        string         `json:"urlDownload"`
	PublicComment      string         `json:"publicComment"`
	FPS                float64        `json:"fps"`
	FrameCount         int            `json:"frameCount"`
	Duration           float64        `json:"duration"`
	Width              int            `json:"width"`
	Height             int            `json:"height"`
	IsEnabled          bool           `json:"isEnabled" gorm:"index:idx_video_enabled;default:true"`
	IsFinished         bool           `json:"isFinished" gorm:"index:idx_video_finished"`
	AllowedObjectTypes string         `json:"allowedObjectTypes" gorm:"column:allowed_annotation_object_types;size:255;not null"` // "|" separated
	Options            datatypes.JSON `json:"options"`
	UploaderID         *uint          `json:"uploaderId"`
	Uploader           *Annotator     `json:"-" gorm:"foreignkey:UploaderID"`
	CreatedAt          time.Time      `json:"createdAt"`

	Annotators []Annotator           `json:"-" gorm:"many2many:bind_video_to_annotator;constraint:OnDelete:CASCADE"`
	Attributes []AnnotationAttribute `json:"-" gorm:"many2many:bind_video_to_annotation_attributes;constraint:OnDelete:CASCADE"`
}

func (*Video) TableName() string {
	return "videos"
}

////////////////////////
// ANNOTATIONS
////////////////////////

// AnnotationAttribute is the reference data describing one attribute
type AnnotationAttribute struct {
	ID            uint           `json:"id" gorm:"primarykey"`
	Name          string         `json:"name" gorm:"size:255;not null;uniqueIndex:idx_attribute_name"`
	IsGlobal      bool           `json:"isGlobal" gorm:"index:idx_attribute_global"`
	Description   string         `json:"description"`
	DataType      string         `json:"dataType" gorm:"size:255;not null"`
	AllowedValues string         `json:"allowedValues"` // "|" separated
	ObjectType    string         `json:"objectType" gorm:"column:annotation_object_type;size:255;not null"`
	Options       datatypes.JSON `json:"options"`
}

func (*AnnotationAttribute) TableName() string {
	return "annotation_attributes"
}

// AnnotationObject is one annotated thing in a video
type AnnotationObject struct {
	ID            uint              `json:"id" gorm:"primarykey"`
	Type          string            `json:"type" gorm:"size:255;not null"`
	PublicComment string            `json:"publicComment"`
	IsVerified    bool              `json:"isVerified" gorm:"index:idx_object_verified"`
	IsEditable    bool              `json:"isEditable" gorm:"default:true"`
	Options       datatypes.JSON    `json:"options"`
	VideoID       uint              `json:"videoId" gorm:"not null;index:idx_object_video_id"`
	Video         Video             `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:VideoID;"`
	CreatedByID   *uint             `json:"createdById"`
	ModifiedByID  *uint             `json:"modifiedById"`
	Values        []AnnotationValue `json:"values" gorm:"foreignkey:AnnotationObjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

func (*AnnotationObject) TableName() string {
	return "annotation_objects"
}

// AnnotationValue is one stored keyframe (local) or the single value of a
// global attribute. Value holds the codec text form.
type AnnotationValue struct {
	ID                    uint                `json:"id" gorm:"primarykey"`
	FrameFrom             int                 `json:"frameFrom" gorm:"index:idx_value_frame_from;uniqueIndex:idx_value_object_attribute_frame,priority:3"`
	Value                 string              `json:"value"`
	Options               datatypes.JSON      `json:"options"`
	AnnotationAttributeID uint                `json:"annotationAttributeId" gorm:"not null;uniqueIndex:idx_value_object_attribute_frame,priority:2"`
	AnnotationAttribute   AnnotationAttribute `json:"-" gorm:"foreignkey:AnnotationAttributeID"`
	AnnotationObjectID    uint                `json:"annotationObjectId" gorm:"not null;uniqueIndex:idx_value_object_attribute_frame,priority:1"`
	CreatedByID           *uint               `json:"createdById"`
	ModifiedByID          *uint               `json:"modifiedById"`
	CreatedAt             time.Time           `json:"createdAt"`
	UpdatedAt             time.Time           `json:"updatedAt"`
}

func (*AnnotationValue) TableName() string {
	return "annotation_values"
}

////////////////////////
// JOURNAL
////////////////////////

// Log is an operational journal entry (cache misses, fetch errors, logins)
type Log struct {
	ID              uint      `json:"id" gorm:"primarykey"`
	CreatedAt       time.Time `json:"createdAt" gorm:"index:idx_log_created_at"`
	CreatedByID     *uint     `json:"createdById"`
	ExecutionNumber int       `json:"executionNumber"`
	Type            string    `json:"type" gorm:"size:255;not null;index:idx_log_type"`
	Value           string    `json:"value"`
}

func (*Log) TableName() string {
	return "logs"
}
