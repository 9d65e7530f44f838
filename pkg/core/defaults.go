package core

// Well-known attribute IDs seeded into every database.
const (
	AttrPositionRectangle uint = 1
	AttrPositionCircle    uint = 2
	AttrPositionPoint     uint = 3
	AttrPositionNonVisual uint = 4
	AttrComment           uint = 100
	AttrShotChange        uint = 101
	AttrIgnored           uint = 102
)

// DefaultAttributes returns the position attributes for each object type
// plus the universal comment, shot_change and ignored attributes.
func DefaultAttributes() []Attribute {
	return []Attribute{
		{ID: AttrPositionRectangle, Name: "position_rectangle", DataType: DataRectangle, ObjectType: ObjectRectangle},
		{ID: AttrPositionCircle, Name: "position_circle", DataType: DataCircle, ObjectType: ObjectCircle},
		{ID: AttrPositionPoint, Name: "position_point", DataType: DataPoint, ObjectType: ObjectPoint},
		{ID: AttrPositionNonVisual, Name: "position_nonvisual", DataType: DataNonVisual, ObjectType: ObjectNonVisual},
		{ID: AttrComment, Name: "comment", DataType: DataText, ObjectType: ObjectNonVisual},
		{ID: AttrShotChange, Name: "shot_change", DataType: DataText, ObjectType: ObjectNonVisual, IsGlobal: true,
			AllowedValues: []string{"cut", "fade", "dissolve", "other", "???"}},
		{ID: AttrIgnored, Name: "ignored", DataType: DataText, ObjectType: ObjectNonVisual, IsGlobal: true},
	}
}

// CheckObjectAttribute verifies that a position attribute draws the kind of
// shape the object is. Non-position attributes fit every object.
func CheckObjectAttribute(obj ObjectType, attr Attribute) error {
	if !attr.DataType.IsPosition() {
		return nil
	}
	if attr.ObjectType != obj {
		return &MismatchError{Object: obj, Attribute: attr.Name, Expected: attr.ObjectType}
	}
	return nil
}

// MismatchError reports a position attribute used on the wrong object type.
type MismatchError struct {
	Object    ObjectType
	Attribute string
	Expected  ObjectType
}

func (e *MismatchError) Error() string {
	return "attribute " + e.Attribute + " belongs to " + string(e.Expected) + " objects, not " + string(e.Object)
}

// Unwrap lets errors.Is match ErrConsistency.
func (e *MismatchError) Unwrap() error {
	return ErrConsistency
}
