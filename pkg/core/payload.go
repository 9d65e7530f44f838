package core

// Payload is the typed content of an annotation value. The set of
// implementations is closed: Int, Float, Bool, Text, Rectangle, Circle,
// Point and NonVisual.
type Payload interface {
	DataType() DataType
	isPayload()
}

type (
	Int   int64
	Float float64
	Bool  bool
	Text  string
)

// Rectangle is an axis-aligned box given by two corners.
type Rectangle struct {
	X1, Y1, X2, Y2 int
}

// Circle is a centre point and a fractional radius.
type Circle struct {
	X, Y int
	R    float64
}

// Point is a single pixel position.
type Point struct {
	X, Y int
}

// NonVisual marks the presence of an object that is not drawn.
type NonVisual struct{}

func (Int) DataType() DataType       { return DataInt }
func (Float) DataType() DataType     { return DataFloat }
func (Bool) DataType() DataType      { return DataBool }
func (Text) DataType() DataType      { return DataText }
func (Rectangle) DataType() DataType { return DataRectangle }
func (Circle) DataType() DataType    { return DataCircle }
func (Point) DataType() DataType     { return DataPoint }
func (NonVisual) DataType() DataType { return DataNonVisual }

func (Int) isPayload()       {}
func (Float) isPayload()     {}
func (Bool) isPayload()      {}
func (Text) isPayload()      {}
func (Rectangle) isPayload() {}
func (Circle) isPayload()    {}
func (Point) isPayload()     {}
func (NonVisual) isPayload() {}

// Normalize returns the rectangle with X1<=X2 and Y1<=Y2.
func (r Rectangle) Normalize() Rectangle {
	if r.X1 > r.X2 {
		r.X1, r.X2 = r.X2, r.X1
	}
	if r.Y1 > r.Y2 {
		r.Y1, r.Y2 = r.Y2, r.Y1
	}
	return r
}
