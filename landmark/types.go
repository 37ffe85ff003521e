package landmark

import "fmt"

// Point represents a 3D coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PointSet is an ordered sequence of 3D points. Order is significant: the
// i-th point of a "From" set corresponds to the i-th point of its paired
// "To" set. A nil PointSet means the list has not been supplied at all,
// which is distinct from an empty one.
type PointSet []Point

// Matrix4 is a 4x4 homogeneous transform matrix, row-major
type Matrix4 [4][4]float64

// Identity4 returns the identity transform matrix
func Identity4() Matrix4 {
	return Matrix4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// Mul composes two homogeneous transforms: result = m * other.
// Applying the result is equivalent to applying other first, then m.
func (m Matrix4) Mul(other Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var sum float64
			for k := 0; k < 4; k++ {
				sum += m[i][k] * other[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Apply transforms a point by the homogeneous matrix
func (m Matrix4) Apply(p Point) Point {
	return Point{
		X: m[0][0]*p.X + m[0][1]*p.Y + m[0][2]*p.Z + m[0][3],
		Y: m[1][0]*p.X + m[1][1]*p.Y + m[1][2]*p.Z + m[1][3],
		Z: m[2][0]*p.X + m[2][1]*p.Y + m[2][2]*p.Z + m[2][3],
	}
}

// PointFromPose extracts the 3D position of a tracked probe from its pose
// matrix (the translation column). Used to capture a single landmark from
// a tracker sample; not part of the registration math itself.
func PointFromPose(pose Matrix4) Point {
	return Point{X: pose[0][3], Y: pose[1][3], Z: pose[2][3]}
}

// RegistrationMode selects the transform family to estimate
type RegistrationMode int

const (
	ModeRigid RegistrationMode = iota
	ModeSimilarity
	ModeWarping
)

// String returns the canonical name of the mode
func (m RegistrationMode) String() string {
	switch m {
	case ModeRigid:
		return "Rigid"
	case ModeSimilarity:
		return "Similarity"
	case ModeWarping:
		return "Warping"
	}
	return fmt.Sprintf("RegistrationMode(%d)", int(m))
}

// ParseRegistrationMode parses a mode name from config or API input
func ParseRegistrationMode(s string) (RegistrationMode, error) {
	switch s {
	case "Rigid":
		return ModeRigid, nil
	case "Similarity":
		return ModeSimilarity, nil
	case "Warping":
		return ModeWarping, nil
	}
	return 0, fmt.Errorf("unknown registration mode %q", s)
}

// OutputKind describes what a transform target can store
type OutputKind int

const (
	// LinearOutput targets accept only 4x4 homogeneous matrices
	LinearOutput OutputKind = iota
	// GeneralOutput targets accept any transform, including warping fields
	GeneralOutput
)

func (k OutputKind) String() string {
	switch k {
	case LinearOutput:
		return "Linear"
	case GeneralOutput:
		return "General"
	}
	return fmt.Sprintf("OutputKind(%d)", int(k))
}

// ParseOutputKind parses an output kind name from config or API input
func ParseOutputKind(s string) (OutputKind, error) {
	switch s {
	case "Linear":
		return LinearOutput, nil
	case "General":
		return GeneralOutput, nil
	}
	return 0, fmt.Errorf("unknown output kind %q", s)
}

// UpdateMode controls whether input-change notifications trigger recompute
type UpdateMode int

const (
	UpdateManual UpdateMode = iota
	UpdateAutomatic
)

func (m UpdateMode) String() string {
	switch m {
	case UpdateManual:
		return "Manual"
	case UpdateAutomatic:
		return "Automatic"
	}
	return fmt.Sprintf("UpdateMode(%d)", int(m))
}

// ParseUpdateMode parses an update mode name from config or API input
func ParseUpdateMode(s string) (UpdateMode, error) {
	switch s {
	case "Manual":
		return UpdateManual, nil
	case "Automatic":
		return UpdateAutomatic, nil
	}
	return 0, fmt.Errorf("unknown update mode %q", s)
}

// Transform is the tagged variant produced by estimation: either a linear
// 4x4 matrix or a warping (thin-plate-spline) field. Callers branch on
// Kind rather than type-asserting at the output boundary.
type Transform interface {
	// Kind reports the minimum output capability required to store this
	// transform.
	Kind() OutputKind
	// Apply maps a point from the "From" space to the "To" space.
	Apply(p Point) Point
}

// LinearTransform is a rigid or similarity transform as a 4x4 matrix
type LinearTransform struct {
	Matrix Matrix4 `json:"matrix"`
}

func (t LinearTransform) Kind() OutputKind { return LinearOutput }

func (t LinearTransform) Apply(p Point) Point { return t.Matrix.Apply(p) }

// TransformHolder is the output target of a calibration: an external
// collaborator that stores the computed transform. Linear-only holders
// reject warping transforms explicitly instead of truncating them.
type TransformHolder struct {
	kind      OutputKind
	transform Transform
}

// NewLinearTransformHolder creates a holder that accepts only 4x4 matrices
func NewLinearTransformHolder() *TransformHolder {
	return &TransformHolder{kind: LinearOutput}
}

// NewGeneralTransformHolder creates a holder that accepts any transform
func NewGeneralTransformHolder() *TransformHolder {
	return &TransformHolder{kind: GeneralOutput}
}

// Kind reports the holder's capability
func (h *TransformHolder) Kind() OutputKind { return h.kind }

// Set stores a transform in the holder. Storing a warping transform in a
// linear-only holder fails; a warping field cannot be represented as a
// single matrix.
func (h *TransformHolder) Set(t Transform) error {
	if t.Kind() == GeneralOutput && h.kind == LinearOutput {
		return fmt.Errorf("%w: warping transform cannot be stored in a linear transform target", ErrUnsupportedOutputKind)
	}
	h.transform = t
	return nil
}

// Transform returns the stored transform, or nil if none has been set
func (h *TransformHolder) Transform() Transform { return h.transform }

// RegistrationRequest carries one complete recompute input. The request is
// owned by the caller and treated as immutable for the duration of a
// single Recompute; the engine retains no reference to it afterwards.
type RegistrationRequest struct {
	From   PointSet
	To     PointSet
	Mode   RegistrationMode
	Output *TransformHolder
}

// CalibrationResult is the outcome of one recompute. A new result is
// produced on every attempt and supersedes the previous one entirely.
type CalibrationResult struct {
	Transform     Transform `json:"-"`
	RMSError      float64   `json:"rmsError"`
	StatusMessage string    `json:"statusMessage"`
	Success       bool      `json:"success"`
}
