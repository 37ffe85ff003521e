package landmark

import (
	"errors"
	"math"
	"testing"
)

// testTetrahedron is a well spread non-degenerate landmark pattern.
func testTetrahedron() PointSet {
	return PointSet{
		{X: 0, Y: 0, Z: 0},
		{X: 10, Y: 0, Z: 0},
		{X: 0, Y: 8, Z: 0},
		{X: 0, Y: 0, Z: 6},
		{X: 7, Y: 5, Z: 3},
	}
}

// applyAll maps every point of a set through a transform.
func applyAll(points PointSet, t Transform) PointSet {
	out := make(PointSet, len(points))
	for i, p := range points {
		out[i] = t.Apply(p)
	}
	return out
}

// rigidMotion builds a rotation about Z plus a translation.
func rigidMotion(rad, tx, ty, tz float64) LinearTransform {
	m := Identity4()
	m[0][0] = math.Cos(rad)
	m[0][1] = -math.Sin(rad)
	m[1][0] = math.Sin(rad)
	m[1][1] = math.Cos(rad)
	m[0][3] = tx
	m[1][3] = ty
	m[2][3] = tz
	return LinearTransform{Matrix: m}
}

// det3 computes the determinant of the rotation block of a matrix.
func det3(m Matrix4) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

func TestEstimateRigidIdentity(t *testing.T) {
	from := testTetrahedron()

	transform, err := NewEstimator().Estimate(RegistrationRequest{
		From: from,
		To:   from,
		Mode: ModeRigid,
	})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	lt, ok := transform.(LinearTransform)
	if !ok {
		t.Fatalf("Estimate() returned %T, want LinearTransform", transform)
	}

	identity := Identity4()
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(lt.Matrix[i][j]-identity[i][j]) > 1e-9 {
				t.Fatalf("matrix[%d][%d] = %v, want %v", i, j, lt.Matrix[i][j], identity[i][j])
			}
		}
	}

	if rms := RMSError(from, from, transform); !almostEqual(rms, 0) {
		t.Errorf("RMS for coincident sets = %v, want 0", rms)
	}
}

func TestEstimateRigidRecoversMotion(t *testing.T) {
	from := testTetrahedron()
	truth := rigidMotion(math.Pi/6, 12, -3, 5)
	to := applyAll(from, truth)

	transform, err := NewEstimator().Estimate(RegistrationRequest{
		From: from,
		To:   to,
		Mode: ModeRigid,
	})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	lt := transform.(LinearTransform)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(lt.Matrix[i][j]-truth.Matrix[i][j]) > 1e-9 {
				t.Fatalf("matrix[%d][%d] = %v, want %v", i, j, lt.Matrix[i][j], truth.Matrix[i][j])
			}
		}
	}

	if rms := RMSError(from, to, transform); rms > 1e-9 {
		t.Errorf("RMS after exact recovery = %v, want ~0", rms)
	}
}

func TestEstimateSimilarityRecoversScale(t *testing.T) {
	from := testTetrahedron()
	const scale = 2.5

	motion := rigidMotion(math.Pi/4, -7, 2, 9)
	to := make(PointSet, len(from))
	for i, p := range from {
		q := Point{X: p.X * scale, Y: p.Y * scale, Z: p.Z * scale}
		to[i] = motion.Apply(q)
	}

	transform, err := NewEstimator().Estimate(RegistrationRequest{
		From: from,
		To:   to,
		Mode: ModeSimilarity,
	})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	lt := transform.(LinearTransform)

	// Column norm of the linear block is the recovered uniform scale
	col := math.Sqrt(lt.Matrix[0][0]*lt.Matrix[0][0] +
		lt.Matrix[1][0]*lt.Matrix[1][0] +
		lt.Matrix[2][0]*lt.Matrix[2][0])
	if math.Abs(col-scale) > 1e-9 {
		t.Errorf("recovered scale = %v, want %v", col, scale)
	}

	if rms := RMSError(from, to, transform); rms > 1e-9 {
		t.Errorf("RMS after similarity recovery = %v, want ~0", rms)
	}
}

// Forcing rigid mode onto uniformly scaled data cannot absorb the scale,
// so the residual stays well away from zero.
func TestEstimateRigidOnScaledDataHasResidual(t *testing.T) {
	from := testTetrahedron()
	const scale = 2.5

	to := make(PointSet, len(from))
	for i, p := range from {
		to[i] = Point{X: p.X * scale, Y: p.Y * scale, Z: p.Z * scale}
	}

	transform, err := NewEstimator().Estimate(RegistrationRequest{
		From: from,
		To:   to,
		Mode: ModeRigid,
	})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	lt := transform.(LinearTransform)
	if det := det3(lt.Matrix); math.Abs(det-1) > 1e-9 {
		t.Errorf("rotation block determinant = %v, want 1", det)
	}

	if rms := RMSError(from, to, transform); rms < 1 {
		t.Errorf("RMS under forced rigid fit = %v, want a clearly nonzero residual", rms)
	}
}

// A mirrored target must still yield a proper rotation, never a
// reflection.
func TestEstimateRigidRejectsReflection(t *testing.T) {
	from := testTetrahedron()
	to := make(PointSet, len(from))
	for i, p := range from {
		to[i] = Point{X: -p.X, Y: p.Y, Z: p.Z}
	}

	transform, err := NewEstimator().Estimate(RegistrationRequest{
		From: from,
		To:   to,
		Mode: ModeRigid,
	})
	if err != nil {
		t.Fatalf("Estimate() error = %v", err)
	}

	lt := transform.(LinearTransform)
	if d := det3(lt.Matrix); math.Abs(d-1) > 1e-9 {
		t.Errorf("rotation determinant = %v, want +1", d)
	}
}

// Running the same estimate twice must produce identical results.
func TestEstimateIdempotent(t *testing.T) {
	from := testTetrahedron()
	to := applyAll(from, rigidMotion(0.7, 1, 2, 3))
	req := RegistrationRequest{From: from, To: to, Mode: ModeRigid}

	e := NewEstimator()
	first, err := e.Estimate(req)
	if err != nil {
		t.Fatalf("first Estimate() error = %v", err)
	}
	second, err := e.Estimate(req)
	if err != nil {
		t.Fatalf("second Estimate() error = %v", err)
	}

	m1 := first.(LinearTransform).Matrix
	m2 := second.(LinearTransform).Matrix
	if m1 != m2 {
		t.Errorf("repeated estimation differs:\n%v\n%v", m1, m2)
	}
}

func TestEstimateErrors(t *testing.T) {
	good := testTetrahedron()
	collinear := PointSet{
		{X: 0, Y: 0, Z: 0},
		{X: 1, Y: 0, Z: 0},
		{X: 2, Y: 0, Z: 0},
	}

	tests := []struct {
		name    string
		req     RegistrationRequest
		wantErr error
	}{
		{
			name:    "missing from",
			req:     RegistrationRequest{To: good, Mode: ModeRigid},
			wantErr: ErrMissingInput,
		},
		{
			name:    "missing to",
			req:     RegistrationRequest{From: good, Mode: ModeRigid},
			wantErr: ErrMissingInput,
		},
		{
			name:    "too few points",
			req:     RegistrationRequest{From: good[:2], To: good[:2], Mode: ModeRigid},
			wantErr: ErrTooFewPoints,
		},
		{
			name:    "count mismatch",
			req:     RegistrationRequest{From: good[:3], To: good[:4], Mode: ModeRigid},
			wantErr: ErrCountMismatch,
		},
		{
			name:    "collinear from",
			req:     RegistrationRequest{From: collinear, To: good[:3], Mode: ModeRigid},
			wantErr: ErrDegenerateGeometry,
		},
		{
			name:    "collinear to",
			req:     RegistrationRequest{From: good[:3], To: collinear, Mode: ModeRigid},
			wantErr: ErrDegenerateGeometry,
		},
		{
			name: "warping into linear output",
			req: RegistrationRequest{
				From:   good,
				To:     good,
				Mode:   ModeWarping,
				Output: NewLinearTransformHolder(),
			},
			wantErr: ErrUnsupportedOutputKind,
		},
		{
			name:    "invalid mode",
			req:     RegistrationRequest{From: good, To: good, Mode: RegistrationMode(99)},
			wantErr: ErrInvalidMode,
		},
	}

	e := NewEstimator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Estimate(tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Estimate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
