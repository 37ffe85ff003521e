package landmark

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// WarpingTransform is an interpolating thin-plate-spline map. It carries
// each control point exactly onto its target (zero residual at the
// landmarks by construction) and interpolates with minimum bending energy
// elsewhere. In 3D the spline kernel is U(r) = r.
type WarpingTransform struct {
	controls PointSet
	// weights holds the solved coefficients: one row per control point
	// (kernel weights) followed by four rows for the affine part
	// (1, x, y, z), with one column per output coordinate.
	weights *mat.Dense
}

func (t *WarpingTransform) Kind() OutputKind { return GeneralOutput }

// NewWarpingTransform solves the thin-plate-spline interpolation problem
// mapping each point of from onto the corresponding point of to. Duplicate
// or otherwise rank-deficient control points make the spline system
// singular and are reported as degenerate geometry.
func NewWarpingTransform(from, to PointSet) (*WarpingTransform, error) {
	if len(from) != len(to) {
		return nil, fmt.Errorf("%w: 'From' has %d, 'To' has %d", ErrCountMismatch, len(from), len(to))
	}
	if len(from) < MinimumPoints {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrTooFewPoints, MinimumPoints, len(from))
	}

	n := len(from)
	size := n + 4

	// L = | K  P |   K_ij = U(|c_i - c_j|),  P_i = [1 x_i y_i z_i]
	//     | Pt 0 |
	l := mat.NewDense(size, size, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				l.Set(i, j, Distance(from[i], from[j]))
			}
		}
		l.Set(i, n, 1)
		l.Set(i, n+1, from[i].X)
		l.Set(i, n+2, from[i].Y)
		l.Set(i, n+3, from[i].Z)
		l.Set(n, i, 1)
		l.Set(n+1, i, from[i].X)
		l.Set(n+2, i, from[i].Y)
		l.Set(n+3, i, from[i].Z)
	}

	rhs := mat.NewDense(size, 3, nil)
	for i := 0; i < n; i++ {
		rhs.Set(i, 0, to[i].X)
		rhs.Set(i, 1, to[i].Y)
		rhs.Set(i, 2, to[i].Z)
	}

	var weights mat.Dense
	if err := weights.Solve(l, rhs); err != nil {
		return nil, fmt.Errorf("%w: thin-plate-spline system is singular", ErrDegenerateGeometry)
	}

	controls := make(PointSet, n)
	copy(controls, from)

	return &WarpingTransform{controls: controls, weights: &weights}, nil
}

// Apply evaluates the spline at p
func (t *WarpingTransform) Apply(p Point) Point {
	n := len(t.controls)

	var out [3]float64
	for d := 0; d < 3; d++ {
		out[d] = t.weights.At(n, d) +
			t.weights.At(n+1, d)*p.X +
			t.weights.At(n+2, d)*p.Y +
			t.weights.At(n+3, d)*p.Z
	}

	for i := 0; i < n; i++ {
		u := Distance(p, t.controls[i])
		for d := 0; d < 3; d++ {
			out[d] += t.weights.At(i, d) * u
		}
	}

	return Point{X: out[0], Y: out[1], Z: out[2]}
}

// ControlPoints returns a copy of the spline's source landmarks
func (t *WarpingTransform) ControlPoints() PointSet {
	out := make(PointSet, len(t.controls))
	copy(out, t.controls)
	return out
}
