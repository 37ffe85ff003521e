package landmark

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Registration error taxonomy. All are recoverable configuration errors;
// the controller converts them into status messages and never lets them
// escape its public boundary.
var (
	ErrMissingInput          = errors.New("input point set is not defined")
	ErrMissingOutput         = errors.New("output transform target is not defined")
	ErrTooFewPoints          = errors.New("too few points")
	ErrCountMismatch         = errors.New("point sets have unequal sizes")
	ErrDegenerateGeometry    = errors.New("degenerate point geometry")
	ErrUnsupportedOutputKind = errors.New("unsupported output kind")
	ErrInvalidMode           = errors.New("invalid registration mode")
)

// MinimumPoints is the smallest point count that determines a 3D
// registration of any supported mode.
const MinimumPoints = 3

// Estimator computes point-based registration transforms. The zero value
// is usable and applies DefaultEigenvalueThreshold for degeneracy checks.
type Estimator struct {
	// EigenvalueThreshold is passed to IsDegenerate; <= 0 selects the
	// package default.
	EigenvalueThreshold float64
}

// NewEstimator returns an estimator with the default degeneracy threshold
func NewEstimator() *Estimator {
	return &Estimator{EigenvalueThreshold: DefaultEigenvalueThreshold}
}

// Estimate produces the transform requested by req. The controller
// validates requests before calling this, but the preconditions are
// re-asserted here so the estimator is safe to use on its own.
func (e *Estimator) Estimate(req RegistrationRequest) (Transform, error) {
	if req.From == nil {
		return nil, fmt.Errorf("%w: 'From' list", ErrMissingInput)
	}
	if req.To == nil {
		return nil, fmt.Errorf("%w: 'To' list", ErrMissingInput)
	}
	if len(req.From) < MinimumPoints || len(req.To) < MinimumPoints {
		return nil, fmt.Errorf("%w: need at least %d, got %d and %d",
			ErrTooFewPoints, MinimumPoints, len(req.From), len(req.To))
	}
	if len(req.From) != len(req.To) {
		return nil, fmt.Errorf("%w: 'From' has %d, 'To' has %d",
			ErrCountMismatch, len(req.From), len(req.To))
	}
	if IsDegenerate(req.From, e.EigenvalueThreshold) {
		return nil, fmt.Errorf("%w: 'From' list", ErrDegenerateGeometry)
	}
	if IsDegenerate(req.To, e.EigenvalueThreshold) {
		return nil, fmt.Errorf("%w: 'To' list", ErrDegenerateGeometry)
	}

	switch req.Mode {
	case ModeRigid, ModeSimilarity:
		return estimateLinear(req.From, req.To, req.Mode)
	case ModeWarping:
		if req.Output != nil && req.Output.Kind() == LinearOutput {
			return nil, fmt.Errorf("%w: warping transform requires a general output target", ErrUnsupportedOutputKind)
		}
		return NewWarpingTransform(req.From, req.To)
	}
	return nil, fmt.Errorf("%w: %v", ErrInvalidMode, req.Mode)
}

// estimateLinear solves the orthogonal Procrustes problem: the rotation,
// translation and (for similarity mode) uniform scale minimizing the total
// squared landmark distance. Closed form via SVD of the cross-covariance
// matrix, with the standard reflection correction.
func estimateLinear(from, to PointSet, mode RegistrationMode) (Transform, error) {
	cf := Centroid(from)
	ct := Centroid(to)

	// Cross-covariance H = sum(from_c * to_c^T) and source spread
	h := mat.NewDense(3, 3, nil)
	var normFrom float64
	for i := range from {
		f := [3]float64{from[i].X - cf.X, from[i].Y - cf.Y, from[i].Z - cf.Z}
		t := [3]float64{to[i].X - ct.X, to[i].Y - ct.Y, to[i].Z - ct.Z}
		for r := 0; r < 3; r++ {
			for c := 0; c < 3; c++ {
				h.Set(r, c, h.At(r, c)+f[r]*t[c])
			}
		}
		normFrom += f[0]*f[0] + f[1]*f[1] + f[2]*f[2]
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return nil, fmt.Errorf("%w: cross-covariance SVD failed", ErrDegenerateGeometry)
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	sigma := svd.Values(nil)

	var rot mat.Dense
	rot.Mul(&v, u.T())

	// Reflection correction: if det(R) < 0, flip the axis of the smallest
	// singular value (singular values are sorted descending, so index 2).
	sign := 1.0
	if mat.Det(&rot) < 0 {
		for r := 0; r < 3; r++ {
			v.Set(r, 2, -v.At(r, 2))
		}
		rot.Mul(&v, u.T())
		sign = -1.0
	}

	scale := 1.0
	if mode == ModeSimilarity {
		if normFrom == 0 {
			return nil, fmt.Errorf("%w: coincident 'From' points", ErrDegenerateGeometry)
		}
		scale = (sigma[0] + sigma[1] + sign*sigma[2]) / normFrom
	}

	// t = centroid_to - s*R*centroid_from
	m := Identity4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = scale * rot.At(r, c)
		}
	}
	m[0][3] = ct.X - (m[0][0]*cf.X + m[0][1]*cf.Y + m[0][2]*cf.Z)
	m[1][3] = ct.Y - (m[1][0]*cf.X + m[1][1]*cf.Y + m[1][2]*cf.Z)
	m[2][3] = ct.Z - (m[2][0]*cf.X + m[2][1]*cf.Y + m[2][2]*cf.Z)

	return LinearTransform{Matrix: m}, nil
}
