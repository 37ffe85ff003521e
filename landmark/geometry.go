package landmark

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultEigenvalueThreshold is the covariance eigenvalue magnitude below
// which a principal axis of a point set is considered collapsed. The value
// is in squared length units of the input coordinates (here millimeters),
// matching the spread of typical tracked-tool fiducial patterns; callers
// working at a very different scale should pass their own threshold.
const DefaultEigenvalueThreshold = 1e-4

// Distance calculates Euclidean distance between two points
func Distance(p1, p2 Point) float64 {
	dx := p2.X - p1.X
	dy := p2.Y - p1.Y
	dz := p2.Z - p1.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Centroid calculates the center of mass of a set of points
func Centroid(points PointSet) Point {
	if len(points) == 0 {
		return Point{}
	}
	var sumX, sumY, sumZ float64
	for _, p := range points {
		sumX += p.X
		sumY += p.Y
		sumZ += p.Z
	}
	n := float64(len(points))
	return Point{X: sumX / n, Y: sumY / n, Z: sumZ / n}
}

// IsDegenerate reports whether the point set spans too few dimensions to
// uniquely determine a 3D registration. It computes the covariance matrix
// of the points about their centroid and counts eigenvalues whose
// magnitude exceeds the threshold; a set with fewer than two significant
// principal axes is collinear or coincident. Pass threshold <= 0 to use
// DefaultEigenvalueThreshold.
func IsDegenerate(points PointSet, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultEigenvalueThreshold
	}
	if len(points) < 3 {
		return true
	}

	c := Centroid(points)
	n := float64(len(points))

	// Covariance about the centroid, population form
	var cov [3][3]float64
	for _, p := range points {
		d := [3]float64{p.X - c.X, p.Y - c.Y, p.Z - c.Z}
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				cov[i][j] += d[i] * d[j] / n
			}
		}
	}

	sym := mat.NewSymDense(3, []float64{
		cov[0][0], cov[0][1], cov[0][2],
		cov[0][1], cov[1][1], cov[1][2],
		cov[0][2], cov[1][2], cov[2][2],
	})

	var eig mat.EigenSym
	if !eig.Factorize(sym, false) {
		// A covariance matrix that defeats the eigensolver carries no
		// usable spread information; treat it as degenerate.
		return true
	}

	significant := 0
	for _, v := range eig.Values(nil) {
		if math.Abs(v) > threshold {
			significant++
		}
	}
	return significant < 2
}

// RMSError applies the transform to every point of from and returns the
// root-mean-square distance to the corresponding point of to. The two
// sets must have equal length. This reports residual quality only; it
// never rejects a result.
func RMSError(from, to PointSet, t Transform) float64 {
	if len(from) == 0 || len(from) != len(to) {
		return math.Inf(1)
	}

	var sumSquared float64
	for i := range from {
		mapped := t.Apply(from[i])
		dx := mapped.X - to[i].X
		dy := mapped.Y - to[i].Y
		dz := mapped.Z - to[i].Z
		sumSquared += dx*dx + dy*dy + dz*dz
	}
	return math.Sqrt(sumSquared / float64(len(from)))
}
