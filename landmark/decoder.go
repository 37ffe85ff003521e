package landmark

import (
	"encoding/json"
	"fmt"
)

// DecodePoints parses a landmark list payload. Two wire formats are
// accepted: an array of {x,y,z} objects, or an array of [x,y,z] triples.
func DecodePoints(payload []byte) (PointSet, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty points payload")
	}

	var objects []Point
	if err := json.Unmarshal(payload, &objects); err == nil {
		return PointSet(objects), nil
	}

	var triples [][]float64
	if err := json.Unmarshal(payload, &triples); err != nil {
		return nil, fmt.Errorf("parsing points payload: %w", err)
	}

	points := make(PointSet, len(triples))
	for i, t := range triples {
		if len(t) != 3 {
			return nil, fmt.Errorf("point %d has %d coordinates, expected 3", i, len(t))
		}
		points[i] = Point{X: t[0], Y: t[1], Z: t[2]}
	}
	return points, nil
}

// DecodePose parses a probe pose payload: a 4x4 homogeneous matrix as
// either a flat array of 16 values (row-major) or four rows of four.
func DecodePose(payload []byte) (Matrix4, error) {
	var pose Matrix4

	var flat []float64
	if err := json.Unmarshal(payload, &flat); err == nil {
		if len(flat) != 16 {
			return pose, fmt.Errorf("pose payload has %d values, expected 16", len(flat))
		}
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				pose[i][j] = flat[i*4+j]
			}
		}
		return pose, nil
	}

	var rows [][]float64
	if err := json.Unmarshal(payload, &rows); err != nil {
		return pose, fmt.Errorf("parsing pose payload: %w", err)
	}
	if len(rows) != 4 {
		return pose, fmt.Errorf("pose payload has %d rows, expected 4", len(rows))
	}
	for i, row := range rows {
		if len(row) != 4 {
			return pose, fmt.Errorf("pose row %d has %d values, expected 4", i, len(row))
		}
		copy(pose[i][:], row)
	}
	return pose, nil
}
