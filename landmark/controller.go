package landmark

import (
	"errors"
	"fmt"
	"log"
)

// Controller validates registration requests, runs the estimator and
// reports the outcome. It never returns an error: every failure path is
// captured as a CalibrationResult with Success=false and a status message
// naming the violated precondition, so a UI can always display something
// meaningful.
type Controller struct {
	estimator *Estimator
}

// NewController creates a controller around the given estimator. A nil
// estimator selects the default one.
func NewController(est *Estimator) *Controller {
	if est == nil {
		est = NewEstimator()
	}
	return &Controller{estimator: est}
}

// Recompute validates req, estimates the transform, writes it to the
// request's output target and measures the residual error. Validation
// short-circuits on the first failing check.
func (c *Controller) Recompute(req RegistrationRequest) CalibrationResult {
	if req.From == nil {
		return failure("'From' fiducial list is not defined.")
	}
	if req.To == nil {
		return failure("'To' fiducial list is not defined.")
	}
	if req.Output == nil {
		return failure("Output transform is not defined.")
	}
	if len(req.From) < MinimumPoints {
		return failure(fmt.Sprintf("'From' fiducial list has too few fiducials (minimum %d required).", MinimumPoints))
	}
	if len(req.To) < MinimumPoints {
		return failure(fmt.Sprintf("'To' fiducial list has too few fiducials (minimum %d required).", MinimumPoints))
	}
	if len(req.From) != len(req.To) {
		return failure(fmt.Sprintf("Fiducial lists have unequal number of fiducials ('From' has %d, 'To' has %d).",
			len(req.From), len(req.To)))
	}
	if IsDegenerate(req.From, c.estimator.EigenvalueThreshold) {
		return failure("'From' fiducial list has strictly collinear points.")
	}
	if IsDegenerate(req.To, c.estimator.EigenvalueThreshold) {
		return failure("'To' fiducial list has strictly collinear points.")
	}
	if req.Mode == ModeWarping && req.Output.Kind() == LinearOutput {
		return failure("Warping transform cannot be stored in a linear transform target.")
	}

	transform, err := c.estimator.Estimate(req)
	if err != nil {
		return failure(statusForError(err))
	}

	if err := req.Output.Set(transform); err != nil {
		log.Printf("[CALIB] failed to store %v transform in %v target: %v",
			req.Mode, req.Output.Kind(), err)
		return failure("Warping transform cannot be stored in a linear transform target.")
	}

	rms := RMSError(req.From, req.To, transform)
	return CalibrationResult{
		Transform:     transform,
		RMSError:      rms,
		StatusMessage: fmt.Sprintf("Success! RMS Error: %g", rms),
		Success:       true,
	}
}

// statusForError maps estimation errors onto user-visible status text.
// The controller's own validation catches most of these first; this
// covers failures surfacing from inside the numerics (a degenerate SVD,
// a singular spline system).
func statusForError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMode):
		return "Invalid registration mode."
	case errors.Is(err, ErrDegenerateGeometry):
		return "Fiducial geometry is degenerate; registration could not be computed."
	case errors.Is(err, ErrUnsupportedOutputKind):
		return "Warping transform cannot be stored in a linear transform target."
	}
	return fmt.Sprintf("Registration failed: %v.", err)
}

func failure(msg string) CalibrationResult {
	return CalibrationResult{StatusMessage: msg, Success: false}
}
