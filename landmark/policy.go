package landmark

import "log"

// UpdatePolicy decides whether an input-change notification triggers a
// recompute. In Automatic mode every input change recomputes immediately;
// in Manual mode changes are recorded as pending until an explicit
// RecomputeNow. Generic change notifications (a result or status being
// written back, for example) never recompute; that distinction is what
// prevents a recompute from re-triggering itself.
type UpdatePolicy struct {
	controller *Controller
	mode       UpdateMode
	pending    bool
}

// NewUpdatePolicy creates a policy in the given mode. New policies
// default to Manual when constructed with the zero UpdateMode.
func NewUpdatePolicy(c *Controller, mode UpdateMode) *UpdatePolicy {
	return &UpdatePolicy{controller: c, mode: mode}
}

// Mode returns the current update mode
func (p *UpdatePolicy) Mode() UpdateMode { return p.mode }

// SetMode switches between Manual and Automatic. Switching to Automatic
// does not recompute by itself; the next input change (or an explicit
// RecomputeNow) does.
func (p *UpdatePolicy) SetMode(mode UpdateMode) { p.mode = mode }

// Pending reports whether an input change arrived while in Manual mode
// and has not yet been recomputed.
func (p *UpdatePolicy) Pending() bool { return p.pending }

// OnInputChanged handles an "input data changed" notification. It returns
// the result and true when a recompute ran, or a zero result and false
// when the policy deferred it (Manual mode).
func (p *UpdatePolicy) OnInputChanged(req RegistrationRequest) (CalibrationResult, bool) {
	if p.mode != UpdateAutomatic {
		p.pending = true
		return CalibrationResult{}, false
	}
	p.pending = false
	return p.controller.Recompute(req), true
}

// OnGenericChanged handles a notification that some non-input field of
// the configuration changed. It deliberately does nothing: recomputing
// here would loop, since writing a result is itself such a change.
func (p *UpdatePolicy) OnGenericChanged() {
	log.Printf("[CALIB] generic change notification ignored (mode=%v)", p.mode)
}

// RecomputeNow runs a recompute regardless of mode, clearing any pending
// marker. This is the explicit path used while in Manual mode.
func (p *UpdatePolicy) RecomputeNow(req RegistrationRequest) CalibrationResult {
	p.pending = false
	return p.controller.Recompute(req)
}
