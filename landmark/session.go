package landmark

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// ErrUnknownSession is returned when an identifier does not resolve to a
// configured calibration session.
var ErrUnknownSession = errors.New("unknown calibration session")

// PointList names one of the two landmark lists of a session
type PointList int

const (
	FromList PointList = iota
	ToList
)

func (l PointList) String() string {
	if l == FromList {
		return "From"
	}
	return "To"
}

// ParsePointList parses a list name from API or topic input
func ParsePointList(s string) (PointList, error) {
	switch s {
	case "from", "From":
		return FromList, nil
	case "to", "To":
		return ToList, nil
	}
	return 0, fmt.Errorf("unknown point list %q", s)
}

// Session is one named calibration configuration: its landmark lists, the
// registration mode, the output target and its update policy. Sessions
// are owned and serialized by the SessionTracker.
type Session struct {
	ID     string
	Mode   RegistrationMode
	From   PointSet
	To     PointSet
	Output *TransformHolder
	Policy *UpdatePolicy

	// LastResult is the most recent recompute outcome, superseded
	// wholesale by the next one. Nil until the first attempt.
	LastResult *CalibrationResult
}

// ResultHandler is invoked after every recompute a session performs,
// automatic or explicit. Used by the service layer to publish results.
type ResultHandler func(sessionID string, result CalibrationResult)

// SessionTracker holds all calibration sessions and funnels every state
// change through their update policies. All methods are safe for
// concurrent use; each recompute runs to completion under the lock, which
// also provides the call-scoped exclusivity the engine requires.
type SessionTracker struct {
	mu         sync.RWMutex
	controller *Controller
	sessions   map[string]*Session
	onResult   ResultHandler
}

// NewSessionTracker creates an empty tracker around the given controller.
// A nil controller selects the default one.
func NewSessionTracker(c *Controller) *SessionTracker {
	if c == nil {
		c = NewController(nil)
	}
	return &SessionTracker{
		controller: c,
		sessions:   make(map[string]*Session),
	}
}

// SetResultHandler registers a callback invoked after each recompute
func (t *SessionTracker) SetResultHandler(h ResultHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onResult = h
}

// AddSession registers a new session. The output holder capability
// follows the requested kind; update mode defaults to Manual unless
// configured otherwise.
func (t *SessionTracker) AddSession(id string, mode RegistrationMode, output OutputKind, update UpdateMode) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.sessions[id]; exists {
		return nil, fmt.Errorf("session %q already exists", id)
	}

	holder := NewLinearTransformHolder()
	if output == GeneralOutput {
		holder = NewGeneralTransformHolder()
	}

	s := &Session{
		ID:     id,
		Mode:   mode,
		Output: holder,
		Policy: NewUpdatePolicy(t.controller, update),
	}
	t.sessions[id] = s
	log.Printf("[SESSION] registered %s (mode=%v, output=%v, update=%v)", id, mode, output, update)
	return s, nil
}

// Sessions returns all registered session IDs, sorted
func (t *SessionTracker) Sessions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StatusMessage returns the session's current calibration status text.
// Sessions that have never recomputed report an empty message. An unknown
// ID is reported as a distinct error rather than an empty status.
func (t *SessionTracker) StatusMessage(id string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	if s.LastResult == nil {
		return "", nil
	}
	return s.LastResult.StatusMessage, nil
}

// Result returns a copy of the session's most recent recompute outcome,
// or nil if no recompute has happened yet.
func (t *SessionTracker) Result(id string) (*CalibrationResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	if s.LastResult == nil {
		return nil, nil
	}
	res := *s.LastResult
	return &res, nil
}

// Points returns copies of the session's current landmark lists
func (t *SessionTracker) Points(id string) (from, to PointSet, err error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	if s.From != nil {
		from = make(PointSet, len(s.From))
		copy(from, s.From)
	}
	if s.To != nil {
		to = make(PointSet, len(s.To))
		copy(to, s.To)
	}
	return from, to, nil
}

// SetPoints replaces one landmark list of a session and fires the
// input-changed path. The returned result is nil when the session is in
// Manual mode and the recompute was deferred.
func (t *SessionTracker) SetPoints(id string, list PointList, points PointSet) (*CalibrationResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}

	stored := make(PointSet, len(points))
	copy(stored, points)
	if list == FromList {
		s.From = stored
	} else {
		s.To = stored
	}

	return t.inputChangedLocked(s), nil
}

// AddProbePoint appends the position of a tracked probe pose to one of
// the session's landmark lists and fires the input-changed path.
func (t *SessionTracker) AddProbePoint(id string, list PointList, pose Matrix4) (*CalibrationResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}

	p := PointFromPose(pose)
	if list == FromList {
		s.From = append(s.From, p)
	} else {
		s.To = append(s.To, p)
	}
	log.Printf("[SESSION] %s: captured probe point (%.2f, %.2f, %.2f) into '%v' list",
		id, p.X, p.Y, p.Z, list)

	return t.inputChangedLocked(s), nil
}

// NotifyGenericChanged delivers a non-input change notification to the
// session's policy. It never recomputes.
func (t *SessionTracker) NotifyGenericChanged(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	s.Policy.OnGenericChanged()
	return nil
}

// Recompute runs an explicit recompute for the session regardless of its
// update mode.
func (t *SessionTracker) Recompute(id string) (CalibrationResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return CalibrationResult{}, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}

	result := s.Policy.RecomputeNow(t.requestFor(s))
	t.recordLocked(s, result)
	return result, nil
}

// SetUpdateMode switches a session between Manual and Automatic
func (t *SessionTracker) SetUpdateMode(id string, mode UpdateMode) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	s.Policy.SetMode(mode)
	log.Printf("[SESSION] %s: update mode set to %v", id, mode)
	return nil
}

// UpdateMode returns a session's current update mode
func (t *SessionTracker) UpdateMode(id string) (UpdateMode, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.sessions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSession, id)
	}
	return s.Policy.Mode(), nil
}

// inputChangedLocked routes an input change through the session's policy
// and records the result if a recompute ran. Caller holds the lock.
func (t *SessionTracker) inputChangedLocked(s *Session) *CalibrationResult {
	result, ran := s.Policy.OnInputChanged(t.requestFor(s))
	if !ran {
		log.Printf("[SESSION] %s: input changed, recompute deferred (Manual mode)", s.ID)
		return nil
	}
	t.recordLocked(s, result)
	return &result
}

// requestFor builds a one-shot registration request from session state
func (t *SessionTracker) requestFor(s *Session) RegistrationRequest {
	return RegistrationRequest{
		From:   s.From,
		To:     s.To,
		Mode:   s.Mode,
		Output: s.Output,
	}
}

func (t *SessionTracker) recordLocked(s *Session, result CalibrationResult) {
	s.LastResult = &result
	log.Printf("[SESSION] %s: recompute finished (success=%v): %s", s.ID, result.Success, result.StatusMessage)
	if t.onResult != nil {
		t.onResult(s.ID, result)
	}
}
