package landmark

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T, update UpdateMode) *SessionTracker {
	t.Helper()
	tracker := NewSessionTracker(nil)
	_, err := tracker.AddSession("probe", ModeRigid, LinearOutput, update)
	require.NoError(t, err)
	return tracker
}

func TestAddSessionValidation(t *testing.T) {
	tracker := NewSessionTracker(nil)

	_, err := tracker.AddSession("", ModeRigid, LinearOutput, UpdateManual)
	assert.Error(t, err, "empty session id must be rejected")

	_, err = tracker.AddSession("a", ModeRigid, LinearOutput, UpdateManual)
	assert.NoError(t, err)
	_, err = tracker.AddSession("a", ModeRigid, LinearOutput, UpdateManual)
	assert.Error(t, err, "duplicate session id must be rejected")
}

func TestSessionsSorted(t *testing.T) {
	tracker := NewSessionTracker(nil)
	for _, id := range []string{"c", "a", "b"} {
		_, err := tracker.AddSession(id, ModeRigid, LinearOutput, UpdateManual)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, tracker.Sessions())
}

func TestUnknownSession(t *testing.T) {
	tracker := NewSessionTracker(nil)

	_, err := tracker.StatusMessage("ghost")
	assert.True(t, errors.Is(err, ErrUnknownSession))

	_, err = tracker.Recompute("ghost")
	assert.True(t, errors.Is(err, ErrUnknownSession))

	_, err = tracker.SetPoints("ghost", FromList, nil)
	assert.True(t, errors.Is(err, ErrUnknownSession))
}

func TestStatusMessageBeforeFirstRecompute(t *testing.T) {
	tracker := newTestTracker(t, UpdateManual)

	msg, err := tracker.StatusMessage("probe")
	require.NoError(t, err)
	assert.Empty(t, msg, "status must be empty before the first recompute")

	result, err := tracker.Result("probe")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestManualSessionDefersUntilRecompute(t *testing.T) {
	tracker := newTestTracker(t, UpdateManual)
	from := testTetrahedron()
	to := applyAll(from, rigidMotion(math.Pi/8, 2, 0, -1))

	result, err := tracker.SetPoints("probe", FromList, from)
	require.NoError(t, err)
	assert.Nil(t, result, "Manual mode must defer the recompute")

	result, err = tracker.SetPoints("probe", ToList, to)
	require.NoError(t, err)
	assert.Nil(t, result)

	final, err := tracker.Recompute("probe")
	require.NoError(t, err)
	assert.True(t, final.Success, final.StatusMessage)
	assert.InDelta(t, 0, final.RMSError, 1e-9)

	msg, err := tracker.StatusMessage("probe")
	require.NoError(t, err)
	assert.Contains(t, msg, "Success! RMS Error:")
}

func TestAutomaticSessionRecomputesOnInput(t *testing.T) {
	tracker := newTestTracker(t, UpdateAutomatic)
	from := testTetrahedron()

	// First list alone cannot register yet; the attempt still runs and
	// records a failure status.
	result, err := tracker.SetPoints("probe", FromList, from)
	require.NoError(t, err)
	require.NotNil(t, result, "Automatic mode must recompute on input change")
	assert.False(t, result.Success)
	assert.Equal(t, "'To' fiducial list is not defined.", result.StatusMessage)

	result, err = tracker.SetPoints("probe", ToList, from)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success, result.StatusMessage)
}

func TestAddProbePoint(t *testing.T) {
	tracker := newTestTracker(t, UpdateManual)

	pose := Identity4()
	pose[0][3] = 1.5
	pose[1][3] = -2.5
	pose[2][3] = 3.5

	_, err := tracker.AddProbePoint("probe", FromList, pose)
	require.NoError(t, err)

	from, _, err := tracker.Points("probe")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, Point{X: 1.5, Y: -2.5, Z: 3.5}, from[0])
}

func TestPointsReturnsCopies(t *testing.T) {
	tracker := newTestTracker(t, UpdateManual)
	_, err := tracker.SetPoints("probe", FromList, testTetrahedron())
	require.NoError(t, err)

	from, _, err := tracker.Points("probe")
	require.NoError(t, err)
	from[0].X = 999

	again, _, err := tracker.Points("probe")
	require.NoError(t, err)
	assert.NotEqual(t, 999.0, again[0].X, "Points must return copies, not internal slices")
}

func TestResultHandlerInvoked(t *testing.T) {
	tracker := newTestTracker(t, UpdateAutomatic)

	var gotID string
	var gotResults []CalibrationResult
	tracker.SetResultHandler(func(id string, result CalibrationResult) {
		gotID = id
		gotResults = append(gotResults, result)
	})

	from := testTetrahedron()
	_, err := tracker.SetPoints("probe", FromList, from)
	require.NoError(t, err)
	_, err = tracker.SetPoints("probe", ToList, from)
	require.NoError(t, err)

	assert.Equal(t, "probe", gotID)
	require.Len(t, gotResults, 2, "every recompute attempt must be reported")
	assert.False(t, gotResults[0].Success)
	assert.True(t, gotResults[1].Success)
}

func TestNotifyGenericChangedNeverRecomputes(t *testing.T) {
	tracker := newTestTracker(t, UpdateAutomatic)

	var calls int
	tracker.SetResultHandler(func(string, CalibrationResult) { calls++ })

	require.NoError(t, tracker.NotifyGenericChanged("probe"))
	assert.Zero(t, calls, "generic change must not trigger a recompute")
}

func TestSetUpdateMode(t *testing.T) {
	tracker := newTestTracker(t, UpdateManual)

	mode, err := tracker.UpdateMode("probe")
	require.NoError(t, err)
	assert.Equal(t, UpdateManual, mode)

	require.NoError(t, tracker.SetUpdateMode("probe", UpdateAutomatic))

	from := testTetrahedron()
	result, err := tracker.SetPoints("probe", FromList, from)
	require.NoError(t, err)
	assert.NotNil(t, result, "session switched to Automatic must recompute on input")
}
