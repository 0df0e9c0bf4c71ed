package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvroute/internal/command"
	"tvroute/internal/hal"
	"tvroute/internal/hal/sim"
)

func TestPathSet(t *testing.T) {
	s := NewPathSet()
	assert.True(t, s.Add(4))
	assert.True(t, s.Add(3))
	assert.False(t, s.Add(4))
	assert.Equal(t, []command.SessionID{3, 4}, s.IDs())
	assert.True(t, s.Contains(3))

	assert.True(t, s.Remove(3))
	assert.False(t, s.Remove(3))
	assert.Equal(t, 1, s.Len())

	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.IDs())
}

func newTestTracker(t *testing.T) (*PathTracker, *PatchManager, *sim.Hardware, *int) {
	t.Helper()
	mgr, hw, metrics, rec := newTestManager(t)
	released := 0
	tr := NewPathTracker(mgr, metrics, rec.emit, func() { released++ })
	return tr, mgr, hw, &released
}

func TestPathTrackerLastCloseReleases(t *testing.T) {
	tr, mgr, hw, released := newTestTracker(t)
	require.Equal(t, OutcomeCreated, mgr.Reconcile(tunerRequest(hal.DeviceSpeaker)).Outcome)

	tr.Open(3)
	tr.Open(4)
	assert.Equal(t, []command.SessionID{3, 4}, tr.Paths())

	tr.Close(3)
	assert.Equal(t, PatchActive, mgr.State())
	assert.Zero(t, hw.Count(sim.OpReleasePatch))
	assert.Equal(t, []command.SessionID{4}, tr.Paths())

	tr.Close(4)
	assert.Equal(t, NoPatch, mgr.State())
	assert.Equal(t, 1, hw.Count(sim.OpReleasePatch))
	assert.Zero(t, tr.Len())
	assert.Equal(t, 1, *released)
}

func TestPathTrackerOpenCloseRoundTrip(t *testing.T) {
	tr, mgr, hw, _ := newTestTracker(t)
	require.Equal(t, OutcomeCreated, mgr.Reconcile(tunerRequest(hal.DeviceSpeaker)).Outcome)

	tr.Open(5)
	tr.Close(5)
	assert.Equal(t, NoPatch, mgr.State())
	assert.Zero(t, tr.Len())
	assert.Equal(t, 1, hw.Count(sim.OpCreatePatch))
	assert.Equal(t, 1, hw.Count(sim.OpReleasePatch))
}

func TestPathTrackerOpenWithoutPatchClears(t *testing.T) {
	tr, mgr, _, _ := newTestTracker(t)
	require.Equal(t, OutcomeCreated, mgr.Reconcile(tunerRequest(hal.DeviceSpeaker)).Outcome)
	tr.Open(1)
	require.NoError(t, mgr.Release("test"))

	tr.Open(2)
	assert.Zero(t, tr.Len(), "paths never outlive the patch")
}

func TestPathTrackerCloseUnknownIsIgnored(t *testing.T) {
	tr, mgr, hw, released := newTestTracker(t)
	require.Equal(t, OutcomeCreated, mgr.Reconcile(tunerRequest(hal.DeviceSpeaker)).Outcome)
	tr.Open(1)

	tr.Close(9)
	assert.Equal(t, PatchActive, mgr.State())
	assert.Zero(t, hw.Count(sim.OpReleasePatch))
	assert.Zero(t, *released)
}

func TestPathTrackerForceReleaseAll(t *testing.T) {
	tr, mgr, hw, released := newTestTracker(t)
	require.Equal(t, OutcomeCreated, mgr.Reconcile(tunerRequest(hal.DeviceSpeaker)).Outcome)
	tr.Open(1)
	tr.Open(2)

	tr.ForceReleaseAll("client died")
	assert.Zero(t, tr.Len())
	assert.Equal(t, NoPatch, mgr.State())
	assert.Equal(t, 1, hw.Count(sim.OpReleasePatch))
	assert.Equal(t, 1, *released)
}
