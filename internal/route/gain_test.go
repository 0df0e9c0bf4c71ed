package route

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvroute/internal/hal"
)

func defaultCurve(t *testing.T) *VolumeCurve {
	t.Helper()
	vc, err := NewVolumeCurve(DefaultVolumeCurve)
	require.NoError(t, err)
	return vc
}

func TestNewVolumeCurveRejectsBadPoints(t *testing.T) {
	_, err := NewVolumeCurve([]CurvePoint{{Percent: 50, DB: -10}})
	assert.Error(t, err)

	_, err = NewVolumeCurve([]CurvePoint{{Percent: 50, DB: -10}, {Percent: 50, DB: -5}})
	assert.Error(t, err)
}

func TestVolumeCurveDB(t *testing.T) {
	vc := defaultCurve(t)

	assert.True(t, math.IsInf(vc.DB(0, 15), -1))
	assert.Equal(t, 0.0, vc.DB(15, 15))
	assert.Equal(t, 0.0, vc.DB(20, 15), "above max clamps to the last point")
	assert.InDelta(t, -40.0, vc.DB(20, 100), 1e-9)
	assert.InDelta(t, -28.5, vc.DB(40, 100), 1e-9)
	assert.Equal(t, -58.0, vc.DB(1, 1000), "below the first point clamps")
}

func TestGainForSnapsToStep(t *testing.T) {
	vc := defaultCurve(t)
	port := hal.Port{
		Class: hal.DeviceTVTuner,
		Gain:  hal.GainDescriptor{Min: -6400, Max: 0, Step: 100},
	}

	gc, ok := vc.GainFor(port, 40, 100)
	require.True(t, ok)
	// -28.5 dB is -2850 mB, snapped down onto the 100 mB grid from -6400
	assert.Equal(t, []int{-2900}, gc.Values)
	assert.Equal(t, hal.GainModeJoint, gc.Mode)

	gc, _ = vc.GainFor(port, 0, 100)
	assert.Equal(t, []int{-6400}, gc.Values)

	gc, _ = vc.GainFor(port, 100, 100)
	assert.Equal(t, []int{0}, gc.Values)
}

func TestGainForUsesActiveMask(t *testing.T) {
	vc := defaultCurve(t)
	port := hal.Port{
		Gain:   hal.GainDescriptor{Min: -6400, Max: 0, Step: 100},
		Active: &hal.PortConfig{Mask: hal.InStereo},
	}
	gc, ok := vc.GainFor(port, 10, 15)
	require.True(t, ok)
	assert.Equal(t, hal.InStereo, gc.ChannelMask)
}

func TestGainForWithoutControl(t *testing.T) {
	vc := defaultCurve(t)
	_, ok := vc.GainFor(hal.Port{Class: hal.DeviceSpeaker}, 10, 15)
	assert.False(t, ok)
}
