package route

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvroute/internal/hal"
	"tvroute/internal/hal/sim"
)

func TestResolveSinks(t *testing.T) {
	ports := sim.DefaultPorts()

	tests := []struct {
		name    string
		devices hal.DeviceClass
		want    []hal.DeviceClass
	}{
		{"speaker", hal.DeviceSpeaker, []hal.DeviceClass{hal.DeviceSpeaker}},
		{"speaker and arc", hal.DeviceSpeaker | hal.DeviceHDMIARC, []hal.DeviceClass{hal.DeviceSpeaker, hal.DeviceHDMIARC}},
		{"unbacked device", hal.DeviceBluetoothA2DP, nil},
		{"none", hal.DeviceNone, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []hal.DeviceClass
			for _, p := range ResolveSinks(ports, tt.devices) {
				assert.Equal(t, hal.Sink, p.Direction)
				got = append(got, p.Class)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindSource(t *testing.T) {
	ports := sim.DefaultPorts()

	p := FindSource(ports, hal.DeviceHDMIIn, "hdmi1")
	require.NotNil(t, p)
	assert.Equal(t, "hdmi_in_1", p.Name)

	p = FindSource(ports, hal.DeviceHDMIIn, "")
	require.NotNil(t, p)
	assert.Equal(t, "hdmi1", p.Address)

	assert.Nil(t, FindSource(ports, hal.DeviceHDMIIn, "hdmi2"))
	// sinks never match a source lookup
	assert.Nil(t, FindSource(ports, hal.DeviceSpeaker, ""))
}

func TestResolveSource(t *testing.T) {
	hw := sim.New(sim.DefaultPorts()...)
	inv := NewInventory(hw)

	p, err := ResolveSource(inv, hal.DeviceNone, "")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Zero(t, hw.Count(sim.OpListPorts), "DeviceNone must not query the hardware")

	p, err = ResolveSource(inv, hal.DeviceTVTuner, "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, hal.DeviceTVTuner, p.Class)

	hw.Fail(sim.OpListPorts, 1)
	_, err = ResolveSource(inv, hal.DeviceTVTuner, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHardwareQuery))
	assert.True(t, errors.Is(err, sim.ErrInjected))
}

func TestSameMembers(t *testing.T) {
	a := hal.PortRef{Class: hal.DeviceSpeaker}
	b := hal.PortRef{Class: hal.DeviceHDMIARC}

	assert.True(t, sameMembers(nil, nil))
	assert.True(t, sameMembers([]hal.PortRef{a, b}, []hal.PortRef{b, a}))
	assert.False(t, sameMembers([]hal.PortRef{a}, []hal.PortRef{a, b}))
	assert.False(t, sameMembers([]hal.PortRef{a, a}, []hal.PortRef{a, b}))
}
