package route

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvroute/internal/hal"
	"tvroute/internal/hal/sim"
)

func portsByClass(t *testing.T, class hal.DeviceClass) hal.Port {
	t.Helper()
	for _, p := range sim.DefaultPorts() {
		if p.Class == class {
			return p
		}
	}
	t.Fatalf("no default port of class %s", class)
	return hal.Port{}
}

func TestNegotiateTunerToSpeaker(t *testing.T) {
	tuner := portsByClass(t, hal.DeviceTVTuner)
	speaker := portsByClass(t, hal.DeviceSpeaker)

	n := Negotiate(tuner, []hal.Port{speaker}, hal.Format{})

	require.Len(t, n.Sinks, 1)
	assert.Equal(t, hal.PortConfig{Port: speaker.Ref(), SampleRate: 48000, Mask: hal.OutStereo, Encoding: hal.EncodingPCM16}, n.Sinks[0])
	assert.Equal(t, hal.PortConfig{Port: tuner.Ref(), SampleRate: 48000, Mask: hal.InStereo, Encoding: hal.EncodingPCM16}, n.Source)
	assert.True(t, n.Reconfigure)
	assert.True(t, n.SourceReconfigure)
	assert.Equal(t, []bool{true}, n.SinkReconfigure)
}

func TestNegotiateUnsupportedRequestFallsBackToDefault(t *testing.T) {
	tuner := portsByClass(t, hal.DeviceTVTuner)
	speaker := portsByClass(t, hal.DeviceSpeaker)

	n := Negotiate(tuner, []hal.Port{speaker}, hal.Format{SampleRate: 96000, Mask: hal.Out5Point1, Encoding: hal.EncodingAC3})

	sink := n.Sinks[0]
	assert.Equal(t, 48000, sink.SampleRate)
	assert.Equal(t, hal.ChannelDefault, sink.Mask)
	assert.Equal(t, hal.EncodingDefault, sink.Encoding)
	// no source mask has zero channels
	assert.Equal(t, hal.ChannelDefault, n.Source.Mask)
	assert.Equal(t, hal.EncodingDefault, n.Source.Encoding)
}

func TestNegotiateNoSupportedRate(t *testing.T) {
	tuner := portsByClass(t, hal.DeviceTVTuner)
	sink := hal.Port{Class: hal.DeviceLineOut, Direction: hal.Sink, Masks: []hal.ChannelMask{hal.OutStereo}}

	n := Negotiate(tuner, []hal.Port{sink}, hal.Format{SampleRate: 44100})
	assert.Equal(t, 0, n.Sinks[0].SampleRate)
	assert.Equal(t, 48000, n.Source.SampleRate)
}

func TestNegotiateHonoursSupportedRequest(t *testing.T) {
	tuner := portsByClass(t, hal.DeviceTVTuner)
	arc := portsByClass(t, hal.DeviceHDMIARC)

	n := Negotiate(tuner, []hal.Port{arc}, hal.Format{Encoding: hal.EncodingAC3, Mask: hal.Out5Point1})
	assert.Equal(t, hal.EncodingAC3, n.Sinks[0].Encoding)
	assert.Equal(t, hal.Out5Point1, n.Sinks[0].Mask)
	assert.Equal(t, hal.EncodingAC3, n.Source.Encoding)
	// the tuner has no six-channel mask
	assert.Equal(t, hal.ChannelDefault, n.Source.Mask)
}

func TestNegotiateActivePortsNeedNoReconfigure(t *testing.T) {
	tuner := portsByClass(t, hal.DeviceTVTuner)
	speaker := portsByClass(t, hal.DeviceSpeaker)

	first := Negotiate(tuner, []hal.Port{speaker}, hal.Format{})
	tuner.Active = &first.Source
	speaker.Active = &first.Sinks[0]

	again := Negotiate(tuner, []hal.Port{speaker}, hal.Format{})
	assert.False(t, again.Reconfigure)
	assert.Equal(t, first.Source, again.Source)
	assert.Equal(t, first.Sinks, again.Sinks)
}

func TestNegotiateKeepsLiveSourceWhenSinksSettled(t *testing.T) {
	tuner := portsByClass(t, hal.DeviceTVTuner)
	speaker := portsByClass(t, hal.DeviceSpeaker)

	live := hal.PortConfig{Port: tuner.Ref(), SampleRate: 48000, Mask: hal.InMono, Encoding: hal.EncodingPCM16}
	tuner.Active = &live
	sinkCfg := hal.PortConfig{Port: speaker.Ref(), SampleRate: 44100, Mask: hal.OutStereo, Encoding: hal.EncodingPCM16}
	speaker.Active = &sinkCfg

	n := Negotiate(tuner, []hal.Port{speaker}, hal.Format{})
	assert.False(t, n.Reconfigure)
	assert.Equal(t, live, n.Source)
	assert.Equal(t, 44100, n.Sinks[0].SampleRate)
}
