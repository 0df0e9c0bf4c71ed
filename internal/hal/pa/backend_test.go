package pa

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tvroute/internal/hal"
	"tvroute/pkg/signal"
)

type fakeStream struct {
	params  portaudio.StreamParameters
	cb      func(in, out []int32)
	started bool
	stopped bool
	closed  bool
	failErr error
}

func (s *fakeStream) Start() error {
	if s.failErr != nil {
		return s.failErr
	}
	s.started = true
	return nil
}

func (s *fakeStream) Stop() error  { s.stopped = true; return nil }
func (s *fakeStream) Close() error { s.closed = true; return nil }

type fakeHost struct {
	devices    []*portaudio.DeviceInfo
	streams    []*fakeStream
	startErr   error
	terminated bool
}

func testDevices() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{Index: 0, Name: "TV Tuner Capture", MaxInputChannels: 2, DefaultSampleRate: 48000},
		{Index: 1, Name: "HDMI 0", MaxOutputChannels: 8, DefaultSampleRate: 48000},
		{Index: 2, Name: "Built-in Audio", MaxInputChannels: 1, MaxOutputChannels: 2, DefaultSampleRate: 44100},
	}
}

func withFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	host := &fakeHost{devices: testDevices()}
	origInit, origTerm, origDevices, origOpen := paLibInitialize, paLibTerminate, paDevicesFunc, paOpenStream
	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { host.terminated = true; return nil }
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return host.devices, nil }
	paOpenStream = func(p portaudio.StreamParameters, cb func(in, out []int32)) (stream, error) {
		s := &fakeStream{params: p, cb: cb, failErr: host.startErr}
		host.streams = append(host.streams, s)
		return s, nil
	}
	t.Cleanup(func() {
		paLibInitialize, paLibTerminate, paDevicesFunc, paOpenStream = origInit, origTerm, origDevices, origOpen
	})
	return host
}

func openTestBackend(t *testing.T, opts Options) (*Backend, *fakeHost) {
	t.Helper()
	host := withFakeHost(t)
	if opts.FramesPerBuffer == 0 {
		opts.FramesPerBuffer = 4
	}
	b, err := Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, host
}

func findPort(t *testing.T, ports []hal.Port, addr string, dir hal.Direction) hal.Port {
	t.Helper()
	for _, p := range ports {
		if p.Address == addr && p.Direction == dir {
			return p
		}
	}
	t.Fatalf("port %s %s not found", dir, addr)
	return hal.Port{}
}

func TestListPortsMapsDevices(t *testing.T) {
	b, _ := openTestBackend(t, Options{})

	ports, err := b.ListPorts()
	require.NoError(t, err)
	require.Len(t, ports, 4)

	tuner := findPort(t, ports, "pa:0", hal.Source)
	assert.Equal(t, hal.DeviceTVTuner, tuner.Class)
	assert.Equal(t, []int{48000}, tuner.SampleRates)
	assert.Equal(t, []hal.ChannelMask{hal.InStereo, hal.InMono}, tuner.Masks)
	assert.True(t, tuner.Gain.Controllable())

	hdmi := findPort(t, ports, "pa:1", hal.Sink)
	assert.Equal(t, hal.DeviceHDMI, hdmi.Class)
	assert.Contains(t, hdmi.Masks, hal.Out7Point1)
	assert.False(t, hdmi.Gain.Controllable())

	assert.Equal(t, hal.DeviceBuiltinMic, findPort(t, ports, "pa:2", hal.Source).Class)
	assert.Equal(t, hal.DeviceSpeaker, findPort(t, ports, "pa:2", hal.Sink).Class)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		dir  hal.Direction
		want hal.DeviceClass
	}{
		{"HDMI ARC", hal.Sink, hal.DeviceHDMI},
		{"eARC output", hal.Sink, hal.DeviceHDMIARC},
		{"S/PDIF Optical", hal.Sink, hal.DeviceSPDIF},
		{"IEC958 In", hal.Source, hal.DeviceSPDIFIn},
		{"USB Audio", hal.Sink, hal.DeviceUSB},
		{"USB Audio", hal.Source, hal.DeviceBuiltinMic},
		{"Line In", hal.Source, hal.DeviceLineIn},
		{"Headphones", hal.Sink, hal.DeviceWiredHeadphone},
		{"default", hal.Sink, hal.DeviceSpeaker},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, classify(tt.name, tt.dir), "%s %s", tt.dir, tt.name)
	}
}

func TestParseAddress(t *testing.T) {
	id, err := ParseAddress(Address(7))
	require.NoError(t, err)
	assert.Equal(t, 7, id)

	for _, bad := range []string{"", "hw:0", "pa:", "pa:-1", "pa:x"} {
		_, err := ParseAddress(bad)
		assert.Error(t, err, bad)
	}
}

func tunerToHDMI() (hal.PortConfig, []hal.PortConfig) {
	source := hal.PortConfig{
		Port:       hal.PortRef{Class: hal.DeviceTVTuner, Address: "pa:0"},
		SampleRate: 48000,
		Mask:       hal.InStereo,
		Encoding:   hal.EncodingPCM32,
	}
	sink := hal.PortConfig{
		Port:       hal.PortRef{Class: hal.DeviceHDMI, Address: "pa:1"},
		SampleRate: 48000,
		Mask:       hal.OutStereo,
		Encoding:   hal.EncodingPCM32,
	}
	return source, []hal.PortConfig{sink}
}

func TestCreatePatchOpensDuplexStream(t *testing.T) {
	b, host := openTestBackend(t, Options{})
	source, sinks := tunerToHDMI()

	h, err := b.CreatePatch(source, sinks)
	require.NoError(t, err)
	require.Len(t, host.streams, 1)
	s := host.streams[0]
	assert.True(t, s.started)
	assert.Equal(t, 2, s.params.Input.Channels)
	assert.Equal(t, 2, s.params.Output.Channels)
	assert.Equal(t, 48000.0, s.params.SampleRate)
	assert.Same(t, host.devices[1], s.params.Output.Device)

	ports, err := b.ListPorts()
	require.NoError(t, err)
	active := findPort(t, ports, "pa:0", hal.Source).Active
	require.NotNil(t, active)
	assert.Equal(t, source, *active)
	require.NotNil(t, findPort(t, ports, "pa:1", hal.Sink).Active)
	assert.Nil(t, findPort(t, ports, "pa:2", hal.Sink).Active)

	require.NoError(t, b.ReleasePatch(h))
	assert.True(t, s.stopped)
	assert.True(t, s.closed)
	assert.Error(t, b.ReleasePatch(h))

	ports, err = b.ListPorts()
	require.NoError(t, err)
	assert.Nil(t, findPort(t, ports, "pa:0", hal.Source).Active)
}

func TestCreatePatchRejectsBadPorts(t *testing.T) {
	b, host := openTestBackend(t, Options{})
	source, sinks := tunerToHDMI()

	_, err := b.CreatePatch(source, nil)
	assert.Error(t, err)

	badSource := source
	badSource.Port.Address = "pa:1"
	_, err = b.CreatePatch(badSource, sinks)
	assert.Error(t, err, "hdmi has no inputs")

	_, err = b.CreatePatch(source, []hal.PortConfig{sinks[0], {Port: hal.PortRef{Address: "pa:0"}}})
	assert.Error(t, err, "tuner has no outputs")
	require.Len(t, host.streams, 1)
	assert.True(t, host.streams[0].closed, "partially built patch is torn down")

	_, err = b.CreatePatch(source, []hal.PortConfig{{Port: hal.PortRef{Address: "pa:9"}}})
	assert.Error(t, err)

	host.startErr = errors.New("device busy")
	_, err = b.CreatePatch(source, sinks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device busy")
}

func TestRelayAppliesGainAndUpmixes(t *testing.T) {
	b, host := openTestBackend(t, Options{})
	source, sinks := tunerToHDMI()
	sinks[0].Mask = hal.Out5Point1

	_, err := b.CreatePatch(source, sinks)
	require.NoError(t, err)
	s := host.streams[0]
	assert.Equal(t, 6, s.params.Output.Channels)

	in := []int32{1000, -1000, 2000, -2000}
	out := make([]int32, 12)
	s.cb(in, out)
	assert.Equal(t, []int32{1000, -1000, 1000, -1000, 1000, -1000, 2000, -2000, 2000, -2000, 2000, -2000}, out)

	require.NoError(t, b.SetPortGain(source.Port, hal.GainConfig{Mode: hal.GainModeJoint, Values: []int{-2000}}))
	s.cb(in, out)
	assert.Equal(t, int32(100), out[0])
	assert.Equal(t, int32(-200), out[7])
}

func TestRelayAttenuatesTone(t *testing.T) {
	b, host := openTestBackend(t, Options{FramesPerBuffer: 480})
	source, sinks := tunerToHDMI()
	h, err := b.CreatePatch(source, sinks)
	require.NoError(t, err)

	require.NoError(t, b.SetPortGain(source.Port, hal.GainConfig{Values: []int{-600}}))
	in := signal.GenerateSineWave(480, 2, 48000, 1000, 0.5)
	out := make([]int32, len(in))
	host.streams[0].cb(in, out)

	assert.InDelta(t, signal.LevelDB(signal.PeakAmplitude(in))-6, signal.LevelDB(signal.PeakAmplitude(out)), 0.01)
	assert.Equal(t, signal.PeakAmplitude(out), b.patches[h].peak())
	assert.InDelta(t, 1000, signal.DominantFrequency(out, 2, 1, 48000), 100)
}

func TestSetPortGain(t *testing.T) {
	b, _ := openTestBackend(t, Options{})

	ref := hal.PortRef{Class: hal.DeviceTVTuner, Address: "pa:0"}
	assert.Error(t, b.SetPortGain(ref, hal.GainConfig{}))
	assert.Error(t, b.SetPortGain(hal.PortRef{Address: "pa:1"}, hal.GainConfig{Values: []int{0}}))

	require.NoError(t, b.SetPortGain(ref, hal.GainConfig{Values: []int{-99999}}))
	assert.InDelta(t, math.Pow(10, -3.2), b.gains["pa:0"].factor(), 1e-12, "clamped to the minimum")
}

func TestParameters(t *testing.T) {
	b, _ := openTestBackend(t, Options{})
	require.NoError(t, b.SetParameters("tuner_cmd=1;tuner_p1=48000"))
	require.NoError(t, b.SetParameters("tuner_cmd=2"))
	assert.Equal(t, "2", b.GetParameter("tuner_cmd"))
	assert.Equal(t, "48000", b.GetParameter("tuner_p1"))
	assert.Empty(t, b.GetParameter("missing"))
}

func TestCloseReleasesPatches(t *testing.T) {
	host := withFakeHost(t)
	b, err := Open(Options{FramesPerBuffer: 4})
	require.NoError(t, err)
	source, sinks := tunerToHDMI()
	_, err = b.CreatePatch(source, sinks)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	assert.True(t, host.streams[0].closed)
	assert.True(t, host.terminated)
	_, err = b.ListPorts()
	assert.Error(t, err)
	assert.NoError(t, b.Close())
}

func TestOpenErrors(t *testing.T) {
	host := withFakeHost(t)
	_, err := Open(Options{})
	assert.Error(t, err)

	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return nil, errors.New("mock error") }
	_, err = Open(Options{FramesPerBuffer: 4})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mock error")
	assert.True(t, host.terminated)

	paLibInitialize = func() error { return errors.New("no audio") }
	_, err = Open(Options{FramesPerBuffer: 4})
	assert.ErrorContains(t, err, "failed to initialize PortAudio")
}

func TestRecordTap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tap.wav")
	b, host := openTestBackend(t, Options{RecordFile: path})
	source, sinks := tunerToHDMI()

	h, err := b.CreatePatch(source, sinks)
	require.NoError(t, err)
	out := make([]int32, 8)
	host.streams[0].cb([]int32{1, 2, 3, 4, 5, 6, 7, 8}, out)
	host.streams[0].cb([]int32{1, 2, 3, 4, 5, 6, 7, 8}, out)
	require.NoError(t, b.ReleasePatch(h))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	assert.Equal(t, uint16(2), dec.NumChans)
	assert.Equal(t, uint32(48000), dec.SampleRate)
	assert.Equal(t, uint16(32), dec.BitDepth)
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3, 4, 5, 6, 7, 8}, buf.Data)
}

func TestTapStopIsIdempotent(t *testing.T) {
	_, err := StartTap(filepath.Join(t.TempDir(), "x.wav"), 0, 2, 4)
	assert.Error(t, err)

	tap, err := StartTap(filepath.Join(t.TempDir(), "y.wav"), 48000, 1, 4)
	require.NoError(t, err)
	require.NoError(t, tap.Write([]int32{1, 2, 3, 4, 5, 6}), "grows past the preallocated buffer")
	require.NoError(t, tap.Stop())
	assert.False(t, tap.Recording())
	assert.NoError(t, tap.Write([]int32{1}))
	assert.NoError(t, tap.Stop())
}
