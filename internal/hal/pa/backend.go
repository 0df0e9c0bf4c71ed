/*
Package pa drives real sound cards through PortAudio as a hal.Hardware.

Each host device becomes a source port, a sink port or both. A patch opens
one duplex stream per sink and copies captured frames to the sink, scaled by
the source port's gain. Streams run on PortAudio's callback thread:

  - Gain is read atomically so SetPortGain never blocks the callback
  - Buffers are sized at patch creation to avoid GC in the hot path
  - An optional WAV tap records what the first sink receives
*/
package pa

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"

	"tvroute/internal/hal"
	applog "tvroute/internal/log"
	"tvroute/pkg/signal"
)

// stream is the part of *portaudio.Stream a patch uses.
type stream interface {
	Start() error
	Stop() error
	Close() error
}

var paOpenStream = func(p portaudio.StreamParameters, cb func(in, out []int32)) (stream, error) {
	return portaudio.OpenStream(p, cb)
}

// Options configures the backend.
type Options struct {
	FramesPerBuffer int
	LowLatency      bool
	// RecordFile, when set, receives a WAV copy of each patch's first sink.
	RecordFile string
}

// Backend implements hal.Hardware on PortAudio. It is safe for concurrent use.
type Backend struct {
	mu      sync.Mutex
	opts    Options
	closed  bool
	infos   []*portaudio.DeviceInfo
	patches map[hal.PatchHandle]*patch
	gains   map[string]*gainCell
	params  map[string]string
}

var _ hal.Hardware = (*Backend)(nil)

// Open initializes PortAudio. Close must be called to terminate it.
func Open(opts Options) (*Backend, error) {
	if opts.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", opts.FramesPerBuffer)
	}
	if err := Initialize(); err != nil {
		return nil, err
	}
	b := &Backend{
		opts:    opts,
		patches: make(map[hal.PatchHandle]*patch),
		gains:   make(map[string]*gainCell),
		params:  make(map[string]string),
	}
	if _, err := b.ListPorts(); err != nil {
		Terminate()
		return nil, err
	}
	return b, nil
}

// Close releases every live patch and terminates PortAudio.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var errs []error
	for h, p := range b.patches {
		errs = append(errs, p.stop())
		delete(b.patches, h)
	}
	b.mu.Unlock()
	errs = append(errs, Terminate())
	return errors.Join(errs...)
}

var errClosed = errors.New("portaudio backend closed")

func (b *Backend) ListPorts() ([]hal.Port, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errClosed
	}
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to list PortAudio devices: %w", err)
	}
	b.infos = infos

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
		}
	}
	ports := devicePorts(devices)
	for i := range ports {
		ports[i].Active = b.activeLocked(ports[i])
	}
	return ports, nil
}

func (b *Backend) activeLocked(port hal.Port) *hal.PortConfig {
	for _, p := range b.patches {
		if port.Direction == hal.Source && p.source.Port.Address == port.Address {
			cfg := p.source
			return &cfg
		}
		if port.Direction == hal.Sink {
			for _, s := range p.sinks {
				if s.Port.Address == port.Address {
					cfg := s
					return &cfg
				}
			}
		}
	}
	return nil
}

func (b *Backend) device(addr string) (*portaudio.DeviceInfo, error) {
	id, err := ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	if id >= len(b.infos) {
		return nil, fmt.Errorf("unknown device %s", addr)
	}
	return b.infos[id], nil
}

func channelsFor(mask hal.ChannelMask, limit int) int {
	if n := mask.Count(); n > 0 && n <= limit {
		return n
	}
	return min(2, limit)
}

func (b *Backend) latency(info *portaudio.DeviceInfo, input bool) time.Duration {
	switch {
	case input && b.opts.LowLatency:
		return info.DefaultLowInputLatency
	case input:
		return info.DefaultHighInputLatency
	case b.opts.LowLatency:
		return info.DefaultLowOutputLatency
	}
	return info.DefaultHighOutputLatency
}

func (b *Backend) CreatePatch(source hal.PortConfig, sinks []hal.PortConfig) (hal.PatchHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", errClosed
	}
	if len(sinks) == 0 {
		return "", errors.New("patch without sinks")
	}
	in, err := b.device(source.Port.Address)
	if err != nil {
		return "", err
	}
	if in.MaxInputChannels == 0 {
		return "", fmt.Errorf("device %s has no inputs", source.Port.Address)
	}
	rate := float64(source.SampleRate)
	if rate <= 0 {
		rate = in.DefaultSampleRate
	}
	inCh := channelsFor(source.Mask, in.MaxInputChannels)

	p := &patch{
		handle: hal.PatchHandle(uuid.NewString()),
		source: source,
		sinks:  append([]hal.PortConfig(nil), sinks...),
	}
	gain := b.gainLocked(source.Port.Address)
	for i, sink := range sinks {
		out, err := b.device(sink.Port.Address)
		if err == nil && out.MaxOutputChannels == 0 {
			err = fmt.Errorf("device %s has no outputs", sink.Port.Address)
		}
		if err != nil {
			p.stop()
			return "", err
		}
		r := &relay{
			gain:  gain,
			inCh:  inCh,
			outCh: channelsFor(sink.Mask, out.MaxOutputChannels),
		}
		if i == 0 && b.opts.RecordFile != "" {
			tap, err := StartTap(b.opts.RecordFile, int(rate), r.outCh, b.opts.FramesPerBuffer)
			if err != nil {
				p.stop()
				return "", fmt.Errorf("failed to start tap: %w", err)
			}
			r.tap = tap
			p.tap = tap
		}
		p.relays = append(p.relays, r)
		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   in,
				Channels: inCh,
				Latency:  b.latency(in, true),
			},
			Output: portaudio.StreamDeviceParameters{
				Device:   out,
				Channels: r.outCh,
				Latency:  b.latency(out, false),
			},
			SampleRate:      rate,
			FramesPerBuffer: b.opts.FramesPerBuffer,
		}
		s, err := paOpenStream(params, r.process)
		if err != nil {
			p.stop()
			return "", fmt.Errorf("failed to open stream to %s: %w", sink.Port, err)
		}
		if err := s.Start(); err != nil {
			s.Close()
			p.stop()
			return "", fmt.Errorf("failed to start stream to %s: %w", sink.Port, err)
		}
		p.streams = append(p.streams, s)
	}
	b.patches[p.handle] = p
	applog.Infof("PortAudio: patch %s %s -> %d sink(s) at %.0f Hz", p.handle, source.Port, len(sinks), rate)
	return p.handle, nil
}

func (b *Backend) ReleasePatch(handle hal.PatchHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.patches[handle]
	if !ok {
		return fmt.Errorf("unknown patch %s", handle)
	}
	delete(b.patches, handle)
	err := p.stop()
	applog.Infof("PortAudio: released patch %s, peak %.1f dBFS", handle, signal.LevelDB(p.peak()))
	return err
}

func (b *Backend) SetPortGain(port hal.PortRef, gain hal.GainConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed
	}
	info, err := b.device(port.Address)
	if err != nil {
		return err
	}
	if info.MaxInputChannels == 0 {
		return fmt.Errorf("port %s has no gain control", port)
	}
	if len(gain.Values) == 0 {
		return errors.New("gain config without values")
	}
	mb := max(softwareGain.Min, min(softwareGain.Max, gain.Values[0]))
	b.gainLocked(port.Address).set(mb)
	applog.Debugf("PortAudio: gain %s = %d mB", port, mb)
	return nil
}

func (b *Backend) SetParameters(kv string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := hal.ParseParams(kv)
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		b.params[k] = v
	}
	applog.Debugf("PortAudio: parameters %s", kv)
	return nil
}

func (b *Backend) GetParameter(key string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.params[key]
}

func (b *Backend) gainLocked(addr string) *gainCell {
	g, ok := b.gains[addr]
	if !ok {
		g = newGainCell()
		b.gains[addr] = g
	}
	return g
}

// gainCell holds a linear gain factor shared with the audio callback.
type gainCell struct {
	bits atomic.Uint64
}

func newGainCell() *gainCell {
	g := &gainCell{}
	g.set(softwareGain.Default)
	return g
}

func (g *gainCell) set(mb int) {
	g.bits.Store(math.Float64bits(math.Pow(10, float64(mb)/2000)))
}

func (g *gainCell) factor() float64 {
	return math.Float64frombits(g.bits.Load())
}

type patch struct {
	handle  hal.PatchHandle
	source  hal.PortConfig
	sinks   []hal.PortConfig
	streams []stream
	relays  []*relay
	tap     *Tap
}

// peak returns the loudest sample any sink received.
func (p *patch) peak() int32 {
	var peak int32
	for _, r := range p.relays {
		peak = max(peak, r.peak.Load())
	}
	return peak
}

func (p *patch) stop() error {
	var errs []error
	for _, s := range p.streams {
		errs = append(errs, s.Stop(), s.Close())
	}
	p.streams = nil
	if p.tap != nil {
		errs = append(errs, p.tap.Stop())
	}
	return errors.Join(errs...)
}

// relay copies one source into one sink.
type relay struct {
	gain  *gainCell
	inCh  int
	outCh int
	tap   *Tap
	peak  atomic.Int32
}

// process is the stream callback. Output channels beyond the input's are
// filled by wrapping around the input channels.
func (r *relay) process(in, out []int32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	g := r.gain.factor()
	frames := len(out) / r.outCh
	for f := range frames {
		for c := range r.outCh {
			i := f*r.inCh + c%r.inCh
			if i >= len(in) {
				out[f*r.outCh+c] = 0
				continue
			}
			out[f*r.outCh+c] = int32(math.Round(float64(in[i]) * g))
		}
	}
	if peak := signal.PeakAmplitude(out); peak > r.peak.Load() {
		r.peak.Store(peak)
	}
	if r.tap != nil {
		if err := r.tap.Write(out); err != nil {
			applog.Errorf("PortAudio: tap write failed: %v", err)
		}
	}
}
