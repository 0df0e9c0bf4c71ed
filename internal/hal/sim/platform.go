package sim

import (
	"sync"

	"tvroute/internal/hal"
)

// Platform is a mutable stand-in for the framework's routing state.
type Platform struct {
	mu        sync.Mutex
	routes    map[hal.StreamClass]hal.DeviceClass
	volume    map[hal.StreamClass]int
	maxVolume int
	a2dp      bool
	hwInputs  bool
}

var _ hal.Platform = (*Platform)(nil)

// NewPlatform routes every stream to output, at full volume out of 15,
// with hardware inputs present.
func NewPlatform(output hal.DeviceClass) *Platform {
	p := &Platform{
		routes:    make(map[hal.StreamClass]hal.DeviceClass),
		volume:    make(map[hal.StreamClass]int),
		maxVolume: 15,
		hwInputs:  true,
	}
	p.SetOutput(output)
	return p
}

// SetOutput routes all streams to output.
func (p *Platform) SetOutput(output hal.DeviceClass) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for s := hal.StreamMusic; s <= hal.StreamTTS; s++ {
		p.routes[s] = output
	}
	p.a2dp = output&hal.DeviceBluetoothA2DP != 0
}

// SetVolume sets the stream's volume index.
func (p *Platform) SetVolume(stream hal.StreamClass, index int) {
	p.mu.Lock()
	p.volume[stream] = index
	p.mu.Unlock()
}

// SetHardwareInputs toggles whether hardware inputs are discoverable.
func (p *Platform) SetHardwareInputs(present bool) {
	p.mu.Lock()
	p.hwInputs = present
	p.mu.Unlock()
}

func (p *Platform) OutputDevices(stream hal.StreamClass) hal.DeviceClass {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routes[stream]
}

func (p *Platform) VolumeIndex(stream hal.StreamClass) (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.volume[stream]
	if !ok {
		v = p.maxVolume
	}
	return v, p.maxVolume
}

func (p *Platform) A2DPActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.a2dp
}

func (p *Platform) HasHardwareInputs() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hwInputs
}
