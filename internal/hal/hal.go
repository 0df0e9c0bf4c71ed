// Package hal describes the vendor audio hardware service the route engine
// drives: port enumeration, patch creation and release, port gain and the
// key=value parameter channel.
package hal

// Hardware is the outbound hardware abstraction. Implementations are
// expected to return promptly; the route engine calls them from its single
// event goroutine.
type Hardware interface {
	// ListPorts enumerates the current audio ports. Nothing is cached.
	ListPorts() ([]Port, error)
	// CreatePatch connects source to sinks and returns the new handle.
	CreatePatch(source PortConfig, sinks []PortConfig) (PatchHandle, error)
	// ReleasePatch tears down a patch returned by CreatePatch.
	ReleasePatch(handle PatchHandle) error
	// SetPortGain applies gain to a port.
	SetPortGain(port PortRef, gain GainConfig) error
	// SetParameters pushes a "k=v;k2=v2" parameter string.
	SetParameters(kv string) error
	// GetParameter returns the current value for key, or "" when unknown.
	GetParameter(key string) string
}

// Platform exposes the framework state the route engine consults but does
// not own.
type Platform interface {
	// OutputDevices returns the devices the stream class is routed to.
	OutputDevices(stream StreamClass) DeviceClass
	// VolumeIndex returns the stream's volume index and its maximum.
	VolumeIndex(stream StreamClass) (index, max int)
	// A2DPActive reports whether a Bluetooth A2DP sink is the active output.
	A2DPActive() bool
	// HasHardwareInputs reports whether any hardware input device is discoverable.
	HasHardwareInputs() bool
}

// StreamClass is the logical audio stream a route or volume belongs to.
type StreamClass uint8

const (
	StreamMusic StreamClass = iota
	StreamSystem
	StreamNotification
	StreamAlarm
	StreamTTS
)

var streamNames = []string{"music", "system", "notification", "alarm", "tts"}

func (s StreamClass) String() string {
	if int(s) < len(streamNames) {
		return streamNames[s]
	}
	return "unknown"
}

// ParseStreamClass maps a stream name to its class.
func ParseStreamClass(s string) (StreamClass, bool) {
	for i, n := range streamNames {
		if n == s {
			return StreamClass(i), true
		}
	}
	return StreamMusic, false
}
