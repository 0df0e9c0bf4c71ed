package route

import (
	"time"

	"tvroute/internal/hal"
)

// EventType names a state change published to listeners.
type EventType string

const (
	EventPatchCreated  EventType = "patch-created"
	EventPatchReleased EventType = "patch-released"
	EventPathOpened    EventType = "path-opened"
	EventPathClosed    EventType = "path-closed"
	EventRouteChanged  EventType = "route-changed"
	EventGainApplied   EventType = "gain-applied"
	EventHardwareError EventType = "hardware-error"
)

// Event is the JSON payload published for every state change.
type Event struct {
	Type EventType   `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// Topic names the event for topic-based transports.
func (e Event) Topic() string { return string(e.Type) }

// PatchData describes a created or released patch.
type PatchData struct {
	Handle hal.PatchHandle `json:"handle"`
	Source string          `json:"source,omitempty"`
	Sinks  []string        `json:"sinks,omitempty"`
	Reason string          `json:"reason,omitempty"`
}

// PathData describes a path-set change.
type PathData struct {
	Session int32   `json:"session"`
	Paths   []int32 `json:"paths"`
}

// RouteData describes an accepted output route change.
type RouteData struct {
	Devices       string        `json:"devices"`
	DigitalFormat string        `json:"digital_format"`
	Delay         time.Duration `json:"delay"`
}

// GainData describes an applied port gain.
type GainData struct {
	Port      string `json:"port"`
	Millibels int    `json:"millibels"`
	Volume    int    `json:"volume"`
	VolumeMax int    `json:"volume_max"`
}

// ErrorData describes a failed hardware call.
type ErrorData struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// Listener receives engine events. Implementations must not block and must
// not call back into the engine synchronously.
type Listener interface {
	Send(data any) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(data any) error

func (f ListenerFunc) Send(data any) error { return f(data) }
