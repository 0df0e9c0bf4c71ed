package hal

import (
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

// DeviceClass is a bitmask of audio device kinds. Output classes are single
// bits; input classes additionally carry DeviceIn.
type DeviceClass uint32

const DeviceNone DeviceClass = 0

// Output device classes.
const (
	DeviceEarpiece       DeviceClass = 1 << 0
	DeviceSpeaker        DeviceClass = 1 << 1
	DeviceWiredHeadset   DeviceClass = 1 << 2
	DeviceWiredHeadphone DeviceClass = 1 << 3
	DeviceBluetoothA2DP  DeviceClass = 1 << 7
	DeviceHDMI           DeviceClass = 1 << 10
	DeviceUSB            DeviceClass = 1 << 14
	DeviceLineOut        DeviceClass = 1 << 17
	DeviceHDMIARC        DeviceClass = 1 << 18
	DeviceSPDIF          DeviceClass = 1 << 19
)

// Input device classes.
const (
	DeviceIn         DeviceClass = 1 << 31
	DeviceBuiltinMic DeviceClass = DeviceIn | 1<<2
	DeviceHDMIIn     DeviceClass = DeviceIn | 1<<5
	DeviceTVTuner    DeviceClass = DeviceIn | 1<<14
	DeviceLineIn     DeviceClass = DeviceIn | 1<<15
	DeviceSPDIFIn    DeviceClass = DeviceIn | 1<<16
)

var deviceNames = []struct {
	class DeviceClass
	name  string
}{
	{DeviceEarpiece, "earpiece"},
	{DeviceSpeaker, "speaker"},
	{DeviceWiredHeadset, "wired_headset"},
	{DeviceWiredHeadphone, "wired_headphone"},
	{DeviceBluetoothA2DP, "bluetooth_a2dp"},
	{DeviceHDMI, "hdmi"},
	{DeviceUSB, "usb"},
	{DeviceLineOut, "line_out"},
	{DeviceHDMIARC, "hdmi_arc"},
	{DeviceSPDIF, "spdif"},
	{DeviceBuiltinMic, "builtin_mic"},
	{DeviceHDMIIn, "hdmi_in"},
	{DeviceTVTuner, "tv_tuner"},
	{DeviceLineIn, "line_in"},
	{DeviceSPDIFIn, "spdif_in"},
}

// IsInput reports whether the class names input devices.
func (d DeviceClass) IsInput() bool { return d&DeviceIn != 0 }

// InputParam encodes an input class as a non-negative command parameter by
// dropping DeviceIn, which would otherwise make the value negative.
func (d DeviceClass) InputParam() int32 { return int32(uint32(d &^ DeviceIn)) }

// InputFromParam decodes InputParam. Zero is DeviceNone. A value that still
// carries DeviceIn decodes to the same class.
func InputFromParam(p int32) DeviceClass {
	if p == 0 {
		return DeviceNone
	}
	return DeviceClass(uint32(p)) | DeviceIn
}

// Intersects reports whether two output bitmasks share a device.
func (d DeviceClass) Intersects(o DeviceClass) bool {
	if d.IsInput() != o.IsInput() {
		return false
	}
	return (d&^DeviceIn)&(o&^DeviceIn) != 0
}

func (d DeviceClass) String() string {
	if d == DeviceNone {
		return "none"
	}
	for _, n := range deviceNames {
		if n.class == d {
			return n.name
		}
	}
	var parts []string
	for _, n := range deviceNames {
		if n.class.IsInput() == d.IsInput() && d&n.class == n.class {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("0x%x", uint32(d))
	}
	return strings.Join(parts, "|")
}

// ParseDeviceClass parses a name or a "|" separated list of output names.
func ParseDeviceClass(s string) (DeviceClass, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "none" {
		return DeviceNone, nil
	}
	var out DeviceClass
	for _, part := range strings.Split(s, "|") {
		part = strings.TrimSpace(part)
		found := false
		for _, n := range deviceNames {
			if n.name == part {
				if out != DeviceNone && out.IsInput() != n.class.IsInput() {
					return DeviceNone, fmt.Errorf("cannot mix input and output classes in %q", s)
				}
				out |= n.class
				found = true
				break
			}
		}
		if !found {
			return DeviceNone, fmt.Errorf("unknown device class %q", part)
		}
	}
	return out, nil
}

// Direction tells whether a port produces or consumes audio.
type Direction int8

const (
	Source Direction = iota
	Sink
)

func (d Direction) String() string {
	if d == Sink {
		return "sink"
	}
	return "source"
}

// ChannelMask describes the channel layout of a stream.
type ChannelMask uint32

// ChannelDefault is the unspecified mask, valid for both directions.
const ChannelDefault ChannelMask = 0

const (
	OutMono    ChannelMask = 0x4
	OutStereo  ChannelMask = 0xC
	Out2Point1 ChannelMask = 0x2C
	OutQuad    ChannelMask = 0xCC
	Out5Point1 ChannelMask = 0xFC
	Out7Point1 ChannelMask = 0x18FC

	InMono      ChannelMask = 0x10
	InStereo    ChannelMask = 0xC
	InFrontBack ChannelMask = 0x30
	In5Point1   ChannelMask = 0x3F0
)

// Count returns the number of channels in the mask.
func (m ChannelMask) Count() int { return bits.OnesCount32(uint32(m)) }

// Encoding is the sample format carried on a port.
type Encoding uint8

const (
	EncodingDefault Encoding = iota
	EncodingPCM16
	EncodingPCM24
	EncodingPCM32
	EncodingPCMFloat
	EncodingAC3
	EncodingEAC3
	EncodingDTS
	EncodingAAC
	EncodingAC4
	EncodingMAT
)

var encodingNames = []string{"default", "pcm16", "pcm24", "pcm32", "pcm_float", "ac3", "eac3", "dts", "aac", "ac4", "mat"}

func (e Encoding) String() string {
	if int(e) < len(encodingNames) {
		return encodingNames[e]
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// ParseEncoding maps a name produced by String back to the Encoding.
func ParseEncoding(s string) (Encoding, error) {
	for i, n := range encodingNames {
		if strings.EqualFold(n, s) {
			return Encoding(i), nil
		}
	}
	return EncodingDefault, fmt.Errorf("unknown encoding %q", s)
}

// PortRef identifies a port independently of its capabilities.
type PortRef struct {
	Class   DeviceClass
	Address string
}

func (r PortRef) String() string {
	if r.Address == "" {
		return r.Class.String()
	}
	return r.Class.String() + "@" + r.Address
}

// PortConfig is one concrete configuration of a port.
type PortConfig struct {
	Port       PortRef
	SampleRate int
	Mask       ChannelMask
	Encoding   Encoding
}

// SameFormat compares everything but the port identity.
func (c PortConfig) SameFormat(o PortConfig) bool {
	return c.SampleRate == o.SampleRate && c.Mask == o.Mask && c.Encoding == o.Encoding
}

func (c PortConfig) String() string {
	return fmt.Sprintf("%s{%dHz mask=0x%x %s}", c.Port, c.SampleRate, uint32(c.Mask), c.Encoding)
}

// GainDescriptor is the gain control range of a port, in millibels.
// A zero Step means the port has no gain control.
type GainDescriptor struct {
	Min         int
	Max         int
	Default     int
	Step        int
	ChannelMask ChannelMask
}

// Controllable reports whether the port accepts gain.
func (g GainDescriptor) Controllable() bool { return g.Step > 0 && g.Max >= g.Min }

// GainMode selects how gain values are interpreted.
type GainMode uint8

const (
	GainModeJoint GainMode = 1 << iota
	GainModeChannels
)

// GainConfig is applied to a port with SetPortGain.
type GainConfig struct {
	Index       int
	Mode        GainMode
	ChannelMask ChannelMask
	Values      []int
}

// Port is a snapshot of one hardware audio endpoint.
type Port struct {
	Class       DeviceClass
	Address     string
	Name        string
	Direction   Direction
	SampleRates []int
	Masks       []ChannelMask
	Encodings   []Encoding
	Gain        GainDescriptor
	Active      *PortConfig
}

// Ref returns the identity of the port.
func (p Port) Ref() PortRef { return PortRef{Class: p.Class, Address: p.Address} }

func (p Port) SupportsRate(rate int) bool { return slices.Contains(p.SampleRates, rate) }

func (p Port) SupportsMask(m ChannelMask) bool { return slices.Contains(p.Masks, m) }

func (p Port) SupportsEncoding(e Encoding) bool { return slices.Contains(p.Encodings, e) }

func (p Port) String() string {
	return fmt.Sprintf("%s %s (%s)", p.Direction, p.Ref(), p.Name)
}

// PatchHandle identifies a live hardware patch.
type PatchHandle string

// Patch connects one source to one or more sinks.
type Patch struct {
	Handle PatchHandle
	Source PortConfig
	Sinks  []PortConfig
}

// Format is a desired stream format; zero fields are unset.
type Format struct {
	SampleRate int
	Mask       ChannelMask
	Encoding   Encoding
}

// IsZero reports whether no field is set.
func (f Format) IsZero() bool { return f == Format{} }
