package pa

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gordonklaus/portaudio"

	"tvroute/internal/hal"
)

// Seams over the PortAudio library, replaced in tests.
var (
	paLibInitialize = portaudio.Initialize
	paLibTerminate  = portaudio.Terminate
	paDevicesFunc   = portaudio.Devices
)

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// Device is the part of a PortAudio device the backend exposes.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
}

// HostDevices returns all PortAudio devices. PortAudio must be initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, fmt.Errorf("failed to list PortAudio devices: %w", err)
	}
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
	return devices, nil
}

// softwareGain is the gain range the backend applies to captured samples.
var softwareGain = hal.GainDescriptor{Min: -6400, Max: 0, Default: 0, Step: 100}

var classHints = []struct {
	hint    string
	in, out hal.DeviceClass
}{
	{"tuner", hal.DeviceTVTuner, hal.DeviceNone},
	{"hdmi", hal.DeviceHDMIIn, hal.DeviceHDMI},
	{"arc", hal.DeviceNone, hal.DeviceHDMIARC},
	{"spdif", hal.DeviceSPDIFIn, hal.DeviceSPDIF},
	{"iec958", hal.DeviceSPDIFIn, hal.DeviceSPDIF},
	{"optical", hal.DeviceSPDIFIn, hal.DeviceSPDIF},
	{"usb", hal.DeviceNone, hal.DeviceUSB},
	{"line", hal.DeviceLineIn, hal.DeviceLineOut},
	{"headphone", hal.DeviceNone, hal.DeviceWiredHeadphone},
}

// classify guesses the device class from the host's device name.
func classify(name string, dir hal.Direction) hal.DeviceClass {
	lower := strings.ToLower(name)
	for _, h := range classHints {
		if !strings.Contains(lower, h.hint) {
			continue
		}
		if dir == hal.Source && h.in != hal.DeviceNone {
			return h.in
		}
		if dir == hal.Sink && h.out != hal.DeviceNone {
			return h.out
		}
	}
	if dir == hal.Source {
		return hal.DeviceBuiltinMic
	}
	return hal.DeviceSpeaker
}

// Address returns the port address of a device index.
func Address(id int) string { return "pa:" + strconv.Itoa(id) }

// ParseAddress extracts the device index from a port address.
func ParseAddress(addr string) (int, error) {
	s, ok := strings.CutPrefix(addr, "pa:")
	if !ok {
		return 0, fmt.Errorf("not a portaudio address: %q", addr)
	}
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return 0, fmt.Errorf("invalid portaudio address %q", addr)
	}
	return id, nil
}

func inputMasks(channels int) []hal.ChannelMask {
	switch {
	case channels >= 2:
		return []hal.ChannelMask{hal.InStereo, hal.InMono}
	case channels == 1:
		return []hal.ChannelMask{hal.InMono}
	}
	return nil
}

func outputMasks(channels int) []hal.ChannelMask {
	var masks []hal.ChannelMask
	if channels >= 2 {
		masks = append(masks, hal.OutStereo)
	}
	if channels >= 1 {
		masks = append(masks, hal.OutMono)
	}
	if channels >= 6 {
		masks = append(masks, hal.Out5Point1)
	}
	if channels >= 8 {
		masks = append(masks, hal.Out7Point1)
	}
	return masks
}

// devicePorts maps host devices onto ports. A duplex device yields one
// source and one sink.
func devicePorts(devices []Device) []hal.Port {
	var ports []hal.Port
	for _, d := range devices {
		rates := []int{int(d.DefaultSampleRate)}
		if d.MaxInputChannels > 0 {
			ports = append(ports, hal.Port{
				Class:       classify(d.Name, hal.Source),
				Address:     Address(d.ID),
				Name:        d.Name,
				Direction:   hal.Source,
				SampleRates: rates,
				Masks:       inputMasks(d.MaxInputChannels),
				Encodings:   []hal.Encoding{hal.EncodingPCM32},
				Gain:        softwareGain,
			})
		}
		if d.MaxOutputChannels > 0 {
			ports = append(ports, hal.Port{
				Class:       classify(d.Name, hal.Sink),
				Address:     Address(d.ID),
				Name:        d.Name,
				Direction:   hal.Sink,
				SampleRates: rates,
				Masks:       outputMasks(d.MaxOutputChannels),
				Encodings:   []hal.Encoding{hal.EncodingPCM32},
			})
		}
	}
	return ports
}
