package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"tvroute/internal/hal"
)

// PortSpec is the YAML form of a simulated port.
type PortSpec struct {
	Class       string   `yaml:"class"`
	Address     string   `yaml:"address"`
	Name        string   `yaml:"name"`
	SampleRates []int    `yaml:"sample_rates"`
	Masks       []uint32 `yaml:"channel_masks"`
	Encodings   []string `yaml:"encodings"`
	Gain        *struct {
		Min     int `yaml:"min_mb"`
		Max     int `yaml:"max_mb"`
		Default int `yaml:"default_mb"`
		Step    int `yaml:"step_mb"`
	} `yaml:"gain,omitempty"`
}

// Inventory is the YAML document read by LoadInventory.
type Inventory struct {
	Ports []PortSpec `yaml:"ports"`
}

// DefaultPorts is the inventory used when no file is configured: a tuner
// and an HDMI input feeding speaker, HDMI ARC and SPDIF outputs.
func DefaultPorts() []hal.Port {
	gain := hal.GainDescriptor{Min: -6400, Max: 0, Default: 0, Step: 100}
	return []hal.Port{
		{Class: hal.DeviceTVTuner, Name: "tuner", Direction: hal.Source,
			SampleRates: []int{48000}, Masks: []hal.ChannelMask{hal.InMono, hal.InStereo},
			Encodings: []hal.Encoding{hal.EncodingPCM16, hal.EncodingAC3, hal.EncodingEAC3}, Gain: gain},
		{Class: hal.DeviceHDMIIn, Address: "hdmi1", Name: "hdmi_in_1", Direction: hal.Source,
			SampleRates: []int{48000, 44100, 32000}, Masks: []hal.ChannelMask{hal.InStereo},
			Encodings: []hal.Encoding{hal.EncodingPCM16}, Gain: gain},
		{Class: hal.DeviceSpeaker, Name: "speaker", Direction: hal.Sink,
			SampleRates: []int{48000, 44100}, Masks: []hal.ChannelMask{hal.OutStereo},
			Encodings: []hal.Encoding{hal.EncodingPCM16}},
		{Class: hal.DeviceHDMIARC, Name: "hdmi_arc", Direction: hal.Sink,
			SampleRates: []int{48000}, Masks: []hal.ChannelMask{hal.OutStereo, hal.Out5Point1},
			Encodings: []hal.Encoding{hal.EncodingPCM16, hal.EncodingAC3, hal.EncodingEAC3}},
		{Class: hal.DeviceSPDIF, Name: "spdif", Direction: hal.Sink,
			SampleRates: []int{48000}, Masks: []hal.ChannelMask{hal.OutStereo},
			Encodings: []hal.Encoding{hal.EncodingPCM16, hal.EncodingAC3}},
	}
}

// LoadInventory reads a port inventory from a YAML file.
func LoadInventory(path string) ([]hal.Port, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory file: %w", err)
	}
	return ParseInventory(data)
}

// ParseInventory decodes a YAML port inventory. The direction follows the
// device class.
func ParseInventory(data []byte) ([]hal.Port, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("failed to parse inventory: %w", err)
	}
	ports := make([]hal.Port, 0, len(inv.Ports))
	for i, spec := range inv.Ports {
		class, err := hal.ParseDeviceClass(spec.Class)
		if err != nil {
			return nil, fmt.Errorf("port %d: %w", i, err)
		}
		if class == hal.DeviceNone {
			return nil, fmt.Errorf("port %d: missing class", i)
		}
		p := hal.Port{
			Class:       class,
			Address:     spec.Address,
			Name:        spec.Name,
			Direction:   hal.Sink,
			SampleRates: spec.SampleRates,
		}
		if class.IsInput() {
			p.Direction = hal.Source
		}
		if p.Name == "" {
			p.Name = class.String()
		}
		for _, m := range spec.Masks {
			p.Masks = append(p.Masks, hal.ChannelMask(m))
		}
		for _, e := range spec.Encodings {
			enc, err := hal.ParseEncoding(e)
			if err != nil {
				return nil, fmt.Errorf("port %d: %w", i, err)
			}
			p.Encodings = append(p.Encodings, enc)
		}
		if spec.Gain != nil {
			p.Gain = hal.GainDescriptor{Min: spec.Gain.Min, Max: spec.Gain.Max, Default: spec.Gain.Default, Step: spec.Gain.Step}
		}
		ports = append(ports, p)
	}
	return ports, nil
}
