// Package command defines the decoder command envelope exchanged between
// the tuner producers and the route engine, and the fan-in that merges the
// producers into one ordered handler.
package command

import "fmt"

// Opcode selects a dispatch branch.
type Opcode int32

const (
	OpStartDecode Opcode = iota + 1
	OpPauseDecode
	OpResumeDecode
	OpStopDecode
	OpSetDecodeAD
	OpSetVolume
	OpSetMute
	OpSetOutputMode
	OpSetPreGain
	OpSetPreMute
	OpOpenDecoder
	OpCloseDecoder
	OpSetDemuxInfo
	OpSetSecurityMemLevel
	OpSetHasVideo
	OpSetPatchManageMode
	OpSetADMixLevel
	OpSetADVolume
	OpSetFormat
	OpSetChannelMask
	OpOpenSource
	OpCloseSource
	OpClientDied
)

var opNames = map[Opcode]string{
	OpStartDecode:         "start_decode",
	OpPauseDecode:         "pause_decode",
	OpResumeDecode:        "resume_decode",
	OpStopDecode:          "stop_decode",
	OpSetDecodeAD:         "set_decode_ad",
	OpSetVolume:           "set_volume",
	OpSetMute:             "set_mute",
	OpSetOutputMode:       "set_output_mode",
	OpSetPreGain:          "set_pre_gain",
	OpSetPreMute:          "set_pre_mute",
	OpOpenDecoder:         "open_decoder",
	OpCloseDecoder:        "close_decoder",
	OpSetDemuxInfo:        "set_demux_info",
	OpSetSecurityMemLevel: "set_security_mem_level",
	OpSetHasVideo:         "set_has_video",
	OpSetPatchManageMode:  "set_patch_manage_mode",
	OpSetADMixLevel:       "set_ad_mix_level",
	OpSetADVolume:         "set_ad_volume",
	OpSetFormat:           "set_format",
	OpSetChannelMask:      "set_channel_mask",
	OpOpenSource:          "open_source",
	OpCloseSource:         "close_source",
	OpClientDied:          "client_died",
}

func (op Opcode) String() string {
	if n, ok := opNames[op]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", int32(op))
}

// ParseOpcode accepts a name produced by String.
func ParseOpcode(s string) (Opcode, bool) {
	for op, n := range opNames {
		if n == s {
			return op, true
		}
	}
	return 0, false
}

// Source tags the producer an envelope came from.
type Source uint8

const (
	SourceTunerHAL Source = iota
	SourceTvInput
)

func (s Source) String() string {
	switch s {
	case SourceTunerHAL:
		return "tuner_hal"
	case SourceTvInput:
		return "tv_input"
	default:
		return "unknown"
	}
}

// ParseSource maps a producer name to its tag.
func ParseSource(s string) (Source, bool) {
	switch s {
	case "tuner_hal", "tuner":
		return SourceTunerHAL, true
	case "tv_input", "tvinput":
		return SourceTvInput, true
	}
	return SourceTunerHAL, false
}

// SessionID identifies one demux-driven decode session.
type SessionID int32

// NoSession marks an envelope that is not bound to a session.
const NoSession SessionID = -1

// Valid reports whether the id names a session.
func (id SessionID) Valid() bool { return id >= 0 }

// Foldable reports whether the id fits the session tag of the legacy fold.
func (id SessionID) Foldable() bool { return id >= 0 && id <= MaxSession }

// Envelope is one command event.
type Envelope struct {
	Op      Opcode
	Param1  int32
	Param2  int32
	Session SessionID
	Source  Source
}

func (e Envelope) String() string {
	if e.Session.Valid() {
		return fmt.Sprintf("%s(%d,%d) session=%d from %s", e.Op, e.Param1, e.Param2, e.Session, e.Source)
	}
	return fmt.Sprintf("%s(%d,%d) from %s", e.Op, e.Param1, e.Param2, e.Source)
}
