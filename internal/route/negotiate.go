package route

import "tvroute/internal/hal"

// Negotiation is the outcome of Negotiate. It is always usable: missing
// capabilities degrade to the default sentinels rather than failing.
type Negotiation struct {
	Source            hal.PortConfig
	Sinks             []hal.PortConfig
	SourceReconfigure bool
	SinkReconfigure   []bool
	// Reconfigure is true when any port needs a new configuration.
	Reconfigure bool
}

// Negotiate computes per-port configurations for a patch from source to
// sinks, honouring the set fields of desired.
func Negotiate(source hal.Port, sinks []hal.Port, desired hal.Format) Negotiation {
	n := Negotiation{
		Sinks:           make([]hal.PortConfig, len(sinks)),
		SinkReconfigure: make([]bool, len(sinks)),
	}
	anySink := false
	for i, sink := range sinks {
		cfg := negotiateSink(sink, desired)
		n.Sinks[i] = cfg
		n.SinkReconfigure[i] = sink.Active == nil || !sink.Active.SameFormat(cfg)
		anySink = anySink || n.SinkReconfigure[i]
	}

	var lead hal.PortConfig
	if len(n.Sinks) > 0 {
		lead = n.Sinks[0]
	}
	fresh := negotiateSource(source, lead)
	switch {
	case source.Active != nil && !anySink:
		// Keep whatever the live source runs at.
		n.Source = *source.Active
		n.Source.Port = source.Ref()
	default:
		n.Source = fresh
		n.SourceReconfigure = source.Active == nil || !source.Active.SameFormat(fresh)
	}
	n.Reconfigure = anySink || n.SourceReconfigure
	return n
}

func negotiateSink(sink hal.Port, desired hal.Format) hal.PortConfig {
	base := desired
	if a := sink.Active; a != nil {
		if base.SampleRate == 0 {
			base.SampleRate = a.SampleRate
		}
		if base.Mask == hal.ChannelDefault {
			base.Mask = a.Mask
		}
		if base.Encoding == hal.EncodingDefault {
			base.Encoding = a.Encoding
		}
	}

	cfg := hal.PortConfig{Port: sink.Ref(), SampleRate: base.SampleRate, Mask: base.Mask, Encoding: base.Encoding}
	if !sink.SupportsRate(cfg.SampleRate) {
		cfg.SampleRate = 0
		if len(sink.SampleRates) > 0 {
			cfg.SampleRate = sink.SampleRates[0]
		}
	}
	if !sink.SupportsMask(cfg.Mask) {
		if cfg.Mask == hal.ChannelDefault && len(sink.Masks) > 0 {
			cfg.Mask = sink.Masks[0]
		} else {
			cfg.Mask = hal.ChannelDefault
		}
	}
	if !sink.SupportsEncoding(cfg.Encoding) {
		if cfg.Encoding == hal.EncodingDefault && len(sink.Encodings) > 0 {
			cfg.Encoding = sink.Encodings[0]
		} else {
			cfg.Encoding = hal.EncodingDefault
		}
	}
	return cfg
}

func negotiateSource(source hal.Port, sink hal.PortConfig) hal.PortConfig {
	cfg := hal.PortConfig{Port: source.Ref()}

	switch {
	case sink.SampleRate != 0 && source.SupportsRate(sink.SampleRate):
		cfg.SampleRate = sink.SampleRate
	case len(source.SampleRates) > 0:
		cfg.SampleRate = source.SampleRates[0]
	}

	want := sink.Mask.Count()
	for _, m := range source.Masks {
		if m.Count() == want {
			cfg.Mask = m
			break
		}
	}

	if source.SupportsEncoding(sink.Encoding) {
		cfg.Encoding = sink.Encoding
	}
	return cfg
}
