// Package sim is an in-memory hardware service. It keeps a port inventory,
// reflects live patches in the ports' active configurations and records
// every call so reconciliation can be observed from tests and the CLI.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"tvroute/internal/hal"
	applog "tvroute/internal/log"
)

// Op names a recorded hardware call.
type Op string

const (
	OpListPorts     Op = "list_ports"
	OpCreatePatch   Op = "create_patch"
	OpReleasePatch  Op = "release_patch"
	OpSetPortGain   Op = "set_port_gain"
	OpSetParameters Op = "set_parameters"
)

// Call is one recorded hardware call.
type Call struct {
	Op     Op
	Handle hal.PatchHandle
	Source hal.PortConfig
	Sinks  []hal.PortConfig
	Port   hal.PortRef
	Gain   hal.GainConfig
	Params string
	Err    error
}

// ErrInjected is returned by operations armed with Fail.
var ErrInjected = errors.New("sim: injected failure")

// Hardware implements hal.Hardware in memory. It is safe for concurrent use.
type Hardware struct {
	mu      sync.Mutex
	ports   []hal.Port
	patches map[hal.PatchHandle]hal.Patch
	params  map[string]string
	calls   []Call
	fail    map[Op]int
}

var _ hal.Hardware = (*Hardware)(nil)

// New returns hardware exposing the given ports.
func New(ports ...hal.Port) *Hardware {
	h := &Hardware{
		patches: make(map[hal.PatchHandle]hal.Patch),
		params:  make(map[string]string),
		fail:    make(map[Op]int),
	}
	h.SetPorts(ports...)
	return h
}

// SetPorts replaces the inventory, as a hotplug would.
func (h *Hardware) SetPorts(ports ...hal.Port) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ports = make([]hal.Port, len(ports))
	for i, p := range ports {
		h.ports[i] = clonePort(p)
	}
}

// Fail arms op to fail for its next n calls.
func (h *Hardware) Fail(op Op, n int) {
	h.mu.Lock()
	h.fail[op] = n
	h.mu.Unlock()
}

func (h *Hardware) injected(op Op) error {
	if h.fail[op] > 0 {
		h.fail[op]--
		return ErrInjected
	}
	return nil
}

func (h *Hardware) ListPorts() ([]hal.Port, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.injected(OpListPorts); err != nil {
		h.calls = append(h.calls, Call{Op: OpListPorts, Err: err})
		return nil, err
	}
	h.calls = append(h.calls, Call{Op: OpListPorts})
	out := make([]hal.Port, len(h.ports))
	for i, p := range h.ports {
		out[i] = clonePort(p)
	}
	return out, nil
}

func (h *Hardware) CreatePatch(source hal.PortConfig, sinks []hal.PortConfig) (hal.PatchHandle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	call := Call{Op: OpCreatePatch, Source: source, Sinks: append([]hal.PortConfig(nil), sinks...)}
	if err := h.injected(OpCreatePatch); err != nil {
		call.Err = err
		h.calls = append(h.calls, call)
		return "", err
	}
	if len(sinks) == 0 {
		call.Err = errors.New("sim: patch without sinks")
		h.calls = append(h.calls, call)
		return "", call.Err
	}
	for _, ref := range append([]hal.PortConfig{source}, sinks...) {
		if h.indexOf(ref.Port) < 0 {
			call.Err = fmt.Errorf("sim: unknown port %s", ref.Port)
			h.calls = append(h.calls, call)
			return "", call.Err
		}
	}

	handle := hal.PatchHandle(uuid.NewString())
	call.Handle = handle
	h.patches[handle] = hal.Patch{Handle: handle, Source: source, Sinks: call.Sinks}
	h.setActive(source)
	for _, s := range sinks {
		h.setActive(s)
	}
	h.calls = append(h.calls, call)
	applog.Debugf("SimHardware: created patch %s %s -> %d sink(s)", handle, source, len(sinks))
	return handle, nil
}

func (h *Hardware) ReleasePatch(handle hal.PatchHandle) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	call := Call{Op: OpReleasePatch, Handle: handle}
	if err := h.injected(OpReleasePatch); err != nil {
		call.Err = err
		h.calls = append(h.calls, call)
		return err
	}
	p, ok := h.patches[handle]
	if !ok {
		call.Err = fmt.Errorf("sim: unknown patch %s", handle)
		h.calls = append(h.calls, call)
		return call.Err
	}
	delete(h.patches, handle)
	h.clearActive(p.Source.Port)
	for _, s := range p.Sinks {
		h.clearActive(s.Port)
	}
	h.calls = append(h.calls, call)
	return nil
}

func (h *Hardware) SetPortGain(port hal.PortRef, gain hal.GainConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	call := Call{Op: OpSetPortGain, Port: port, Gain: gain}
	if err := h.injected(OpSetPortGain); err != nil {
		call.Err = err
		h.calls = append(h.calls, call)
		return err
	}
	if h.indexOf(port) < 0 {
		call.Err = fmt.Errorf("sim: unknown port %s", port)
		h.calls = append(h.calls, call)
		return call.Err
	}
	h.calls = append(h.calls, call)
	return nil
}

func (h *Hardware) SetParameters(kv string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	call := Call{Op: OpSetParameters, Params: kv}
	if err := h.injected(OpSetParameters); err != nil {
		call.Err = err
		h.calls = append(h.calls, call)
		return err
	}
	p := hal.ParseParams(kv)
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		h.params[k] = v
	}
	h.calls = append(h.calls, call)
	return nil
}

func (h *Hardware) GetParameter(key string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params[key]
}

// Calls returns a copy of the call log.
func (h *Hardware) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// CallsOf returns the successful calls of one kind.
func (h *Hardware) CallsOf(op Op) []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Call
	for _, c := range h.calls {
		if c.Op == op && c.Err == nil {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of successful calls of one kind.
func (h *Hardware) Count(op Op) int { return len(h.CallsOf(op)) }

// ResetCalls clears the call log.
func (h *Hardware) ResetCalls() {
	h.mu.Lock()
	h.calls = nil
	h.mu.Unlock()
}

// Patches returns the live patches.
func (h *Hardware) Patches() []hal.Patch {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]hal.Patch, 0, len(h.patches))
	for _, p := range h.patches {
		out = append(out, p)
	}
	return out
}

func (h *Hardware) indexOf(ref hal.PortRef) int {
	for i, p := range h.ports {
		if p.Ref() == ref {
			return i
		}
	}
	return -1
}

func (h *Hardware) setActive(cfg hal.PortConfig) {
	if i := h.indexOf(cfg.Port); i >= 0 {
		c := cfg
		h.ports[i].Active = &c
	}
}

func (h *Hardware) clearActive(ref hal.PortRef) {
	if i := h.indexOf(ref); i >= 0 {
		h.ports[i].Active = nil
	}
}

func clonePort(p hal.Port) hal.Port {
	p.SampleRates = append([]int(nil), p.SampleRates...)
	p.Masks = append([]hal.ChannelMask(nil), p.Masks...)
	p.Encodings = append([]hal.Encoding(nil), p.Encodings...)
	if p.Active != nil {
		a := *p.Active
		p.Active = &a
	}
	return p
}
