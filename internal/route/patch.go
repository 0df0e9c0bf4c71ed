package route

import (
	"tvroute/internal/hal"
	applog "tvroute/internal/log"
)

// State is the patch lifecycle state.
type State int

const (
	NoPatch State = iota
	PatchActive
)

func (s State) String() string {
	if s == PatchActive {
		return "patch-active"
	}
	return "no-patch"
}

// Outcome summarises one reconciliation pass.
type Outcome int

const (
	OutcomeIdle Outcome = iota
	OutcomeUnchanged
	OutcomeCreated
	OutcomeRecreated
	OutcomeReleased
	OutcomeQueryFailed
	OutcomeCommandFailed
)

var outcomeNames = []string{"idle", "unchanged", "created", "recreated", "released", "query_failed", "command_failed"}

func (o Outcome) String() string {
	if int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return "unknown"
}

// ReconcileRequest carries the inputs of one pass.
type ReconcileRequest struct {
	Devices      hal.DeviceClass
	InputClass   hal.DeviceClass
	InputAddress string
	Desired      hal.Format
	// Force recreates a live patch even when nothing changed.
	Force bool
	// Volume feeds the gain step after a successful create.
	Volume    int
	VolumeMax int
}

// ReconcileResult reports what a pass did.
type ReconcileResult struct {
	Outcome Outcome
	// Released is set whenever the pass released the previous patch.
	Released    bool
	Negotiation *Negotiation
	Err         error
}

// PatchManager owns the single hardware patch.
type PatchManager struct {
	hw      hal.Hardware
	inv     *Inventory
	curve   *VolumeCurve
	metrics *Metrics
	emit    func(EventType, any)

	patch      *hal.Patch
	lastSinks  []hal.PortRef
	lastSource *hal.PortRef
}

// NewPatchManager returns a manager in NoPatch. metrics and emit may be nil.
func NewPatchManager(hw hal.Hardware, curve *VolumeCurve, metrics *Metrics, emit func(EventType, any)) *PatchManager {
	if emit == nil {
		emit = func(EventType, any) {}
	}
	return &PatchManager{
		hw:      hw,
		inv:     NewInventory(hw),
		curve:   curve,
		metrics: metrics,
		emit:    emit,
	}
}

// State returns NoPatch or PatchActive.
func (m *PatchManager) State() State {
	if m.patch == nil {
		return NoPatch
	}
	return PatchActive
}

// Patch returns a copy of the owned patch, if any.
func (m *PatchManager) Patch() (hal.Patch, bool) {
	if m.patch == nil {
		return hal.Patch{}, false
	}
	p := *m.patch
	p.Sinks = append([]hal.PortConfig(nil), p.Sinks...)
	return p, true
}

// Inventory returns the manager's port inventory.
func (m *PatchManager) Inventory() *Inventory { return m.inv }

// Reconcile runs one pass: resolve source and sinks, negotiate, then create,
// keep, recreate or release the patch.
func (m *PatchManager) Reconcile(req ReconcileRequest) ReconcileResult {
	res := m.reconcile(req)
	m.metrics.reconciled(res.Outcome)
	applog.Debugf("PatchManager: reconcile %s (devices=%s input=%s)", res.Outcome, req.Devices, req.InputClass)
	return res
}

func (m *PatchManager) reconcile(req ReconcileRequest) ReconcileResult {
	var (
		source *hal.Port
		sinks  []hal.Port
	)
	if req.InputClass != hal.DeviceNone {
		ports, err := m.inv.ListPorts()
		if err != nil {
			m.hardwareFailed(opListPorts, err)
			applog.Warnf("PatchManager: port enumeration failed, keeping %s: %v", m.State(), err)
			return ReconcileResult{Outcome: OutcomeQueryFailed, Err: err}
		}
		source = FindSource(ports, req.InputClass, req.InputAddress)
		if source != nil {
			sinks = ResolveSinks(ports, req.Devices)
		}
	}

	refs := sinkRefs(sinks)
	if source == nil || len(sinks) == 0 {
		m.lastSinks = refs
		m.lastSource = nil
		if m.patch == nil {
			return ReconcileResult{Outcome: OutcomeIdle}
		}
		reason := "sinks lost"
		if source == nil {
			reason = "source lost"
		}
		if err := m.Release(reason); err != nil {
			return ReconcileResult{Outcome: OutcomeCommandFailed, Err: err}
		}
		return ReconcileResult{Outcome: OutcomeReleased, Released: true}
	}

	srcRef := source.Ref()
	sinkChanged := !sameMembers(m.lastSinks, refs)
	sourceChanged := m.lastSource == nil || *m.lastSource != srcRef
	neg := Negotiate(*source, sinks, req.Desired)

	res := ReconcileResult{Negotiation: &neg}
	if m.patch != nil {
		if !sinkChanged && !sourceChanged && !neg.Reconfigure && !req.Force {
			res.Outcome = OutcomeUnchanged
			return res
		}
		applog.Infof("PatchManager: recreating patch (sinks changed=%t source changed=%t reconfigure=%t force=%t)",
			sinkChanged, sourceChanged, neg.Reconfigure, req.Force)
		if err := m.Release("reconfigure"); err != nil {
			res.Outcome, res.Err = OutcomeCommandFailed, err
			return res
		}
		res.Released = true
	}
	// Recorded only once the old patch is gone, so a failed release is
	// retried on the next pass.
	m.lastSinks = refs
	m.lastSource = &srcRef

	handle, err := m.hw.CreatePatch(neg.Source, neg.Sinks)
	if err != nil {
		err = hwErr(opCreatePatch, err)
		m.hardwareFailed(opCreatePatch, err)
		applog.Errorf("PatchManager: create patch %s failed: %v", neg.Source, err)
		res.Outcome, res.Err = OutcomeCommandFailed, err
		return res
	}
	m.patch = &hal.Patch{Handle: handle, Source: neg.Source, Sinks: append([]hal.PortConfig(nil), neg.Sinks...)}
	m.metrics.patchCreated()
	m.emit(EventPatchCreated, patchData(*m.patch, ""))
	applog.Infof("PatchManager: created patch %s: %s -> %d sink(s)", handle, neg.Source, len(neg.Sinks))

	live := *source
	live.Active = &neg.Source
	if err := m.applyGain(live, req.Volume, req.VolumeMax); err != nil {
		res.Err = err
	}
	res.Outcome = OutcomeCreated
	if res.Released {
		res.Outcome = OutcomeRecreated
	}
	return res
}

// Release tears down the owned patch. On failure the handle is kept, since
// the hardware most likely still holds the patch.
func (m *PatchManager) Release(reason string) error {
	if m.patch == nil {
		return nil
	}
	p := *m.patch
	if err := m.hw.ReleasePatch(p.Handle); err != nil {
		err = hwErr(opReleasePatch, err)
		m.hardwareFailed(opReleasePatch, err)
		applog.Errorf("PatchManager: release patch %s (%s) failed: %v", p.Handle, reason, err)
		return err
	}
	m.patch = nil
	m.metrics.patchReleased()
	m.emit(EventPatchReleased, patchData(p, reason))
	applog.Infof("PatchManager: released patch %s (%s)", p.Handle, reason)
	return nil
}

// ApplyGain recomputes and applies the volume gain on the resolved source
// port. It does not touch the patch.
func (m *PatchManager) ApplyGain(inputClass hal.DeviceClass, address string, index, maxIndex int) error {
	src, err := ResolveSource(m.inv, inputClass, address)
	if err != nil {
		m.hardwareFailed(opListPorts, err)
		applog.Warnf("PatchManager: gain skipped, port enumeration failed: %v", err)
		return err
	}
	if src == nil {
		return nil
	}
	return m.applyGain(*src, index, maxIndex)
}

func (m *PatchManager) applyGain(source hal.Port, index, maxIndex int) error {
	if m.curve == nil {
		return nil
	}
	gc, ok := m.curve.GainFor(source, index, maxIndex)
	if !ok {
		return nil
	}
	if err := m.hw.SetPortGain(source.Ref(), gc); err != nil {
		err = hwErr(opSetPortGain, err)
		m.hardwareFailed(opSetPortGain, err)
		applog.Warnf("PatchManager: set gain on %s failed: %v", source.Ref(), err)
		return err
	}
	m.metrics.gain()
	m.emit(EventGainApplied, GainData{Port: source.Ref().String(), Millibels: gc.Values[0], Volume: index, VolumeMax: maxIndex})
	return nil
}

func (m *PatchManager) hardwareFailed(op string, err error) {
	m.metrics.hardwareError(op)
	m.emit(EventHardwareError, ErrorData{Op: op, Error: err.Error()})
}

func patchData(p hal.Patch, reason string) PatchData {
	d := PatchData{Handle: p.Handle, Source: p.Source.String(), Reason: reason}
	for _, s := range p.Sinks {
		d.Sinks = append(d.Sinks, s.String())
	}
	return d
}
