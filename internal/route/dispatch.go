package route

import (
	"tvroute/internal/command"
	"tvroute/internal/hal"
	applog "tvroute/internal/log"
)

// Parameter keys used to forward commands to the hardware service.
const (
	ParamCommand = "tuner_cmd"
	ParamParam1  = "tuner_p1"
	ParamParam2  = "tuner_p2"
	ParamSession = "tuner_session"
	ParamSource  = "tuner_source"
)

func (e *Engine) dispatchLocked(env command.Envelope) {
	e.metrics.command(env.Op.String(), env.Source.String())
	applog.Debugf("Engine: dispatch %s", env)

	switch env.Op {
	case command.OpOpenDecoder:
		e.decodeOpened = true
		if res := e.reconcileLocked(false); res.Err != nil {
			applog.Warnf("Engine: open decoder: %v", res.Err)
		}
		if env.Session.Valid() {
			e.paths.Open(env.Session)
		}

	case command.OpCloseDecoder:
		if env.Session.Valid() {
			e.paths.Close(env.Session)
		}

	case command.OpStartDecode:
		if !e.decodeStarted {
			if res := e.reconcileLocked(false); res.Err != nil {
				applog.Warnf("Engine: start decode: %v", res.Err)
			}
			e.decodeStarted = e.mgr.State() == PatchActive
		}

	case command.OpStopDecode:
		e.decodeStarted = false

	case command.OpSetFormat:
		e.desired.Encoding = hal.Encoding(env.Param1)
		if env.Param2 > 0 {
			e.desired.SampleRate = int(env.Param2)
		}
		e.reconcileIfActiveLocked()

	case command.OpSetChannelMask:
		e.desired.Mask = hal.ChannelMask(uint32(env.Param1))
		e.reconcileIfActiveLocked()

	case command.OpOpenSource:
		e.input = hal.PortRef{Class: hal.InputFromParam(env.Param1)}
		applog.Infof("Engine: input source %s", e.input)
		if e.mgr.State() == PatchActive {
			e.reconcileLocked(false)
		}
		if err := e.applyGainLocked(); err != nil {
			applog.Debugf("Engine: gain after source change: %v", err)
		}

	case command.OpCloseSource:
		e.input = hal.PortRef{}
		e.reconcileLocked(false)

	case command.OpSetPatchManageMode:
		mode := ManageAuto
		if env.Param1 != 0 {
			mode = ManageExternal
		}
		if mode != e.manageMode {
			applog.Infof("Engine: patch manage mode %s -> %s", e.manageMode, mode)
			e.manageMode = mode
			if mode == ManageExternal {
				e.paths.ForceReleaseAll("external patch management")
			}
		}

	case command.OpClientDied:
		e.clientDiedLocked()
		return
	}

	e.pushLocked(env)
}

func (e *Engine) reconcileIfActiveLocked() {
	if e.mgr.State() != PatchActive {
		return
	}
	if res := e.reconcileLocked(false); res.Err != nil {
		applog.Warnf("Engine: format change: %v", res.Err)
	}
}

// pushLocked forwards env to the hardware service as a parameter string.
func (e *Engine) pushLocked(env command.Envelope) {
	if err := e.hw.SetParameters(e.encode(env).String()); err != nil {
		err = hwErr(opSetParams, err)
		e.mgr.hardwareFailed(opSetParams, err)
		applog.Warnf("Engine: forwarding %s failed: %v", env.Op, err)
	}
}

func (e *Engine) encode(env command.Envelope) *hal.Params {
	p := hal.NewParams()
	if e.opts.LegacyFold && env.Foldable() {
		f := env.Fold()
		return p.SetInt(ParamCommand, int(f.Command)).
			SetInt(ParamParam1, int(f.Param1)).
			SetInt(ParamParam2, int(f.Param2))
	}
	if e.opts.LegacyFold {
		applog.Warnf("Engine: %s does not fold, sending tagged form", env)
	}
	p.SetInt(ParamCommand, int(env.Op)).
		SetInt(ParamParam1, int(env.Param1)).
		SetInt(ParamParam2, int(env.Param2))
	if env.Session.Valid() {
		p.SetInt(ParamSession, int(env.Session))
	}
	return p.Set(ParamSource, env.Source.String())
}
