package route

import (
	"errors"
	"fmt"
)

var (
	// ErrHardwareQuery means port enumeration failed; the pass is aborted
	// and nothing about the patch changed.
	ErrHardwareQuery = errors.New("hardware query failed")
	// ErrHardwareCommand means a create, release or gain call failed.
	ErrHardwareCommand = errors.New("hardware command failed")
	// ErrConfigurationUnsatisfiable is part of the taxonomy only: negotiation
	// always falls back to a best-effort configuration.
	ErrConfigurationUnsatisfiable = errors.New("configuration unsatisfiable")
	// ErrEngineClosed is returned when events arrive after Close.
	ErrEngineClosed = errors.New("route engine closed")
)

// HardwareError records which hardware operation failed.
type HardwareError struct {
	Op  string
	Err error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HardwareError) Unwrap() error { return e.Err }

// Is matches the taxonomy sentinel for the operation.
func (e *HardwareError) Is(target error) bool {
	if target == ErrHardwareQuery {
		return e.Op == opListPorts
	}
	if target == ErrHardwareCommand {
		return e.Op != opListPorts
	}
	return false
}

const (
	opListPorts    = "list_ports"
	opCreatePatch  = "create_patch"
	opReleasePatch = "release_patch"
	opSetPortGain  = "set_port_gain"
	opSetParams    = "set_parameters"
)

func hwErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &HardwareError{Op: op, Err: err}
}
