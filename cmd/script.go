package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tvroute/internal/command"
	"tvroute/internal/hal"
	applog "tvroute/internal/log"
	"tvroute/internal/route"
)

// stepKind names a script verb.
type stepKind string

const (
	stepAudio     stepKind = "audio"
	stepFolded    stepKind = "folded"
	stepRoute     stepKind = "route"
	stepVolume    stepKind = "volume"
	stepInputs    stepKind = "inputs"
	stepDied      stepKind = "died"
	stepSleep     stepKind = "sleep"
	stepReconcile stepKind = "reconcile"
	stepFlush     stepKind = "flush"
	stepSnapshot  stepKind = "snapshot"
)

// Step is one parsed script line.
type Step struct {
	Line   int
	Kind   stepKind
	Env    command.Envelope
	Folded command.Folded
	Route  route.Route
	Stream hal.StreamClass
	Index  int
	On     bool
	Delay  time.Duration
}

// ParseScript reads an event script. Each line is a verb and its arguments:
//
//	audio <op> [p1] [p2] [session] [source]
//	folded <cmd> <p1> <p2> [source]
//	route <devices> [encoding]
//	volume <index> [stream]
//	inputs on|off
//	died | reconcile | flush | snapshot
//	sleep <duration>
//
// Blank lines and text after '#' are ignored.
func ParseScript(r io.Reader) ([]Step, error) {
	var steps []Step
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text, _, _ := strings.Cut(sc.Text(), "#")
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		step, err := parseStep(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		step.Line = line
		steps = append(steps, step)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return steps, nil
}

func parseStep(fields []string) (Step, error) {
	verb, args := stepKind(strings.ToLower(fields[0])), fields[1:]
	s := Step{Kind: verb}
	switch verb {
	case stepAudio:
		if len(args) < 1 || len(args) > 5 {
			return s, fmt.Errorf("usage: audio <op> [p1] [p2] [session] [source]")
		}
		op, err := parseOpcode(args[0])
		if err != nil {
			return s, err
		}
		s.Env = command.Envelope{Op: op, Session: command.NoSession}
		ints := []*int32{&s.Env.Param1, &s.Env.Param2, (*int32)(&s.Env.Session)}
		for i, a := range args[1:min(len(args), 4)] {
			v, err := strconv.ParseInt(a, 0, 32)
			if err != nil {
				return s, fmt.Errorf("invalid integer %q", a)
			}
			*ints[i] = int32(v)
		}
		if len(args) == 5 {
			src, ok := command.ParseSource(args[4])
			if !ok {
				return s, fmt.Errorf("unknown source %q", args[4])
			}
			s.Env.Source = src
		}

	case stepFolded:
		if len(args) < 3 || len(args) > 4 {
			return s, fmt.Errorf("usage: folded <cmd> <p1> <p2> [source]")
		}
		var vals [3]int32
		for i, a := range args[:3] {
			v, err := strconv.ParseInt(a, 0, 32)
			if err != nil {
				return s, fmt.Errorf("invalid integer %q", a)
			}
			vals[i] = int32(v)
		}
		s.Folded = command.Folded{Command: vals[0], Param1: vals[1], Param2: vals[2]}
		if len(args) == 4 {
			src, ok := command.ParseSource(args[3])
			if !ok {
				return s, fmt.Errorf("unknown source %q", args[3])
			}
			s.Env.Source = src
		}

	case stepRoute:
		if len(args) < 1 || len(args) > 2 {
			return s, fmt.Errorf("usage: route <devices> [encoding]")
		}
		devices, err := hal.ParseDeviceClass(args[0])
		if err != nil {
			return s, err
		}
		if devices.IsInput() {
			return s, fmt.Errorf("route devices must be outputs, got %s", devices)
		}
		s.Route.Devices = devices
		if len(args) == 2 {
			enc, err := hal.ParseEncoding(args[1])
			if err != nil {
				return s, err
			}
			s.Route.DigitalFormat = enc
		}

	case stepVolume:
		if len(args) < 1 || len(args) > 2 {
			return s, fmt.Errorf("usage: volume <index> [stream]")
		}
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return s, fmt.Errorf("invalid volume index %q", args[0])
		}
		s.Index = idx
		if len(args) == 2 {
			stream, ok := hal.ParseStreamClass(args[1])
			if !ok {
				return s, fmt.Errorf("unknown stream %q", args[1])
			}
			s.Stream = stream
		}

	case stepInputs:
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return s, fmt.Errorf("usage: inputs on|off")
		}
		s.On = args[0] == "on"

	case stepSleep:
		if len(args) != 1 {
			return s, fmt.Errorf("usage: sleep <duration>")
		}
		d, err := time.ParseDuration(args[0])
		if err != nil || d < 0 {
			return s, fmt.Errorf("invalid duration %q", args[0])
		}
		s.Delay = d

	case stepDied, stepReconcile, stepFlush, stepSnapshot:
		if len(args) != 0 {
			return s, fmt.Errorf("%s takes no arguments", verb)
		}

	default:
		return s, fmt.Errorf("unknown verb %q", fields[0])
	}
	return s, nil
}

func parseOpcode(s string) (command.Opcode, error) {
	if op, ok := command.ParseOpcode(strings.ToLower(s)); ok {
		return op, nil
	}
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown opcode %q", s)
	}
	return command.Opcode(v), nil
}

// engineAPI is the part of the route engine a script drives.
type engineAPI interface {
	HandleRouteChanged(r route.Route) error
	HandleVolumeChanged(stream hal.StreamClass, index int) error
	HandleClientDied() error
	HandleFoldedCommand(f command.Folded, source command.Source) error
	Reconcile(ctx context.Context) (route.ReconcileResult, error)
	Flush(ctx context.Context) error
	Snapshot() route.Snapshot
}

// platformAPI is the mutable platform state a script changes before
// notifying the engine.
type platformAPI interface {
	SetOutput(output hal.DeviceClass)
	SetVolume(stream hal.StreamClass, index int)
	SetHardwareInputs(present bool)
}

// Player executes script steps against a running engine. Commands go
// through the mux so each producer keeps its own order.
type Player struct {
	engine   engineAPI
	platform platformAPI
	mux      *command.Mux
	out      io.Writer
}

// NewPlayer returns a player writing snapshots to out.
func NewPlayer(engine engineAPI, platform platformAPI, mux *command.Mux, out io.Writer) *Player {
	return &Player{engine: engine, platform: platform, mux: mux, out: out}
}

// Play runs steps in order. It stops at the first failing step or when ctx
// is done.
func (p *Player) Play(ctx context.Context, steps []Step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.step(ctx, s); err != nil {
			return fmt.Errorf("line %d (%s): %w", s.Line, s.Kind, err)
		}
	}
	return nil
}

func (p *Player) step(ctx context.Context, s Step) error {
	applog.Debugf("Script: line %d %s", s.Line, s.Kind)
	switch s.Kind {
	case stepAudio:
		return p.mux.Producer(s.Env.Source).Emit(s.Env.Op, s.Env.Param1, s.Env.Param2, s.Env.Session)
	case stepFolded:
		return p.engine.HandleFoldedCommand(s.Folded, s.Env.Source)
	case stepRoute:
		p.platform.SetOutput(s.Route.Devices)
		return p.engine.HandleRouteChanged(s.Route)
	case stepVolume:
		p.platform.SetVolume(s.Stream, s.Index)
		return p.engine.HandleVolumeChanged(s.Stream, s.Index)
	case stepInputs:
		p.platform.SetHardwareInputs(s.On)
		return nil
	case stepDied:
		return p.engine.HandleClientDied()
	case stepSleep:
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case stepReconcile:
		res, err := p.engine.Reconcile(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(p.out, "reconcile: %s\n", res.Outcome)
		return nil
	case stepFlush:
		return p.engine.Flush(ctx)
	case stepSnapshot:
		if err := p.engine.Flush(ctx); err != nil {
			return err
		}
		writeSnapshot(p.out, p.engine.Snapshot())
		return nil
	}
	return fmt.Errorf("unhandled step %q", s.Kind)
}

func writeSnapshot(w io.Writer, snap route.Snapshot) {
	fmt.Fprintf(w, "state: %s\n", snap.State)
	if snap.Patch != nil {
		fmt.Fprintf(w, "patch: %s %s ->", snap.Patch.Handle, snap.Patch.Source)
		for _, s := range snap.Patch.Sinks {
			fmt.Fprintf(w, " %s", s)
		}
		fmt.Fprintln(w)
	}
	paths := make([]string, len(snap.Paths))
	for i, id := range snap.Paths {
		paths[i] = strconv.Itoa(int(id))
	}
	fmt.Fprintf(w, "paths: [%s]\n", strings.Join(paths, " "))
	fmt.Fprintf(w, "route: %s pending=%t\n", snap.Route, snap.RoutePending)
	fmt.Fprintf(w, "decoder: opened=%t started=%t mode=%s\n", snap.DecodeOpened, snap.DecodeStarted, snap.ManageMode)
	fmt.Fprintf(w, "volume: %d/%d\n", snap.Volume, snap.VolumeMax)
}
