/*
Package route reconciles the single hardware audio patch of a TV tuner
pipeline with the platform's output route, the decoder lifecycle and the
stream volume.

Concurrency:
  - Commands, route changes and client deaths are queued and handled by one
    event goroutine, in arrival order.
  - Volume changes take the engine mutex directly and never wait for the
    queue.
  - Delayed route reconciliations are cancellable; only the most recent one
    runs.
*/
package route

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tvroute/internal/command"
	"tvroute/internal/hal"
	applog "tvroute/internal/log"
)

// ManageMode selects who owns the patch.
type ManageMode int

const (
	// ManageAuto lets the engine create and release the patch.
	ManageAuto ManageMode = iota
	// ManageExternal leaves the patch to another component.
	ManageExternal
)

func (m ManageMode) String() string {
	if m == ManageExternal {
		return "external"
	}
	return "auto"
}

// ParseManageMode accepts "auto" and "external".
func ParseManageMode(s string) (ManageMode, error) {
	switch s {
	case "", "auto":
		return ManageAuto, nil
	case "external":
		return ManageExternal, nil
	}
	return ManageAuto, fmt.Errorf("invalid patch manage mode %q", s)
}

// Route describes the platform's output route as far as the engine cares.
type Route struct {
	Devices       hal.DeviceClass
	DigitalFormat hal.Encoding
}

func (r Route) String() string {
	return fmt.Sprintf("%s/%s", r.Devices, r.DigitalFormat)
}

// Options configures an Engine.
type Options struct {
	// Stream is the stream class whose route and volume drive the patch.
	Stream hal.StreamClass
	// InputClass and InputAddress select the initial source port.
	InputClass   hal.DeviceClass
	InputAddress string
	// QueueSize bounds the inbound event queue.
	QueueSize int
	// RouteDelay and A2DPDelay debounce route changes.
	RouteDelay time.Duration
	A2DPDelay  time.Duration
	ManageMode ManageMode
	// LegacyFold pushes commands to the hardware in the packed triple form.
	LegacyFold bool
	Curve      *VolumeCurve
	Metrics    *Metrics
	Listeners  []Listener
}

// DefaultOptions returns the settings used on a stock device.
func DefaultOptions() Options {
	return Options{
		Stream:     hal.StreamMusic,
		InputClass: hal.DeviceTVTuner,
		QueueSize:  64,
		RouteDelay: 500 * time.Millisecond,
		A2DPDelay:  2500 * time.Millisecond,
	}
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	State         State
	Patch         *hal.Patch
	Paths         []command.SessionID
	Input         hal.PortRef
	Desired       hal.Format
	Route         Route
	ManageMode    ManageMode
	DecodeOpened  bool
	DecodeStarted bool
	Volume        int
	VolumeMax     int
	RoutePending  bool
}

type eventKind int

const (
	evCommand eventKind = iota
	evRouteChanged
	evClientDied
	evReconcile
	evCall
)

type event struct {
	kind   eventKind
	cmd    command.Envelope
	route  Route
	handle Handle
	fn     func()
	done   chan struct{}
}

// Engine owns the patch, the path set and the route reactor for one stream.
type Engine struct {
	hw       hal.Hardware
	platform hal.Platform
	opts     Options
	metrics  *Metrics

	// mu guards everything below; the event goroutine and the volume fast
	// path both take it.
	mu            sync.Mutex
	mgr           *PatchManager
	paths         *PathTracker
	input         hal.PortRef
	desired       hal.Format
	route         Route
	routeKnown    bool
	manageMode    ManageMode
	decodeOpened  bool
	decodeStarted bool
	volume        int
	volumeMax     int
	closed        bool

	listenersMu sync.RWMutex
	listeners   []Listener

	debounce  *Debouncer
	events    chan event
	quit      chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New starts an engine on hw. The event goroutine runs until Close.
func New(hw hal.Hardware, platform hal.Platform, opts Options) (*Engine, error) {
	if hw == nil || platform == nil {
		return nil, fmt.Errorf("route: hardware and platform are required")
	}
	def := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.RouteDelay < 0 || opts.A2DPDelay < 0 {
		return nil, fmt.Errorf("route: negative route delay")
	}
	if opts.Curve == nil {
		curve, err := NewVolumeCurve(DefaultVolumeCurve)
		if err != nil {
			return nil, err
		}
		opts.Curve = curve
	}

	e := &Engine{
		hw:         hw,
		platform:   platform,
		opts:       opts,
		metrics:    opts.Metrics,
		input:      hal.PortRef{Class: opts.InputClass, Address: opts.InputAddress},
		manageMode: opts.ManageMode,
		listeners:  append([]Listener(nil), opts.Listeners...),
		debounce:   NewDebouncer(),
		events:     make(chan event, opts.QueueSize),
		quit:       make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	e.volume, e.volumeMax = platform.VolumeIndex(opts.Stream)
	e.mgr = NewPatchManager(hw, opts.Curve, e.metrics, e.emit)
	e.paths = NewPathTracker(e.mgr, e.metrics, e.emit, e.patchGone)

	go e.run()
	applog.Infof("Engine: started (stream=%s input=%s mode=%s)", opts.Stream, e.input, e.manageMode)
	return e, nil
}

// Subscribe adds a listener for engine events.
func (e *Engine) Subscribe(l Listener) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, l)
	e.listenersMu.Unlock()
}

// HandleCommand queues env. It implements command.Handler.
func (e *Engine) HandleCommand(env command.Envelope) error {
	return e.enqueue(event{kind: evCommand, cmd: env})
}

// HandleAudioEvent queues a command from its parts.
func (e *Engine) HandleAudioEvent(op command.Opcode, param1, param2 int32, session command.SessionID, source command.Source) error {
	return e.HandleCommand(command.Envelope{Op: op, Param1: param1, Param2: param2, Session: session, Source: source})
}

// HandleFoldedCommand unpacks a legacy triple and queues it.
func (e *Engine) HandleFoldedCommand(f command.Folded, source command.Source) error {
	env, err := command.Unfold(f)
	if err != nil {
		return err
	}
	env.Source = source
	return e.HandleCommand(env)
}

// HandleRouteChanged queues a platform route notification.
func (e *Engine) HandleRouteChanged(r Route) error {
	return e.enqueue(event{kind: evRouteChanged, route: r})
}

// HandleClientDied queues teardown after the controlling client went away.
func (e *Engine) HandleClientDied() error {
	return e.enqueue(event{kind: evClientDied})
}

// HandleVolumeChanged applies the gain for a new volume index on the
// caller's goroutine. Other stream classes are ignored.
func (e *Engine) HandleVolumeChanged(stream hal.StreamClass, index int) error {
	if stream != e.opts.Stream {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	_, maxIndex := e.platform.VolumeIndex(stream)
	e.volume, e.volumeMax = index, maxIndex
	return e.applyGainLocked()
}

// Reconcile runs one pass on the event goroutine and returns its result.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	err := e.call(ctx, func() { res = e.reconcileLocked(false) })
	return res, err
}

// Flush waits until every event queued before the call has been handled.
func (e *Engine) Flush(ctx context.Context) error {
	return e.call(ctx, func() {})
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		State:         e.mgr.State(),
		Paths:         e.paths.Paths(),
		Input:         e.input,
		Desired:       e.desired,
		Route:         e.route,
		ManageMode:    e.manageMode,
		DecodeOpened:  e.decodeOpened,
		DecodeStarted: e.decodeStarted,
		Volume:        e.volume,
		VolumeMax:     e.volumeMax,
		RoutePending:  e.debounce.Pending(),
	}
	if p, ok := e.mgr.Patch(); ok {
		s.Patch = &p
	}
	return s
}

// Close stops the event goroutine, cancels the pending route task and
// releases the patch. Later calls return the first result.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.debounce.Stop()
		close(e.quit)
		select {
		case <-e.loopDone:
		case <-ctx.Done():
			e.closeErr = ctx.Err()
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		e.closed = true
		e.paths.Clear()
		if err := e.mgr.Release("engine closed"); err != nil && e.closeErr == nil {
			e.closeErr = err
		}
		e.decodeOpened, e.decodeStarted = false, false
		applog.Info("Engine: closed")
	})
	return e.closeErr
}

func (e *Engine) enqueue(ev event) error {
	select {
	case <-e.quit:
		return ErrEngineClosed
	default:
	}
	select {
	case e.events <- ev:
		return nil
	case <-e.quit:
		return ErrEngineClosed
	}
}

func (e *Engine) call(ctx context.Context, fn func()) error {
	ev := event{kind: evCall, fn: fn, done: make(chan struct{})}
	if err := e.enqueue(ev); err != nil {
		return err
	}
	select {
	case <-ev.done:
		return nil
	case <-e.loopDone:
		// The loop may have handled the call while draining.
		select {
		case <-ev.done:
			return nil
		default:
			return ErrEngineClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) run() {
	defer close(e.loopDone)
	for {
		select {
		case ev := <-e.events:
			e.process(ev)
		case <-e.quit:
			for {
				select {
				case ev := <-e.events:
					e.process(ev)
				default:
					return
				}
			}
		}
	}
}

func (e *Engine) process(ev event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ev.done != nil {
		defer close(ev.done)
	}
	if e.closed {
		return
	}

	switch ev.kind {
	case evCommand:
		e.dispatchLocked(ev.cmd)
	case evRouteChanged:
		e.routeChangedLocked(ev.route)
	case evClientDied:
		e.clientDiedLocked()
	case evReconcile:
		if !ev.handle.Current() {
			applog.Debug("Engine: dropping superseded route reconcile")
			return
		}
		e.routeReconcileLocked()
	case evCall:
		ev.fn()
	}
}

// reconcileLocked runs a pass when the engine manages a wanted patch.
func (e *Engine) reconcileLocked(force bool) ReconcileResult {
	if e.manageMode == ManageExternal {
		return ReconcileResult{Outcome: OutcomeIdle}
	}
	if !e.decodeOpened && e.mgr.State() == NoPatch {
		return ReconcileResult{Outcome: OutcomeIdle}
	}
	res := e.mgr.Reconcile(ReconcileRequest{
		Devices:      e.platform.OutputDevices(e.opts.Stream),
		InputClass:   e.input.Class,
		InputAddress: e.input.Address,
		Desired:      e.desired,
		Force:        force,
		Volume:       e.volume,
		VolumeMax:    e.volumeMax,
	})
	if res.Released {
		e.decodeStarted = false
	}
	if e.mgr.State() == NoPatch {
		e.patchGone()
	}
	return res
}

// patchGone resets everything tied to a live patch.
func (e *Engine) patchGone() {
	if e.mgr.State() != NoPatch {
		return
	}
	e.paths.Clear()
	e.decodeOpened = false
	e.decodeStarted = false
}

func (e *Engine) applyGainLocked() error {
	return e.mgr.ApplyGain(e.input.Class, e.input.Address, e.volume, e.volumeMax)
}

func (e *Engine) clientDiedLocked() {
	applog.Warn("Engine: client died, releasing patch")
	e.debounce.Cancel()
	e.paths.ForceReleaseAll("client died")
	e.decodeOpened = false
	e.decodeStarted = false
}

func (e *Engine) emit(t EventType, data any) {
	ev := Event{Type: t, Time: time.Now(), Data: data}
	e.listenersMu.RLock()
	defer e.listenersMu.RUnlock()
	for _, l := range e.listeners {
		if err := l.Send(ev); err != nil {
			applog.Debugf("Engine: listener dropped %s: %v", t, err)
		}
	}
}
