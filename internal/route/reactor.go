package route

import (
	applog "tvroute/internal/log"
)

// routeChangedLocked reacts to a platform route notification. Repeats of the
// current route are ignored. A change supersedes any pending reconcile and
// schedules a new one after the settle delay, or runs it at once when the
// platform has no hardware inputs.
func (e *Engine) routeChangedLocked(r Route) {
	if e.routeKnown && r == e.route {
		applog.Debugf("Engine: route %s unchanged", r)
		return
	}
	e.route = r
	e.routeKnown = true
	e.debounce.Cancel()
	e.decodeStarted = false

	delay := e.opts.RouteDelay
	if e.platform.A2DPActive() {
		delay = e.opts.A2DPDelay
	}
	immediate := !e.platform.HasHardwareInputs()
	if immediate {
		delay = 0
	}
	e.emit(EventRouteChanged, RouteData{Devices: r.Devices.String(), DigitalFormat: r.DigitalFormat.String(), Delay: delay})

	if immediate {
		applog.Infof("Engine: route changed to %s, reconciling now", r)
		e.routeReconcileLocked()
		return
	}
	applog.Infof("Engine: route changed to %s, reconciling in %s", r, delay)
	e.metrics.debounced()
	e.debounce.Schedule(delay, func(h Handle) {
		if err := e.enqueue(event{kind: evReconcile, handle: h}); err != nil {
			applog.Debugf("Engine: route reconcile dropped: %v", err)
		}
	})
}

// routeReconcileLocked refreshes the patch and the gain for the current
// route.
func (e *Engine) routeReconcileLocked() {
	res := e.reconcileLocked(false)
	switch res.Outcome {
	case OutcomeCreated, OutcomeRecreated, OutcomeQueryFailed:
		// gain already applied, or the inventory is unreachable
		return
	}
	if err := e.applyGainLocked(); err != nil {
		applog.Debugf("Engine: gain after route change: %v", err)
	}
}
