package route

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	patchCreates   prometheus.Counter
	patchReleases  prometheus.Counter
	hardwareErrors *prometheus.CounterVec
	reconciles     *prometheus.CounterVec
	commands       *prometheus.CounterVec
	gainApplied    prometheus.Counter
	pathsOpen      prometheus.Gauge
	patchActive    prometheus.Gauge
	debounces      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		patchCreates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "patch", Name: "creates_total",
			Help: "Audio patches created.",
		}),
		patchReleases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "patch", Name: "releases_total",
			Help: "Audio patches released.",
		}),
		hardwareErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "hardware", Name: "errors_total",
			Help: "Failed hardware calls by operation.",
		}, []string{"op"}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "engine", Name: "reconcile_passes_total",
			Help: "Reconciliation passes by outcome.",
		}, []string{"outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "engine", Name: "commands_total",
			Help: "Dispatched commands by opcode and producer.",
		}, []string{"op", "source"}),
		gainApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "patch", Name: "gain_applied_total",
			Help: "Successful port gain applications.",
		}),
		pathsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tvroute", Subsystem: "engine", Name: "paths_open",
			Help: "Decode paths sharing the patch.",
		}),
		patchActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tvroute", Subsystem: "patch", Name: "active",
			Help: "1 while the engine owns a patch.",
		}),
		debounces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tvroute", Subsystem: "engine", Name: "route_debounces_total",
			Help: "Route-change reconciliations scheduled with a delay.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.patchCreates, m.patchReleases, m.hardwareErrors, m.reconciles,
		m.commands, m.gainApplied, m.pathsOpen, m.patchActive, m.debounces,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) patchCreated() {
	if m == nil {
		return
	}
	m.patchCreates.Inc()
	m.patchActive.Set(1)
}

func (m *Metrics) patchReleased() {
	if m == nil {
		return
	}
	m.patchReleases.Inc()
	m.patchActive.Set(0)
}

func (m *Metrics) hardwareError(op string) {
	if m == nil {
		return
	}
	m.hardwareErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) reconciled(outcome Outcome) {
	if m == nil {
		return
	}
	m.reconciles.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) command(op, source string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(op, source).Inc()
}

func (m *Metrics) gain() {
	if m == nil {
		return
	}
	m.gainApplied.Inc()
}

func (m *Metrics) paths(n int) {
	if m == nil {
		return
	}
	m.pathsOpen.Set(float64(n))
}

func (m *Metrics) debounced() {
	if m == nil {
		return
	}
	m.debounces.Inc()
}
