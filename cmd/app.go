package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tvroute/internal/command"
	"tvroute/internal/config"
	"tvroute/internal/hal"
	"tvroute/internal/hal/pa"
	"tvroute/internal/hal/sim"
	applog "tvroute/internal/log"
	"tvroute/internal/route"
	"tvroute/internal/transport"
	"tvroute/internal/transport/udp"
)

// Seams for tests.
var (
	openPortAudio = func(opts pa.Options) (hardware, error) { return pa.Open(opts) }
	newMQTT       = func(cfg transport.MQTTConfig) (transport.Transport, error) { return transport.NewMQTTTransport(cfg) }
)

// hardware is a hal.Hardware that owns resources.
type hardware interface {
	hal.Hardware
	Close() error
}

type simHardware struct{ *sim.Hardware }

func (simHardware) Close() error { return nil }

// openHardware builds the configured backend.
func openHardware(cfg config.HardwareConfig) (hardware, error) {
	switch cfg.Backend {
	case "portaudio":
		return openPortAudio(pa.Options{
			FramesPerBuffer: cfg.FramesPerBuffer,
			RecordFile:      cfg.RecordFile,
		})
	case "sim", "":
		ports := sim.DefaultPorts()
		if cfg.InventoryFile != "" {
			var err error
			if ports, err = sim.LoadInventory(cfg.InventoryFile); err != nil {
				return nil, err
			}
		}
		return simHardware{sim.New(ports...)}, nil
	}
	return nil, fmt.Errorf("unknown hardware backend %q", cfg.Backend)
}

// engineOptions translates the engine section of the configuration.
func engineOptions(cfg config.EngineConfig) (route.Options, error) {
	opts := route.DefaultOptions()
	stream, ok := hal.ParseStreamClass(cfg.Stream)
	if !ok {
		return opts, fmt.Errorf("unknown stream %q", cfg.Stream)
	}
	input, err := hal.ParseDeviceClass(cfg.InputClass)
	if err != nil {
		return opts, err
	}
	mode, err := route.ParseManageMode(cfg.PatchManageMode)
	if err != nil {
		return opts, err
	}
	opts.Stream = stream
	opts.InputClass = input
	opts.InputAddress = cfg.InputAddress
	opts.QueueSize = cfg.QueueSize
	opts.RouteDelay = cfg.RouteDelay
	opts.A2DPDelay = cfg.A2DPDelay
	opts.ManageMode = mode
	opts.LegacyFold = cfg.LegacyFold
	if len(cfg.VolumeCurve) > 0 {
		points := make([]route.CurvePoint, len(cfg.VolumeCurve))
		for i, p := range cfg.VolumeCurve {
			points[i] = route.CurvePoint{Percent: p.Percent, DB: p.DB}
		}
		if opts.Curve, err = route.NewVolumeCurve(points); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

// buildTransports creates every enabled event transport. Events are always
// logged at debug level.
func buildTransports(cfg config.TransportConfig) (*transport.Multi, *transport.WebSocketTransport, error) {
	multi := transport.NewMulti(transport.NewLoggingTransport())
	var ws *transport.WebSocketTransport

	if cfg.WebSocketEnabled {
		ws = transport.NewWebSocketTransport(cfg.WebSocketAddress)
		multi.Add(ws)
	}
	if cfg.MQTTEnabled {
		mt, err := newMQTT(transport.MQTTConfig{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			QoS:      cfg.MQTTQoS,
		})
		if err != nil {
			multi.Close()
			return nil, nil, err
		}
		multi.Add(mt)
	}
	if cfg.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.UDPTargetAddress)
		if err != nil {
			multi.Close()
			return nil, nil, err
		}
		pub, err := udp.NewPublisher(sender, 64)
		if err != nil {
			sender.Close()
			multi.Close()
			return nil, nil, err
		}
		multi.Add(pub)
	}
	return multi, ws, nil
}

// App is a fully wired route engine process.
type App struct {
	cfg        *config.Config
	hw         hardware
	platform   *sim.Platform
	engine     *route.Engine
	mux        *command.Mux
	transports *transport.Multi
	ws         *transport.WebSocketTransport
	registry   *prometheus.Registry
}

// NewApp opens the hardware and starts the engine. Close releases
// everything NewApp acquired.
func NewApp(cfg *config.Config) (*App, error) {
	output, err := hal.ParseDeviceClass(cfg.Hardware.Output)
	if err != nil {
		return nil, err
	}
	opts, err := engineOptions(cfg.Engine)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		platform: sim.NewPlatform(output),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if opts.Metrics, err = route.NewMetrics(a.registry); err != nil {
		return nil, err
	}

	if a.hw, err = openHardware(cfg.Hardware); err != nil {
		return nil, err
	}
	if a.transports, a.ws, err = buildTransports(cfg.Transport); err != nil {
		a.hw.Close()
		return nil, err
	}
	opts.Listeners = []route.Listener{a.transports}

	if a.engine, err = route.New(a.hw, a.platform, opts); err != nil {
		a.transports.Close()
		a.hw.Close()
		return nil, err
	}
	a.mux = command.NewMux(a.engine)
	return a, nil
}

// Run serves the metrics and WebSocket endpoints and plays steps. With
// serve set it keeps running after the script until ctx is done.
func (a *App) Run(ctx context.Context, steps []Step, out io.Writer, serve bool) error {
	g, gctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Enabled {
		ln, err := net.Listen("tcp", a.cfg.Metrics.Address)
		if err != nil {
			return fmt.Errorf("failed to listen for metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
		srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			applog.Infof("Metrics: serving on %s", ln.Addr())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}
	if a.ws != nil {
		if err := a.ws.Start(); err != nil {
			return fmt.Errorf("failed to start websocket transport: %w", err)
		}
	}

	g.Go(func() error {
		player := NewPlayer(a.engine, a.platform, a.mux, out)
		if err := player.Play(gctx, steps); err != nil {
			return err
		}
		if err := a.engine.Flush(gctx); err != nil {
			return err
		}
		if serve {
			<-gctx.Done()
			return nil
		}
		return errScriptDone
	})

	err := g.Wait()
	if errors.Is(err, errScriptDone) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// errScriptDone stops the group once a script without serve has finished.
var errScriptDone = errors.New("script finished")

// Snapshot returns the engine state.
func (a *App) Snapshot() route.Snapshot { return a.engine.Snapshot() }

// Close stops the engine, which releases the patch, then the transports
// and the hardware.
func (a *App) Close(ctx context.Context) error {
	a.mux.Close()
	return errors.Join(
		a.engine.Close(ctx),
		a.transports.Close(),
		a.hw.Close(),
	)
}
