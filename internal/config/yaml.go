// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"tvroute/internal/hal"
	applog "tvroute/internal/log"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`      // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"`  // Logging level (e.g., "debug", "info", "warn", "error").
	LogFormat string          `yaml:"log_format"` // "console" or "json".
	Engine    EngineConfig    `yaml:"engine"`     // Route engine settings.
	Hardware  HardwareConfig  `yaml:"hardware"`   // Hardware backend settings.
	Transport TransportConfig `yaml:"transport"`  // Event publishing settings.
	Metrics   MetricsConfig   `yaml:"metrics"`    // Prometheus endpoint.
}

// EngineConfig holds settings of the route engine.
type EngineConfig struct {
	Stream          string        `yaml:"stream"`            // Stream class whose route and volume drive the patch.
	QueueSize       int           `yaml:"queue_size"`        // Inbound event queue length.
	RouteDelay      time.Duration `yaml:"route_delay"`       // Settle delay after a route change.
	A2DPDelay       time.Duration `yaml:"a2dp_delay"`        // Settle delay while a Bluetooth sink is active.
	PatchManageMode string        `yaml:"patch_manage_mode"` // "auto" or "external".
	LegacyFold      bool          `yaml:"legacy_fold"`       // Forward commands in the packed triple form.
	InputClass      string        `yaml:"input_class"`       // Initial source device class (e.g., "tv_tuner").
	InputAddress    string        `yaml:"input_address"`     // Initial source address, empty for the first match.
	VolumeCurve     []CurvePoint  `yaml:"volume_curve"`      // Volume percent to dB points; empty for the built-in curve.
}

// CurvePoint is one volume curve point.
type CurvePoint struct {
	Percent float64 `yaml:"percent"`
	DB      float64 `yaml:"db"`
}

// HardwareConfig selects and tunes the hardware backend.
type HardwareConfig struct {
	Backend         string `yaml:"backend"`           // "sim" or "portaudio".
	InventoryFile   string `yaml:"inventory_file"`    // YAML port inventory for the sim backend.
	Output          string `yaml:"output"`            // Initial output devices of the sim platform (e.g., "speaker|hdmi_arc").
	FramesPerBuffer int    `yaml:"frames_per_buffer"` // PortAudio buffer size of a patch stream.
	RecordFile      string `yaml:"record_file"`       // WAV tap of the live patch (portaudio only), empty to disable.
}

// TransportConfig holds settings related to publishing engine events.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Serve events on a WebSocket endpoint.
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address of the WebSocket endpoint.
	MQTTEnabled      bool   `yaml:"mqtt_enabled"`       // Publish events to an MQTT broker.
	MQTTBroker       string `yaml:"mqtt_broker"`        // Broker URL (e.g., "tcp://localhost:1883").
	MQTTTopic        string `yaml:"mqtt_topic"`         // Topic prefix; the event type is appended.
	MQTTClientID     string `yaml:"mqtt_client_id"`     // Client identifier.
	MQTTQoS          byte   `yaml:"mqtt_qos"`           // Publish QoS (0-2).
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send events as UDP datagrams.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:     false,
		LogLevel:  "info",
		LogFormat: applog.FormatConsole,
		Engine: EngineConfig{
			Stream:          "music",
			QueueSize:       64,
			RouteDelay:      500 * time.Millisecond,
			A2DPDelay:       2500 * time.Millisecond,
			PatchManageMode: "auto",
			InputClass:      "tv_tuner",
		},
		Hardware: HardwareConfig{
			Backend:         "sim",
			Output:          "speaker",
			FramesPerBuffer: 512,
		},
		Transport: TransportConfig{
			WebSocketAddress: ":8080",
			MQTTBroker:       "tcp://localhost:1883",
			MQTTTopic:        "tvroute/events",
			MQTTClientID:     "tvroute",
			UDPTargetAddress: "127.0.0.1:9090",
		},
		Metrics: MetricsConfig{
			Address: ":9100",
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("tvroute.yaml", "config.yaml"). If no file is found,
// it uses built-in defaults. After loading defaults or from file, it applies environment
// variable overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range []string{"tvroute.yaml", "config.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		if path == "" {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not a known level", c.LogLevel))
	}
	if c.LogFormat != applog.FormatConsole && c.LogFormat != applog.FormatJSON {
		errs = append(errs, fmt.Errorf("log_format must be %q or %q", applog.FormatConsole, applog.FormatJSON))
	}

	// Engine Validation
	if _, ok := hal.ParseStreamClass(c.Engine.Stream); !ok {
		errs = append(errs, fmt.Errorf("engine.stream %q is not a stream class", c.Engine.Stream))
	}
	if c.Engine.QueueSize <= 0 {
		errs = append(errs, errors.New("engine.queue_size must be positive"))
	}
	if c.Engine.RouteDelay < 0 || c.Engine.A2DPDelay < 0 {
		errs = append(errs, errors.New("engine delays must not be negative"))
	}
	switch c.Engine.PatchManageMode {
	case "auto", "external":
	default:
		errs = append(errs, fmt.Errorf("engine.patch_manage_mode %q must be auto or external", c.Engine.PatchManageMode))
	}
	if _, err := hal.ParseDeviceClass(c.Engine.InputClass); err != nil {
		errs = append(errs, fmt.Errorf("engine.input_class: %w", err))
	}
	if n := len(c.Engine.VolumeCurve); n == 1 {
		errs = append(errs, errors.New("engine.volume_curve needs at least 2 points"))
	}

	// Hardware Validation
	switch c.Hardware.Backend {
	case "sim":
		if _, err := hal.ParseDeviceClass(c.Hardware.Output); err != nil {
			errs = append(errs, fmt.Errorf("hardware.output: %w", err))
		}
	case "portaudio":
		if c.Hardware.FramesPerBuffer <= 0 {
			errs = append(errs, errors.New("hardware.frames_per_buffer must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("hardware.backend %q must be sim or portaudio", c.Hardware.Backend))
	}

	// Transport Validation
	if c.Transport.WebSocketEnabled && !strings.Contains(c.Transport.WebSocketAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.websocket_address %q appears invalid (missing port?)", c.Transport.WebSocketAddress))
	}
	if c.Transport.MQTTEnabled {
		if c.Transport.MQTTBroker == "" {
			errs = append(errs, errors.New("transport.mqtt_broker must be set when MQTT is enabled"))
		}
		if c.Transport.MQTTTopic == "" {
			errs = append(errs, errors.New("transport.mqtt_topic must be set when MQTT is enabled"))
		}
	}
	if c.Transport.UDPEnabled && !strings.Contains(c.Transport.UDPTargetAddress, ":") {
		errs = append(errs, fmt.Errorf("transport.udp_target_address %q appears invalid (missing port?)", c.Transport.UDPTargetAddress))
	}
	if c.Transport.MQTTQoS > 2 {
		errs = append(errs, fmt.Errorf("transport.mqtt_qos %d must be 0, 1 or 2", c.Transport.MQTTQoS))
	}

	if c.Metrics.Enabled && !strings.Contains(c.Metrics.Address, ":") {
		errs = append(errs, fmt.Errorf("metrics.address %q appears invalid (missing port?)", c.Metrics.Address))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides lets ENV_* variables replace individual settings.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.

	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_ROUTE_{...}
	// These are specific to the engine.

	// ENV_ROUTE_DELAY
	if val, ok := os.LookupEnv("ENV_ROUTE_DELAY"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Engine.RouteDelay = dur
			applog.Infof("configuration: Overriding engine.route_delay from env: %s", dur)
		}
	}
	// ENV_ROUTE_A2DP_DELAY
	if val, ok := os.LookupEnv("ENV_ROUTE_A2DP_DELAY"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Engine.A2DPDelay = dur
			applog.Infof("configuration: Overriding engine.a2dp_delay from env: %s", dur)
		}
	}
	// ENV_ROUTE_LEGACY_FOLD
	if val, ok := os.LookupEnv("ENV_ROUTE_LEGACY_FOLD"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Engine.LegacyFold = bVal
			applog.Infof("configuration: Overriding engine.legacy_fold from env: %v", bVal)
		}
	}

	// ENV_HARDWARE_{...}

	// ENV_HARDWARE_BACKEND
	if val, ok := os.LookupEnv("ENV_HARDWARE_BACKEND"); ok {
		cfg.Hardware.Backend = val
		applog.Infof("configuration: Overriding hardware.backend from env: %s", val)
	}
	// ENV_HARDWARE_INVENTORY_FILE
	if val, ok := os.LookupEnv("ENV_HARDWARE_INVENTORY_FILE"); ok {
		cfg.Hardware.InventoryFile = val
		applog.Infof("configuration: Overriding hardware.inventory_file from env: %s", val)
	}

	// ENV_WS_{...} and ENV_MQTT_{...}
	// These are specific to the transport layer.

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.WebSocketEnabled = bVal
			applog.Infof("configuration: Overriding transport.websocket_enabled from env: %v", bVal)
		}
	}
	// ENV_WS_ADDRESS
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		cfg.Transport.WebSocketAddress = val
		applog.Infof("configuration: Overriding transport.websocket_address from env: %s", val)
	}
	// ENV_MQTT_ENABLED
	if val, ok := os.LookupEnv("ENV_MQTT_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.MQTTEnabled = bVal
			applog.Infof("configuration: Overriding transport.mqtt_enabled from env: %v", bVal)
		}
	}
	// ENV_MQTT_BROKER
	if val, ok := os.LookupEnv("ENV_MQTT_BROKER"); ok {
		cfg.Transport.MQTTBroker = val
		applog.Infof("configuration: Overriding transport.mqtt_broker from env: %s", val)
	}

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}

	// ENV_METRICS_ENABLED
	if val, ok := os.LookupEnv("ENV_METRICS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Metrics.Enabled = bVal
			applog.Infof("configuration: Overriding metrics.enabled from env: %v", bVal)
		}
	}
}
