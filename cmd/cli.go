package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"tvroute/internal/config"
	"tvroute/internal/hal"
	applog "tvroute/internal/log"
	"tvroute/internal/tui"
	"tvroute/pkg/build"
)

// startPortListUI is replaced in tests.
var startPortListUI = tui.StartPortListUI

// Execute runs the command line with args.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	root := RootCommand(stdin, stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	return root.ExecuteContext(ctx)
}

// RootCommand builds the command tree. Every persistent flag can also be
// set through a TVROUTE_* environment variable.
func RootCommand(stdin io.Reader, stdout io.Writer) *cobra.Command {
	buildInfo := build.GetBuildFlags()
	v := viper.New()
	v.SetEnvPrefix("TVROUTE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = loadConfig(v)
			return err
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Global Configuration
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "Config file (default: ./tvroute.yaml or ./config.yaml)")
	pf.BoolP("debug", "d", false, "Enable debug output")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.String("log-format", "", "Log format: console or json")

	// Hardware Configuration
	pf.StringP("backend", "b", "", "Hardware backend: sim or portaudio")
	pf.String("inventory", "", "YAML port inventory for the sim backend")
	pf.String("output", "", "Initial output devices, e.g. speaker|hdmi_arc")
	pf.Int("frames-per-buffer", 0, "PortAudio frames per buffer (affects latency)")

	// Engine Configuration
	pf.Duration("route-delay", 0, "Settle delay after a route change")
	pf.Bool("legacy-fold", false, "Forward commands in the packed triple form")

	if err := v.BindPFlags(pf); err != nil {
		panic(fmt.Sprintf("error binding flags: %v", err))
	}

	rootCmd.AddCommand(runCommand(&cfg, stdin, stdout), portsCommand(&cfg, stdout))
	return rootCmd
}

// loadConfig reads the config file and lets changed flags and TVROUTE_*
// variables override it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.LoadConfig(v.GetString("config"))
	if err != nil {
		return nil, err
	}

	if v.IsSet("debug") {
		cfg.Debug = v.GetBool("debug")
	}
	if v.IsSet("log-level") {
		cfg.LogLevel = v.GetString("log-level")
	}
	if v.IsSet("log-format") {
		cfg.LogFormat = v.GetString("log-format")
	}
	if v.IsSet("backend") {
		cfg.Hardware.Backend = v.GetString("backend")
	}
	if v.IsSet("inventory") {
		cfg.Hardware.InventoryFile = v.GetString("inventory")
	}
	if v.IsSet("output") {
		cfg.Hardware.Output = v.GetString("output")
	}
	if v.IsSet("frames-per-buffer") {
		cfg.Hardware.FramesPerBuffer = v.GetInt("frames-per-buffer")
	}
	if v.IsSet("route-delay") {
		cfg.Engine.RouteDelay = v.GetDuration("route-delay")
	}
	if v.IsSet("legacy-fold") {
		cfg.Engine.LegacyFold = v.GetBool("legacy-fold")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := applog.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = applog.LevelDebug
	}
	applog.Setup(level, cfg.LogFormat, os.Stderr)
	return cfg, nil
}

func runCommand(cfg **config.Config, stdin io.Reader, stdout io.Writer) *cobra.Command {
	var (
		scriptPath string
		serve      bool
	)
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the route engine, driven by an event script",
		Long: `Run the route engine against the configured hardware.

Events are read from a script, one per line:

  audio <op> [p1] [p2] [session] [source]
  folded <cmd> <p1> <p2> [source]
  route <devices> [encoding]
  volume <index> [stream]
  inputs on|off
  died | reconcile | flush | snapshot
  sleep <duration>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := stdin
			if scriptPath != "-" {
				f, err := os.Open(scriptPath)
				if err != nil {
					return fmt.Errorf("failed to open script: %w", err)
				}
				defer f.Close()
				in = f
			}
			steps, err := ParseScript(in)
			if err != nil {
				return err
			}

			app, err := NewApp(*cfg)
			if err != nil {
				return err
			}
			runErr := app.Run(cmd.Context(), steps, stdout, serve)

			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := app.Close(closeCtx); err != nil {
				applog.Errorf("Shutdown: %v", err)
			}
			return runErr
		},
	}
	runCmd.Flags().StringVarP(&scriptPath, "script", "s", "-", "Event script file, - for stdin")
	runCmd.Flags().BoolVar(&serve, "serve", false, "Keep running after the script until interrupted")
	return runCmd
}

func portsCommand(cfg **config.Config, stdout io.Writer) *cobra.Command {
	var useTUI bool
	portsCmd := &cobra.Command{
		Use:   "ports",
		Short: "List the hardware audio ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			hw, err := openHardware((*cfg).Hardware)
			if err != nil {
				return err
			}
			defer hw.Close()

			if useTUI {
				return startPortListUI(hw.ListPorts)
			}
			ports, err := hw.ListPorts()
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, portsTable(ports))
			return nil
		},
	}
	portsCmd.Flags().BoolVarP(&useTUI, "tui", "t", false, "Browse the ports interactively")
	return portsCmd
}

func portsTable(ports []hal.Port) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DIR", "CLASS", "ADDRESS", "NAME", "RATES", "ENCODINGS", "ACTIVE")
	for _, p := range ports {
		rates := make([]string, len(p.SampleRates))
		for i, r := range p.SampleRates {
			rates[i] = fmt.Sprint(r)
		}
		encodings := make([]string, len(p.Encodings))
		for i, e := range p.Encodings {
			encodings[i] = e.String()
		}
		active := "-"
		if p.Active != nil {
			active = p.Active.String()
		}
		t.Row(p.Direction.String(), p.Class.String(), p.Address, p.Name,
			strings.Join(rates, ","), strings.Join(encodings, ","), active)
	}
	return t.String()
}
