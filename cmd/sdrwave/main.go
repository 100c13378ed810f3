// Command sdrwave transmits synthetic test waveforms and surveys spectrum
// occupancy through a software-defined radio.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rjboer/sdrwave/internal/config"
	"github.com/rjboer/sdrwave/internal/logging"
	"github.com/rjboer/sdrwave/internal/sdr"
	"github.com/rjboer/sdrwave/internal/telemetry"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr, os.LookupEnv)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	backend    string
	address    string
	webAddr    string
	centerHz   float64
	sampleRate float64
}

// cli carries what subcommands need from the root command.
type cli struct {
	out    io.Writer
	errOut io.Writer
	lookup func(string) (string, bool)
	flags  globalFlags
}

func newRootCommand(out, errOut io.Writer, lookup func(string) (string, bool)) *cobra.Command {
	c := &cli{out: out, errOut: errOut, lookup: lookup}
	root := &cobra.Command{
		Use:          "sdrwave",
		Short:        "Synthetic waveform transmitter and spectrum surveyor",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.configPath, "config", "c", "sdrwave.yaml", "YAML configuration file")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&c.flags.logFormat, "log-format", "", "log format (text, json)")
	pf.StringVar(&c.flags.backend, "backend", "", "radio backend (mock, tcp)")
	pf.StringVar(&c.flags.address, "address", "", "IQ server host:port for the tcp backend")
	pf.StringVar(&c.flags.webAddr, "web", "", "serve telemetry over HTTP on this address")
	pf.Float64Var(&c.flags.centerHz, "center", 0, "center frequency in Hz")
	pf.Float64Var(&c.flags.sampleRate, "sample-rate", 0, "sample rate in samples per second")

	root.AddCommand(
		c.txCommand(),
		c.sweepCommand(),
		c.psdCommand(),
		c.scanCommand(),
		c.discoverCommand(),
		c.configCommand(),
	)
	return root
}

// load resolves the configuration: file, then environment, then flags.
func (c *cli) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(c.flags.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv(c.lookup)

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = c.flags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = c.flags.logFormat
	}
	if flags.Changed("backend") {
		cfg.Radio.Backend = c.flags.backend
	}
	if flags.Changed("address") {
		cfg.Radio.Address = c.flags.address
	}
	if flags.Changed("web") {
		cfg.Telemetry.Addr = c.flags.webAddr
	}
	if flags.Changed("center") {
		cfg.Radio.CenterHz = c.flags.centerHz
	}
	if flags.Changed("sample-rate") {
		cfg.Radio.SampleRate = c.flags.sampleRate
	}
	return cfg, nil
}

// runtime is the per-invocation environment shared by radio commands.
type runtime struct {
	cfg      config.Config
	logger   logging.Logger
	reporter telemetry.Reporter
	hub      *telemetry.Hub
	dev      sdr.Device
}

// setup validates cfg, configures logging and telemetry and opens the radio.
// The returned cleanup closes the device.
func (c *cli) setup(ctx context.Context, cfg config.Config) (*runtime, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := logging.Configure(cfg.Log.Level, cfg.Log.Format, c.errOut)
	if err != nil {
		return nil, nil, err
	}
	logging.SetDefault(logger)

	rt := &runtime{cfg: cfg, logger: logger}
	if cfg.Telemetry.Addr != "" {
		rt.hub = telemetry.NewHub(cfg.Telemetry.History, logger)
		rt.reporter = rt.hub
		srv := telemetry.NewWebServer(cfg.Telemetry.Addr, rt.hub, logger)
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("web telemetry failed", logging.Field{Key: "error", Value: err})
			}
		}()
	} else {
		rt.reporter = telemetry.NewStdoutReporter(logger)
	}

	dev, err := sdr.Open(ctx, cfg.SDR(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s backend: %w", cfg.Radio.Backend, err)
	}
	rt.dev = dev
	return rt, func() { sdr.CloseQuietly(dev, logger) }, nil
}
