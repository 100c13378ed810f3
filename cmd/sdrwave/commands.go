package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rjboer/sdrwave/internal/app"
	"github.com/rjboer/sdrwave/internal/config"
	"github.com/rjboer/sdrwave/internal/mdns"
	"github.com/rjboer/sdrwave/internal/spectrum"
)

func (c *cli) txCommand() *cobra.Command {
	var (
		waveform string
		duration time.Duration
		chunk    int
	)
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Transmit a synthesized waveform continuously",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("waveform") {
				cfg.Transmit.Waveform = waveform
			}
			if cmd.Flags().Changed("duration") {
				cfg.Transmit.Duration = duration
			}
			if cmd.Flags().Changed("chunk") {
				cfg.Transmit.ChunkSize = chunk
			}
			rt, cleanup, err := c.setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			tx := app.NewTransmitter(rt.dev, rt.reporter, rt.logger, cfg)
			st, err := tx.Transmit(cmd.Context())
			fmt.Fprintf(c.out, "session %s: %s chunks accepted, %s rejected, %s samples in %s\n",
				tx.ID(), humanize.Comma(int64(st.Chunks)), humanize.Comma(int64(st.Rejected)),
				humanize.Comma(st.Samples), st.Elapsed.Truncate(time.Millisecond))
			return interrupted(err)
		},
	}
	cmd.Flags().StringVarP(&waveform, "waveform", "w", "", "waveform kind (tone, ofdm, noise)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long; 0 runs until interrupted")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "samples per write")
	return cmd
}

func (c *cli) sweepCommand() *cobra.Command {
	var (
		freqs []float64
		dwell time.Duration
		total time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Hop a synthesized waveform across a list of frequencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("freq") {
				cfg.Sweep.Frequencies = freqs
			}
			if cmd.Flags().Changed("dwell") {
				cfg.Sweep.Dwell = dwell
			}
			if cmd.Flags().Changed("total") {
				cfg.Sweep.Total = total
			}
			rt, cleanup, err := c.setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			tx := app.NewTransmitter(rt.dev, rt.reporter, rt.logger, cfg)
			rep, err := tx.Sweep(cmd.Context())
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LEG\tCENTER\tTUNED\tCHUNKS\tREJECTED")
			for _, l := range rep.Legs {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%d\t%d\n", l.Index,
					humanize.SIWithDigits(l.CenterHz, 4, "Hz"), l.Tuned, l.Stats.Chunks, l.Stats.Rejected)
			}
			tw.Flush()
			fmt.Fprintf(c.out, "%d legs, %d failed retunes in %s\n",
				len(rep.Legs), rep.FailedRetunes, rep.Elapsed.Truncate(time.Millisecond))
			return interrupted(err)
		},
	}
	cmd.Flags().Float64SliceVar(&freqs, "freq", nil, "sweep frequencies in Hz (repeatable or comma separated)")
	cmd.Flags().DurationVar(&dwell, "dwell", 0, "dwell time per frequency")
	cmd.Flags().DurationVar(&total, "total", 0, "total sweep duration")
	return cmd
}

func (c *cli) psdCommand() *cobra.Command {
	var (
		fftSize int
		average int
		csvPath string
	)
	cmd := &cobra.Command{
		Use:   "psd",
		Short: "Capture an averaged power spectral density",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			applyScanFlags(cmd, &cfg, fftSize, average)
			rt, cleanup, err := c.setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var opts []app.SurveyorOption
			if rt.hub != nil {
				opts = append(opts, app.WithSpectrumSink(rt.hub))
			}
			sv := app.NewSurveyor(rt.dev, rt.reporter, rt.logger, cfg, opts...)
			frame, err := sv.PSD(cmd.Context())
			if err != nil {
				return err
			}
			peakHz, peakDB := frame.Peak()
			fmt.Fprintf(c.out, "peak %s at %.1f dB, noise floor %.1f dB, %d bins of %s\n",
				humanize.SIWithDigits(peakHz, 6, "Hz"), peakDB, frame.NoiseFloor(),
				frame.Len(), humanize.SIWithDigits(frame.BinWidth(), 2, "Hz"))
			if csvPath != "" {
				return writeFrameCSV(csvPath, frame)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&fftSize, "fft-size", 0, "FFT length")
	cmd.Flags().IntVar(&average, "average", 0, "frames averaged per estimate")
	cmd.Flags().StringVar(&csvPath, "csv", "", "write frequency,power rows to this file")
	return cmd
}

func (c *cli) scanCommand() *cobra.Command {
	var (
		fftSize int
		average int
		width   float64
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Measure channel power across the 2.4 GHz WiFi channels",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			applyScanFlags(cmd, &cfg, fftSize, average)
			if cmd.Flags().Changed("width") {
				cfg.Scan.ChannelWidth = width
			}
			rt, cleanup, err := c.setup(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			var opts []app.SurveyorOption
			if rt.hub != nil {
				opts = append(opts, app.WithSpectrumSink(rt.hub))
			}
			sv := app.NewSurveyor(rt.dev, rt.reporter, rt.logger, cfg, opts...)
			results, err := sv.Scan(cmd.Context(), spectrum.WiFi24())
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHANNEL\tCENTER\tPOWER (dB)")
			for _, r := range results {
				fmt.Fprintf(tw, "%d\t%s\t%.2f\n", r.Channel, humanize.SIWithDigits(r.CenterHz, 4, "Hz"), r.PowerDB)
			}
			tw.Flush()
			return interrupted(err)
		},
	}
	cmd.Flags().IntVar(&fftSize, "fft-size", 0, "FFT length")
	cmd.Flags().IntVar(&average, "average", 0, "frames averaged per channel")
	cmd.Flags().Float64Var(&width, "width", 0, "integration width in Hz")
	return cmd
}

func (c *cli) discoverCommand() *cobra.Command {
	var (
		timeout time.Duration
		service string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse mDNS for IQ servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			start := time.Now()
			hosts, err := mdns.Discover(ctx, service, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "discovered %d host(s) in %s\n", len(hosts), time.Since(start).Truncate(time.Millisecond))
			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tADDRESS\tHOSTNAME")
			for _, h := range hosts {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Instance, h.Addr(), h.Hostname)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Second, "browse duration")
	cmd.Flags().StringVar(&service, "service", mdns.DefaultService, "DNS-SD service type")
	return cmd
}

func (c *cli) configCommand() *cobra.Command {
	var savePath string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.load(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if savePath != "" {
				return config.Save(savePath, cfg)
			}
			enc := yaml.NewEncoder(c.out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVar(&savePath, "save", "", "write the configuration to this file instead of stdout")
	return cmd
}

func applyScanFlags(cmd *cobra.Command, cfg *config.Config, fftSize, average int) {
	if cmd.Flags().Changed("fft-size") {
		cfg.Scan.FFTSize = fftSize
	}
	if cmd.Flags().Changed("average") {
		cfg.Scan.Average = average
	}
}

func writeFrameCSV(path string, frame *spectrum.Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write([]string{"frequency_hz", "power_db"}); err != nil {
		return err
	}
	for i, hz := range frame.Frequencies {
		row := []string{
			strconv.FormatFloat(hz, 'f', 1, 64),
			strconv.FormatFloat(frame.PowerDB[i], 'f', 3, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

// interrupted treats a user interrupt as a clean exit.
func interrupted(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
