// ABOUTME: Commands that inspect output devices and media files
// ABOUTME: devices lists backend devices; probe prints file metadata as YAML
package cli

import (
	"fmt"
	"maps"
	"os"

	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/decode"
	"github.com/Resonate-Protocol/streamplayer-go/pkg/audio/output"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List output devices of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			factory, err := output.NewFactory(cfg.Output.Backend)
			if err != nil {
				return err
			}
			names, err := factory.ListDevices()
			if err != nil {
				return fmt.Errorf("failed to list %s devices: %w", cfg.Output.Backend, err)
			}
			out := cmd.OutOrStdout()
			for i, name := range names {
				marker := " "
				if (cfg.Output.Device == "" && i == 0) || name == cfg.Output.Device {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %s\n", marker, name)
			}
			return nil
		},
	}
}

// probeReport is the YAML shape of a probed file
type probeReport struct {
	File       string         `yaml:"file"`
	Type       string         `yaml:"type"`
	Bytes      int64          `yaml:"bytes"`
	Frames     int64          `yaml:"frames"`
	Duration   string         `yaml:"duration,omitempty"`
	SampleRate int            `yaml:"sample_rate"`
	Channels   int            `yaml:"channels"`
	BitDepth   int            `yaml:"bit_depth"`
	Properties map[string]any `yaml:"properties,omitempty"`
}

func (a *app) probeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>",
		Short: "Print format and duration of a media file as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			ff, err := decode.Probe(f, args[0])
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", args[0], err)
			}

			report := probeReport{
				File:       args[0],
				Type:       string(ff.Type),
				Bytes:      ff.ByteLength,
				Frames:     ff.FrameLength,
				SampleRate: ff.Format.SampleRate,
				Channels:   ff.Format.Channels,
				BitDepth:   ff.Format.BitDepth,
			}
			if ff.Duration > 0 {
				report.Duration = ff.Duration.String()
			}
			if len(ff.Properties) > 0 {
				report.Properties = maps.Clone(ff.Properties)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(report)
		},
	}
}
