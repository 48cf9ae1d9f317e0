package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/adxl38x/accel"
	"github.com/mklimuk/adxl38x/cmd/adxl38x/console"
)

var fifoCmd = cli.Command{
	Name:  "fifo",
	Usage: "FIFO setup and readout",
	Subcommands: cli.Commands{
		&fifoStatusCmd,
		&fifoSetupCmd,
		&fifoReadCmd,
	},
}

type fifoStatus struct {
	Entries   uint16 `yaml:"entries"`
	Watermark bool   `yaml:"watermark"`
	Full      bool   `yaml:"full"`
	Status    string `yaml:"status"`
}

var fifoStatusCmd = cli.Command{
	Name: "status",
	Action: func(c *cli.Context) error {
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			st, err := dev.Status(ctx)
			if err != nil {
				return err
			}
			n, err := dev.FIFOEntries(ctx)
			if err != nil {
				return err
			}
			out := fifoStatus{
				Entries:   n,
				Watermark: st.FIFOWatermark(),
				Full:      st.FIFOFull(),
				Status:    fmt.Sprintf("% x", st[:]),
			}
			if err := yaml.NewEncoder(console.Writer()).Encode(out); err != nil {
				return err
			}
			console.Printf("watermark: %s full: %s\n", console.Flag(out.Watermark), console.Flag(out.Full))
			return nil
		})
	},
}

var fifoSetupCmd = cli.Command{
	Name:  "setup",
	Usage: "configure the FIFO against the channels enabled on the device",
	Flags: []cli.Flag{
		&cli.UintFlag{Name: "samples", Aliases: []string{"n"}, Usage: "watermark sample count", Required: true},
		&cli.StringFlag{Name: "mode", Usage: "disabled, normal, stream or trigger", Value: "stream"},
		&cli.BoolFlag{Name: "ext-trigger", Usage: "external trigger (trigger mode only)"},
		&cli.BoolFlag{Name: "channel-tag", Usage: "tag samples with their channel"},
		&cli.BoolFlag{Name: "read-reset", Usage: "reset the read pointer"},
		&cli.BoolFlag{Name: "int0", Usage: "route the watermark interrupt to INT0"},
		&cli.BoolFlag{Name: "enable", Usage: "set FIFO enable before writing the configuration", Value: true},
	},
	Action: func(c *cli.Context) error {
		mode, err := accel.ParseFIFOMode(c.String("mode"))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		samples := c.Uint("samples")
		if samples > 0xFFFF {
			return console.Exit(1, "%s", console.Red(fmt.Errorf("%w: %d", accel.ErrFIFOSampleCount, samples)))
		}
		cfg := accel.FIFOConfig{
			Samples:         uint16(samples),
			Mode:            mode,
			ExternalTrigger: c.Bool("ext-trigger"),
			ChannelTag:      c.Bool("channel-tag"),
			ReadReset:       c.Bool("read-reset"),
		}
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			if c.Bool("enable") {
				if err := dev.SetFIFOEnable(ctx, true); err != nil {
					return err
				}
			}
			if err := dev.SetFIFO(ctx, cfg); err != nil {
				return err
			}
			if c.Bool("int0") {
				if err := dev.SetFIFOWatermarkINT0(ctx); err != nil {
					return err
				}
			} else if err := dev.ClearFIFOWatermarkINT0(ctx); err != nil {
				return err
			}
			console.PInfof(console.PictoGear, "fifo set to %d samples in %s mode", cfg.Samples, cfg.Mode)
			return nil
		})
	},
}

var fifoReadCmd = cli.Command{
	Name:  "read",
	Usage: "drain FIFO entries and dump them",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "bytes", Usage: "bytes per entry", Value: 2},
		&cli.IntFlag{Name: "max", Usage: "maximum number of entries to read", Value: 320},
	},
	Action: func(c *cli.Context) error {
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			n, err := dev.FIFOEntries(ctx)
			if err != nil {
				return err
			}
			entries := min(int(n), c.Int("max"))
			if entries <= 0 {
				console.PInfof(console.PictoInbox, "fifo empty")
				return nil
			}
			buf := make([]byte, entries*c.Int("bytes"))
			if err := dev.ReadFIFO(ctx, buf); err != nil {
				return err
			}
			console.PInfof(console.PictoInbox, "%d entries", entries)
			console.Dump(buf)
			return nil
		})
	},
}
