package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/adxl38x/accel"
	"github.com/mklimuk/adxl38x/cmd/adxl38x/console"
)

var identifyCmd = cli.Command{
	Name:  "identify",
	Usage: "read the identification registers",
	Action: func(c *cli.Context) error {
		return withRawDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			id, err := dev.Identify(ctx)
			if err != nil {
				return fmt.Errorf("could not read identity: %w", err)
			}
			if err := yaml.NewEncoder(console.Writer()).Encode(id); err != nil {
				return fmt.Errorf("encoding error: %w", err)
			}
			if !id.Matches() {
				return console.Exit(2, "%s device is not an ADXL38x", console.PictoCross)
			}
			console.PInfof(console.PictoCheck, "ADXL38x detected")
			return nil
		})
	},
}

var resetCmd = cli.Command{
	Name:  "reset",
	Usage: "soft reset the device",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "do not ask for confirmation"},
	},
	Action: func(c *cli.Context) error {
		if !c.Bool("yes") {
			ok, err := console.Confirm("reset device configuration?")
			if err != nil {
				return console.Exit(1, "prompt error: %s", console.Red(err))
			}
			if !ok {
				console.Warnf("reset aborted")
				return nil
			}
		}
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			if err := dev.SoftReset(ctx); err != nil {
				return err
			}
			console.PInfof(console.PictoReset, "device reset")
			return nil
		})
	},
}

var applyCmd = cli.Command{
	Name:  "apply",
	Usage: "write the device section of the profile",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "reset", Usage: "soft reset before applying"},
	},
	Action: func(c *cli.Context) error {
		p, err := loadProfile(c)
		if err != nil {
			return console.Exit(1, "profile error: %s", console.Red(err))
		}
		settings, err := p.Settings()
		if err != nil {
			return console.Exit(1, "profile error: %s", console.Red(err))
		}
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			if c.Bool("reset") {
				if err := dev.SoftReset(ctx); err != nil {
					return err
				}
			}
			if err := dev.Apply(ctx, settings); err != nil {
				return err
			}
			console.PInfof(console.PictoGear, "applied range %s, mode %s, channels %s",
				settings.Range, settings.Mode, settings.Channels)
			return nil
		})
	},
}

var setCmd = cli.Command{
	Name:  "set",
	Usage: "change a single device setting",
	Subcommands: cli.Commands{
		&cli.Command{
			Name:      "range",
			ArgsUsage: "<4g|8g|16g|15g|30g|60g>",
			Action: func(c *cli.Context) error {
				r, err := accel.ParseRange(c.Args().First())
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
					return dev.SetRange(ctx, r)
				})
			},
		},
		&cli.Command{
			Name:      "mode",
			ArgsUsage: "<standby|hp|lp|...>",
			Action: func(c *cli.Context) error {
				m, err := accel.ParseOpMode(c.Args().First())
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
					return dev.SetOpMode(ctx, m)
				})
			},
		},
		&cli.Command{
			Name:      "channels",
			ArgsUsage: "<x|xy|xyz|yzt|...>",
			Action: func(c *cli.Context) error {
				ch, err := accel.ParseChannels(c.Args().First())
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
					return dev.SetChannel(ctx, ch)
				})
			},
		},
		&cli.Command{
			Name:      "filter",
			ArgsUsage: "<value>",
			Action: func(c *cli.Context) error {
				v, err := parseByte(c.Args().First())
				if err != nil {
					return console.Exit(1, "%s", console.Red(err))
				}
				return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
					return dev.SetFilter(ctx, v)
				})
			},
		},
	},
}

// settingsView is the yaml rendering of the current device configuration.
type settingsView struct {
	Range       accel.Range      `yaml:"range"`
	Mode        accel.OpMode     `yaml:"mode"`
	Filter      string           `yaml:"filter"`
	Channels    accel.Channels   `yaml:"channels"`
	FIFOEnabled bool             `yaml:"fifo_enabled"`
	FIFO        accel.FIFOConfig `yaml:"fifo"`
}

var showCmd = cli.Command{
	Name:  "show",
	Usage: "print the configuration read back from the device",
	Action: func(c *cli.Context) error {
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			var v settingsView
			var err error
			if v.Range, err = dev.Range(ctx); err != nil {
				return err
			}
			if v.Mode, err = dev.OpMode(ctx); err != nil {
				return err
			}
			filter, err := dev.Filter(ctx)
			if err != nil {
				return err
			}
			v.Filter = fmt.Sprintf("%#02x", filter)
			if v.Channels, err = dev.Channels(ctx); err != nil {
				return err
			}
			if v.FIFOEnabled, err = dev.FIFOEnabled(ctx); err != nil {
				return err
			}
			if v.FIFO, err = dev.FIFO(ctx); err != nil {
				return err
			}
			return yaml.NewEncoder(console.Writer()).Encode(v)
		})
	},
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q: %w", s, err)
	}
	return byte(v), nil
}
