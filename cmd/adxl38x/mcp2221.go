package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/adxl38x/adapter"
	"github.com/mklimuk/adxl38x/cmd/adxl38x/console"
)

var mcp2221Flags = []cli.Flag{
	&cli.IntFlag{Name: "id", Usage: "device index from 'usb detect'", Value: -1},
	&cli.DurationFlag{Name: "timeout", Usage: "USB exchange timeout", Value: 5 * time.Second},
}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 chip select adapter",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221GPIOCmd,
		&mcp2221PinCmd,
	},
}

func mcp2221(c *cli.Context) (*adapter.MCP2221, context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	if id := c.Int("id"); id >= 0 {
		return adapter.NewMCP2221(id), ctx, cancel
	}
	return adapter.NewMCP2221(), ctx, cancel
}

func encode(v any) error {
	if err := yaml.NewEncoder(console.Writer()).Encode(v); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		a, ctx, cancel := mcp2221(c)
		defer cancel()
		status, err := a.Status(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(status)
	},
}

var mcp2221GPIOCmd = cli.Command{
	Name:  "gpio",
	Usage: "print GP pin parameters and values",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		a, ctx, cancel := mcp2221(c)
		defer cancel()
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		values, err := a.ReadGPIO(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		return encode(map[string]any{"parameters": params, "values": values})
	},
}

var mcp2221PinCmd = cli.Command{
	Name:      "cs",
	Usage:     "configure a GP pin as chip select output and drive it",
	ArgsUsage: "<pin> <high|low>",
	Flags:     mcp2221Flags,
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return console.Exit(1, "expected 2 arguments, got %d", c.NArg())
		}
		var pin int
		if _, err := fmt.Sscanf(c.Args().Get(0), "%d", &pin); err != nil {
			return console.Exit(1, "invalid pin: %s", console.Red(err))
		}
		var level gpio.Level
		switch c.Args().Get(1) {
		case "high":
			level = gpio.High
		case "low":
			level = gpio.Low
		default:
			return console.Exit(1, "level must be high or low")
		}
		a, ctx, cancel := mcp2221(c)
		defer cancel()
		params, err := a.GetGPIOParameters(ctx)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		if err := params.SetOutput(pin); err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := a.SetGPIOParameters(ctx, params); err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		cs, err := a.Pin(ctx, pin)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		if err := cs.Out(level); err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		console.PInfof(console.PictoCheck, "%s driven %s", cs, level)
		return nil
	},
}
