package main

import (
	"context"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/adxl38x/accel"
	"github.com/mklimuk/adxl38x/cmd/adxl38x/console"
	"github.com/mklimuk/adxl38x/register"
)

var regCmd = cli.Command{
	Name:  "reg",
	Usage: "raw register access",
	Subcommands: cli.Commands{
		&regReadCmd,
		&regWriteCmd,
		&regUpdateCmd,
	},
}

var regReadCmd = cli.Command{
	Name:      "read",
	ArgsUsage: "<address>",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "length", Aliases: []string{"l"}, Usage: "number of registers to burst read", Value: 1},
	},
	Action: func(c *cli.Context) error {
		addr, err := parseByte(c.Args().First())
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		length := c.Int("length")
		if length <= 0 || length > 128 {
			return console.Exit(1, "length out of range: %d", length)
		}
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			return dev.WithRegisters(func(regs *register.Access) error {
				if length == 1 {
					v, err := regs.ReadRegister(ctx, addr)
					if err != nil {
						return err
					}
					console.Printf("%s: %s\n", console.Hex(addr), console.Hex(v))
					return nil
				}
				buf := make([]byte, length)
				if err := regs.ReadMultipleRegisters(ctx, addr, buf); err != nil {
					return err
				}
				console.Dump(buf)
				return nil
			})
		})
	},
}

var regWriteCmd = cli.Command{
	Name:      "write",
	ArgsUsage: "<address> <value>",
	Action: func(c *cli.Context) error {
		addr, err := parseByte(c.Args().Get(0))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		value, err := parseByte(c.Args().Get(1))
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			return dev.WithRegisters(func(regs *register.Access) error {
				return regs.WriteRegister(ctx, addr, value)
			})
		})
	},
}

var regUpdateCmd = cli.Command{
	Name:      "update",
	Usage:     "read-modify-write the bits under mask",
	ArgsUsage: "<address> <mask> <value>",
	Action: func(c *cli.Context) error {
		var args [3]byte
		for i := range args {
			v, err := parseByte(c.Args().Get(i))
			if err != nil {
				return console.Exit(1, "%s", console.Red(err))
			}
			args[i] = v
		}
		return withDevice(c, func(ctx context.Context, dev *accel.ADXL38X) error {
			return dev.WithRegisters(func(regs *register.Access) error {
				if err := regs.UpdateRegisterBits(ctx, args[0], args[1], args[2]); err != nil {
					return err
				}
				v, err := regs.ReadRegister(ctx, args[0])
				if err != nil {
					return err
				}
				console.Printf("%s: %s\n", console.Hex(args[0]), console.Hex(v))
				return nil
			})
		})
	},
}
