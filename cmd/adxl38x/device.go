package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/adxl38x"
	"github.com/mklimuk/adxl38x/accel"
	"github.com/mklimuk/adxl38x/adapter"
	"github.com/mklimuk/adxl38x/cmd/adxl38x/console"
	"github.com/mklimuk/adxl38x/config"
	"github.com/mklimuk/adxl38x/spi"
)

// loadProfile reads the profile named by --config, or the defaults, and
// applies bus flags given on the command line.
func loadProfile(c *cli.Context) (*config.Profile, error) {
	p := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		p, err = config.Load(path)
		if err != nil {
			return nil, err
		}
	}
	if c.IsSet("driver") {
		p.Bus.Driver = c.String("driver")
	}
	if c.IsSet("device") {
		p.Bus.Device = c.String("device")
	}
	if c.IsSet("spi-bus") {
		p.Bus.Bus = c.Int("spi-bus")
	}
	if c.IsSet("spi-chip") {
		p.Bus.Chip = c.Int("spi-chip")
	}
	if c.IsSet("cs") {
		p.Bus.ChipSelect = c.String("cs")
	}
	if c.IsSet("cs-adapter") {
		p.Bus.CSAdapter = c.String("cs-adapter")
	}
	if c.IsSet("cs-pin") {
		p.Bus.CSPin = c.Int("cs-pin")
	}
	if c.IsSet("speed") {
		p.Bus.SpeedHz = c.Int64("speed")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

type closer func() error

// openDevice wires the bus and chip select described by the profile into a driver.
func openDevice(ctx context.Context, p *config.Profile) (*accel.ADXL38X, closer, error) {
	opts := []accel.ADXL38XOpt{accel.WithSpeed(p.Bus.Speed())}
	var bus adxl38x.SPIBus
	var done closer = func() error { return nil }
	switch p.Bus.Driver {
	case config.DriverSim:
		sim := accel.NewSimulatedADXL38X()
		slog.WarnContext(ctx, "using simulated device")
		return accel.NewADXL38X(sim, sim, opts...), done, nil
	case config.DriverPeriph:
		pb, err := spi.NewPeriphBus(p.Bus.Device)
		if err != nil {
			return nil, nil, err
		}
		bus = pb
		done = pb.Close
	case config.DriverGobot:
		gb := spi.NewGobotBus(nanopi.NewNeoAdaptor(), p.Bus.Bus, p.Bus.Chip)
		bus = gb
		done = gb.Halt
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, p.Bus.Driver)
	}
	cs, err := openChipSelect(ctx, p.Bus)
	if err != nil {
		_ = done()
		return nil, nil, err
	}
	slog.DebugContext(ctx, "device wired", "driver", p.Bus.Driver, "cs", fmt.Sprint(cs))
	return accel.NewADXL38X(bus, cs, opts...), done, nil
}

func openChipSelect(ctx context.Context, b config.Bus) (adxl38x.ChipSelect, error) {
	switch b.CSAdapter {
	case config.ChipSelectMCP2221:
		return adapter.NewMCP2221().Pin(ctx, b.CSPin)
	default:
		if b.ChipSelect == "" {
			return nil, fmt.Errorf("chip select gpio is required")
		}
		return spi.ChipSelectPin(b.ChipSelect)
	}
}

// withDevice opens and initializes the device, runs fn and releases the bus.
func withDevice(c *cli.Context, fn func(ctx context.Context, dev *accel.ADXL38X) error) error {
	return runDevice(c, true, fn)
}

// withRawDevice is withDevice without the identity check.
func withRawDevice(c *cli.Context, fn func(ctx context.Context, dev *accel.ADXL38X) error) error {
	return runDevice(c, false, fn)
}

func runDevice(c *cli.Context, init bool, fn func(ctx context.Context, dev *accel.ADXL38X) error) error {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := loadProfile(c)
	if err != nil {
		return console.Exit(1, "profile error: %s", console.Red(err))
	}
	dev, done, err := openDevice(ctx, p)
	if err != nil {
		return console.Exit(1, "could not open device: %s", console.Red(err))
	}
	defer func() {
		if err := done(); err != nil {
			slog.WarnContext(ctx, "could not release bus", "error", err)
		}
	}()
	if init {
		if err := dev.Init(ctx); err != nil {
			return console.Exit(2, "device initialization failed: %s", console.Red(err))
		}
	}
	if err := fn(ctx, dev); err != nil {
		var exit cli.ExitCoder
		if errors.As(err, &exit) {
			return err
		}
		return console.Exit(1, "%s", console.Red(err))
	}
	return nil
}
