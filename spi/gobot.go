package spi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"gobot.io/x/gobot/v2/drivers/spi"
	"periph.io/x/conn/v3/physic"
	pspi "periph.io/x/conn/v3/spi"

	"github.com/mklimuk/adxl38x"
)

var _ adxl38x.SPIBus = &GobotBus{}

// subset of the gobot SPI connection used for half duplex register traffic
type gobotOps interface {
	ReadCommandData(command []byte, data []byte) error
	WriteBytes(data []byte) error
}

// GobotBus adapts a Gobot SPI driver (sysfs or board adaptor) to SPIBus.
// The driver is configured and started on the first Begin.
//
//	adaptor := nanopi.NewNeoAdaptor()
//	bus := spi.NewGobotBus(adaptor, 0, 0)
//	defer bus.Halt()
type GobotBus struct {
	mx      sync.Mutex
	driver  *spi.Driver
	started bool
	current adxl38x.SPISettings
}

// NewGobotBus returns a bus bound to a Gobot SPI adaptor. bus and chip are the
// SPI bus number and chip-select line, matching the board numbering.
func NewGobotBus(adaptor spi.Connector, bus, chip int, opts ...func(spi.Config)) *GobotBus {
	opts = append([]func(spi.Config){spi.WithBusNumber(bus), spi.WithChipNumber(chip)}, opts...)
	return &GobotBus{driver: spi.NewDriver(adaptor, "ADXL38X", opts...)}
}

func (b *GobotBus) Begin(ctx context.Context, settings adxl38x.SPISettings) error {
	b.mx.Lock()
	if b.started {
		if settings != b.current {
			b.mx.Unlock()
			return fmt.Errorf("%w: have %s, want %s", ErrSettingsChanged, b.current, settings)
		}
		return nil
	}
	if settings.Mode&pspi.LSBFirst != 0 {
		b.mx.Unlock()
		return fmt.Errorf("lsb first bit order is not supported by gobot spi")
	}
	b.driver.SetMode(int(settings.Mode & pspi.Mode3))
	b.driver.SetSpeed(int64(settings.Speed / physic.Hertz))
	if err := b.driver.Start(); err != nil {
		b.mx.Unlock()
		return fmt.Errorf("could not start gobot spi driver: %w", err)
	}
	slog.DebugContext(ctx, "gobot spi driver started", "settings", settings.String())
	b.started = true
	b.current = settings
	return nil
}

// Tx emulates a full duplex transfer on top of the half duplex gobot
// operations: the first byte is the command, the rest are clocked as dummies
// and their responses copied after the command slot in r.
func (b *GobotBus) Tx(ctx context.Context, w, r []byte) error {
	ops, ok := b.driver.Connection().(gobotOps)
	if !ok {
		return fmt.Errorf("spi connection does not support required operations")
	}
	if len(r) == 0 {
		if len(w) == 0 {
			return nil
		}
		return ops.WriteBytes(w)
	}
	if len(w) != len(r) {
		return fmt.Errorf("tx/rx length mismatch: %d != %d", len(w), len(r))
	}
	data := make([]byte, len(w)-1)
	if err := ops.ReadCommandData(w[:1], data); err != nil {
		return fmt.Errorf("spi transfer failed: %w", err)
	}
	r[0] = 0x00
	copy(r[1:], data)
	return nil
}

func (b *GobotBus) End(ctx context.Context) error {
	b.mx.Unlock()
	return nil
}

// Halt releases the gobot driver.
func (b *GobotBus) Halt() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if !b.started {
		return nil
	}
	b.started = false
	return b.driver.Halt()
}
