package spi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/adxl38x"
)

var ErrSettingsChanged = fmt.Errorf("spi port already connected with different settings")

var _ adxl38x.SPIBus = &PeriphBus{}

// PeriphBus drives a host SPI port through periph. The port is connected on the
// first Begin; periph only allows one Connect per port so later transactions
// must ask for the same settings.
type PeriphBus struct {
	mx        sync.Mutex
	port      spi.PortCloser
	conn      spi.Conn
	connected adxl38x.SPISettings
}

func initHost() error {
	state, err := host.Init()
	if err != nil {
		return fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	return nil
}

// NewPeriphBus opens the SPI port by name, e.g. "SPI0.0" or "/dev/spidev0.0".
// An empty name picks the first port available.
func NewPeriphBus(dev string) (*PeriphBus, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %q: %w", dev, err)
	}
	return &PeriphBus{port: port}, nil
}

// ChipSelectPin looks up a host GPIO by name to be used as a manual chip select.
func ChipSelectPin(name string) (gpio.PinIO, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio %q not found", name)
	}
	return pin, nil
}

func (b *PeriphBus) Begin(ctx context.Context, settings adxl38x.SPISettings) error {
	b.mx.Lock()
	if b.conn != nil {
		if settings != b.connected {
			b.mx.Unlock()
			return fmt.Errorf("%w: have %s, want %s", ErrSettingsChanged, b.connected, settings)
		}
		return nil
	}
	conn, err := b.port.Connect(settings.Speed, settings.Mode, settings.Bits)
	if err != nil {
		b.mx.Unlock()
		return fmt.Errorf("could not connect spi port with %s: %w", settings, err)
	}
	slog.DebugContext(ctx, "spi port connected", "settings", settings.String())
	b.conn = conn
	b.connected = settings
	return nil
}

func (b *PeriphBus) Tx(ctx context.Context, w, r []byte) error {
	if err := b.conn.Tx(w, r); err != nil {
		return fmt.Errorf("spi transfer failed: %w", err)
	}
	return nil
}

func (b *PeriphBus) End(ctx context.Context) error {
	b.mx.Unlock()
	return nil
}

func (b *PeriphBus) Close() error {
	return b.port.Close()
}
