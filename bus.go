package adxl38x

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var ErrInvalidAddress = fmt.Errorf("register address out of 7-bit range")

// SPISettings describes the clock and framing of a single SPI transaction.
// Bit order is MSB first unless Mode carries spi.LSBFirst.
type SPISettings struct {
	Speed physic.Frequency
	Mode  spi.Mode
	Bits  int
}

func (s SPISettings) String() string {
	return fmt.Sprintf("%s mode %d %d bits", s.Speed, s.Mode&spi.Mode3, s.Bits)
}

// SPIBus is a host SPI controller. Begin claims the bus for one transaction with
// the given settings and End releases it. Tx is full duplex: r receives len(w)
// bytes, or nothing when r is nil.
type SPIBus interface {
	Begin(ctx context.Context, settings SPISettings) error
	Tx(ctx context.Context, w, r []byte) error
	End(ctx context.Context) error
}

// ChipSelect drives the device select line. gpio.Low asserts it.
// Any periph gpio.PinOut satisfies it.
type ChipSelect interface {
	Out(l gpio.Level) error
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits on a timer and returns ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
