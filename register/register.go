// Package register implements single, burst and bit-field register access for
// devices framing each SPI command byte as (address << 1) | direction.
//
// Every operation is one transaction: the bus is claimed with the configured
// settings, chip select is asserted, the command byte and payload are clocked
// out, then chip select is released and the bus handed back. Release happens on
// every return path.
package register

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"

	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/adxl38x"
)

type Direction byte

const (
	Write Direction = 0x00
	Read  Direction = 0x01
)

const (
	maxAddress = 0x7F
	dummy      = 0x00
)

// Command frames a 7-bit register address with the direction flag.
func Command(addr byte, dir Direction) byte {
	return addr<<1 | byte(dir&0x01)
}

// FieldPosition returns the index of the lowest set bit of mask, or 32 when mask is zero.
func FieldPosition(mask uint32) uint32 {
	return uint32(bits.TrailingZeros32(mask))
}

// FieldPrepare shifts value into the position of mask and clips it to the mask.
func FieldPrepare(mask, value uint32) uint32 {
	return (value << FieldPosition(mask)) & mask
}

// Access performs register operations over an SPI bus with a manually driven chip select.
type Access struct {
	bus      adxl38x.SPIBus
	cs       adxl38x.ChipSelect
	settings adxl38x.SPISettings
}

func New(bus adxl38x.SPIBus, cs adxl38x.ChipSelect, settings adxl38x.SPISettings) *Access {
	return &Access{bus: bus, cs: cs, settings: settings}
}

func (a *Access) Settings() adxl38x.SPISettings {
	return a.settings
}

// Deselect drives chip select to its idle (high) level outside of any transaction.
func (a *Access) Deselect() error {
	if err := a.cs.Out(gpio.High); err != nil {
		return fmt.Errorf("could not release chip select: %w", err)
	}
	return nil
}

// ReadRegister clocks out the read command followed by one dummy byte and
// returns the byte received during the dummy transfer.
func (a *Access) ReadRegister(ctx context.Context, addr byte) (byte, error) {
	if addr > maxAddress {
		return 0, fmt.Errorf("read %#02x: %w", addr, adxl38x.ErrInvalidAddress)
	}
	w := [2]byte{Command(addr, Read), dummy}
	var r [2]byte
	if err := a.transaction(ctx, w[:], r[:]); err != nil {
		return 0, fmt.Errorf("could not read register %#02x: %w", addr, err)
	}
	slog.DebugContext(ctx, "register read", "reg", hexByte(addr), "value", hexByte(r[1]))
	return r[1], nil
}

func (a *Access) WriteRegister(ctx context.Context, addr, value byte) error {
	if addr > maxAddress {
		return fmt.Errorf("write %#02x: %w", addr, adxl38x.ErrInvalidAddress)
	}
	w := [2]byte{Command(addr, Write), value}
	if err := a.transaction(ctx, w[:], nil); err != nil {
		return fmt.Errorf("could not write register %#02x: %w", addr, err)
	}
	slog.DebugContext(ctx, "register write", "reg", hexByte(addr), "value", hexByte(value))
	return nil
}

// ReadMultipleRegisters issues a single read command and fills buf with the
// bytes received while clocking len(buf) dummy bytes. Whether the device
// auto-increments the address or streams from one register is up to the device.
func (a *Access) ReadMultipleRegisters(ctx context.Context, addr byte, buf []byte) error {
	if addr > maxAddress {
		return fmt.Errorf("burst read %#02x: %w", addr, adxl38x.ErrInvalidAddress)
	}
	w := make([]byte, len(buf)+1)
	w[0] = Command(addr, Read)
	r := make([]byte, len(w))
	if err := a.transaction(ctx, w, r); err != nil {
		return fmt.Errorf("could not read %d bytes from register %#02x: %w", len(buf), addr, err)
	}
	copy(buf, r[1:])
	slog.DebugContext(ctx, "register burst read", "reg", hexByte(addr), "size", len(buf), "data", hex.EncodeToString(buf))
	return nil
}

// ReadRegisterBits returns the field selected by mask, right-aligned at bit 0.
func (a *Access) ReadRegisterBits(ctx context.Context, addr, mask byte) (byte, error) {
	v, err := a.ReadRegister(ctx, addr)
	if err != nil {
		return 0, err
	}
	return byte(uint32(v&mask) >> FieldPosition(uint32(mask))), nil
}

// UpdateRegisterBits replaces the field selected by mask with value, leaving
// every bit outside mask as read from the device.
func (a *Access) UpdateRegisterBits(ctx context.Context, addr, mask, value byte) error {
	v, err := a.ReadRegister(ctx, addr)
	if err != nil {
		return err
	}
	return a.WriteRegister(ctx, addr, Merge(v, mask, value))
}

// Merge computes the register content UpdateRegisterBits writes back.
func Merge(current, mask, value byte) byte {
	return current&^mask | byte(FieldPrepare(uint32(mask), uint32(value)))
}

func (a *Access) transaction(ctx context.Context, w, r []byte) (err error) {
	if err = a.bus.Begin(ctx, a.settings); err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func() {
		if endErr := a.bus.End(ctx); endErr != nil {
			err = errors.Join(err, fmt.Errorf("could not end transaction: %w", endErr))
		}
	}()
	if err = a.cs.Out(gpio.Low); err != nil {
		return errors.Join(fmt.Errorf("could not assert chip select: %w", err), a.cs.Out(gpio.High))
	}
	defer func() {
		if csErr := a.cs.Out(gpio.High); csErr != nil {
			err = errors.Join(err, fmt.Errorf("could not release chip select: %w", csErr))
		}
	}()
	return a.bus.Tx(ctx, w, r)
}

func hexByte(b byte) string {
	return fmt.Sprintf("%#02x", b)
}
