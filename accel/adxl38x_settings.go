package accel

import (
	"context"
	"fmt"
	"log/slog"
)

// Identity holds the raw identification registers.
type Identity struct {
	DeviceID       byte `yaml:"devid_ad"`
	ManufacturerID byte `yaml:"devid_mst"`
	PartID         byte `yaml:"part_id"`
}

// Matches reports whether the identity is the one of an ADXL38x after reset.
func (i Identity) Matches() bool {
	return i.DeviceID == resetDevIDAD && i.ManufacturerID == resetDevIDMST && i.PartID == resetPartID
}

// Identify releases chip select and reads all identification registers
// without judging them.
func (d *ADXL38X) Identify(ctx context.Context) (Identity, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var id Identity
	if err := d.regs.Deselect(); err != nil {
		return id, fmt.Errorf("adxl38x: %w", err)
	}
	for _, target := range []struct {
		reg byte
		dst *byte
	}{
		{regDevIDAD, &id.DeviceID},
		{regDevIDMST, &id.ManufacturerID},
		{regPartID, &id.PartID},
	} {
		v, err := d.regs.ReadRegister(ctx, target.reg)
		if err != nil {
			return id, fmt.Errorf("adxl38x: %w", err)
		}
		*target.dst = v
	}
	return id, nil
}

// Status is the raw content of STATUS0 to STATUS3.
type Status [4]byte

func (s Status) FIFOWatermark() bool { return s[0]&bitFIFOWtmk != 0 }
func (s Status) FIFOFull() bool      { return s[0]&bitFIFOFull != 0 }

// Status reads the four status registers in one burst.
func (d *ADXL38X) Status(ctx context.Context) (Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var s Status
	if err := d.regs.ReadMultipleRegisters(ctx, regStatus0, s[:]); err != nil {
		return s, fmt.Errorf("adxl38x: could not read status: %w", err)
	}
	return s, nil
}

// Settings is a complete device configuration applied by Apply.
type Settings struct {
	Range       Range
	Mode        OpMode
	Filter      byte
	Channels    Channels
	FIFOEnabled bool
	FIFO        FIFOConfig
}

// Validate checks enum fields without touching the device.
func (s Settings) Validate() error {
	if !s.Range.Valid() {
		return fmt.Errorf("%w: range %d", ErrInvalidValue, s.Range)
	}
	if !s.Mode.Valid() {
		return fmt.Errorf("%w: operating mode %d", ErrInvalidValue, s.Mode)
	}
	if !s.Channels.Valid() {
		return fmt.Errorf("%w: channels %d", ErrInvalidValue, s.Channels)
	}
	if s.FIFOEnabled {
		if _, _, err := PackFIFO(s.FIFO, s.Channels); err != nil {
			return err
		}
	}
	return nil
}

// Apply puts the device in standby, writes range, filter, channels and FIFO
// setup, then switches to the requested operating mode. The device lock is
// held for the whole sequence.
func (d *ADXL38X) Apply(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("adxl38x: %w", err)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.setOpMode(ctx, ModeStandby); err != nil {
		return err
	}
	if err := d.setRange(ctx, s.Range); err != nil {
		return err
	}
	if err := d.setFilter(ctx, s.Filter); err != nil {
		return err
	}
	if err := d.setChannel(ctx, s.Channels); err != nil {
		return err
	}
	if err := d.setFIFOEnable(ctx, s.FIFOEnabled); err != nil {
		return err
	}
	if s.FIFOEnabled {
		if err := d.setFIFO(ctx, s.FIFO); err != nil {
			return err
		}
	}
	if s.Mode != ModeStandby {
		if err := d.setOpMode(ctx, s.Mode); err != nil {
			return err
		}
	}
	slog.InfoContext(ctx, "adxl38x configured", "range", s.Range.String(), "mode", s.Mode.String(), "channels", s.Channels.String())
	return nil
}
