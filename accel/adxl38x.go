package accel

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/mklimuk/adxl38x"
	"github.com/mklimuk/adxl38x/register"
)

// register map
const (
	regDevIDAD     = 0x00
	regDevIDMST    = 0x01
	regPartID      = 0x02
	regStatus0     = 0x11
	regStatus1     = 0x12
	regStatus2     = 0x13
	regStatus3     = 0x14
	regFIFOData    = 0x1D
	regFIFOStatus0 = 0x1E
	regOpMode      = 0x26
	regDigEn       = 0x27
	regReset       = 0x2A
	regInt0Map0    = 0x2B
	regInt0Map1    = 0x2C
	regInt1Map0    = 0x2D
	regInt1Map1    = 0x2E
	regFIFOCfg0    = 0x30
	regFIFOCfg1    = 0x31
	regFilter      = 0x50
)

// values read back after power-on or soft reset
const (
	resetDevIDAD  = 0xAD
	resetDevIDMST = 0x1D
	resetPartID   = 0x17
	resetCode     = 'R'
)

// field masks
const (
	maskRange       = 0xC0 // OP_MODE[7:6]
	maskOpMode      = 0x0F // OP_MODE[3:0]
	maskChannels    = 0xF0 // DIG_EN[7:4]
	maskFIFOEnable  = 0x08 // DIG_EN[3]
	maskFIFOMode    = 0x30 // FIFO_CFG0[5:4]
	bitFIFOWtmk     = 0x08 // STATUS0[3]
	bitFIFOFull     = 0x02 // STATUS0[1]
	bitFIFOWtmkINT0 = 0x08 // INT0_MAP0[3]
)

// FilterBypassEQ bypasses the equaliser and selects LPF mode 0b11.
const FilterBypassEQ byte = 0x70

var (
	ErrIdentityMismatch = fmt.Errorf("unexpected device identity")
	ErrFIFOSampleCount  = fmt.Errorf("fifo sample count out of range")
	ErrInvalidValue     = fmt.Errorf("invalid value")
)

// DefaultSpeed is the SPI clock used unless WithSpeed says otherwise.
const DefaultSpeed = 8 * physic.MegaHertz

type ADXL38XOpts struct {
	Speed      physic.Frequency
	ResetDelay time.Duration
	ModeDelay  time.Duration
	Sleep      adxl38x.SleepFunc
}

type ADXL38XOpt func(*ADXL38XOpts)

func WithSpeed(speed physic.Frequency) ADXL38XOpt {
	return func(o *ADXL38XOpts) {
		o.Speed = speed
	}
}

// WithResetDelay sets the settle time after a soft reset.
func WithResetDelay(delay time.Duration) ADXL38XOpt {
	return func(o *ADXL38XOpts) {
		o.ResetDelay = delay
	}
}

// WithModeDelay sets the settle time after an operating mode change.
func WithModeDelay(delay time.Duration) ADXL38XOpt {
	return func(o *ADXL38XOpts) {
		o.ModeDelay = delay
	}
}

func WithSleep(sleep adxl38x.SleepFunc) ADXL38XOpt {
	return func(o *ADXL38XOpts) {
		o.Sleep = sleep
	}
}

// ADXL38X represents Analog Devices ADXL380/ADXL382 accelerometer on SPI.
// Device configuration is never cached: every setter reads the register back
// from the device and only replaces its own field.
// Typical usage:
//
//	dev := NewADXL38X(bus, csPin)
//	if err := dev.Init(ctx); err != nil { ... }
//	err := dev.SetFIFO(ctx, FIFOConfig{Samples: 300, Mode: FIFOStream})
//
// Each method holds the device lock for its whole register sequence.
type ADXL38X struct {
	mx     sync.Mutex
	regs   *register.Access
	config ADXL38XOpts
}

func NewADXL38X(bus adxl38x.SPIBus, cs adxl38x.ChipSelect, opts ...ADXL38XOpt) *ADXL38X {
	config := ADXL38XOpts{
		Speed:      DefaultSpeed,
		ResetDelay: time.Millisecond,
		ModeDelay:  2 * time.Millisecond,
		Sleep:      adxl38x.Sleep,
	}
	for _, opt := range opts {
		opt(&config)
	}
	settings := adxl38x.SPISettings{
		Speed: config.Speed,
		Mode:  spi.Mode0,
		Bits:  8,
	}
	return &ADXL38X{
		config: config,
		regs:   register.New(bus, cs, settings),
	}
}

// WithRegisters runs fn with raw register access while holding the device lock,
// so a raw sequence never interleaves with driver operations.
func (d *ADXL38X) WithRegisters(fn func(regs *register.Access) error) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return fn(d.regs)
}

type identityCheck struct {
	name     string
	reg      byte
	expected byte
}

var identity = []identityCheck{
	{"DEVID_AD", regDevIDAD, resetDevIDAD},
	{"DEVID_MST", regDevIDMST, resetDevIDMST},
	{"PART_ID", regPartID, resetPartID},
}

// Init releases chip select and verifies the three identity registers,
// stopping at the first mismatch. A non-nil error means the device must not be used.
func (d *ADXL38X) Init(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.regs.Deselect(); err != nil {
		return fmt.Errorf("adxl38x: %w", err)
	}
	for _, check := range identity {
		if err := d.expect(ctx, check); err != nil {
			return err
		}
	}
	slog.DebugContext(ctx, "adxl38x identified")
	return nil
}

func (d *ADXL38X) expect(ctx context.Context, check identityCheck) error {
	v, err := d.regs.ReadRegister(ctx, check.reg)
	if err != nil {
		return fmt.Errorf("adxl38x: could not read %s: %w", check.name, err)
	}
	if v != check.expected {
		return fmt.Errorf("adxl38x: %w: %s expected %#02x, got %#02x", ErrIdentityMismatch, check.name, check.expected, v)
	}
	return nil
}

// SoftReset writes the reset code, waits for the device to settle and checks DEVID_AD.
func (d *ADXL38X) SoftReset(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.softReset(ctx)
}

func (d *ADXL38X) softReset(ctx context.Context) error {
	if err := d.regs.WriteRegister(ctx, regReset, resetCode); err != nil {
		return fmt.Errorf("adxl38x: could not write reset code: %w", err)
	}
	if err := d.config.Sleep(ctx, d.config.ResetDelay); err != nil {
		return err
	}
	return d.expect(ctx, identity[0])
}

func (d *ADXL38X) SetRange(ctx context.Context, r Range) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setRange(ctx, r)
}

func (d *ADXL38X) setRange(ctx context.Context, r Range) error {
	if !r.Valid() {
		return fmt.Errorf("adxl38x: %w: range %d", ErrInvalidValue, r)
	}
	if err := d.regs.UpdateRegisterBits(ctx, regOpMode, maskRange, byte(r)); err != nil {
		return fmt.Errorf("adxl38x: could not set range: %w", err)
	}
	return nil
}

// SetOpMode changes the operating mode and waits for the transition to complete.
func (d *ADXL38X) SetOpMode(ctx context.Context, mode OpMode) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setOpMode(ctx, mode)
}

func (d *ADXL38X) setOpMode(ctx context.Context, mode OpMode) error {
	if !mode.Valid() {
		return fmt.Errorf("adxl38x: %w: operating mode %d", ErrInvalidValue, mode)
	}
	if err := d.regs.UpdateRegisterBits(ctx, regOpMode, maskOpMode, byte(mode)); err != nil {
		return fmt.Errorf("adxl38x: could not set operating mode: %w", err)
	}
	return d.config.Sleep(ctx, d.config.ModeDelay)
}

// SetFilter writes the whole FILTER register.
func (d *ADXL38X) SetFilter(ctx context.Context, filter byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setFilter(ctx, filter)
}

func (d *ADXL38X) setFilter(ctx context.Context, filter byte) error {
	if err := d.regs.WriteRegister(ctx, regFilter, filter); err != nil {
		return fmt.Errorf("adxl38x: could not set filter: %w", err)
	}
	return nil
}

func (d *ADXL38X) SetChannel(ctx context.Context, c Channels) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setChannel(ctx, c)
}

func (d *ADXL38X) setChannel(ctx context.Context, c Channels) error {
	if !c.Valid() {
		return fmt.Errorf("adxl38x: %w: channels %d", ErrInvalidValue, c)
	}
	if err := d.regs.UpdateRegisterBits(ctx, regDigEn, maskChannels, byte(c)); err != nil {
		return fmt.Errorf("adxl38x: could not set channels: %w", err)
	}
	return nil
}

func (d *ADXL38X) SetFIFOEnable(ctx context.Context, enable bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setFIFOEnable(ctx, enable)
}

func (d *ADXL38X) setFIFOEnable(ctx context.Context, enable bool) error {
	var v byte
	if enable {
		v = 1
	}
	if err := d.regs.UpdateRegisterBits(ctx, regDigEn, maskFIFOEnable, v); err != nil {
		return fmt.Errorf("adxl38x: could not set fifo enable: %w", err)
	}
	return nil
}

// SetFIFO validates cfg against the channels currently enabled on the device
// and writes FIFO_CFG1 then FIFO_CFG0. A rejected configuration writes nothing.
func (d *ADXL38X) SetFIFO(ctx context.Context, cfg FIFOConfig) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.setFIFO(ctx, cfg)
}

func (d *ADXL38X) setFIFO(ctx context.Context, cfg FIFOConfig) error {
	ch, err := d.regs.ReadRegisterBits(ctx, regDigEn, maskChannels)
	if err != nil {
		return fmt.Errorf("adxl38x: could not read enabled channels: %w", err)
	}
	cfg0, cfg1, err := PackFIFO(cfg, Channels(ch))
	if err != nil {
		return fmt.Errorf("adxl38x: %w", err)
	}
	if err := d.regs.WriteRegister(ctx, regFIFOCfg1, cfg1); err != nil {
		return fmt.Errorf("adxl38x: could not write fifo sample count: %w", err)
	}
	if err := d.regs.WriteRegister(ctx, regFIFOCfg0, cfg0); err != nil {
		return fmt.Errorf("adxl38x: could not write fifo control: %w", err)
	}
	slog.DebugContext(ctx, "adxl38x fifo configured", "samples", cfg.Samples, "mode", cfg.Mode.String(), "channels", Channels(ch).String())
	return nil
}

// FIFO reads back the FIFO configuration registers.
func (d *ADXL38X) FIFO(ctx context.Context) (FIFOConfig, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	cfg0, err := d.regs.ReadRegister(ctx, regFIFOCfg0)
	if err != nil {
		return FIFOConfig{}, fmt.Errorf("adxl38x: %w", err)
	}
	cfg1, err := d.regs.ReadRegister(ctx, regFIFOCfg1)
	if err != nil {
		return FIFOConfig{}, fmt.Errorf("adxl38x: %w", err)
	}
	return UnpackFIFO(cfg0, cfg1), nil
}

// SetFIFOWatermarkINT0 routes the FIFO watermark interrupt to the INT0 pin.
func (d *ADXL38X) SetFIFOWatermarkINT0(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.regs.UpdateRegisterBits(ctx, regInt0Map0, bitFIFOWtmkINT0, 1); err != nil {
		return fmt.Errorf("adxl38x: could not map fifo watermark to INT0: %w", err)
	}
	return nil
}

// ClearFIFOWatermarkINT0 removes the FIFO watermark interrupt from the INT0 pin.
func (d *ADXL38X) ClearFIFOWatermarkINT0(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.regs.UpdateRegisterBits(ctx, regInt0Map0, bitFIFOWtmkINT0, 0); err != nil {
		return fmt.Errorf("adxl38x: could not unmap fifo watermark from INT0: %w", err)
	}
	return nil
}

func (d *ADXL38X) FIFOWatermark(ctx context.Context) (bool, error) {
	return d.statusBit(ctx, bitFIFOWtmk)
}

func (d *ADXL38X) FIFOFull(ctx context.Context) (bool, error) {
	return d.statusBit(ctx, bitFIFOFull)
}

func (d *ADXL38X) statusBit(ctx context.Context, bit byte) (bool, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	v, err := d.regs.ReadRegisterBits(ctx, regStatus0, bit)
	if err != nil {
		return false, fmt.Errorf("adxl38x: could not read status: %w", err)
	}
	return v != 0, nil
}

// FIFOEntries returns the number of entries waiting in the FIFO.
func (d *ADXL38X) FIFOEntries(ctx context.Context) (uint16, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	var buf [2]byte
	if err := d.regs.ReadMultipleRegisters(ctx, regFIFOStatus0, buf[:]); err != nil {
		return 0, fmt.Errorf("adxl38x: could not read fifo status: %w", err)
	}
	// upper 7 bits of FIFO_STATUS1 are not part of the count
	return binary.LittleEndian.Uint16(buf[:]) & fifoEntriesMask, nil
}

// ReadFIFO fills buf from the FIFO data register in one burst.
func (d *ADXL38X) ReadFIFO(ctx context.Context, buf []byte) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	if err := d.regs.ReadMultipleRegisters(ctx, regFIFOData, buf); err != nil {
		return fmt.Errorf("adxl38x: could not read fifo data: %w", err)
	}
	return nil
}

func (d *ADXL38X) Range(ctx context.Context) (Range, error) {
	v, err := d.field(ctx, regOpMode, maskRange)
	return Range(v), err
}

func (d *ADXL38X) OpMode(ctx context.Context) (OpMode, error) {
	v, err := d.field(ctx, regOpMode, maskOpMode)
	return OpMode(v), err
}

func (d *ADXL38X) Channels(ctx context.Context) (Channels, error) {
	v, err := d.field(ctx, regDigEn, maskChannels)
	return Channels(v), err
}

func (d *ADXL38X) FIFOEnabled(ctx context.Context) (bool, error) {
	v, err := d.field(ctx, regDigEn, maskFIFOEnable)
	return v != 0, err
}

func (d *ADXL38X) Filter(ctx context.Context) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	v, err := d.regs.ReadRegister(ctx, regFilter)
	if err != nil {
		return 0, fmt.Errorf("adxl38x: %w", err)
	}
	return v, nil
}

func (d *ADXL38X) field(ctx context.Context, reg, mask byte) (byte, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	v, err := d.regs.ReadRegisterBits(ctx, reg, mask)
	if err != nil {
		return 0, fmt.Errorf("adxl38x: %w", err)
	}
	return v, nil
}
