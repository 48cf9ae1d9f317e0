package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/adxl38x"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

const (
	cmdStatus        = 0x10
	cmdSetGPIOOutput = 0x50
	cmdGetGPIOValues = 0x51
	cmdGetSRAM       = 0x61
	cmdSetSRAM       = 0x60
)

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrInvalidPin = errors.New("mcp2221 has GP0 to GP3 only")

// MCP2221 is a Microchip MCP2221 USB bridge. Its GP pins are used as chip
// select lines for SPI devices wired to a separate host controller.
type MCP2221 struct {
	mx           sync.Mutex
	request      []byte
	response     []byte
	responseWait time.Duration
	id           []int
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

type GPIODesignation byte

// GPIOOperation is the plain GPIO function, the only one usable for chip select.
const GPIOOperation GPIODesignation = 0b00000000

const gpioModeMask = 0b00001000
const gpioOperationMask = 0b00000111

type MCP2221GPIOValues struct {
	GPIO0Mode  GPIOMode `yaml:"GP0_mode"`
	GPIO0Value byte     `yaml:"GPIO0"`
	GPIO1Mode  GPIOMode `yaml:"GP1_mode"`
	GPIO1Value byte     `yaml:"GPIO1"`
	GPIO2Mode  GPIOMode `yaml:"GP2_mode"`
	GPIO2Value byte     `yaml:"GPIO2"`
	GPIO3Mode  GPIOMode `yaml:"GP3_mode"`
	GPIO3Value byte     `yaml:"GPIO3"`
}

type MCP2221GPIOParameters struct {
	GPIO0Mode        GPIOMode        `yaml:"GP0_mode"`
	GPIO0Designation GPIODesignation `yaml:"GP0_designation"`
	GPIO1Mode        GPIOMode        `yaml:"GP1_mode"`
	GPIO1Designation GPIODesignation `yaml:"GP1_designation"`
	GPIO2Mode        GPIOMode        `yaml:"GP2_mode"`
	GPIO2Designation GPIODesignation `yaml:"GP2_designation"`
	GPIO3Mode        GPIOMode        `yaml:"GP3_mode"`
	GPIO3Designation GPIODesignation `yaml:"GP3_designation"`
}

// SetOutput designates GP<pin> as a plain GPIO output.
func (p *MCP2221GPIOParameters) SetOutput(pin int) error {
	switch pin {
	case 0:
		p.GPIO0Mode, p.GPIO0Designation = GPIOModeOut, GPIOOperation
	case 1:
		p.GPIO1Mode, p.GPIO1Designation = GPIOModeOut, GPIOOperation
	case 2:
		p.GPIO2Mode, p.GPIO2Designation = GPIOModeOut, GPIOOperation
	case 3:
		p.GPIO3Mode, p.GPIO3Designation = GPIOModeOut, GPIOOperation
	default:
		return fmt.Errorf("GP%d: %w", pin, ErrInvalidPin)
	}
	return nil
}

// NewMCP2221 binds to the MCP2221 found on USB. When more than one is
// connected, id selects it by enumeration index.
func NewMCP2221(id ...int) *MCP2221 {
	return &MCP2221{
		request:      make([]byte, 64),
		response:     make([]byte, 64),
		responseWait: 50 * time.Millisecond,
		id:           id,
	}
}

// SetGPIOParameters updates the GP pin designation and direction in SRAM.
func (d *MCP2221) SetGPIOParameters(ctx context.Context, params MCP2221GPIOParameters) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetSRAM
	// alter GPIO configuration
	d.request[7] = 0x80
	d.request[8] = byte(params.GPIO0Designation) | byte(params.GPIO0Mode)
	d.request[9] = byte(params.GPIO1Designation) | byte(params.GPIO1Mode)
	d.request[10] = byte(params.GPIO2Designation) | byte(params.GPIO2Mode)
	d.request[11] = byte(params.GPIO3Designation) | byte(params.GPIO3Mode)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set GP parameters command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

func (d *MCP2221) GetGPIOParameters(ctx context.Context) (MCP2221GPIOParameters, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetSRAM
	err := d.send(ctx)
	if err != nil {
		return MCP2221GPIOParameters{}, fmt.Errorf("get GP parameters command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return MCP2221GPIOParameters{}, ErrCommandUnsupported
	}
	return bufferToParameters(d.response), nil
}

func bufferToParameters(buffer []byte) MCP2221GPIOParameters {
	// GP settings live at offsets 22..25 of the Get SRAM Settings response
	return MCP2221GPIOParameters{
		GPIO0Mode:        GPIOMode(buffer[22] & gpioModeMask),
		GPIO0Designation: GPIODesignation(buffer[22] & gpioOperationMask),
		GPIO1Mode:        GPIOMode(buffer[23] & gpioModeMask),
		GPIO1Designation: GPIODesignation(buffer[23] & gpioOperationMask),
		GPIO2Mode:        GPIOMode(buffer[24] & gpioModeMask),
		GPIO2Designation: GPIODesignation(buffer[24] & gpioOperationMask),
		GPIO3Mode:        GPIOMode(buffer[25] & gpioModeMask),
		GPIO3Designation: GPIODesignation(buffer[25] & gpioOperationMask),
	}
}

func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdGetGPIOValues
	err := d.send(ctx)
	var res MCP2221GPIOValues
	if err != nil {
		return res, fmt.Errorf("read GPIO values command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return res, ErrCommandFailed
	}
	return bufferToValues(d.response), nil
}

func bufferToValues(buffer []byte) MCP2221GPIOValues {
	mode := func(b byte) GPIOMode {
		if b == byte(GPIOModeNoOperation) {
			return GPIOModeNoOperation
		}
		return GPIOMode(b << 3)
	}
	return MCP2221GPIOValues{
		GPIO0Value: buffer[2],
		GPIO0Mode:  mode(buffer[3]),
		GPIO1Value: buffer[4],
		GPIO1Mode:  mode(buffer[5]),
		GPIO2Value: buffer[6],
		GPIO2Mode:  mode(buffer[7]),
		GPIO3Value: buffer[8],
		GPIO3Mode:  mode(buffer[9]),
	}
}

// SetGPIOOutput drives GP<pin> to level and makes sure it is an output.
func (d *MCP2221) SetGPIOOutput(ctx context.Context, pin int, level gpio.Level) error {
	if pin < 0 || pin > 3 {
		return fmt.Errorf("GP%d: %w", pin, ErrInvalidPin)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	encodeGPIOOutput(d.request, pin, level)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set GPIO output command write failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

// encodeGPIOOutput fills a Set GPIO Output Values request touching only one pin.
// Each pin takes four bytes: alter output, output value, alter direction, direction.
func encodeGPIOOutput(request []byte, pin int, level gpio.Level) {
	request[0] = cmdSetGPIOOutput
	offset := 2 + pin*4
	request[offset] = 0x01
	if level == gpio.High {
		request[offset+1] = 0x01
	}
	request[offset+2] = 0x01
	request[offset+3] = byte(GPIOModeOut)
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatus
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9: Lower byte (16-bit value) of the requested I2C transfer length
		10: Higher byte (16-bit value) of the requested I2C transfer length
		11:	Lower byte (16-bit value) of the already transferred (through I2C) number of bytes
		12:	Higher byte (16-bit value) of the already transferred (through I2C) number of bytes
		13:	Internal I2C data buffer counter
		14: Current I2C communication speed divider value
		15: Current I2C timeout value
		16:	Lower byte (16-bit value) of the I2C address being used
		17:	Higher byte (16-bit value) of the I2C address being used
	*/
	status := &MCP2221Status{
		I2CDataBufferCounter: int(buffer[13]),
		I2CSpeedDivider:      int(buffer[14]),
		I2CTimeout:           int(buffer[15]),
		ReadPending:          int(buffer[25]),
		CurrentAddress:       hex.EncodeToString(buffer[16:18]),
	}
	status.LastWriteRequestedSize = binary.LittleEndian.Uint16(buffer[9:11])
	status.LastWriteSentSize = binary.LittleEndian.Uint16(buffer[11:13])
	return status
}

func (d *MCP2221) open() (*hid.Device, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if len(devs) == 0 {
		return nil, fmt.Errorf("MCP2221 device not found")
	}
	if len(d.id) == 0 {
		if len(devs) > 1 {
			return nil, fmt.Errorf("ambiguous device identification")
		}
		return devs[0].Open()
	}
	if d.id[0] < 0 || d.id[0] >= len(devs) {
		return nil, fmt.Errorf("no device with id %d", d.id[0])
	}
	return devs[d.id[0]].Open()
}

func (d *MCP2221) send(ctx context.Context) error {
	dev, err := d.open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.WarnContext(ctx, "could not close MCP2221", "error", err)
		}
	}()
	slog.DebugContext(ctx, "sending message to adapter", "request", hex.EncodeToString(d.request[:16]))
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short write: %d", n)
	}
	if err := adxl38x.Sleep(ctx, d.responseWait); err != nil {
		return err
	}
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != 64 {
		return fmt.Errorf("short read: %d", n)
	}
	slog.DebugContext(ctx, "read message from adapter", "response", hex.EncodeToString(d.response[:16]))
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}

var _ adxl38x.ChipSelect = &Pin{}

// Pin is one MCP2221 GP line driven as a chip select.
type Pin struct {
	dev *MCP2221
	num int
	ctx context.Context
}

// Pin returns GP<num> as a ChipSelect. ctx bounds every USB exchange made by Out.
func (d *MCP2221) Pin(ctx context.Context, num int) (*Pin, error) {
	if num < 0 || num > 3 {
		return nil, fmt.Errorf("GP%d: %w", num, ErrInvalidPin)
	}
	return &Pin{dev: d, num: num, ctx: ctx}, nil
}

func (p *Pin) Out(l gpio.Level) error {
	return p.dev.SetGPIOOutput(p.ctx, p.num, l)
}

func (p *Pin) String() string {
	return fmt.Sprintf("MCP2221/GP%d", p.num)
}
