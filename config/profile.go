// Package config loads ADXL38x device profiles from YAML.
//
// A profile names the SPI bus and chip select the device is wired to and the
// configuration to apply:
//
//	bus:
//	  driver: periph
//	  device: SPI0.0
//	  chip_select: GPIO8
//	  speed_hz: 8000000
//	device:
//	  range: 4g
//	  mode: hp
//	  filter: 0x70
//	  channels: xyz
//	  fifo:
//	    enabled: true
//	    samples: 300
//	    mode: stream
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/adxl38x/accel"
)

const (
	DriverPeriph = "periph"
	DriverGobot  = "gobot"
	DriverSim    = "sim"

	ChipSelectGPIO    = "gpio"
	ChipSelectMCP2221 = "mcp2221"
)

var ErrUnknownDriver = errors.New("unknown bus driver")

type Bus struct {
	Driver     string `yaml:"driver"`
	Device     string `yaml:"device"`
	Bus        int    `yaml:"bus"`
	Chip       int    `yaml:"chip"`
	ChipSelect string `yaml:"chip_select"`
	// CSAdapter selects where the chip select line comes from: a host GPIO or an MCP2221 GP pin.
	CSAdapter string `yaml:"cs_adapter"`
	CSPin     int    `yaml:"cs_pin"`
	SpeedHz   int64  `yaml:"speed_hz"`
}

func (b Bus) Speed() physic.Frequency {
	return physic.Frequency(b.SpeedHz) * physic.Hertz
}

type FIFO struct {
	Enabled         bool   `yaml:"enabled"`
	Samples         uint16 `yaml:"samples"`
	Mode            string `yaml:"mode"`
	ExternalTrigger bool   `yaml:"external_trigger"`
	ChannelTag      bool   `yaml:"channel_tag"`
	ReadReset       bool   `yaml:"read_reset"`
}

type Device struct {
	Range    string `yaml:"range"`
	Mode     string `yaml:"mode"`
	Filter   *uint8 `yaml:"filter"`
	Channels string `yaml:"channels"`
	FIFO     FIFO   `yaml:"fifo"`
}

type Profile struct {
	Bus    Bus    `yaml:"bus"`
	Device Device `yaml:"device"`
}

// Default returns the profile used when no file is given.
func Default() *Profile {
	filter := accel.FilterBypassEQ
	return &Profile{
		Bus: Bus{
			Driver:    DriverPeriph,
			CSAdapter: ChipSelectGPIO,
			SpeedHz:   int64(accel.DefaultSpeed / physic.Hertz),
		},
		Device: Device{
			Range:    "4g",
			Mode:     "hp",
			Filter:   &filter,
			Channels: "xyz",
			FIFO: FIFO{
				Mode: "disabled",
			},
		},
	}
}

// Load reads a profile from path on top of the defaults.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read profile: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Profile, error) {
	p := Default()
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("could not decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Validate() error {
	switch p.Bus.Driver {
	case DriverPeriph, DriverGobot, DriverSim:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, p.Bus.Driver)
	}
	switch p.Bus.CSAdapter {
	case ChipSelectGPIO, ChipSelectMCP2221:
	default:
		return fmt.Errorf("unknown chip select adapter %q", p.Bus.CSAdapter)
	}
	if p.Bus.SpeedHz <= 0 {
		return fmt.Errorf("spi speed must be positive, got %d", p.Bus.SpeedHz)
	}
	s, err := p.Settings()
	if err != nil {
		return err
	}
	return s.Validate()
}

// Settings converts the device section into driver settings.
func (p *Profile) Settings() (accel.Settings, error) {
	var s accel.Settings
	var err error
	if s.Range, err = accel.ParseRange(p.Device.Range); err != nil {
		return s, err
	}
	if s.Mode, err = accel.ParseOpMode(p.Device.Mode); err != nil {
		return s, err
	}
	if s.Channels, err = accel.ParseChannels(p.Device.Channels); err != nil {
		return s, err
	}
	s.Filter = accel.FilterBypassEQ
	if p.Device.Filter != nil {
		s.Filter = *p.Device.Filter
	}
	s.FIFOEnabled = p.Device.FIFO.Enabled
	mode, err := accel.ParseFIFOMode(p.Device.FIFO.Mode)
	if err != nil {
		return s, err
	}
	s.FIFO = accel.FIFOConfig{
		Samples:         p.Device.FIFO.Samples,
		ExternalTrigger: p.Device.FIFO.ExternalTrigger,
		Mode:            mode,
		ChannelTag:      p.Device.FIFO.ChannelTag,
		ReadReset:       p.Device.FIFO.ReadReset,
	}
	return s, nil
}

// Save writes the profile as YAML, refusing to replace an existing file unless overwrite is set.
func (p *Profile) Save(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return fmt.Errorf("profile %s already exists", path)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("could not encode profile: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
