package accel

import (
	"fmt"

	"github.com/mklimuk/adxl38x/register"
)

const (
	// FIFO slot ceilings
	maxFIFOSamples        = 320
	maxFIFOSamplesReduced = 318

	fifoCountLowMask  = 0x00FF
	fifoCountHighMask = 0x01
	fifoEntriesMask   = 0x01FF

	fifoCfg0ReadReset  = 1 << 7
	fifoCfg0ChannelTag = 1 << 6
	fifoCfg0ExtTrigger = 1 << 3
)

// FIFOConfig describes the FIFO setup written to FIFO_CFG0 and FIFO_CFG1.
type FIFOConfig struct {
	Samples         uint16   `yaml:"samples"`
	ExternalTrigger bool     `yaml:"external_trigger"`
	Mode            FIFOMode `yaml:"mode"`
	ChannelTag      bool     `yaml:"channel_tag"`
	ReadReset       bool     `yaml:"read_reset"`
}

// reducedFIFO reports channel selections that use a wider record and leave
// fewer slots in the FIFO.
func reducedFIFO(c Channels) bool {
	return c == ChannelsDisabled || c == ChannelXYZ || c == ChannelYZT
}

// MaxFIFOSamples returns the sample count ceiling for the enabled channels.
func MaxFIFOSamples(c Channels) uint16 {
	if reducedFIFO(c) {
		return maxFIFOSamplesReduced
	}
	return maxFIFOSamples
}

// PackFIFO validates cfg against the enabled channels and returns the
// FIFO_CFG0 and FIFO_CFG1 register contents.
func PackFIFO(cfg FIFOConfig, enabled Channels) (cfg0, cfg1 byte, err error) {
	if !cfg.Mode.Valid() {
		return 0, 0, fmt.Errorf("%w: fifo mode %d", ErrInvalidValue, cfg.Mode)
	}
	if cfg.Samples > maxFIFOSamples {
		return 0, 0, fmt.Errorf("%w: %d exceeds %d", ErrFIFOSampleCount, cfg.Samples, maxFIFOSamples)
	}
	if cfg.Samples > maxFIFOSamplesReduced && reducedFIFO(enabled) {
		return 0, 0, fmt.Errorf("%w: %d exceeds %d with channels %s enabled", ErrFIFOSampleCount, cfg.Samples, maxFIFOSamplesReduced, enabled)
	}
	cfg1 = byte(cfg.Samples & fifoCountLowMask)
	cfg0 = byte(cfg.Samples>>8) & fifoCountHighMask
	cfg0 |= byte(register.FieldPrepare(maskFIFOMode, uint32(cfg.Mode)))
	if cfg.ReadReset {
		cfg0 |= fifoCfg0ReadReset
	}
	if cfg.ChannelTag {
		cfg0 |= fifoCfg0ChannelTag
	}
	// external trigger only means something in trigger mode
	if cfg.ExternalTrigger && cfg.Mode == FIFOTrigger {
		cfg0 |= fifoCfg0ExtTrigger
	}
	return cfg0, cfg1, nil
}

// UnpackFIFO decodes FIFO_CFG0 and FIFO_CFG1 contents.
func UnpackFIFO(cfg0, cfg1 byte) FIFOConfig {
	return FIFOConfig{
		Samples:         uint16(cfg0&fifoCountHighMask)<<8 | uint16(cfg1),
		Mode:            FIFOMode((cfg0 & maskFIFOMode) >> register.FieldPosition(maskFIFOMode)),
		ExternalTrigger: cfg0&fifoCfg0ExtTrigger != 0,
		ChannelTag:      cfg0&fifoCfg0ChannelTag != 0,
		ReadReset:       cfg0&fifoCfg0ReadReset != 0,
	}
}
