package accel

import (
	"fmt"
	"strings"
)

// Range selects the full-scale range. ADXL380 and ADXL382 share the codes.
type Range byte

const (
	Range4G  Range = 0 // ADXL380 ±4g
	Range8G  Range = 1 // ADXL380 ±8g
	Range16G Range = 2 // ADXL380 ±16g
	Range15G Range = 0 // ADXL382 ±15g
	Range30G Range = 1 // ADXL382 ±30g
	Range60G Range = 2 // ADXL382 ±60g
)

func (r Range) Valid() bool {
	return r <= Range16G
}

func (r Range) String() string {
	switch r {
	case Range4G:
		return "4g/15g"
	case Range8G:
		return "8g/30g"
	case Range16G:
		return "16g/60g"
	default:
		return fmt.Sprintf("Range(%d)", byte(r))
	}
}

// ParseRange accepts the ADXL380 or ADXL382 name of a range ("4g", "15g", ...).
func ParseRange(s string) (Range, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "4g", "15g":
		return Range4G, nil
	case "8g", "30g":
		return Range8G, nil
	case "16g", "60g":
		return Range16G, nil
	}
	return 0, fmt.Errorf("%w: range %q", ErrInvalidValue, s)
}

type OpMode byte

const (
	ModeStandby            OpMode = 0
	ModeHeartSound         OpMode = 1
	ModeUltraLowPower      OpMode = 2
	ModeVeryLowPower       OpMode = 3
	ModeLowPower           OpMode = 4
	ModeLowPowerSerialULP  OpMode = 6
	ModeLowPowerSerialVLP  OpMode = 7
	ModeReducedBW          OpMode = 8
	ModeReducedBWSerialULP OpMode = 10
	ModeReducedBWSerialVLP OpMode = 11
	ModeHighPerformance    OpMode = 12
	ModeHighPerfSerialULP  OpMode = 14
	ModeHighPerfSerialVLP  OpMode = 15
)

var opModeNames = map[OpMode]string{
	ModeStandby:            "standby",
	ModeHeartSound:         "hrt_snd",
	ModeUltraLowPower:      "ulp",
	ModeVeryLowPower:       "vlp",
	ModeLowPower:           "lp",
	ModeLowPowerSerialULP:  "lp_serial_ulp",
	ModeLowPowerSerialVLP:  "lp_serial_vlp",
	ModeReducedBW:          "rbw",
	ModeReducedBWSerialULP: "rbw_serial_ulp",
	ModeReducedBWSerialVLP: "rbw_serial_vlp",
	ModeHighPerformance:    "hp",
	ModeHighPerfSerialULP:  "hp_serial_ulp",
	ModeHighPerfSerialVLP:  "hp_serial_vlp",
}

func (m OpMode) Valid() bool {
	_, ok := opModeNames[m]
	return ok
}

func (m OpMode) String() string {
	if name, ok := opModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("OpMode(%d)", byte(m))
}

func ParseOpMode(s string) (OpMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for m, name := range opModeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: operating mode %q", ErrInvalidValue, s)
}

// Channels is the set of enabled measurement channels, bits X=0 Y=1 Z=2 T=3.
type Channels byte

const (
	ChannelsDisabled Channels = 0
	ChannelX         Channels = 1
	ChannelY         Channels = 2
	ChannelXY        Channels = 3
	ChannelZ         Channels = 4
	ChannelYZ        Channels = 6
	ChannelXYZ       Channels = 7
	ChannelT         Channels = 8
	ChannelZT        Channels = 12
	ChannelYZT       Channels = 14
	ChannelXYZT      Channels = 15
)

// Valid reports whether c is one of the channel combinations the device supports.
func (c Channels) Valid() bool {
	switch c {
	case ChannelsDisabled, ChannelX, ChannelY, ChannelXY, ChannelZ, ChannelYZ,
		ChannelXYZ, ChannelT, ChannelZT, ChannelYZT, ChannelXYZT:
		return true
	}
	return false
}

func (c Channels) String() string {
	if c == ChannelsDisabled {
		return "none"
	}
	if c > ChannelXYZT {
		return fmt.Sprintf("Channels(%d)", byte(c))
	}
	var sb strings.Builder
	for i, name := range "xyzt" {
		if c&(1<<i) != 0 {
			sb.WriteRune(name)
		}
	}
	return sb.String()
}

// ParseChannels accepts a combination of the letters x, y, z and t, or "none".
func ParseChannels(s string) (Channels, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "none" || s == "" {
		return ChannelsDisabled, nil
	}
	var c Channels
	for _, r := range s {
		idx := strings.IndexRune("xyzt", r)
		if idx < 0 {
			return 0, fmt.Errorf("%w: channel %q in %q", ErrInvalidValue, r, s)
		}
		c |= 1 << idx
	}
	if !c.Valid() {
		return 0, fmt.Errorf("%w: unsupported channel combination %q", ErrInvalidValue, s)
	}
	return c, nil
}

type FIFOMode byte

const (
	FIFODisabled FIFOMode = 0
	FIFONormal   FIFOMode = 1
	FIFOStream   FIFOMode = 2
	FIFOTrigger  FIFOMode = 3
)

func (m FIFOMode) Valid() bool {
	return m <= FIFOTrigger
}

func (m FIFOMode) String() string {
	switch m {
	case FIFODisabled:
		return "disabled"
	case FIFONormal:
		return "normal"
	case FIFOStream:
		return "stream"
	case FIFOTrigger:
		return "trigger"
	default:
		return fmt.Sprintf("FIFOMode(%d)", byte(m))
	}
}

func ParseFIFOMode(s string) (FIFOMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "":
		return FIFODisabled, nil
	case "normal":
		return FIFONormal, nil
	case "stream":
		return FIFOStream, nil
	case "trigger":
		return FIFOTrigger, nil
	}
	return 0, fmt.Errorf("%w: fifo mode %q", ErrInvalidValue, s)
}

func (r Range) MarshalText() ([]byte, error)    { return []byte(r.String()), nil }
func (m OpMode) MarshalText() ([]byte, error)   { return []byte(m.String()), nil }
func (c Channels) MarshalText() ([]byte, error) { return []byte(c.String()), nil }
func (m FIFOMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
