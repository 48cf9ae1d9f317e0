package accel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		given    string
		expected Range
	}{
		{"4g", Range4G},
		{"15G", Range15G},
		{" 8g ", Range8G},
		{"30g", Range30G},
		{"16g", Range16G},
		{"60g", Range60G},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			r, err := ParseRange(test.given)
			require.NoError(t, err)
			assert.Equal(t, test.expected, r)
		})
	}
	_, err := ParseRange("2g")
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestParseOpMode(t *testing.T) {
	for mode, name := range opModeNames {
		t.Run(name, func(t *testing.T) {
			m, err := ParseOpMode(name)
			require.NoError(t, err)
			assert.Equal(t, mode, m)
			assert.True(t, m.Valid())
		})
	}
	_, err := ParseOpMode("turbo")
	assert.ErrorIs(t, err, ErrInvalidValue)
	for _, gap := range []OpMode{5, 9, 13, 16} {
		assert.False(t, gap.Valid(), "mode %d", gap)
	}
}

func TestChannels(t *testing.T) {
	tests := []struct {
		given    string
		expected Channels
	}{
		{"none", ChannelsDisabled},
		{"x", ChannelX},
		{"y", ChannelY},
		{"xy", ChannelXY},
		{"yx", ChannelXY},
		{"z", ChannelZ},
		{"yz", ChannelYZ},
		{"XYZ", ChannelXYZ},
		{"t", ChannelT},
		{"zt", ChannelZT},
		{"yzt", ChannelYZT},
		{"xyzt", ChannelXYZT},
	}
	for _, test := range tests {
		t.Run(test.given, func(t *testing.T) {
			c, err := ParseChannels(test.given)
			require.NoError(t, err)
			assert.Equal(t, test.expected, c)
		})
	}
	for _, bad := range []string{"xz", "xt", "q"} {
		_, err := ParseChannels(bad)
		assert.ErrorIs(t, err, ErrInvalidValue, bad)
	}
	assert.Equal(t, "yzt", ChannelYZT.String())
	assert.Equal(t, "none", ChannelsDisabled.String())
}

func TestParseFIFOMode(t *testing.T) {
	for _, m := range []FIFOMode{FIFODisabled, FIFONormal, FIFOStream, FIFOTrigger} {
		parsed, err := ParseFIFOMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
	_, err := ParseFIFOMode("ring")
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.False(t, FIFOMode(4).Valid())
}
