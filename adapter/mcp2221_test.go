package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func TestEncodeGPIOOutput(t *testing.T) {
	tests := []struct {
		pin    int
		level  gpio.Level
		offset int
		value  byte
	}{
		{0, gpio.Low, 2, 0x00},
		{1, gpio.High, 6, 0x01},
		{2, gpio.Low, 10, 0x00},
		{3, gpio.High, 14, 0x01},
	}
	for _, test := range tests {
		t.Run((&Pin{num: test.pin}).String(), func(t *testing.T) {
			request := make([]byte, 64)
			encodeGPIOOutput(request, test.pin, test.level)
			assert.Equal(t, byte(cmdSetGPIOOutput), request[0])
			assert.Equal(t, []byte{0x01, test.value, 0x01, byte(GPIOModeOut)}, request[test.offset:test.offset+4])
			for i := 2; i < 18; i++ {
				if i >= test.offset && i < test.offset+4 {
					continue
				}
				assert.Zero(t, request[i], "byte %d belongs to another pin", i)
			}
		})
	}
}

func TestBufferToValues(t *testing.T) {
	buffer := make([]byte, 64)
	copy(buffer[2:], []byte{0x01, 0x00, 0x00, 0x01, 0xEF, 0xEF, 0x01, 0x00})
	v := bufferToValues(buffer)
	assert.Equal(t, MCP2221GPIOValues{
		GPIO0Value: 0x01, GPIO0Mode: GPIOModeOut,
		GPIO1Value: 0x00, GPIO1Mode: GPIOModeIn,
		GPIO2Value: 0xEF, GPIO2Mode: GPIOModeNoOperation,
		GPIO3Value: 0x01, GPIO3Mode: GPIOModeOut,
	}, v)
}

func TestBufferToParameters(t *testing.T) {
	buffer := make([]byte, 64)
	copy(buffer[22:], []byte{0x00, 0x08, 0x02, 0x0A})
	p := bufferToParameters(buffer)
	assert.Equal(t, GPIOModeOut, p.GPIO0Mode)
	assert.Equal(t, GPIOOperation, p.GPIO0Designation)
	assert.Equal(t, GPIOModeIn, p.GPIO1Mode)
	assert.Equal(t, GPIODesignation(0x02), p.GPIO2Designation)
	assert.Equal(t, GPIOModeIn, p.GPIO3Mode)

	require.NoError(t, p.SetOutput(3))
	assert.Equal(t, GPIOModeOut, p.GPIO3Mode)
	assert.Equal(t, GPIOOperation, p.GPIO3Designation)
	assert.ErrorIs(t, p.SetOutput(4), ErrInvalidPin)
}

func TestBufferToStatus(t *testing.T) {
	buffer := make([]byte, 64)
	buffer[9], buffer[10] = 0x10, 0x00
	buffer[11], buffer[12] = 0x08, 0x00
	buffer[13] = 3
	buffer[14] = 0x1D
	buffer[16], buffer[17] = 0xA0, 0x00
	s := bufferToStatus(buffer)
	assert.Equal(t, uint16(16), s.LastWriteRequestedSize)
	assert.Equal(t, uint16(8), s.LastWriteSentSize)
	assert.Equal(t, 3, s.I2CDataBufferCounter)
	assert.Equal(t, 0x1D, s.I2CSpeedDivider)
	assert.Equal(t, "a000", s.CurrentAddress)
}

func TestPin_Invalid(t *testing.T) {
	d := NewMCP2221()
	_, err := d.Pin(context.Background(), 4)
	assert.ErrorIs(t, err, ErrInvalidPin)
	_, err = d.Pin(context.Background(), -1)
	assert.ErrorIs(t, err, ErrInvalidPin)
	assert.ErrorIs(t, d.SetGPIOOutput(context.Background(), 7, gpio.High), ErrInvalidPin)

	p, err := d.Pin(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "MCP2221/GP1", p.String())
}
