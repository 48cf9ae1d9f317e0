package accel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/adxl38x/register"
	"github.com/mklimuk/adxl38x/spi/spisim"
)

type sleepRecorder struct {
	mx    sync.Mutex
	calls []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.calls = append(s.calls, d)
	return nil
}

func (s *sleepRecorder) slept() []time.Duration {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]time.Duration(nil), s.calls...)
}

func newTestDevice(opts ...spisim.Opt) (*ADXL38X, *spisim.Sim, *sleepRecorder) {
	sim := NewSimulatedADXL38X(opts...)
	rec := &sleepRecorder{}
	return NewADXL38X(sim, sim, WithSleep(rec.sleep)), sim, rec
}

func writeFrames(sim *spisim.Sim) []spisim.Frame {
	var out []spisim.Frame
	for _, f := range sim.Frames() {
		if !f.Read {
			out = append(out, f)
		}
	}
	return out
}

func TestADXL38X_Init(t *testing.T) {
	dev, sim, _ := newTestDevice()
	require.NoError(t, dev.Init(context.Background()))
	for _, reg := range []byte{regDevIDAD, regDevIDMST, regPartID} {
		assert.Equal(t, 1, sim.Reads(reg), "register %#02x", reg)
	}
	assert.Zero(t, sim.TotalWrites())
	assert.False(t, sim.Selected())
}

func TestADXL38X_InitStopsAtFirstMismatch(t *testing.T) {
	tests := []struct {
		name      string
		reg       byte
		readsLeft []byte
	}{
		{"DEVID_AD", regDevIDAD, []byte{regDevIDMST, regPartID}},
		{"DEVID_MST", regDevIDMST, []byte{regPartID}},
		{"PART_ID", regPartID, nil},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dev, sim, _ := newTestDevice(spisim.WithRegister(test.reg, 0x00))
			err := dev.Init(context.Background())
			assert.ErrorIs(t, err, ErrIdentityMismatch)
			assert.Contains(t, err.Error(), test.name)
			assert.Equal(t, 1, sim.Reads(test.reg))
			for _, reg := range test.readsLeft {
				assert.Zero(t, sim.Reads(reg), "register %#02x must not be read", reg)
			}
		})
	}
}

func TestADXL38X_Identify(t *testing.T) {
	dev, sim, _ := newTestDevice(spisim.WithRegister(regDevIDAD, 0x42))
	id, err := dev.Identify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Identity{DeviceID: 0x42, ManufacturerID: 0x1D, PartID: 0x17}, id)
	assert.False(t, id.Matches())
	assert.Equal(t, 1, sim.Reads(regPartID), "identify reads all registers")
}

func TestADXL38X_SoftReset(t *testing.T) {
	dev, sim, rec := newTestDevice(spisim.WithRegister(regOpMode, 0x8C), spisim.WithRegister(regFilter, 0x33))
	require.NoError(t, dev.SoftReset(context.Background()))

	writes := writeFrames(sim)
	require.Len(t, writes, 1)
	assert.Equal(t, []byte{0x54, 0x52}, writes[0].Out)
	assert.Equal(t, []time.Duration{time.Millisecond}, rec.slept())
	assert.Zero(t, sim.Get(regOpMode))
	assert.Zero(t, sim.Get(regFilter))
	assert.Equal(t, 1, sim.Reads(regDevIDAD))
}

func TestADXL38X_SoftResetLostIdentity(t *testing.T) {
	dev, _, _ := newTestDevice(spisim.WithWriteHook(func(addr, value byte, regs []byte) {
		if addr == regReset {
			regs[regDevIDAD] = 0xFF
		}
	}))
	assert.ErrorIs(t, dev.SoftReset(context.Background()), ErrIdentityMismatch)
}

func TestADXL38X_SetOpMode(t *testing.T) {
	dev, sim, rec := newTestDevice(spisim.WithRegister(regOpMode, 0x80))
	require.NoError(t, dev.SetOpMode(context.Background(), ModeHighPerformance))
	assert.Equal(t, byte(0x8C), sim.Get(regOpMode), "range bits preserved")
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, rec.slept())

	mode, err := dev.OpMode(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeHighPerformance, mode)
}

func TestADXL38X_SetOpModeCancelled(t *testing.T) {
	sim := NewSimulatedADXL38X()
	dev := NewADXL38X(sim, sim, WithModeDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, dev.SetOpMode(ctx, ModeLowPower), context.Canceled)
	assert.Equal(t, byte(ModeLowPower), sim.Get(regOpMode))
}

func TestADXL38X_SetRange(t *testing.T) {
	dev, sim, _ := newTestDevice(spisim.WithRegister(regOpMode, 0x0C))
	require.NoError(t, dev.SetRange(context.Background(), Range8G))
	assert.Equal(t, byte(0x4C), sim.Get(regOpMode))
	r, err := dev.Range(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Range30G, r)
}

func TestADXL38X_SetChannelAndFIFOEnable(t *testing.T) {
	dev, sim, _ := newTestDevice(spisim.WithRegister(regDigEn, 0x08))
	ctx := context.Background()
	require.NoError(t, dev.SetChannel(ctx, ChannelXYZ))
	assert.Equal(t, byte(0x78), sim.Get(regDigEn))
	require.NoError(t, dev.SetFIFOEnable(ctx, false))
	assert.Equal(t, byte(0x70), sim.Get(regDigEn))
	require.NoError(t, dev.SetFIFOEnable(ctx, true))
	assert.Equal(t, byte(0x78), sim.Get(regDigEn))

	ch, err := dev.Channels(ctx)
	require.NoError(t, err)
	assert.Equal(t, ChannelXYZ, ch)
	enabled, err := dev.FIFOEnabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestADXL38X_SetFilter(t *testing.T) {
	dev, sim, _ := newTestDevice()
	require.NoError(t, dev.SetFilter(context.Background(), FilterBypassEQ))
	assert.Equal(t, byte(0x70), sim.Get(regFilter))
	assert.Zero(t, sim.Reads(regFilter), "filter is written whole")
	f, err := dev.Filter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FilterBypassEQ, f)
}

func TestADXL38X_InvalidValuesWriteNothing(t *testing.T) {
	dev, sim, rec := newTestDevice()
	ctx := context.Background()
	assert.ErrorIs(t, dev.SetRange(ctx, Range(3)), ErrInvalidValue)
	assert.ErrorIs(t, dev.SetOpMode(ctx, OpMode(5)), ErrInvalidValue)
	assert.ErrorIs(t, dev.SetOpMode(ctx, OpMode(16)), ErrInvalidValue)
	assert.ErrorIs(t, dev.SetChannel(ctx, Channels(5)), ErrInvalidValue)
	assert.ErrorIs(t, dev.SetFIFO(ctx, FIFOConfig{Mode: FIFOMode(4)}), ErrInvalidValue)
	assert.Zero(t, sim.TotalWrites())
	assert.Empty(t, rec.slept())
}

func TestADXL38X_SetFIFOSampleLimits(t *testing.T) {
	tests := []struct {
		channels Channels
		samples  uint16
		ok       bool
		cfg0     byte
		cfg1     byte
	}{
		{ChannelXYZ, 318, true, 0x21, 0x3E},
		{ChannelXYZ, 319, false, 0, 0},
		{ChannelXYZ, 320, false, 0, 0},
		{ChannelYZT, 319, false, 0, 0},
		{ChannelsDisabled, 319, false, 0, 0},
		{ChannelX, 319, true, 0x21, 0x3F},
		{ChannelX, 320, true, 0x21, 0x40},
		{ChannelX, 321, false, 0, 0},
		{ChannelXYZT, 320, true, 0x21, 0x40},
		{ChannelXYZT, 512, false, 0, 0},
		{ChannelXY, 255, true, 0x20, 0xFF},
		{ChannelXY, 256, true, 0x21, 0x00},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%s/%d", test.channels, test.samples), func(t *testing.T) {
			dev, sim, _ := newTestDevice(spisim.WithRegister(regDigEn, byte(test.channels)<<4))
			err := dev.SetFIFO(context.Background(), FIFOConfig{Samples: test.samples, Mode: FIFOStream})
			if !test.ok {
				assert.ErrorIs(t, err, ErrFIFOSampleCount)
				assert.Zero(t, sim.TotalWrites(), "rejected configuration must not touch the device")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.cfg0, sim.Get(regFIFOCfg0))
			assert.Equal(t, test.cfg1, sim.Get(regFIFOCfg1))
			writes := writeFrames(sim)
			require.Len(t, writes, 2)
			assert.Equal(t, byte(regFIFOCfg1), writes[0].Addr, "sample count is written first")
			assert.Equal(t, byte(regFIFOCfg0), writes[1].Addr)
		})
	}
}

func TestADXL38X_SetFIFOControlBits(t *testing.T) {
	tests := []struct {
		name string
		cfg  FIFOConfig
		cfg0 byte
	}{
		{"stream ignores external trigger", FIFOConfig{Mode: FIFOStream, ExternalTrigger: true}, 0x20},
		{"trigger with external trigger", FIFOConfig{Mode: FIFOTrigger, ExternalTrigger: true}, 0x38},
		{"trigger without external trigger", FIFOConfig{Mode: FIFOTrigger}, 0x30},
		{"normal with tag and read reset", FIFOConfig{Mode: FIFONormal, ChannelTag: true, ReadReset: true}, 0xD0},
		{"disabled clears stale bits", FIFOConfig{Mode: FIFODisabled}, 0x00},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dev, sim, _ := newTestDevice(
				spisim.WithRegister(regDigEn, byte(ChannelXYZ)<<4),
				spisim.WithRegister(regFIFOCfg0, 0xFF),
			)
			require.NoError(t, dev.SetFIFO(context.Background(), test.cfg))
			assert.Equal(t, test.cfg0, sim.Get(regFIFOCfg0))
		})
	}
}

func TestADXL38X_FIFOReadBack(t *testing.T) {
	dev, _, _ := newTestDevice(spisim.WithRegister(regDigEn, byte(ChannelXYZT)<<4))
	cfg := FIFOConfig{Samples: 300, Mode: FIFOTrigger, ExternalTrigger: true, ChannelTag: true}
	require.NoError(t, dev.SetFIFO(context.Background(), cfg))
	got, err := dev.FIFO(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestADXL38X_FIFOWatermarkINT0(t *testing.T) {
	dev, sim, _ := newTestDevice(spisim.WithRegister(regInt0Map0, 0x81))
	ctx := context.Background()
	require.NoError(t, dev.SetFIFOWatermarkINT0(ctx))
	assert.Equal(t, byte(0x89), sim.Get(regInt0Map0))
	require.NoError(t, dev.ClearFIFOWatermarkINT0(ctx))
	assert.Equal(t, byte(0x81), sim.Get(regInt0Map0))
}

func TestADXL38X_StatusBits(t *testing.T) {
	tests := []struct {
		status0   byte
		watermark bool
		full      bool
	}{
		{0x00, false, false},
		{0x08, true, false},
		{0x02, false, true},
		{0x0A, true, true},
		{0xF5, false, false},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x", test.status0), func(t *testing.T) {
			dev, _, _ := newTestDevice(spisim.WithRegister(regStatus0, test.status0))
			ctx := context.Background()
			wm, err := dev.FIFOWatermark(ctx)
			require.NoError(t, err)
			assert.Equal(t, test.watermark, wm)
			full, err := dev.FIFOFull(ctx)
			require.NoError(t, err)
			assert.Equal(t, test.full, full)

			st, err := dev.Status(ctx)
			require.NoError(t, err)
			assert.Equal(t, test.watermark, st.FIFOWatermark())
			assert.Equal(t, test.full, st.FIFOFull())
		})
	}
}

func TestADXL38X_FIFOEntries(t *testing.T) {
	tests := []struct {
		lo, hi   byte
		expected uint16
	}{
		{0x00, 0x00, 0},
		{0x2C, 0x01, 300},
		{0xFF, 0x01, 511},
		{0xFF, 0xFF, 511},
		{0x40, 0xFE, 64},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%02x%02x", test.hi, test.lo), func(t *testing.T) {
			dev, sim, _ := newTestDevice(
				spisim.WithRegister(regFIFOStatus0, test.lo),
				spisim.WithRegister(regFIFOStatus0+1, test.hi),
			)
			n, err := dev.FIFOEntries(context.Background())
			require.NoError(t, err)
			assert.Equal(t, test.expected, n)
			frames := sim.Frames()
			require.Len(t, frames, 1)
			assert.Equal(t, []byte{0x3D, 0x00, 0x00}, frames[0].Out)
		})
	}
}

func TestADXL38X_ReadFIFO(t *testing.T) {
	dev, sim, _ := newTestDevice()
	sim.Feed(regFIFOData, 0x01, 0x02, 0x03, 0x04, 0x05)
	buf := make([]byte, 4)
	require.NoError(t, dev.ReadFIFO(context.Background(), buf))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)
	require.NoError(t, dev.ReadFIFO(context.Background(), buf[:2]))
	assert.Equal(t, []byte{0x05, 0x00}, buf[:2])
}

func TestADXL38X_Apply(t *testing.T) {
	dev, sim, rec := newTestDevice(spisim.WithRegister(regOpMode, 0x0C))
	settings := Settings{
		Range:       Range16G,
		Mode:        ModeLowPower,
		Filter:      FilterBypassEQ,
		Channels:    ChannelXYZ,
		FIFOEnabled: true,
		FIFO:        FIFOConfig{Samples: 200, Mode: FIFOStream},
	}
	require.NoError(t, dev.Apply(context.Background(), settings))
	assert.Equal(t, byte(0x84), sim.Get(regOpMode))
	assert.Equal(t, byte(0x70), sim.Get(regFilter))
	assert.Equal(t, byte(0x78), sim.Get(regDigEn))
	assert.Equal(t, byte(0x20), sim.Get(regFIFOCfg0))
	assert.Equal(t, byte(200), sim.Get(regFIFOCfg1))
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 2 * time.Millisecond}, rec.slept())

	writes := writeFrames(sim)
	require.NotEmpty(t, writes)
	assert.Equal(t, []byte{regOpMode << 1, 0x00}, writes[0].Out, "device goes to standby first")
}

func TestADXL38X_ApplyRejectsInvalidSettings(t *testing.T) {
	dev, sim, _ := newTestDevice()
	err := dev.Apply(context.Background(), Settings{
		Channels:    ChannelXYZ,
		FIFOEnabled: true,
		FIFO:        FIFOConfig{Samples: 319},
	})
	assert.ErrorIs(t, err, ErrFIFOSampleCount)
	assert.Zero(t, sim.TotalWrites())
}

func TestADXL38X_ConcurrentOperations(t *testing.T) {
	// Every locked read-modify-write of OP_MODE changes one field only. A write
	// changing both fields means a concurrent update was lost.
	var mx sync.Mutex
	prev := byte(0x00)
	var lost []string
	track := func(addr, value byte, _ []byte) {
		if addr != regOpMode {
			return
		}
		mx.Lock()
		defer mx.Unlock()
		if (prev^value)&maskRange != 0 && (prev^value)&maskOpMode != 0 {
			lost = append(lost, fmt.Sprintf("%#02x -> %#02x", prev, value))
		}
		prev = value
	}
	dev, sim, _ := newTestDevice(
		spisim.WithRegister(regOpMode, 0x00),
		spisim.WithRegister(regDigEn, byte(ChannelX)<<4),
		spisim.WithWriteHook(track),
	)
	ctx := context.Background()
	ranges := []Range{Range4G, Range8G, Range16G}
	modes := []OpMode{ModeLowPower, ModeHighPerformance, ModeUltraLowPower}
	var wg sync.WaitGroup
	errs := make(chan error, 128)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				errs <- dev.SetRange(ctx, ranges[(i+j)%len(ranges)])
				errs <- dev.SetOpMode(ctx, modes[(i*j+1)%len(modes)])
				_, err := dev.FIFOEntries(ctx)
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err, "operations must not interleave on the bus")
	}
	assert.Empty(t, lost, "read-modify-write sequences must not overlap")
	assert.Equal(t, 64, sim.Writes(regOpMode))

	r, err := dev.Range(ctx)
	require.NoError(t, err)
	assert.Contains(t, ranges, r)
	mode, err := dev.OpMode(ctx)
	require.NoError(t, err)
	assert.Contains(t, modes, mode)
}

func TestADXL38X_WithRegisters(t *testing.T) {
	dev, sim, _ := newTestDevice(spisim.WithRegister(regOpMode, 0x0C))
	ctx := context.Background()
	err := dev.WithRegisters(func(regs *register.Access) error {
		assert.False(t, dev.mx.TryLock(), "device lock must be held during raw access")
		return regs.UpdateRegisterBits(ctx, regOpMode, maskRange, byte(Range16G))
	})
	require.NoError(t, err)
	assert.Equal(t, byte(0x8C), sim.Get(regOpMode))
	assert.True(t, dev.mx.TryLock(), "device lock must be released afterwards")
	dev.mx.Unlock()

	boom := errors.New("boom")
	assert.ErrorIs(t, dev.WithRegisters(func(*register.Access) error { return boom }), boom)
	r, err := dev.Range(ctx)
	require.NoError(t, err)
	assert.Equal(t, Range16G, r)
}

type levelRecorder struct {
	*spisim.Sim
	mx     sync.Mutex
	levels []gpio.Level
}

func (l *levelRecorder) Out(level gpio.Level) error {
	l.mx.Lock()
	l.levels = append(l.levels, level)
	l.mx.Unlock()
	return l.Sim.Out(level)
}

func TestADXL38X_IdentifyDeselectsFirst(t *testing.T) {
	sim := NewSimulatedADXL38X()
	cs := &levelRecorder{Sim: sim}
	dev := NewADXL38X(sim, cs)
	id, err := dev.Identify(context.Background())
	require.NoError(t, err)
	assert.True(t, id.Matches())
	require.NotEmpty(t, cs.levels)
	assert.Equal(t, gpio.High, cs.levels[0], "chip select starts idle")
	assert.Len(t, cs.levels, 7)
	assert.False(t, sim.Selected())
}

func TestADXL38X_ApplyStandbyLogs(t *testing.T) {
	var buf bytes.Buffer
	def := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(def) })

	dev, sim, _ := newTestDevice(spisim.WithRegister(regOpMode, 0x0C))
	require.NoError(t, dev.Apply(context.Background(), Settings{Range: Range8G, Mode: ModeStandby, Channels: ChannelXYZ}))
	assert.Equal(t, byte(0x40), sim.Get(regOpMode))
	assert.Contains(t, buf.String(), "adxl38x configured")
	assert.Contains(t, buf.String(), "mode=standby")
}

func TestAccel_LinksNoTransport(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotEqual(t, "github.com/mklimuk/adxl38x/spi", path, "%s imports the transports", name)
			assert.False(t, strings.HasPrefix(path, "gobot.io/"), "%s imports %s", name, path)
			assert.False(t, strings.HasPrefix(path, "periph.io/x/host"), "%s imports %s", name, path)
		}
	}
}
