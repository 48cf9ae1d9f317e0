// Package spisim provides an in-memory SPI register device for tests and dry runs.
package spisim

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"

	"github.com/mklimuk/adxl38x"
)

var (
	ErrNotSelected     = fmt.Errorf("chip select is not asserted")
	ErrTransactionOpen = fmt.Errorf("transaction already in progress")
	ErrNoTransaction   = fmt.Errorf("no transaction in progress")
)

var (
	_ adxl38x.SPIBus     = &Sim{}
	_ adxl38x.ChipSelect = &Sim{}
)

const simRegisters = 128

// WriteHook is called after a simulated register write has been stored.
// regs is the live register file.
type WriteHook func(addr, value byte, regs []byte)

// Frame is a single transfer seen by the simulator.
type Frame struct {
	Command byte
	Addr    byte
	Read    bool
	Out     []byte
	In      []byte
}

// Sim is an in-memory register device speaking the (addr << 1) | rw command framing.
// Burst reads auto-increment the address unless the register was declared as a
// stream, in which case every dummy byte pops the next queued value.
//
// Sim implements both SPIBus and ChipSelect so a single value can back a driver:
//
//	sim := spisim.New()
//	dev := accel.NewADXL38X(sim, sim)
type Sim struct {
	mx       sync.Mutex
	regs     [simRegisters]byte
	streams  map[byte][]byte
	hooks    []WriteHook
	reads    map[byte]int
	writes   map[byte]int
	frames   []Frame
	settings []adxl38x.SPISettings
	selected bool
	open     bool
	selects  int
	failNext error
}

type Opt func(*Sim)

func WithRegister(addr, value byte) Opt {
	return func(s *Sim) {
		s.regs[addr&0x7F] = value
	}
}

// WithStream declares addr as a FIFO-style register that does not auto-increment.
func WithStream(addr byte) Opt {
	return func(s *Sim) {
		if _, ok := s.streams[addr]; !ok {
			s.streams[addr] = nil
		}
	}
}

func WithWriteHook(hook WriteHook) Opt {
	return func(s *Sim) {
		s.hooks = append(s.hooks, hook)
	}
}

func New(opts ...Opt) *Sim {
	s := &Sim{
		streams: make(map[byte][]byte),
		reads:   make(map[byte]int),
		writes:  make(map[byte]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sim) Begin(ctx context.Context, settings adxl38x.SPISettings) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.open {
		return ErrTransactionOpen
	}
	s.open = true
	s.settings = append(s.settings, settings)
	return nil
}

func (s *Sim) End(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.open {
		return ErrNoTransaction
	}
	s.open = false
	return nil
}

func (s *Sim) Out(l gpio.Level) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if l == gpio.Low && !s.selected {
		s.selects++
	}
	s.selected = l == gpio.Low
	return nil
}

func (s *Sim) Tx(ctx context.Context, w, r []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	if !s.open {
		return ErrNoTransaction
	}
	if !s.selected {
		return ErrNotSelected
	}
	if len(w) == 0 {
		return nil
	}
	if r != nil && len(r) < len(w) {
		return fmt.Errorf("receive buffer too short: %d < %d", len(r), len(w))
	}
	in := make([]byte, len(w))
	addr := w[0] >> 1
	read := w[0]&0x01 == 0x01
	if read {
		s.reads[addr]++
		_, stream := s.streams[addr]
		for i := 1; i < len(w); i++ {
			if stream {
				in[i] = s.pop(addr)
				continue
			}
			in[i] = s.regs[(int(addr)+i-1)%simRegisters]
		}
	} else {
		for i, v := range w[1:] {
			a := byte((int(addr) + i) % simRegisters)
			s.regs[a] = v
			s.writes[a]++
			for _, hook := range s.hooks {
				hook(a, v, s.regs[:])
			}
		}
	}
	if r != nil {
		copy(r, in)
	}
	s.frames = append(s.frames, Frame{
		Command: w[0],
		Addr:    addr,
		Read:    read,
		Out:     append([]byte(nil), w...),
		In:      in,
	})
	return nil
}

func (s *Sim) pop(addr byte) byte {
	q := s.streams[addr]
	if len(q) == 0 {
		return 0x00
	}
	s.streams[addr] = q[1:]
	return q[0]
}

// Set stores value without counting it as a bus write.
func (s *Sim) Set(addr, value byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.regs[addr&0x7F] = value
}

func (s *Sim) Get(addr byte) byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.regs[addr&0x7F]
}

// Feed queues data on a stream register, declaring it as a stream if needed.
func (s *Sim) Feed(addr byte, data ...byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.streams[addr] = append(s.streams[addr], data...)
}

// FailNext makes the next Tx return err without touching registers.
func (s *Sim) FailNext(err error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.failNext = err
}

// Reads returns how many read transactions started at addr.
func (s *Sim) Reads(addr byte) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.reads[addr]
}

// Writes returns how many bytes were written to addr.
func (s *Sim) Writes(addr byte) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.writes[addr]
}

// TotalWrites returns the number of bytes written to any register.
func (s *Sim) TotalWrites() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	n := 0
	for _, c := range s.writes {
		n += c
	}
	return n
}

func (s *Sim) Frames() []Frame {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]Frame(nil), s.frames...)
}

func (s *Sim) Settings() []adxl38x.SPISettings {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]adxl38x.SPISettings(nil), s.settings...)
}

// Selected reports whether chip select is currently asserted.
func (s *Sim) Selected() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.selected
}

// Selects returns how many times chip select went from idle to asserted.
func (s *Sim) Selects() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.selects
}

// Open reports whether a transaction has begun and not ended.
func (s *Sim) Open() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.open
}

// ResetCounters clears read/write counters and the frame log.
func (s *Sim) ResetCounters() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.reads = make(map[byte]int)
	s.writes = make(map[byte]int)
	s.frames = nil
	s.settings = nil
	s.selects = 0
}
