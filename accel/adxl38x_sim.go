package accel

import (
	"github.com/mklimuk/adxl38x/spi/spisim"
)

// NewSimulatedADXL38X returns an in-memory ADXL38x register file that answers
// with the reset identity, streams FIFO_DATA and restores reset values when the
// reset code is written. It serves as both bus and chip select:
//
//	sim := NewSimulatedADXL38X()
//	dev := NewADXL38X(sim, sim, WithSleep(noSleep))
//	sim.Feed(0x1D, samples...)
func NewSimulatedADXL38X(opts ...spisim.Opt) *spisim.Sim {
	base := []spisim.Opt{
		spisim.WithRegister(regDevIDAD, resetDevIDAD),
		spisim.WithRegister(regDevIDMST, resetDevIDMST),
		spisim.WithRegister(regPartID, resetPartID),
		spisim.WithStream(regFIFOData),
		spisim.WithWriteHook(simulateReset),
	}
	return spisim.New(append(base, opts...)...)
}

func simulateReset(addr, value byte, regs []byte) {
	if addr != regReset || value != resetCode {
		return
	}
	clear(regs)
	regs[regDevIDAD] = resetDevIDAD
	regs[regDevIDMST] = resetDevIDMST
	regs[regPartID] = resetPartID
}
