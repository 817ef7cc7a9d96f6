package engine

import (
	"github.com/kallendev/gbcore/engine/addr"
	"github.com/kallendev/gbcore/engine/cpu"
	"github.com/kallendev/gbcore/engine/memory"
	"github.com/kallendev/gbcore/engine/video"
)

// BusInterface defines the interface for component communication
type BusInterface interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
	RequestInterrupt(interrupt addr.Interrupt)
}

// Bus provides centralized component communication
type Bus struct {
	CPU *cpu.CPU
	MMU *memory.MMU
	GPU *video.GPU
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Read(address uint16) byte {
	return b.MMU.Read(address)
}

func (b *Bus) Write(address uint16, value byte) {
	b.MMU.Write(address, value)
}

// Tick advances the MMU (timer/serial/DMA) by the given number of cycles.
// Opcodes do not call it; TickInstruction ticks the MMU once per instruction.
func (b *Bus) Tick(cycles int) {
	b.MMU.Tick(cycles)
}

// TickInstruction executes one CPU instruction and ticks all components.
// Returns the number of T-states the CPU consumed. In CGB double-speed mode
// the CPU clock runs twice as fast as everything else on the bus, so the
// other peripherals are ticked at half the reported cycle count.
func (b *Bus) TickInstruction() int {
	cycles := b.CPU.Step()

	peripheralCycles := cycles
	if b.CPU.DoubleSpeed() {
		peripheralCycles = cycles / 2
	}

	b.MMU.Tick(peripheralCycles)
	b.GPU.Tick(peripheralCycles)
	b.MMU.APU.Tick(peripheralCycles)

	return cycles
}

// PerformSpeedSwitch executes the CGB STOP-triggered double-speed switch, if
// armed by a prior KEY1 bit-0 write. Returns the resulting double-speed state
// and whether a switch actually occurred.
func (b *Bus) PerformSpeedSwitch() (bool, bool) {
	return b.MMU.PerformSpeedSwitch()
}

func (b *Bus) RequestInterrupt(interrupt addr.Interrupt) {
	b.MMU.RequestInterrupt(interrupt)
}

func (b *Bus) ReadBit(index uint8, address uint16) bool {
	return b.MMU.ReadBit(index, address)
}
