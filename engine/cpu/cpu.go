package cpu

import (
	"io"
	"log/slog"

	"github.com/kallendev/gbcore/engine/addr"
	"github.com/kallendev/gbcore/engine/snapshot/binstate"
)

// Flag is one of the 4 possible flags used in the flag register (high nibble of F)
type Flag uint8

const (
	zeroFlag      Flag = 0x80
	subFlag       Flag = 0x40
	halfCarryFlag Flag = 0x20
	carryFlag     Flag = 0x10
)

const (
	vblankVector uint16 = 0x40
	statVector   uint16 = 0x48
	timerVector  uint16 = 0x50
	serialVector uint16 = 0x58
	joypadVector uint16 = 0x60
)

// Memory is the byte-addressable side of the bus the CPU reads and writes through.
type Memory interface {
	Read(address uint16) byte
	Write(address uint16, value byte)
}

// Bus is the memory plus a Tick method for advancing peripherals by a cycle
// count. Opcodes do not call Tick; peripherals are advanced once per
// instruction by the caller of Step, using the cycle count Step returns.
type Bus interface {
	Memory
	Tick(cycles int)
}

// SpeedSwitcher is implemented by buses that support the CGB KEY1
// double-speed switch. STOP type-asserts for it so DMG-only buses need not
// implement CGB behavior at all.
type SpeedSwitcher interface {
	// PerformSpeedSwitch executes the switch if armed, returning the
	// resulting double-speed state and whether a switch occurred.
	PerformSpeedSwitch() (doubleSpeed bool, switched bool)
}

// CPU is the SM83 register file and execution state.
type CPU struct {
	memory Memory
	bus    Bus

	a, b, c, d, e, f, h, l uint8
	sp, pc                 uint16

	cycles uint64

	currentOpcode uint16

	interruptsEnabled bool
	eiPending         bool
	halted            bool
	haltBug           bool
	stopped           bool

	doubleSpeed bool

	// watchdogPC/watchdogRun track consecutive Step calls that start at the
	// same PC, a signature of a stuck NOP/JR-to-self loop. watchdogWarned
	// suppresses repeat logging once a streak has already been reported.
	watchdogPC     uint16
	watchdogRun    uint32
	watchdogWarned bool
}

// watchdogThreshold is how many consecutive instructions fetched from the
// same PC trigger a stuck-loop warning.
const watchdogThreshold = 1_000_000

// New returns a CPU wired to the given bus, with registers at their
// documented post-boot-ROM values.
func New(bus Bus) *CPU {
	return &CPU{
		memory: bus,
		bus:    bus,
		a:      0x01,
		f:      0xB0,
		b:      0x00,
		c:      0x13,
		d:      0x00,
		e:      0xD8,
		h:      0x01,
		l:      0x4D,
		sp:     0xFFFE,
		pc:     0x100,
	}
}

func (c *CPU) getBC() uint16 { return uint16(c.b)<<8 | uint16(c.c) }
func (c *CPU) getDE() uint16 { return uint16(c.d)<<8 | uint16(c.e) }
func (c *CPU) getHL() uint16 { return uint16(c.h)<<8 | uint16(c.l) }
func (c *CPU) getAF() uint16 { return uint16(c.a)<<8 | uint16(c.f) }

func (c *CPU) setBC(v uint16) { c.b = uint8(v >> 8); c.c = uint8(v) }
func (c *CPU) setDE(v uint16) { c.d = uint8(v >> 8); c.e = uint8(v) }
func (c *CPU) setHL(v uint16) { c.h = uint8(v >> 8); c.l = uint8(v) }
func (c *CPU) setAF(v uint16) { c.a = uint8(v >> 8); c.f = uint8(v) & 0xF0 }

func (c *CPU) setFlag(flag Flag) {
	c.f |= uint8(flag)
}

func (c *CPU) resetFlag(flag Flag) {
	c.f &^= uint8(flag)
}

func (c *CPU) setFlagToCondition(flag Flag, condition bool) {
	if condition {
		c.setFlag(flag)
	} else {
		c.resetFlag(flag)
	}
}

func (c *CPU) isSetFlag(flag Flag) bool {
	return c.f&uint8(flag) != 0
}

func (c *CPU) flagToBit(flag Flag) uint8 {
	if c.isSetFlag(flag) {
		return 1
	}
	return 0
}

// readImmediate fetches the byte at PC and advances PC past it.
func (c *CPU) readImmediate() uint8 {
	value := c.memory.Read(c.pc)
	c.pc++
	return value
}

// readImmediateWord fetches the little-endian word at PC and advances PC past it.
func (c *CPU) readImmediateWord() uint16 {
	low := c.readImmediate()
	high := c.readImmediate()
	return uint16(high)<<8 | uint16(low)
}

// peekImmediate and peekImmediateWord back jr/jp: despite the name they still
// consume the operand (PC must land just past it before the offset/target is
// applied), they're just never destined for a register.
func (c *CPU) peekImmediate() uint8      { return c.readImmediate() }
func (c *CPU) peekImmediateWord() uint16 { return c.readImmediateWord() }

// Decode fetches the opcode byte (and CB suffix, if any) at PC, advances PC
// past it, and returns the handler for it.
func Decode(c *CPU) Opcode {
	opcode := uint16(c.bus.Read(c.pc))
	c.pc++

	if opcode == 0xCB {
		suffix := c.bus.Read(c.pc)
		c.pc++
		opcode = 0xCB00 | uint16(suffix)
	}

	c.currentOpcode = opcode
	return decode(opcode)
}

// Step executes a single instruction, or services a pending interrupt while
// halted, and returns the number of T-states consumed.
func (c *CPU) Step() int {
	if c.stopped {
		return 4
	}

	startCycles := c.cycles

	pending := c.handleInterrupts()
	if c.halted && pending {
		c.halted = false
		if !c.interruptsEnabled {
			c.haltBug = true
		}
	}
	if c.halted {
		return 4
	}

	if c.eiPending {
		c.eiPending = false
		c.interruptsEnabled = true
	}

	startPC := c.pc
	c.checkWatchdog(startPC)
	op := Decode(c)
	cycles := op(c)

	if c.haltBug {
		// The byte after HALT is fetched twice: PC didn't advance past the
		// opcode that triggered the bug, only past what Decode/op consumed.
		c.pc = startPC
		c.haltBug = false
	}

	c.cycles += uint64(cycles)

	// handleInterrupts may have already folded a 20 T-state dispatch cost
	// into c.cycles above; report the full per-call delta so callers (the
	// bus tick, frame-boundary accumulator) never lose those T-states.
	return int(c.cycles - startCycles)
}

// checkWatchdog logs once if execution appears stuck fetching from the same
// PC for watchdogThreshold consecutive instructions in a row (a JR-to-self
// or NOP-sled pattern indicative of a crashed ROM or a core bug), rather
// than silently spinning forever with no diagnostic.
func (c *CPU) checkWatchdog(pc uint16) {
	if pc != c.watchdogPC {
		c.watchdogPC = pc
		c.watchdogRun = 1
		c.watchdogWarned = false
		return
	}

	c.watchdogRun++
	if c.watchdogRun >= watchdogThreshold && !c.watchdogWarned {
		c.watchdogWarned = true
		slog.Warn("cpu: possible stuck loop", "pc", pc, "consecutive_instructions", c.watchdogRun)
	}
}

// handleInterrupts checks IE & IF for a pending interrupt. It always reports
// whether one is pending (used to wake HALT even with IME=0), but only
// dispatches (pushes PC, jumps to the vector, clears IF) when
// interruptsEnabled is true.
func (c *CPU) handleInterrupts() bool {
	ie := c.memory.Read(addr.IE)
	iflag := c.memory.Read(addr.IF)
	pending := ie & iflag & 0x1F

	if pending == 0 {
		return false
	}

	if !c.interruptsEnabled {
		return true
	}

	var vector uint16
	var bitToClear uint8

	switch {
	case pending&uint8(addr.VBlankInterrupt) != 0:
		vector, bitToClear = vblankVector, uint8(addr.VBlankInterrupt)
	case pending&uint8(addr.LCDSTATInterrupt) != 0:
		vector, bitToClear = statVector, uint8(addr.LCDSTATInterrupt)
	case pending&uint8(addr.TimerInterrupt) != 0:
		vector, bitToClear = timerVector, uint8(addr.TimerInterrupt)
	case pending&uint8(addr.SerialInterrupt) != 0:
		vector, bitToClear = serialVector, uint8(addr.SerialInterrupt)
	case pending&uint8(addr.JoypadInterrupt) != 0:
		vector, bitToClear = joypadVector, uint8(addr.JoypadInterrupt)
	default:
		return true
	}

	c.interruptsEnabled = false
	c.memory.Write(addr.IF, iflag&^bitToClear)
	c.pushStack(c.pc)
	c.pc = vector
	c.cycles += 20

	return true
}

// SetDoubleSpeed switches between the DMG (4 T-states/M-cycle) and CGB
// double-speed (2 T-states/M-cycle) clock domains.
func (c *CPU) SetDoubleSpeed(on bool) { c.doubleSpeed = on }

// DoubleSpeed reports whether the CPU is currently running in CGB double speed.
func (c *CPU) DoubleSpeed() bool { return c.doubleSpeed }

// PC returns the current program counter, for debuggers and snapshots.
func (c *CPU) PC() uint16 { return c.pc }

// SP returns the current stack pointer, for debuggers and snapshots.
func (c *CPU) SP() uint16 { return c.sp }

// Halted reports whether the CPU is waiting in HALT.
func (c *CPU) Halted() bool { return c.halted }

// Cycles returns the running T-state counter since construction.
func (c *CPU) Cycles() uint64 { return c.cycles }

// The Get* accessors below expose individual registers for debuggers and
// terminal/SDL frontends; core opcode logic never needs them.

func (c *CPU) GetA() uint8 { return c.a }
func (c *CPU) GetF() uint8 { return c.f }
func (c *CPU) GetB() uint8 { return c.b }
func (c *CPU) GetC() uint8 { return c.c }
func (c *CPU) GetD() uint8 { return c.d }
func (c *CPU) GetE() uint8 { return c.e }
func (c *CPU) GetH() uint8 { return c.h }
func (c *CPU) GetL() uint8 { return c.l }
func (c *CPU) GetSP() uint16 { return c.sp }
func (c *CPU) GetPC() uint16 { return c.pc }

// GetFlagString renders the Z/N/H/C flags as set/cleared letters, e.g. "Z-HC".
func (c *CPU) GetFlagString() string {
	flags := [4]byte{'-', '-', '-', '-'}
	if c.isSetFlag(zeroFlag) {
		flags[0] = 'Z'
	}
	if c.isSetFlag(subFlag) {
		flags[1] = 'N'
	}
	if c.isSetFlag(halfCarryFlag) {
		flags[2] = 'H'
	}
	if c.isSetFlag(carryFlag) {
		flags[3] = 'C'
	}
	return string(flags[:])
}

// SaveState serializes the register file and execution-state flags. The
// bus/memory back-references are not part of the state; the caller
// reconnects them (CPU.New) before restoring.
func (c *CPU) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Value(c.a)
	bw.Value(c.b)
	bw.Value(c.c)
	bw.Value(c.d)
	bw.Value(c.e)
	bw.Value(c.f)
	bw.Value(c.h)
	bw.Value(c.l)
	bw.Value(c.sp)
	bw.Value(c.pc)
	bw.Value(c.cycles)
	bw.Value(c.currentOpcode)
	bw.Bool(c.interruptsEnabled)
	bw.Bool(c.eiPending)
	bw.Bool(c.halted)
	bw.Bool(c.haltBug)
	bw.Bool(c.stopped)
	bw.Bool(c.doubleSpeed)
	return bw.Err()
}

// LoadState restores the register file and execution-state flags saved by
// SaveState.
func (c *CPU) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Value(&c.a)
	br.Value(&c.b)
	br.Value(&c.c)
	br.Value(&c.d)
	br.Value(&c.e)
	br.Value(&c.f)
	br.Value(&c.h)
	br.Value(&c.l)
	br.Value(&c.sp)
	br.Value(&c.pc)
	br.Value(&c.cycles)
	br.Value(&c.currentOpcode)
	c.interruptsEnabled = br.Bool()
	c.eiPending = br.Bool()
	c.halted = br.Bool()
	c.haltBug = br.Bool()
	c.stopped = br.Bool()
	c.doubleSpeed = br.Bool()
	return br.Err()
}
