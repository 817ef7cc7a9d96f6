package memory

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/kallendev/gbcore/engine/addr"
	"github.com/kallendev/gbcore/engine/audio"
	"github.com/kallendev/gbcore/engine/bit"
	"github.com/kallendev/gbcore/engine/serial"
	"github.com/kallendev/gbcore/engine/snapshot/binstate"
)

type memRegion uint8

const (
	regionROM memRegion = iota
	regionVRAM
	regionExtRAM
	regionWRAM
	regionEcho
	regionOAM
	regionUnused
	regionIO
	regionHRAM
)

// SerialPort is the minimal interface for a serial device connected to SB/SC.
// Implementations MUST only accept reads/writes to addr.SB and addr.SC.
type SerialPort interface {
	Write(address uint16, value byte)
	Read(address uint16) byte
	Tick(cycles int)
	Reset()
}

// MMU allows access to all memory mapped I/O and data/registers
type MMU struct {
	cart      *Cartridge
	mbc       MBC
	memory    []byte
	APU       *audio.APU
	regionMap [256]memRegion

	joypadButtons uint8 // Actual state of buttons A/B/Start/Select, mapped to low bits of P1
	joypadDpad    uint8 // Actual state of d-pad directions, mapped to low bits of P1

	serial SerialPort
	timer  Timer
	dma    DMAEngine

	// CGB state. vram[0] aliases the DMG-era flat memory array at
	// 0x8000-0x9FFF; vram[1] only exists in CGB mode. wramBanks[0] aliases
	// the flat array at 0xC000-0xCFFF (fixed bank); wramBanks[1..7] back
	// the switchable 0xD000-0xDFFF window.
	cgbMode     bool
	vram        [2][]byte
	vramBank    uint8
	wramBanks   [8][]byte
	wramBank    uint8
	doubleSpeed bool
	keyArmed    bool
	bgPalette   CGBPalette
	objPalette  CGBPalette
	opri        uint8
	hdma        HDMAEngine

	oamBlocked  bool
	vramBlocked bool
}

// New creates a new memory unity with default data, i.e. nothing cartridge loaded.
// Equivalent to turning on a Gameboy without a cartridge in.
func New() *MMU {
	mmu := &MMU{
		memory:        make([]byte, 0x10000),
		cart:          NewCartridge(),
		APU:           audio.New(),
		joypadButtons: 0x0F,
		joypadDpad:    0x0F,
		wramBank:      1,
	}
	mmu.vram[0] = make([]byte, 0x2000)
	mmu.wramBanks[0] = make([]byte, 0x1000)
	mmu.wramBanks[1] = make([]byte, 0x1000)
	mmu.serial = serial.NewLogSink(func() { mmu.RequestInterrupt(addr.SerialInterrupt) })
	mmu.timer.TimerInterruptHandler = func() { mmu.RequestInterrupt(addr.TimerInterrupt) }
	initRegionMap(mmu)
	return mmu
}

// Tick advances any i/o that needs it, if any.
func (m *MMU) Tick(cycles int) {
	m.timer.Tick(cycles)
	if m.serial != nil {
		m.serial.Tick(cycles)
	}
	m.dma.Tick(cycles, m.unsafeRead, m.unsafeWrite)
}

// DMAActive reports whether an OAM DMA transfer is in progress, for
// debuggers and the bus-gating invariants in §8.
func (m *MMU) DMAActive() bool { return m.dma.Active() }

// TickDMA advances only the OAM DMA engine, for callers (like the
// event-driven emulator) that drive DIV/TIMA through their own scheduler
// instead of MMU.Tick and would otherwise leave a started DMA transfer
// stuck mid-copy forever.
func (m *MMU) TickDMA(cycles int) {
	m.dma.Tick(cycles, m.unsafeRead, m.unsafeWrite)
}

// SetTimerSeed initializes the internal timer divider seed and DIV register.
func (m *MMU) SetTimerSeed(seed uint16) {
	m.timer.SetSeed(seed)
}

// NewWithCartridge creates a new memory unit with the provided cartridge data loaded.
// Equivalent to turning on a Gameboy with a cartridge in.
func NewWithCartridge(cart *Cartridge) *MMU {
	mmu := New()
	mmu.cart = cart

	switch cart.mbcType {
	case NoMBCType:
		mmu.mbc = NewNoMBC(cart.data)
	case MBC1Type, MBC1MultiType:
		mmu.mbc = NewMBC1(cart.data, cart.hasBattery, cart.ramBankCount)
	case MBC2Type:
		mmu.mbc = NewMBC2(cart.data)
	case MBC3Type:
		mmu.mbc = NewMBC3(cart.data, cart.hasRTC, cart.ramBankCount)
	case MBC5Type:
		mmu.mbc = NewMBC5(cart.data, cart.hasRumble, cart.ramBankCount)
	case MBCUnknownType:
		panic("unsupported MBC type: unknown")
	default:
		panic(fmt.Sprintf("unsupported MBC type: %d", cart.mbcType))
	}

	mmu.cgbMode = cart.IsCGB()
	if mmu.cgbMode {
		mmu.vram[1] = make([]byte, 0x2000)
		for i := 2; i < 8; i++ {
			mmu.wramBanks[i] = make([]byte, 0x1000)
		}
	}

	return mmu
}

// IsCGB reports whether the loaded cartridge requested CGB hardware mode.
func (m *MMU) IsCGB() bool { return m.cgbMode }

// PerformSpeedSwitch executes the CGB double-speed switch armed by a prior
// KEY1 bit-0 write, as triggered by the CPU executing STOP. Returns the
// resulting double-speed state and whether a switch actually happened.
func (m *MMU) PerformSpeedSwitch() (bool, bool) {
	if !m.cgbMode || !m.keyArmed {
		return m.doubleSpeed, false
	}
	m.doubleSpeed = !m.doubleSpeed
	m.keyArmed = false
	return m.doubleSpeed, true
}

func initRegionMap(m *MMU) {
	// ROM: 0x0000-0x7FFF
	for i := 0x00; i <= 0x7F; i++ {
		m.regionMap[i] = regionROM
	}
	// VRAM: 0x8000-0x9FFF
	for i := 0x80; i <= 0x9F; i++ {
		m.regionMap[i] = regionVRAM
	}
	// External RAM: 0xA000-0xBFFF
	for i := 0xA0; i <= 0xBF; i++ {
		m.regionMap[i] = regionExtRAM
	}
	// Work RAM: 0xC000-0xDFFF
	for i := 0xC0; i <= 0xDF; i++ {
		m.regionMap[i] = regionWRAM
	}
	// Echo RAM: 0xE000-0xFDFF
	for i := 0xE0; i <= 0xFD; i++ {
		m.regionMap[i] = regionEcho
	}
	// OAM: 0xFE00-0xFE9F, Unused: 0xFEA0-0xFEFF
	m.regionMap[0xFE] = regionOAM
	// IO + HRAM: 0xFF00-0xFFFF
	m.regionMap[0xFF] = regionIO
}

// RequestInterrupt sets the interrupt flag (IF register) of the chosen interrupt to 1.
func (m *MMU) RequestInterrupt(interrupt addr.Interrupt) {
	interruptFlags := m.Read(addr.IF)

	var bitPos uint8
	switch interrupt {
	case addr.VBlankInterrupt:
		bitPos = 0
	case addr.LCDSTATInterrupt:
		bitPos = 1
	case addr.TimerInterrupt:
		bitPos = 2
	case addr.SerialInterrupt:
		bitPos = 3
	case addr.JoypadInterrupt:
		bitPos = 4
	default:
		panic(fmt.Sprintf("Unknown interrupt: 0x%02X", uint8(interrupt)))
	}

	newFlags := bit.Set(bitPos, interruptFlags)

	m.Write(addr.IF, newFlags)
}

func (m *MMU) ReadBit(index uint8, address uint16) bool {
	return bit.IsSet(index, m.Read(address))
}

func (m *MMU) SetBit(index uint8, address uint16, set bool) {
	value := m.Read(address)
	if set {
		value = bit.Set(index, value)
	} else {
		value = bit.Reset(index, value)
	}
	m.Write(address, value)
}

// effectiveWRAMBank returns which physical bank backs the switchable
// 0xD000-0xDFFF window; writes of 0 to SVBK select bank 1, same as DMG.
func (m *MMU) effectiveWRAMBank() uint8 {
	if m.wramBank == 0 {
		return 1
	}
	return m.wramBank
}

func (m *MMU) readWRAM(address uint16) byte {
	if address <= 0xCFFF {
		return m.wramBanks[0][address-0xC000]
	}
	return m.wramBanks[m.effectiveWRAMBank()][address-0xD000]
}

func (m *MMU) writeWRAM(address uint16, value byte) {
	if address <= 0xCFFF {
		m.wramBanks[0][address-0xC000] = value
		return
	}
	m.wramBanks[m.effectiveWRAMBank()][address-0xD000] = value
}

func (m *MMU) readVRAM(address uint16) byte {
	return m.vram[m.vramBank][address-0x8000]
}

func (m *MMU) writeVRAM(address uint16, value byte) {
	m.vram[m.vramBank][address-0x8000] = value
}

// ReadVRAMBank reads VRAM bank 0 or 1 directly, bypassing the CPU-visible
// VBK selection. The PPU uses this to fetch CGB tile attributes (stored in
// bank 1 at the same tilemap addresses as the tile indices in bank 0)
// regardless of which bank the CPU currently has switched in.
func (m *MMU) ReadVRAMBank(bank uint8, address uint16) byte {
	if int(bank) >= len(m.vram) || m.vram[bank] == nil {
		return 0xFF
	}
	return m.vram[bank][address-0x8000]
}

// BGPaletteColor15/OBJPaletteColor15 expose the CGB palette RAM to the PPU
// for per-pixel color resolution.
func (m *MMU) BGPaletteColor15(palette, colorIndex uint8) uint16 {
	return m.bgPalette.Color15(palette, colorIndex)
}

func (m *MMU) OBJPaletteColor15(palette, colorIndex uint8) uint16 {
	return m.objPalette.Color15(palette, colorIndex)
}

// OPRI reports the CGB object-priority mode: 0 selects OAM-order priority,
// 1 selects DMG-compatible X-then-OAM-order priority.
func (m *MMU) OPRI() uint8 { return m.opri }

// SetOAMBlocked/SetVRAMBlocked are called by the PPU as its mode changes, so
// the bus can gate CPU reads of OAM/VRAM per spec: OAM during modes 2/3,
// VRAM during mode 3.
func (m *MMU) SetOAMBlocked(blocked bool)  { m.oamBlocked = blocked }
func (m *MMU) SetVRAMBlocked(blocked bool) { m.vramBlocked = blocked }

func (m *MMU) Read(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Reading from ROM/external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address))
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		if m.dma.Active() {
			return 0xFF
		}
		if m.vramBlocked {
			return 0xFF
		}
		return m.readVRAM(address)
	case regionWRAM:
		if m.dma.Active() {
			return 0xFF
		}
		return m.readWRAM(address)
	case regionEcho:
		if m.dma.Active() {
			return 0xFF
		}
		return m.readWRAM(address - 0x2000)
	case regionOAM:
		if address <= 0xFE9F {
			if m.dma.Active() || m.oamBlocked {
				return 0xFF
			}
			return m.memory[address]
		}
		// Unused area 0xFEA0-0xFEFF; PPU mode governs visibility the same as OAM.
		if m.oamBlocked {
			return 0xFF
		}
		return m.memory[address]
	case regionIO:
		if m.dma.Active() && address != addr.DMA && address < 0xFF80 {
			return 0xFF
		}
		if address == addr.SB || address == addr.SC {
			return m.serial.Read(address)
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			return m.timer.Read(address)
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			return m.APU.ReadRegister(address)
		}
		// Just in case, we always read the upper 3 bits of IF as 1.
		// They're not used, but have caused me some headaches when checking for
		// when the halt bug triggers (IF != 0).
		if address == addr.IF {
			return m.memory[address] | 0xE0
		}
		if m.cgbMode {
			switch address {
			case addr.KEY1:
				var v byte
				if m.doubleSpeed {
					v |= 0x80
				}
				if m.keyArmed {
					v |= 0x01
				}
				return v | 0x7E
			case addr.VBK:
				return m.vramBank | 0xFE
			case addr.SVBK:
				return m.wramBank | 0xF8
			case addr.BCPS:
				return m.bgPalette.ReadIndex()
			case addr.BCPD:
				return m.bgPalette.ReadData()
			case addr.OCPS:
				return m.objPalette.ReadIndex()
			case addr.OCPD:
				return m.objPalette.ReadData()
			case addr.OPRI:
				return m.opri | 0xFE
			case addr.HDMA5:
				return m.hdma.ReadControl()
			}
		}
		if address >= 0xFF80 {
			// HRAM
			return m.memory[address]
		}
		// Other IO registers
		return m.memory[address]
	default:
		panic(fmt.Sprintf("Attempted read at unmapped address: 0x%X", address))
	}
}

func (m *MMU) Write(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionROM:
		if m.mbc == nil {
			slog.Warn("Writing to ROM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionVRAM:
		if m.dma.Active() || m.vramBlocked {
			return
		}
		m.writeVRAM(address, value)
	case regionExtRAM:
		if m.mbc == nil {
			slog.Warn("Writing to external RAM with no cartridge", "addr", fmt.Sprintf("0x%04X", address), "value", fmt.Sprintf("0x%02X", value))
			return
		}
		m.mbc.Write(address, value)
	case regionWRAM:
		if m.dma.Active() {
			return
		}
		m.writeWRAM(address, value)
	case regionEcho:
		if m.dma.Active() {
			return
		}
		m.writeWRAM(address-0x2000, value)
	case regionOAM:
		if m.dma.Active() {
			return
		}
		if address <= 0xFE9F {
			if m.oamBlocked {
				// DMG OAM-bug approximation: a blocked write during modes 2/3
				// (with DMA inactive) still lands, and mutates its even-aligned
				// neighbour too.
				m.memory[address] = value
				neighbour := address &^ 1
				if neighbour != address {
					m.memory[neighbour] = value
				} else {
					m.memory[address+1] = value
				}
				return
			}
			m.memory[address] = value
		} else {
			// Unused area 0xFEA0-0xFEFF
			m.memory[address] = value
		}
	case regionIO:
		if m.dma.Active() && address != addr.DMA && address < 0xFF80 {
			return
		}
		if address == addr.P1 {
			m.writeJoypad(value)
			return
		}
		if address == addr.SB || address == addr.SC {
			m.serial.Write(address, value)
			return
		}
		if address == addr.DIV || address == addr.TIMA || address == addr.TMA || address == addr.TAC {
			m.timer.Write(address, value)
			return
		}
		if address >= 0xFF10 && address <= 0xFF3F {
			m.APU.WriteRegister(address, value)
			return
		}
		if address == addr.IF {
			// This goddamn register has its upper 3 bits always set as 1...
			// Beware if you're trying to match halt bug behavior.
			m.memory[address] = value | 0xE0
			return
		}
		if address == addr.DMA {
			m.dma.Start(value)
			m.memory[address] = value
			return
		}
		if m.cgbMode {
			switch address {
			case addr.KEY1:
				m.keyArmed = value&0x01 != 0
				return
			case addr.VBK:
				m.vramBank = value & 0x01
				return
			case addr.SVBK:
				m.wramBank = value & 0x07
				return
			case addr.BCPS:
				m.bgPalette.WriteIndex(value)
				return
			case addr.BCPD:
				m.bgPalette.WriteData(value)
				return
			case addr.OCPS:
				m.objPalette.WriteIndex(value)
				return
			case addr.OCPD:
				m.objPalette.WriteData(value)
				return
			case addr.OPRI:
				m.opri = value & 0x01
				return
			case addr.HDMA1:
				m.hdma.WriteSrcHigh(value)
				return
			case addr.HDMA2:
				m.hdma.WriteSrcLow(value)
				return
			case addr.HDMA3:
				m.hdma.WriteDstHigh(value)
				return
			case addr.HDMA4:
				m.hdma.WriteDstLow(value)
				return
			case addr.HDMA5:
				m.hdma.WriteControl(value)
				if m.hdma.Active() {
					m.runGeneralHDMAIfArmed()
				}
				return
			}
		}
		if address >= 0xFF80 {
			// HRAM
			m.memory[address] = value
			return
		}
		// Other IO registers
		m.memory[address] = value
	default:
		panic(fmt.Sprintf("Attempted write at unmapped address: 0x%X", address))
	}
}

// runGeneralHDMAIfArmed drains a general-purpose HDMA transfer immediately;
// real hardware halts the CPU for its whole duration.
func (m *MMU) runGeneralHDMAIfArmed() {
	m.hdma.RunGeneral(m.unsafeRead, m.unsafeWrite)
}

// unsafeRead/unsafeWrite bypass DMA/PPU-mode gating, used by the DMA and
// HDMA engines which read/write the bus on the peripheral's own behalf.
func (m *MMU) unsafeRead(address uint16) byte {
	switch m.regionMap[address>>8] {
	case regionROM, regionExtRAM:
		if m.mbc == nil {
			return 0xFF
		}
		return m.mbc.Read(address)
	case regionVRAM:
		return m.readVRAM(address)
	case regionWRAM:
		return m.readWRAM(address)
	case regionEcho:
		return m.readWRAM(address - 0x2000)
	default:
		return m.memory[address]
	}
}

func (m *MMU) unsafeWrite(address uint16, value byte) {
	switch m.regionMap[address>>8] {
	case regionVRAM:
		m.writeVRAM(address, value)
	case regionWRAM:
		m.writeWRAM(address, value)
	case regionEcho:
		m.writeWRAM(address-0x2000, value)
	default:
		m.memory[address] = value
	}
}

// OnHBlank is called by the PPU once per H-blank entry; it drives an
// active H-blank-gated HDMA transfer one 16-byte block forward.
func (m *MMU) OnHBlank() {
	if m.cgbMode {
		m.hdma.OnHBlank(m.unsafeRead, m.unsafeWrite)
	}
}

// updateJoypadRegister sets the joypad register (P1) according to selection bits
// and hardware (buttons) status.
//
// In real hw, this register is actually just a selector (bits 4-5) that control
// to which set of buttons the low bits (0-3) are mapped to.
//
// The mapping:
//   - if bit 4 is clear, bits 0-3 are mapped to the 4 d-pad directions
//   - if bit 5 is clear, bits 0-3 are mapped to A, B, Start, Select
//   - if both are clear, hw does an AND of both button sets
//   - if both are set, return 0x0F (high impedence state)
//
// This function is called whenever:
//   - there is a write to the P1 register (only set bits 4-5)
//   - a button is pressed or released (tracked separately)
//
// Note that 1 -> button released, 0 -> button pressed.
// Bits 6-7 are unused, they always read as 1 on real hardware.
func (m *MMU) updateJoypadRegister() {
	p1 := m.memory[addr.P1]
	result := uint8(0b11000000) // Bits 6-7 are always read as 1
	result |= p1 & 0b00110000   // Keep selection bits 4-5

	// A button group is selected if the corresponding bit is 0
	selectDpad := !bit.IsSet(4, p1)
	selectButtons := !bit.IsSet(5, p1)

	switch {
	case selectButtons && !selectDpad:
		result |= m.joypadButtons & 0x0F
	case selectDpad && !selectButtons:
		result |= m.joypadDpad & 0x0F
	case selectButtons && selectDpad:
		result |= m.joypadButtons & m.joypadDpad & 0x0F
	default:
		// no selection
		result |= 0x0F
	}

	m.memory[addr.P1] = result
}

func (m *MMU) writeJoypad(value uint8) {
	// Only bits 4-5 are writable (selection bits)
	m.memory[addr.P1] = value & 0b00110000
	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyPress(key JoypadKey) {
	oldButtons := m.joypadButtons
	oldDpad := m.joypadDpad

	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Reset(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Reset(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Reset(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Reset(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Reset(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Reset(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Reset(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Reset(3, m.joypadButtons)
	}

	buttonTransitions := oldButtons & ^m.joypadButtons
	dpadTransitions := oldDpad & ^m.joypadDpad
	if buttonTransitions|dpadTransitions != 0 {
		m.RequestInterrupt(addr.JoypadInterrupt)
	}

	m.updateJoypadRegister()
}

func (m *MMU) HandleKeyRelease(key JoypadKey) {
	switch key {
	case JoypadRight:
		m.joypadDpad = bit.Set(0, m.joypadDpad)
	case JoypadLeft:
		m.joypadDpad = bit.Set(1, m.joypadDpad)
	case JoypadUp:
		m.joypadDpad = bit.Set(2, m.joypadDpad)
	case JoypadDown:
		m.joypadDpad = bit.Set(3, m.joypadDpad)
	case JoypadA:
		m.joypadButtons = bit.Set(0, m.joypadButtons)
	case JoypadB:
		m.joypadButtons = bit.Set(1, m.joypadButtons)
	case JoypadSelect:
		m.joypadButtons = bit.Set(2, m.joypadButtons)
	case JoypadStart:
		m.joypadButtons = bit.Set(3, m.joypadButtons)
	}

	m.updateJoypadRegister()
}

// SaveState serializes all emulated memory and I/O device state: the flat
// memory array, CGB VRAM/WRAM banks and palettes, HDMA/DMA engines, timer,
// serial port, joypad latches, the loaded cartridge's MBC (if it carries
// state), and the APU. The cartridge ROM image itself is not included; the
// caller is expected to reload the same ROM before calling LoadState.
func (m *MMU) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Bytes(m.memory)
	bw.Value(m.joypadButtons)
	bw.Value(m.joypadDpad)
	bw.Bool(m.cgbMode)
	bw.Bytes(m.vram[0])
	if m.cgbMode {
		bw.Bytes(m.vram[1])
	}
	bw.Value(m.vramBank)
	for i := 0; i < 8; i++ {
		if m.wramBanks[i] != nil {
			bw.Bytes(m.wramBanks[i])
		}
	}
	bw.Value(m.wramBank)
	bw.Bool(m.doubleSpeed)
	bw.Bool(m.keyArmed)
	bw.Value(m.opri)
	bw.Value(m.oamBlocked)
	bw.Value(m.vramBlocked)
	if err := bw.Err(); err != nil {
		return err
	}

	if err := m.bgPalette.SaveState(w); err != nil {
		return err
	}
	if err := m.objPalette.SaveState(w); err != nil {
		return err
	}
	if err := m.hdma.SaveState(w); err != nil {
		return err
	}
	if err := m.timer.SaveState(w); err != nil {
		return err
	}
	if err := m.dma.SaveState(w); err != nil {
		return err
	}

	if sink, ok := m.serial.(*serial.LogSink); ok {
		bw2 := binstate.NewWriter(w)
		bw2.Bool(true)
		if err := bw2.Err(); err != nil {
			return err
		}
		if err := sink.SaveState(w); err != nil {
			return err
		}
	} else {
		bw2 := binstate.NewWriter(w)
		bw2.Bool(false)
		if err := bw2.Err(); err != nil {
			return err
		}
	}

	if stateful, ok := m.mbc.(StatefulMBC); ok {
		bw3 := binstate.NewWriter(w)
		bw3.Bool(true)
		if err := bw3.Err(); err != nil {
			return err
		}
		if err := stateful.SaveState(w); err != nil {
			return err
		}
	} else {
		bw3 := binstate.NewWriter(w)
		bw3.Bool(false)
		if err := bw3.Err(); err != nil {
			return err
		}
	}

	return m.APU.SaveState(w)
}

// LoadState restores state saved by SaveState. The caller must have already
// loaded the same cartridge (so m.mbc and CGB bank sizing match) before
// calling this.
func (m *MMU) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Bytes(m.memory)
	br.Value(&m.joypadButtons)
	br.Value(&m.joypadDpad)
	m.cgbMode = br.Bool()
	br.Bytes(m.vram[0])
	if m.cgbMode {
		if m.vram[1] == nil {
			m.vram[1] = make([]byte, 0x2000)
		}
		br.Bytes(m.vram[1])
	}
	br.Value(&m.vramBank)
	for i := 0; i < 8; i++ {
		if m.wramBanks[i] != nil {
			br.Bytes(m.wramBanks[i])
		}
	}
	br.Value(&m.wramBank)
	m.doubleSpeed = br.Bool()
	m.keyArmed = br.Bool()
	br.Value(&m.opri)
	br.Value(&m.oamBlocked)
	br.Value(&m.vramBlocked)
	if err := br.Err(); err != nil {
		return err
	}

	if err := m.bgPalette.LoadState(r); err != nil {
		return err
	}
	if err := m.objPalette.LoadState(r); err != nil {
		return err
	}
	if err := m.hdma.LoadState(r); err != nil {
		return err
	}
	if err := m.timer.LoadState(r); err != nil {
		return err
	}
	if err := m.dma.LoadState(r); err != nil {
		return err
	}

	br2 := binstate.NewReader(r)
	hasSerial := br2.Bool()
	if err := br2.Err(); err != nil {
		return err
	}
	if hasSerial {
		sink, ok := m.serial.(*serial.LogSink)
		if !ok {
			return fmt.Errorf("memory: snapshot has serial state but current serial port is not a LogSink")
		}
		if err := sink.LoadState(r); err != nil {
			return err
		}
	}

	br3 := binstate.NewReader(r)
	hasMBC := br3.Bool()
	if err := br3.Err(); err != nil {
		return err
	}
	if hasMBC {
		stateful, ok := m.mbc.(StatefulMBC)
		if !ok {
			return fmt.Errorf("memory: snapshot has MBC state but no cartridge with stateful banking is loaded")
		}
		if err := stateful.LoadState(r); err != nil {
			return err
		}
	}

	return m.APU.LoadState(r)
}
