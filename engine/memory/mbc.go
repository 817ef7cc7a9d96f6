package memory

import (
	"io"
	"time"

	"github.com/kallendev/gbcore/engine/snapshot/binstate"
)

// MBC represents a Memory Bank Controller interface that all MBC types must implement
type MBC interface {
	// Read reads a byte from the specified address
	Read(addr uint16) uint8
	// Write writes a byte to the specified address and returns the written value;
	// an ignored write returns 0 (NoMBC) or 0xFF (cartridge RAM not accessible)
	Write(addr uint16, value uint8) uint8
}

// StatefulMBC is implemented by every banked MBC (all but NoMBC, which has
// no mutable state beyond the ROM bytes it was constructed with). A
// snapshot type-asserts for it so cartridge RAM, bank latches, and RTC
// state round-trip through save/load.
type StatefulMBC interface {
	MBC
	SaveState(w io.Writer) error
	LoadState(r io.Reader) error
}

// NoMBC represents cartridges with no memory banking capabilities.
// These are typically smaller games (32KB or less) that fit entirely in the
// base memory region. The cartridge ROM is directly mapped to 0x0000-0x7FFF
// and cannot be banked/switched. These cartridges cannot have external RAM.
type NoMBC struct {
	rom []uint8 // ROM data
}

// NewNoMBC creates a new NoMBC controller
func NewNoMBC(romData []uint8) *NoMBC {
	return &NoMBC{
		rom: romData,
	}
}

func (m *NoMBC) Read(addr uint16) uint8 {
	// For NoMBC, we just read directly from ROM
	return m.rom[addr]
}

func (m *NoMBC) Write(addr uint16, value uint8) uint8 {
	// NoMBC doesn't support writing to ROM
	return 0
}

// MBC1 is the first and most common MBC chip. Features include:
// - Supports up to 2MB ROM (125 16KB banks)
// - Up to 32KB RAM (4 8KB banks)
// - Bank 0 always mapped to 0x0000-0x3FFF
// - Switchable ROM bank at 0x4000-0x7FFF
// - Optional RAM banking at 0xA000-0xBFFF
// - Two banking modes:
//   - Mode 0 (ROM): Allows access to full ROM but only 8KB RAM
//   - Mode 1 (RAM): Restricts ROM banking but allows full RAM access
// - Optional battery backup for RAM persistence
type MBC1 struct {
	rom          []uint8
	ram          []uint8
	romBank      uint8
	ramBank      uint8
	ramEnabled   bool
	bankingMode  uint8
	hasBattery   bool
	ramBankCount uint8
}

// NewMBC1 creates a new MBC1 controller
func NewMBC1(romData []uint8, hasBattery bool, ramBankCount uint8) *MBC1 {
	ramSize := uint32(ramBankCount) * 0x2000 // 8KB per RAM bank
	return &MBC1{
		rom:          romData,
		ram:          make([]uint8, ramSize),
		romBank:      1,
		ramBank:      0,
		ramEnabled:   false,
		bankingMode:  0,
		hasBattery:   hasBattery,
		ramBankCount: ramBankCount,
	}
}

func (m *MBC1) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		// ROM Bank 0
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		// Switchable ROM Bank
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			// If bank would be out of bounds, wrap around
			offset = offset % uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		// RAM Bank
		if !m.ramEnabled {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			// If bank would be out of bounds, wrap around
			offset = offset % uint32(len(m.ram))
		}
		return m.ram[offset+uint32(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC1) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x1FFF:
		// RAM Enable
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr >= 0x2000 && addr <= 0x3FFF:
		// ROM Bank Number (lower 5 bits)
		bank := value & 0x1F
		if bank == 0 {
			bank = 1
		}
		m.romBank = (m.romBank & 0x60) | bank
	case addr >= 0x4000 && addr <= 0x5FFF:
		// RAM Bank Number or Upper ROM Bank Number
		if m.bankingMode == 0 {
			// ROM Banking mode - value goes to upper bits of ROM bank
			m.romBank = (m.romBank & 0x1F) | ((value & 0x03) << 5)
		} else {
			// RAM Banking mode - value goes to RAM bank
			m.ramBank = value & 0x03
		}
	case addr >= 0x6000 && addr <= 0x7FFF:
		// Banking Mode Select
		m.bankingMode = value & 0x01
		if m.bankingMode == 1 {
			// When switching to RAM banking mode, clear the upper bits of ROM bank
			m.romBank &= 0x1F
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		// RAM Bank
		if !m.ramEnabled {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset = (offset % uint32(len(m.ram)))
		}
		m.ram[offset+uint32(addr-0xA000)] = value
	}
	return value
}

// MBC2 is a simpler MBC chip with built-in RAM. Features include:
// - Supports up to 256KB ROM (16 16KB banks)
// - Built-in 512x4 bits RAM (not external)
// - RAM must be enabled (0x0A written to the RAM-enable range) before use
// - ROM banking similar to MBC1 but simpler
// - The least significant bit of the upper address byte selects between
//   the RAM-enable and ROM-bank registers for writes to 0x0000-0x3FFF
// - RAM is limited to 4-bit values (upper 4 bits are ignored)
// - Optional battery backup for the built-in RAM
type MBC2 struct {
	rom        []uint8
	ram        []uint8 // 512x4 bits RAM
	romBank    uint8
	ramEnabled bool
}

// NewMBC2 creates a new MBC2 controller
func NewMBC2(romData []uint8) *MBC2 {
	return &MBC2{
		rom:        romData,
		ram:        make([]uint8, 512),
		romBank:    1,
		ramEnabled: false,
	}
}

func (m *MBC2) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			offset = offset % uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		// Built-in RAM is 512x4 bits; the upper nibble always reads as 1.
		return m.ram[(addr-0xA000)%512] | 0xF0
	default:
		return 0xFF
	}
}

func (m *MBC2) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x3FFF:
		// Bit 8 of the address selects RAM-enable (low) vs ROM-bank (high).
		if addr&0x0100 == 0 {
			m.ramEnabled = (value & 0x0F) == 0x0A
		} else {
			bank := value & 0x0F
			if bank == 0 {
				bank = 1
			}
			m.romBank = bank
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		m.ram[(addr-0xA000)%512] = value & 0x0F
	}
	return value
}

// MBC3 is an advanced MBC chip with RTC support. Features include:
// - Supports up to 2MB ROM (128 16KB banks)
// - Up to 32KB RAM (4 8KB banks)
// - Real-Time Clock (RTC) functionality
// - RTC has 5 registers: Seconds, Minutes, Hours, Days (lower), Days (upper)/Flags
// - Similar banking to MBC1 but with different register layout
// - RAM and RTC can be battery backed
// - Used in games that needed to track real time (e.g. Pokémon Gold/Silver)
// rtcSeconds/rtcMinutes/... index the latched RTC register snapshot in
// register-select order (0x08-0x0C), per MBC3's RAM-bank-number write.
const (
	rtcSeconds = iota
	rtcMinutes
	rtcHours
	rtcDaysLow
	rtcDaysHigh // bit 0: day counter bit 8, bit 6: halt, bit 7: day-counter carry
)

type MBC3 struct {
	rom        []uint8
	ram        []uint8
	rtc        [5]uint8 // latched RTC registers, snapshotted on a 0->1 latch-select write
	romBank    uint8
	ramBank    uint8 // 0x00-0x03 selects a RAM bank, 0x08-0x0C selects an RTC register
	ramEnabled bool
	hasRTC     bool

	rtcLatchArmed bool
	rtcAnchor     time.Time // host-time anchor elapsed seconds are measured from
	rtcHalted     bool
	rtcDayCarry   bool
}

// NewMBC3 creates a new MBC3 controller
func NewMBC3(romData []uint8, hasRTC bool, ramBankCount uint8) *MBC3 {
	ramSize := uint32(ramBankCount) * 0x2000
	return &MBC3{
		rom:        romData,
		ram:        make([]uint8, ramSize),
		romBank:    1,
		ramEnabled: false,
		hasRTC:     hasRTC,
		rtcAnchor:  time.Now(),
	}
}

// latchRTC samples elapsed wall-clock time since the anchor into the
// register snapshot read by 0xA000-0xBFFF while ramBank selects 0x08-0x0C.
// Real hardware freezes RTC advancement while rtcHalted is set.
func (m *MBC3) latchRTC() {
	elapsed := int64(0)
	if !m.rtcHalted {
		elapsed = int64(time.Since(m.rtcAnchor).Seconds())
	}

	days := elapsed / 86400
	rem := elapsed % 86400
	m.rtc[rtcSeconds] = uint8(rem % 60)
	m.rtc[rtcMinutes] = uint8((rem / 60) % 60)
	m.rtc[rtcHours] = uint8(rem / 3600)
	m.rtc[rtcDaysLow] = uint8(days & 0xFF)

	dayHigh := uint8((days >> 8) & 0x01)
	if days > 0x1FF {
		m.rtcDayCarry = true
	}
	if m.rtcHalted {
		dayHigh |= 0x40
	}
	if m.rtcDayCarry {
		dayHigh |= 0x80
	}
	m.rtc[rtcDaysHigh] = dayHigh
}

func (m *MBC3) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			offset = offset % uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.hasRTC && m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			return m.rtc[m.ramBank-0x08]
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset = offset % uint32(len(m.ram))
		}
		return m.ram[offset+uint32(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC3) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr >= 0x2000 && addr <= 0x3FFF:
		bank := value & 0x7F
		if bank == 0 {
			bank = 1
		}
		m.romBank = bank
	case addr >= 0x4000 && addr <= 0x5FFF:
		m.ramBank = value
	case addr >= 0x6000 && addr <= 0x7FFF:
		// Latch select: a 0x00 -> 0x01 transition snapshots the live RTC.
		if value == 0x01 && m.rtcLatchArmed {
			m.latchRTC()
		}
		m.rtcLatchArmed = value == 0x00
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled {
			return 0xFF
		}
		if m.hasRTC && m.ramBank >= 0x08 && m.ramBank <= 0x0C {
			reg := m.ramBank - 0x08
			m.rtc[reg] = value
			if reg == rtcDaysHigh {
				m.rtcHalted = value&0x40 != 0
				m.rtcDayCarry = value&0x80 != 0
			}
			return value
		}
		if len(m.ram) == 0 {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset = offset % uint32(len(m.ram))
		}
		m.ram[offset+uint32(addr-0xA000)] = value
	}
	return value
}

// MBC5 is the most advanced MBC chip. Features include:
// - Supports up to 8MB ROM (512 16KB banks)
// - Up to 128KB RAM (16 8KB banks)
// - Simple ROM/RAM banking with no quirks (unlike MBC1)
// - 9-bit ROM bank number (allows all 512 banks to be directly accessed)
// - Optional rumble motor support
// - Used in Game Boy Color games that needed more ROM/RAM
// - Backwards compatible with Game Boy
type MBC5 struct {
	rom        []uint8
	ram        []uint8
	romBank    uint16 // MBC5 supports up to 512 ROM banks
	ramBank    uint8
	ramEnabled bool
	hasRumble  bool
}

// NewMBC5 creates a new MBC5 controller
func NewMBC5(romData []uint8, hasRumble bool, ramBankCount uint8) *MBC5 {
	ramSize := uint32(ramBankCount) * 0x2000
	return &MBC5{
		rom:        romData,
		ram:        make([]uint8, ramSize),
		romBank:    1,
		ramEnabled: false,
		hasRumble:  hasRumble,
	}
}

func (m *MBC5) Read(addr uint16) uint8 {
	switch {
	case addr <= 0x3FFF:
		return m.rom[addr]
	case addr >= 0x4000 && addr <= 0x7FFF:
		offset := uint32(m.romBank) * 0x4000
		if offset >= uint32(len(m.rom)) {
			offset = offset % uint32(len(m.rom))
		}
		return m.rom[offset+uint32(addr-0x4000)]
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset = offset % uint32(len(m.ram))
		}
		return m.ram[offset+uint32(addr-0xA000)]
	default:
		return 0xFF
	}
}

func (m *MBC5) Write(addr uint16, value uint8) uint8 {
	switch {
	case addr <= 0x1FFF:
		m.ramEnabled = (value & 0x0F) == 0x0A
	case addr >= 0x2000 && addr <= 0x2FFF:
		m.romBank = (m.romBank & 0x100) | uint16(value)
	case addr >= 0x3000 && addr <= 0x3FFF:
		m.romBank = (m.romBank & 0xFF) | (uint16(value&0x01) << 8)
	case addr >= 0x4000 && addr <= 0x5FFF:
		// Bit 3 of the RAM-bank value drives the rumble motor on cartridges
		// that have one; it never selects a 9th RAM bank.
		m.ramBank = value & 0x0F
		if m.hasRumble {
			m.ramBank &= 0x07
		}
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		offset := uint32(m.ramBank) * 0x2000
		if offset >= uint32(len(m.ram)) {
			offset = offset % uint32(len(m.ram))
		}
		m.ram[offset+uint32(addr-0xA000)] = value
	}
	return value
}

// SaveState serializes MBC1's bank latches, banking mode, and RAM contents.
// ROM data is not part of the snapshot; the cartridge is reloaded from its
// own file before the snapshot is applied.
func (m *MBC1) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Value(m.romBank)
	bw.Value(m.ramBank)
	bw.Bool(m.ramEnabled)
	bw.Value(m.bankingMode)
	bw.Value(uint32(len(m.ram)))
	bw.Bytes(m.ram)
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (m *MBC1) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Value(&m.romBank)
	br.Value(&m.ramBank)
	m.ramEnabled = br.Bool()
	br.Value(&m.bankingMode)
	var ramLen uint32
	br.Value(&ramLen)
	m.ram = make([]uint8, ramLen)
	br.Bytes(m.ram)
	return br.Err()
}

// SaveState serializes MBC2's bank latch, RAM-enable flag, and built-in RAM.
func (m *MBC2) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Value(m.romBank)
	bw.Bool(m.ramEnabled)
	bw.Bytes(m.ram)
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (m *MBC2) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Value(&m.romBank)
	m.ramEnabled = br.Bool()
	br.Bytes(m.ram)
	return br.Err()
}

// SaveState serializes MBC3's bank latches, RAM, and RTC state, anchoring
// the RTC's host-time reference so elapsed wall time keeps advancing it
// across the save/load boundary rather than resetting to "now" on load.
func (m *MBC3) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Value(m.romBank)
	bw.Value(m.ramBank)
	bw.Bool(m.ramEnabled)
	bw.Bool(m.hasRTC)
	bw.Value(m.rtc)
	bw.Bool(m.rtcLatchArmed)
	bw.Bool(m.rtcHalted)
	bw.Bool(m.rtcDayCarry)
	bw.Value(m.rtcAnchor.UnixNano())
	bw.Value(uint32(len(m.ram)))
	bw.Bytes(m.ram)
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (m *MBC3) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Value(&m.romBank)
	br.Value(&m.ramBank)
	m.ramEnabled = br.Bool()
	m.hasRTC = br.Bool()
	br.Value(&m.rtc)
	m.rtcLatchArmed = br.Bool()
	m.rtcHalted = br.Bool()
	m.rtcDayCarry = br.Bool()
	var anchorNano int64
	br.Value(&anchorNano)
	m.rtcAnchor = time.Unix(0, anchorNano)
	var ramLen uint32
	br.Value(&ramLen)
	m.ram = make([]uint8, ramLen)
	br.Bytes(m.ram)
	return br.Err()
}

// SaveState serializes MBC5's bank latches, rumble flag, and RAM contents.
func (m *MBC5) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Value(m.romBank)
	bw.Value(m.ramBank)
	bw.Bool(m.ramEnabled)
	bw.Bool(m.hasRumble)
	bw.Value(uint32(len(m.ram)))
	bw.Bytes(m.ram)
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (m *MBC5) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Value(&m.romBank)
	br.Value(&m.ramBank)
	m.ramEnabled = br.Bool()
	m.hasRumble = br.Bool()
	var ramLen uint32
	br.Value(&ramLen)
	m.ram = make([]uint8, ramLen)
	br.Bytes(m.ram)
	return br.Err()
}
