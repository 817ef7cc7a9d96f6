package memory

import (
	"io"

	"github.com/kallendev/gbcore/engine/snapshot/binstate"
)

// CGBPalette is one of the two 64-byte CGB palette RAMs (BG or OBJ), indexed
// through an auto-incrementing index register (BCPS/OCPS) with data read and
// written through a single port register (BCPD/OCPD). Each of the 8
// palettes holds 4 colors of 2 bytes (little-endian 5-5-5 RGB, top bit
// unused).
type CGBPalette struct {
	ram   [64]byte
	index uint8 // bits 0-5 select the byte, bit 7 is auto-increment
}

// WriteIndex handles a write to BCPS/OCPS.
func (p *CGBPalette) WriteIndex(v uint8) { p.index = v & 0xBF }

// ReadIndex handles a read of BCPS/OCPS.
func (p *CGBPalette) ReadIndex() uint8 { return p.index | 0x40 }

// WriteData handles a write to BCPD/OCPD, auto-incrementing the index when
// bit 7 of the index register is set.
func (p *CGBPalette) WriteData(v uint8) {
	p.ram[p.index&0x3F] = v
	if p.index&0x80 != 0 {
		p.index = (p.index & 0x80) | ((p.index + 1) & 0x3F)
	}
}

// ReadData handles a read of BCPD/OCPD.
func (p *CGBPalette) ReadData() uint8 {
	return p.ram[p.index&0x3F]
}

// Color15 returns the raw little-endian 15-bit color for the given palette
// (0-7) and color index (0-3) within it.
func (p *CGBPalette) Color15(palette, colorIndex uint8) uint16 {
	base := int(palette)*8 + int(colorIndex)*2
	return uint16(p.ram[base]) | uint16(p.ram[base+1])<<8
}

// SaveState serializes the palette RAM and auto-increment index register.
func (p *CGBPalette) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Bytes(p.ram[:])
	bw.Value(p.index)
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (p *CGBPalette) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Bytes(p.ram[:])
	br.Value(&p.index)
	return br.Err()
}
