package memory

import (
	"io"

	"github.com/kallendev/gbcore/engine/snapshot/binstate"
)

// DMAEngine reproduces the OAM DMA transfer triggered by a write to 0xFF46:
// 160 bytes copied from (source<<8) to OAM at a rate of one byte per 4
// T-states. While active, the bus gates CPU access to everything outside
// HRAM (see MMU.Read/Write).
type DMAEngine struct {
	active    bool
	source    uint16
	remaining int
	cycleAcc  int
}

// Start begins a transfer from sourceHigh<<8. Writing 0xFF46 mid-transfer
// restarts it from the new source, matching real hardware.
func (d *DMAEngine) Start(sourceHigh uint8) {
	d.active = true
	d.source = uint16(sourceHigh) << 8
	d.remaining = 160
	d.cycleAcc = 0
}

// Active reports whether a transfer is in progress.
func (d *DMAEngine) Active() bool { return d.active }

// Tick advances the transfer, pulling one byte every 4 T-states via readFn
// (an unchecked bus read) and depositing it at OAM+offset via writeFn.
func (d *DMAEngine) Tick(cycles int, readFn func(uint16) byte, writeFn func(uint16, byte)) {
	if !d.active {
		return
	}

	d.cycleAcc += cycles
	for d.cycleAcc >= 4 && d.remaining > 0 {
		d.cycleAcc -= 4
		offset := uint16(160 - d.remaining)
		writeFn(0xFE00+offset, readFn(d.source+offset))
		d.remaining--
	}

	if d.remaining == 0 {
		d.active = false
	}
}

// HDMAMode selects between a one-shot general-purpose transfer and one
// gated to fire a 16-byte block per H-blank.
type HDMAMode uint8

const (
	HDMAGeneral HDMAMode = iota
	HDMAHBlank
)

// HDMAEngine is the CGB-only VRAM block-transfer engine driven by
// HDMA1-HDMA5 (0xFF51-0xFF55).
type HDMAEngine struct {
	srcHigh, srcLow uint8
	dstHigh, dstLow uint8

	active      bool
	mode        HDMAMode
	blocksLeft  uint8 // remaining 16-byte blocks (a count; HDMA5 reads back this minus 1)
	totalBlocks uint8
}

// WriteSrcHigh/WriteSrcLow/WriteDstHigh/WriteDstLow latch the respective
// byte of HDMA1-HDMA4. Source low nibble and destination top 3 bits plus
// bottom 4 bits are ignored per hardware (addresses are block-aligned).
func (h *HDMAEngine) WriteSrcHigh(v uint8) { h.srcHigh = v }
func (h *HDMAEngine) WriteSrcLow(v uint8)  { h.srcLow = v & 0xF0 }
func (h *HDMAEngine) WriteDstHigh(v uint8) { h.dstHigh = v & 0x1F }
func (h *HDMAEngine) WriteDstLow(v uint8)  { h.dstLow = v & 0xF0 }

func (h *HDMAEngine) source() uint16      { return uint16(h.srcHigh)<<8 | uint16(h.srcLow) }
func (h *HDMAEngine) destination() uint16 { return 0x8000 | uint16(h.dstHigh)<<8 | uint16(h.dstLow) }

// WriteControl handles a write to HDMA5. Bit 7 selects mode, bits 0-6
// encode (length/16)-1. Writing bit7=0 while an H-blank transfer is active
// cancels it (bit 7 then reads back as 1, per Pan Docs).
func (h *HDMAEngine) WriteControl(v uint8) {
	if h.active && h.mode == HDMAHBlank && v&0x80 == 0 {
		h.active = false
		return
	}

	h.totalBlocks = (v & 0x7F) + 1
	h.blocksLeft = h.totalBlocks
	h.active = true
	if v&0x80 != 0 {
		h.mode = HDMAHBlank
	} else {
		h.mode = HDMAGeneral
	}
}

// ReadControl reports remaining length and active state via HDMA5's encoding:
// bit 7 clear + low bits = (blocks left - 1) while running, 0xFF when idle.
func (h *HDMAEngine) ReadControl() uint8 {
	if !h.active {
		return 0xFF
	}
	return (h.blocksLeft - 1) & 0x7F
}

// Active reports whether a transfer (of either mode) is in progress.
func (h *HDMAEngine) Active() bool { return h.active }

// RunGeneral drains an entire general-purpose transfer in one shot, as the
// CPU is halted for the whole transfer on real hardware.
func (h *HDMAEngine) RunGeneral(readFn func(uint16) byte, writeFn func(uint16, byte)) {
	if !h.active || h.mode != HDMAGeneral {
		return
	}
	for h.blocksLeft > 0 {
		h.copyBlock(readFn, writeFn)
	}
	h.active = false
}

// OnHBlank copies one 16-byte block when an H-blank-gated transfer is
// active, called once per PPU H-blank entry.
func (h *HDMAEngine) OnHBlank(readFn func(uint16) byte, writeFn func(uint16, byte)) {
	if !h.active || h.mode != HDMAHBlank {
		return
	}
	h.copyBlock(readFn, writeFn)
	if h.blocksLeft == 0 {
		h.active = false
	}
}

func (h *HDMAEngine) copyBlock(readFn func(uint16) byte, writeFn func(uint16, byte)) {
	src := h.source()
	dst := h.destination()
	for i := uint16(0); i < 16; i++ {
		writeFn(dst+i, readFn(src+i))
	}
	h.srcLow += 16
	if h.srcLow == 0 {
		h.srcHigh++
	}
	h.dstLow += 16
	if h.dstLow == 0 {
		h.dstHigh = (h.dstHigh + 1) & 0x1F
	}
	h.blocksLeft--
}

// SaveState serializes the OAM DMA transfer's progress.
func (d *DMAEngine) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Bool(d.active)
	bw.Value(d.source)
	bw.Value(int32(d.remaining))
	bw.Value(int32(d.cycleAcc))
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (d *DMAEngine) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	d.active = br.Bool()
	br.Value(&d.source)
	var remaining, cycleAcc int32
	br.Value(&remaining)
	br.Value(&cycleAcc)
	d.remaining = int(remaining)
	d.cycleAcc = int(cycleAcc)
	return br.Err()
}

// SaveState serializes the HDMA engine's transfer registers and progress.
func (h *HDMAEngine) SaveState(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Value(h.srcHigh)
	bw.Value(h.srcLow)
	bw.Value(h.dstHigh)
	bw.Value(h.dstLow)
	bw.Bool(h.active)
	bw.Value(uint8(h.mode))
	bw.Value(h.blocksLeft)
	bw.Value(h.totalBlocks)
	return bw.Err()
}

// LoadState restores state saved by SaveState.
func (h *HDMAEngine) LoadState(r io.Reader) error {
	br := binstate.NewReader(r)
	br.Value(&h.srcHigh)
	br.Value(&h.srcLow)
	br.Value(&h.dstHigh)
	br.Value(&h.dstLow)
	h.active = br.Bool()
	var mode uint8
	br.Value(&mode)
	h.mode = HDMAMode(mode)
	br.Value(&h.blocksLeft)
	br.Value(&h.totalBlocks)
	return br.Err()
}
