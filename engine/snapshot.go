package engine

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kallendev/gbcore/engine/snapshot/binstate"
)

// snapshotMagic and snapshotVersion identify the persisted save-state
// format: magic, then version, then length-prefixed CPU/MMU/GPU sections.
// Bumping the version is the only sanctioned way to change section layout;
// LoadSnapshot refuses anything it doesn't recognize.
const (
	snapshotMagic   = "GBCORE01"
	snapshotVersion = uint32(1)
)

// SaveSnapshot serializes the entire machine state (CPU, bus/MMU devices,
// GPU and its frame buffer) to w as a versioned binary stream. The ROM
// image itself is not captured; LoadSnapshot expects the same cartridge to
// already be loaded.
func (e *DMG) SaveSnapshot(w io.Writer) error {
	bw := binstate.NewWriter(w)
	bw.Bytes([]byte(snapshotMagic))
	bw.Value(snapshotVersion)
	if err := bw.Err(); err != nil {
		return err
	}

	sections := []struct {
		name string
		save func(io.Writer) error
	}{
		{"cpu", e.bus.CPU.SaveState},
		{"mmu", e.bus.MMU.SaveState},
		{"gpu", e.bus.GPU.SaveState},
	}

	for _, s := range sections {
		var buf bytes.Buffer
		if err := s.save(&buf); err != nil {
			return fmt.Errorf("engine: saving %s state: %w", s.name, err)
		}
		lw := binstate.NewWriter(w)
		lw.Value(uint32(buf.Len()))
		if err := lw.Err(); err != nil {
			return err
		}
		if _, err := w.Write(buf.Bytes()); err != nil {
			return err
		}
	}

	return nil
}

// LoadSnapshot restores state written by SaveSnapshot. The caller must have
// already created a DMG with the same cartridge loaded (so MBC type, CGB
// mode, and bank sizing match what was saved); a mismatched cartridge, or a
// snapshot with an unrecognized magic/version, is reported as an error with
// the current machine state left untouched.
func (e *DMG) LoadSnapshot(r io.Reader) error {
	br := binstate.NewReader(r)
	magic := make([]byte, len(snapshotMagic))
	br.Bytes(magic)
	var version uint32
	br.Value(&version)
	if err := br.Err(); err != nil {
		return fmt.Errorf("engine: reading snapshot header: %w", err)
	}
	if string(magic) != snapshotMagic {
		return fmt.Errorf("engine: not a snapshot file (bad magic %q)", magic)
	}
	if version != snapshotVersion {
		return fmt.Errorf("engine: unsupported snapshot version %d (want %d)", version, snapshotVersion)
	}

	sections := []struct {
		name string
		load func(io.Reader) error
	}{
		{"cpu", e.bus.CPU.LoadState},
		{"mmu", e.bus.MMU.LoadState},
		{"gpu", e.bus.GPU.LoadState},
	}

	// Keep the current state so that a failed section load can be undone.
	var backup bytes.Buffer
	if err := e.SaveSnapshot(&backup); err != nil {
		return fmt.Errorf("engine: saving current state: %w", err)
	}
	restore := func(err error) error {
		e.LoadSnapshot(&backup)
		return err
	}

	for _, s := range sections {
		var length uint32
		lr := binstate.NewReader(r)
		lr.Value(&length)
		if err := lr.Err(); err != nil {
			return restore(fmt.Errorf("engine: reading %s section length: %w", s.name, err))
		}
		section := io.LimitReader(r, int64(length))
		if err := s.load(section); err != nil {
			return restore(fmt.Errorf("engine: loading %s state: %w", s.name, err))
		}
		if _, err := io.Copy(io.Discard, section); err != nil {
			return restore(err)
		}
	}

	return nil
}
