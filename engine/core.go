package engine

import (
	"fmt"
	"io/ioutil"
	"log/slog"
	"sync"

	"github.com/kallendev/gbcore/engine/audio"
	"github.com/kallendev/gbcore/engine/cpu"
	"github.com/kallendev/gbcore/engine/debug"
	"github.com/kallendev/gbcore/engine/input/action"
	"github.com/kallendev/gbcore/engine/memory"
	"github.com/kallendev/gbcore/engine/timing"
	"github.com/kallendev/gbcore/engine/video"
)

// DebuggerState represents the current debugger mode
type DebuggerState int

const (
	DebuggerRunning   DebuggerState = iota // Normal execution
	DebuggerPaused                         // Paused, waiting for commands
	DebuggerStep                           // Execute one instruction then pause
	DebuggerStepFrame                      // Execute one frame then pause
)

// DMG is the root struct and entry point for running a DMG/CGB emulation.
type DMG struct {
	bus     *Bus
	limiter timing.Limiter

	// Debugger state
	debuggerState    DebuggerState
	debuggerMutex    sync.RWMutex
	stepRequested    bool
	frameRequested   bool
	instructionCount uint64
	frameCount       uint64
}

func (e *DMG) init(mem *memory.MMU) {
	gpu := video.NewGpu(mem)
	e.bus = &Bus{MMU: mem, GPU: gpu}
	e.bus.CPU = cpu.New(e.bus)
	e.limiter = timing.NewNoOpLimiter()
}

// New creates a new emulator instance
func New() *DMG {
	e := &DMG{}
	e.init(memory.NewWithCartridge(memory.NewCartridge()))

	return e
}

// NewWithFile creates a new emulator instance and loads the file specified into it.
func NewWithFile(path string) (*DMG, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}

	slog.Debug("Loaded ROM data", "size", len(data))

	e := &DMG{}
	e.init(memory.NewWithCartridge(memory.NewCartridgeWithData(data)))

	return e, nil
}

func (e *DMG) RunUntilFrame() error {
	e.debuggerMutex.RLock()
	state := e.debuggerState
	e.debuggerMutex.RUnlock()

	// Handle paused state - don't execute anything
	if state == DebuggerPaused {
		return nil
	}

	// Handle step instruction - execute one instruction then pause
	if state == DebuggerStep {
		e.debuggerMutex.Lock()
		if e.stepRequested {
			e.stepRequested = false
			e.debuggerMutex.Unlock()

			// Execute one CPU instruction
			oldPC := e.bus.CPU.PC()
			e.bus.TickInstruction()
			e.instructionCount++

			// Log the executed instruction
			slog.Debug("Step executed", "pc", fmt.Sprintf("0x%04X", oldPC), "new_pc", fmt.Sprintf("0x%04X", e.bus.CPU.PC()))

			// Pause after execution
			e.SetDebuggerState(DebuggerPaused)
		} else {
			e.debuggerMutex.Unlock()
		}
		e.limiter.WaitForNextFrame()
		return nil
	}

	// Handle step frame - execute one frame then pause
	if state == DebuggerStepFrame {
		e.debuggerMutex.Lock()
		frameRequested := e.frameRequested
		if frameRequested {
			e.frameRequested = false
		}
		e.debuggerMutex.Unlock()

		if frameRequested {
			// Execute one full frame
			total := 0
			for {
				total += e.bus.TickInstruction()
				e.instructionCount++

				if total >= 70224 {
					break
				}
			}
			e.frameCount++
			slog.Debug("Frame step completed", "frame", e.frameCount, "instructions", e.instructionCount)
			e.SetDebuggerState(DebuggerPaused)
		}
		e.limiter.WaitForNextFrame()
		return nil
	}

	// Normal execution (DebuggerRunning)
	total := 0
	for {
		total += e.bus.TickInstruction()
		e.instructionCount++

		if total >= 70224 {
			e.frameCount++
			// Log every 60 frames (once per second at 60 FPS) only when running
			if e.frameCount%60 == 0 {
				slog.Debug("Frame completed", "frame", e.frameCount, "pc", fmt.Sprintf("0x%04X", e.bus.CPU.PC()))
			}
			e.limiter.WaitForNextFrame()
			return nil
		}
	}
}

func (e *DMG) GetCurrentFrame() *video.FrameBuffer {
	return e.bus.GPU.GetFrameBuffer()
}

func (e *DMG) HandleKeyPress(key memory.JoypadKey) {
	e.bus.MMU.HandleKeyPress(key)
}

func (e *DMG) HandleKeyRelease(key memory.JoypadKey) {
	e.bus.MMU.HandleKeyRelease(key)
}

var actionJoypadKeys = map[action.Action]memory.JoypadKey{
	action.GBButtonA:      memory.JoypadA,
	action.GBButtonB:      memory.JoypadB,
	action.GBButtonStart:  memory.JoypadStart,
	action.GBButtonSelect: memory.JoypadSelect,
	action.GBDPadUp:       memory.JoypadUp,
	action.GBDPadDown:     memory.JoypadDown,
	action.GBDPadLeft:     memory.JoypadLeft,
	action.GBDPadRight:    memory.JoypadRight,
}

// HandleAction routes a backend-agnostic input action to the joypad or the
// debugger, depending on which category it belongs to.
func (e *DMG) HandleAction(act action.Action, pressed bool) {
	if key, ok := actionJoypadKeys[act]; ok {
		if pressed {
			e.HandleKeyPress(key)
		} else {
			e.HandleKeyRelease(key)
		}
		return
	}

	if !pressed {
		return
	}

	switch act {
	case action.EmulatorPauseToggle:
		if e.GetDebuggerState() == DebuggerPaused {
			e.DebuggerResume()
		} else {
			e.DebuggerPause()
		}
	case action.EmulatorStepFrame:
		e.DebuggerStepFrame()
	case action.EmulatorStepInstruction:
		e.DebuggerStepInstruction()
	}
}

// ExtractDebugData snapshots CPU, interrupt and memory state for debug
// frontends. Returns nil until the emulator has been initialized with a bus.
func (e *DMG) ExtractDebugData() *debug.CompleteDebugData {
	if e.bus == nil || e.bus.CPU == nil || e.bus.MMU == nil {
		return nil
	}

	c := e.bus.CPU
	mem := e.bus.MMU

	const snapshotSize = 64
	start := c.PC()
	size := uint32(snapshotSize)
	if uint32(start)+size > 0x10000 {
		size = 0x10000 - uint32(start)
	}

	bytes := make([]uint8, size)
	for i := range bytes {
		bytes[i] = mem.Read(start + uint16(i))
	}

	return &debug.CompleteDebugData{
		CPU: &debug.CPUState{
			SP:     c.SP(),
			PC:     c.PC(),
			IME:    false,
			Cycles: c.Cycles(),
		},
		Memory: &debug.MemorySnapshot{
			StartAddr: start,
			Bytes:     bytes,
		},
		DebuggerState:   debug.DebuggerState(e.GetDebuggerState()),
		InterruptEnable: mem.Read(0xFFFF),
		InterruptFlags:  mem.Read(0xFF0F),
	}
}

func (e *DMG) SetFrameLimiter(limiter timing.Limiter) {
	if limiter == nil {
		e.limiter = timing.NewNoOpLimiter()
	} else {
		e.limiter = limiter
	}
}

func (e *DMG) ResetFrameTiming() {
	e.limiter.Reset()
}

func (e *DMG) GetCPU() *cpu.CPU {
	return e.bus.CPU
}

// Debugger control methods
func (e *DMG) SetDebuggerState(state DebuggerState) {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.debuggerState = state
	slog.Debug("Debugger state changed", "state", state)
}

func (e *DMG) GetDebuggerState() DebuggerState {
	e.debuggerMutex.RLock()
	defer e.debuggerMutex.RUnlock()
	return e.debuggerState
}

func (e *DMG) DebuggerPause() {
	e.SetDebuggerState(DebuggerPaused)
	slog.Info("Emulator paused")
}

func (e *DMG) DebuggerResume() {
	e.SetDebuggerState(DebuggerRunning)
	slog.Info("Emulator resumed")
}

func (e *DMG) DebuggerStepInstruction() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.stepRequested = true
	e.debuggerState = DebuggerStep
	slog.Info("Step instruction requested")
}

func (e *DMG) DebuggerStepFrame() {
	e.debuggerMutex.Lock()
	defer e.debuggerMutex.Unlock()
	e.frameRequested = true
	e.debuggerState = DebuggerStepFrame
	slog.Info("Step frame requested")
}

func (e *DMG) GetInstructionCount() uint64 {
	return e.instructionCount
}

func (e *DMG) GetFrameCount() uint64 {
	return e.frameCount
}

func (e *DMG) GetMMU() *memory.MMU {
	return e.bus.MMU
}

func (e *DMG) GetAudioProvider() audio.Provider {
	return e.bus.MMU.APU
}
