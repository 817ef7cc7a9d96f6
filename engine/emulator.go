package engine

import (
	"github.com/kallendev/gbcore/engine/debug"
	"github.com/kallendev/gbcore/engine/input/action"
	"github.com/kallendev/gbcore/engine/timing"
	"github.com/kallendev/gbcore/engine/video"
)

// Emulator is the interface for all emulator implementations
type Emulator interface {
	RunUntilFrame() error
	GetCurrentFrame() *video.FrameBuffer
	HandleAction(act action.Action, pressed bool)
	ExtractDebugData() *debug.CompleteDebugData
	SetFrameLimiter(limiter timing.Limiter)
	ResetFrameTiming()
}

var _ Emulator = (*DMG)(nil)
