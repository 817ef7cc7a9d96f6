package video

import (
	"bytes"
	"testing"
)

func TestApplyMotionBlur_Disabled(t *testing.T) {
	fb := NewFrameBuffer()
	fb.SetPixel(0, 0, WhiteColor)
	fb.ApplyMotionBlur()

	if fb.GetPixel(0, 0) != uint32(WhiteColor) {
		t.Fatalf("ApplyMotionBlur should be a no-op when disabled, got %x", fb.GetPixel(0, 0))
	}
}

func TestApplyMotionBlur_GhostsTowardBlack(t *testing.T) {
	fb := NewFrameBuffer()
	fb.SetMotionBlur(true)

	fb.SetPixel(0, 0, WhiteColor)
	fb.ApplyMotionBlur()
	first := fb.GetPixel(0, 0)

	fb.Clear()
	fb.ApplyMotionBlur()
	second := fb.GetPixel(0, 0)

	if second == 0 {
		t.Fatalf("expected residual brightness from the previous white frame, got pure black")
	}
	if second>>24 >= first>>24 {
		t.Fatalf("expected the red channel to fade after a black frame: first=%x second=%x", first, second)
	}
}

func TestFrameBufferSaveLoadState_RoundTrip(t *testing.T) {
	fb := NewFrameBuffer()
	fb.SetMotionBlur(true)
	fb.SetPixel(5, 5, DarkGreyColor)
	fb.ApplyMotionBlur()

	var buf bytes.Buffer
	if err := fb.SaveState(&buf); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	restored := NewFrameBuffer()
	if err := restored.LoadState(bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}

	if restored.GetPixel(5, 5) != fb.GetPixel(5, 5) {
		t.Fatalf("pixel mismatch after round-trip: got %x want %x", restored.GetPixel(5, 5), fb.GetPixel(5, 5))
	}
	if !restored.blurEnabled {
		t.Fatalf("expected blurEnabled to round-trip as true")
	}
}
