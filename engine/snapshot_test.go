package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadSnapshot_RoundTrip(t *testing.T) {
	src := New()
	for i := 0; i < 200; i++ {
		require.NoError(t, src.RunUntilFrame())
	}

	var buf bytes.Buffer
	require.NoError(t, src.SaveSnapshot(&buf))

	dst := New()
	require.NoError(t, dst.LoadSnapshot(bytes.NewReader(buf.Bytes())))

	assert.Equal(t, src.GetCPU().PC(), dst.GetCPU().PC())
	assert.Equal(t, src.GetCurrentFrame().ToSlice(), dst.GetCurrentFrame().ToSlice())

	require.NoError(t, src.RunUntilFrame())
	require.NoError(t, dst.RunUntilFrame())
	assert.Equal(t, src.GetCurrentFrame().ToSlice(), dst.GetCurrentFrame().ToSlice(),
		"a machine restored from a snapshot should produce the same next frame as the original")
}

func TestLoadSnapshot_RejectsBadMagic(t *testing.T) {
	dmg := New()
	err := dmg.LoadSnapshot(bytes.NewReader([]byte("not-a-snapshot-at-all")))
	assert.Error(t, err)
}

func TestLoadSnapshot_RejectsUnknownVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString(snapshotMagic)
	// version 99, little-endian uint32
	buf.Write([]byte{99, 0, 0, 0})

	dmg := New()
	err := dmg.LoadSnapshot(&buf)
	assert.Error(t, err)
}
