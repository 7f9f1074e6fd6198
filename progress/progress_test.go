package progress

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageEntryBreakpoints(t *testing.T) {
	require := require.New(t)
	require.Equal(0.05, OnEntry(StageFetching))
	require.Equal(0.20, OnEntry(StageTranscribing))
	require.Equal(0.45, OnEntry(StageSelecting))
	require.Equal(0.55, OnEntry(StageRendering))
	require.Equal(0.90, OnEntry(StageUploading))
	require.Equal(1.0, OnEntry(StageDone))
	require.Equal(0.0, OnEntry("no-such-stage"))
}

func TestRenderBandIsLinearPerClip(t *testing.T) {
	require := require.New(t)
	require.Equal(0.55, Rendering(0, 5))
	require.InDelta(0.62, Rendering(1, 5), 1e-9)
	require.InDelta(0.76, Rendering(3, 5), 1e-9)
	require.Equal(0.90, Rendering(5, 5))

	// out-of-range counts stay inside the band
	require.Equal(0.55, Rendering(-1, 5))
	require.Equal(0.90, Rendering(9, 5))
	require.Equal(0.55, Rendering(1, 0))
}

func TestUploadBandIsLinearPerClip(t *testing.T) {
	require := require.New(t)
	require.Equal(0.90, Uploading(0, 3))
	require.InDelta(0.93, Uploading(1, 3), 1e-9)
	require.InDelta(0.99, Uploading(3, 3), 1e-9)
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0.0, Clamp(-0.2))
	require.Equal(t, 1.0, Clamp(1.7))
	require.Equal(t, 0.5, Clamp(0.5))
}
