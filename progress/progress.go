// Package progress maps pipeline stages to the progress values a job
// publishes when it enters them. Rendering and uploading advance linearly
// per finished clip inside their own band.
package progress

// Stages a running job passes through, in order.
const (
	StageQueued       = "queued"
	StageFetching     = "fetching"
	StageTranscribing = "transcribing"
	StageSelecting    = "selecting"
	StageRendering    = "rendering"
	StageUploading    = "uploading"
	StageDone         = "done"
)

const (
	renderBandStart = 0.55
	renderBandEnd   = 0.90
	uploadBandStart = 0.90
	uploadBandEnd   = 0.99
)

var stageEntry = map[string]float64{
	StageQueued:       0.0,
	StageFetching:     0.05,
	StageTranscribing: 0.20,
	StageSelecting:    0.45,
	StageRendering:    renderBandStart,
	StageUploading:    uploadBandStart,
	StageDone:         1.0,
}

// OnEntry returns the progress breakpoint published when a job enters stage.
// Unknown stages map to 0 so a bad tag can never move progress backwards.
func OnEntry(stage string) float64 {
	return stageEntry[stage]
}

// Rendering returns the progress after finishing `finished` of `total` clips
// in the render stage.
func Rendering(finished, total int) float64 {
	return scaleBand(renderBandStart, renderBandEnd, finished, total)
}

// Uploading returns the progress after finishing `finished` of `total` clips
// in the upload stage.
func Uploading(finished, total int) float64 {
	return scaleBand(uploadBandStart, uploadBandEnd, finished, total)
}

func scaleBand(start, end float64, finished, total int) float64 {
	if total <= 0 {
		return start
	}
	if finished < 0 {
		finished = 0
	}
	if finished > total {
		finished = total
	}
	return start + (end-start)*float64(finished)/float64(total)
}

// Clamp bounds a progress value to [0, 1].
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
