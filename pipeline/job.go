// Package pipeline owns job state and execution: the registry that tracks
// every job, the FIFO dispatch queue with its concurrency cap, and the
// worker that drives one job through fetch, transcribe, select, render and
// upload.
package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/clipfab/shorts-api/config"
	"github.com/clipfab/shorts-api/errors"
	"github.com/clipfab/shorts-api/log"
	"github.com/clipfab/shorts-api/progress"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal reports whether a job in this status will never change again.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// SubtitleStyleOverride is the per-request subset of the subtitle style.
// Font family and outline stay deployment-wide.
type SubtitleStyleOverride struct {
	Size  int    `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
}

// Options are the per-job knobs. Zero values mean "use the default".
type Options struct {
	TargetCount    int                    `json:"target_count,omitempty"`
	MinSec         float64                `json:"min_sec,omitempty"`
	MaxSec         float64                `json:"max_sec,omitempty"`
	Language       string                 `json:"language,omitempty"`
	WhisperModel   string                 `json:"whisper_model,omitempty"`
	ForceRuleBased bool                   `json:"force_rule_based,omitempty"`
	SubtitleStyle  *SubtitleStyleOverride `json:"subtitle_style,omitempty"`
}

const (
	defaultTargetCount = 5
	minTargetCount     = 3
	maxTargetCount     = 8
	defaultMinSec      = 25.0
	defaultMaxSec      = 45.0
	defaultLanguage    = "ja"
)

// withDefaults fills in unset options and clamps the target count into its
// allowed window.
func (o Options) withDefaults(defaultModel string) Options {
	if o.TargetCount == 0 {
		o.TargetCount = defaultTargetCount
	}
	if o.TargetCount < minTargetCount {
		o.TargetCount = minTargetCount
	}
	if o.TargetCount > maxTargetCount {
		o.TargetCount = maxTargetCount
	}
	if o.MinSec == 0 {
		o.MinSec = defaultMinSec
	}
	if o.MaxSec == 0 {
		o.MaxSec = defaultMaxSec
	}
	if o.Language == "" {
		o.Language = defaultLanguage
	}
	if o.WhisperModel == "" {
		o.WhisperModel = defaultModel
	}
	return o
}

func (o Options) validate() error {
	if o.MinSec <= 0 {
		return fmt.Errorf("min_sec must be positive, got %f", o.MinSec)
	}
	if o.MinSec > o.MaxSec {
		return fmt.Errorf("min_sec %f must not exceed max_sec %f", o.MinSec, o.MaxSec)
	}
	if !config.ValidWhisperModel(o.WhisperModel) {
		return fmt.Errorf("whisper_model %q is not one of %v", o.WhisperModel, config.WhisperModels)
	}
	return nil
}

// merge applies a retry override on top of existing options. Scalar fields
// replace when set; force_rule_based can only be switched on, since a zero
// bool is indistinguishable from an absent one.
func (o Options) merge(override *Options) Options {
	if override == nil {
		return o
	}
	if override.TargetCount != 0 {
		o.TargetCount = override.TargetCount
	}
	if override.MinSec != 0 {
		o.MinSec = override.MinSec
	}
	if override.MaxSec != 0 {
		o.MaxSec = override.MaxSec
	}
	if override.Language != "" {
		o.Language = override.Language
	}
	if override.WhisperModel != "" {
		o.WhisperModel = override.WhisperModel
	}
	if override.ForceRuleBased {
		o.ForceRuleBased = true
	}
	if override.SubtitleStyle != nil {
		o.SubtitleStyle = override.SubtitleStyle
	}
	return o
}

// JobRequest is the submission payload for POST /jobs.
type JobRequest struct {
	SourceType     string  `json:"source_type"`
	DriveFileID    string  `json:"drive_file_id,omitempty"`
	SourceURL      string  `json:"source_url,omitempty"`
	TitleHint      string  `json:"title_hint,omitempty"`
	IdempotencyKey string  `json:"idempotency_key,omitempty"`
	Options        Options `json:"options,omitempty"`
}

func (r JobRequest) validate() error {
	switch r.SourceType {
	case "drive":
		if r.DriveFileID == "" {
			return fmt.Errorf("source_type drive requires drive_file_id")
		}
		if r.SourceURL != "" {
			return fmt.Errorf("drive_file_id and source_url are mutually exclusive")
		}
	case "url":
		if r.SourceURL == "" {
			return fmt.Errorf("source_type url requires source_url")
		}
		if r.DriveFileID != "" {
			return fmt.Errorf("drive_file_id and source_url are mutually exclusive")
		}
	default:
		return fmt.Errorf("unknown source_type %q", r.SourceType)
	}
	return nil
}

type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ClipOutput is one published clip in a job's results.
type ClipOutput struct {
	FileName      string    `json:"file_name"`
	RemoteLocator string    `json:"remote_locator"`
	FileID        string    `json:"file_id,omitempty"`
	DurationSec   float64   `json:"duration_sec"`
	Segment       TimeRange `json:"segment"`
	Method        string    `json:"method"`
}

// JobSnapshot is the immutable copy of a job record returned to pollers.
type JobSnapshot struct {
	JobID     string           `json:"job_id"`
	TraceID   string           `json:"trace_id"`
	Status    Status           `json:"status"`
	Progress  float64          `json:"progress"`
	Stage     string           `json:"stage"`
	Message   string           `json:"message,omitempty"`
	Attempt   int              `json:"attempt"`
	Outputs   []ClipOutput     `json:"outputs"`
	Error     *errors.JobError `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// JobInfo is the live job record. Identity fields are immutable; the
// mutable state is guarded by mu and written only by the registry before
// dispatch and by the owning worker after.
type JobInfo struct {
	JobID   string
	TraceID string
	Request JobRequest
	Options Options
	Attempt int

	mu        sync.Mutex
	status    Status
	progress  float64
	stage     string
	message   string
	outputs   []ClipOutput
	jobErr    *errors.JobError
	createdAt time.Time
	updatedAt time.Time
}

// Snapshot returns a consistent copy of the record.
func (j *JobInfo) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	outputs := make([]ClipOutput, len(j.outputs))
	copy(outputs, j.outputs)
	return JobSnapshot{
		JobID:     j.JobID,
		TraceID:   j.TraceID,
		Status:    j.status,
		Progress:  j.progress,
		Stage:     j.stage,
		Message:   j.message,
		Attempt:   j.Attempt,
		Outputs:   outputs,
		Error:     j.jobErr,
		CreatedAt: j.createdAt,
		UpdatedAt: j.updatedAt,
	}
}

// setRunning moves the job out of the queue. Returns false if the job is
// already terminal (nothing should run it then).
func (j *JobInfo) setRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusQueued {
		return false
	}
	j.status = StatusRunning
	j.updatedAt = time.Now().UTC()
	return true
}

// PublishProgress records a stage transition. Progress is monotonic: a
// value below the current one only updates stage and message.
func (j *JobInfo) PublishProgress(stage string, value float64, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	value = progress.Clamp(value)
	if value > j.progress {
		j.progress = value
	}
	j.stage = stage
	if message != "" {
		j.message = message
	}
	j.updatedAt = time.Now().UTC()
	log.Log(j.JobID, "job progress", "stage", stage, "progress", j.progress)
}

// SetDone marks the job successful. No-op when already terminal.
func (j *JobInfo) SetDone(outputs []ClipOutput, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusDone
	j.progress = 1.0
	j.stage = progress.StageDone
	j.message = message
	j.outputs = outputs
	j.updatedAt = time.Now().UTC()
	log.Log(j.JobID, "job done", "stage", progress.StageDone, "output_count", len(outputs))
}

// SetFailed marks the job failed. Terminal state is sticky.
func (j *JobInfo) SetFailed(jobErr *errors.JobError) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusFailed
	j.stage = jobErr.Stage
	j.message = jobErr.Message
	j.jobErr = jobErr
	j.updatedAt = time.Now().UTC()
	log.LogError(j.JobID, "job failed", jobErr, "error_kind", string(jobErr.Kind))
}

func (j *JobInfo) currentStatus() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}
