package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/clipfab/shorts-api/log"
)

const (
	scratchMaxAge   = 24 * time.Hour
	janitorInterval = time.Hour
)

// Scratch manages per-job working directories under a single root, plus
// the outputs directory used by local publishing. A janitor sweeps
// directories that outlive their job, e.g. after a crash mid-render.
type Scratch struct {
	Root  string
	Clock clock.Clock
}

func NewScratch(root string) *Scratch {
	return &Scratch{Root: root, Clock: clock.New()}
}

// JobDir creates and returns the scratch directory for one job attempt.
func (s *Scratch) JobDir(jobID string) (string, error) {
	dir := filepath.Join(s.Root, "jobs", jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, nil
}

// Cleanup removes a job's scratch directory. Published outputs live
// elsewhere and are unaffected.
func (s *Scratch) Cleanup(jobID string) {
	dir := filepath.Join(s.Root, "jobs", jobID)
	if err := os.RemoveAll(dir); err != nil {
		log.LogError(jobID, "failed to remove scratch dir", err, "dir", dir)
	}
}

// OutputsDir creates and returns the directory local publishing serves
// downloads from.
func (s *Scratch) OutputsDir() (string, error) {
	dir := filepath.Join(s.Root, "outputs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating outputs dir: %w", err)
	}
	return dir, nil
}

// Janitor blocks, sweeping leftover scratch directories every hour until
// done is closed.
func (s *Scratch) Janitor(done <-chan struct{}) {
	ticker := s.Clock.Ticker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.sweep(s.Clock.Now(), scratchMaxAge)
		}
	}
}

// sweep removes job directories and locally published clips whose last
// modification is older than maxAge. Age is judged by mtime, which ffmpeg
// and whisper touch constantly while a job is live.
func (s *Scratch) sweep(now time.Time, maxAge time.Duration) {
	s.sweepDir(filepath.Join(s.Root, "jobs"), now, maxAge)
	s.sweepDir(filepath.Join(s.Root, "outputs"), now, maxAge)
}

func (s *Scratch) sweepDir(root string, now time.Time, maxAge time.Duration) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.LogErrorNoJobID("scratch sweep failed", err, "dir", root)
		}
		return
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.LogErrorNoJobID("failed to remove stale scratch entry", err, "path", path)
			continue
		}
		log.LogNoJobID("removed stale scratch entry", "path", path, "age", now.Sub(info.ModTime()).Round(time.Minute).String())
	}
}
