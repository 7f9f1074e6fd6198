package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestScratchJobDirAndCleanup(t *testing.T) {
	require := require.New(t)
	s := NewScratch(t.TempDir())

	dir, err := s.JobDir("job-1")
	require.NoError(err)
	require.DirExists(dir)
	require.NoError(os.WriteFile(filepath.Join(dir, "source.mp4"), []byte("x"), 0644))

	s.Cleanup("job-1")
	require.NoDirExists(dir)
}

func TestScratchSweepRemovesOnlyStaleDirs(t *testing.T) {
	require := require.New(t)
	s := NewScratch(t.TempDir())

	staleDir, err := s.JobDir("stale-job")
	require.NoError(err)
	freshDir, err := s.JobDir("fresh-job")
	require.NoError(err)

	now := time.Now()
	require.NoError(os.Chtimes(staleDir, now.Add(-30*time.Hour), now.Add(-30*time.Hour)))

	s.sweep(now, 24*time.Hour)
	require.NoDirExists(staleDir)
	require.DirExists(freshDir)
}

func TestScratchSweepRemovesStaleOutputs(t *testing.T) {
	require := require.New(t)
	s := NewScratch(t.TempDir())
	outputs, err := s.OutputsDir()
	require.NoError(err)

	stale := filepath.Join(outputs, "job-1_clip_01.mp4")
	fresh := filepath.Join(outputs, "job-2_clip_01.mp4")
	require.NoError(os.WriteFile(stale, []byte("x"), 0644))
	require.NoError(os.WriteFile(fresh, []byte("x"), 0644))

	now := time.Now()
	require.NoError(os.Chtimes(stale, now.Add(-30*time.Hour), now.Add(-30*time.Hour)))

	s.sweep(now, 24*time.Hour)
	require.NoFileExists(stale)
	require.FileExists(fresh)
}

func TestScratchSweepToleratesMissingRoot(t *testing.T) {
	s := NewScratch(filepath.Join(t.TempDir(), "never-created"))
	s.sweep(time.Now(), 24*time.Hour) // must not panic or create anything
	require.NoDirExists(t, filepath.Join(s.Root, "jobs"))
}

func TestScratchJanitor(t *testing.T) {
	require := require.New(t)
	mock := clock.NewMock()
	s := NewScratch(t.TempDir())
	s.Clock = mock

	staleDir, err := s.JobDir("stale-job")
	require.NoError(err)
	stale := mock.Now().Add(-30 * time.Hour)
	require.NoError(os.Chtimes(staleDir, stale, stale))

	done := make(chan struct{})
	defer close(done)
	go s.Janitor(done)

	// give the goroutine time to install its ticker, then advance past one
	// sweep interval
	time.Sleep(10 * time.Millisecond)
	mock.Add(janitorInterval)

	require.Eventually(func() bool {
		_, err := os.Stat(staleDir)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestScratchOutputsDir(t *testing.T) {
	require := require.New(t)
	s := NewScratch(t.TempDir())
	dir, err := s.OutputsDir()
	require.NoError(err)
	require.DirExists(dir)
	require.Equal(filepath.Join(s.Root, "outputs"), dir)
}
