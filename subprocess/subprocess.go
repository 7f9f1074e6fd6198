package subprocess

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/clipfab/shorts-api/log"
)

// tailBuffer keeps the last few lines written to it so that subprocess
// failures can surface something more useful than an exit code.
type tailBuffer struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func (b *tailBuffer) add(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Join(b.lines, " | ")
}

func streamOutput(jobID, tool, stream string, src io.Reader, tail *tailBuffer) {
	s := bufio.NewReader(src)
	for {
		line, err := s.ReadString('\n')
		line = strings.TrimRight(line, "\n")
		if line != "" {
			if tail != nil {
				tail.add(line)
			}
			log.LogDebug(jobID, "subprocess output", "tool", tool, "stream", stream, "line", line)
		}
		if err != nil {
			if err != io.EOF {
				log.LogError(jobID, "subprocess output read failed", err, "tool", tool, "stream", stream)
			}
			return
		}
	}
}

// New builds a command whose lifetime is bound to ctx: cancelling the
// context kills the process, so a job timeout cannot leave encoders behind.
func New(ctx context.Context, bin string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, bin, args...)
}

// Run starts cmd with stdout and stderr streamed into the job log one line
// at a time, then waits for it to exit. The returned error includes the tail
// of stderr so callers do not need to re-run the tool to see what broke.
func Run(cmd *exec.Cmd, jobID, tool string) error {
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open %s stderr pipe: %w", tool, err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open %s stdout pipe: %w", tool, err)
	}

	tail := &tailBuffer{max: 5}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		streamOutput(jobID, tool, "stderr", stderrPipe, tail)
	}()
	go func() {
		defer wg.Done()
		streamOutput(jobID, tool, "stdout", stdoutPipe, nil)
	}()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", tool, err)
	}
	wg.Wait()
	if err := cmd.Wait(); err != nil {
		if tailStr := tail.String(); tailStr != "" {
			return fmt.Errorf("%s failed: %w: %s", tool, err, tailStr)
		}
		return fmt.Errorf("%s failed: %w", tool, err)
	}
	return nil
}
