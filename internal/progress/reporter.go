package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalSteps is the number of forecast steps in the plan.
	TotalSteps int

	// Workers is the number of parallel step fetches.
	Workers int

	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source describes what is being downloaded (for display).
	Source string
}

// Reporter outputs human-readable progress information. The total byte
// count is unknown up front since only a subset of each remote file is
// transferred, so progress is reported in completed steps.
type Reporter struct {
	opts Options

	completedBytes atomic.Int64
	completedSteps atomic.Int32
	failedSteps    atomic.Int32
	inProgress     atomic.Int32

	mu        sync.Mutex
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.startTime = time.Now()

	fmt.Fprintf(r.opts.Output, "[gribgrab] Downloading: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[gribgrab] Steps: %d | Workers: %d\n",
		r.opts.TotalSteps,
		r.opts.Workers,
	)

	go r.updateLoop()
}

// Stop stops the progress reporter. It blocks until the final status has
// been written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// StepStarted marks a step as in progress.
func (r *Reporter) StepStarted() {
	r.inProgress.Add(1)
}

// StepCompleted marks a step as completed, recording its transferred size.
func (r *Reporter) StepCompleted(size int64) {
	r.completedBytes.Add(size)
	r.completedSteps.Add(1)
	r.inProgress.Add(-1)
}

// StepFailed marks a step as failed.
func (r *Reporter) StepFailed() {
	r.failedSteps.Add(1)
	r.inProgress.Add(-1)
}

// CompletedBytes returns the total bytes transferred so far.
func (r *Reporter) CompletedBytes() int64 {
	return r.completedBytes.Load()
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()
	defer close(r.doneCh)

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	completed := int(r.completedSteps.Load())
	failed := int(r.failedSteps.Load())
	inProgress := int(r.inProgress.Load())

	pending := r.opts.TotalSteps - completed - failed - inProgress
	if pending < 0 {
		pending = 0
	}

	fmt.Fprintf(r.opts.Output, "\r[gribgrab] Steps: %d/%d done | %d in-progress | %d pending | %s    ",
		completed,
		r.opts.TotalSteps,
		inProgress,
		pending,
		formatBytes(r.completedBytes.Load()),
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	completed := int(r.completedSteps.Load())
	failed := int(r.failedSteps.Load())
	bytes := r.completedBytes.Load()
	duration := time.Since(r.startTime)

	avgSpeed := float64(bytes) / duration.Seconds()

	fmt.Fprintf(r.opts.Output, "\r[gribgrab] Steps: %d/%d done", completed, r.opts.TotalSteps)
	if failed > 0 {
		fmt.Fprintf(r.opts.Output, " | %d failed", failed)
	}
	fmt.Fprintf(r.opts.Output, " | %s    \n", formatBytes(bytes))
	fmt.Fprintf(r.opts.Output, "[gribgrab] Total time: %s | Average speed: %s/s\n",
		formatDuration(duration),
		formatBytes(int64(avgSpeed)),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case b >= TB:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(TB))
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
