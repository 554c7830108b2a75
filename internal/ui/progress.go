package ui

import (
	"sync"
	"time"
)

// sampleInterval is the minimum spacing of throughput samples.
const sampleInterval = 500 * time.Millisecond

// ProgressTracker accumulates the state the TUI draws. It is safe for
// concurrent use.
type ProgressTracker struct {
	mu sync.RWMutex

	stage       Stage
	current     int
	total       int
	currentFile string
	stageStart  time.Time

	chunks     int
	lastChunks int
	lastSample time.Time
	speed      float64
	peak       float64
	spark      *Sparkline
	errors     int
	warnings   int
	now        func() time.Time
}

// ProgressStats is a snapshot of a ProgressTracker.
type ProgressStats struct {
	Stage       Stage
	Current     int
	Total       int
	Progress    float64
	ETA         time.Duration
	CurrentFile string
	Chunks      int
	Speed       float64
	PeakSpeed   float64
	ErrorCount  int
	WarnCount   int
}

// NewProgressTracker creates a tracker in the scanning stage.
func NewProgressTracker() *ProgressTracker {
	return newProgressTracker(time.Now)
}

func newProgressTracker(now func() time.Time) *ProgressTracker {
	t := now()
	return &ProgressTracker{
		stage:      StageScanning,
		stageStart: t,
		lastSample: t,
		spark:      NewSparkline(60),
		now:        now,
	}
}

// SetStage switches stage and resets the file counters.
func (p *ProgressTracker) SetStage(stage Stage, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
	p.total = total
	p.current = 0
	p.currentFile = ""
	p.stageStart = p.now()
}

// Update records that current files are done and file is in progress.
func (p *ProgressTracker) Update(current int, file string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = current
	if file != "" {
		p.currentFile = file
	}
}

// AddChunks adds n ingested chunks and samples throughput in chunks/sec.
func (p *ProgressTracker) AddChunks(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks += n

	now := p.now()
	elapsed := now.Sub(p.lastSample)
	if elapsed < sampleInterval {
		return
	}
	p.speed = float64(p.chunks-p.lastChunks) / elapsed.Seconds()
	p.peak = max(p.peak, p.speed)
	p.spark.Add(p.speed)
	p.lastChunks = p.chunks
	p.lastSample = now
}

// AddError counts an error or warning.
func (p *ProgressTracker) AddError(event ErrorEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if event.IsWarn {
		p.warnings++
	} else {
		p.errors++
	}
}

// Stats returns a snapshot.
func (p *ProgressTracker) Stats() ProgressStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := ProgressStats{
		Stage:       p.stage,
		Current:     p.current,
		Total:       p.total,
		CurrentFile: p.currentFile,
		Chunks:      p.chunks,
		Speed:       p.speed,
		PeakSpeed:   p.peak,
		ErrorCount:  p.errors,
		WarnCount:   p.warnings,
	}
	if p.total > 0 {
		s.Progress = min(float64(p.current)/float64(p.total), 1)
	}
	if s.Progress > 0 && s.Progress < 1 {
		elapsed := p.now().Sub(p.stageStart)
		s.ETA = time.Duration(float64(elapsed)/s.Progress) - elapsed
	}
	return s
}

// Sparkline renders the throughput history at width.
func (p *ProgressTracker) Sparkline(width int) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.spark.Render(width)
}
