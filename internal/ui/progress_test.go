package ui

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestProgressTracker_StartsScanning(t *testing.T) {
	p := NewProgressTracker()

	s := p.Stats()

	assert.Equal(t, StageScanning, s.Stage)
	assert.Zero(t, s.Progress)
	assert.Zero(t, s.ETA)
}

func TestProgressTracker_ProgressAndETA(t *testing.T) {
	// Given: four files and a clock
	clock := newFakeClock()
	p := newProgressTracker(clock.Now)
	p.SetStage(StageIngesting, 4)

	// When: one file is done after ten seconds
	clock.Advance(10 * time.Second)
	p.Update(1, "a.txt")

	// Then: a quarter is done and thirty seconds remain
	s := p.Stats()
	assert.InDelta(t, 0.25, s.Progress, 1e-9)
	assert.Equal(t, 30*time.Second, s.ETA)
	assert.Equal(t, "a.txt", s.CurrentFile)
}

func TestProgressTracker_ProgressCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIngesting, 2)

	p.Update(5, "")

	s := p.Stats()
	assert.Equal(t, 1.0, s.Progress)
	assert.Zero(t, s.ETA)
}

func TestProgressTracker_SetStageResetsFiles(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageReading, 3)
	p.Update(2, "b.pdf")

	p.SetStage(StageIngesting, 3)

	s := p.Stats()
	assert.Equal(t, StageIngesting, s.Stage)
	assert.Zero(t, s.Current)
	assert.Empty(t, s.CurrentFile)
}

func TestProgressTracker_Throughput(t *testing.T) {
	// Given: a tracker on a fake clock
	clock := newFakeClock()
	p := newProgressTracker(clock.Now)

	// When: chunks arrive faster than the sample interval
	p.AddChunks(5)
	clock.Advance(100 * time.Millisecond)
	p.AddChunks(5)

	// Then: no sample is taken yet
	assert.Zero(t, p.Stats().Speed)

	// When: a full second has passed
	clock.Advance(900 * time.Millisecond)
	p.AddChunks(10)

	// Then: twenty chunks in one second
	s := p.Stats()
	assert.Equal(t, 20, s.Chunks)
	assert.InDelta(t, 20.0, s.Speed, 1e-9)
	assert.InDelta(t, 20.0, s.PeakSpeed, 1e-9)

	// And: a slower second keeps the peak
	clock.Advance(time.Second)
	p.AddChunks(4)
	s = p.Stats()
	assert.InDelta(t, 4.0, s.Speed, 1e-9)
	assert.InDelta(t, 20.0, s.PeakSpeed, 1e-9)
}

func TestProgressTracker_ErrorCounts(t *testing.T) {
	p := NewProgressTracker()

	p.AddError(ErrorEvent{IsWarn: true})
	p.AddError(ErrorEvent{IsWarn: true})
	p.AddError(ErrorEvent{})

	s := p.Stats()
	assert.Equal(t, 2, s.WarnCount)
	assert.Equal(t, 1, s.ErrorCount)
}

func TestSparkline_Render(t *testing.T) {
	s := NewSparkline(10)
	s.Add(1)
	s.Add(2)
	s.Add(4)

	assert.Equal(t, "  ▂▄█", s.Render(5))
}

func TestSparkline_DropsOldest(t *testing.T) {
	s := NewSparkline(3)
	for _, v := range []float64{8, 1, 1, 1} {
		s.Add(v)
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, "███", s.Render(0), "equal samples draw at full height")
}

func TestSparkline_EmptyAndZero(t *testing.T) {
	s := NewSparkline(4)
	assert.Equal(t, "    ", s.Render(4))

	s.Add(0)
	s.Add(-3)
	assert.Equal(t, "  ▁▁", s.Render(4))

	s.Reset()
	assert.Zero(t, s.Len())
}
