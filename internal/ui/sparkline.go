package ui

import "strings"

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline keeps the most recent throughput samples and draws them as a
// row of block characters scaled to the window maximum.
type Sparkline struct {
	samples []float64
	size    int
}

// NewSparkline returns a sparkline holding up to size samples.
func NewSparkline(size int) *Sparkline {
	if size <= 0 {
		size = 60
	}
	return &Sparkline{size: size}
}

// Add appends a sample, dropping the oldest when full.
func (s *Sparkline) Add(v float64) {
	if v < 0 {
		v = 0
	}
	s.samples = append(s.samples, v)
	if len(s.samples) > s.size {
		s.samples = s.samples[len(s.samples)-s.size:]
	}
}

// Len returns the number of samples held.
func (s *Sparkline) Len() int {
	return len(s.samples)
}

// Reset drops every sample.
func (s *Sparkline) Reset() {
	s.samples = s.samples[:0]
}

// Render draws the newest width samples, right-aligned and padded with
// spaces. A non-positive width draws every sample.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = s.size
	}
	window := s.samples
	if len(window) > width {
		window = window[len(window)-width:]
	}

	peak := 0.0
	for _, v := range window {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.WriteString(strings.Repeat(" ", width-len(window)))
	for _, v := range window {
		idx := 0
		if peak > 0 {
			idx = int(v / peak * float64(len(sparkBlocks)-1))
		}
		sb.WriteRune(sparkBlocks[idx])
	}
	return sb.String()
}
