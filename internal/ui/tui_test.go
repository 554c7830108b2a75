package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))

	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestIngestModel_View(t *testing.T) {
	// Given: a tracker halfway through ingestion
	tracker := NewProgressTracker()
	tracker.SetStage(StageIngesting, 4)
	tracker.Update(2, "docs/handbook.pdf")
	m := newIngestModel(tracker, "./docs", NoColorStyles())

	// When: rendering
	view := m.View()

	// Then: header, stages, counts and file are shown
	assert.Contains(t, view, "docrag ingest • ./docs")
	assert.Contains(t, view, "● Scanning")
	assert.Contains(t, view, "● Reading")
	assert.Contains(t, view, "Ingesting")
	assert.Contains(t, view, "2 / 4 files")
	assert.Contains(t, view, "docs/handbook.pdf")
	assert.Contains(t, view, "q to quit")
}

func TestIngestModel_StatusLineCounts(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.AddError(ErrorEvent{IsWarn: true})
	tracker.AddError(ErrorEvent{})
	m := newIngestModel(tracker, "", NoColorStyles())

	view := m.View()

	assert.Contains(t, view, "1 skipped")
	assert.Contains(t, view, "1 failed")
}

func TestIngestModel_CompleteQuits(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "", NoColorStyles())

	_, cmd := m.Update(completeMsg(CompletionStats{Documents: 2, Chunks: 9, Vectors: 9, Duration: 65 * time.Second, Warnings: 1}))

	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	view := m.View()
	assert.Contains(t, view, "Ingestion complete")
	assert.Contains(t, view, "Documents: 2")
	assert.Contains(t, view, "1m 5s")
	assert.Contains(t, view, "1 files skipped")
}

func TestIngestModel_QuitKey(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "", NoColorStyles())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})

	require.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", m.View())
}

func TestIngestModel_WindowResize(t *testing.T) {
	m := newIngestModel(NewProgressTracker(), "", NoColorStyles())

	m.Update(tea.WindowSizeMsg{Width: 30, Height: 10})

	assert.Equal(t, 30, m.width)
	assert.Equal(t, 20, m.bar.Width)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "3m", formatDuration(3*time.Minute))
	assert.Equal(t, "3m 5s", formatDuration(185*time.Second))
	assert.Equal(t, "1h 2m", formatDuration(62*time.Minute))
}

func TestTruncatePath(t *testing.T) {
	assert.Equal(t, "short.txt", truncatePath("short.txt", 20))
	assert.Equal(t, "...ep/file.txt", truncatePath("a/very/deep/file.txt", 14))
	assert.Equal(t, "...", truncatePath("abcdef", 2))
}
