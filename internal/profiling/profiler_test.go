package profiling

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Enabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Heap: "heap.out"}.Enabled())
}

func TestSession_WritesAllProfiles(t *testing.T) {
	// Given: all three profiles requested
	dir := t.TempDir()
	cfg := Config{
		CPU:   filepath.Join(dir, "cpu.out"),
		Heap:  filepath.Join(dir, "heap.out"),
		Trace: filepath.Join(dir, "trace.out"),
	}

	// When: starting and stopping a session around some work
	s, err := Start(cfg)
	require.NoError(t, err)
	sum := 0
	for i := range 100000 {
		sum += i
	}
	_ = sum
	require.NoError(t, s.Stop())

	// Then: every file exists and is non-empty
	for _, p := range []string{cfg.CPU, cfg.Heap, cfg.Trace} {
		info, err := os.Stat(p)
		require.NoError(t, err, p)
		assert.Positive(t, info.Size(), p)
	}
}

func TestSession_StopTwice(t *testing.T) {
	s, err := Start(Config{Heap: filepath.Join(t.TempDir(), "heap.out")})
	require.NoError(t, err)

	require.NoError(t, s.Stop())
	assert.NoError(t, s.Stop())
}

func TestSession_NilAndEmpty(t *testing.T) {
	var s *Session
	assert.NoError(t, s.Stop())

	empty, err := Start(Config{})
	require.NoError(t, err)
	assert.NoError(t, empty.Stop())
}

func TestStart_BadPathStopsCPU(t *testing.T) {
	// Given: a valid CPU path and an unwritable trace path
	dir := t.TempDir()
	_, err := Start(Config{
		CPU:   filepath.Join(dir, "cpu.out"),
		Trace: filepath.Join(dir, "missing", "trace.out"),
	})
	require.Error(t, err)

	// Then: CPU profiling was stopped, so a new session can start it
	s, err := Start(Config{CPU: filepath.Join(dir, "cpu2.out")})
	require.NoError(t, err)
	assert.NoError(t, s.Stop())
}
