package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docrag/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a version command
	newTestEnv(t)

	// When: executing without flags
	out := mustRun(t, "version")

	// Then: it should output version string
	assert.Contains(t, out, "docrag", "Output should contain program name")
	assert.Contains(t, out, version.Version, "Output should contain version")
	assert.Contains(t, out, "commit", "Output should contain commit info")
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	newTestEnv(t)

	out := mustRun(t, "version", "--short")

	assert.Equal(t, version.Version, strings.TrimSpace(out), "Short output should be just version")
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	// Given: a version command with --json flag
	newTestEnv(t)

	// When: executing with --json
	out := mustRun(t, "version", "--json")

	// Then: it should output valid JSON with all fields
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info), "Output should be valid JSON")
	assert.Equal(t, version.Version, info["version"])
	for _, key := range []string{"commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, info, key)
	}
}
