package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_Patterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		isDir   bool
		want    bool
	}{
		{"extension", "*.log", "build.log", false, true},
		{"extension nested", "*.log", "logs/app/build.log", false, true},
		{"extension miss", "*.log", "build.md", false, false},
		{"name matches any level", "drafts", "docs/drafts/a.md", false, true},
		{"dir only matches dir", "drafts/", "drafts", true, true},
		{"dir only skips file", "drafts/", "drafts", false, false},
		{"dir only covers children", "drafts/", "drafts/a.md", false, true},
		{"anchored at root", "/notes.md", "notes.md", false, true},
		{"anchored not nested", "/notes.md", "sub/notes.md", false, false},
		{"inner slash anchors", "docs/old", "docs/old", true, true},
		{"inner slash not nested", "docs/old", "x/docs/old", true, false},
		{"anchored dir covers children", "docs/old/", "docs/old/a.txt", false, true},
		{"double star prefix", "**/tmp", "a/b/tmp", true, true},
		{"double star suffix", "archive/**", "archive/2020/a.txt", false, true},
		{"question mark", "v?.md", "v1.md", false, true},
		{"class", "[ab].txt", "b.txt", false, true},
		{"negated class", "[!ab].txt", "c.txt", false, true},
		{"escaped hash", `\#notes`, "#notes", false, true},
		{"regex metachar literal", "a+b.txt", "a+b.txt", false, true},
		{"regex metachar no widen", "a+b.txt", "aab.txt", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.pattern)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatcher_LastMatchWins(t *testing.T) {
	// Given: an exclusion followed by a re-inclusion
	m := New("*.md", "!keep.md")

	// Then: the later negation re-includes only its file
	assert.True(t, m.Match("drop.md", false))
	assert.False(t, m.Match("keep.md", false))
}

func TestMatcher_SkipsBlankAndComments(t *testing.T) {
	m := New("", "   ", "# comment", "*.bak")

	assert.Equal(t, 1, m.Len())
	assert.False(t, m.Match(".", true))
	assert.False(t, m.Match("", false))
}

func TestMatcher_LoadFile(t *testing.T) {
	// Given: a .docragignore in the root
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("# local\nscratch/\n*.draft.md\n"), 0o644))
	m := New("*.log")

	// When: loading it
	require.NoError(t, m.LoadFile(root))

	// Then: its patterns join the existing ones
	assert.Equal(t, 3, m.Len())
	assert.True(t, m.Match(filepath.Join("scratch", "a.txt"), false))
	assert.True(t, m.Match("plan.draft.md", false))
	assert.True(t, m.Match("run.log", false))
}

func TestMatcher_LoadFileMissing(t *testing.T) {
	m := New()

	require.NoError(t, m.LoadFile(t.TempDir()))
	assert.Equal(t, 0, m.Len())
}
