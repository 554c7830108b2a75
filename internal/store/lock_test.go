package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

func TestDataDirLock_TryLockIsExclusive(t *testing.T) {
	// Given: one holder of the data dir lock
	dir := t.TempDir()
	first := NewDataDirLock(dir)
	require.NoError(t, first.TryLock())
	assert.True(t, first.Locked())

	// When: a second handle tries to take it
	second := NewDataDirLock(dir)
	err := second.TryLock()

	// Then: it reports the directory as locked
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeIndexLocked, docerrors.GetCode(err))
	assert.True(t, docerrors.IsRetryable(err))

	// And: after release the second handle succeeds
	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestDataDirLock_UnlockWithoutLockIsNoop(t *testing.T) {
	l := NewDataDirLock(t.TempDir())
	assert.NoError(t, l.Unlock())
	assert.NoError(t, l.Unlock())
}
