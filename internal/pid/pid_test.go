package pid_test

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/pid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestAcquireIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "perfctl.pid")

	lock, err := pid.Acquire(path)
	require.NoError(t, err)

	got, err := pid.Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)

	_, err = pid.Acquire(path)
	assert.True(t, errors.HasCode(err, errors.ErrAlreadyRunning))

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	lock, err = pid.Acquire(path)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestStaleFileIsReused(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfctl.pid")
	require.NoError(t, os.WriteFile(path, []byte("999999999\n"), 0o644))

	lock, err := pid.Acquire(path)
	require.NoError(t, err)
	defer lock.Release()

	got, err := pid.Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), got)
}

func TestSignal(t *testing.T) {
	dir := t.TempDir()

	err := pid.Signal(filepath.Join(dir, "absent.pid"), unix.Signal(0))
	assert.True(t, errors.HasCode(err, errors.ErrNotRunning))

	self := filepath.Join(dir, "self.pid")
	require.NoError(t, os.WriteFile(self, []byte(strconv.Itoa(os.Getpid())), 0o644))
	assert.NoError(t, pid.Signal(self, unix.Signal(0)))

	garbage := filepath.Join(dir, "garbage.pid")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pid"), 0o644))
	err = pid.Signal(garbage, unix.Signal(0))
	assert.True(t, errors.HasCode(err, errors.ErrNotRunning))
}
