package sysfs_test

import (
	"os"
	"sync"
	"testing"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/sysfs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilePath = "/sys/class/thermal/thermal_message/sconfig"

// countingFs counts files opened for writing.
type countingFs struct {
	afero.Fs
	mu     sync.Mutex
	writes int
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		c.mu.Lock()
		c.writes++
		c.mu.Unlock()
	}
	return c.Fs.OpenFile(name, flag, perm)
}

func newWriter(t *testing.T, initial string) (*sysfs.Writer, *countingFs) {
	t.Helper()

	mem := afero.NewMemMapFs()
	if initial != "" {
		require.NoError(t, afero.WriteFile(mem, profilePath, []byte(initial), 0o644))
	}

	fs := &countingFs{Fs: mem}
	return sysfs.NewWriter(fs, logger.Nop()), fs
}

func TestRead(t *testing.T) {
	tests := []struct {
		name    string
		content string
		value   int
		ok      bool
	}{
		{"plain", "6", 6, true},
		{"trailing newline", "1\n", 1, true},
		{"whitespace", "  0 \n", 0, true},
		{"first line only", "6\nextra\n", 6, true},
		{"garbage", "abc", 0, false},
		{"empty", "\n", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newWriter(t, tt.content)
			value, ok := w.Read(profilePath)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestReadMissing(t *testing.T) {
	w, _ := newWriter(t, "")
	_, ok := w.Read(profilePath)
	assert.False(t, ok)
	assert.False(t, w.ReadFlag(profilePath))
}

func TestWriteIfChangedSkipsEqualValue(t *testing.T) {
	w, fs := newWriter(t, "0\n")

	require.NoError(t, w.WriteIfChanged(profilePath, 6))
	require.NoError(t, w.WriteIfChanged(profilePath, 6))

	assert.Equal(t, 1, fs.writes, "same value twice performs exactly one device write")
	assert.Equal(t, 1, w.Writes(profilePath))

	value, ok := w.Read(profilePath)
	require.True(t, ok)
	assert.Equal(t, 6, value)
}

func TestWriteIfChangedOverwritesUnparsable(t *testing.T) {
	w, fs := newWriter(t, "garbage")

	require.NoError(t, w.WriteIfChanged(profilePath, 0))
	assert.Equal(t, 1, fs.writes)

	w, fs = newWriter(t, "")
	require.NoError(t, w.WriteIfChanged(profilePath, 0))
	assert.Equal(t, 1, fs.writes, "absent value is written unconditionally")
}

func TestWriteFailureIsReported(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, profilePath, []byte("0"), 0o644))
	w := sysfs.NewWriter(afero.NewReadOnlyFs(mem), logger.Nop())

	err := w.WriteIfChanged(profilePath, 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, sysfs.ErrWriteFailed))
	assert.Equal(t, 0, w.Writes(profilePath))

	assert.NoError(t, w.WriteIfChanged(profilePath, 0), "unchanged value needs no write")
}

func TestNegativeValueRejected(t *testing.T) {
	w, fs := newWriter(t, "0")
	err := w.WriteIfChanged(profilePath, -1)
	assert.True(t, errors.HasCode(err, sysfs.ErrInvalidValue))
	assert.Equal(t, 0, fs.writes)
}

func TestWriteFlag(t *testing.T) {
	w, fs := newWriter(t, "0")

	require.NoError(t, w.WriteFlag(profilePath, true))
	assert.True(t, w.ReadFlag(profilePath))
	require.NoError(t, w.WriteFlag(profilePath, true))
	require.NoError(t, w.WriteFlag(profilePath, false))
	assert.False(t, w.ReadFlag(profilePath))
	assert.Equal(t, 2, fs.writes)
}

func TestConcurrentWritesConverge(t *testing.T) {
	w, fs := newWriter(t, "0")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, w.WriteIfChanged(profilePath, 6))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fs.writes, "read-compare-write is atomic per path")
}
