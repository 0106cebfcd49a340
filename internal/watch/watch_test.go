package watch_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/watch"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	values []string
}

func (r *recorder) handle(content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, string(content))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestFileDeliversChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "power_save")
	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0o644))

	rec := &recorder{}
	sub, err := watch.File(afero.NewOsFs(), path, rec.handle, logger.Nop())
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"1\n"}, rec.snapshot())

	// Same content again is not a change.
	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1)
}

func TestFileCreatedLater(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen")

	rec := &recorder{}
	sub, err := watch.File(afero.NewOsFs(), path, rec.handle, logger.Nop())
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, os.WriteFile(path, []byte("off\n"), 0o644))

	require.Eventually(t, func() bool {
		values := rec.snapshot()
		return len(values) > 0 && values[len(values)-1] == "off\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseStopsDelivery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power_save")
	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0o644))

	rec := &recorder{}
	sub, err := watch.File(afero.NewOsFs(), path, rec.handle, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, os.WriteFile(path, []byte("1\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestFileMissingDirectory(t *testing.T) {
	_, err := watch.File(afero.NewOsFs(), filepath.Join(t.TempDir(), "absent", "file"), func([]byte) {}, logger.Nop())
	assert.True(t, errors.HasCode(err, watch.ErrWatchFailed))

	_, err = watch.File(afero.NewOsFs(), "", func([]byte) {}, logger.Nop())
	assert.True(t, errors.HasCode(err, watch.ErrInvalidPath))
}

func TestWritesDeliversUnchangedContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power_save")
	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0o644))

	rec := &recorder{}
	sub, err := watch.Writes(afero.NewOsFs(), path, rec.handle, logger.Nop())
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, os.WriteFile(path, []byte("0\n"), 0o644))

	require.Eventually(t, func() bool {
		values := rec.snapshot()
		return len(values) > 0 && values[len(values)-1] == "0\n"
	}, 2*time.Second, 10*time.Millisecond)
}
