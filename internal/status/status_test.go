package status_test

import (
	"testing"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/profile"
	"codeberg.org/mutker/perfctl/internal/status"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statusPath = "/run/perfctl/status.yaml"

func TestPublishAndRead(t *testing.T) {
	fs := afero.NewMemMapFs()
	pub := status.NewPublisher(fs, statusPath, logger.Nop())

	pub.ProfileChanged(profile.Performance, true)
	pub.RaiseIndicator()
	pub.FeatureChanged(true)

	doc, err := status.Read(fs, statusPath)
	require.NoError(t, err)

	assert.Equal(t, "performance", doc.Profile)
	assert.Equal(t, 6, doc.Code)
	assert.True(t, doc.Available)
	assert.True(t, doc.PerformanceActive)
	assert.True(t, doc.FeatureGlobal)
	assert.Equal(t, uint64(3), doc.Revision)
	assert.False(t, doc.UpdatedAt.IsZero())
	assert.Equal(t, pub.Snapshot().Revision, doc.Revision)

	exists, err := afero.Exists(fs, statusPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIndicatorCancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	pub := status.NewPublisher(fs, statusPath, logger.Nop())

	pub.RaiseIndicator()
	pub.CancelIndicator()
	pub.ProfileChanged(profile.Unknown, false)

	doc, err := status.Read(fs, statusPath)
	require.NoError(t, err)
	assert.False(t, doc.PerformanceActive)
	assert.False(t, doc.Available)
	assert.Equal(t, "unknown", doc.Profile)
	assert.Equal(t, -1, doc.Code)
}

func TestReadErrors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := status.Read(fs, statusPath)
	assert.True(t, errors.HasCode(err, errors.ErrNotRunning))

	require.NoError(t, afero.WriteFile(fs, statusPath, []byte("profile: [unterminated"), 0o644))
	_, err = status.Read(fs, statusPath)
	assert.True(t, errors.HasCode(err, status.ErrDecode))

	for _, content := range []string{
		"profile: turbo\ncode: 6\n",
		"profile: performance\ncode: 0\n",
	} {
		require.NoError(t, afero.WriteFile(fs, statusPath, []byte(content), 0o644))
		_, err = status.Read(fs, statusPath)
		assert.True(t, errors.HasCode(err, status.ErrDecode), content)
	}

	require.NoError(t, afero.WriteFile(fs, statusPath, []byte("profile: Performance\ncode: 6\n"), 0o644))
	doc, err := status.Read(fs, statusPath)
	require.NoError(t, err)
	assert.Equal(t, 6, doc.Code)
}

func TestWriteFailureKeepsState(t *testing.T) {
	pub := status.NewPublisher(afero.NewReadOnlyFs(afero.NewMemMapFs()), statusPath, logger.Nop())

	pub.ProfileChanged(profile.Default, true)

	assert.Equal(t, "default", pub.Snapshot().Profile)
}
