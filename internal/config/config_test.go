package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/perfctl/internal/config"
	"codeberg.org/mutker/perfctl/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "perfctl.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "info"

[profile]
enabled = false
path = "/tmp/sconfig"

[sampling]
interval = "250ms"
path = "/tmp/bump_sample_rate"

[store]
path = "/tmp/state.db"
`)

	// Set environment variable to point to the test config file
	t.Setenv("PERFCTL_CONFIG", configPath)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.IsVerbose())
	assert.False(t, cfg.Profile.Enabled)
	assert.Equal(t, "/tmp/sconfig", cfg.Profile.Path)
	assert.Equal(t, 250*time.Millisecond, cfg.Sampling.Interval)
	assert.Equal(t, "/tmp/bump_sample_rate", cfg.Sampling.Path)
	assert.Equal(t, "/tmp/state.db", cfg.Store.Path)
	assert.Equal(t, config.DefaultPowerSavePath, cfg.PowerSave.Path, "unset keys keep defaults")
	assert.Equal(t, config.ActionRun, cfg.Action)
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("PERFCTL_CONFIG", "")

	cfg, err := config.Load(nil)
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel.String(), cfg.LogLevel)
	assert.True(t, cfg.Profile.Enabled)
	assert.Equal(t, config.DefaultProfilePath, cfg.Profile.Path)
	assert.Equal(t, config.DefaultFeaturePath, cfg.Sampling.Path)
	assert.Equal(t, time.Second, cfg.Sampling.Interval)
	assert.Equal(t, config.DefaultChargingGlob, cfg.Charging.Glob)
	assert.Equal(t, config.DefaultStorePath, cfg.Store.Path)
	assert.Equal(t, config.DefaultPIDPath, cfg.PID.Path)
}

func TestFlagsOverrideFile(t *testing.T) {
	configPath := writeConfig(t, `
[sampling]
interval = "5s"
`)

	cfg, err := config.Load([]string{"--interval", "2s", "--debug"}, config.WithConfigFile(configPath))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.Sampling.Interval)
	assert.True(t, cfg.IsDebug())
}

func TestEnvOverridesFile(t *testing.T) {
	configPath := writeConfig(t, `
[profile]
path = "/from/file"
`)
	t.Setenv("PERFCTL_PROFILE_PATH", "/from/env")

	cfg, err := config.Load(nil, config.WithConfigFile(configPath))
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Profile.Path)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfig(t, `
This is not a valid TOML file
`)

	_, err := config.Load(nil, config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfig(t, `
log_level = "invalid"
`)

	_, err := config.Load(nil, config.WithConfigFile(configPath))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, config.ErrInvalidLogLevel))
}

func TestInvalidInterval(t *testing.T) {
	t.Setenv("PERFCTL_CONFIG", "")

	_, err := config.Load([]string{"--interval", "0s"})
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidInterval))
}

func TestActions(t *testing.T) {
	t.Setenv("PERFCTL_CONFIG", "")

	tests := []struct {
		name   string
		args   []string
		action config.Action
	}{
		{"default", nil, config.ActionRun},
		{"toggle", []string{"--toggle"}, config.ActionToggle},
		{"toggle feature", []string{"--toggle-feature"}, config.ActionToggleFeature},
		{"status", []string{"--status"}, config.ActionStatus},
		{"history", []string{"--history", "3"}, config.ActionHistory},
		{"app override", []string{"--app-override", "org.game=on"}, config.ActionAppOverride},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.action, cfg.Action)
		})
	}
}

func TestParseAppOverride(t *testing.T) {
	name, enabled, err := config.ParseAppOverride("org.game=on")
	require.NoError(t, err)
	assert.Equal(t, "org.game", name)
	assert.True(t, enabled)

	name, enabled, err = config.ParseAppOverride(" org.game = OFF ")
	require.NoError(t, err)
	assert.Equal(t, "org.game", name)
	assert.False(t, enabled)

	for _, bad := range []string{"", "org.game", "=on", "org.game=maybe"} {
		_, _, err := config.ParseAppOverride(bad)
		assert.True(t, errors.HasCode(err, config.ErrInvalidAppOverride), bad)
	}
}
