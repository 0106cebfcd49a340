package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComponentLogger(t *testing.T) {
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetLogLevel(logger.WarnLevel) })

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "power").With("battery_saver")
	log.Info().Int("code", 6).Msg("applied")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "battery_saver", entry["component"])
	assert.EqualValues(t, 6, entry["code"])
	assert.Equal(t, "applied", entry["message"])
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "sysfs")

	err := errors.New().WithData(errors.ErrInvalidPath, "/sys/x")
	log.ErrorWithCode(err).Msg("write failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "invalid_path", entry["error_code"])
	assert.Equal(t, "Invalid path: /sys/x", entry["error_message"])
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Debug().Str("k", "v").Msg("ignored")
		log.With("x").Error().Send()
	})
}
