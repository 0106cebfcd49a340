package errors_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/perfctl/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInvalidArgument)
	assert.Equal(t, "Invalid argument provided", err.Error())

	err = errFactory.Wrap(errors.ErrApplyProfile, fmt.Errorf("device busy"))
	assert.Equal(t, "Failed to apply profile: device busy", err.Error())

	err = errFactory.WithData(errors.ErrInvalidPath, "/sys/foo")
	assert.Equal(t, "Invalid path: /sys/foo", err.Error())

	assert.Equal(t, "custom", errFactory.WithMessage(errors.ErrInternal, "custom").Error())
	assert.Equal(t, "some_unknown_code", errors.GetErrorMessage("some_unknown_code"))
}

func TestHasCode(t *testing.T) {
	errFactory := errors.New()
	inner := errFactory.New(errors.ErrAlreadyRunning)
	outer := errFactory.Wrap(errors.ErrApplyProfile, inner)

	assert.True(t, errors.HasCode(outer, errors.ErrApplyProfile))
	assert.True(t, errors.HasCode(outer, errors.ErrAlreadyRunning))
	assert.False(t, errors.HasCode(outer, errors.ErrNotRunning))
	assert.False(t, errors.HasCode(fmt.Errorf("plain"), errors.ErrInternal))
	assert.False(t, errors.HasCode(nil, errors.ErrInternal))
}
