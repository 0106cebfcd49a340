package power

import "codeberg.org/mutker/perfctl/internal/errors"

const (
	ErrApplyProfile = errors.ErrApplyProfile
	ErrProfilesOff  = errors.ErrProfilesOff
	ErrMissingDep   = errors.ErrorCode("power_missing_dependency")
	ErrSubscribe    = errors.ErrorCode("power_subscribe_failed")
	ErrSignalFailed = errors.ErrorCode("power_signal_failed")
)
