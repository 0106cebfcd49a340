package sampling

import "codeberg.org/mutker/perfctl/internal/errors"

const (
	ErrForegroundFailed = errors.ErrorCode("sampling_foreground_failed")
	ErrReconcileFailed  = errors.ErrorCode("sampling_reconcile_failed")
	ErrInvalidInterval  = errors.ErrInvalidInterval
	ErrMissingDep       = errors.ErrorCode("sampling_missing_dependency")
)
