package sysfs

import "codeberg.org/mutker/perfctl/internal/errors"

const (
	ErrReadFailed   = errors.ErrorCode("sysfs_read_failed")
	ErrParseFailed  = errors.ErrorCode("sysfs_parse_failed")
	ErrWriteFailed  = errors.ErrorCode("sysfs_write_failed")
	ErrInvalidValue = errors.ErrorCode("sysfs_invalid_value")
)
