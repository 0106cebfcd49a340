package config

import "codeberg.org/mutker/perfctl/internal/errors"

const (
	ErrInvalidLogLevel    = errors.ErrorCode("invalid_log_level")
	ErrInvalidAppOverride = errors.ErrorCode("config_invalid_app_override")
)
