package store

import "errors"

// Store-level error types
var (
	ErrInvalidRecord     = errors.New("site record must have a non-empty id")
	ErrInvalidSettingKey = errors.New("setting key cannot be empty")
	ErrSettingNotFound   = errors.New("setting not found")
)
