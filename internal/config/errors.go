package config

import "errors"

// ErrInvalidValue indicates a configuration value outside its allowed
// range.
var ErrInvalidValue = errors.New("invalid configuration value")
