package config

import "errors"

var (
	// ErrInvalidConfig marks a configuration that failed Validate.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig marks a failure reading the YAML file or environment.
	ErrLoadConfig = errors.New("load config failed")
	// ErrUnknownBackend marks a ranked_store or record_store value with no
	// matching adapter. It is always reported together with ErrInvalidConfig.
	ErrUnknownBackend = errors.New("unknown backend")
)
