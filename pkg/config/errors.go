package config

import "errors"

var (
	ErrNilPointer    = errors.New("config: destination must be a non-nil pointer")
	ErrFailedToParse = errors.New("config: failed to parse environment variables")
)
