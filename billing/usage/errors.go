package usage

import "errors"

var (
	ErrNegativeTokens = errors.New("usage: tokens must be non-negative")
	ErrEmptyEndpoint  = errors.New("usage: endpoint must not be empty")
)
