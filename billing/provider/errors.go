package provider

import "errors"

var (
	ErrInvalidConfig    = errors.New("provider: invalid config")
	ErrInvalidRequest   = errors.New("provider: invalid checkout request")
	ErrCheckoutFailed   = errors.New("provider: checkout creation failed")
	ErrInvalidSignature = errors.New("provider: webhook signature verification failed")
	ErrMalformedPayload = errors.New("provider: malformed webhook payload")
)
