package subscription

import "errors"

var (
	// ErrNoFreePlan means the deployment has no active Free plan to
	// auto-provision onto. Operational misconfiguration, not a user
	// error; surfaced upstream as a 500-class failure.
	ErrNoFreePlan = errors.New("subscription: no active Free plan configured")

	ErrNotFound      = errors.New("subscription: not found")
	ErrAlreadyActive = errors.New("subscription: user already has an active subscription")
	ErrNotExpired    = errors.New("subscription: current period has not ended")
)
