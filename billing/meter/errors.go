package meter

import "errors"

var (
	// ErrQuotaExceeded is returned when the enforcement gate denies the
	// operation. The accompanying Result carries the gate's decision.
	ErrQuotaExceeded = errors.New("meter: quota exceeded")

	// ErrOperationFailed wraps the error from the metered function.
	ErrOperationFailed = errors.New("meter: operation failed")
)
