package plan

import "errors"

var (
	ErrNotFound      = errors.New("plan: not found")
	ErrDuplicateName = errors.New("plan: duplicate plan name")
	ErrInvalidLimit  = errors.New("plan: monthly token limit must be >= -1")
	ErrEmptyName     = errors.New("plan: name must not be empty")
	ErrFailedToLoad  = errors.New("plan: failed to load catalog")
	ErrNoActivePlans = errors.New("plan: catalog has no active plans")
)
