package plan

import (
	"context"
	"slices"
)

type memorySource struct {
	plans []Plan
}

// NewMemorySource returns a Source serving a fixed set of plans, used in
// tests and single-binary development setups.
func NewMemorySource(plans ...Plan) Source {
	return &memorySource{plans: slices.Clone(plans)}
}

func (s *memorySource) Load(ctx context.Context) ([]Plan, error) {
	return slices.Clone(s.plans), nil
}
