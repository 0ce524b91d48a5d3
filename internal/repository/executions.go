package repository

import (
	"sort"

	"github.com/flowline/flowline/internal/flow"
)

// ExecutionStore keeps terminal execution results, keyed by execution id.
// It backs resume lookups and the query API.
type ExecutionStore struct {
	store *Store[*flow.ExecutionResult]
}

func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		store: NewStore(func(r *flow.ExecutionResult) string { return r.ExecutionID }),
	}
}

// Save records a terminal result. Saving the same execution id overwrites.
func (s *ExecutionStore) Save(res *flow.ExecutionResult) error {
	s.store.Set(res)
	return nil
}

// Get returns the result for an execution id.
func (s *ExecutionStore) Get(executionID string) (*flow.ExecutionResult, bool) {
	res, err := s.store.Get(executionID)
	if err != nil {
		return nil, false
	}
	return res, true
}

// List returns all results, most recently started first.
func (s *ExecutionStore) List() []*flow.ExecutionResult {
	out := s.store.All()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}
