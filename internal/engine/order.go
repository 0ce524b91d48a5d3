package engine

import (
	"fmt"

	"github.com/flowline/flowline/internal/dag"
	"github.com/flowline/flowline/internal/flow"
)

// ResultStore resolves previous execution results. The in-memory repository
// implements it; injected so RESUME can splice in incomplete ancestors.
type ResultStore interface {
	Save(res *flow.ExecutionResult) error
	Get(executionID string) (*flow.ExecutionResult, bool)
}

// resolveOrder picks the node subset for the requested mode and returns it in
// topological order, alongside the nodes excluded from the run.
func resolveOrder(d *dag.DAG, opts flow.ExecutionOptions, store ResultStore) (order, skipped []string, err error) {
	full := d.TopologicalOrder()

	switch opts.Mode {
	case flow.ModeFull, "":
		return full, nil, nil

	case flow.ModePartial:
		include := make(map[string]bool, len(opts.SelectedNodes))
		for _, id := range opts.SelectedNodes {
			if !d.Contains(id) {
				return nil, nil, &flow.GraphError{Message: fmt.Sprintf("selected node %q is not in the graph", id)}
			}
			include[id] = true
			for anc := range d.Ancestors(id) {
				include[anc] = true
			}
		}
		return filterOrder(full, include)

	case flow.ModeResume:
		idx := -1
		for i, id := range full {
			if id == opts.ResumeFrom {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, &flow.ResumeError{NodeID: opts.ResumeFrom}
		}

		include := make(map[string]bool, len(full)-idx)
		for _, id := range full[idx:] {
			include[id] = true
		}

		// Splice back ancestors the previous run never completed, re-sorted
		// by filtering the full order.
		if opts.PreviousExecutionID != "" && store != nil {
			if prev, ok := store.Get(opts.PreviousExecutionID); ok {
				done := make(map[string]bool, len(prev.Completed))
				for _, id := range prev.Completed {
					done[id] = true
				}
				for anc := range d.Ancestors(opts.ResumeFrom) {
					if !done[anc] {
						include[anc] = true
					}
				}
			}
		}
		return filterOrder(full, include)

	default:
		return nil, nil, fmt.Errorf("unknown execution mode: %q", opts.Mode)
	}
}

func filterOrder(full []string, include map[string]bool) (order, skipped []string, err error) {
	for _, id := range full {
		if include[id] {
			order = append(order, id)
		} else {
			skipped = append(skipped, id)
		}
	}
	return order, skipped, nil
}
