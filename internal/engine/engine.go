// Package engine executes workflow graphs: it validates connections, resolves
// the node subset for the requested mode, partitions it into parallel-safe
// levels, and dispatches nodes with caching and retry while tracking
// per-run state.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flowline/flowline/internal/cache"
	"github.com/flowline/flowline/internal/capability"
	"github.com/flowline/flowline/internal/dag"
	"github.com/flowline/flowline/internal/flow"
	"github.com/flowline/flowline/internal/typesys"
)

// Engine is the execution engine. All collaborators are injected; nothing is
// a process-wide singleton, so tests and tenants get isolated instances.
type Engine struct {
	caps     *capability.Registry
	types    *typesys.Registry
	cache    *cache.Cache
	store    ResultStore
	bus      *EventBus
	tracker  *StateTracker
	defaults flow.ExecutionOptions
}

// New wires an engine from its collaborators. A nil bus gets a private one.
// defaults is the baseline that zero-valued request options fall back to;
// its own zero fields fall back to DefaultOptions.
func New(caps *capability.Registry, types *typesys.Registry, c *cache.Cache, store ResultStore, bus *EventBus, defaults flow.ExecutionOptions) *Engine {
	if bus == nil {
		bus = NewEventBus()
	}
	normalize(&defaults, flow.DefaultOptions())
	return &Engine{
		caps:     caps,
		types:    types,
		cache:    c,
		store:    store,
		bus:      bus,
		tracker:  NewStateTracker(),
		defaults: defaults,
	}
}

// Defaults returns the baseline execution options.
func (e *Engine) Defaults() flow.ExecutionOptions { return e.defaults }

func (e *Engine) Bus() *EventBus                     { return e.bus }
func (e *Engine) Tracker() *StateTracker             { return e.tracker }
func (e *Engine) Cache() *cache.Cache                { return e.cache }
func (e *Engine) Capabilities() *capability.Registry { return e.caps }
func (e *Engine) Types() *typesys.Registry           { return e.types }

// Validate runs connection checking without executing anything.
func (e *Engine) Validate(nodes []flow.NodeDefinition, edges []flow.EdgeDefinition) []flow.ValidationIssue {
	return Validate(nodes, edges, e.caps, e.types)
}

// Execute runs a workflow to completion and returns the terminal snapshot.
// Pre-flight failures (graph or validation errors) return a nil result;
// runtime node failures return the partial result alongside the error, with
// everything already completed preserved and retrievable by execution id.
func (e *Engine) Execute(ctx context.Context, wf *flow.WorkflowDefinition, opts flow.ExecutionOptions) (*flow.ExecutionResult, error) {
	execID, d, order, err := e.prepare(wf, &opts)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, execID, wf, d, order, opts)
}

// Start prepares an execution synchronously, so the caller still gets every
// pre-flight error, then runs it in the background and returns its id.
func (e *Engine) Start(ctx context.Context, wf *flow.WorkflowDefinition, opts flow.ExecutionOptions) (string, error) {
	execID, d, order, err := e.prepare(wf, &opts)
	if err != nil {
		return "", err
	}
	go func() {
		if _, err := e.run(ctx, execID, wf, d, order, opts); err != nil {
			slog.Warn("execution failed", "execution_id", execID, "err", err)
		}
	}()
	return execID, nil
}

// Stop flips an in-flight execution to stopped and cancels its run context.
// Cooperative: an in-flight invocation is not interrupted.
func (e *Engine) Stop(execID string) error {
	return e.tracker.Stop(execID)
}

// prepare builds and validates the graph, resolves the execution order, and
// registers the run's state with excluded nodes already marked skipped.
func (e *Engine) prepare(wf *flow.WorkflowDefinition, opts *flow.ExecutionOptions) (string, *dag.DAG, []string, error) {
	normalize(opts, e.defaults)

	d, err := dag.Build(wf.Nodes, wf.Edges)
	if err != nil {
		return "", nil, nil, err
	}
	if issues := e.Validate(wf.Nodes, wf.Edges); len(issues) > 0 {
		return "", nil, nil, &flow.ValidationError{Issues: issues}
	}

	order, skipped, err := resolveOrder(d, *opts, e.store)
	if err != nil {
		return "", nil, nil, err
	}

	execID := flow.NewExecutionID()
	e.tracker.Create(execID, wf.Name, d.TopologicalOrder())
	e.tracker.SetOrder(execID, order)
	e.tracker.MarkSkipped(execID, skipped)
	return execID, d, order, nil
}

// run executes the resolved order level by level. Nodes within a level fan
// out to a bounded worker pool; the group wait is the barrier before the next
// level. A node failure aborts levels not yet started and leaves completed
// results untouched.
func (e *Engine) run(ctx context.Context, execID string, wf *flow.WorkflowDefinition, d *dag.DAG, order []string, opts flow.ExecutionOptions) (*flow.ExecutionResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	e.tracker.RegisterCancel(execID, cancel)
	e.tracker.SetRunning(execID)

	workers := opts.Workers
	if !opts.Parallel {
		workers = 1
	}

	r := &run{execID: execID, wf: wf, graph: d, opts: opts}
	slog.Info("execution started", "execution_id", execID, "workflow", wf.Name, "nodes", len(order), "mode", opts.Mode)

	var runErr error
	for _, level := range d.Levels(order) {
		g, gCtx := errgroup.WithContext(runCtx)
		g.SetLimit(workers)
		for _, nodeID := range level {
			nodeID := nodeID
			g.Go(func() error {
				// A sibling failure or the deadline aborts nodes that have
				// not started; in-flight ones run to the barrier.
				if gCtx.Err() != nil {
					return nil
				}
				return e.executeNode(gCtx, r, nodeID)
			})
		}
		if err := g.Wait(); err != nil {
			runErr = err
			break
		}
		if err := runCtx.Err(); err != nil {
			// The context fired between levels: no node task observed it.
			var current string
			if state, ok := e.tracker.GetState(execID); ok {
				current = state.CurrentNode
			}
			runErr = interruptError(current, err)
			break
		}
	}

	if runErr != nil {
		e.tracker.Fail(execID, runErr.Error())
		e.emit(r, "", "", flow.EventExecutionError, map[string]any{"error": runErr.Error()})
		slog.Warn("execution finished with error", "execution_id", execID, "err", runErr)
	} else {
		e.tracker.Complete(execID)
		e.emit(r, "", "", flow.EventExecutionCompleted, nil)
		slog.Info("execution completed", "execution_id", execID, "workflow", wf.Name)
	}

	result, _ := e.tracker.BuildResult(execID)
	if e.store != nil && result != nil {
		if err := e.store.Save(result); err != nil {
			// Record-keeping faults never change the run outcome.
			slog.Warn("failed to save execution record", "execution_id", execID, "err", err)
		}
	}
	return result, runErr
}

// emit publishes a lifecycle event and buffers it for replay. Publishing is
// synchronous on the dispatcher goroutine that owns the node, so per-node
// ordering is preserved.
func (e *Engine) emit(r *run, nodeID, nodeType string, typ flow.EventType, payload map[string]any) {
	ev := flow.Event{
		ID:          flow.GenerateID("ev"),
		ExecutionID: r.execID,
		NodeID:      nodeID,
		NodeType:    nodeType,
		Type:        typ,
		Payload:     payload,
		Timestamp:   time.Now(),
	}
	e.tracker.RecordEvent(r.execID, ev)
	e.bus.Publish(ev)
}

// interruptError wraps a run-context error; only real deadline expiry counts
// as a timeout, a cancelled context means the run was stopped.
func interruptError(nodeID string, err error) *flow.NodeExecutionError {
	return &flow.NodeExecutionError{
		NodeID:  nodeID,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// normalize fills zero option values from def.
func normalize(opts *flow.ExecutionOptions, def flow.ExecutionOptions) {
	if opts.Mode == "" {
		opts.Mode = def.Mode
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = def.RetryBaseDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = def.CacheTTL
	}
	if len(opts.CacheableTypes) == 0 {
		opts.CacheableTypes = def.CacheableTypes
	}
}
