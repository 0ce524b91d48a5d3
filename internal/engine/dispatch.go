package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowline/flowline/internal/cache"
	"github.com/flowline/flowline/internal/capability"
	"github.com/flowline/flowline/internal/flow"
	"github.com/flowline/flowline/internal/typesys"
)

// run carries the per-execution context shared by node tasks.
type run struct {
	execID string
	wf     *flow.WorkflowDefinition
	graph  graphView
	opts   flow.ExecutionOptions
}

// graphView is the slice of the DAG the dispatcher needs.
type graphView interface {
	Node(id string) *flow.NodeDefinition
	InEdges(nodeID string) []flow.EdgeDefinition
}

// executeNode drives one node through its lifecycle: gather inputs, consult
// the cache, invoke with retry, record the outcome. The returned error is
// always a *flow.NodeExecutionError.
func (e *Engine) executeNode(ctx context.Context, r *run, nodeID string) error {
	node := r.graph.Node(nodeID)
	started := time.Now()

	e.tracker.SetNodeRunning(r.execID, nodeID)
	e.emit(r, nodeID, node.Type, flow.EventNodeStarted, nil)

	fail := func(inputs map[string]any, attempts int, cause error) error {
		nodeErr := &flow.NodeExecutionError{
			NodeID:   nodeID,
			NodeType: node.Type,
			Inputs:   inputs,
			Timeout:  errors.Is(cause, context.DeadlineExceeded),
			Err:      cause,
		}
		now := time.Now()
		e.tracker.RecordResult(r.execID, &flow.NodeExecutionResult{
			NodeID:      nodeID,
			NodeType:    node.Type,
			Status:      flow.NodeStatusFailed,
			Attempts:    attempts,
			Error:       nodeErr.Error(),
			StartedAt:   started,
			CompletedAt: now,
			Duration:    now.Sub(started),
		})
		e.tracker.AppendLog(r.execID, nodeID, "error", nodeErr.Error())
		e.emit(r, nodeID, node.Type, flow.EventNodeError, map[string]any{"error": nodeErr.Error()})
		return nodeErr
	}

	inputs, err := e.gatherInputs(r, nodeID)
	if err != nil {
		return fail(nil, 0, err)
	}

	cacheable := r.opts.UseCache && e.cacheableType(r.opts, node.Type)
	var key string
	if cacheable {
		key = cache.Fingerprint(node.Type, nodeID, inputs, node.Config)
		if outputs, ok := e.cache.Get(key); ok {
			now := time.Now()
			e.tracker.RecordResult(r.execID, &flow.NodeExecutionResult{
				NodeID:      nodeID,
				NodeType:    node.Type,
				Status:      flow.NodeStatusCached,
				Outputs:     outputs,
				Cached:      true,
				StartedAt:   started,
				CompletedAt: now,
				Duration:    now.Sub(started),
			})
			e.tracker.AppendLog(r.execID, nodeID, "info", "served from cache")
			e.emit(r, nodeID, node.Type, flow.EventNodeCached, map[string]any{"outputs": outputs})
			return nil
		}
	}

	cap, ok := e.caps.Get(node.Type)
	if !ok {
		return fail(inputs, 0, fmt.Errorf("unknown capability: %q", node.Type))
	}

	outputs, attempts, err := e.invokeWithRetry(ctx, cap, inputs, node.Config, r.opts)
	if err != nil {
		return fail(inputs, attempts, err)
	}

	if cacheable {
		e.cache.Set(key, outputs, r.opts.CacheTTL)
	}

	now := time.Now()
	e.tracker.RecordResult(r.execID, &flow.NodeExecutionResult{
		NodeID:      nodeID,
		NodeType:    node.Type,
		Status:      flow.NodeStatusCompleted,
		Outputs:     outputs,
		Attempts:    attempts,
		StartedAt:   started,
		CompletedAt: now,
		Duration:    now.Sub(started),
	})
	e.tracker.AppendLog(r.execID, nodeID, "info",
		fmt.Sprintf("completed in %s (%d attempt(s))", now.Sub(started).Round(time.Millisecond), attempts))
	e.emit(r, nodeID, node.Type, flow.EventNodeCompleted, map[string]any{"outputs": outputs})
	return nil
}

// gatherInputs builds the node's input map from its upstream nodes' recorded
// outputs. A skipped or never-run upstream contributes nothing, so the map
// may be partial; capabilities must tolerate missing keys. Typed port pairs
// are converted on the way in, and a conversion failure escalates into the
// node's execution error.
func (e *Engine) gatherInputs(r *run, nodeID string) (map[string]any, error) {
	inputs := make(map[string]any)
	state, ok := e.tracker.GetState(r.execID)
	if !ok {
		return inputs, nil
	}
	for _, edge := range r.graph.InEdges(nodeID) {
		res, ok := state.NodeResults[edge.From]
		if !ok || res.Outputs == nil {
			continue
		}

		if edge.FromPort == "" {
			if edge.ToPort != "" {
				inputs[edge.ToPort] = res.Outputs
				continue
			}
			for k, v := range res.Outputs {
				inputs[k] = v
			}
			continue
		}

		value, ok := res.Outputs[edge.FromPort]
		if !ok {
			continue
		}
		value, err := e.convertForEdge(r, edge, value)
		if err != nil {
			return nil, err
		}
		key := edge.ToPort
		if key == "" {
			key = edge.FromPort
		}
		inputs[key] = value
	}
	return inputs, nil
}

// convertForEdge applies the type engine when both endpoints resolve to typed
// ports. Untyped or universal endpoints pass values through untouched.
func (e *Engine) convertForEdge(r *run, edge flow.EdgeDefinition, value any) (any, error) {
	srcType := e.portType(r, edge.From, edge.FromPort, false)
	dstType := e.portType(r, edge.To, edge.ToPort, true)
	if srcType == "" || dstType == "" || srcType == dstType ||
		srcType == typesys.Any || dstType == typesys.Any {
		return value, nil
	}
	converted, err := e.types.Convert(value, srcType, dstType)
	if err != nil {
		return nil, fmt.Errorf("edge %s→%s: %w", edge.From, edge.To, err)
	}
	return converted, nil
}

func (e *Engine) portType(r *run, nodeID, portID string, input bool) string {
	node := r.graph.Node(nodeID)
	if node == nil {
		return ""
	}
	cap, ok := e.caps.Get(node.Type)
	if !ok {
		return ""
	}
	meta := cap.Metadata()
	ports := meta.Outputs
	if input {
		ports = meta.Inputs
	}
	if portID == "" {
		if len(ports) == 0 {
			return ""
		}
		return ports[0].Type
	}
	for _, p := range ports {
		if p.ID == portID {
			return p.Type
		}
	}
	return ""
}

// invokeWithRetry calls the capability up to MaxRetries times with a linear
// backoff (base × attempt number) between attempts. The deadline cuts the
// loop short; the in-flight invocation itself is not interrupted.
func (e *Engine) invokeWithRetry(ctx context.Context, cap capability.Capability, inputs, config map[string]any, opts flow.ExecutionOptions) (map[string]any, int, error) {
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		attempts = attempt
		outputs, err := invokeOnce(ctx, cap, inputs, config)
		if err == nil {
			return outputs, attempts, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, attempts, ctx.Err()
		}
		if attempt < opts.MaxRetries {
			if !sleepCtx(ctx, opts.RetryBaseDelay*time.Duration(attempt)) {
				return nil, attempts, ctx.Err()
			}
		}
	}
	return nil, attempts, lastErr
}

// invokeOnce runs the capability on its own goroutine and returns early when
// the deadline fires. A stuck invocation keeps running on that goroutine;
// best-effort by design, not true cancellation.
func invokeOnce(ctx context.Context, cap capability.Capability, inputs, config map[string]any) (map[string]any, error) {
	type invokeResult struct {
		outputs map[string]any
		err     error
	}
	ch := make(chan invokeResult, 1)
	go func() {
		outputs, err := cap.Invoke(ctx, inputs, config)
		ch <- invokeResult{outputs, err}
	}()
	select {
	case res := <-ch:
		return res.outputs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sleepCtx waits for d, returning false if the context fires first. Backoff
// sleeps are local to one node's task and never block sibling nodes.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) cacheableType(opts flow.ExecutionOptions, nodeType string) bool {
	if len(opts.CacheableTypes) == 0 {
		return true // all types cacheable unless an allowlist is configured
	}
	for _, t := range opts.CacheableTypes {
		if t == nodeType {
			return true
		}
	}
	return false
}
