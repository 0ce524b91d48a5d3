package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowline/flowline/internal/cache"
	"github.com/flowline/flowline/internal/capability"
	"github.com/flowline/flowline/internal/flow"
	"github.com/flowline/flowline/internal/repository"
	"github.com/flowline/flowline/internal/typesys"
)

// stubCap is a scriptable capability that counts its invocations.
type stubCap struct {
	meta   capability.Metadata
	invoke func(ctx context.Context, inputs, config map[string]any) (map[string]any, error)
	calls  atomic.Int64
}

func (s *stubCap) Metadata() capability.Metadata { return s.meta }

func (s *stubCap) Invoke(ctx context.Context, inputs, config map[string]any) (map[string]any, error) {
	s.calls.Add(1)
	return s.invoke(ctx, inputs, config)
}

// emitStub is a root capability producing its configured value.
func emitStub() *stubCap {
	return &stubCap{
		meta: capability.Metadata{
			Type:    "emit",
			Outputs: []capability.Port{{ID: "value", Name: "Value", Type: "any"}},
		},
		invoke: func(_ context.Context, _, config map[string]any) (map[string]any, error) {
			return map[string]any{"value": config["value"]}, nil
		},
	}
}

// passStub echoes its "value" input.
func passStub(typeKey string) *stubCap {
	return &stubCap{
		meta: capability.Metadata{
			Type:    typeKey,
			Inputs:  []capability.Port{{ID: "value", Name: "Value", Type: "any"}},
			Outputs: []capability.Port{{ID: "value", Name: "Value", Type: "any"}},
		},
		invoke: func(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
			return map[string]any{"value": inputs["value"]}, nil
		},
	}
}

func newTestEngine(t *testing.T, stubs ...*stubCap) *Engine {
	t.Helper()
	caps := capability.NewRegistry()
	for _, s := range stubs {
		caps.Register(s)
	}
	return New(caps, typesys.NewRegistry(), cache.New(16), repository.NewExecutionStore(), nil, flow.DefaultOptions())
}

// fastOpts keeps retry and timeout delays out of test runtime.
func fastOpts() flow.ExecutionOptions {
	return flow.ExecutionOptions{
		Mode:           flow.ModeFull,
		Parallel:       true,
		Workers:        4,
		MaxRetries:     1,
		RetryBaseDelay: time.Millisecond,
		Timeout:        5 * time.Second,
	}
}

func linearWorkflow() *flow.WorkflowDefinition {
	return &flow.WorkflowDefinition{
		Name: "linear",
		Nodes: []flow.NodeDefinition{
			{ID: "a", Type: "emit", Config: map[string]any{"value": 2}},
			{ID: "b", Type: "double"},
			{ID: "c", Type: "collect"},
		},
		Edges: []flow.EdgeDefinition{
			{From: "a", FromPort: "value", To: "b", ToPort: "value"},
			{From: "b", FromPort: "value", To: "c", ToPort: "value"},
		},
	}
}

func TestExecuteLinearWorkflow(t *testing.T) {
	double := passStub("double")
	double.invoke = func(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
		n, _ := inputs["value"].(int)
		return map[string]any{"value": n * 2}, nil
	}
	collect := passStub("collect")
	eng := newTestEngine(t, emitStub(), double, collect)

	res, err := eng.Execute(context.Background(), linearWorkflow(), fastOpts())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Status != flow.ExecutionStatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
	if want := []string{"a", "b", "c"}; len(res.Order) != 3 || res.Order[0] != want[0] || res.Order[1] != want[1] || res.Order[2] != want[2] {
		t.Errorf("order = %v, want %v", res.Order, want)
	}
	if len(res.Completed) != 3 || len(res.Failed) != 0 || len(res.Skipped) != 0 {
		t.Errorf("completed/failed/skipped = %v/%v/%v", res.Completed, res.Failed, res.Skipped)
	}
	if got := res.NodeOutputs["c"]["value"]; got != 4 {
		t.Errorf("final value = %v, want 4", got)
	}
	for _, id := range []string{"a", "b", "c"} {
		nr := res.NodeResults[id]
		if nr == nil || nr.Status != flow.NodeStatusCompleted || nr.Attempts != 1 {
			t.Errorf("node %s result = %+v, want completed in 1 attempt", id, nr)
		}
	}
	if res.Duration <= 0 || res.CompletedAt.Before(res.StartedAt) {
		t.Errorf("timing not recorded: started=%v completed=%v", res.StartedAt, res.CompletedAt)
	}
}

func TestExecuteRejectsIncompatibleConnection(t *testing.T) {
	producer := &stubCap{
		meta: capability.Metadata{
			Type:    "objsrc",
			Outputs: []capability.Port{{ID: "data", Type: "object"}},
		},
		invoke: func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
			return map[string]any{"data": map[string]any{}}, nil
		},
	}
	consumer := &stubCap{
		meta: capability.Metadata{
			Type:    "numsink",
			Inputs:  []capability.Port{{ID: "n", Type: "number"}},
			Outputs: []capability.Port{{ID: "n", Type: "number"}},
		},
		invoke: func(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
			return inputs, nil
		},
	}
	eng := newTestEngine(t, producer, consumer)

	wf := &flow.WorkflowDefinition{
		Name: "bad",
		Nodes: []flow.NodeDefinition{
			{ID: "src", Type: "objsrc"},
			{ID: "dst", Type: "numsink"},
		},
		Edges: []flow.EdgeDefinition{{From: "src", FromPort: "data", To: "dst", ToPort: "n"}},
	}

	res, err := eng.Execute(context.Background(), wf, fastOpts())
	var verr *flow.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if res != nil {
		t.Error("pre-flight failure should not produce a result")
	}
	if len(verr.Issues) != 1 || verr.Issues[0].Kind != flow.IssueConnection {
		t.Fatalf("issues = %+v, want one connection issue", verr.Issues)
	}
	issue := verr.Issues[0]
	if issue.SourceType != "object" || issue.TargetType != "number" {
		t.Errorf("issue names %s→%s, want object→number", issue.SourceType, issue.TargetType)
	}
	if producer.calls.Load() != 0 || consumer.calls.Load() != 0 {
		t.Error("no node may run when validation fails")
	}
}

func TestExecutePartialIncludesAncestors(t *testing.T) {
	pass := passStub("pass")
	eng := newTestEngine(t, emitStub(), pass)

	// Chain a→b→c plus an unrelated island x.
	wf := &flow.WorkflowDefinition{
		Name: "partial",
		Nodes: []flow.NodeDefinition{
			{ID: "a", Type: "emit", Config: map[string]any{"value": 1}},
			{ID: "b", Type: "pass"},
			{ID: "c", Type: "pass"},
			{ID: "x", Type: "emit", Config: map[string]any{"value": 9}},
		},
		Edges: []flow.EdgeDefinition{
			{From: "a", FromPort: "value", To: "b", ToPort: "value"},
			{From: "b", FromPort: "value", To: "c", ToPort: "value"},
		},
	}

	opts := fastOpts()
	opts.Mode = flow.ModePartial
	opts.SelectedNodes = []string{"c"}

	res, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Order) != 3 || res.Order[0] != "a" || res.Order[2] != "c" {
		t.Errorf("order = %v, want [a b c]", res.Order)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "x" {
		t.Errorf("skipped = %v, want [x]", res.Skipped)
	}
	if res.NodeResults["x"] != nil {
		t.Error("skipped node must not have a result")
	}
	if res.Status != flow.ExecutionStatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
}

func TestExecutePartialUnknownSelection(t *testing.T) {
	eng := newTestEngine(t, emitStub())
	wf := &flow.WorkflowDefinition{
		Name:  "partial",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "emit"}},
	}
	opts := fastOpts()
	opts.Mode = flow.ModePartial
	opts.SelectedNodes = []string{"ghost"}

	_, err := eng.Execute(context.Background(), wf, opts)
	var gerr *flow.GraphError
	if !errors.As(err, &gerr) {
		t.Fatalf("err = %v, want GraphError", err)
	}
}

func TestExecuteCacheHit(t *testing.T) {
	counted := emitStub()
	counted.meta.Type = "counted"
	eng := newTestEngine(t, counted)

	wf := &flow.WorkflowDefinition{
		Name:  "cached",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "counted", Config: map[string]any{"value": 7}}},
	}
	opts := fastOpts()
	opts.UseCache = true
	opts.CacheTTL = time.Hour

	first, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if first.NodeResults["a"].Status != flow.NodeStatusCompleted {
		t.Fatalf("first run status = %s", first.NodeResults["a"].Status)
	}

	second, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	nr := second.NodeResults["a"]
	if nr.Status != flow.NodeStatusCached || !nr.Cached {
		t.Errorf("second run status = %s (cached=%v), want cached", nr.Status, nr.Cached)
	}
	if got := second.NodeOutputs["a"]["value"]; got != 7 {
		t.Errorf("cached output = %v, want 7", got)
	}
	if counted.calls.Load() != 1 {
		t.Errorf("capability invoked %d times, want 1", counted.calls.Load())
	}
	// Cached nodes still count as completed for downstream purposes.
	if len(second.Completed) != 1 {
		t.Errorf("completed = %v, want [a]", second.Completed)
	}
}

func TestExecuteCacheExpiryReinvokes(t *testing.T) {
	counted := emitStub()
	counted.meta.Type = "counted"
	eng := newTestEngine(t, counted)

	wf := &flow.WorkflowDefinition{
		Name:  "expiring",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "counted", Config: map[string]any{"value": 7}}},
	}
	opts := fastOpts()
	opts.UseCache = true
	opts.CacheTTL = 50 * time.Millisecond

	if _, err := eng.Execute(context.Background(), wf, opts); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	second, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if !second.NodeResults["a"].Cached {
		t.Fatal("second run within the TTL should hit the cache")
	}

	time.Sleep(80 * time.Millisecond)

	third, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("third Execute: %v", err)
	}
	if third.NodeResults["a"].Cached {
		t.Error("third run after the TTL should miss")
	}
	if counted.calls.Load() != 2 {
		t.Errorf("capability invoked %d times, want 2", counted.calls.Load())
	}
}

func TestExecuteCacheDisabled(t *testing.T) {
	counted := emitStub()
	counted.meta.Type = "counted"
	eng := newTestEngine(t, counted)

	wf := &flow.WorkflowDefinition{
		Name:  "uncached",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "counted", Config: map[string]any{"value": 7}}},
	}
	opts := fastOpts() // UseCache false

	for i := 0; i < 2; i++ {
		if _, err := eng.Execute(context.Background(), wf, opts); err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
	}
	if counted.calls.Load() != 2 {
		t.Errorf("capability invoked %d times, want 2", counted.calls.Load())
	}
}

func TestExecuteCacheableTypeAllowlist(t *testing.T) {
	counted := emitStub()
	counted.meta.Type = "counted"
	eng := newTestEngine(t, counted)

	wf := &flow.WorkflowDefinition{
		Name:  "allowlist",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "counted", Config: map[string]any{"value": 7}}},
	}
	opts := fastOpts()
	opts.UseCache = true
	opts.CacheTTL = time.Hour
	opts.CacheableTypes = []string{"webpage"} // counted is not on the list

	for i := 0; i < 2; i++ {
		res, err := eng.Execute(context.Background(), wf, opts)
		if err != nil {
			t.Fatalf("Execute #%d: %v", i+1, err)
		}
		if res.NodeResults["a"].Cached {
			t.Errorf("run #%d served from cache despite the allowlist", i+1)
		}
	}
	if counted.calls.Load() != 2 {
		t.Errorf("capability invoked %d times, want 2", counted.calls.Load())
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	flaky := emitStub()
	flaky.meta.Type = "flaky"
	var attempts atomic.Int64
	flaky.invoke = func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		if attempts.Add(1) < 3 {
			return nil, fmt.Errorf("transient")
		}
		return map[string]any{"value": "ok"}, nil
	}
	eng := newTestEngine(t, flaky)

	wf := &flow.WorkflowDefinition{
		Name:  "retry",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "flaky"}},
	}
	opts := fastOpts()
	opts.MaxRetries = 3

	res, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	nr := res.NodeResults["a"]
	if nr.Status != flow.NodeStatusCompleted || nr.Attempts != 3 {
		t.Errorf("result = %+v, want completed after 3 attempts", nr)
	}
	if res.Status != flow.ExecutionStatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
}

func TestEngineDefaultsApplied(t *testing.T) {
	flaky := emitStub()
	flaky.meta.Type = "flaky"
	var attempts atomic.Int64
	flaky.invoke = func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		if attempts.Add(1) < 3 {
			return nil, fmt.Errorf("transient")
		}
		return map[string]any{"value": "ok"}, nil
	}

	caps := capability.NewRegistry()
	caps.Register(flaky)
	defaults := flow.DefaultOptions()
	defaults.MaxRetries = 3
	defaults.RetryBaseDelay = time.Millisecond
	eng := New(caps, typesys.NewRegistry(), cache.New(16), repository.NewExecutionStore(), nil, defaults)

	wf := &flow.WorkflowDefinition{
		Name:  "defaults",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "flaky"}},
	}

	// Zero options: everything falls back to the engine's configured baseline.
	res, err := eng.Execute(context.Background(), wf, flow.ExecutionOptions{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if nr := res.NodeResults["a"]; nr.Status != flow.NodeStatusCompleted || nr.Attempts != 3 {
		t.Errorf("result = %+v, want completed after the baseline's 3 attempts", nr)
	}
}

func TestInterruptErrorDistinguishesStopFromTimeout(t *testing.T) {
	if err := interruptError("a", context.DeadlineExceeded); !err.Timeout {
		t.Error("deadline expiry should be reported as a timeout")
	}
	err := interruptError("a", context.Canceled)
	if err.Timeout {
		t.Error("a cancelled run must not be reported as a timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cause not reachable through Unwrap")
	}
}

func TestRetryExhaustedSurfacesLastError(t *testing.T) {
	broken := emitStub()
	broken.meta.Type = "broken"
	broken.invoke = func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("boom")
	}
	eng := newTestEngine(t, broken)

	wf := &flow.WorkflowDefinition{
		Name:  "exhausted",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "broken"}},
	}
	opts := fastOpts()
	opts.MaxRetries = 2

	res, err := eng.Execute(context.Background(), wf, opts)
	var nerr *flow.NodeExecutionError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want NodeExecutionError", err)
	}
	if nerr.NodeID != "a" || nerr.Timeout {
		t.Errorf("error = %+v, want node a, no timeout", nerr)
	}
	if broken.calls.Load() != 2 {
		t.Errorf("capability invoked %d times, want 2", broken.calls.Load())
	}
	if res.Status != flow.ExecutionStatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if nr := res.NodeResults["a"]; nr.Status != flow.NodeStatusFailed || nr.Attempts != 2 {
		t.Errorf("node result = %+v, want failed after 2 attempts", nr)
	}
}

func TestFailureAbortsDownstreamPreservesCompleted(t *testing.T) {
	failing := passStub("failing")
	failing.invoke = func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("midway failure")
	}
	tail := passStub("tail")
	eng := newTestEngine(t, emitStub(), failing, tail)

	wf := &flow.WorkflowDefinition{
		Name: "abort",
		Nodes: []flow.NodeDefinition{
			{ID: "a", Type: "emit", Config: map[string]any{"value": 1}},
			{ID: "b", Type: "failing"},
			{ID: "c", Type: "tail"},
		},
		Edges: []flow.EdgeDefinition{
			{From: "a", FromPort: "value", To: "b", ToPort: "value"},
			{From: "b", FromPort: "value", To: "c", ToPort: "value"},
		},
	}

	res, err := eng.Execute(context.Background(), wf, fastOpts())
	if err == nil {
		t.Fatal("expected an error")
	}
	if res.Status != flow.ExecutionStatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
	if len(res.Completed) != 1 || res.Completed[0] != "a" {
		t.Errorf("completed = %v, want [a]", res.Completed)
	}
	if len(res.Failed) != 1 || res.Failed[0] != "b" {
		t.Errorf("failed = %v, want [b]", res.Failed)
	}
	if res.NodeOutputs["a"] == nil {
		t.Error("completed upstream output lost")
	}
	if tail.calls.Load() != 0 {
		t.Error("downstream node ran after its level was aborted")
	}
	if res.Error == "" {
		t.Error("run error not recorded on the result")
	}
}

func TestExecuteTimeout(t *testing.T) {
	slow := emitStub()
	slow.meta.Type = "slow"
	slow.invoke = func(ctx context.Context, _, _ map[string]any) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
			return map[string]any{"value": 1}, nil
		}
	}
	eng := newTestEngine(t, slow)

	wf := &flow.WorkflowDefinition{
		Name:  "timeout",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "slow"}},
	}
	opts := fastOpts()
	opts.Timeout = 50 * time.Millisecond

	res, err := eng.Execute(context.Background(), wf, opts)
	var nerr *flow.NodeExecutionError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want NodeExecutionError", err)
	}
	if !nerr.Timeout {
		t.Errorf("error = %+v, want Timeout set", nerr)
	}
	if res.Status != flow.ExecutionStatusFailed {
		t.Errorf("status = %s, want failed", res.Status)
	}
}

func TestExecuteConvertsTypedEdge(t *testing.T) {
	numsrc := &stubCap{
		meta: capability.Metadata{
			Type:    "numsrc",
			Outputs: []capability.Port{{ID: "n", Type: "number"}},
		},
		invoke: func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
			return map[string]any{"n": 42.0}, nil
		},
	}
	var received any
	strsink := &stubCap{
		meta: capability.Metadata{
			Type:    "strsink",
			Inputs:  []capability.Port{{ID: "s", Type: "string"}},
			Outputs: []capability.Port{{ID: "s", Type: "string"}},
		},
		invoke: func(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
			received = inputs["s"]
			return inputs, nil
		},
	}
	eng := newTestEngine(t, numsrc, strsink)

	wf := &flow.WorkflowDefinition{
		Name: "convert",
		Nodes: []flow.NodeDefinition{
			{ID: "src", Type: "numsrc"},
			{ID: "dst", Type: "strsink"},
		},
		Edges: []flow.EdgeDefinition{{From: "src", FromPort: "n", To: "dst", ToPort: "s"}},
	}

	if _, err := eng.Execute(context.Background(), wf, fastOpts()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if received != "42" {
		t.Errorf("sink received %v (%T), want the string \"42\"", received, received)
	}
}

func TestExecuteConversionFailureFailsNode(t *testing.T) {
	strsrc := &stubCap{
		meta: capability.Metadata{
			Type:    "strsrc",
			Outputs: []capability.Port{{ID: "s", Type: "string"}},
		},
		invoke: func(_ context.Context, _, _ map[string]any) (map[string]any, error) {
			return map[string]any{"s": "not numeric"}, nil
		},
	}
	numsink := &stubCap{
		meta: capability.Metadata{
			Type:    "numsink",
			Inputs:  []capability.Port{{ID: "n", Type: "number"}},
			Outputs: []capability.Port{{ID: "n", Type: "number"}},
		},
		invoke: func(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
			return inputs, nil
		},
	}
	eng := newTestEngine(t, strsrc, numsink)

	// string→number is explicitly convertible, so validation passes; the
	// failure surfaces at run time when the actual value won't parse.
	wf := &flow.WorkflowDefinition{
		Name: "badvalue",
		Nodes: []flow.NodeDefinition{
			{ID: "src", Type: "strsrc"},
			{ID: "dst", Type: "numsink"},
		},
		Edges: []flow.EdgeDefinition{{From: "src", FromPort: "s", To: "dst", ToPort: "n"}},
	}

	res, err := eng.Execute(context.Background(), wf, fastOpts())
	var nerr *flow.NodeExecutionError
	if !errors.As(err, &nerr) {
		t.Fatalf("err = %v, want NodeExecutionError", err)
	}
	var cerr *flow.ConversionError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want a wrapped ConversionError", err)
	}
	if nerr.NodeID != "dst" {
		t.Errorf("failing node = %s, want dst", nerr.NodeID)
	}
	if numsink.calls.Load() != 0 {
		t.Error("sink must not be invoked when its inputs cannot be converted")
	}
	if res.NodeResults["src"].Status != flow.NodeStatusCompleted {
		t.Error("upstream result should be preserved")
	}
}

func TestResumeSkipsCompletedAncestors(t *testing.T) {
	pass := passStub("pass")
	eng := newTestEngine(t, emitStub(), pass)

	wf := &flow.WorkflowDefinition{
		Name: "resume",
		Nodes: []flow.NodeDefinition{
			{ID: "a", Type: "emit", Config: map[string]any{"value": 1}},
			{ID: "b", Type: "pass"},
			{ID: "c", Type: "pass"},
		},
		Edges: []flow.EdgeDefinition{
			{From: "a", FromPort: "value", To: "b", ToPort: "value"},
			{From: "b", FromPort: "value", To: "c", ToPort: "value"},
		},
	}

	first, err := eng.Execute(context.Background(), wf, fastOpts())
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}

	opts := fastOpts()
	opts.Mode = flow.ModeResume
	opts.ResumeFrom = "b"
	opts.PreviousExecutionID = first.ExecutionID

	res, err := eng.Execute(context.Background(), wf, opts)
	if err != nil {
		t.Fatalf("resume Execute: %v", err)
	}
	if len(res.Order) != 2 || res.Order[0] != "b" || res.Order[1] != "c" {
		t.Errorf("order = %v, want [b c]", res.Order)
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "a" {
		t.Errorf("skipped = %v, want [a]", res.Skipped)
	}
	if res.Status != flow.ExecutionStatusCompleted {
		t.Errorf("status = %s, want completed", res.Status)
	}
}

func TestResumeUnknownNode(t *testing.T) {
	eng := newTestEngine(t, emitStub())
	wf := &flow.WorkflowDefinition{
		Name:  "resume",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "emit"}},
	}
	opts := fastOpts()
	opts.Mode = flow.ModeResume
	opts.ResumeFrom = "ghost"

	_, err := eng.Execute(context.Background(), wf, opts)
	var rerr *flow.ResumeError
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want ResumeError", err)
	}
	if rerr.NodeID != "ghost" {
		t.Errorf("error names %q, want ghost", rerr.NodeID)
	}
}

func TestEventOrdering(t *testing.T) {
	pass := passStub("pass")
	eng := newTestEngine(t, emitStub(), pass)

	var got []flow.EventType
	eng.Bus().Subscribe(func(ev flow.Event) {
		got = append(got, ev.Type)
	})

	wf := &flow.WorkflowDefinition{
		Name: "events",
		Nodes: []flow.NodeDefinition{
			{ID: "a", Type: "emit", Config: map[string]any{"value": 1}},
			{ID: "b", Type: "pass"},
		},
		Edges: []flow.EdgeDefinition{{From: "a", FromPort: "value", To: "b", ToPort: "value"}},
	}
	if _, err := eng.Execute(context.Background(), wf, fastOpts()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	want := []flow.EventType{
		flow.EventNodeStarted, flow.EventNodeCompleted,
		flow.EventNodeStarted, flow.EventNodeCompleted,
		flow.EventExecutionCompleted,
	}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s (all: %v)", i, got[i], want[i], got)
		}
	}
}

func TestStartAndStop(t *testing.T) {
	slow := emitStub()
	slow.meta.Type = "slow"
	slow.invoke = func(ctx context.Context, _, _ map[string]any) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{"value": 1}, nil
		}
	}
	eng := newTestEngine(t, slow)

	wf := &flow.WorkflowDefinition{
		Name:  "stoppable",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "slow"}},
	}

	execID, err := eng.Start(context.Background(), wf, fastOpts())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	waitFor(t, func() bool { return slow.calls.Load() > 0 })

	if err := eng.Stop(execID); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	waitFor(t, func() bool {
		state, ok := eng.Tracker().GetState(execID)
		return ok && state.CompletedAt != nil
	})

	state, _ := eng.Tracker().GetState(execID)
	if state.Status != flow.ExecutionStatusStopped {
		t.Errorf("status = %s, want stopped", state.Status)
	}
	if err := eng.Stop(execID); err == nil {
		t.Error("stopping a finished execution should fail")
	}
}

func TestStartReturnsPreflightErrors(t *testing.T) {
	eng := newTestEngine(t, emitStub())
	wf := &flow.WorkflowDefinition{
		Name: "cyclic",
		Nodes: []flow.NodeDefinition{
			{ID: "a", Type: "emit"},
			{ID: "b", Type: "emit"},
		},
		Edges: []flow.EdgeDefinition{
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}

	_, err := eng.Start(context.Background(), wf, fastOpts())
	var cerr *flow.CyclicGraphError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want CyclicGraphError", err)
	}
}

func TestExecuteStoresResult(t *testing.T) {
	eng := newTestEngine(t, emitStub())
	wf := &flow.WorkflowDefinition{
		Name:  "stored",
		Nodes: []flow.NodeDefinition{{ID: "a", Type: "emit", Config: map[string]any{"value": 1}}},
	}

	res, err := eng.Execute(context.Background(), wf, fastOpts())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	stored, ok := eng.store.Get(res.ExecutionID)
	if !ok {
		t.Fatal("result not saved to the store")
	}
	if stored.ExecutionID != res.ExecutionID || stored.Status != res.Status {
		t.Errorf("stored result differs: %+v vs %+v", stored, res)
	}
}

// waitFor polls cond for up to two seconds.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
