package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowline/flowline/internal/flow"
)

// StateTracker holds one ExecutionState per run. Node tasks within a level
// mutate it concurrently, so every method takes the lock. States are retained
// after completion for querying.
type StateTracker struct {
	mu      sync.RWMutex
	states  map[string]*flow.ExecutionState
	orders  map[string][]string
	events  map[string][]flow.Event
	cancels map[string]context.CancelFunc
}

func NewStateTracker() *StateTracker {
	return &StateTracker{
		states:  make(map[string]*flow.ExecutionState),
		orders:  make(map[string][]string),
		events:  make(map[string][]flow.Event),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Create registers a fresh state with every node pending.
func (t *StateTracker) Create(execID, workflowName string, nodeIDs []string) *flow.ExecutionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	state := &flow.ExecutionState{
		ID:           execID,
		WorkflowName: workflowName,
		Status:       flow.ExecutionStatusPending,
		NodeStatuses: make(map[string]flow.NodeStatus, len(nodeIDs)),
		NodeResults:  make(map[string]*flow.NodeExecutionResult),
		StartedAt:    time.Now(),
	}
	for _, id := range nodeIDs {
		state.NodeStatuses[id] = flow.NodeStatusPending
	}
	t.states[execID] = state
	return state
}

// SetOrder records the resolved execution order for result building.
func (t *StateTracker) SetOrder(execID string, order []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.orders[execID] = order
}

// RegisterCancel associates the run's cancel function, marking it in-flight.
func (t *StateTracker) RegisterCancel(execID string, cancel context.CancelFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancels[execID] = cancel
}

// IsActive reports whether the execution is currently in flight.
func (t *StateTracker) IsActive(execID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.cancels[execID]
	return ok
}

// SetRunning moves a pending execution to running.
func (t *StateTracker) SetRunning(execID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[execID]; ok && s.Status == flow.ExecutionStatusPending {
		s.Status = flow.ExecutionStatusRunning
	}
}

// MarkSkipped moves excluded nodes straight from pending to skipped.
func (t *StateTracker) MarkSkipped(execID string, nodeIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[execID]
	if !ok {
		return
	}
	for _, id := range nodeIDs {
		if s.NodeStatuses[id] == flow.NodeStatusPending {
			s.NodeStatuses[id] = flow.NodeStatusSkipped
			s.Skipped = append(s.Skipped, id)
		}
	}
}

// SetNodeRunning transitions a pending node to running and points the
// current-node marker at it.
func (t *StateTracker) SetNodeRunning(execID, nodeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[execID]
	if !ok {
		return
	}
	if s.NodeStatuses[nodeID] == flow.NodeStatusPending {
		s.NodeStatuses[nodeID] = flow.NodeStatusRunning
		s.CurrentNode = nodeID
	}
}

// RecordResult stores a node's terminal result. A failed node flips the
// overall status to failed, which is sticky.
func (t *StateTracker) RecordResult(execID string, res *flow.NodeExecutionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[execID]
	if !ok {
		return
	}
	if s.NodeStatuses[res.NodeID].Terminal() {
		return // results are immutable once created
	}
	s.NodeStatuses[res.NodeID] = res.Status
	s.NodeResults[res.NodeID] = res

	switch res.Status {
	case flow.NodeStatusCompleted, flow.NodeStatusCached:
		s.Completed = append(s.Completed, res.NodeID)
	case flow.NodeStatusFailed:
		s.Failed = append(s.Failed, res.NodeID)
		// Only an in-flight run flips to failed; a stop already decided the
		// terminal status and a node failing on the cancelled context must
		// not overwrite it.
		switch s.Status {
		case flow.ExecutionStatusPending, flow.ExecutionStatusRunning:
			s.Status = flow.ExecutionStatusFailed
			if s.Error == "" {
				s.Error = res.Error
			}
		}
	}
}

// AppendLog adds a line to the run log.
func (t *StateTracker) AppendLog(execID, nodeID, level, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.states[execID]; ok {
		s.Log = append(s.Log, flow.LogEntry{
			Timestamp: time.Now(),
			NodeID:    nodeID,
			Level:     level,
			Message:   message,
		})
	}
}

// RecordEvent buffers an event for replay to late subscribers.
func (t *StateTracker) RecordEvent(execID string, ev flow.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events[execID] = append(t.events[execID], ev)
}

// EventsSince returns buffered events from seq onward and whether the run has
// reached a terminal status.
func (t *StateTracker) EventsSince(execID string, seq int) ([]flow.Event, bool, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[execID]
	if !ok {
		return nil, false, false
	}
	evs := t.events[execID]
	if seq < 0 {
		seq = 0
	}
	if seq > len(evs) {
		seq = len(evs)
	}
	out := make([]flow.Event, len(evs)-seq)
	copy(out, evs[seq:])
	done := s.Status != flow.ExecutionStatusPending && s.Status != flow.ExecutionStatusRunning
	return out, done, true
}

// Complete marks a running execution completed. A failed or stopped status
// stays as it is.
func (t *StateTracker) Complete(execID string) {
	t.finish(execID, flow.ExecutionStatusCompleted, "")
}

// Fail marks a running execution failed with the given message.
func (t *StateTracker) Fail(execID, errMsg string) {
	t.finish(execID, flow.ExecutionStatusFailed, errMsg)
}

func (t *StateTracker) finish(execID string, status flow.ExecutionStatus, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[execID]
	if !ok {
		return
	}
	switch s.Status {
	case flow.ExecutionStatusPending, flow.ExecutionStatusRunning:
		s.Status = status
	case flow.ExecutionStatusFailed:
		if status == flow.ExecutionStatusFailed && s.Error == "" {
			s.Error = errMsg
		}
	}
	if errMsg != "" && s.Error == "" {
		s.Error = errMsg
	}
	now := time.Now()
	s.CompletedAt = &now
	s.CurrentNode = ""
	delete(t.cancels, execID)
}

// Stop flips an in-flight execution to stopped and cancels its run context.
// Cooperative only: it does not interrupt an in-flight invocation.
func (t *StateTracker) Stop(execID string) error {
	t.mu.Lock()
	s, ok := t.states[execID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("execution %q not found", execID)
	}
	switch s.Status {
	case flow.ExecutionStatusPending, flow.ExecutionStatusRunning:
		s.Status = flow.ExecutionStatusStopped
	default:
		t.mu.Unlock()
		return fmt.Errorf("execution %q is not active", execID)
	}
	cancel := t.cancels[execID]
	delete(t.cancels, execID)
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// GetState returns a snapshot copy of the execution state.
func (t *StateTracker) GetState(execID string) (*flow.ExecutionState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[execID]
	if !ok {
		return nil, false
	}
	return snapshotState(s), true
}

// BuildResult assembles the terminal snapshot for an execution.
func (t *StateTracker) BuildResult(execID string) (*flow.ExecutionResult, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.states[execID]
	if !ok {
		return nil, false
	}

	res := &flow.ExecutionResult{
		ExecutionID:  s.ID,
		WorkflowName: s.WorkflowName,
		Status:       s.Status,
		NodeOutputs:  make(map[string]map[string]any),
		NodeResults:  make(map[string]*flow.NodeExecutionResult, len(s.NodeResults)),
		Order:        append([]string(nil), t.orders[execID]...),
		Completed:    append([]string(nil), s.Completed...),
		Failed:       append([]string(nil), s.Failed...),
		Skipped:      append([]string(nil), s.Skipped...),
		Log:          append([]flow.LogEntry(nil), s.Log...),
		Error:        s.Error,
		StartedAt:    s.StartedAt,
	}
	for id, nr := range s.NodeResults {
		res.NodeResults[id] = nr
		if nr.Outputs != nil {
			res.NodeOutputs[id] = nr.Outputs
		}
	}
	if s.CompletedAt != nil {
		res.CompletedAt = *s.CompletedAt
	} else {
		res.CompletedAt = time.Now()
	}
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	return res, true
}

func snapshotState(s *flow.ExecutionState) *flow.ExecutionState {
	cp := *s
	cp.NodeStatuses = make(map[string]flow.NodeStatus, len(s.NodeStatuses))
	for k, v := range s.NodeStatuses {
		cp.NodeStatuses[k] = v
	}
	cp.NodeResults = make(map[string]*flow.NodeExecutionResult, len(s.NodeResults))
	for k, v := range s.NodeResults {
		cp.NodeResults[k] = v
	}
	cp.Completed = append([]string(nil), s.Completed...)
	cp.Failed = append([]string(nil), s.Failed...)
	cp.Skipped = append([]string(nil), s.Skipped...)
	cp.Log = append([]flow.LogEntry(nil), s.Log...)
	return &cp
}
