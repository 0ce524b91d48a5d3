package flow

import "time"

// WorkflowDefinition is a graph submission: nodes wired by edges.
// It is immutable for the duration of a run.
type WorkflowDefinition struct {
	Name  string           `json:"name" yaml:"name"`
	Nodes []NodeDefinition `json:"nodes" yaml:"nodes"`
	Edges []EdgeDefinition `json:"edges" yaml:"edges"`
}

// NodeDefinition is a unit of work with a capability type and configuration.
type NodeDefinition struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// EdgeDefinition is a directed connection from one node's output port to
// another node's input port. Ports are optional: an empty FromPort means
// "first declared output port" for type checks and "entire output map" for
// data flow; an empty ToPort means "first declared input port".
type EdgeDefinition struct {
	From     string `json:"from" yaml:"from"`
	FromPort string `json:"from_port,omitempty" yaml:"from_port,omitempty"`
	To       string `json:"to" yaml:"to"`
	ToPort   string `json:"to_port,omitempty" yaml:"to_port,omitempty"`
}

// ExecutionMode selects which nodes of the graph a run executes.
type ExecutionMode string

const (
	// ModeFull executes every node in topological order.
	ModeFull ExecutionMode = "full"
	// ModePartial executes the selected nodes plus their ancestors.
	ModePartial ExecutionMode = "partial"
	// ModeResume executes from a given node onward, splicing in ancestors
	// that a previous execution did not complete.
	ModeResume ExecutionMode = "resume"
)

// NodeStatus is the per-node lifecycle state. Transitions are monotonic:
// pending→running→{completed|cached|failed}, or pending→skipped.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusCached    NodeStatus = "cached"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// Terminal reports whether the status admits no further transition.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusCached, NodeStatusFailed, NodeStatusSkipped:
		return true
	}
	return false
}

// ExecutionStatus is the run-level lifecycle state.
// Failed is sticky: once any node fails the run stays failed.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusStopped   ExecutionStatus = "stopped"
)

// ExecutionOptions controls a single run.
type ExecutionOptions struct {
	Mode                ExecutionMode `json:"execution_mode"`
	SelectedNodes       []string      `json:"selected_nodes,omitempty"`
	ResumeFrom          string        `json:"resume_from_node,omitempty"`
	PreviousExecutionID string        `json:"previous_execution_id,omitempty"`

	UseCache       bool          `json:"use_cache"`
	CacheTTL       time.Duration `json:"cache_ttl"`
	CacheableTypes []string      `json:"cacheable_types,omitempty"` // empty: all types cacheable

	Parallel       bool          `json:"parallel"`
	Workers        int           `json:"workers"`
	MaxRetries     int           `json:"max_retries"`
	RetryBaseDelay time.Duration `json:"retry_base_delay"`
	Timeout        time.Duration `json:"timeout"`
}

// DefaultOptions returns the options used when a request leaves them unset.
func DefaultOptions() ExecutionOptions {
	return ExecutionOptions{
		Mode:           ModeFull,
		UseCache:       true,
		CacheTTL:       5 * time.Minute,
		Parallel:       true,
		Workers:        10,
		MaxRetries:     3,
		RetryBaseDelay: time.Second,
		Timeout:        300 * time.Second,
	}
}

// NodeExecutionResult is the immutable outcome of one node in one run.
type NodeExecutionResult struct {
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	Status      NodeStatus     `json:"status"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	Cached      bool           `json:"cached"`
	Attempts    int            `json:"attempts"`
	Error       string         `json:"error,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration"`
}

// LogEntry is a timestamped line in the run log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	NodeID    string    `json:"node_id,omitempty"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// ExecutionState tracks one run. It is created at run start, mutated by the
// dispatcher under the tracker's lock, and retained after completion.
type ExecutionState struct {
	ID           string                          `json:"id"`
	WorkflowName string                          `json:"workflow_name"`
	Status       ExecutionStatus                 `json:"status"`
	NodeStatuses map[string]NodeStatus           `json:"node_statuses"`
	NodeResults  map[string]*NodeExecutionResult `json:"node_results"`
	Completed    []string                        `json:"completed"`
	Failed       []string                        `json:"failed"`
	Skipped      []string                        `json:"skipped"`
	CurrentNode  string                          `json:"current_node,omitempty"`
	Log          []LogEntry                      `json:"log"`
	Error        string                          `json:"error,omitempty"`
	StartedAt    time.Time                       `json:"started_at"`
	CompletedAt  *time.Time                      `json:"completed_at,omitempty"`
}

// ExecutionResult is the terminal snapshot of a run, retrievable by id after
// completion or failure. NodeOutputs holds each executed node's output map.
type ExecutionResult struct {
	ExecutionID  string                          `json:"execution_id"`
	WorkflowName string                          `json:"workflow_name"`
	Status       ExecutionStatus                 `json:"status"`
	NodeOutputs  map[string]map[string]any       `json:"node_outputs"`
	NodeResults  map[string]*NodeExecutionResult `json:"node_results"`
	Order        []string                        `json:"order"`
	Completed    []string                        `json:"completed"`
	Failed       []string                        `json:"failed"`
	Skipped      []string                        `json:"skipped"`
	Log          []LogEntry                      `json:"log"`
	Error        string                          `json:"error,omitempty"`
	StartedAt    time.Time                       `json:"started_at"`
	CompletedAt  time.Time                       `json:"completed_at"`
	Duration     time.Duration                   `json:"duration"`
}
