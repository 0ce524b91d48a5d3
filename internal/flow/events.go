package flow

import "time"

// EventType identifies a lifecycle event emitted during execution.
type EventType string

const (
	EventNodeStarted        EventType = "node_started"
	EventNodeCompleted      EventType = "node_completed"
	EventNodeCached         EventType = "node_cached"
	EventNodeError          EventType = "node_error"
	EventExecutionCompleted EventType = "execution_completed"
	EventExecutionError     EventType = "execution_error"
)

// Event is a domain event emitted during execution. It decouples the engine
// from transport concerns (SSE, logs, sockets). Per-node events are strictly
// ordered: started precedes the terminal event.
type Event struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	NodeID      string         `json:"node_id,omitempty"`
	NodeType    string         `json:"node_type,omitempty"`
	Type        EventType      `json:"type"`
	Payload     map[string]any `json:"payload,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}
