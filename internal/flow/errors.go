package flow

import (
	"fmt"
	"strings"
)

// GraphError signals a structurally invalid submission (duplicate node ids,
// edges referencing unknown nodes). Raised before any node runs.
type GraphError struct {
	Message string
}

func (e *GraphError) Error() string { return "graph error: " + e.Message }

// CyclicGraphError signals that no topological order exists.
type CyclicGraphError struct {
	Message string
}

func (e *CyclicGraphError) Error() string { return "cyclic graph: " + e.Message }

// ResumeError signals a resume request naming a node absent from the graph.
type ResumeError struct {
	NodeID string
}

func (e *ResumeError) Error() string {
	return fmt.Sprintf("cannot resume: node %q is not in the execution order", e.NodeID)
}

// NodeExecutionError carries the failing node's identity and resolved inputs.
// Timeout marks failures caused by the per-execution deadline.
type NodeExecutionError struct {
	NodeID   string
	NodeType string
	Inputs   map[string]any
	Timeout  bool
	Err      error
}

func (e *NodeExecutionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("node %q (%s) timed out: %v", e.NodeID, e.NodeType, e.Err)
	}
	return fmt.Sprintf("node %q (%s) failed: %v", e.NodeID, e.NodeType, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }

// ConversionError signals that no rule, converter, or basic coercion bridges
// a source value to the target type.
type ConversionError struct {
	SourceType string
	TargetType string
	Message    string
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %s to %s", e.SourceType, e.TargetType)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// IssueKind distinguishes node-level from connection-level validation issues.
type IssueKind string

const (
	IssueNode       IssueKind = "node"
	IssueConnection IssueKind = "connection"
)

// ValidationIssue is one problem found while checking a submission. Issues
// are collected rather than raised individually; a non-empty batch aborts the
// run before any node executes.
type ValidationIssue struct {
	Kind       IssueKind `json:"kind"`
	NodeID     string    `json:"node_id,omitempty"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to,omitempty"`
	SourceType string    `json:"source_type,omitempty"`
	TargetType string    `json:"target_type,omitempty"`
	Message    string    `json:"message"`
}

// ValidationError aggregates the full issue batch so the caller sees every
// problem at once.
type ValidationError struct {
	Issues []ValidationIssue
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message
	}
	return fmt.Sprintf("validation failed with %d issue(s): %s", len(e.Issues), strings.Join(msgs, "; "))
}
