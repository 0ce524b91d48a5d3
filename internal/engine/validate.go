package engine

import (
	"fmt"

	"github.com/flowline/flowline/internal/capability"
	"github.com/flowline/flowline/internal/flow"
	"github.com/flowline/flowline/internal/typesys"
)

// Validate checks every connection of a submission against capability
// metadata and the type registry. Issues are collected, never raised one at a
// time; a non-empty batch gates execution start.
func Validate(nodes []flow.NodeDefinition, edges []flow.EdgeDefinition, caps *capability.Registry, types *typesys.Registry) []flow.ValidationIssue {
	byID := make(map[string]*flow.NodeDefinition, len(nodes))
	for i := range nodes {
		byID[nodes[i].ID] = &nodes[i]
	}

	var issues []flow.ValidationIssue
	for _, e := range edges {
		srcPort, srcIssues := resolvePort(byID, caps, e.From, e.FromPort, false)
		dstPort, dstIssues := resolvePort(byID, caps, e.To, e.ToPort, true)
		issues = append(issues, srcIssues...)
		issues = append(issues, dstIssues...)
		if srcPort == nil || dstPort == nil {
			continue
		}

		if !types.IsCompatible(srcPort.Type, dstPort.Type) {
			issues = append(issues, flow.ValidationIssue{
				Kind:       flow.IssueConnection,
				From:       e.From,
				To:         e.To,
				SourceType: srcPort.Type,
				TargetType: dstPort.Type,
				Message: fmt.Sprintf("connection %s→%s: output type %q is not compatible with input type %q",
					e.From, e.To, srcPort.Type, dstPort.Type),
			})
		}
	}
	return issues
}

// resolvePort finds the concrete port an edge endpoint refers to, defaulting
// to the first declared port when the edge names none. Missing metadata or
// ports produce node-level issues and a nil port.
func resolvePort(byID map[string]*flow.NodeDefinition, caps *capability.Registry, nodeID, portID string, input bool) (*capability.Port, []flow.ValidationIssue) {
	side := "output"
	if input {
		side = "input"
	}

	node, ok := byID[nodeID]
	if !ok {
		return nil, []flow.ValidationIssue{{
			Kind:    flow.IssueNode,
			NodeID:  nodeID,
			Message: fmt.Sprintf("node %q: referenced by an edge but not in the submission", nodeID),
		}}
	}

	cap, ok := caps.Get(node.Type)
	if !ok {
		return nil, []flow.ValidationIssue{{
			Kind:    flow.IssueNode,
			NodeID:  nodeID,
			Message: fmt.Sprintf("node %q: unknown capability type %q", nodeID, node.Type),
		}}
	}

	meta := cap.Metadata()
	ports := meta.Outputs
	if input {
		ports = meta.Inputs
	}
	if len(ports) == 0 {
		return nil, []flow.ValidationIssue{{
			Kind:    flow.IssueNode,
			NodeID:  nodeID,
			Message: fmt.Sprintf("node %q: capability %q declares no %s ports", nodeID, node.Type, side),
		}}
	}

	if portID == "" {
		return &ports[0], nil
	}
	for i := range ports {
		if ports[i].ID == portID {
			return &ports[i], nil
		}
	}
	return nil, []flow.ValidationIssue{{
		Kind:    flow.IssueNode,
		NodeID:  nodeID,
		Message: fmt.Sprintf("node %q: capability %q has no %s port %q", nodeID, node.Type, side, portID),
	}}
}
