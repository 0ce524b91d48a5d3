package dag

import (
	"fmt"
	"sort"

	"github.com/flowline/flowline/internal/flow"
)

// DAG is the directed acyclic graph built from a submission. Nodes and edges
// are stored in flat id-indexed collections; nothing holds back-references.
type DAG struct {
	nodes     map[string]*flow.NodeDefinition
	children  map[string][]string
	parents   map[string][]string
	edges     []flow.EdgeDefinition
	topoOrder []string
}

// Build constructs a DAG and computes its topological order. It fails with a
// GraphError when an edge references an unknown node or a node id repeats,
// and with a CyclicGraphError when no total order exists.
func Build(nodes []flow.NodeDefinition, edges []flow.EdgeDefinition) (*DAG, error) {
	d := &DAG{
		nodes:    make(map[string]*flow.NodeDefinition, len(nodes)),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
		edges:    edges,
	}

	for i := range nodes {
		n := &nodes[i]
		if _, exists := d.nodes[n.ID]; exists {
			return nil, &flow.GraphError{Message: fmt.Sprintf("duplicate node ID: %s", n.ID)}
		}
		d.nodes[n.ID] = n
	}

	for _, e := range edges {
		if _, ok := d.nodes[e.From]; !ok {
			return nil, &flow.GraphError{Message: fmt.Sprintf("edge references unknown node: %s", e.From)}
		}
		if _, ok := d.nodes[e.To]; !ok {
			return nil, &flow.GraphError{Message: fmt.Sprintf("edge references unknown node: %s", e.To)}
		}
		d.children[e.From] = append(d.children[e.From], e.To)
		d.parents[e.To] = append(d.parents[e.To], e.From)
	}

	order, err := d.topoSort()
	if err != nil {
		return nil, err
	}
	d.topoOrder = order
	return d, nil
}

// topoSort runs Kahn's algorithm. Ties break alphabetically so the order is
// deterministic across runs. No partial order is returned on a cycle.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for id := range d.nodes {
		inDegree[id] = 0
	}
	for _, children := range d.children {
		for _, c := range children {
			inDegree[c]++
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	var order []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)
		for _, c := range d.children[node] {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(d.nodes) {
		return nil, &flow.CyclicGraphError{Message: "no topological order exists"}
	}
	return order, nil
}

// TopologicalOrder returns the full order computed at build time.
func (d *DAG) TopologicalOrder() []string { return d.topoOrder }

// Children returns direct successors of a node.
func (d *DAG) Children(nodeID string) []string { return d.children[nodeID] }

// Parents returns direct predecessors of a node.
func (d *DAG) Parents(nodeID string) []string { return d.parents[nodeID] }

// Node looks up a node definition by id.
func (d *DAG) Node(id string) *flow.NodeDefinition { return d.nodes[id] }

// Edges returns all edges of the graph.
func (d *DAG) Edges() []flow.EdgeDefinition { return d.edges }

// InEdges returns the edges pointing at a node.
func (d *DAG) InEdges(nodeID string) []flow.EdgeDefinition {
	var in []flow.EdgeDefinition
	for _, e := range d.edges {
		if e.To == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// Contains reports whether the graph holds a node with the given id.
func (d *DAG) Contains(id string) bool {
	_, ok := d.nodes[id]
	return ok
}

// Len returns the node count.
func (d *DAG) Len() int { return len(d.nodes) }

// Roots returns nodes with no incoming edges.
func (d *DAG) Roots() []string {
	var roots []string
	for id := range d.nodes {
		if len(d.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// Ancestors returns the transitive dependency set of a node, not including
// the node itself.
func (d *DAG) Ancestors(nodeID string) map[string]bool {
	seen := make(map[string]bool)
	stack := append([]string(nil), d.parents[nodeID]...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		stack = append(stack, d.parents[id]...)
	}
	return seen
}
