// Package workflow implements the DAG-shaped workflow scheduler and
// executor of spec.md §4.H: cycle validation, the central actor loop
// that tracks node status and in-degree, and a dependency-aware worker
// pool that dispatches ready nodes to plugin invocations through the
// check engine.
package workflow

import (
	"fmt"

	"github.com/lion-dev/lion/internal/domain"
)

// ErrorPolicyKind controls how a node's failure affects the rest of the
// workflow.
type ErrorPolicyKind string

const (
	// ErrorPolicyFail fails the whole workflow when the node fails
	// (after exhausting any configured retries). This is the default.
	ErrorPolicyFail ErrorPolicyKind = "fail"
	// ErrorPolicyContinue lets the workflow proceed past a failed node;
	// its successors never become ready through it, but sibling
	// branches are unaffected.
	ErrorPolicyContinue ErrorPolicyKind = "continue_on_failure"
)

// RetryPolicy configures re-dispatch of a failed node, per spec.md §4.H
// "Retries: if policy specifies Retry{max, delay, exponential}".
type RetryPolicy struct {
	MaxAttempts int
	// InitialDelaySeconds is the base delay before the first retry.
	InitialDelaySeconds float64
	Exponential         bool
}

// Node is one unit of work in a workflow's DAG: a named step with
// declared dependencies and failure handling. Plugin and Function are
// optional (spec.md §4.H "plugin_id?"): a node with no Plugin is a
// pass-through step whose result is its merged input, used to join or
// reshape data between plugin-backed nodes without invoking anything.
type Node struct {
	ID          domain.NodeID
	Name        string
	Plugin      domain.PluginID
	Function    string
	DependsOn   []domain.NodeID
	Priority    int
	ErrorPolicy ErrorPolicyKind
	Retry       *RetryPolicy
	TimeoutSecs float64
}

// IsPassThrough reports whether the node declares no plugin call, per
// spec.md §8 scenario 3: such a node's result is simply its merged
// input, with no capability check or invocation performed.
func (n Node) IsPassThrough() bool {
	return n.Plugin == ""
}

// Workflow is a DAG of nodes. Engine.Start validates it with Build and
// takes the input it runs with as a separate argument.
type Workflow struct {
	ID    domain.WorkflowID
	Name  string
	Nodes []Node
}

// Definition is the static graph shape used by validation and the
// executor: node lookup, declared dependents, and declaration order
// (used to break priority ties deterministically downstream; dependency
// outputs are merged in each node's own DependsOn order, per spec.md
// §4.H step 2 "merge with workflow input").
type Definition struct {
	nodeByID   map[domain.NodeID]Node
	dependents map[domain.NodeID][]domain.NodeID
	terminal   map[domain.NodeID]bool
	order      []domain.NodeID
}

// Build validates a Workflow's DAG via Kahn's algorithm (spec.md §4.H
// "Validation") and returns its Definition. A cycle, a dependency on an
// unknown node, or a duplicate node ID is rejected.
func Build(nodes []Node) (*Definition, error) {
	nodeByID := make(map[domain.NodeID]Node, len(nodes))
	order := make([]domain.NodeID, 0, len(nodes))

	for _, n := range nodes {
		if _, dup := nodeByID[n.ID]; dup {
			return nil, fmt.Errorf("workflow: duplicate node id %q", n.ID)
		}
		nodeByID[n.ID] = n
		order = append(order, n.ID)
	}

	dependents := make(map[domain.NodeID][]domain.NodeID)
	inDegree := make(map[domain.NodeID]int, len(nodes))
	hasOutgoing := make(map[domain.NodeID]bool, len(nodes))

	for _, n := range nodes {
		inDegree[n.ID] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			if _, ok := nodeByID[dep]; !ok {
				return nil, fmt.Errorf("workflow: node %q depends on unknown node %q", n.ID, dep)
			}
			dependents[dep] = append(dependents[dep], n.ID)
			hasOutgoing[dep] = true
		}
	}

	queue := make([]domain.NodeID, 0, len(nodes))
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	remaining := make(map[domain.NodeID]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(nodes) {
		return nil, fmt.Errorf("workflow: dependency graph contains a cycle")
	}

	terminal := make(map[domain.NodeID]bool, len(nodes))
	for _, id := range order {
		terminal[id] = !hasOutgoing[id]
	}

	return &Definition{
		nodeByID:   nodeByID,
		dependents: dependents,
		terminal:   terminal,
		order:      order,
	}, nil
}

func (d *Definition) initialInDegree(id domain.NodeID) int {
	return len(d.nodeByID[id].DependsOn)
}

func (d *Definition) isTerminal(id domain.NodeID) bool {
	return d.terminal[id]
}
