// Package saga implements the saga coordinator of spec.md §4.I: a DAG of
// steps executed forward like §4.H's workflow, with reverse-order
// compensation when a step's failure triggers it, external abort, and a
// background timeout monitor.
package saga

import (
	"fmt"

	"github.com/lion-dev/lion/internal/domain"
)

// StepStatus is the lifecycle state of one saga step.
type StepStatus string

const (
	StepPending            StepStatus = "pending"
	StepRunning            StepStatus = "running"
	StepCompleted          StepStatus = "completed"
	StepFailed             StepStatus = "failed"
	StepCompensating       StepStatus = "compensating"
	StepCompensated        StepStatus = "compensated"
	StepCompensationFailed StepStatus = "compensation_failed"
	StepSkipped            StepStatus = "skipped"
)

// isTerminal reports whether a step will never change status again.
func (s StepStatus) isTerminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepCompensated, StepCompensationFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of a saga instance.
type Status string

const (
	StatusCreated        Status = "created"
	StatusRunning        Status = "running"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusCompensating   Status = "compensating"
	StatusCompensated    Status = "compensated"
	StatusFailedWithErrs Status = "failed_with_errors"
	StatusAborted        Status = "aborted"
)

func isTerminalStatus(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCompensated, StatusFailedWithErrs, StatusAborted:
		return true
	default:
		return false
	}
}

// Step is one unit of forward work in a saga, with an optional
// compensating action invoked in reverse order if the saga compensates.
type Step struct {
	ID                   domain.StepID
	Service              domain.PluginID
	Action               string
	Command              any
	Compensation         string
	CompensationCommand  any
	DependsOn            []domain.StepID
	Priority             int
	TimeoutSecs          float64
	// TriggersCompensation, when the step fails, moves the whole saga
	// into Compensating. It is a plain bool, so it is false unless set.
	TriggersCompensation bool
	// ContinueOnFailure lets sibling branches proceed past this step's
	// failure instead of failing the saga, when TriggersCompensation is
	// false.
	ContinueOnFailure bool
}

// Definition is a validated DAG of steps plus the saga-wide timeout used
// by the background timeout monitor.
type Definition struct {
	ID          domain.SagaID
	Name        string
	Steps       []Step
	TimeoutSecs float64
}

// graph is the static shape derived from a Definition: step lookup,
// declared dependents, and a topological order (each step after all of
// its dependencies, ties in declaration order) used for dispatch and,
// reversed, for compensation.
type graph struct {
	stepByID   map[domain.StepID]Step
	dependents map[domain.StepID][]domain.StepID
	order      []domain.StepID
}

// build validates a Definition's DAG via Kahn's algorithm, the same
// validation §4.H's workflow.Build performs, and returns its graph. A
// cycle, a dependency on an unknown step, or a duplicate step ID is
// rejected.
func build(def *Definition) (*graph, error) {
	stepByID := make(map[domain.StepID]Step, len(def.Steps))
	order := make([]domain.StepID, 0, len(def.Steps))

	for _, s := range def.Steps {
		if _, dup := stepByID[s.ID]; dup {
			return nil, fmt.Errorf("saga: duplicate step id %q", s.ID)
		}
		stepByID[s.ID] = s
		order = append(order, s.ID)
	}
	if len(stepByID) == 0 {
		return nil, fmt.Errorf("saga: definition has no steps")
	}

	dependents := make(map[domain.StepID][]domain.StepID)
	inDegree := make(map[domain.StepID]int, len(def.Steps))

	for _, s := range def.Steps {
		inDegree[s.ID] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			if _, ok := stepByID[dep]; !ok {
				return nil, fmt.Errorf("saga: step %q depends on unknown step %q", s.ID, dep)
			}
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	queue := make([]domain.StepID, 0, len(def.Steps))
	for _, id := range order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	topo := make([]domain.StepID, 0, len(def.Steps))
	remaining := make(map[domain.StepID]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		topo = append(topo, id)
		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(def.Steps) {
		return nil, fmt.Errorf("saga: dependency graph contains a cycle")
	}

	return &graph{stepByID: stepByID, dependents: dependents, order: topo}, nil
}

func (g *graph) initialInDegree(id domain.StepID) int {
	return len(g.stepByID[id].DependsOn)
}

// compensationOrder returns step IDs in reverse topological order, so a
// step comes before every step it depends on. The order is fixed by the
// graph, not by the order in which steps completed at runtime: steps on
// independent branches are compensated in this static order whichever
// finished first. enterCompensating filters it to completed steps with
// a declared compensation action.
func (g *graph) compensationOrder() []domain.StepID {
	order := make([]domain.StepID, len(g.order))
	copy(order, g.order)
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}
