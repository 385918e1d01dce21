package workflow

import "github.com/lion-dev/lion/internal/domain"

// mergeInputs implements spec.md §4.H step 2's input-merge rule: a JSON
// object union of the workflow's original input and every dependency's
// recorded output, applied in declaration order so that a later
// dependency's keys win over an earlier one's, and the node's own
// declared dependency order wins over the workflow input.
//
// Non-object values (including a nil workflow input) are treated as an
// empty object contribution: only map[string]any layers participate in
// the union. A node with a single non-object dependency output
// receives that value directly instead of an object merge.
func mergeInputs(workflowInput any, depOutputs []any) any {
	if len(depOutputs) == 0 {
		return workflowInput
	}
	if len(depOutputs) == 1 {
		if _, isObject := depOutputs[0].(map[string]any); !isObject {
			return depOutputs[0]
		}
	}

	merged := make(map[string]any)
	mergeObjectInto(merged, workflowInput)
	for _, out := range depOutputs {
		mergeObjectInto(merged, out)
	}
	return merged
}

func mergeObjectInto(dst map[string]any, value any) {
	obj, ok := value.(map[string]any)
	if !ok {
		return
	}
	for k, v := range obj {
		dst[k] = v
	}
}

// dependencyOutputsInOrder gathers node's dependency outputs from
// outputs in the node's own DependsOn declaration order.
func dependencyOutputsInOrder(node Node, outputs map[domain.NodeID]any) []any {
	result := make([]any, 0, len(node.DependsOn))
	for _, dep := range node.DependsOn {
		result = append(result, outputs[dep])
	}
	return result
}
