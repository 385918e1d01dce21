package policy

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/lion-dev/lion/internal/domain"
)

// conditionEnv is the evaluation environment exposed to a rule's compiled
// condition expression: the plugin id and the flattened request
// attributes, following the same "env struct passed to expr.Compile"
// pattern the teacher uses for its control-filter expressions
// (internal/engine ExecutionConfig.FilterProgram).
type conditionEnv struct {
	Plugin string
	Kind   string
	Path   string
	Host   string
	Port   int
	Target string
	Region string
	Topic  string
}

func newConditionEnv(plugin domain.PluginID, req domain.AccessRequest) conditionEnv {
	return conditionEnv{
		Plugin: string(plugin),
		Kind:   string(req.Kind),
		Path:   req.Path,
		Host:   req.Host,
		Port:   int(req.Port),
		Target: req.Target,
		Region: req.Region,
		Topic:  req.Topic,
	}
}

// CompileCondition compiles a boolean expr-lang expression over
// conditionEnv, e.g. `Kind == "network" && Port == 443`.
func CompileCondition(source string) (*vm.Program, error) {
	return expr.Compile(source, expr.Env(conditionEnv{}), expr.AsBool())
}

// evalCondition runs a compiled condition; a nil program always matches.
func evalCondition(program *vm.Program, plugin domain.PluginID, req domain.AccessRequest) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, newConditionEnv(plugin, req))
	if err != nil {
		return false, err
	}
	result, _ := out.(bool)
	return result, nil
}
