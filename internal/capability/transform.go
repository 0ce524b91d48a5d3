package capability

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// Transform evaluates an expression over the input map. The expression can
// reference input keys as variables, e.g. "len(items) > 0 ? items[0] : nil".
type Transform struct{}

func (t *Transform) Metadata() Metadata {
	return Metadata{
		Type:        "transform",
		Name:        "Transform",
		Description: "Evaluates an expression over the incoming values.",
		Inputs: []Port{
			{ID: "values", Name: "Values", Type: "any", AcceptsMultiple: true},
		},
		Outputs: []Port{
			{ID: "result", Name: "Result", Type: "any"},
		},
		Config: []ConfigField{
			{Name: "expression", Type: "string", Required: true, Description: "Expression referencing input keys"},
		},
	}
}

func (t *Transform) Invoke(_ context.Context, inputs, config map[string]any) (map[string]any, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("expression config is required")
	}

	env := make(map[string]any, len(inputs))
	for k, v := range inputs {
		env[k] = v
	}

	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	return map[string]any{"result": result}, nil
}
