package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Input injects a configured value into the graph. It has no input ports and
// is the usual root of a workflow.
type Input struct{}

func (i *Input) Metadata() Metadata {
	return Metadata{
		Type:        "input",
		Name:        "Input",
		Description: "Emits a configured value as the workflow entry point.",
		Outputs: []Port{
			{ID: "value", Name: "Value", Type: "any"},
		},
		Config: []ConfigField{
			{Name: "value", Type: "any", Required: true, Description: "The value to emit"},
		},
	}
}

func (i *Input) Invoke(_ context.Context, _, config map[string]any) (map[string]any, error) {
	return map[string]any{"value": config["value"]}, nil
}

// Output terminates a branch, echoing whatever arrives so the run result
// carries it under the node's id.
type Output struct{}

func (o *Output) Metadata() Metadata {
	return Metadata{
		Type:        "output",
		Name:        "Output",
		Description: "Collects a final value of the workflow.",
		Inputs: []Port{
			{ID: "value", Name: "Value", Type: "any", Required: true},
		},
		Outputs: []Port{
			{ID: "value", Name: "Value", Type: "any"},
		},
	}
}

func (o *Output) Invoke(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
	if v, ok := inputs["value"]; ok {
		return map[string]any{"value": v}, nil
	}
	// No addressed port: pass the whole (possibly partial) input map through.
	return map[string]any{"value": inputs}, nil
}

// Merge combines the outputs of several upstream nodes into one object.
type Merge struct{}

func (m *Merge) Metadata() Metadata {
	return Metadata{
		Type:        "merge",
		Name:        "Merge",
		Description: "Merges all incoming values into a single object.",
		Inputs: []Port{
			{ID: "values", Name: "Values", Type: "any", AcceptsMultiple: true},
		},
		Outputs: []Port{
			{ID: "merged", Name: "Merged", Type: "object"},
		},
	}
}

func (m *Merge) Invoke(_ context.Context, inputs, _ map[string]any) (map[string]any, error) {
	merged := make(map[string]any, len(inputs))
	for k, v := range inputs {
		merged[k] = v
	}
	return map[string]any{"merged": merged}, nil
}

var templateRef = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// Template renders a configured string, replacing {{key}} references with
// values from the input map.
type Template struct{}

func (t *Template) Metadata() Metadata {
	return Metadata{
		Type:        "template",
		Name:        "Template",
		Description: "Renders a template string with {{key}} placeholders resolved from inputs.",
		Inputs: []Port{
			{ID: "values", Name: "Values", Type: "any", AcceptsMultiple: true},
		},
		Outputs: []Port{
			{ID: "text", Name: "Text", Type: "string"},
		},
		Config: []ConfigField{
			{Name: "template", Type: "string", Required: true, Description: "Template with {{key}} placeholders"},
		},
	}
}

func (t *Template) Invoke(_ context.Context, inputs, config map[string]any) (map[string]any, error) {
	tmpl, _ := config["template"].(string)
	if tmpl == "" {
		return nil, fmt.Errorf("template config is required")
	}
	text := templateRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		key := strings.TrimSpace(strings.Trim(ref, "{}"))
		if v, ok := inputs[key]; ok {
			return fmt.Sprintf("%v", v)
		}
		return ref
	})
	return map[string]any{"text": text}, nil
}
