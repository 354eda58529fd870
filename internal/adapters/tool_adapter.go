package adapters

import (
	"context"
	"fmt"
)

// FuncTool exposes a plain Go retrieval function as a pitwall.Tool. The
// schema it carries is what the planner prompt shows the model, so the
// description and parameter docs directly shape which calls get planned.
type FuncTool struct {
	fn        func(ctx context.Context, params map[string]interface{}) (interface{}, error)
	schema    map[string]interface{}
	name      string
	validator func(map[string]interface{}) error
}

// ToolOption configures a FuncTool.
type ToolOption func(*FuncTool)

// WithValidator sets the parameter check run before every execution.
// Rejected calls surface as invalid_params results instead of reaching
// the backend.
func WithValidator(validator func(map[string]interface{}) error) ToolOption {
	return func(t *FuncTool) {
		t.validator = validator
	}
}

// WithCategory groups the tool in its schema (Timeseries, Entities, ...).
func WithCategory(category string) ToolOption {
	return func(t *FuncTool) {
		t.schema["category"] = category
	}
}

// WithDescription sets the planner-facing description of what the tool
// retrieves.
func WithDescription(description string) ToolOption {
	return func(t *FuncTool) {
		t.schema["description"] = description
	}
}

// WithParameters documents the tool's parameters for the planner prompt.
func WithParameters(parameters map[string]string) ToolOption {
	return func(t *FuncTool) {
		t.schema["parameters"] = parameters
	}
}

// WithReturns documents the shape of the tool's payload.
func WithReturns(returns string) ToolOption {
	return func(t *FuncTool) {
		t.schema["returns"] = returns
	}
}

// WithExamples adds example invocations to the schema.
func WithExamples(examples []string) ToolOption {
	return func(t *FuncTool) {
		t.schema["examples"] = examples
	}
}

// NewFuncTool wraps a retrieval function under the given tool name.
func NewFuncTool(
	name string,
	fn func(ctx context.Context, params map[string]interface{}) (interface{}, error),
	options ...ToolOption) *FuncTool {

	t := &FuncTool{
		fn:     fn,
		schema: map[string]interface{}{"name": name},
		name:   name,
		validator: func(params map[string]interface{}) error {
			if params == nil {
				return fmt.Errorf("params cannot be nil")
			}
			return nil
		},
	}

	for _, option := range options {
		option(t)
	}

	return t
}

// Execute validates the parameters and runs the wrapped function.
func (t *FuncTool) Execute(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if t.fn == nil {
		return nil, fmt.Errorf("tool function is nil")
	}

	if err := t.Validate(params); err != nil {
		return nil, fmt.Errorf("param validation failed for %s: %w", t.name, err)
	}

	return t.fn(ctx, params)
}

// Schema returns the planner-facing schema.
func (t *FuncTool) Schema() map[string]interface{} {
	return t.schema
}

// Validate runs the configured parameter check.
func (t *FuncTool) Validate(params map[string]interface{}) error {
	if t.validator != nil {
		return t.validator(params)
	}
	return nil
}

// Name returns the tool name the planner schedules by.
func (t *FuncTool) Name() string {
	return t.name
}
