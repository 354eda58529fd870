package adapters

import (
	"context"
	"errors"
	"testing"
)

func echoTool(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	if params["fail"] == true {
		return nil, errors.New("fail")
	}
	return map[string]interface{}{"ok": true}, nil
}

func TestFuncTool_Execute_SuccessAndFailure(t *testing.T) {
	tool := NewFuncTool("dummy", echoTool)
	res, err := tool.Execute(context.Background(), map[string]interface{}{})
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	payload, ok := res.(map[string]interface{})
	if !ok || payload["ok"] != true {
		t.Errorf("expected ok=true payload, got %v", res)
	}

	_, err = tool.Execute(context.Background(), map[string]interface{}{"fail": true})
	if err == nil {
		t.Error("expected error for failing tool, got nil")
	}
}

func TestFuncTool_Validate(t *testing.T) {
	tool := NewFuncTool("dummy", echoTool,
		WithValidator(func(params map[string]interface{}) error {
			if params["bad"] == true {
				return errors.New("bad params")
			}
			return nil
		}),
	)
	if err := tool.Validate(map[string]interface{}{"bad": true}); err == nil {
		t.Error("expected error for bad params, got nil")
	}
	if err := tool.Validate(map[string]interface{}{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	// Validation failures surface through Execute as well
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"bad": true}); err == nil {
		t.Error("expected Execute to reject invalid params")
	}
}

func TestFuncTool_SchemaOptions(t *testing.T) {
	tool := NewFuncTool("laps", echoTool,
		WithDescription("fetch lap times"),
		WithCategory("timeseries"),
		WithParameters(map[string]string{"driver": "three letter driver code"}),
		WithReturns("list of lap records"),
	)

	schema := tool.Schema()
	if schema["name"] != "laps" {
		t.Errorf("expected name 'laps', got %v", schema["name"])
	}
	if schema["description"] != "fetch lap times" {
		t.Errorf("expected description to be set, got %v", schema["description"])
	}
	if schema["category"] != "timeseries" {
		t.Errorf("expected category to be set, got %v", schema["category"])
	}
	params, ok := schema["parameters"].(map[string]string)
	if !ok || params["driver"] == "" {
		t.Errorf("expected parameters map, got %v", schema["parameters"])
	}
}
