package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pitwall-ai/pitwall"
)

// scriptedModel returns canned responses in order; a nil entry means a
// schema violation for that attempt.
type scriptedModel struct {
	responses []string
	errs      []error
	prompts   []string
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string, history []pitwall.Message) (string, error) {
	return "", errors.New("not used")
}

func (m *scriptedModel) CompleteStructured(ctx context.Context, prompt string, history []pitwall.Message, schema string) (json.RawMessage, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return json.RawMessage(m.responses[i]), nil
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStructuredFirstAttemptSucceeds(t *testing.T) {
	model := &scriptedModel{responses: []string{`{"name":"ok","count":3}`}}

	got, err := Structured[payload](context.Background(), model, "prompt", nil, "{}", 2)
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if got.Name != "ok" || got.Count != 3 {
		t.Errorf("unexpected decode: %+v", got)
	}
	if len(model.prompts) != 1 {
		t.Errorf("expected 1 model call, got %d", len(model.prompts))
	}
}

func TestStructuredRetriesOnSchemaViolation(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{&ValidationError{Issues: []string{"intent is required"}}, nil},
		responses: []string{"", `{"name":"ok","count":1}`},
	}

	got, err := Structured[payload](context.Background(), model, "prompt", nil, "{}", 2)
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if got.Name != "ok" {
		t.Errorf("unexpected decode: %+v", got)
	}
	if len(model.prompts) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(model.prompts))
	}
	// The retry prompt carries the violation, appended to the original
	// prompt rather than to the previous retry prompt.
	retry := model.prompts[1]
	if !strings.Contains(retry, "intent is required") {
		t.Errorf("retry prompt missing violation: %q", retry)
	}
	if !strings.HasPrefix(retry, "prompt") {
		t.Errorf("retry prompt should extend the original: %q", retry)
	}
}

func TestStructuredRetriesOnDecodeFailure(t *testing.T) {
	model := &scriptedModel{
		responses: []string{`{"name": 42}`, `{"name":"ok"}`},
	}

	got, err := Structured[payload](context.Background(), model, "prompt", nil, "{}", 1)
	if err != nil {
		t.Fatalf("Structured returned error: %v", err)
	}
	if got.Name != "ok" {
		t.Errorf("unexpected decode: %+v", got)
	}
	if !strings.Contains(model.prompts[1], "did not decode") {
		t.Errorf("retry prompt missing decode issue: %q", model.prompts[1])
	}
}

func TestStructuredTransportErrorAborts(t *testing.T) {
	transport := errors.New("connection refused")
	model := &scriptedModel{errs: []error{transport}}

	_, err := Structured[payload](context.Background(), model, "prompt", nil, "{}", 3)
	if !errors.Is(err, transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(model.prompts) != 1 {
		t.Errorf("transport errors must not be retried, got %d calls", len(model.prompts))
	}
}

func TestStructuredExhaustionReturnsLastValidationError(t *testing.T) {
	model := &scriptedModel{
		errs: []error{
			&ValidationError{Issues: []string{"first"}},
			&ValidationError{Issues: []string{"second"}},
		},
		responses: []string{"", ""},
	}

	_, err := Structured[payload](context.Background(), model, "prompt", nil, "{}", 1)
	if err == nil {
		t.Fatal("expected validation error after exhaustion")
	}
	if !IsValidationError(err) {
		t.Fatalf("expected a validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "second") {
		t.Errorf("expected the last violation, got %v", err)
	}
	if len(model.prompts) != 2 {
		t.Errorf("retries=1 means 2 attempts, got %d", len(model.prompts))
	}
}

func TestIsValidationError(t *testing.T) {
	ve := &ValidationError{Issues: []string{"x"}}
	if !IsValidationError(ve) {
		t.Error("direct validation error not recognized")
	}
	if !IsValidationError(errors.Join(errors.New("outer"), ve)) {
		t.Error("wrapped validation error not recognized")
	}
	if IsValidationError(errors.New("plain")) {
		t.Error("plain error misclassified")
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```\nDone.", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `The answer is {"a":1} as requested.`, `{"a":1}`},
		{"array", `Result: [1,2,3] ok`, `[1,2,3]`},
		{"clean object", `{"a":1}`, `{"a":1}`},
		{"no json", "no structure here", "no structure here"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractJSON(tt.in); got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSchemasAreValidJSON(t *testing.T) {
	for name, schema := range map[string]string{
		"understanding": UnderstandingSchema,
		"plan":          PlanSchema,
	} {
		var doc map[string]interface{}
		if err := json.Unmarshal([]byte(schema), &doc); err != nil {
			t.Errorf("%s schema is not valid JSON: %v", name, err)
		}
	}
}
