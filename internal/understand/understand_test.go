package understand

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/llm"
)

type scriptedModel struct {
	responses []string
	errs      []error
	prompts   []string
	history   [][]pitwall.Message
}

func (m *scriptedModel) Complete(ctx context.Context, prompt string, history []pitwall.Message) (string, error) {
	return "", errors.New("not used")
}

func (m *scriptedModel) CompleteStructured(ctx context.Context, prompt string, history []pitwall.Message, schema string) (json.RawMessage, error) {
	i := len(m.prompts)
	m.prompts = append(m.prompts, prompt)
	m.history = append(m.history, history)
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	return json.RawMessage(m.responses[i]), nil
}

const comparisonJSON = `{
	"intent": "comparison",
	"scope": "multi_driver",
	"drivers": ["VER", "HAM"],
	"seasons": [2024],
	"races": ["monza"],
	"hypothetical_answer": "VER was a few tenths quicker per lap.",
	"confidence": 0.92
}`

func TestUnderstandParsesModelResponse(t *testing.T) {
	model := &scriptedModel{responses: []string{comparisonJSON}}
	u := New(model)

	got, err := u.Understand(context.Background(), "Compare VER and HAM at Monza 2024", nil, nil)
	if err != nil {
		t.Fatalf("Understand returned error: %v", err)
	}
	if got.Intent != pitwall.IntentComparison || got.Scope != pitwall.ScopeMultiDriver {
		t.Errorf("unexpected classification: %+v", got)
	}
	if len(got.Drivers) != 2 || got.Drivers[0] != "VER" {
		t.Errorf("unexpected drivers: %v", got.Drivers)
	}
	if got.Confidence != 0.92 {
		t.Errorf("unexpected confidence: %v", got.Confidence)
	}
}

func TestUnderstandFallsBackOnSchemaExhaustion(t *testing.T) {
	violation := &llm.ValidationError{Issues: []string{"intent is required"}}
	model := &scriptedModel{
		errs:      []error{violation, violation},
		responses: []string{"", ""},
	}
	u := New(model, WithSchemaRetries(1))

	got, err := u.Understand(context.Background(), "gibberish", nil, nil)
	if err != nil {
		t.Fatalf("schema exhaustion must not fail the turn: %v", err)
	}
	if got.Intent != pitwall.IntentUnknown || got.Confidence != 0 {
		t.Errorf("expected the fallback understanding, got %+v", got)
	}
	if len(model.prompts) != 2 {
		t.Errorf("retries=1 means 2 attempts, got %d", len(model.prompts))
	}
}

func TestUnderstandTransportErrorPropagates(t *testing.T) {
	transport := errors.New("model unreachable")
	model := &scriptedModel{errs: []error{transport}, responses: []string{""}}
	u := New(model)

	_, err := u.Understand(context.Background(), "anything", nil, nil)
	if !errors.Is(err, transport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if len(model.prompts) != 1 {
		t.Errorf("transport errors must not be retried, got %d attempts", len(model.prompts))
	}
}

func TestUnderstandHistoryReachesModel(t *testing.T) {
	model := &scriptedModel{responses: []string{comparisonJSON}}
	u := New(model)

	history := []pitwall.Message{
		{Role: "user", Content: "How was VER's pace at Monza?"},
		{Role: "assistant", Content: "VER averaged 82.1s per lap."},
	}
	if _, err := u.Understand(context.Background(), "And compared to HAM?", history, nil); err != nil {
		t.Fatalf("Understand returned error: %v", err)
	}
	if len(model.history[0]) != 2 {
		t.Errorf("history not passed through, got %d messages", len(model.history[0]))
	}
}

func TestBuildPromptIncludesRecalledFacts(t *testing.T) {
	facts := []pitwall.Fact{
		{Kind: "entity", Content: "asked about driver VER"},
		{Kind: "observation", Content: "interested in strategy analysis"},
	}
	prompt := buildPrompt("How did the stints play out?", facts)
	if !strings.Contains(prompt, "asked about driver VER") {
		t.Error("prompt should carry recalled facts")
	}
	if !strings.Contains(prompt, "[observation]") {
		t.Error("prompt should label fact kinds")
	}
	if !strings.Contains(prompt, "How did the stints play out?") {
		t.Error("prompt should carry the question")
	}

	bare := buildPrompt("q", nil)
	if strings.Contains(bare, "KNOWN ABOUT THIS USER") {
		t.Error("no recalled facts means no user section")
	}
}
