package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/xeipuuv/gojsonschema"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/llm"
)

// GenkitModel adapts a Genkit instance to the pitwall.LanguageModel
// interface. Structured completions are validated against the caller's JSON
// Schema before being returned; violations surface as llm.ValidationError
// so the harness can retry.
type GenkitModel struct {
	g         *genkit.Genkit
	modelName string
}

// GenkitModelOption configures a GenkitModel.
type GenkitModelOption func(*GenkitModel)

// WithModelName overrides the Genkit default model for this adapter.
func WithModelName(name string) GenkitModelOption {
	return func(m *GenkitModel) {
		m.modelName = name
	}
}

// NewGenkitModel creates a language model adapter over a Genkit instance.
func NewGenkitModel(g *genkit.Genkit, options ...GenkitModelOption) *GenkitModel {
	m := &GenkitModel{g: g}
	for _, option := range options {
		option(m)
	}
	return m
}

// Complete implements pitwall.LanguageModel.
func (m *GenkitModel) Complete(ctx context.Context, prompt string, history []pitwall.Message) (string, error) {
	opts := m.generateOptions(prompt, history)
	resp, err := genkit.Generate(ctx, m.g, opts...)
	if err != nil {
		return "", pitwall.NewModelUnavailableError("completion", err)
	}
	return resp.Text(), nil
}

// CompleteStructured implements pitwall.LanguageModel. The prompt is
// augmented with the schema and the response is validated against it.
func (m *GenkitModel) CompleteStructured(ctx context.Context, prompt string, history []pitwall.Message, schema string) (json.RawMessage, error) {
	structuredPrompt := prompt +
		"\n\nRespond with a single JSON object that conforms to this JSON Schema. " +
		"Output only the JSON, no prose.\n" + schema

	opts := m.generateOptions(structuredPrompt, history)
	resp, err := genkit.Generate(ctx, m.g, opts...)
	if err != nil {
		return nil, pitwall.NewModelUnavailableError("completion", err)
	}

	raw := llm.ExtractJSON(resp.Text())
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, &llm.ValidationError{
			Issues: []string{fmt.Sprintf("response is not valid JSON: %v", err)},
			Raw:    raw,
		}
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, re := range result.Errors() {
			issues = append(issues, re.String())
		}
		return nil, &llm.ValidationError{Issues: issues, Raw: raw}
	}

	return json.RawMessage(raw), nil
}

// generateOptions assembles the Genkit call options for a prompt plus
// conversation history.
func (m *GenkitModel) generateOptions(prompt string, history []pitwall.Message) []ai.GenerateOption {
	var opts []ai.GenerateOption
	if m.modelName != "" {
		opts = append(opts, ai.WithModelName(m.modelName))
	}
	if len(history) > 0 {
		msgs := make([]*ai.Message, 0, len(history))
		for _, msg := range history {
			if msg.Role == "assistant" {
				msgs = append(msgs, ai.NewModelTextMessage(msg.Content))
			} else {
				msgs = append(msgs, ai.NewUserTextMessage(msg.Content))
			}
		}
		opts = append(opts, ai.WithMessages(msgs...))
	}
	opts = append(opts, ai.WithPrompt(prompt))
	return opts
}
