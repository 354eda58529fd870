package pitwall

import (
	"context"
	"encoding/json"
)

// Understander turns a natural-language question into a structured
// QueryUnderstanding. Implementations fall back to a degenerate
// understanding on schema failures and only return an error when the model
// itself is unreachable.
type Understander interface {
	Understand(ctx context.Context, question string, history []Message, recalled []Fact) (QueryUnderstanding, error)
}

// PlannerInput contains the information needed by the Planner to generate a
// plan. Feedback is non-empty only on evaluator-driven retry passes.
type PlannerInput struct {
	Understanding QueryUnderstanding                `json:"understanding"`
	ToolSchemas   map[string]map[string]interface{} `json:"tool_schemas"`
	Feedback      string                            `json:"feedback,omitempty"`
	Iteration     int                               `json:"iteration"`
}

// Planner produces a validated ExecutionPlan for a given understanding.
type Planner interface {
	Plan(ctx context.Context, input PlannerInput) (*ExecutionPlan, error)
}

// Executor runs a plan group by group and returns one ToolResult per call.
// Individual call failures are recorded in their results, never returned as
// the error; the error return is reserved for context cancellation and
// deadline expiry between groups.
type Executor interface {
	ExecutePlan(ctx context.Context, plan *ExecutionPlan) (map[string]ToolResult, error)
}

// Aggregator reduces raw tool results into an AggregatedAnalysis. It is
// pure and deterministic: no model calls, no clocks, stable output for a
// given input.
type Aggregator interface {
	Aggregate(results map[string]ToolResult, understanding QueryUnderstanding) (*AggregatedAnalysis, error)
}

// GeneratorInput is everything the generator may see. Raw tool payloads are
// deliberately absent; the generator works from the aggregated digest only.
type GeneratorInput struct {
	Question      string
	Understanding QueryUnderstanding
	Analysis      *AggregatedAnalysis
	Outcome       EvaluationOutcome
	Partial       bool
}

// Generator synthesizes the final answer text and visualization.
type Generator interface {
	Generate(ctx context.Context, input GeneratorInput) (*FinalAnswer, error)
}

// Tool represents an executable retrieval capability registered with the
// runtime.
type Tool interface {
	// Execute performs the tool's action with the given parameters.
	Execute(ctx context.Context, params map[string]interface{}) (interface{}, error)

	// Schema returns a description of the tool, used by the Planner.
	// Standard keys should include:
	// - "description": string description of what the tool does
	// - "parameters": map of parameter names to their descriptions
	// - "returns": description of the tool's return value
	// - "category": optional category for grouping related tools
	Schema() map[string]interface{}

	// Validate checks if the provided parameters are valid for this tool.
	// Returns nil if valid, error otherwise.
	Validate(params map[string]interface{}) error

	// Name returns the tool's name.
	Name() string
}

// LanguageModel is the minimal completion surface the pipeline depends on.
type LanguageModel interface {
	// Complete returns free-form text for a prompt plus conversation history.
	Complete(ctx context.Context, prompt string, history []Message) (string, error)

	// CompleteStructured returns a JSON document validated against the given
	// JSON Schema. A schema violation surfaces as a typed validation error so
	// callers can retry with the violation appended to the prompt.
	CompleteStructured(ctx context.Context, prompt string, history []Message, schema string) (json.RawMessage, error)
}

// Memory is the long-term fact store consulted around each turn. Both
// operations are best effort: failures are logged, never fatal to a turn.
type Memory interface {
	Recall(ctx context.Context, subjectID, query string) ([]Fact, error)
	Remember(ctx context.Context, subjectID string, facts []Fact) error
}

// Cache provides storage for frequently accessed data, like generated plans.
type Cache interface {
	Get(ctx context.Context, key string) (interface{}, bool)
	Set(ctx context.Context, key string, value interface{})
}
