// Package llm holds the schema-validated boundary between the pipeline and
// the language model: the JSON Schemas for each structured stage and the
// validate-or-retry harness shared by understanding and planning.
package llm

// UnderstandingSchema constrains the understanding stage's output.
const UnderstandingSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["comparison", "strategy", "pace", "telemetry", "incident", "prediction", "results", "unknown"]
    },
    "scope": {
      "type": "string",
      "enum": ["single_driver", "multi_driver", "full_session", "cross_session"]
    },
    "drivers": {"type": "array", "items": {"type": "string"}},
    "teams": {"type": "array", "items": {"type": "string"}},
    "races": {"type": "array", "items": {"type": "string"}},
    "seasons": {"type": "array", "items": {"type": "integer"}},
    "metrics": {"type": "array", "items": {"type": "string"}},
    "sub_questions": {"type": "array", "items": {"type": "string"}},
    "hypothetical_answer": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["intent", "scope", "confidence"],
  "additionalProperties": false
}`

// PlanSchema constrains the planning stage's output. Structural invariants
// beyond the schema (group membership, dependency ordering) are enforced by
// ExecutionPlan.Validate afterwards.
const PlanSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "tool_calls": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "tool_name": {"type": "string", "minLength": 1},
          "parameters": {"type": "object"},
          "depends_on": {"type": "array", "items": {"type": "string"}},
          "purpose": {"type": "string"}
        },
        "required": ["id", "tool_name"],
        "additionalProperties": false
      }
    },
    "parallel_groups": {
      "type": "array",
      "items": {"type": "array", "items": {"type": "string"}}
    },
    "reasoning": {"type": "string"}
  },
  "required": ["tool_calls", "parallel_groups"],
  "additionalProperties": false
}`
