package pitwall

import (
	"fmt"
	"strings"
	"time"
)

// Intent classifies what kind of answer the user is after.
type Intent string

const (
	IntentComparison Intent = "comparison"
	IntentStrategy   Intent = "strategy"
	IntentPace       Intent = "pace"
	IntentTelemetry  Intent = "telemetry"
	IntentIncident   Intent = "incident"
	IntentPrediction Intent = "prediction"
	IntentResults    Intent = "results"
	IntentUnknown    Intent = "unknown"
)

// Scope describes how much of a session (or how many sessions) the
// question spans.
type Scope string

const (
	ScopeSingleDriver Scope = "single_driver"
	ScopeMultiDriver  Scope = "multi_driver"
	ScopeFullSession  Scope = "full_session"
	ScopeCrossSession Scope = "cross_session"
)

// QueryUnderstanding is the structured interpretation of a natural-language
// question. It is produced once per turn and treated as immutable afterwards.
type QueryUnderstanding struct {
	Intent             Intent   `json:"intent"`
	Scope              Scope    `json:"scope"`
	Drivers            []string `json:"drivers"`
	Teams              []string `json:"teams"`
	Races              []string `json:"races"`
	Seasons            []int    `json:"seasons"`
	Metrics            []string `json:"metrics"`
	SubQuestions       []string `json:"sub_questions"`
	HypotheticalAnswer string   `json:"hypothetical_answer"`
	Confidence         float64  `json:"confidence"`
}

// FallbackUnderstanding is the degenerate interpretation used when the model
// cannot produce a schema-valid one. Confidence zero signals downstream
// stages to hedge.
func FallbackUnderstanding() QueryUnderstanding {
	return QueryUnderstanding{
		Intent:     IntentUnknown,
		Scope:      ScopeFullSession,
		Confidence: 0,
	}
}

// ToolCall is a single planned retrieval: which tool, with which parameters,
// and which earlier calls it depends on.
type ToolCall struct {
	ID         string                 `json:"id"`
	ToolName   string                 `json:"tool_name"`
	Parameters map[string]interface{} `json:"parameters"`
	DependsOn  []string               `json:"depends_on,omitempty"`
	Purpose    string                 `json:"purpose,omitempty"`
}

// ExecutionPlan is the planner's output: a set of tool calls partitioned
// into ordered groups. Calls within a group are independent and may run
// concurrently; a group only starts after the previous group has fully
// joined.
type ExecutionPlan struct {
	ToolCalls []ToolCall `json:"tool_calls"`
	Groups    [][]string `json:"parallel_groups"`
	Reasoning string     `json:"reasoning,omitempty"`
}

// Call looks up a tool call by id.
func (p *ExecutionPlan) Call(id string) (*ToolCall, bool) {
	for i := range p.ToolCalls {
		if p.ToolCalls[i].ID == id {
			return &p.ToolCalls[i], true
		}
	}
	return nil, false
}

// Empty reports whether the plan schedules no work at all.
func (p *ExecutionPlan) Empty() bool {
	return p == nil || len(p.ToolCalls) == 0
}

// Validate checks the structural invariants of the plan: unique call ids,
// every call placed in exactly one group, every group member defined,
// dependencies referencing defined calls in strictly earlier groups, and
// (when a registry lookup is supplied) only registered tool names.
func (p *ExecutionPlan) Validate(registered func(toolName string) bool) error {
	var problems []string

	seen := make(map[string]bool, len(p.ToolCalls))
	for _, tc := range p.ToolCalls {
		if tc.ID == "" {
			problems = append(problems, "tool call with empty id")
			continue
		}
		if seen[tc.ID] {
			problems = append(problems, fmt.Sprintf("duplicate tool call id '%s'", tc.ID))
		}
		seen[tc.ID] = true
		if tc.ToolName == "" {
			problems = append(problems, fmt.Sprintf("call '%s' has no tool name", tc.ID))
		} else if registered != nil && !registered(tc.ToolName) {
			problems = append(problems, fmt.Sprintf("call '%s' references unknown tool '%s'", tc.ID, tc.ToolName))
		}
	}

	// groupOf maps call id to its group index; membership must be exclusive.
	groupOf := make(map[string]int, len(p.ToolCalls))
	for gi, group := range p.Groups {
		for _, id := range group {
			if !seen[id] {
				problems = append(problems, fmt.Sprintf("group %d references undefined call '%s'", gi, id))
				continue
			}
			if prev, ok := groupOf[id]; ok {
				problems = append(problems, fmt.Sprintf("call '%s' appears in groups %d and %d", id, prev, gi))
				continue
			}
			groupOf[id] = gi
		}
	}
	for _, tc := range p.ToolCalls {
		if tc.ID == "" {
			continue
		}
		if _, ok := groupOf[tc.ID]; !ok {
			problems = append(problems, fmt.Sprintf("call '%s' is not assigned to any group", tc.ID))
		}
	}

	// Dependencies must resolve to earlier groups. That ordering also rules
	// out cycles, so no separate cycle walk is needed.
	for _, tc := range p.ToolCalls {
		for _, dep := range tc.DependsOn {
			if !seen[dep] {
				problems = append(problems, fmt.Sprintf("call '%s' depends on undefined call '%s'", tc.ID, dep))
				continue
			}
			cg, cok := groupOf[tc.ID]
			dg, dok := groupOf[dep]
			if cok && dok && dg >= cg {
				problems = append(problems, fmt.Sprintf("call '%s' (group %d) depends on '%s' (group %d), which does not run earlier", tc.ID, cg, dep, dg))
			}
		}
	}

	if len(problems) > 0 {
		return NewValidationError("planning", "invalid execution plan: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// Tool result error codes, recorded per call rather than failing the group.
const (
	ToolErrTimeout       = "timeout"
	ToolErrNotFound      = "not_found"
	ToolErrExecution     = "execution"
	ToolErrInvalidParams = "invalid_params"
	ToolErrPanic         = "panic"
)

// ToolError captures a single call's failure without aborting its group.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ToolResult is the outcome of one tool call. Exactly one of Payload or Err
// is meaningful.
type ToolResult struct {
	CallID   string        `json:"call_id"`
	ToolName string        `json:"tool_name"`
	Payload  interface{}   `json:"payload,omitempty"`
	Err      *ToolError    `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the call ended in an error.
func (r ToolResult) Failed() bool {
	return r.Err != nil
}

// Message is one conversational exchange handed to the model as context.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Fact is a remembered statement about a subject, surfaced to Understanding
// on later turns.
type Fact struct {
	Kind      string    `json:"kind"` // e.g. "preference", "entity", "observation"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ConversationContext carries the per-session state accompanying a question.
type ConversationContext struct {
	SessionID string    `json:"session_id,omitempty"`
	SubjectID string    `json:"subject_id,omitempty"` // long-term memory key, usually the user
	History   []Message `json:"history,omitempty"`
}
