package pitwall

import (
	"strings"
	"testing"
)

func allRegistered(string) bool { return true }

func validTwoGroupPlan() *ExecutionPlan {
	return &ExecutionPlan{
		ToolCalls: []ToolCall{
			{ID: "laps_VER", ToolName: "get_lap_times"},
			{ID: "laps_HAM", ToolName: "get_lap_times"},
			{ID: "results", ToolName: "get_session_results", DependsOn: []string{"laps_VER"}},
		},
		Groups: [][]string{{"laps_VER", "laps_HAM"}, {"results"}},
	}
}

func TestPlanValidateAcceptsWellFormedPlan(t *testing.T) {
	if err := validTwoGroupPlan().Validate(allRegistered); err != nil {
		t.Errorf("well-formed plan rejected: %v", err)
	}
}

func TestPlanValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		plan *ExecutionPlan
		want string
	}{
		{
			name: "duplicate id",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{
					{ID: "a", ToolName: "t"},
					{ID: "a", ToolName: "t"},
				},
				Groups: [][]string{{"a"}},
			},
			want: "duplicate tool call id",
		},
		{
			name: "empty id",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{ToolName: "t"}},
				Groups:    [][]string{},
			},
			want: "empty id",
		},
		{
			name: "call in no group",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{ID: "a", ToolName: "t"}},
				Groups:    [][]string{},
			},
			want: "not assigned to any group",
		},
		{
			name: "call in two groups",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{ID: "a", ToolName: "t"}},
				Groups:    [][]string{{"a"}, {"a"}},
			},
			want: "appears in groups",
		},
		{
			name: "group references undefined call",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{ID: "a", ToolName: "t"}},
				Groups:    [][]string{{"a", "ghost"}},
			},
			want: "undefined call 'ghost'",
		},
		{
			name: "dependency in same group",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{
					{ID: "a", ToolName: "t"},
					{ID: "b", ToolName: "t", DependsOn: []string{"a"}},
				},
				Groups: [][]string{{"a", "b"}},
			},
			want: "does not run earlier",
		},
		{
			name: "dependency in later group",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{
					{ID: "a", ToolName: "t", DependsOn: []string{"b"}},
					{ID: "b", ToolName: "t"},
				},
				Groups: [][]string{{"a"}, {"b"}},
			},
			want: "does not run earlier",
		},
		{
			name: "dependency on undefined call",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{ID: "a", ToolName: "t", DependsOn: []string{"ghost"}}},
				Groups:    [][]string{{"a"}},
			},
			want: "depends on undefined call",
		},
		{
			name: "unregistered tool",
			plan: &ExecutionPlan{
				ToolCalls: []ToolCall{{ID: "a", ToolName: "nope"}},
				Groups:    [][]string{{"a"}},
			},
			want: "unknown tool",
		},
	}

	registered := func(name string) bool { return name == "t" }
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate(registered)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
			if ErrorCode(err) != ErrCodeValidation {
				t.Errorf("expected %s, got %s", ErrCodeValidation, ErrorCode(err))
			}
		})
	}
}

func TestPlanValidateReportsAllProblems(t *testing.T) {
	plan := &ExecutionPlan{
		ToolCalls: []ToolCall{
			{ID: "a", ToolName: "nope"},
			{ID: "a", ToolName: "t"},
		},
		Groups: [][]string{},
	}
	err := plan.Validate(func(name string) bool { return name == "t" })
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"duplicate tool call id", "unknown tool", "not assigned to any group"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestPlanEmpty(t *testing.T) {
	var nilPlan *ExecutionPlan
	if !nilPlan.Empty() {
		t.Error("nil plan must be empty")
	}
	if !(&ExecutionPlan{}).Empty() {
		t.Error("plan without calls must be empty")
	}
	if validTwoGroupPlan().Empty() {
		t.Error("plan with calls must not be empty")
	}
}

func TestPlanCall(t *testing.T) {
	plan := validTwoGroupPlan()
	call, ok := plan.Call("laps_HAM")
	if !ok || call.ToolName != "get_lap_times" {
		t.Errorf("Call lookup failed: ok=%v call=%+v", ok, call)
	}
	if _, ok := plan.Call("ghost"); ok {
		t.Error("unknown id must not resolve")
	}
}

func TestToolResultFailed(t *testing.T) {
	ok := ToolResult{CallID: "a", Payload: 1}
	if ok.Failed() {
		t.Error("result with payload must not be failed")
	}
	bad := ToolResult{CallID: "b", Err: &ToolError{Code: ToolErrExecution, Message: "boom"}}
	if !bad.Failed() {
		t.Error("result with error must be failed")
	}
	if got := bad.Err.Error(); got != "execution: boom" {
		t.Errorf("unexpected ToolError string: %q", got)
	}
}

func TestFallbackUnderstanding(t *testing.T) {
	u := FallbackUnderstanding()
	if u.Intent != IntentUnknown || u.Scope != ScopeFullSession || u.Confidence != 0 {
		t.Errorf("unexpected fallback understanding: %+v", u)
	}
}
