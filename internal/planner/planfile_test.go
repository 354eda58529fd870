package planner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pitwall-ai/pitwall"
)

func TestInstantiateSubstitutesPlaceholders(t *testing.T) {
	pf := DefaultPlanFile()
	tpl, ok := pf.TemplateFor(pitwall.IntentComparison)
	if !ok {
		t.Fatal("comparison template missing")
	}

	u := pitwall.QueryUnderstanding{
		Intent:  pitwall.IntentComparison,
		Drivers: []string{"VER", "HAM"},
		Seasons: []int{2024},
		Races:   []string{"monza"},
	}
	plan := tpl.Instantiate(u)
	if len(plan.ToolCalls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(plan.ToolCalls))
	}
	if got := plan.ToolCalls[0].Parameters["driver"]; got != "VER" {
		t.Errorf("expected driver VER, got %v", got)
	}
	if got := plan.ToolCalls[1].Parameters["driver"]; got != "HAM" {
		t.Errorf("expected driver HAM, got %v", got)
	}
	if got := plan.ToolCalls[0].Parameters["season"]; got != 2024 {
		t.Errorf("expected season 2024, got %v", got)
	}
	if err := plan.Validate(func(string) bool { return true }); err != nil {
		t.Errorf("instantiated plan should validate: %v", err)
	}
}

func TestInstantiateOmitsOptionalParams(t *testing.T) {
	pf := DefaultPlanFile()
	tpl, ok := pf.TemplateFor(pitwall.IntentComparison)
	if !ok {
		t.Fatal("comparison template missing")
	}

	// Drivers only: season and race are optional, so both lap fetches
	// survive without them.
	u := pitwall.QueryUnderstanding{
		Intent:  pitwall.IntentComparison,
		Drivers: []string{"VER", "HAM"},
	}
	plan := tpl.Instantiate(u)
	if len(plan.ToolCalls) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(plan.ToolCalls))
	}
	for _, call := range plan.ToolCalls {
		if _, present := call.Parameters["season"]; present {
			t.Errorf("unresolved optional season must be omitted: %+v", call.Parameters)
		}
		if _, present := call.Parameters["race"]; present {
			t.Errorf("unresolved optional race must be omitted: %+v", call.Parameters)
		}
		if call.Parameters["driver"] == nil {
			t.Errorf("driver must still be substituted: %+v", call.Parameters)
		}
	}
}

func TestInstantiateDropsUnsatisfiedCalls(t *testing.T) {
	pf := DefaultPlanFile()
	tpl, ok := pf.TemplateFor(pitwall.IntentComparison)
	if !ok {
		t.Fatal("comparison template missing")
	}

	// Only one driver known: the second lap fetch cannot be instantiated.
	u := pitwall.QueryUnderstanding{
		Intent:  pitwall.IntentComparison,
		Drivers: []string{"VER"},
		Seasons: []int{2024},
		Races:   []string{"monza"},
	}
	plan := tpl.Instantiate(u)
	if len(plan.ToolCalls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(plan.ToolCalls))
	}
	if plan.ToolCalls[0].ID != "laps_driver1" {
		t.Errorf("wrong surviving call: %s", plan.ToolCalls[0].ID)
	}
	if len(plan.Groups) != 1 || len(plan.Groups[0]) != 1 {
		t.Errorf("groups not rebuilt: %+v", plan.Groups)
	}
}

func TestInstantiateDropsDependentsOfDroppedCalls(t *testing.T) {
	tpl := &PlanTemplate{
		Intent: "test",
		Calls: []TemplateCall{
			{ID: "a", Tool: "t", Params: map[string]interface{}{"driver": "$driver2"}},
			{ID: "b", Tool: "t", Params: map[string]interface{}{"window": 5}, DependsOn: []string{"a"}},
			{ID: "c", Tool: "t", Params: map[string]interface{}{"limit": 3}, DependsOn: []string{"b"}},
			{ID: "d", Tool: "t", Params: map[string]interface{}{"driver": "$driver1"}},
		},
		Groups: [][]string{{"a", "d"}, {"b"}, {"c"}},
	}
	if err := tpl.validate(); err != nil {
		t.Fatalf("fixture template invalid: %v", err)
	}

	// No second driver: a drops, and b and c fall with it transitively.
	u := pitwall.QueryUnderstanding{Drivers: []string{"VER"}}
	plan := tpl.Instantiate(u)
	if len(plan.ToolCalls) != 1 || plan.ToolCalls[0].ID != "d" {
		t.Fatalf("expected only call d to survive, got %+v", plan.ToolCalls)
	}
	if len(plan.Groups) != 1 {
		t.Errorf("empty groups must be removed, got %+v", plan.Groups)
	}
}

func TestInstantiateEmptyWhenNothingResolves(t *testing.T) {
	pf := DefaultPlanFile()
	tpl, ok := pf.TemplateFor(pitwall.IntentPace)
	if !ok {
		t.Fatal("pace template missing")
	}
	plan := tpl.Instantiate(pitwall.QueryUnderstanding{})
	if !plan.Empty() {
		t.Errorf("no placeholders satisfiable, expected empty plan: %+v", plan)
	}
}

func TestTemplateForDefaultFallback(t *testing.T) {
	pf := DefaultPlanFile()
	tpl, ok := pf.TemplateFor(pitwall.IntentIncident)
	if !ok {
		t.Fatal("expected the default template for an unmapped intent")
	}
	if tpl.Intent != "default" {
		t.Errorf("expected default template, got %q", tpl.Intent)
	}
}

func TestTemplateValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		tpl  PlanTemplate
		want string
	}{
		{
			name: "duplicate id",
			tpl: PlanTemplate{Calls: []TemplateCall{
				{ID: "a", Tool: "t"},
				{ID: "a", Tool: "t"},
			}},
			want: "duplicate call ID",
		},
		{
			name: "missing dependency",
			tpl: PlanTemplate{Calls: []TemplateCall{
				{ID: "a", Tool: "t", DependsOn: []string{"ghost"}},
			}},
			want: "missing call 'ghost'",
		},
		{
			name: "group references missing call",
			tpl: PlanTemplate{
				Calls:  []TemplateCall{{ID: "a", Tool: "t"}},
				Groups: [][]string{{"a", "ghost"}},
			},
			want: "missing call 'ghost'",
		},
		{
			name: "cycle",
			tpl: PlanTemplate{Calls: []TemplateCall{
				{ID: "a", Tool: "t", DependsOn: []string{"b"}},
				{ID: "b", Tool: "t", DependsOn: []string{"a"}},
			}},
			want: "cycle detected",
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tpl.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestLoadPlanFile(t *testing.T) {
	body := `name: test
templates:
  - intent: pace
    calls:
      - id: laps
        tool: get_lap_times
        params:
          driver: $driver1
    groups:
      - [laps]
`
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing plan fixture: %v", err)
	}

	pf, err := LoadPlanFile(path)
	if err != nil {
		t.Fatalf("LoadPlanFile returned error: %v", err)
	}
	if pf.Name != "test" || len(pf.Templates) != 1 {
		t.Errorf("unexpected plan file: %+v", pf)
	}
	if _, ok := pf.TemplateFor(pitwall.IntentPace); !ok {
		t.Error("pace template not found after load")
	}
}

func TestLoadPlanFileRejectsInvalidTemplate(t *testing.T) {
	body := `name: bad
templates:
  - intent: pace
    calls:
      - id: a
        tool: t
        depends_on: [b]
      - id: b
        tool: t
        depends_on: [a]
`
	path := filepath.Join(t.TempDir(), "plans.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing plan fixture: %v", err)
	}
	if _, err := LoadPlanFile(path); err == nil {
		t.Fatal("expected cycle rejection")
	}
}

func TestDefaultPlanFileValidates(t *testing.T) {
	if err := DefaultPlanFile().Validate(); err != nil {
		t.Errorf("built-in templates must validate: %v", err)
	}
}
