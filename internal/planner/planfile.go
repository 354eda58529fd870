package planner

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitwall-ai/pitwall"
)

// PlanFile holds intent-keyed fallback plan templates loaded from YAML.
// Templates are instantiated when the model cannot produce a valid plan.
type PlanFile struct {
	Name      string         `yaml:"name"`
	Templates []PlanTemplate `yaml:"templates"`
}

// PlanTemplate is one fallback plan shape for an intent. Parameter values
// may contain placeholders ($driver1, $driver2, $season, $race) resolved
// from the understanding at instantiation time. A "$?" prefix marks a
// placeholder optional: when it has no value the parameter is omitted and
// the call survives, instead of the call being dropped.
type PlanTemplate struct {
	Intent  string         `yaml:"intent"`
	Calls   []TemplateCall `yaml:"calls"`
	Groups  [][]string     `yaml:"groups"`
	Purpose string         `yaml:"purpose"`
}

// TemplateCall is one templated tool call.
type TemplateCall struct {
	ID        string                 `yaml:"id"`
	Tool      string                 `yaml:"tool"`
	Params    map[string]interface{} `yaml:"params"`
	DependsOn []string               `yaml:"depends_on"`
	Purpose   string                 `yaml:"purpose"`
}

// LoadPlanFile parses a YAML plan template file.
func LoadPlanFile(path string) (*PlanFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open plan file: %w", err)
	}
	defer f.Close()
	var pf PlanFile
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&pf); err != nil {
		return nil, fmt.Errorf("failed to parse plan YAML: %w", err)
	}
	if err := pf.Validate(); err != nil {
		return nil, err
	}
	return &pf, nil
}

// Validate checks every template for duplicate IDs, missing dependencies,
// missing group members, and cycles.
func (pf *PlanFile) Validate() error {
	for _, tpl := range pf.Templates {
		if err := tpl.validate(); err != nil {
			return fmt.Errorf("template '%s': %w", tpl.Intent, err)
		}
	}
	return nil
}

func (tpl *PlanTemplate) validate() error {
	idSet := make(map[string]struct{}, len(tpl.Calls))
	for _, c := range tpl.Calls {
		if _, exists := idSet[c.ID]; exists {
			return fmt.Errorf("duplicate call ID found: %s", c.ID)
		}
		idSet[c.ID] = struct{}{}
	}
	// Check that all dependencies exist
	for _, c := range tpl.Calls {
		for _, dep := range c.DependsOn {
			if _, exists := idSet[dep]; !exists {
				return fmt.Errorf("call '%s' depends on missing call '%s'", c.ID, dep)
			}
		}
	}
	// Check that every group member is a defined call
	for _, group := range tpl.Groups {
		for _, id := range group {
			if _, exists := idSet[id]; !exists {
				return fmt.Errorf("group references missing call '%s'", id)
			}
		}
	}
	// Check for cycles using DFS
	visited := make(map[string]bool, len(tpl.Calls))
	stack := make(map[string]bool, len(tpl.Calls))
	var hasCycle func(id string) bool
	hasCycle = func(id string) bool {
		if stack[id] {
			return true // cycle detected
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		stack[id] = true
		call := tpl.getCallByID(id)
		if call != nil {
			for _, dep := range call.DependsOn {
				if hasCycle(dep) {
					return true
				}
			}
		}
		stack[id] = false
		return false
	}
	for _, c := range tpl.Calls {
		if hasCycle(c.ID) {
			return fmt.Errorf("cycle detected at call '%s'", c.ID)
		}
	}
	return nil
}

// getCallByID returns a pointer to the TemplateCall with the given ID, or nil.
func (tpl *PlanTemplate) getCallByID(id string) *TemplateCall {
	for i := range tpl.Calls {
		if tpl.Calls[i].ID == id {
			return &tpl.Calls[i]
		}
	}
	return nil
}

// TemplateFor picks the template matching an intent, falling back to the
// template registered for "default" when no exact match exists.
func (pf *PlanFile) TemplateFor(intent pitwall.Intent) (*PlanTemplate, bool) {
	var fallback *PlanTemplate
	for i := range pf.Templates {
		if pf.Templates[i].Intent == string(intent) {
			return &pf.Templates[i], true
		}
		if pf.Templates[i].Intent == "default" {
			fallback = &pf.Templates[i]
		}
	}
	if fallback != nil {
		return fallback, true
	}
	return nil, false
}

// Instantiate resolves a template against an understanding, dropping calls
// whose placeholders cannot be satisfied, and returns an execution plan.
func (tpl *PlanTemplate) Instantiate(u pitwall.QueryUnderstanding) *pitwall.ExecutionPlan {
	values := placeholderValues(u)

	kept := make(map[string]bool, len(tpl.Calls))
	var calls []pitwall.ToolCall
	for _, c := range tpl.Calls {
		params, ok := resolveParams(c.Params, values)
		if !ok {
			continue // a required placeholder has no value
		}
		calls = append(calls, pitwall.ToolCall{
			ID:         c.ID,
			ToolName:   c.Tool,
			Parameters: params,
			DependsOn:  c.DependsOn,
			Purpose:    c.Purpose,
		})
		kept[c.ID] = true
	}

	// Rebuild groups with the kept calls; calls depending on a dropped
	// call are dropped as well.
	for changed := true; changed; {
		changed = false
		filtered := calls[:0]
		for _, c := range calls {
			ok := true
			for _, dep := range c.DependsOn {
				if !kept[dep] {
					ok = false
				}
			}
			if ok {
				filtered = append(filtered, c)
			} else {
				delete(kept, c.ID)
				changed = true
			}
		}
		calls = filtered
	}

	var groups [][]string
	for _, group := range tpl.Groups {
		var g []string
		for _, id := range group {
			if kept[id] {
				g = append(g, id)
			}
		}
		if len(g) > 0 {
			groups = append(groups, g)
		}
	}

	return &pitwall.ExecutionPlan{
		ToolCalls: calls,
		Groups:    groups,
		Reasoning: "fallback template plan for intent " + tpl.Intent,
	}
}

// placeholderValues extracts the substitution values available for a turn.
func placeholderValues(u pitwall.QueryUnderstanding) map[string]interface{} {
	values := make(map[string]interface{})
	if len(u.Drivers) > 0 {
		values["$driver1"] = u.Drivers[0]
	}
	if len(u.Drivers) > 1 {
		values["$driver2"] = u.Drivers[1]
	}
	if len(u.Seasons) > 0 {
		values["$season"] = u.Seasons[0]
	}
	if len(u.Races) > 0 {
		values["$race"] = u.Races[0]
	}
	return values
}

// resolveParams substitutes placeholder values into a parameter map. The
// second return is false when a required placeholder has no value this
// turn; unresolved optional placeholders ("$?" prefix) are left out.
func resolveParams(params map[string]interface{}, values map[string]interface{}) (map[string]interface{}, bool) {
	resolved := make(map[string]interface{}, len(params))
	for k, v := range params {
		s, isString := v.(string)
		if !isString || !strings.HasPrefix(s, "$") {
			resolved[k] = v
			continue
		}
		if strings.HasPrefix(s, "$?") {
			if value, ok := values["$"+s[2:]]; ok {
				resolved[k] = value
			}
			continue
		}
		value, ok := values[s]
		if !ok {
			return nil, false
		}
		resolved[k] = value
	}
	return resolved, true
}

// DefaultPlanFile returns the built-in fallback templates covering the
// common intents. They fetch lap data for the mentioned drivers plus the
// session classification, mirroring what a human race engineer would pull
// up first. Season and race are optional: a question that names only
// drivers still yields retrieval calls, which fail soft downstream when
// the backend cannot serve them.
func DefaultPlanFile() *PlanFile {
	return &PlanFile{
		Name: "builtin",
		Templates: []PlanTemplate{
			{
				Intent: "comparison",
				Calls: []TemplateCall{
					{ID: "laps_driver1", Tool: "get_lap_times", Params: map[string]interface{}{"driver": "$driver1", "season": "$?season", "race": "$?race"}, Purpose: "lap times for the first driver"},
					{ID: "laps_driver2", Tool: "get_lap_times", Params: map[string]interface{}{"driver": "$driver2", "season": "$?season", "race": "$?race"}, Purpose: "lap times for the second driver"},
				},
				Groups: [][]string{{"laps_driver1", "laps_driver2"}},
			},
			{
				Intent: "strategy",
				Calls: []TemplateCall{
					{ID: "stints_driver1", Tool: "get_tire_stints", Params: map[string]interface{}{"driver": "$driver1", "season": "$?season", "race": "$?race"}, Purpose: "tire stints"},
					{ID: "laps_driver1", Tool: "get_lap_times", Params: map[string]interface{}{"driver": "$driver1", "season": "$?season", "race": "$?race"}, Purpose: "lap times for degradation"},
				},
				Groups: [][]string{{"stints_driver1", "laps_driver1"}},
			},
			{
				Intent: "pace",
				Calls: []TemplateCall{
					{ID: "laps_driver1", Tool: "get_lap_times", Params: map[string]interface{}{"driver": "$driver1", "season": "$?season", "race": "$?race"}, Purpose: "lap times"},
				},
				Groups: [][]string{{"laps_driver1"}},
			},
			{
				Intent: "default",
				Calls: []TemplateCall{
					{ID: "results", Tool: "get_session_results", Params: map[string]interface{}{"season": "$?season", "race": "$?race"}, Purpose: "session classification"},
					{ID: "laps_driver1", Tool: "get_lap_times", Params: map[string]interface{}{"driver": "$driver1", "season": "$?season", "race": "$?race"}, Purpose: "lap times for the mentioned driver"},
				},
				Groups: [][]string{{"results", "laps_driver1"}},
			},
		},
	}
}
