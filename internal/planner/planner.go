// Package planner turns a query understanding into a validated execution
// plan, with model-driven planning, one violation-guided retry, and
// template fallbacks.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/llm"
)

// LLMPlanner implements pitwall.Planner on top of a language model.
type LLMPlanner struct {
	model           pitwall.LanguageModel
	templates       *PlanFile
	schemaRetries   int
	confidenceFloor float64
}

// PlannerOption configures an LLMPlanner.
type PlannerOption func(*LLMPlanner)

// WithTemplates overrides the built-in fallback plan templates.
func WithTemplates(pf *PlanFile) PlannerOption {
	return func(p *LLMPlanner) {
		p.templates = pf
	}
}

// WithSchemaRetries sets how many schema-violation retries the planner makes.
func WithSchemaRetries(n int) PlannerOption {
	return func(p *LLMPlanner) {
		p.schemaRetries = n
	}
}

// WithConfidenceFloor sets the understanding confidence below which the
// planner emits a zero-call plan instead of guessing at retrievals.
func WithConfidenceFloor(floor float64) PlannerOption {
	return func(p *LLMPlanner) {
		p.confidenceFloor = floor
	}
}

// New creates an LLMPlanner.
func New(model pitwall.LanguageModel, options ...PlannerOption) *LLMPlanner {
	p := &LLMPlanner{
		model:           model,
		templates:       DefaultPlanFile(),
		schemaRetries:   2,
		confidenceFloor: 0.25,
	}
	for _, option := range options {
		option(p)
	}
	return p
}

// Plan implements the pitwall.Planner interface.
func (p *LLMPlanner) Plan(ctx context.Context, input pitwall.PlannerInput) (*pitwall.ExecutionPlan, error) {
	// Understanding too weak to name entities or metrics: planning calls
	// would be guesses, so the turn answers from the sketch instead.
	if input.Understanding.Confidence < p.confidenceFloor {
		log.Printf("Planner: understanding confidence %.2f below floor %.2f, emitting empty plan",
			input.Understanding.Confidence, p.confidenceFloor)
		return &pitwall.ExecutionPlan{}, nil
	}

	registered := func(name string) bool {
		_, ok := input.ToolSchemas[name]
		return ok
	}

	prompt := p.buildPrompt(input)
	plan, err := llm.Structured[pitwall.ExecutionPlan](ctx, p.model, prompt, nil, llm.PlanSchema, p.schemaRetries)
	if err != nil {
		if !llm.IsValidationError(err) {
			return nil, err
		}
		log.Printf("Planner: schema retries exhausted, using fallback template: %v", err)
		return p.fallback(input.Understanding), nil
	}

	if verr := plan.Validate(registered); verr != nil {
		// One more pass describing the structural violation; the schema
		// cannot express group ordering, so the model gets told directly.
		retryPrompt := prompt + "\n\nYour previous plan was structurally invalid: " + verr.Error() +
			"\nFix the plan: every call id appears in exactly one group, dependencies must sit in earlier groups, and only the listed tools may be used."
		plan, err = llm.Structured[pitwall.ExecutionPlan](ctx, p.model, retryPrompt, nil, llm.PlanSchema, 0)
		if err == nil {
			verr = plan.Validate(registered)
		}
		if err != nil || verr != nil {
			log.Printf("Planner: invalid plan after retry, using fallback template (err: %v, validation: %v)", err, verr)
			return p.fallback(input.Understanding), nil
		}
	}

	return &plan, nil
}

// fallback instantiates the intent's plan template. A confident
// understanding must come out of here with at least one retrieval call,
// so an intent template that resolves to nothing falls through to the
// generic template before the empty plan is allowed to stand.
func (p *LLMPlanner) fallback(u pitwall.QueryUnderstanding) *pitwall.ExecutionPlan {
	tpl, ok := p.templates.TemplateFor(u.Intent)
	if !ok {
		return &pitwall.ExecutionPlan{}
	}
	plan := tpl.Instantiate(u)
	if !plan.Empty() {
		return plan
	}
	if generic, ok := p.templates.TemplateFor("default"); ok && generic != tpl {
		plan = generic.Instantiate(u)
	}
	return plan
}

// buildPrompt assembles the planning prompt from the understanding, the
// registered tool schemas, and any evaluator feedback.
func (p *LLMPlanner) buildPrompt(input pitwall.PlannerInput) string {
	var b strings.Builder

	b.WriteString("You plan data retrieval for a motorsport analytics assistant.\n")
	b.WriteString("Decide which tools to call to answer the user's question, and group independent calls so they can run concurrently.\n\n")

	b.WriteString("QUERY UNDERSTANDING:\n")
	if uj, err := json.MarshalIndent(input.Understanding, "", "  "); err == nil {
		b.Write(uj)
	}
	b.WriteString("\n\nAVAILABLE TOOLS:\n")
	b.WriteString(describeTools(input.ToolSchemas))

	b.WriteString("\nRULES:\n")
	b.WriteString("- Use only the tools listed above.\n")
	b.WriteString("- Give every call a short unique id (e.g. \"laps_VER\").\n")
	b.WriteString("- parallel_groups partitions the call ids into ordered batches; calls in one batch run concurrently.\n")
	b.WriteString("- A call that depends_on another must be placed in a later group.\n")

	if input.Feedback != "" {
		fmt.Fprintf(&b, "\nPREVIOUS ATTEMPT FEEDBACK (iteration %d):\n%s\nAdjust the plan to fetch the missing data.\n",
			input.Iteration, input.Feedback)
	}

	return b.String()
}

// describeTools renders tool schemas into prompt text, sorted for prompt
// stability (and therefore plan-cache stability).
func describeTools(schemas map[string]map[string]interface{}) string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		schema := schemas[name]
		fmt.Fprintf(&b, "- %s", name)
		if desc, ok := schema["description"].(string); ok && desc != "" {
			fmt.Fprintf(&b, ": %s", desc)
		}
		b.WriteString("\n")
		if params, ok := schema["parameters"].(map[string]string); ok {
			paramNames := make([]string, 0, len(params))
			for pn := range params {
				paramNames = append(paramNames, pn)
			}
			sort.Strings(paramNames)
			for _, pn := range paramNames {
				fmt.Fprintf(&b, "    %s: %s\n", pn, params[pn])
			}
		}
	}
	return b.String()
}
