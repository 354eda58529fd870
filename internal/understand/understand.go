// Package understand implements the query understanding stage: one
// schema-constrained model call turning a question into a structured
// interpretation, with a degenerate fallback when the model cannot comply.
package understand

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/pitwall-ai/pitwall"
	"github.com/pitwall-ai/pitwall/internal/llm"
)

// Understander implements pitwall.Understander on top of a language model.
type Understander struct {
	model         pitwall.LanguageModel
	schemaRetries int
}

// Option configures an Understander.
type Option func(*Understander)

// WithSchemaRetries sets how many schema-violation retries are made.
func WithSchemaRetries(n int) Option {
	return func(u *Understander) {
		u.schemaRetries = n
	}
}

// New creates an Understander.
func New(model pitwall.LanguageModel, options ...Option) *Understander {
	u := &Understander{
		model:         model,
		schemaRetries: 2,
	}
	for _, option := range options {
		option(u)
	}
	return u
}

// Understand implements the pitwall.Understander interface. Schema
// failures degrade to the fallback understanding; only transport-level
// failures surface as errors.
func (u *Understander) Understand(ctx context.Context, question string, history []pitwall.Message, recalled []pitwall.Fact) (pitwall.QueryUnderstanding, error) {
	prompt := buildPrompt(question, recalled)

	understanding, err := llm.Structured[pitwall.QueryUnderstanding](ctx, u.model, prompt, history, llm.UnderstandingSchema, u.schemaRetries)
	if err != nil {
		if !llm.IsValidationError(err) {
			return pitwall.QueryUnderstanding{}, err
		}
		log.Printf("Understanding: schema retries exhausted, falling back: %v", err)
		return pitwall.FallbackUnderstanding(), nil
	}

	return understanding, nil
}

// buildPrompt assembles the understanding prompt. Recalled facts about the
// subject sharpen entity extraction on follow-up questions.
func buildPrompt(question string, recalled []pitwall.Fact) string {
	var b strings.Builder

	b.WriteString("You interpret questions about historical motorsport sessions for an analytics assistant.\n")
	b.WriteString("Classify the question, extract the entities it mentions, and sketch a short hypothetical answer ")
	b.WriteString("(what a plausible answer would look like, used to guide retrieval).\n")
	b.WriteString("Use three-letter driver codes (VER, HAM, LEC). Set confidence to how certain you are of the interpretation.\n")

	if len(recalled) > 0 {
		b.WriteString("\nKNOWN ABOUT THIS USER:\n")
		for _, fact := range recalled {
			fmt.Fprintf(&b, "- [%s] %s\n", fact.Kind, fact.Content)
		}
	}

	fmt.Fprintf(&b, "\nQUESTION: %s\n", question)
	return b.String()
}
