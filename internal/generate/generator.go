// Package generate implements the final synthesis stage: one model call
// writing the answer text from the aggregated digest, and a deterministic
// visualization built alongside it. The model never sees raw tool
// payloads, only the digest.
package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pitwall-ai/pitwall"
)

// Generator implements pitwall.Generator on top of a language model.
type Generator struct {
	model pitwall.LanguageModel
}

// Option configures a Generator.
type Option func(*Generator)

// New creates a Generator.
func New(model pitwall.LanguageModel, options ...Option) *Generator {
	g := &Generator{model: model}
	for _, option := range options {
		option(g)
	}
	return g
}

// Generate implements the pitwall.Generator interface. The text synthesis
// and the visualization build run concurrently; the viz build is pure
// computation but can chew through thousands of laps, and the model call
// dominates wall time either way.
func (g *Generator) Generate(ctx context.Context, input pitwall.GeneratorInput) (*pitwall.FinalAnswer, error) {
	var (
		text string
		viz  *pitwall.VisualizationSpec
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		text, err = g.synthesize(egCtx, input)
		return err
	})
	eg.Go(func() error {
		viz = BuildVisualization(input.Analysis)
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, pitwall.NewSynthesisError(err)
	}

	answer := &pitwall.FinalAnswer{
		Text:          text,
		Visualization: viz,
		Partial:       input.Partial,
	}
	if input.Analysis != nil {
		answer.Confidence = input.Analysis.Confidence
	}
	return answer, nil
}

func (g *Generator) synthesize(ctx context.Context, input pitwall.GeneratorInput) (string, error) {
	prompt := buildPrompt(input)
	text, err := g.model.Complete(ctx, prompt, nil)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("model returned an empty answer")
	}
	return text, nil
}

// buildPrompt renders the digest into the synthesis prompt. Degraded turns
// get explicit disclosure instructions so the prose never overstates what
// the data supports.
func buildPrompt(input pitwall.GeneratorInput) string {
	var b strings.Builder

	b.WriteString("You are a motorsport analytics assistant answering a user's question from pre-computed analysis.\n")
	b.WriteString("Use only the numbers in the analysis below. Never invent lap times, gaps, or positions.\n")
	b.WriteString("Answer concisely in plain prose. Round times to three decimals.\n\n")

	fmt.Fprintf(&b, "QUESTION: %s\n\n", input.Question)

	if input.Analysis != nil {
		b.WriteString("ANALYSIS:\n")
		writeDigest(&b, input.Analysis)
	} else {
		b.WriteString("ANALYSIS: no data was retrieved.\n")
	}

	if input.Partial {
		b.WriteString("\nThe turn ran out of time before all data arrived. State clearly that the answer is based on partial data.\n")
	}
	if input.Outcome.State == pitwall.EvalStateExhausted && input.Analysis != nil && len(input.Analysis.MissingData) > 0 {
		b.WriteString("\nSome requested data could not be retrieved. Mention what is missing:\n")
		for _, m := range input.Analysis.MissingData {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if input.Analysis == nil || (!input.Analysis.HasLapData() && len(input.Analysis.Results) == 0 && len(input.Analysis.Documents) == 0) {
		if input.Understanding.HypotheticalAnswer != "" {
			b.WriteString("\nNo data was available. Say so, and describe in general terms what would answer the question")
			fmt.Fprintf(&b, " (for example: %s). Make clear this is not backed by retrieved data.\n", input.Understanding.HypotheticalAnswer)
		} else {
			b.WriteString("\nNo data was available. Say so plainly and suggest how to rephrase the question.\n")
		}
	}

	return b.String()
}

// writeDigest serializes the digest fields the model should quote from.
// Raw per-lap arrays are withheld; the insights and stats carry everything
// the prose needs at a fraction of the tokens.
func writeDigest(b *strings.Builder, analysis *pitwall.AggregatedAnalysis) {
	if len(analysis.KeyInsights) > 0 {
		b.WriteString("Key findings:\n")
		for _, insight := range analysis.KeyInsights {
			fmt.Fprintf(b, "- %s\n", insight)
		}
	}
	if len(analysis.Stints) > 0 {
		if sj, err := json.Marshal(analysis.Stints); err == nil {
			fmt.Fprintf(b, "Stints: %s\n", sj)
		}
	}
	if len(analysis.Results) > 0 {
		if rj, err := json.Marshal(analysis.Results); err == nil {
			fmt.Fprintf(b, "Classification: %s\n", rj)
		}
	}
	if len(analysis.Documents) > 0 {
		if dj, err := json.Marshal(analysis.Documents); err == nil {
			fmt.Fprintf(b, "Context documents: %s\n", dj)
		}
	}
	fmt.Fprintf(b, "Data completeness: %.2f, confidence: %.2f\n", analysis.Completeness, analysis.Confidence)
}
