// Package aggregate reduces raw tool results into the per-turn analysis
// digest: lap statistics, stint summaries, pairwise comparisons,
// completeness and confidence scoring, and visualization recommendations.
// Everything here is deterministic; iteration is sorted and no model is
// consulted.
package aggregate

import (
	"fmt"
	"sort"

	"github.com/pitwall-ai/pitwall"
)

// Analyzer implements pitwall.Aggregator.
type Analyzer struct {
	weights WeightPolicy
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWeightPolicy sets the completeness weighting policy.
func WithWeightPolicy(policy WeightPolicy) Option {
	return func(a *Analyzer) {
		a.weights = policy
	}
}

// New creates an Analyzer with the default weight policy.
func New(options ...Option) *Analyzer {
	a := &Analyzer{}
	for _, option := range options {
		option(a)
	}
	if a.weights == nil {
		a.weights = MustExpressionPolicy(DefaultWeightExpression)
	}
	return a
}

// Aggregate implements the pitwall.Aggregator interface. A nil or empty
// results map is legal and yields an empty analysis scored at zero
// completeness.
func (a *Analyzer) Aggregate(results map[string]pitwall.ToolResult, u pitwall.QueryUnderstanding) (*pitwall.AggregatedAnalysis, error) {
	analysis := &pitwall.AggregatedAnalysis{
		LapStats: make(map[string]pitwall.LapStats),
		Laps:     make(map[string][]pitwall.Lap),
		Stints:   make(map[string][]pitwall.StintSummary),
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	lapsByDriver := make(map[string][]pitwall.Lap)
	stintRowsByDriver := make(map[string][]row)

	for _, id := range ids {
		result := results[id]
		if result.Failed() {
			analysis.MissingData = append(analysis.MissingData,
				fmt.Sprintf("%s (%s): %s", id, result.ToolName, result.Err.Message))
			continue
		}
		classifyPayload(result, lapsByDriver, stintRowsByDriver, analysis)
	}

	drivers := make([]string, 0, len(lapsByDriver))
	for d := range lapsByDriver {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)

	for _, d := range drivers {
		laps := cleanLaps(lapsByDriver[d])
		if len(laps) == 0 {
			continue
		}
		analysis.Laps[d] = laps
		analysis.LapStats[d] = computeLapStats(d, laps)
		if stints := computeStints(laps); len(stints) > 0 {
			analysis.Stints[d] = stints
		}
	}

	// Direct stint rows cover drivers whose laps were not retrieved.
	mergeDirectStints(analysis, stintRowsByDriver)

	analysis.Comparisons = buildComparisons(analysis)
	analysis.KeyInsights = buildInsights(analysis, u)
	analysis.Completeness = a.completeness(analysis, u)
	analysis.Confidence = confidence(results, analysis)
	analysis.RecommendedViz = recommendViz(analysis, u)

	return analysis, nil
}

// confidence combines the tool success rate with the data volume: even a
// clean run over a handful of laps is a thin basis for an answer.
func confidence(results map[string]pitwall.ToolResult, analysis *pitwall.AggregatedAnalysis) float64 {
	if len(results) == 0 {
		return 0
	}
	succeeded := 0
	for _, r := range results {
		if !r.Failed() {
			succeeded++
		}
	}
	successRate := float64(succeeded) / float64(len(results))

	totalLaps := 0
	for _, s := range analysis.LapStats {
		totalLaps += s.TotalLaps
	}
	volume := float64(totalLaps) / 100.0
	if volume > 1 {
		volume = 1
	}
	if totalLaps == 0 && (len(analysis.Results) > 0 || len(analysis.Documents) > 0) {
		// Non-lap data counts for something even without laps.
		volume = 0.5
	}

	return round3(successRate * volume)
}
