package aggregate

import (
	"github.com/Knetic/govaluate"

	"github.com/pitwall-ai/pitwall"
)

// DefaultWeightExpression scores central items (requested drivers, the
// artifact the intent hinges on) at full weight and peripheral ones
// (individual metrics) at 0.4.
const DefaultWeightExpression = "central ? 1.0 : 0.4"

// WeightPolicy assigns a completeness weight to one requested item.
type WeightPolicy interface {
	Weight(central bool) float64
}

// ExpressionPolicy evaluates a configurable weight expression over the
// item attributes. Operators let deployments tune how hard missing
// peripheral data drags the score without recompiling.
type ExpressionPolicy struct {
	expr *govaluate.EvaluableExpression
}

// NewExpressionPolicy compiles a weight expression. The expression sees a
// boolean "central" parameter and must evaluate to a number.
func NewExpressionPolicy(expression string) (*ExpressionPolicy, error) {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, pitwall.NewConfigurationError("invalid weight expression", err)
	}
	return &ExpressionPolicy{expr: expr}, nil
}

// MustExpressionPolicy compiles a weight expression and panics on error.
// Intended for compile-time constant expressions.
func MustExpressionPolicy(expression string) *ExpressionPolicy {
	p, err := NewExpressionPolicy(expression)
	if err != nil {
		panic(err)
	}
	return p
}

// Weight implements WeightPolicy. Evaluation failures fall back to full
// weight so a bad expression can only inflate the score, never hide data.
func (p *ExpressionPolicy) Weight(central bool) float64 {
	result, err := p.expr.Evaluate(map[string]interface{}{"central": central})
	if err != nil {
		return 1.0
	}
	w, ok := result.(float64)
	if !ok || w < 0 {
		return 1.0
	}
	return w
}

// completenessItem is one thing the understanding asked for, paired with
// whether the analysis delivered it.
type completenessItem struct {
	central   bool
	satisfied bool
}

// completeness scores how much of the requested data the analysis holds,
// as a weighted fraction of satisfied items.
func (a *Analyzer) completeness(analysis *pitwall.AggregatedAnalysis, u pitwall.QueryUnderstanding) float64 {
	items := collectItems(analysis, u)
	if len(items) == 0 {
		// Nothing was requested by name. Having any data at all is a
		// partial success for a vague question.
		if analysis.HasLapData() || len(analysis.Results) > 0 || len(analysis.Documents) > 0 {
			return 0.5
		}
		return 0
	}

	var total, satisfied float64
	for _, item := range items {
		w := a.weights.Weight(item.central)
		total += w
		if item.satisfied {
			satisfied += w
		}
	}
	if total == 0 {
		return 0
	}
	return round3(satisfied / total)
}

func collectItems(analysis *pitwall.AggregatedAnalysis, u pitwall.QueryUnderstanding) []completenessItem {
	var items []completenessItem

	for _, driver := range u.Drivers {
		_, hasLaps := analysis.Laps[driver]
		_, hasStints := analysis.Stints[driver]
		items = append(items, completenessItem{central: true, satisfied: hasLaps || hasStints})
	}

	switch u.Intent {
	case pitwall.IntentComparison:
		items = append(items, completenessItem{central: true, satisfied: len(analysis.Comparisons) > 0})
	case pitwall.IntentStrategy:
		items = append(items, completenessItem{central: true, satisfied: len(analysis.Stints) > 0})
	case pitwall.IntentResults:
		items = append(items, completenessItem{central: true, satisfied: len(analysis.Results) > 0})
	}

	for range u.Metrics {
		// Metrics are derivable whenever lap data exists; they weigh less
		// than the entities themselves.
		items = append(items, completenessItem{central: false, satisfied: analysis.HasLapData()})
	}

	return items
}
