package pitwall

import (
	"fmt"
	"sort"
	"strings"
)

// EvalState is the evaluator's verdict on one aggregation pass.
type EvalState string

const (
	// EvalStateEvaluating means the analysis is insufficient and the budget
	// allows another planning pass.
	EvalStateEvaluating EvalState = "evaluating"
	// EvalStateSufficient means the analysis clears the acceptance bar.
	EvalStateSufficient EvalState = "sufficient"
	// EvalStateExhausted means the iteration budget is spent; the turn
	// proceeds with what it has, flagged low confidence.
	EvalStateExhausted EvalState = "exhausted"
)

// EvaluationOutcome is the evaluator's full verdict.
type EvaluationOutcome struct {
	State      EvalState `json:"state"`
	Sufficient bool      `json:"sufficient"`
	Score      float64   `json:"score"`
	Iteration  int       `json:"iteration"`
	Feedback   string    `json:"feedback,omitempty"`
}

// intentThresholds layers stricter or looser acceptance bars over the
// configured default. Telemetry questions need near-complete data to be
// worth answering; open-ended prediction questions do not.
var intentThresholds = map[Intent]float64{
	IntentTelemetry:  0.8,
	IntentComparison: 0.75,
	IntentStrategy:   0.7,
	IntentPace:       0.65,
	IntentIncident:   0.6,
	IntentPrediction: 0.5,
	IntentUnknown:    0.5,
}

// Evaluator decides whether an aggregation pass is good enough to answer
// from, and produces planner feedback when it is not. It is deterministic
// and never calls the model.
type Evaluator struct {
	defaultThreshold float64
	maxIterations    int
}

// NewEvaluator builds an evaluator from config.
func NewEvaluator(cfg Config) *Evaluator {
	return &Evaluator{
		defaultThreshold: cfg.CompletenessThreshold,
		maxIterations:    cfg.MaxIterations,
	}
}

// Threshold returns the acceptance bar for an intent.
func (e *Evaluator) Threshold(intent Intent) float64 {
	if t, ok := intentThresholds[intent]; ok {
		return t
	}
	return e.defaultThreshold
}

// Evaluate scores one pass. The iteration argument counts completed
// re-planning passes, starting at zero.
func (e *Evaluator) Evaluate(analysis *AggregatedAnalysis, u QueryUnderstanding, iteration int) EvaluationOutcome {
	score := 0.0
	if analysis != nil {
		score = analysis.Completeness
	}
	threshold := e.Threshold(u.Intent)

	if score >= threshold {
		return EvaluationOutcome{
			State:      EvalStateSufficient,
			Sufficient: true,
			Score:      score,
			Iteration:  iteration,
		}
	}
	if iteration >= e.maxIterations {
		return EvaluationOutcome{
			State:     EvalStateExhausted,
			Score:     score,
			Iteration: iteration,
			Feedback:  fmt.Sprintf("iteration budget spent at completeness %.2f (needed %.2f)", score, threshold),
		}
	}
	return EvaluationOutcome{
		State:     EvalStateEvaluating,
		Score:     score,
		Iteration: iteration,
		Feedback:  buildFeedback(analysis, u, threshold),
	}
}

// buildFeedback enumerates concrete gaps so the planner's next pass can
// target them instead of guessing.
func buildFeedback(analysis *AggregatedAnalysis, u QueryUnderstanding, threshold float64) string {
	var parts []string

	if analysis == nil || (len(analysis.LapStats) == 0 && len(analysis.Results) == 0 && len(analysis.Documents) == 0) {
		parts = append(parts, "no usable data was retrieved")
	}
	if analysis != nil {
		if len(analysis.MissingData) > 0 {
			missing := append([]string(nil), analysis.MissingData...)
			sort.Strings(missing)
			parts = append(parts, "missing: "+strings.Join(missing, ", "))
		}
		var noLaps []string
		for _, d := range u.Drivers {
			if _, ok := analysis.LapStats[d]; !ok {
				noLaps = append(noLaps, d)
			}
		}
		if len(noLaps) > 0 {
			sort.Strings(noLaps)
			parts = append(parts, "no lap data for: "+strings.Join(noLaps, ", "))
		}
		if u.Intent == IntentComparison && len(u.Drivers) >= 2 && len(analysis.Comparisons) == 0 {
			parts = append(parts, "no driver comparison could be computed")
		}
		if u.Intent == IntentStrategy && len(analysis.Stints) == 0 {
			parts = append(parts, "no stint data for strategy analysis")
		}
		for d, s := range analysis.LapStats {
			if s.TotalLaps > 0 && s.TotalLaps < 5 {
				parts = append(parts, fmt.Sprintf("only %d laps for %s", s.TotalLaps, d))
			}
		}
		sort.Strings(parts)
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("completeness %.2f below required %.2f", scoreOf(analysis), threshold))
	}
	return strings.Join(parts, "; ") + ". Retry with broader parameters or alternate retrieval tools."
}

func scoreOf(analysis *AggregatedAnalysis) float64 {
	if analysis == nil {
		return 0
	}
	return analysis.Completeness
}
