package pitwall

import (
	"strings"
	"testing"
)

func TestEvaluatorSufficient(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	analysis := &AggregatedAnalysis{Completeness: 0.9}
	u := QueryUnderstanding{Intent: IntentPace}

	outcome := e.Evaluate(analysis, u, 0)
	if outcome.State != EvalStateSufficient {
		t.Errorf("expected sufficient, got %s", outcome.State)
	}
	if !outcome.Sufficient {
		t.Error("Sufficient flag must be set")
	}
	if outcome.Score != 0.9 {
		t.Errorf("expected score 0.9, got %v", outcome.Score)
	}
	if outcome.Feedback != "" {
		t.Errorf("sufficient outcome must carry no feedback, got %q", outcome.Feedback)
	}
}

func TestEvaluatorIntentThresholds(t *testing.T) {
	e := NewEvaluator(DefaultConfig())

	// 0.72 clears strategy (0.7) but not comparison (0.75).
	analysis := &AggregatedAnalysis{Completeness: 0.72}

	if got := e.Evaluate(analysis, QueryUnderstanding{Intent: IntentStrategy}, 0).State; got != EvalStateSufficient {
		t.Errorf("strategy at 0.72 should be sufficient, got %s", got)
	}
	if got := e.Evaluate(analysis, QueryUnderstanding{Intent: IntentComparison}, 0).State; got != EvalStateEvaluating {
		t.Errorf("comparison at 0.72 should keep evaluating, got %s", got)
	}
}

func TestEvaluatorUnknownIntentUsesDefault(t *testing.T) {
	cfg := DefaultConfig()
	e := NewEvaluator(cfg)
	if got := e.Threshold(Intent("made_up")); got != cfg.CompletenessThreshold {
		t.Errorf("expected default threshold %v, got %v", cfg.CompletenessThreshold, got)
	}
	if got := e.Threshold(IntentTelemetry); got != 0.8 {
		t.Errorf("expected telemetry threshold 0.8, got %v", got)
	}
}

func TestEvaluatorExhaustion(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	analysis := &AggregatedAnalysis{Completeness: 0.1}
	u := QueryUnderstanding{Intent: IntentPace}

	if got := e.Evaluate(analysis, u, 1).State; got != EvalStateEvaluating {
		t.Errorf("iteration 1 of 2 should keep evaluating, got %s", got)
	}
	outcome := e.Evaluate(analysis, u, 2)
	if outcome.State != EvalStateExhausted {
		t.Errorf("iteration 2 of 2 should be exhausted, got %s", outcome.State)
	}
	if !strings.Contains(outcome.Feedback, "iteration budget spent") {
		t.Errorf("exhausted feedback should say so, got %q", outcome.Feedback)
	}
}

func TestEvaluatorNilAnalysis(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	outcome := e.Evaluate(nil, QueryUnderstanding{Intent: IntentPace}, 0)
	if outcome.State != EvalStateEvaluating {
		t.Errorf("nil analysis should keep evaluating, got %s", outcome.State)
	}
	if outcome.Score != 0 {
		t.Errorf("nil analysis scores 0, got %v", outcome.Score)
	}
	if !strings.Contains(outcome.Feedback, "no usable data was retrieved") {
		t.Errorf("feedback should flag missing data, got %q", outcome.Feedback)
	}
}

func TestEvaluatorFeedbackNamesGaps(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	analysis := &AggregatedAnalysis{
		Completeness: 0.3,
		LapStats:     map[string]LapStats{"VER": {TotalLaps: 30}},
		MissingData:  []string{"laps_HAM (get_lap_times): timeout"},
	}
	u := QueryUnderstanding{
		Intent:  IntentComparison,
		Drivers: []string{"VER", "HAM"},
	}

	outcome := e.Evaluate(analysis, u, 0)
	if outcome.State != EvalStateEvaluating {
		t.Fatalf("expected evaluating, got %s", outcome.State)
	}
	for _, want := range []string{
		"missing: laps_HAM (get_lap_times): timeout",
		"no lap data for: HAM",
		"no driver comparison could be computed",
	} {
		if !strings.Contains(outcome.Feedback, want) {
			t.Errorf("feedback should contain %q, got %q", want, outcome.Feedback)
		}
	}
}

func TestEvaluatorFeedbackIsDeterministic(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	analysis := &AggregatedAnalysis{
		Completeness: 0.2,
		MissingData:  []string{"b (t): x", "a (t): y"},
	}
	u := QueryUnderstanding{Intent: IntentPace, Drivers: []string{"HAM", "VER"}}

	first := e.Evaluate(analysis, u, 0).Feedback
	for i := 0; i < 5; i++ {
		if got := e.Evaluate(analysis, u, 0).Feedback; got != first {
			t.Fatalf("feedback varies across runs: %q vs %q", first, got)
		}
	}
}

func TestEvaluatorFlagsThinLapCounts(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	analysis := &AggregatedAnalysis{
		Completeness: 0.3,
		LapStats:     map[string]LapStats{"VER": {TotalLaps: 3}},
	}
	outcome := e.Evaluate(analysis, QueryUnderstanding{Intent: IntentPace, Drivers: []string{"VER"}}, 0)
	if !strings.Contains(outcome.Feedback, "only 3 laps for VER") {
		t.Errorf("feedback should flag the thin lap count, got %q", outcome.Feedback)
	}
}
