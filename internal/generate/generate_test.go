package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/pitwall-ai/pitwall"
)

type fakeModel struct {
	reply      string
	err        error
	lastPrompt string
}

func (m *fakeModel) Complete(ctx context.Context, prompt string, history []pitwall.Message) (string, error) {
	m.lastPrompt = prompt
	return m.reply, m.err
}

func (m *fakeModel) CompleteStructured(ctx context.Context, prompt string, history []pitwall.Message, schema string) (json.RawMessage, error) {
	return nil, errors.New("not used")
}

func sampleAnalysis() *pitwall.AggregatedAnalysis {
	return &pitwall.AggregatedAnalysis{
		LapStats: map[string]pitwall.LapStats{
			"VER": {Driver: "VER", TotalLaps: 3, FastestLap: 90.1, AveragePace: 90.5},
			"HAM": {Driver: "HAM", TotalLaps: 3, FastestLap: 90.6, AveragePace: 91.0},
		},
		Laps: map[string][]pitwall.Lap{
			"VER": {{Number: 1, Time: 90.1}, {Number: 2, Time: 90.5}, {Number: 3, Time: 90.9}},
			"HAM": {{Number: 1, Time: 90.6}, {Number: 2, Time: 91.0}, {Number: 3, Time: 91.4}},
		},
		KeyInsights:    []string{"VER was 0.500s/lap faster than HAM on average over 3 laps"},
		Completeness:   1.0,
		Confidence:     0.9,
		RecommendedViz: []pitwall.ChartType{pitwall.ChartLapComparison, pitwall.ChartDeltaLine},
	}
}

func TestGenerateAnswer(t *testing.T) {
	model := &fakeModel{reply: "VER was half a second per lap quicker than HAM."}
	g := New(model)

	answer, err := g.Generate(context.Background(), pitwall.GeneratorInput{
		Question: "Who was faster, Verstappen or Hamilton?",
		Understanding: pitwall.QueryUnderstanding{
			Intent: pitwall.IntentComparison, Drivers: []string{"VER", "HAM"},
		},
		Analysis: sampleAnalysis(),
		Outcome:  pitwall.EvaluationOutcome{State: pitwall.EvalStateSufficient, Sufficient: true, Score: 1.0},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if answer.Text == "" {
		t.Error("expected non-empty answer text")
	}
	if answer.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9 from analysis, got %v", answer.Confidence)
	}
	if answer.Visualization == nil {
		t.Fatal("expected a visualization")
	}
	if answer.Visualization.Type != pitwall.ChartLapComparison {
		t.Errorf("expected lap_comparison viz, got %s", answer.Visualization.Type)
	}
	if answer.Visualization.ID == "" {
		t.Error("visualization must carry an id")
	}
	if !strings.Contains(model.lastPrompt, "0.500s/lap") {
		t.Error("prompt must include the key insights")
	}
	if strings.Contains(model.lastPrompt, "90.9") {
		t.Error("prompt must not include raw per-lap times")
	}
}

func TestGeneratePartialDisclosure(t *testing.T) {
	model := &fakeModel{reply: "Based on partial data, VER led."}
	g := New(model)

	answer, err := g.Generate(context.Background(), pitwall.GeneratorInput{
		Question: "Race summary?",
		Analysis: sampleAnalysis(),
		Partial:  true,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !answer.Partial {
		t.Error("answer must carry the partial flag")
	}
	if !strings.Contains(model.lastPrompt, "partial data") {
		t.Error("prompt must instruct partial-data disclosure")
	}
}

func TestGenerateNoData(t *testing.T) {
	model := &fakeModel{reply: "I could not retrieve data for that session."}
	g := New(model)

	answer, err := g.Generate(context.Background(), pitwall.GeneratorInput{
		Question: "How did the 1950 Monaco GP go?",
		Understanding: pitwall.QueryUnderstanding{
			Intent:             pitwall.IntentResults,
			HypotheticalAnswer: "a race report naming the winner and podium",
		},
		Analysis: &pitwall.AggregatedAnalysis{},
		Outcome:  pitwall.EvaluationOutcome{State: pitwall.EvalStateExhausted},
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if answer.Visualization != nil {
		t.Error("no data means no visualization")
	}
	if !strings.Contains(model.lastPrompt, "No data was available") {
		t.Error("prompt must disclose that no data was available")
	}
}

func TestGenerateModelFailure(t *testing.T) {
	model := &fakeModel{err: errors.New("upstream 503")}
	g := New(model)

	_, err := g.Generate(context.Background(), pitwall.GeneratorInput{
		Question: "Who won?",
		Analysis: sampleAnalysis(),
	})
	if err == nil {
		t.Fatal("expected error from failing model")
	}
	if pitwall.ErrorCode(err) != pitwall.ErrCodeSynthesis {
		t.Errorf("expected synthesis error code, got %s", pitwall.ErrorCode(err))
	}
}

func TestBuildDeltaLine(t *testing.T) {
	analysis := sampleAnalysis()
	analysis.RecommendedViz = []pitwall.ChartType{pitwall.ChartDeltaLine}

	spec := BuildVisualization(analysis)
	if spec == nil {
		t.Fatal("expected a delta line spec")
	}
	if spec.Type != pitwall.ChartDeltaLine {
		t.Fatalf("expected delta_line, got %s", spec.Type)
	}
	if len(spec.Data) != 3 {
		t.Fatalf("expected 3 delta points, got %d", len(spec.Data))
	}
	// HAM sorts before VER, so the delta is VER time minus HAM time,
	// cumulative: -0.5, -1.0, -1.5.
	last := spec.Data[2]["delta"].(float64)
	if last > -1.49 || last < -1.51 {
		t.Errorf("expected cumulative delta about -1.5, got %v", last)
	}
}

func TestBuildTireStrategy(t *testing.T) {
	analysis := &pitwall.AggregatedAnalysis{
		Stints: map[string][]pitwall.StintSummary{
			"VER": {
				{Number: 1, Compound: "SOFT", StartLap: 1, EndLap: 15, PitInLap: 15},
				{Number: 2, Compound: "HARD", StartLap: 16, EndLap: 50},
			},
		},
		RecommendedViz: []pitwall.ChartType{pitwall.ChartTireStrategy},
	}
	spec := BuildVisualization(analysis)
	if spec == nil {
		t.Fatal("expected a tire strategy spec")
	}
	if len(spec.Data) != 2 {
		t.Fatalf("expected 2 stint segments, got %d", len(spec.Data))
	}
	if spec.Data[0]["color"] != "#FF3333" {
		t.Errorf("SOFT stint must be red, got %v", spec.Data[0]["color"])
	}
	if spec.Data[1]["color"] != "#EEEEEE" {
		t.Errorf("HARD stint must be white, got %v", spec.Data[1]["color"])
	}
}

func TestBuildVisualizationNil(t *testing.T) {
	if spec := BuildVisualization(nil); spec != nil {
		t.Error("nil analysis must produce no visualization")
	}
	if spec := BuildVisualization(&pitwall.AggregatedAnalysis{}); spec != nil {
		t.Error("empty analysis must produce no visualization")
	}
}

func TestDriverColorFallback(t *testing.T) {
	if DriverColor("VER") != "#3671C6" {
		t.Error("VER must map to Red Bull blue")
	}
	if DriverColor("XYZ") != defaultDriverColor {
		t.Error("unknown driver must get the fallback color")
	}
}
