package aggregate

import (
	"strings"

	"github.com/pitwall-ai/pitwall"
)

// recommendViz picks chart types for the generator, ordered by how well
// they serve the intent given the data actually retrieved. The first
// entry is the primary visualization.
func recommendViz(analysis *pitwall.AggregatedAnalysis, u pitwall.QueryUnderstanding) []pitwall.ChartType {
	hasLaps := analysis.HasLapData()
	driverCount := len(analysis.Laps)

	var recommended []pitwall.ChartType
	switch u.Intent {
	case pitwall.IntentComparison:
		if hasLaps && driverCount >= 2 {
			recommended = []pitwall.ChartType{pitwall.ChartLapComparison, pitwall.ChartDeltaLine, pitwall.ChartBoxPlot}
		} else if hasLaps {
			recommended = []pitwall.ChartType{pitwall.ChartLapProgression, pitwall.ChartBoxPlot}
		}
	case pitwall.IntentPace:
		if hasLaps {
			recommended = []pitwall.ChartType{pitwall.ChartLapProgression, pitwall.ChartBoxPlot}
			if driverCount >= 2 {
				recommended = append(recommended, pitwall.ChartDeltaLine)
			}
		}
	case pitwall.IntentStrategy:
		if len(analysis.Stints) > 0 {
			recommended = []pitwall.ChartType{pitwall.ChartTireStrategy}
			if hasLaps {
				recommended = append(recommended, pitwall.ChartScatter)
			}
		}
	case pitwall.IntentTelemetry:
		if hasLaps {
			recommended = []pitwall.ChartType{pitwall.ChartSpeedTrace, pitwall.ChartLapProgression}
		}
	}

	if len(recommended) == 0 {
		switch {
		case hasLaps:
			recommended = []pitwall.ChartType{pitwall.ChartLapProgression}
		case len(analysis.Results) > 0:
			recommended = []pitwall.ChartType{pitwall.ChartTable}
		}
	}

	return applyMetricBoosts(recommended, u.Metrics)
}

// applyMetricBoosts promotes chart types that directly visualize an
// explicitly requested metric.
func applyMetricBoosts(recommended []pitwall.ChartType, metrics []string) []pitwall.ChartType {
	for _, metric := range metrics {
		m := strings.ToLower(metric)
		switch {
		case strings.Contains(m, "consistency"):
			recommended = promote(recommended, pitwall.ChartBoxPlot)
		case strings.Contains(m, "distribution"):
			recommended = promote(recommended, pitwall.ChartHistogram)
		case strings.Contains(m, "gap"):
			recommended = promote(recommended, pitwall.ChartGapEvolution)
		}
	}
	return recommended
}

// promote moves a chart type to the front, inserting it if absent. An
// empty recommendation list stays empty: a metric keyword alone cannot
// conjure a chart with no data behind it.
func promote(recommended []pitwall.ChartType, chart pitwall.ChartType) []pitwall.ChartType {
	if len(recommended) == 0 {
		return recommended
	}
	out := []pitwall.ChartType{chart}
	for _, c := range recommended {
		if c != chart {
			out = append(out, c)
		}
	}
	return out
}
