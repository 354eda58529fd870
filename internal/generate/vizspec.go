package generate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/pitwall-ai/pitwall"
)

// driverColors carries the broadcast color per driver code. Unknown
// drivers fall back to a neutral grey.
var driverColors = map[string]string{
	"VER": "#3671C6", "PER": "#3671C6",
	"HAM": "#27F4D2", "RUS": "#27F4D2",
	"LEC": "#E80020", "SAI": "#E80020",
	"NOR": "#FF8000", "PIA": "#FF8000",
	"ALO": "#229971", "STR": "#229971",
	"GAS": "#0093CC", "OCO": "#0093CC",
	"TSU": "#6692FF", "RIC": "#6692FF",
	"ALB": "#64C4FF", "SAR": "#64C4FF",
	"BOT": "#52E252", "ZHO": "#52E252",
	"MAG": "#B6BABD", "HUL": "#B6BABD",
}

const defaultDriverColor = "#888888"

var compoundColors = map[string]string{
	"SOFT":         "#FF3333",
	"MEDIUM":       "#FFD700",
	"HARD":         "#EEEEEE",
	"INTERMEDIATE": "#43B02A",
	"WET":          "#0067AD",
}

// DriverColor returns the plot color for a driver code.
func DriverColor(driver string) string {
	if c, ok := driverColors[strings.ToUpper(driver)]; ok {
		return c
	}
	return defaultDriverColor
}

// CompoundColor returns the plot color for a tire compound.
func CompoundColor(compound string) string {
	if c, ok := compoundColors[strings.ToUpper(compound)]; ok {
		return c
	}
	return defaultDriverColor
}

// BuildVisualization renders the analysis's primary recommended chart into
// a renderer-agnostic spec. Returns nil when no chart is recommended or
// the data behind it is gone.
func BuildVisualization(analysis *pitwall.AggregatedAnalysis) *pitwall.VisualizationSpec {
	if analysis == nil || len(analysis.RecommendedViz) == 0 {
		return nil
	}

	var spec *pitwall.VisualizationSpec
	switch chart := analysis.RecommendedViz[0]; chart {
	case pitwall.ChartLapProgression, pitwall.ChartLapComparison, pitwall.ChartSpeedTrace:
		spec = buildLapChart(analysis, chart)
	case pitwall.ChartDeltaLine:
		spec = buildDeltaLine(analysis)
	case pitwall.ChartBoxPlot, pitwall.ChartHistogram:
		spec = buildDistributionChart(analysis, chart)
	case pitwall.ChartTireStrategy:
		spec = buildTireStrategy(analysis)
	case pitwall.ChartTable:
		spec = buildResultsTable(analysis)
	case pitwall.ChartScatter, pitwall.ChartGapEvolution, pitwall.ChartBarChart:
		spec = buildLapChart(analysis, chart)
	}
	if spec != nil {
		spec.ID = uuid.NewString()
	}
	return spec
}

func sortedDrivers(laps map[string][]pitwall.Lap) []string {
	drivers := make([]string, 0, len(laps))
	for d := range laps {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

// buildLapChart emits one series per driver of lap number against lap
// time.
func buildLapChart(analysis *pitwall.AggregatedAnalysis, chart pitwall.ChartType) *pitwall.VisualizationSpec {
	drivers := sortedDrivers(analysis.Laps)
	if len(drivers) == 0 {
		return nil
	}

	var data []map[string]interface{}
	for _, d := range drivers {
		for _, lap := range analysis.Laps[d] {
			data = append(data, map[string]interface{}{
				"driver": d,
				"lap":    lap.Number,
				"time":   lap.Time,
			})
		}
	}

	return &pitwall.VisualizationSpec{
		Type:    chart,
		Title:   "Lap times: " + strings.Join(drivers, " vs "),
		Drivers: drivers,
		Data:    data,
		Config:  chartConfig(drivers, "lap", "time"),
	}
}

// buildDeltaLine plots the cumulative gap between the first two drivers,
// positive when the first driver is ahead.
func buildDeltaLine(analysis *pitwall.AggregatedAnalysis) *pitwall.VisualizationSpec {
	drivers := sortedDrivers(analysis.Laps)
	if len(drivers) < 2 {
		return buildLapChart(analysis, pitwall.ChartLapProgression)
	}
	a, b := drivers[0], drivers[1]

	byLapB := make(map[int]float64, len(analysis.Laps[b]))
	for _, lap := range analysis.Laps[b] {
		byLapB[lap.Number] = lap.Time
	}

	var data []map[string]interface{}
	cumulative := 0.0
	for _, lap := range analysis.Laps[a] {
		tb, ok := byLapB[lap.Number]
		if !ok {
			continue
		}
		cumulative += tb - lap.Time
		data = append(data, map[string]interface{}{
			"lap":   lap.Number,
			"delta": cumulative,
		})
	}
	if len(data) == 0 {
		return nil
	}

	return &pitwall.VisualizationSpec{
		Type:    pitwall.ChartDeltaLine,
		Title:   fmt.Sprintf("Cumulative gap: %s vs %s", a, b),
		Drivers: []string{a, b},
		Data:    data,
		Config:  chartConfig([]string{a, b}, "lap", "delta"),
	}
}

// buildDistributionChart emits raw lap times per driver; binning and
// quartiles are the renderer's job.
func buildDistributionChart(analysis *pitwall.AggregatedAnalysis, chart pitwall.ChartType) *pitwall.VisualizationSpec {
	drivers := sortedDrivers(analysis.Laps)
	if len(drivers) == 0 {
		return nil
	}

	var data []map[string]interface{}
	for _, d := range drivers {
		for _, lap := range analysis.Laps[d] {
			data = append(data, map[string]interface{}{
				"driver": d,
				"time":   lap.Time,
			})
		}
	}

	return &pitwall.VisualizationSpec{
		Type:    chart,
		Title:   "Lap time distribution: " + strings.Join(drivers, ", "),
		Drivers: drivers,
		Data:    data,
		Config:  chartConfig(drivers, "driver", "time"),
	}
}

// buildTireStrategy emits one bar segment per stint, colored by compound.
func buildTireStrategy(analysis *pitwall.AggregatedAnalysis) *pitwall.VisualizationSpec {
	drivers := make([]string, 0, len(analysis.Stints))
	for d := range analysis.Stints {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	if len(drivers) == 0 {
		return nil
	}

	var data []map[string]interface{}
	for _, d := range drivers {
		for _, s := range analysis.Stints[d] {
			data = append(data, map[string]interface{}{
				"driver":    d,
				"stint":     s.Number,
				"compound":  s.Compound,
				"start_lap": s.StartLap,
				"end_lap":   s.EndLap,
				"color":     CompoundColor(s.Compound),
			})
		}
	}

	return &pitwall.VisualizationSpec{
		Type:    pitwall.ChartTireStrategy,
		Title:   "Tire strategy: " + strings.Join(drivers, ", "),
		Drivers: drivers,
		Data:    data,
		Config: map[string]interface{}{
			"x_axis":          "lap",
			"y_axis":          "driver",
			"compound_colors": compoundColors,
		},
	}
}

func buildResultsTable(analysis *pitwall.AggregatedAnalysis) *pitwall.VisualizationSpec {
	if len(analysis.Results) == 0 {
		return nil
	}
	return &pitwall.VisualizationSpec{
		Type:  pitwall.ChartTable,
		Title: "Session classification",
		Data:  analysis.Results,
	}
}

func chartConfig(drivers []string, xAxis, yAxis string) map[string]interface{} {
	colors := make(map[string]string, len(drivers))
	for _, d := range drivers {
		colors[d] = DriverColor(d)
	}
	return map[string]interface{}{
		"x_axis":        xAxis,
		"y_axis":        yAxis,
		"driver_colors": colors,
	}
}
