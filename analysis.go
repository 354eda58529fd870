package pitwall

// ChartType names a visualization shape the generator can recommend.
type ChartType string

const (
	ChartLapProgression ChartType = "lap_progression"
	ChartLapComparison  ChartType = "lap_comparison"
	ChartDeltaLine      ChartType = "delta_line"
	ChartBoxPlot        ChartType = "box_plot"
	ChartHistogram      ChartType = "histogram"
	ChartBarChart       ChartType = "bar_chart"
	ChartTireStrategy   ChartType = "tire_strategy"
	ChartGapEvolution   ChartType = "gap_evolution"
	ChartSpeedTrace     ChartType = "speed_trace"
	ChartScatter        ChartType = "scatter"
	ChartTable          ChartType = "table"
)

// Lap is one cleaned lap record retained for visualization building.
// Times are in seconds.
type Lap struct {
	Number   int     `json:"lap"`
	Time     float64 `json:"time"`
	Sector1  float64 `json:"s1,omitempty"`
	Sector2  float64 `json:"s2,omitempty"`
	Sector3  float64 `json:"s3,omitempty"`
	Compound string  `json:"compound,omitempty"`
	Stint    int     `json:"stint,omitempty"`
	Position int     `json:"position,omitempty"`
}

// LapStats summarizes a single driver's lap data.
type LapStats struct {
	Driver           string     `json:"driver"`
	TotalLaps        int        `json:"total_laps"`
	FastestLap       float64    `json:"fastest_lap"`
	FastestLapNumber int        `json:"fastest_lap_number"`
	AveragePace      float64    `json:"average_pace"` // slowest 10% trimmed when enough laps
	Consistency      float64    `json:"consistency"`  // stddev of lap times, lower is steadier
	BestSectors      [3]float64 `json:"best_sectors"`
}

// StintSummary describes one tire stint.
type StintSummary struct {
	Number            int     `json:"stint"`
	Compound          string  `json:"compound"`
	StartLap          int     `json:"start_lap"`
	EndLap            int     `json:"end_lap"`
	Laps              int     `json:"laps"`
	AveragePace       float64 `json:"average_pace"`
	DegradationPerLap float64 `json:"degradation_per_lap"` // positive regression slope, 0 if none detected
	PitInLap          int     `json:"pit_in_lap,omitempty"` // 0 for the final stint
}

// DriverComparison holds pairwise deltas. Positive deltas mean DriverA was
// faster.
type DriverComparison struct {
	DriverA        string             `json:"driver_a"`
	DriverB        string             `json:"driver_b"`
	PaceDelta      float64            `json:"pace_delta"`
	FastestDelta   float64            `json:"fastest_delta"`
	SectorDeltas   map[string]float64 `json:"sector_deltas,omitempty"` // keys s1, s2, s3
	LapsCompared   int                `json:"laps_compared"`
	AveragePaceA   float64            `json:"average_pace_a"`
	AveragePaceB   float64            `json:"average_pace_b"`
	FastestA       float64            `json:"fastest_a"`
	FastestB       float64            `json:"fastest_b"`
}

// AggregatedAnalysis is the deterministic digest of one execution pass. It
// is rebuilt wholesale each time the evaluator loops; nothing is merged
// incrementally.
type AggregatedAnalysis struct {
	LapStats       map[string]LapStats       `json:"lap_stats"`     // keyed by driver
	Laps           map[string][]Lap          `json:"laps"`          // cleaned laps per driver, for viz building
	Stints         map[string][]StintSummary `json:"stints"`        // keyed by driver
	Comparisons    []DriverComparison        `json:"comparisons"`
	Results        []map[string]interface{}  `json:"results,omitempty"` // session classification rows
	Documents      []map[string]interface{}  `json:"documents,omitempty"`
	KeyInsights    []string                  `json:"key_insights"`
	Completeness   float64                   `json:"completeness"`
	Confidence     float64                   `json:"confidence"`
	MissingData    []string                  `json:"missing_data"`
	RecommendedViz []ChartType               `json:"recommended_viz"`
}

// HasLapData reports whether at least one driver produced usable laps.
func (a *AggregatedAnalysis) HasLapData() bool {
	return a != nil && len(a.LapStats) > 0
}

// VisualizationSpec is a renderer-agnostic chart description.
type VisualizationSpec struct {
	ID      string                   `json:"id"`
	Type    ChartType                `json:"type"`
	Title   string                   `json:"title"`
	Drivers []string                 `json:"drivers,omitempty"`
	Data    []map[string]interface{} `json:"data"`
	Config  map[string]interface{}   `json:"config,omitempty"`
}

// FinalAnswer is the single terminal product of a successful turn. Partial
// and LowConfidence are explicit so callers never have to infer degraded
// answers from prose.
type FinalAnswer struct {
	TurnID        string             `json:"turn_id"`
	Text          string             `json:"text"`
	Visualization *VisualizationSpec `json:"visualization,omitempty"`
	Confidence    float64            `json:"confidence"`
	Iterations    int                `json:"iterations"`
	LowConfidence bool               `json:"low_confidence"`
	Partial       bool               `json:"partial"`
}
