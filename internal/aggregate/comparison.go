package aggregate

import (
	"fmt"
	"sort"

	"github.com/pitwall-ai/pitwall"
)

// buildComparisons produces a pairwise comparison for every unordered pair
// of drivers with lap statistics, in sorted driver order. Positive deltas
// mean the first driver of the pair is faster.
func buildComparisons(analysis *pitwall.AggregatedAnalysis) []pitwall.DriverComparison {
	drivers := make([]string, 0, len(analysis.LapStats))
	for d := range analysis.LapStats {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	if len(drivers) < 2 {
		return nil
	}

	var comparisons []pitwall.DriverComparison
	for i := 0; i < len(drivers); i++ {
		for j := i + 1; j < len(drivers); j++ {
			comparisons = append(comparisons, compareDrivers(analysis, drivers[i], drivers[j]))
		}
	}
	return comparisons
}

func compareDrivers(analysis *pitwall.AggregatedAnalysis, a, b string) pitwall.DriverComparison {
	statsA := analysis.LapStats[a]
	statsB := analysis.LapStats[b]

	lapsCompared := statsA.TotalLaps
	if statsB.TotalLaps < lapsCompared {
		lapsCompared = statsB.TotalLaps
	}

	c := pitwall.DriverComparison{
		DriverA:      a,
		DriverB:      b,
		PaceDelta:    round3(statsB.AveragePace - statsA.AveragePace),
		FastestDelta: round3(statsB.FastestLap - statsA.FastestLap),
		LapsCompared: lapsCompared,
		AveragePaceA: statsA.AveragePace,
		AveragePaceB: statsB.AveragePace,
		FastestA:     statsA.FastestLap,
		FastestB:     statsB.FastestLap,
	}

	sectorDeltas := make(map[string]float64, 3)
	for i := 0; i < 3; i++ {
		if statsA.BestSectors[i] > 0 && statsB.BestSectors[i] > 0 {
			sectorDeltas[fmt.Sprintf("s%d", i+1)] = round3(statsB.BestSectors[i] - statsA.BestSectors[i])
		}
	}
	if len(sectorDeltas) > 0 {
		c.SectorDeltas = sectorDeltas
	}
	return c
}

// buildInsights distills the analysis into short factual bullet points the
// generator can quote without re-deriving numbers.
func buildInsights(analysis *pitwall.AggregatedAnalysis, u pitwall.QueryUnderstanding) []string {
	var insights []string

	drivers := make([]string, 0, len(analysis.LapStats))
	for d := range analysis.LapStats {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)

	for _, d := range drivers {
		s := analysis.LapStats[d]
		insights = append(insights, fmt.Sprintf(
			"%s: %d laps, fastest %.3fs (lap %d), average %.3fs, consistency %.3fs",
			d, s.TotalLaps, s.FastestLap, s.FastestLapNumber, s.AveragePace, s.Consistency))
	}

	for _, c := range analysis.Comparisons {
		faster, slower, delta := c.DriverA, c.DriverB, c.PaceDelta
		if delta < 0 {
			faster, slower, delta = c.DriverB, c.DriverA, -delta
		}
		insights = append(insights, fmt.Sprintf(
			"%s was %.3fs/lap faster than %s on average over %d laps",
			faster, delta, slower, c.LapsCompared))
	}

	if u.Intent == pitwall.IntentStrategy {
		for _, d := range drivers {
			for _, s := range analysis.Stints[d] {
				if s.DegradationPerLap > 0 {
					insights = append(insights, fmt.Sprintf(
						"%s stint %d (%s, laps %d-%d): degradation %.3fs/lap",
						d, s.Number, s.Compound, s.StartLap, s.EndLap, s.DegradationPerLap))
				}
			}
		}
	}

	return insights
}
